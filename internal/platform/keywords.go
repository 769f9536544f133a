package platform

import "strings"

// ParseKeywords splits a comma separated list, trimming blanks and dropping empties.
func ParseKeywords(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinOr joins terms into one OR query, quoting multi-word terms.
func JoinOr(terms []string) string {
	return joinTerms(terms, " OR ")
}

// JoinPipe joins terms with the | operator used by the YouTube search API.
func JoinPipe(terms []string) string {
	return joinTerms(terms, "|")
}

func joinTerms(terms []string, sep string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.ContainsAny(t, " \t") && !strings.HasPrefix(t, `"`) {
			t = `"` + t + `"`
		}
		quoted = append(quoted, t)
	}
	return strings.Join(quoted, sep)
}
