package agents

import (
	"regexp"
	"strings"
)

var (
	metaOpeners = []string{
		"i need to", "i should write", "i should reply", "i'll write", "i will write",
		"let me think", "let me write", "let me craft", "let me draft",
		"here's my", "here is my", "here's a reply", "here is a reply", "here's a possible",
		"okay, so", "ok, so", "alright, so", "the user wants", "the user is", "the user's",
		"to craft", "thinking about how",
	}

	// metaMarkers only name the act of replying, so ordinary replies never match
	metaMarkers = []string{
		"character limit", "my reply", "my response", "the user's post", "the user wants",
		"here's a draft", "here is a draft", "draft reply", "reply:", "response:",
	}

	listItem      = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	quotedSegment = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	sentenceEnd   = regexp.MustCompile(`[.!?:](\s|$)`)
)

// SanitizeReply turns raw model output into postable text. Models without a
// separate reasoning channel sometimes narrate before answering, so that output
// gets the meta-commentary cleanup; quote stripping and truncation always apply.
func SanitizeReply(raw string, cleanMeta bool, maxLength int) string {
	text := strings.TrimSpace(raw)
	if cleanMeta {
		text = stripMetaOpeners(text)
		text = stripListPreamble(text)
		if hasMetaMarker(text) {
			text = extractReply(text)
		}
	}
	text = stripWrappingQuotes(text)
	return truncateRunes(text, maxLength)
}

func stripMetaOpeners(text string) string {
	for i := 0; i < 10 && text != ""; i++ {
		if !startsWithOpener(text) {
			return text
		}
		rest := dropFirstSentence(text)
		if rest == "" {
			return text
		}
		text = rest
	}
	return text
}

func startsWithOpener(text string) bool {
	lower := strings.ToLower(text)
	for _, opener := range metaOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

func dropFirstSentence(text string) string {
	cut := len(text)
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		cut = loc[1]
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && nl < cut {
		cut = nl + 1
	}
	return strings.TrimSpace(text[cut:])
}

// stripListPreamble drops leading list items and header lines when a plain line follows them
func stripListPreamble(text string) string {
	lines := nonEmptyLines(text)
	if len(lines) < 2 {
		return text
	}

	start := 0
	for start < len(lines)-1 && (listItem.MatchString(lines[start]) || strings.HasSuffix(lines[start], ":")) {
		start++
	}
	if start == 0 {
		return text
	}

	rest := lines[start:]
	if listItem.MatchString(rest[0]) {
		rest[0] = listItem.ReplaceAllString(rest[0], "")
	}
	return strings.Join(rest, "\n")
}

func hasMetaMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range metaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// extractReply picks the likeliest reply out of leftover reasoning: the longest
// quoted passage, else the last line of plausible length.
func extractReply(text string) string {
	best := ""
	for _, m := range quotedSegment.FindAllStringSubmatch(text, -1) {
		candidate := m[1]
		if candidate == "" {
			candidate = m[2]
		}
		candidate = strings.TrimSpace(candidate)
		if len([]rune(candidate)) > 10 && len(candidate) > len(best) {
			best = candidate
		}
	}
	if best != "" {
		return best
	}

	lines := nonEmptyLines(text)
	if len(lines) > 0 {
		last := listItem.ReplaceAllString(lines[len(lines)-1], "")
		if n := len([]rune(last)); n >= 10 && n < 600 {
			return last
		}
	}
	return text
}

func stripWrappingQuotes(text string) string {
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"‘", "’"}, {"`", "`"}}
	for {
		text = strings.TrimSpace(text)
		stripped := false
		for _, p := range pairs {
			if len(text) >= len(p[0])+len(p[1]) && strings.HasPrefix(text, p[0]) && strings.HasSuffix(text, p[1]) {
				text = text[len(p[0]) : len(text)-len(p[1])]
				stripped = true
				break
			}
		}
		if !stripped {
			return text
		}
	}
}

func truncateRunes(text string, maxLength int) string {
	runes := []rune(text)
	if maxLength <= 0 || len(runes) <= maxLength {
		return text
	}
	return strings.TrimSpace(string(runes[:maxLength]))
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
