package platform

import (
	"encoding/json"
	"strconv"
)

// ExtractID walks a JSON document along path and returns the string found there.
// Array steps are written as indexes ("0"). Anything unexpected yields UnknownReplyID,
// so a successful post is never reported as failed because its id moved.
func ExtractID(body []byte, path ...string) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return UnknownReplyID
	}
	cur := doc
	for _, step := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[step]
			if !ok {
				return UnknownReplyID
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(step)
			if err != nil || i < 0 || i >= len(node) {
				return UnknownReplyID
			}
			cur = node[i]
		default:
			return UnknownReplyID
		}
	}
	if id, ok := cur.(string); ok && id != "" {
		return id
	}
	return UnknownReplyID
}
