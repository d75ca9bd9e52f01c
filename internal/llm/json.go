// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import "strings"

// ExtractJSON strips a surrounding ```json or ``` code fence from a model
// response. Text without a leading fence is returned trimmed.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	var rest string
	switch {
	case strings.HasPrefix(s, "```json"):
		rest = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		rest = s[len("```"):]
	default:
		return s
	}
	if i := strings.Index(rest, "```"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
