package voting

import "strings"

// Canonicalize normalizes candidate text for exact-match grouping: code
// fences and surrounding quotes are stripped, and whitespace runs collapse to
// a single space. Case is preserved since it may be semantically meaningful.
func Canonicalize(s string) string {
	s = strings.TrimSpace(s)
	s = stripFence(s)

	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}

	return strings.Join(strings.Fields(s), " ")
}

// stripFence removes a surrounding markdown code fence, including an optional
// language tag on the opening line.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}

	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if idx := strings.Index(body, "\n"); idx != -1 {
		// Drop the language tag line if the first line has no spaces.
		first := body[:idx]
		if first == "" || !strings.Contains(first, " ") {
			body = body[idx+1:]
		}
	}
	return strings.TrimSpace(body)
}
