package llm

import "strings"

// PostProcess strips a surrounding triple-backtick fence (with or without a
// language hint such as "json") from a model response and trims whitespace.
// Models wrap JSON and code answers in fences regardless of instructions, so
// every response passes through here before the engine looks at it.
func PostProcess(response string) string {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		rest := s[3:]
		if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
			if isLanguageHint(strings.TrimSpace(rest[:idx])) {
				rest = rest[idx+1:]
			}
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		s = rest
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// isLanguageHint reports whether the first fence line is a bare language tag
// rather than response content.
func isLanguageHint(hint string) bool {
	if hint == "" {
		return true
	}
	for _, r := range hint {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
