package normalize

import (
	"strings"
)

const fence = "```"

// Clean strips a fenced code block wrapper and replaces control characters
// with spaces.
func Clean(raw string) string {
	return ScrubControl(StripFence(raw))
}

// StripFence removes a ``` wrapper. The opening line (including any
// language tag) is dropped; if a closing fence follows, everything from the
// last one on is dropped as well. An unterminated fence keeps the rest.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, fence) {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return ""
	}
	s = s[nl+1:]
	if i := strings.LastIndex(s, fence); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// ScrubControl replaces each rune in U+0000–U+001F and U+007F–U+009F with a
// single space, including newlines and tabs.
func ScrubControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1f || (r >= 0x7f && r <= 0x9f) {
			return ' '
		}
		return r
	}, s)
}
