package util

import (
	"strings"
	"unicode/utf8"
)

const Ellipsis = "…"

// TruncateRunes cuts s to at most n runes, ending with an ellipsis when cut.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return Ellipsis
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count == n-1 {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteString(Ellipsis)
	return b.String()
}

// HasCommandPrefix reports whether text starts with cmd, ignoring ASCII case,
// and returns the trimmed remainder.
func HasCommandPrefix(text, cmd string) (string, bool) {
	text = strings.TrimSpace(text)
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || len(text) < len(cmd) {
		return "", false
	}
	if !strings.EqualFold(text[:len(cmd)], cmd) {
		return "", false
	}
	return strings.TrimSpace(text[len(cmd):]), true
}
