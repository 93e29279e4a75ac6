package core

import "unicode/utf8"

// Truncate shortens s to maxLen runes, appending "..." when it cut anything.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen]) + "..."
}
