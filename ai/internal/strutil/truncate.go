// Package strutil provides string utility functions for the ai packages.
package strutil

import "strings"

// Ellipsis is appended by Truncate when it shortens a string.
const Ellipsis = "..."

// Truncate truncates a string to a maximum length.
// Uses rune-level truncation so multi-byte characters are never split.
// Returns empty string if maxLen <= 0 to prevent slice bounds panic.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + Ellipsis
}

// FitWithEllipsis returns s unchanged when it fits in limit runes; otherwise it
// keeps limit-len(Ellipsis) runes and appends Ellipsis so the result is exactly
// limit runes long.
func FitWithEllipsis(s string, limit int) string {
	if limit <= len(Ellipsis) {
		return Truncate(s, limit)
	}
	if RuneLen(s) <= limit {
		return s
	}
	return Truncate(s, limit-len(Ellipsis))
}

// FirstWords returns the first n whitespace-separated words of s joined by a
// single space.
func FirstWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}
