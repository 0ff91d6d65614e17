// Package util holds small string helpers shared by logging call sites.
package util

import "strings"

// TruncateString shortens s to at most maxLen runes, ending in "..." when cut.
// With preserveWords the cut moves back to the last whitespace when one exists.
func TruncateString(s string, maxLen int, preserveWords bool) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	cut := maxLen - 3
	if preserveWords {
		for i := cut - 1; i > 0; i-- {
			if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
				cut = i
				break
			}
		}
	}
	return string(runes[:cut]) + "..."
}

// Preview flattens whitespace and truncates s for a single log field.
func Preview(s string, maxLen int) string {
	return TruncateString(strings.Join(strings.Fields(s), " "), maxLen, true)
}
