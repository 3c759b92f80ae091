package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, folds inner whitespace runs to one space, drops
// control characters and caps the result at maxLen runes. maxLen <= 0 means no cap.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	runes := 0
	for _, r := range strings.TrimSpace(input) {
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if pendingSpace {
			if maxLen > 0 && runes+1 >= maxLen {
				break
			}
			b.WriteByte(' ')
			runes++
			pendingSpace = false
		}
		if maxLen > 0 && runes >= maxLen {
			break
		}
		b.WriteRune(r)
		runes++
	}
	return b.String()
}
