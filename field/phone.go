package field

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^[\d\-()+]{8,15}$`)

// ValidPhone reports whether s looks like a phone number: 8 to 15 digits or
// "-()+" once spaces are removed, with at least 8 digits.
func ValidPhone(s string) bool {
	compact := strings.Join(strings.Fields(s), "")
	if !phonePattern.MatchString(compact) {
		return false
	}
	return len(NormalizePhone(s)) >= 8
}

// NormalizePhone keeps only the digits of s.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
