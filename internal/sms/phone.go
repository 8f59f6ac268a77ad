package sms

import "strings"

// NormalizePhoneNumber strips every non-digit character and prepends the
// country prefix to bare 10-digit local numbers. Anything else is returned
// digits-only and left for validation to reject.
func NormalizePhoneNumber(raw, countryPrefix string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 {
		return countryPrefix + digits
	}
	return digits
}

// IsValidPhoneNumber accepts Indian mobile numbers in two shapes: a bare
// 10-digit number starting with 6-9, or the same number carrying the 91
// country prefix.
func IsValidPhoneNumber(number string) bool {
	switch len(number) {
	case 10:
		return isMobileStart(number[0]) && allDigits(number)
	case 12:
		return strings.HasPrefix(number, "91") && isMobileStart(number[2]) && allDigits(number)
	default:
		return false
	}
}

func isMobileStart(c byte) bool {
	return c >= '6' && c <= '9'
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
