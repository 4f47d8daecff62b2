// Package phone validates and normalizes subscriber phone numbers to E.164.
package phone

import (
	"strings"

	"github.com/raga-mitra/raga_mitra/internal/autherr"
)

// nationalDigits maps a country calling code to the national significant number length.
var nationalDigits = map[string]int{
	"1":   10, // NANP
	"7":   10,
	"27":  9,
	"33":  9,
	"44":  10,
	"60":  9,
	"61":  9,
	"65":  8,
	"66":  9,
	"81":  10,
	"91":  10,
	"92":  10,
	"94":  9,
	"234": 10,
	"237": 9,
	"254": 9,
	"880": 10,
	"971": 9,
	"977": 10,
}

// Normalize returns raw as an E.164 string ("+911234567890"). Numbers without a leading
// "+" or "00" are interpreted in defaultCountryCode ("+91" or "91").
func Normalize(raw, defaultCountryCode string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return "", autherr.Invalid("phone number is required")
	}

	var digits string
	switch {
	case strings.HasPrefix(cleaned, "+"):
		digits = cleaned[1:]
	case strings.HasPrefix(cleaned, "00"):
		digits = cleaned[2:]
	default:
		cc := strings.TrimPrefix(defaultCountryCode, "+")
		want, ok := nationalDigits[cc]
		if !ok {
			return "", autherr.Invalid("phone number must include a country code")
		}
		national := cleaned
		if len(national) == want+1 && national[0] == '0' {
			national = national[1:]
		}
		digits = cc + national
	}
	if !isDigits(digits) {
		return "", autherr.Invalid("phone number must contain digits only")
	}

	for n := 1; n <= 3 && n < len(digits); n++ {
		want, ok := nationalDigits[digits[:n]]
		if !ok {
			continue
		}
		if got := len(digits) - n; got != want {
			return "", autherr.Invalid("phone number for +%s must have %d digits, got %d", digits[:n], want, got)
		}
		return "+" + digits, nil
	}
	return "", autherr.Invalid("unsupported country code")
}

// ValidateDigits checks that value is exactly n ASCII digits. what names the field in the message.
func ValidateDigits(value string, n int, what string) error {
	if len(value) != n || !isDigits(value) {
		return autherr.Invalid("%s must be exactly %d digits", what, n)
	}
	return nil
}

// Mask hides all but the last four digits for logging.
func Mask(e164 string) string {
	if len(e164) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(e164)-4) + e164[len(e164)-4:]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
