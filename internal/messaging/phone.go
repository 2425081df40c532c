package messaging

import (
	"errors"
	"strings"
)

// ErrUnroutablePhone indicates the digit count is outside the accepted range
// for a dialable Brazilian number.
var ErrUnroutablePhone = errors.New("messaging: phone number not routable")

// BrazilCountryPrefix is prepended to national numbers lacking a country code.
const BrazilCountryPrefix = "55"

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeBR canonicalizes a free-form phone string into a dialable
// international form (country code + subscriber number, digits only).
// National numbers carry 10 digits (landline) or 11 (mobile with the extra 9);
// 12 or more digits are treated as already country-prefixed and pass through.
func NormalizeBR(value string) (string, error) {
	digits := sanitizePhone(strings.TrimSpace(value))
	switch {
	case len(digits) == 10 || len(digits) == 11:
		return BrazilCountryPrefix + digits, nil
	case len(digits) >= 12:
		return digits, nil
	default:
		return "", ErrUnroutablePhone
	}
}

// LastNineDigits returns the trailing nine digits of a phone string, the key
// used for fuzzy patient matching. Tolerates country code, area code and
// formatting drift. Returns the full digit string when shorter than nine.
func LastNineDigits(value string) string {
	digits := sanitizePhone(value)
	if len(digits) <= 9 {
		return digits
	}
	return digits[len(digits)-9:]
}
