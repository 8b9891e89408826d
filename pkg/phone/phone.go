// Package phone normalizes phone numbers for search keys and outbound
// message destinations.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalize converts a free-text phone number to E.164. Lead phone fields are
// not validated on entry, so this is best-effort: an unparseable or invalid
// number returns an error and the caller falls back to the raw digits.
func Normalize(phone, countryCode string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}
	if countryCode == "" {
		countryCode = "US"
	}

	parsed, err := phonenumbers.Parse(phone, countryCode)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number")
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// Digits strips everything except digits and a leading plus sign. Used as the
// search fallback when a number does not parse.
func Digits(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SearchKey returns the normalized form used for prefix matching: E.164 when
// the number parses, bare digits otherwise.
func SearchKey(phone, countryCode string) string {
	if normalized, err := Normalize(phone, countryCode); err == nil {
		return normalized
	}
	return Digits(phone)
}
