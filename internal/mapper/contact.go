package mapper

import (
	"regexp"
	"strings"

	"github.com/example/c2s-leadsync/internal/util"
)

// DefaultCountryCode is prepended to domestic phone numbers.
const DefaultCountryCode = "55"

const (
	maxDomesticDigits = 11
	minFullDigits     = 12
	maxFullDigits     = 13
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizePhone strips every non-digit from raw and prefixes domestic
// numbers with countryCode. The second return value is false when the result
// does not look like a full number (12–13 digits starting with the country
// code); such numbers are still returned.
func NormalizePhone(raw, countryCode string) (string, bool) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	digits := strings.TrimLeft(util.DigitsOnly(raw), "0")
	if digits == "" {
		return "", false
	}
	if len(digits) <= maxDomesticDigits {
		digits = countryCode + digits
	}
	return digits, PlausiblePhone(digits, countryCode)
}

// PlausiblePhone reports whether digits has the expected full length and
// country prefix.
func PlausiblePhone(digits, countryCode string) bool {
	if !strings.HasPrefix(digits, countryCode) {
		return false
	}
	return len(digits) >= minFullDigits && len(digits) <= maxFullDigits
}

// SanitizeEmail trims and lowercases raw. Strings that do not match
// local@domain.tld collapse to "".
func SanitizeEmail(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(trimmed) {
		return ""
	}
	return trimmed
}
