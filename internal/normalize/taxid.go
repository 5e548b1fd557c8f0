package normalize

import (
	"regexp"
	"strings"
)

// taxIDLength is the digit length of the national tax identifier (NIP).
const taxIDLength = 10

var taxIDMetadataPattern = regexp.MustCompile(`(?i)NIP[\s:.\-]*([A-Z]{2})?[\s:.\-]*([0-9][0-9\s\-]*[0-9]|[0-9])`)

// TaxID reduces a tax identifier to its canonical digit form. Country
// prefixes ("PL1234567890") and separators ("123-456-78-90") are stripped.
// Returns the empty string when the input does not reduce to a valid
// identifier, so callers can treat it as absent evidence.
func TaxID(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimPrefix(s, "PL")

	digits := Digits(s)
	if len(digits) != taxIDLength {
		return ""
	}
	return digits
}

// TaxIDFromMetadata locates a tax identifier embedded in a bank metadata
// tag inside free text ("NIP: PL 123-456-78-90"). The identifier is the
// trailing block of digits of the national length after the marker.
func TaxIDFromMetadata(text string) string {
	m := taxIDMetadataPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}

	digits := Digits(m[2])
	if len(digits) < taxIDLength {
		return ""
	}
	return digits[len(digits)-taxIDLength:]
}

// Digits strips every non-digit character from a string.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
