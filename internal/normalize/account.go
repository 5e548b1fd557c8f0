package normalize

import "strings"

// subaccountSuffixLength is the longest suffix of a sub-account number
// that is stable across the notations banks use for virtual accounts.
const subaccountSuffixLength = 12

// SubaccountSuffix strips non-digit characters from an account string and
// keeps the trailing digits up to the stable suffix length.
func SubaccountSuffix(s string) string {
	digits := Digits(s)
	if len(digits) > subaccountSuffixLength {
		return digits[len(digits)-subaccountSuffixLength:]
	}
	return digits
}

// CompareSubaccounts scores two bank sub-account identifiers. Equal
// trailing suffixes score 1.0 regardless of formatting; when the shorter
// digit string is a suffix of the longer one the score is 0.9; anything
// else scores 0. Missing values score 0.
func CompareSubaccounts(a, b string) float64 {
	da := SubaccountSuffix(a)
	db := SubaccountSuffix(b)
	if da == "" || db == "" {
		return 0
	}

	if da == db {
		return 1.0
	}

	shorter, longer := da, db
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < len(longer) && strings.HasSuffix(longer, shorter) {
		return 0.9
	}

	return 0
}
