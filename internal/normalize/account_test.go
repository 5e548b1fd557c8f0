package normalize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubaccountSuffix(t *testing.T) {
	assert.Equal(t, "123456789012", SubaccountSuffix("PL61 1090 1014 1234 5678 9012"))
	assert.Equal(t, "345678901234", SubaccountSuffix("12 3456 7890 1234"))
	assert.Equal(t, "1234", SubaccountSuffix("12-34"))
	assert.Equal(t, "", SubaccountSuffix("no digits"))
}

func TestCompareSubaccounts(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"61109010140000071219812874", "61 1090 1014 0000 0712 1981 2874", 1.0},
		{"0000 0712 1981 2874", "61109010140000071219812874", 1.0},
		{"1981 2874", "61109010140000071219812874", 0.9},
		{"61109010140000071219812874", "99999999999999999999999999", 0},
		{"", "61109010140000071219812874", 0},
		{"", "", 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_vs_%s", tt.a, tt.b), func(t *testing.T) {
			assert.InDelta(t, tt.want, CompareSubaccounts(tt.a, tt.b), 0.001)
		})
	}
}

// Formatting differences must never change the score when the trailing
// twelve digits agree.
func TestCompareSubaccountsSuffixProperty(t *testing.T) {
	variants := []string{
		"000007121981 2874",
		"0000-0712-1981-2874",
		"PL61 1090 1014 0000 0712 1981 2874",
		"61109010140000071219812874",
	}

	for i, a := range variants {
		for j, b := range variants {
			assert.InDelta(t, 1.0, CompareSubaccounts(a, b), 0.001, "variants %d vs %d", i, j)
		}
	}
}
