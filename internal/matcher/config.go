package matcher

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"invoice-payment-matching-service/internal/normalize"
)

// MatchingConfig holds all tunable parameters for the matching engine
type MatchingConfig struct {
	// Confidence thresholds
	// AutoMatchThreshold is the minimum confidence for an automatic match
	AutoMatchThreshold float64 `json:"auto_match_threshold"`
	// SuggestionThreshold is the minimum confidence for a suggestion
	// requiring human confirmation
	SuggestionThreshold float64 `json:"suggestion_threshold"`

	// Weights for the fallback weighted-sum formula; must sum to 1.0
	AmountWeight        float64 `json:"amount_weight"`
	InvoiceNumberWeight float64 `json:"invoice_number_weight"`
	NameWeight          float64 `json:"name_weight"`
	TaxIDWeight         float64 `json:"tax_id_weight"`
	DateWeight          float64 `json:"date_weight"`

	// SubaccountBoostFactor scales the confidence boost from a partial
	// sub-account match applied on top of the weighted sum
	SubaccountBoostFactor float64 `json:"subaccount_boost_factor"`

	// Candidate search parameters
	// AmountBucketWidth is the width of each amount bucket in currency units
	AmountBucketWidth float64 `json:"amount_bucket_width"`
	// AmountTolerancePercent is the candidate window as a fraction of the
	// invoice amount
	AmountTolerancePercent float64 `json:"amount_tolerance_percent"`
	// MinAmountTolerance is the candidate window floor in currency units
	MinAmountTolerance float64 `json:"min_amount_tolerance"`

	// Resource guard limits
	MaxRecords     int `json:"max_records"`
	MaxComparisons int `json:"max_comparisons"`

	// Result size caps
	MaxSuggestions      int `json:"max_suggestions"`
	MaxGroupSuggestions int `json:"max_group_suggestions"`

	// Group matching parameters
	// GroupAmountTolerance is the relative tolerance when comparing a
	// payment amount against a group total
	GroupAmountTolerance float64 `json:"group_amount_tolerance"`
	// MaxMonthsToGroup bounds the span of multi-month groups
	MaxMonthsToGroup int `json:"max_months_to_group"`
	// MaxGroupSize bounds how many invoices one group may contain
	MaxGroupSize int `json:"max_group_size"`

	// NumberShape is the invoice numbering convention used for structural
	// matching and free-text extraction
	NumberShape normalize.NumberShape `json:"-"`
}

// DefaultMatchingConfig returns a matching configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AutoMatchThreshold:     0.85,
		SuggestionThreshold:    0.65,
		AmountWeight:           0.35,
		InvoiceNumberWeight:    0.30,
		NameWeight:             0.15,
		TaxIDWeight:            0.10,
		DateWeight:             0.10,
		SubaccountBoostFactor:  0.30,
		AmountBucketWidth:      100,
		AmountTolerancePercent: 0.10,
		MinAmountTolerance:     50,
		MaxRecords:             20000,
		MaxComparisons:         10000000,
		MaxSuggestions:         200,
		MaxGroupSuggestions:    50,
		GroupAmountTolerance:   0.001,
		MaxMonthsToGroup:       3,
		MaxGroupSize:           12,
		NumberShape:            normalize.DefaultNumberShape,
	}
}

// StrictMatchingConfig returns a configuration with tight thresholds for
// environments where false auto-matches are costlier than manual review
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.AutoMatchThreshold = 0.92
	config.SuggestionThreshold = 0.75
	config.AmountTolerancePercent = 0.05
	config.MaxMonthsToGroup = 1
	return config
}

// RelaxedMatchingConfig returns a configuration with loose thresholds for
// noisy imports where surfacing more suggestions is preferred
func RelaxedMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.AutoMatchThreshold = 0.80
	config.SuggestionThreshold = 0.55
	config.AmountTolerancePercent = 0.15
	config.MaxSuggestions = 500
	return config
}

// Validate checks if the configuration is valid
func (c *MatchingConfig) Validate() error {
	if c.AutoMatchThreshold <= 0 || c.AutoMatchThreshold > 1 {
		return fmt.Errorf("auto match threshold must be between 0 and 1, got %f", c.AutoMatchThreshold)
	}

	if c.SuggestionThreshold <= 0 || c.SuggestionThreshold > 1 {
		return fmt.Errorf("suggestion threshold must be between 0 and 1, got %f", c.SuggestionThreshold)
	}

	if c.SuggestionThreshold > c.AutoMatchThreshold {
		return fmt.Errorf("suggestion threshold (%f) cannot exceed auto match threshold (%f)",
			c.SuggestionThreshold, c.AutoMatchThreshold)
	}

	weights := []float64{c.AmountWeight, c.InvoiceNumberWeight, c.NameWeight, c.TaxIDWeight, c.DateWeight}
	total := 0.0
	for _, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("all weights must be between 0 and 1")
		}
		total += w
	}
	if math.Abs(total-1.0) > 0.01 {
		return fmt.Errorf("weights must sum to 1.0, got %f", total)
	}

	if c.SubaccountBoostFactor < 0 || c.SubaccountBoostFactor > 1 {
		return fmt.Errorf("subaccount boost factor must be between 0 and 1, got %f", c.SubaccountBoostFactor)
	}

	if c.AmountBucketWidth <= 0 {
		return fmt.Errorf("amount bucket width must be positive, got %f", c.AmountBucketWidth)
	}

	if c.AmountTolerancePercent < 0 || c.AmountTolerancePercent > 1 {
		return fmt.Errorf("amount tolerance percent must be between 0 and 1, got %f", c.AmountTolerancePercent)
	}

	if c.MinAmountTolerance < 0 {
		return fmt.Errorf("minimum amount tolerance cannot be negative, got %f", c.MinAmountTolerance)
	}

	if c.MaxRecords <= 0 {
		return fmt.Errorf("max records must be positive, got %d", c.MaxRecords)
	}

	if c.MaxComparisons <= 0 {
		return fmt.Errorf("max comparisons must be positive, got %d", c.MaxComparisons)
	}

	if c.MaxSuggestions <= 0 {
		return fmt.Errorf("max suggestions must be positive, got %d", c.MaxSuggestions)
	}

	if c.MaxGroupSuggestions <= 0 {
		return fmt.Errorf("max group suggestions must be positive, got %d", c.MaxGroupSuggestions)
	}

	if c.GroupAmountTolerance < 0 || c.GroupAmountTolerance > 0.1 {
		return fmt.Errorf("group amount tolerance must be between 0 and 0.1, got %f", c.GroupAmountTolerance)
	}

	if c.MaxMonthsToGroup < 1 {
		return fmt.Errorf("max months to group must be at least 1, got %d", c.MaxMonthsToGroup)
	}

	if c.MaxGroupSize < 2 {
		return fmt.Errorf("max group size must be at least 2, got %d", c.MaxGroupSize)
	}

	if c.NumberShape == nil {
		return fmt.Errorf("number shape cannot be nil")
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *MatchingConfig) Clone() *MatchingConfig {
	clone := *c
	return &clone
}

// GetAmountTolerance returns the candidate window half-width for an
// invoice amount: a percentage of the amount with an absolute floor, wide
// enough that any pair the scoring rules could still accept stays inside
// the window.
func (c *MatchingConfig) GetAmountTolerance(amount decimal.Decimal) decimal.Decimal {
	relative := amount.Abs().Mul(decimal.NewFromFloat(c.AmountTolerancePercent))
	floor := decimal.NewFromFloat(c.MinAmountTolerance)
	if relative.LessThan(floor) {
		return floor
	}
	return relative
}
