package matcher

import (
	"strings"

	"github.com/shopspring/decimal"

	"invoice-payment-matching-service/internal/models"
)

// bucketKey identifies one amount bucket within one currency.
type bucketKey struct {
	currency string
	bucket   int64
}

// PaymentIndex buckets payments by currency and amount range so candidate
// retrieval avoids the full invoices-by-payments cross product. Buckets
// are keyed by floor(amount / bucketWidth); a lookup walks every bucket
// the tolerance window spans, so the pruning never drops a pair the
// scoring rules could still accept.
type PaymentIndex struct {
	config  *MatchingConfig
	buckets map[bucketKey][]*models.Payment
	size    int
}

// NewPaymentIndex builds an index over the given payments. Payment order
// within a bucket follows input order, which keeps candidate retrieval
// deterministic across runs.
func NewPaymentIndex(config *MatchingConfig, payments []*models.Payment) *PaymentIndex {
	idx := &PaymentIndex{
		config:  config,
		buckets: make(map[bucketKey][]*models.Payment),
	}

	for _, p := range payments {
		key := bucketKey{
			currency: normalizeCurrency(p.Currency),
			bucket:   idx.bucketFor(p.Amount),
		}
		idx.buckets[key] = append(idx.buckets[key], p)
		idx.size++
	}

	return idx
}

// Size returns the number of indexed payments.
func (idx *PaymentIndex) Size() int {
	return idx.size
}

// Candidates returns the payments worth scoring against the invoice: same
// currency, amount within the configured tolerance window around the
// invoice gross amount. Results are ordered by bucket then input order.
func (idx *PaymentIndex) Candidates(invoice *models.Invoice) []*models.Payment {
	tolerance := idx.config.GetAmountTolerance(invoice.GrossAmount)
	low := idx.bucketFor(invoice.GrossAmount.Sub(tolerance))
	high := idx.bucketFor(invoice.GrossAmount.Add(tolerance))
	currency := normalizeCurrency(invoice.Currency)

	minAmount := invoice.GrossAmount.Sub(tolerance)
	maxAmount := invoice.GrossAmount.Add(tolerance)

	var candidates []*models.Payment
	for bucket := low; bucket <= high; bucket++ {
		for _, p := range idx.buckets[bucketKey{currency: currency, bucket: bucket}] {
			if p.Amount.GreaterThanOrEqual(minAmount) && p.Amount.LessThanOrEqual(maxAmount) {
				candidates = append(candidates, p)
			}
		}
	}

	return candidates
}

func (idx *PaymentIndex) bucketFor(amount decimal.Decimal) int64 {
	width := decimal.NewFromFloat(idx.config.AmountBucketWidth)
	return amount.Div(width).Floor().IntPart()
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
