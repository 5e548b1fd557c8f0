package matcher

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/internal/normalize"
)

// ScoreBreakdown carries the per-criterion sub-scores behind a confidence
// value.
type ScoreBreakdown struct {
	Subaccount    float64 `json:"subaccount"`
	Amount        float64 `json:"amount"`
	InvoiceNumber float64 `json:"invoiceNumber"`
	Name          float64 `json:"name"`
	TaxID         float64 `json:"taxId"`
	Date          float64 `json:"date"`
}

// MatchResult represents a scored invoice/payment pair. Results are
// computed fresh on every run and never persisted by the engine itself.
type MatchResult struct {
	Invoice    *models.Invoice `json:"invoice"`
	Payment    *models.Payment `json:"payment"`
	Confidence float64         `json:"confidence"`
	Breakdown  ScoreBreakdown  `json:"breakdown"`
	Reasons    []string        `json:"reasons"`
}

// scorePair computes the confidence for one invoice/payment pair. The
// confidence is always computed, even far below any threshold; filtering
// is the resolver's job.
func (e *Engine) scorePair(invoice *models.Invoice, payment *models.Payment) *MatchResult {
	breakdown := ScoreBreakdown{
		Subaccount:    normalize.CompareSubaccounts(invoice.BuyerSubaccount, paymentSubaccount(payment)),
		Amount:        calculateAmountScore(invoice.GrossAmount, payment.Amount),
		InvoiceNumber: e.calculateInvoiceNumberScore(invoice.Number, payment),
		Name:          normalize.CompareCompanyNames(invoice.BuyerName, payment.SenderName),
		TaxID:         calculateTaxIDScore(invoice.BuyerTaxID, payment),
		Date:          calculateDateScore(payment.TransactionDate, invoice.DueDate),
	}

	result := &MatchResult{
		Invoice:   invoice,
		Payment:   payment,
		Breakdown: breakdown,
	}

	result.Confidence = e.combineScores(invoice, payment, breakdown, result)
	result.Reasons = append(e.generateReasons(breakdown), result.Reasons...)

	e.tracer.ScoredPair(result)
	return result
}

// combineScores walks the decision tree; the first applicable rule wins.
// Warning reasons produced here are appended to result.Reasons and later
// merged after the criterion reasons.
func (e *Engine) combineScores(invoice *models.Invoice, payment *models.Payment, b ScoreBreakdown, result *MatchResult) float64 {
	// An exact sub-account hit identifies the buyer with certainty, but
	// the payment could settle any of that buyer's recurring invoices, so
	// corroboration by number or by amount+date is still required.
	if b.Subaccount >= 1.0 {
		if b.InvoiceNumber >= 0.9 {
			e.tracer.RuleFired(invoice.ID, payment.ID, "subaccount+number")
			return 1.0
		}

		if b.Amount >= 0.99 && daysBetween(payment.TransactionDate, invoice.DueDate) <= 30 {
			e.tracer.RuleFired(invoice.ID, payment.ID, "subaccount+amount+date")
			return 1.0
		}

		e.tracer.RuleFired(invoice.ID, payment.ID, "subaccount-only")
		confidence := 0.7 + 0.15*b.Amount + 0.10*b.Date
		return math.Min(0.84, confidence)
	}

	if b.InvoiceNumber >= 0.9 && b.Amount >= 0.9 {
		if b.Name >= 0.5 {
			e.tracer.RuleFired(invoice.ID, payment.ID, "number+amount+name")
			return 1.0
		}

		// Number and amount align but the sender name does not: possibly
		// an intermediary or a wrong beneficiary, so manual review is
		// forced regardless of how strong the other signals are.
		e.tracer.RuleFired(invoice.ID, payment.ID, "number+amount/name-mismatch")
		result.Reasons = append(result.Reasons,
			"warning: sender name does not match buyer, manual review required")
		return 0.80
	}

	if b.InvoiceNumber >= 0.95 && b.Name >= 0.8 && b.Amount >= 0.5 {
		// An exact number citation plus a strong name match is trusted
		// even when the amount diverges (partial payment, bank fees),
		// scaled down with the divergence.
		e.tracer.RuleFired(invoice.ID, payment.ID, "number+name/amount-divergence")
		return math.Min(0.95, 0.85+(b.Amount-0.5)*0.25)
	}

	e.tracer.RuleFired(invoice.ID, payment.ID, "weighted-sum")
	confidence := b.Amount*e.config.AmountWeight +
		b.InvoiceNumber*e.config.InvoiceNumberWeight +
		b.Name*e.config.NameWeight +
		b.TaxID*e.config.TaxIDWeight +
		b.Date*e.config.DateWeight

	if b.Subaccount > 0 {
		confidence = math.Min(1.0, confidence+b.Subaccount*e.config.SubaccountBoostFactor)
	}

	// A name mismatch must never silently auto-confirm unless the tax ID
	// independently proves common identity.
	if b.Name < 0.5 && b.TaxID < 0.9 && confidence >= e.config.AutoMatchThreshold {
		confidence = e.config.AutoMatchThreshold - 0.01
		result.Reasons = append(result.Reasons,
			"warning: confidence reduced, sender name does not match buyer")
	}

	return confidence
}

// calculateAmountScore scores the closeness of two amounts in tiers, from
// exact equality down to a 10% divergence. The divergence is relative to
// the invoice amount, the same base the candidate index windows on, so
// every pair this function accepts is inside the index window.
func calculateAmountScore(invoiceAmount, paymentAmount decimal.Decimal) float64 {
	if invoiceAmount.Equal(paymentAmount) {
		return 1.0
	}

	base := invoiceAmount.Abs()
	if base.IsZero() {
		base = paymentAmount.Abs()
	}
	if base.IsZero() {
		return 0
	}

	ratio, _ := invoiceAmount.Sub(paymentAmount).Abs().Div(base).Float64()
	switch {
	case ratio <= 0.001:
		return 0.99
	case ratio <= 0.01:
		return 0.9
	case ratio <= 0.05:
		return 0.7
	case ratio <= 0.10:
		return 0.5
	default:
		return 0
	}
}

// calculateDateScore scores how close the payment date is to the invoice
// due date. Payments commonly arrive within a few days either side of the
// due date; anything beyond three months is near-noise but never zero, a
// very late payment is still possible.
func calculateDateScore(paymentDate, dueDate time.Time) float64 {
	days := daysBetween(paymentDate, dueDate)
	switch {
	case days <= 8:
		return 1.0
	case days <= 13:
		return 0.9
	case days <= 19:
		return 0.8
	case days <= 35:
		return 0.6
	case days <= 65:
		return 0.4
	case days <= 95:
		return 0.2
	default:
		return 0.1
	}
}

// calculateInvoiceNumberScore scores the evidence that the payment's free
// text references this invoice number, layered from structural matches
// down to weak digit coincidences.
func (e *Engine) calculateInvoiceNumberScore(invoiceNumber string, payment *models.Payment) float64 {
	if strings.TrimSpace(invoiceNumber) == "" {
		return 0
	}

	shape := e.config.NumberShape
	text := payment.SearchText()

	// The whole title may simply be the number, possibly with spacing
	// damage introduced by the bank. That is the strongest citation form,
	// on par with an exact citation found inside longer text.
	if shape.Match(invoiceNumber, text) {
		return 0.95
	}

	normalized := shape.Normalize(invoiceNumber)
	invoiceParts, hasParts := shape.Parts(invoiceNumber)

	for _, found := range shape.FindAll(text) {
		if found == normalized {
			return 0.95
		}

		if hasParts {
			// Sequence and date part must both agree. A bare sequence
			// overlap ("37/12/2025" vs a title containing "7/12/2025")
			// or a matching sequence from another month is skipped, not
			// degraded.
			foundParts, ok := shape.Parts(found)
			if ok && foundParts.Sequence == invoiceParts.Sequence && foundParts.DatePart == invoiceParts.DatePart {
				return 0.95
			}
		}
	}

	invoiceDigits := normalize.Digits(invoiceNumber)
	textDigits := normalize.Digits(text)

	if invoiceDigits != "" && invoiceDigits == textDigits {
		return 0.7
	}

	if hasParts && invoiceParts.Prefix != "" &&
		strings.Contains(" "+strings.ToUpper(normalize.FlattenSpaces(text))+" ", " "+invoiceParts.Prefix+" ") {
		return 0.1
	}

	if len(invoiceDigits) >= 4 && strings.Contains(textDigits, invoiceDigits[len(invoiceDigits)-4:]) {
		return 0.1
	}

	return 0
}

// calculateTaxIDScore scores whether the buyer's tax identifier appears in
// the payment's free text, either via a bank metadata tag or verbatim.
func calculateTaxIDScore(buyerTaxID string, payment *models.Payment) float64 {
	taxID := normalize.TaxID(buyerTaxID)
	if taxID == "" {
		return 0
	}

	if normalize.TaxIDFromMetadata(payment.ExtendedTitle) == taxID ||
		normalize.TaxIDFromMetadata(payment.Title) == taxID {
		return 1.0
	}

	text := payment.SearchText()
	if exactDigitRun(text, taxID) {
		return 1.0
	}

	if strings.Contains(normalize.Digits(text), taxID) {
		return 0.9
	}

	return 0
}

// exactDigitRun reports whether the digit string occurs in the text as a
// standalone run, not embedded in a longer number. A plain scan; this
// runs once per scored pair, so no pattern compilation here.
func exactDigitRun(text, digits string) bool {
	if digits == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], digits)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(digits)
		beforeOK := start == 0 || !isDigitByte(text[start-1])
		afterOK := end == len(text) || !isDigitByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		from = start + 1
	}
}

func isDigitByte(b byte) bool {
	return b >= '0' && b <= '9'
}

// paymentSubaccount returns the payment-side account identifier to compare
// against the invoice's buyer sub-account.
func paymentSubaccount(payment *models.Payment) string {
	if payment.SenderSubaccount != "" {
		return payment.SenderSubaccount
	}
	return payment.SenderAccount
}

// generateReasons produces the ordered human-readable justification list
// for a scored pair.
func (e *Engine) generateReasons(b ScoreBreakdown) []string {
	var reasons []string

	if b.Subaccount >= 1.0 {
		reasons = append(reasons, "sub-account identifies the buyer")
	} else if b.Subaccount > 0 {
		reasons = append(reasons, "partial sub-account match")
	}

	switch {
	case b.Amount >= 1.0:
		reasons = append(reasons, "exact amount match")
	case b.Amount >= 0.9:
		reasons = append(reasons, "amount matches within 1%")
	case b.Amount >= 0.5:
		reasons = append(reasons, fmt.Sprintf("amount similarity %.0f%%", b.Amount*100))
	default:
		reasons = append(reasons, "amounts differ significantly")
	}

	switch {
	case b.InvoiceNumber >= 0.9:
		reasons = append(reasons, "invoice number found in payment title")
	case b.InvoiceNumber >= 0.7:
		reasons = append(reasons, "payment title digits match invoice number")
	case b.InvoiceNumber > 0:
		reasons = append(reasons, "weak invoice number signal")
	}

	switch {
	case b.Name >= 0.9:
		reasons = append(reasons, "sender name matches buyer")
	case b.Name >= 0.5:
		reasons = append(reasons, "sender name similar to buyer")
	default:
		reasons = append(reasons, "sender name does not match buyer")
	}

	if b.TaxID >= 1.0 {
		reasons = append(reasons, "buyer tax ID found in payment text")
	} else if b.TaxID >= 0.9 {
		reasons = append(reasons, "buyer tax ID digits present in payment text")
	}

	if b.Date >= 0.8 {
		reasons = append(reasons, "payment date close to due date")
	} else if b.Date <= 0.2 {
		reasons = append(reasons, "payment date far from due date")
	}

	return reasons
}

func daysBetween(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}
