package matcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/internal/normalize"
)

// GroupMatchSuggestion proposes that one payment settles several invoices
// of the same buyer at once. Group suggestions are never auto-applied;
// confirming one fans out to one confirmed match per invoice, all sharing
// the same payment.
type GroupMatchSuggestion struct {
	Invoices           []*models.Invoice `json:"invoices"`
	Payment            *models.Payment   `json:"payment"`
	Confidence         float64           `json:"confidence"`
	TotalInvoiceAmount decimal.Decimal   `json:"total_invoice_amount"`
	BuyerName          string            `json:"buyer_name"`
	BuyerTaxID         string            `json:"buyer_tax_id,omitempty"`
	PeriodStart        time.Time         `json:"period_start"`
	PeriodEnd          time.Time         `json:"period_end"`
	Reasons            []string          `json:"reasons"`
}

// invoiceGroup is one candidate set of same-buyer invoices under sum
// matching.
type invoiceGroup struct {
	buyerKey string
	invoices []*models.Invoice
	months   int
}

// findGroupMatches looks for payments that settle several invoices at
// once. Invoices are first grouped per buyer and issue month; a second
// pass chains consecutive months for the leftovers, at a confidence
// penalty since a wider span is weaker evidence of a single payment
// intent.
func (e *Engine) findGroupMatches(invoices []*models.Invoice, payments []*models.Payment, maxMonths int) []*GroupMatchSuggestion {
	usedInvoices := make(map[string]bool)
	usedPayments := make(map[string]bool)

	var suggestions []*GroupMatchSuggestion

	for _, group := range e.singleMonthGroups(invoices) {
		if len(suggestions) >= e.config.MaxGroupSuggestions {
			return suggestions
		}
		if s := e.matchGroup(group, payments, usedInvoices, usedPayments); s != nil {
			suggestions = append(suggestions, s)
		}
	}

	if maxMonths > 1 {
		remaining := make([]*models.Invoice, 0, len(invoices))
		for _, invoice := range invoices {
			if !usedInvoices[invoice.ID] {
				remaining = append(remaining, invoice)
			}
		}

		for _, group := range e.multiMonthGroups(remaining, maxMonths) {
			if len(suggestions) >= e.config.MaxGroupSuggestions {
				return suggestions
			}
			if s := e.matchGroup(group, payments, usedInvoices, usedPayments); s != nil {
				suggestions = append(suggestions, s)
			}
		}
	}

	return suggestions
}

// matchGroup searches the still-unused payments for one whose amount
// equals the group total and whose sender identity matches the buyer. On
// a hit the group's invoices and the payment are consumed so later groups
// cannot reuse them.
func (e *Engine) matchGroup(group invoiceGroup, payments []*models.Payment, usedInvoices, usedPayments map[string]bool) *GroupMatchSuggestion {
	for _, invoice := range group.invoices {
		if usedInvoices[invoice.ID] {
			return nil
		}
	}

	total := decimal.Zero
	for _, invoice := range group.invoices {
		total = total.Add(invoice.GrossAmount)
	}

	currency := normalizeCurrency(group.invoices[0].Currency)
	first := group.invoices[0]

	for _, payment := range payments {
		if usedPayments[payment.ID] || normalizeCurrency(payment.Currency) != currency {
			continue
		}

		if !models.SameAmountWithinTolerance(total, payment.Amount, e.config.GroupAmountTolerance) {
			continue
		}

		buyerScore, buyerReason := e.groupBuyerScore(first, payment)
		if buyerScore == 0 {
			continue
		}

		suggestion := e.buildGroupSuggestion(group, payment, total, buyerScore, buyerReason)

		usedPayments[payment.ID] = true
		for _, invoice := range group.invoices {
			usedInvoices[invoice.ID] = true
		}
		return suggestion
	}

	return nil
}

// groupBuyerScore verifies that the payment's sender is the group's
// buyer. Checks run in decreasing order of strength: sub-account suffix,
// tax ID in the payment text or sender name, fuzzy name match, then the
// shared-words fallback. Returns 0 when no check passes.
func (e *Engine) groupBuyerScore(invoice *models.Invoice, payment *models.Payment) (float64, string) {
	if normalize.CompareSubaccounts(invoice.BuyerSubaccount, paymentSubaccount(payment)) >= 0.9 {
		return 1.0, "sub-account identifies the buyer"
	}

	if taxID := normalize.TaxID(invoice.BuyerTaxID); taxID != "" {
		if score := calculateTaxIDScore(invoice.BuyerTaxID, payment); score >= 0.9 {
			return score, "buyer tax ID found in payment text"
		}
		if normalize.Digits(payment.SenderName) == taxID {
			return 1.0, "buyer tax ID in sender name"
		}
	}

	if score := normalize.CompareCompanyNames(invoice.BuyerName, payment.SenderName); score >= 0.6 {
		return score, "sender name matches buyer"
	}

	if score := normalize.WordOverlapScore(invoice.BuyerName, payment.SenderName); score > 0 {
		return score, "sender name shares words with buyer"
	}

	return 0, ""
}

func (e *Engine) buildGroupSuggestion(group invoiceGroup, payment *models.Payment, total decimal.Decimal, buyerScore float64, buyerReason string) *GroupMatchSuggestion {
	confidence := 0.8
	reasons := []string{
		fmt.Sprintf("payment settles %d invoices totaling %s %s", len(group.invoices), total.StringFixed(2), payment.Currency),
		buyerReason,
	}

	if total.Equal(payment.Amount) {
		confidence += 0.1
		reasons = append(reasons, "exact amount match")
	}

	confidence += 0.1 * buyerScore

	numbersCited := 0
	for _, invoice := range group.invoices {
		if e.calculateInvoiceNumberScore(invoice.Number, payment) >= 0.9 {
			numbersCited++
		}
	}
	if numbersCited > 3 {
		numbersCited = 3
	}
	if numbersCited > 0 {
		confidence += 0.05 * float64(numbersCited)
		reasons = append(reasons, fmt.Sprintf("%d invoice numbers cited in payment title", numbersCited))
	}

	if group.months > 1 {
		// Spanning several months is weaker evidence of one payment
		// intent.
		confidence *= 0.95
		reasons = append(reasons, fmt.Sprintf("invoices span %d consecutive months", group.months))
	}

	// Group matches always require explicit confirmation, so confidence
	// stays below the certainty band.
	if confidence > 0.95 {
		confidence = 0.95
	}

	start, end := periodBounds(group.invoices)

	return &GroupMatchSuggestion{
		Invoices:           group.invoices,
		Payment:            payment,
		Confidence:         confidence,
		TotalInvoiceAmount: total,
		BuyerName:          group.invoices[0].BuyerName,
		BuyerTaxID:         normalize.TaxID(group.invoices[0].BuyerTaxID),
		PeriodStart:        start,
		PeriodEnd:          end,
		Reasons:            reasons,
	}
}

// singleMonthGroups partitions invoices by buyer identity, currency and
// issue month, keeping only groups of two or more, in a deterministic
// order. Currency is part of the key: a group total is only meaningful
// when every member is denominated in the currency the payment will be
// compared in.
func (e *Engine) singleMonthGroups(invoices []*models.Invoice) []invoiceGroup {
	type groupKey struct {
		buyer    string
		currency string
		month    time.Time
	}

	byKey := make(map[groupKey][]*models.Invoice)
	for _, invoice := range invoices {
		buyer := buyerKey(invoice)
		if buyer == "" {
			continue
		}
		key := groupKey{buyer: buyer, currency: normalizeCurrency(invoice.Currency), month: invoice.IssueMonth()}
		byKey[key] = append(byKey[key], invoice)
	}

	keys := make([]groupKey, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].buyer != keys[j].buyer {
			return keys[i].buyer < keys[j].buyer
		}
		if keys[i].currency != keys[j].currency {
			return keys[i].currency < keys[j].currency
		}
		return keys[i].month.Before(keys[j].month)
	})

	var groups []invoiceGroup
	for _, key := range keys {
		members := byKey[key]
		if len(members) < 2 || len(members) > e.config.MaxGroupSize {
			continue
		}
		sortInvoices(members)
		groups = append(groups, invoiceGroup{buyerKey: key.buyer, invoices: members, months: 1})
	}
	return groups
}

// multiMonthGroups chains each buyer's remaining invoices across runs of
// consecutive calendar months, up to the configured span. Like the
// single-month pass, buyers are split per currency so totals never mix
// denominations.
func (e *Engine) multiMonthGroups(invoices []*models.Invoice, maxMonths int) []invoiceGroup {
	type buyerCurrency struct {
		buyer    string
		currency string
	}

	byBuyer := make(map[buyerCurrency][]*models.Invoice)
	for _, invoice := range invoices {
		if buyer := buyerKey(invoice); buyer != "" {
			key := buyerCurrency{buyer: buyer, currency: normalizeCurrency(invoice.Currency)}
			byBuyer[key] = append(byBuyer[key], invoice)
		}
	}

	buyers := make([]buyerCurrency, 0, len(byBuyer))
	for key := range byBuyer {
		buyers = append(buyers, key)
	}
	sort.Slice(buyers, func(i, j int) bool {
		if buyers[i].buyer != buyers[j].buyer {
			return buyers[i].buyer < buyers[j].buyer
		}
		return buyers[i].currency < buyers[j].currency
	})

	var groups []invoiceGroup
	for _, buyer := range buyers {
		byMonth := make(map[time.Time][]*models.Invoice)
		for _, invoice := range byBuyer[buyer] {
			month := invoice.IssueMonth()
			byMonth[month] = append(byMonth[month], invoice)
		}

		months := make([]time.Time, 0, len(byMonth))
		for month := range byMonth {
			months = append(months, month)
		}
		sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

		for start := 0; start < len(months); start++ {
			for span := 2; span <= maxMonths && start+span <= len(months); span++ {
				window := months[start : start+span]
				if !consecutiveMonths(window) {
					break
				}

				var members []*models.Invoice
				for _, month := range window {
					members = append(members, byMonth[month]...)
				}
				if len(members) < 2 || len(members) > e.config.MaxGroupSize {
					continue
				}
				sortInvoices(members)
				groups = append(groups, invoiceGroup{buyerKey: buyer.buyer, invoices: members, months: span})
			}
		}
	}
	return groups
}

// buyerKey identifies a buyer for grouping: the canonical tax ID when
// present, otherwise the normalized buyer name.
func buyerKey(invoice *models.Invoice) string {
	if taxID := normalize.TaxID(invoice.BuyerTaxID); taxID != "" {
		return taxID
	}
	return normalize.CompanyName(invoice.BuyerName)
}

func consecutiveMonths(months []time.Time) bool {
	for i := 1; i < len(months); i++ {
		if !months[i-1].AddDate(0, 1, 0).Equal(months[i]) {
			return false
		}
	}
	return true
}

func periodBounds(invoices []*models.Invoice) (time.Time, time.Time) {
	start := invoices[0].IssueMonth()
	end := start
	for _, invoice := range invoices[1:] {
		month := invoice.IssueMonth()
		if month.Before(start) {
			start = month
		}
		if month.After(end) {
			end = month
		}
	}
	return start, end
}

func sortInvoices(invoices []*models.Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		if !invoices[i].IssueDate.Equal(invoices[j].IssueDate) {
			return invoices[i].IssueDate.Before(invoices[j].IssueDate)
		}
		return invoices[i].ID < invoices[j].ID
	})
}
