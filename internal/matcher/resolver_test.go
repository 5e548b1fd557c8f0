package matcher

import (
	"fmt"
	"testing"

	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/pkg/errors"
)

func TestFindMatchesAutoMatch(t *testing.T) {
	engine := newTestEngine(t)

	invoices := []*models.Invoice{
		testInvoice("inv-1", "PS 17/12/2025", 1000.00, "ACME Sp. z o.o."),
	}
	payments := []*models.Payment{
		testPayment("pay-1", 1000.00, "Płatność za PS17/12/2025", "ACME Sp. z o.o."),
	}

	run, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	if len(run.AutoMatches) != 1 {
		t.Fatalf("expected 1 auto-match, got %d", len(run.AutoMatches))
	}
	if run.AutoMatches[0].Invoice.ID != "inv-1" || run.AutoMatches[0].Payment.ID != "pay-1" {
		t.Errorf("unexpected pairing: %s / %s", run.AutoMatches[0].Invoice.ID, run.AutoMatches[0].Payment.ID)
	}
	if len(run.UnmatchedInvoices) != 0 || len(run.UnmatchedPayments) != 0 {
		t.Errorf("expected no leftovers, got %d invoices and %d payments",
			len(run.UnmatchedInvoices), len(run.UnmatchedPayments))
	}
}

func TestFindMatchesNameMismatchStaysSuggestion(t *testing.T) {
	engine := newTestEngine(t)

	invoices := []*models.Invoice{
		testInvoice("inv-1", "PS 17/12/2025", 1000.00, "ACME Sp. z o.o."),
	}
	payments := []*models.Payment{
		testPayment("pay-1", 1000.00, "PS 17/12/2025", "Completely Different LLC"),
	}

	run, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	if len(run.AutoMatches) != 0 {
		t.Errorf("name mismatch must never auto-match, got %d auto-matches", len(run.AutoMatches))
	}
	if len(run.Suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(run.Suggestions))
	}
	if run.Suggestions[0].Confidence != 0.80 {
		t.Errorf("expected suggestion confidence 0.80, got %f", run.Suggestions[0].Confidence)
	}
}

func TestFindMatchesSkipsNonMatchable(t *testing.T) {
	engine := newTestEngine(t)

	paid := testInvoice("inv-paid", "PS 17/12/2025", 1000.00, "ACME Sp. z o.o.")
	paid.Status = models.StatusPaid
	proforma := testInvoice("inv-proforma", "PS 18/12/2025", 500.00, "ACME Sp. z o.o.")
	proforma.Kind = models.KindProforma

	payments := []*models.Payment{
		testPayment("pay-1", 1000.00, "PS 17/12/2025", "ACME Sp. z o.o."),
	}

	run, err := engine.FindMatches([]*models.Invoice{paid, proforma}, payments)
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	if len(run.AutoMatches) != 0 || len(run.Suggestions) != 0 {
		t.Error("paid and proforma invoices must not be matched")
	}
	if run.Summary.MatchableInvoices != 0 {
		t.Errorf("expected 0 matchable invoices, got %d", run.Summary.MatchableInvoices)
	}
}

// Two invoices competing for one payment: the higher-confidence pair wins,
// and no invoice or payment ID appears twice across auto-matches.
func TestFindMatchesOneToOneInvariant(t *testing.T) {
	engine := newTestEngine(t)

	invoices := []*models.Invoice{
		testInvoice("inv-1", "PS 17/12/2025", 1000.00, "ACME Sp. z o.o."),
		testInvoice("inv-2", "PS 18/12/2025", 1000.00, "ACME Sp. z o.o."),
	}
	payments := []*models.Payment{
		testPayment("pay-1", 1000.00, "PS 17/12/2025", "ACME Sp. z o.o."),
	}

	run, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	seenInvoices := make(map[string]bool)
	seenPayments := make(map[string]bool)
	for _, m := range run.AutoMatches {
		if seenInvoices[m.Invoice.ID] {
			t.Errorf("invoice %s claimed twice", m.Invoice.ID)
		}
		if seenPayments[m.Payment.ID] {
			t.Errorf("payment %s claimed twice", m.Payment.ID)
		}
		seenInvoices[m.Invoice.ID] = true
		seenPayments[m.Payment.ID] = true
	}

	if len(run.AutoMatches) != 1 {
		t.Fatalf("expected exactly 1 auto-match, got %d", len(run.AutoMatches))
	}
	if run.AutoMatches[0].Invoice.ID != "inv-1" {
		t.Errorf("expected the cited invoice to win the payment, got %s", run.AutoMatches[0].Invoice.ID)
	}
}

// No pair at or above the auto threshold may ever appear in suggestions.
func TestFindMatchesThresholdMonotonicity(t *testing.T) {
	engine := newTestEngine(t)

	var invoices []*models.Invoice
	var payments []*models.Payment
	for i := 0; i < 10; i++ {
		invoices = append(invoices, testInvoice(
			fmt.Sprintf("inv-%d", i), fmt.Sprintf("PS %d/12/2025", i+1), 1000.00+float64(i)*10, "ACME Sp. z o.o."))
		payments = append(payments, testPayment(
			fmt.Sprintf("pay-%d", i), 1000.00+float64(i)*10, fmt.Sprintf("PS %d/12/2025", i+1), "ACME Sp. z o.o."))
	}

	run, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	for _, s := range run.Suggestions {
		if s.Confidence >= engine.config.AutoMatchThreshold {
			t.Errorf("suggestion %s/%s has auto-level confidence %f",
				s.Invoice.ID, s.Payment.ID, s.Confidence)
		}
	}
	for _, m := range run.AutoMatches {
		if m.Confidence < engine.config.AutoMatchThreshold {
			t.Errorf("auto-match %s/%s below threshold: %f", m.Invoice.ID, m.Payment.ID, m.Confidence)
		}
	}
}

// Identical inputs must produce identical outputs, including ordering.
func TestFindMatchesIdempotence(t *testing.T) {
	engine := newTestEngine(t)

	var invoices []*models.Invoice
	var payments []*models.Payment
	for i := 0; i < 20; i++ {
		invoice := testInvoice(
			fmt.Sprintf("inv-%02d", i), fmt.Sprintf("PS %d/12/2025", i+1), 500.00+float64(i%5)*25, "ACME Sp. z o.o.")
		invoice.BuyerTaxID = "1234567890"
		invoices = append(invoices, invoice)
		payments = append(payments, testPayment(
			fmt.Sprintf("pay-%02d", i), 500.00+float64(i%5)*25, "przelew, NIP 1234567890", "ACME Sp. z o.o."))
	}

	first, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(first.AutoMatches) != len(second.AutoMatches) {
		t.Fatalf("auto-match counts differ: %d vs %d", len(first.AutoMatches), len(second.AutoMatches))
	}
	for i := range first.AutoMatches {
		a, b := first.AutoMatches[i], second.AutoMatches[i]
		if a.Invoice.ID != b.Invoice.ID || a.Payment.ID != b.Payment.ID {
			t.Errorf("auto-match %d differs: %s/%s vs %s/%s",
				i, a.Invoice.ID, a.Payment.ID, b.Invoice.ID, b.Payment.ID)
		}
	}

	if len(first.Suggestions) != len(second.Suggestions) {
		t.Fatalf("suggestion counts differ: %d vs %d", len(first.Suggestions), len(second.Suggestions))
	}
	for i := range first.Suggestions {
		a, b := first.Suggestions[i], second.Suggestions[i]
		if a.Invoice.ID != b.Invoice.ID || a.Payment.ID != b.Payment.ID || a.Confidence != b.Confidence {
			t.Errorf("suggestion %d differs", i)
		}
	}
}

func TestFindMatchesResourceGuard(t *testing.T) {
	config := DefaultMatchingConfig()
	config.MaxRecords = 10

	engine, err := NewEngine(config)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	var invoices []*models.Invoice
	var payments []*models.Payment
	for i := 0; i < 6; i++ {
		invoices = append(invoices, testInvoice(fmt.Sprintf("inv-%d", i), "PS 1/12/2025", 100, "ACME"))
		payments = append(payments, testPayment(fmt.Sprintf("pay-%d", i), 100, "przelew", "ACME"))
	}

	run, err := engine.FindMatches(invoices, payments)
	if err == nil {
		t.Fatal("expected a capacity error")
	}

	if run.Err == nil {
		t.Fatal("run must carry the capacity error as data")
	}
	if run.Err.Category != errors.CategoryCapacity || run.Err.Code != errors.CodeTooManyRecords {
		t.Errorf("unexpected error taxonomy: %s/%s", run.Err.Category, run.Err.Code)
	}

	if len(run.AutoMatches) != 0 || len(run.Suggestions) != 0 {
		t.Error("a refused run must not contain partial results")
	}
	if len(run.UnmatchedInvoices) != len(invoices) {
		t.Errorf("expected all %d invoices unmatched, got %d", len(invoices), len(run.UnmatchedInvoices))
	}
	if len(run.UnmatchedPayments) != len(payments) {
		t.Errorf("expected all %d payments unmatched, got %d", len(payments), len(run.UnmatchedPayments))
	}
}

func TestFindMatchesComparisonGuard(t *testing.T) {
	config := DefaultMatchingConfig()
	config.MaxComparisons = 20

	engine, err := NewEngine(config)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	var invoices []*models.Invoice
	var payments []*models.Payment
	for i := 0; i < 5; i++ {
		invoices = append(invoices, testInvoice(fmt.Sprintf("inv-%d", i), "PS 1/12/2025", 100, "ACME"))
		payments = append(payments, testPayment(fmt.Sprintf("pay-%d", i), 100, "przelew", "ACME"))
	}

	run, err := engine.FindMatches(invoices, payments)
	if err == nil {
		t.Fatal("expected a capacity error")
	}
	if run.Err == nil || run.Err.Code != errors.CodeTooManyComparisons {
		t.Errorf("expected too_many_comparisons, got %v", run.Err)
	}
}

func TestFindMatchesSuggestionCap(t *testing.T) {
	config := DefaultMatchingConfig()
	config.MaxSuggestions = 3

	engine, err := NewEngine(config)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	// Same buyer and identical amounts produce many cross suggestions.
	var invoices []*models.Invoice
	var payments []*models.Payment
	for i := 0; i < 5; i++ {
		invoice := testInvoice(
			fmt.Sprintf("inv-%d", i), fmt.Sprintf("PS %d/12/2025", i+1), 1000.00, "ACME Sp. z o.o.")
		invoice.BuyerTaxID = "1234567890"
		invoices = append(invoices, invoice)
		payments = append(payments, testPayment(
			fmt.Sprintf("pay-%d", i), 1000.00, "przelew, NIP 1234567890", "ACME Sp. z o.o."))
	}

	run, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	if len(run.Suggestions) > 3 {
		t.Errorf("suggestion list must be capped at 3, got %d", len(run.Suggestions))
	}
}

func BenchmarkFindMatches(b *testing.B) {
	engine, err := NewEngine(nil)
	if err != nil {
		b.Fatalf("failed to create engine: %v", err)
	}

	var invoices []*models.Invoice
	var payments []*models.Payment
	for i := 0; i < 500; i++ {
		invoices = append(invoices, testInvoice(
			fmt.Sprintf("inv-%03d", i), fmt.Sprintf("PS %d/12/2025", i+1), 100.00+float64(i), "ACME Sp. z o.o."))
		payments = append(payments, testPayment(
			fmt.Sprintf("pay-%03d", i), 100.00+float64(i), fmt.Sprintf("PS %d/12/2025", i+1), "ACME Sp. z o.o."))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.FindMatches(invoices, payments); err != nil {
			b.Fatalf("FindMatches failed: %v", err)
		}
	}
}

func TestFindMatchesToleranceBoundary(t *testing.T) {
	engine := newTestEngine(t)

	// An overpayment at exactly 10% of the invoice amount still scores
	// 0.5 on amount, so an exact number citation plus a clean name match
	// must reach the resolver instead of being pruned by the index.
	invoices := []*models.Invoice{
		testInvoice("inv-1", "PS 17/12/2025", 1000.00, "ACME Sp. z o.o."),
	}
	payments := []*models.Payment{
		testPayment("pay-1", 1100.00, "zaplata za PS 17/12/2025", "ACME Sp. z o.o."),
	}

	run, err := engine.FindMatches(invoices, payments)
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}

	if len(run.AutoMatches) != 1 {
		t.Fatalf("expected the boundary pair to auto-match, got %d auto, %d suggestions",
			len(run.AutoMatches), len(run.Suggestions))
	}
	if got := run.AutoMatches[0].Confidence; got < 0.85 {
		t.Errorf("confidence = %f, want >= 0.85", got)
	}
}
