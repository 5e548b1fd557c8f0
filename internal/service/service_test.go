package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"invoice-payment-matching-service/internal/matcher"
	"invoice-payment-matching-service/pkg/errors"
)

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

const invoiceCSV = `id,number,issue_date,due_date,gross_amount,currency,buyer_name,buyer_tax_id
inv-1,FV 17/12/2025,2025-12-03,2025-12-17,1234.56,PLN,Alfa Handel Sp. z o.o.,1234567890
inv-2,FV 18/12/2025,2025-12-05,2025-12-19,2000.00,PLN,Beta Serwis S.A.,9876543210
inv-3,FV 2/01/2026,2026-01-10,2026-01-24,800.00,PLN,Gamma Logistyka,5555555555
`

const paymentCSV = `id,transaction_date,amount,currency,sender_name,title
pay-1,2025-12-18,1234.56,PLN,ALFA HANDEL SP Z O O,FV 17/12/2025
pay-2,2025-12-19,2000.00,PLN,BETA SERWIS SA,przelew FV 18/12/2025
pay-3,2025-12-20,999.99,PLN,UNRELATED COMPANY,internal transfer
`

func newTestService(t *testing.T, config *Config) *MatchingService {
	t.Helper()
	svc, err := NewMatchingService(nil, nil, nil, config)
	if err != nil {
		t.Fatalf("NewMatchingService failed: %v", err)
	}
	return svc
}

func TestProcessMatchingEndToEnd(t *testing.T) {
	invoiceFile := writeTempCSV(t, "invoices.csv", invoiceCSV)
	paymentFile := writeTempCSV(t, "statement.csv", paymentCSV)

	svc := newTestService(t, nil)
	report, err := svc.ProcessMatching(context.Background(), &MatchRequest{
		InvoiceFile:  invoiceFile,
		PaymentFiles: []string{paymentFile},
	})
	if err != nil {
		t.Fatalf("ProcessMatching failed: %v", err)
	}

	if report.Run == nil {
		t.Fatal("report is missing the matching run")
	}
	if report.Run.Summary.AutoMatched != 2 {
		t.Errorf("expected 2 auto matches, got %d", report.Run.Summary.AutoMatched)
	}
	if report.Stats.InvoicesParsed != 3 || report.Stats.PaymentsParsed != 3 {
		t.Errorf("unexpected parse counts: %d invoices, %d payments",
			report.Stats.InvoicesParsed, report.Stats.PaymentsParsed)
	}
	if report.Stats.FilesProcessed != 2 {
		t.Errorf("expected 2 files processed, got %d", report.Stats.FilesProcessed)
	}
	if got := report.TotalInvoiceAmount.String(); got != "4034.56" {
		t.Errorf("unexpected total invoice amount: %s", got)
	}
	if report.Stats.TotalTime <= 0 {
		t.Error("expected a positive total processing time")
	}
}

func TestProcessMatchingDateRange(t *testing.T) {
	invoiceFile := writeTempCSV(t, "invoices.csv", invoiceCSV)
	paymentFile := writeTempCSV(t, "statement.csv", paymentCSV)

	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	svc := newTestService(t, nil)
	report, err := svc.ProcessMatching(context.Background(), &MatchRequest{
		InvoiceFile:  invoiceFile,
		PaymentFiles: []string{paymentFile},
		StartDate:    &start,
		EndDate:      &end,
	})
	if err != nil {
		t.Fatalf("ProcessMatching failed: %v", err)
	}

	if report.DateRange == nil {
		t.Fatal("expected date range in report")
	}
	if report.Stats.FilteredInvoices != 1 {
		t.Errorf("expected 1 filtered invoice (January issue date), got %d", report.Stats.FilteredInvoices)
	}
	if report.Run.Summary.TotalInvoices != 2 {
		t.Errorf("expected 2 invoices after filtering, got %d", report.Run.Summary.TotalInvoices)
	}
}

func TestProcessMatchingMultiplePaymentFiles(t *testing.T) {
	invoiceFile := writeTempCSV(t, "invoices.csv", invoiceCSV)
	first := writeTempCSV(t, "statement1.csv", `id,transaction_date,amount,currency,sender_name,title
pay-1,2025-12-18,1234.56,PLN,ALFA HANDEL SP Z O O,FV 17/12/2025
`)
	second := writeTempCSV(t, "statement2.csv", `id,transaction_date,amount,currency,sender_name,title
pay-2,2025-12-19,2000.00,PLN,BETA SERWIS SA,przelew FV 18/12/2025
`)

	svc := newTestService(t, nil)
	report, err := svc.ProcessMatching(context.Background(), &MatchRequest{
		InvoiceFile:  invoiceFile,
		PaymentFiles: []string{first, second},
	})
	if err != nil {
		t.Fatalf("ProcessMatching failed: %v", err)
	}
	if report.Stats.PaymentsParsed != 2 {
		t.Errorf("expected 2 payments across files, got %d", report.Stats.PaymentsParsed)
	}
	if report.Stats.FilesProcessed != 3 {
		t.Errorf("expected 3 files processed, got %d", report.Stats.FilesProcessed)
	}
}

func TestProcessMatchingInvalidRequest(t *testing.T) {
	svc := newTestService(t, nil)

	cases := []*MatchRequest{
		{PaymentFiles: []string{"x.csv"}},
		{InvoiceFile: "x.csv"},
	}
	for _, request := range cases {
		if _, err := svc.ProcessMatching(context.Background(), request); err == nil {
			t.Errorf("expected validation error for request %+v", request)
		}
	}
}

func TestProcessMatchingCapacityRefusal(t *testing.T) {
	invoiceFile := writeTempCSV(t, "invoices.csv", invoiceCSV)
	paymentFile := writeTempCSV(t, "statement.csv", paymentCSV)

	matchingConfig := matcher.DefaultMatchingConfig()
	matchingConfig.MaxRecords = 2

	svc, err := NewMatchingService(nil, nil, matchingConfig, nil)
	if err != nil {
		t.Fatalf("NewMatchingService failed: %v", err)
	}

	report, err := svc.ProcessMatching(context.Background(), &MatchRequest{
		InvoiceFile:  invoiceFile,
		PaymentFiles: []string{paymentFile},
	})
	if err == nil {
		t.Fatal("expected capacity error")
	}
	matcherErr, ok := errors.AsMatcherError(err)
	if !ok || matcherErr.Code != errors.CodeTooManyRecords {
		t.Fatalf("expected too_many_records, got %v", err)
	}

	// The report still carries the conservative run.
	if report == nil || report.Run == nil || report.Run.Err == nil {
		t.Fatal("expected report with refused run")
	}
	if len(report.Run.UnmatchedInvoices) != 3 {
		t.Errorf("expected all invoices reported unmatched, got %d", len(report.Run.UnmatchedInvoices))
	}
}

func TestConfigValidate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	config := DefaultConfig()
	config.StartDate = &start
	config.EndDate = &end
	if err := config.Validate(); err == nil {
		t.Error("expected error for inverted date range")
	}

	config = DefaultConfig()
	config.MaxSampleErrors = -1
	if err := config.Validate(); err == nil {
		t.Error("expected error for negative sample error bound")
	}
}
