package parsers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"invoice-payment-matching-service/internal/models"
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

func TestInvoiceParserParseFile(t *testing.T) {
	content := `id,number,issue_date,due_date,gross_amount,currency,buyer_name,buyer_tax_id,status
inv-1,FV 17/12/2025,2025-12-03,2025-12-17,"1234,56",PLN,Alfa Handel Sp. z o.o.,1234567890,pending
inv-2,FV 18/12/2025,2025-12-05,2025-12-19,2000.00,PLN,Beta Serwis S.A.,,paid
`
	path := writeTempCSV(t, "invoices.csv", content)

	parser := NewInvoiceParser(nil)
	invoices, stats, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("expected 2 invoices, got %d", len(invoices))
	}
	if stats.ErrorCount != 0 {
		t.Errorf("expected no row errors, got %d: %v", stats.ErrorCount, stats.GetSampleErrors(5))
	}

	first := invoices[0]
	if first.Number != "FV 17/12/2025" {
		t.Errorf("unexpected number: %s", first.Number)
	}
	if got := first.GrossAmount.String(); got != "1234.56" {
		t.Errorf("comma decimal not handled, got %s", got)
	}
	if first.BuyerTaxID != "1234567890" {
		t.Errorf("unexpected buyer tax id: %s", first.BuyerTaxID)
	}
	if invoices[1].Status != models.StatusPaid {
		t.Errorf("expected paid status, got %s", invoices[1].Status)
	}
}

func TestInvoiceParserSkipsBadRows(t *testing.T) {
	content := `number,issue_date,gross_amount,buyer_name
FV 1/12/2025,2025-12-01,1000.00,Alfa Handel
FV 2/12/2025,not-a-date,1100.00,Alfa Handel
FV 3/12/2025,2025-12-03,garbage,Alfa Handel

FV 4/12/2025,2025-12-04,1300.00,Alfa Handel
`
	path := writeTempCSV(t, "invoices.csv", content)

	parser := NewInvoiceParser(nil)
	invoices, stats, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("expected 2 valid invoices, got %d", len(invoices))
	}
	if stats.ErrorCount != 2 {
		t.Errorf("expected 2 row errors, got %d", stats.ErrorCount)
	}
	if invoices[0].ID != invoices[0].Number {
		t.Errorf("missing id column should fall back to number, got %s", invoices[0].ID)
	}
	if invoices[0].Currency != "PLN" {
		t.Errorf("missing currency should default to PLN, got %s", invoices[0].Currency)
	}
	if !invoices[0].DueDate.Equal(invoices[0].IssueDate) {
		t.Errorf("missing due date should fall back to issue date")
	}
}

func TestInvoiceParserMissingHeaders(t *testing.T) {
	content := `number,issue_date
FV 1/12/2025,2025-12-01
`
	path := writeTempCSV(t, "invoices.csv", content)

	parser := NewInvoiceParser(nil)
	_, _, err := parser.ParseFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for missing required headers")
	}

	matcherErr, ok := errors.AsMatcherError(err)
	if !ok {
		t.Fatalf("expected MatcherError, got %T", err)
	}
	if matcherErr.Code != errors.CodeMissingColumn {
		t.Errorf("expected code %s, got %s", errors.CodeMissingColumn, matcherErr.Code)
	}
}

func TestInvoiceParserFileNotFound(t *testing.T) {
	parser := NewInvoiceParser(nil)
	_, _, err := parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	matcherErr, ok := errors.AsMatcherError(err)
	if !ok {
		t.Fatalf("expected MatcherError, got %T", err)
	}
	if matcherErr.Code != errors.CodeFileNotFound {
		t.Errorf("expected code %s, got %s", errors.CodeFileNotFound, matcherErr.Code)
	}
}

func TestInvoiceParserCustomColumns(t *testing.T) {
	content := `nr_faktury,data_wystawienia,kwota_brutto,nabywca
FV 5/12/2025,2025-12-05,500.00,Gamma Logistyka
`
	path := writeTempCSV(t, "invoices.csv", content)

	config := DefaultInvoiceParserConfig()
	config.Columns.Number = "nr_faktury"
	config.Columns.IssueDate = "data_wystawienia"
	config.Columns.GrossAmount = "kwota_brutto"
	config.Columns.BuyerName = "nabywca"

	parser := NewInvoiceParser(config)
	invoices, _, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	if len(invoices) != 1 || invoices[0].BuyerName != "Gamma Logistyka" {
		t.Fatalf("custom column mapping not applied: %+v", invoices)
	}
}

func TestPaymentParserParseFile(t *testing.T) {
	content := `id,transaction_date,amount,currency,sender_name,title,direction
pay-1,2025-12-18,1234.56,PLN,ALFA HANDEL SP Z O O,FV 17/12/2025,C
pay-2,2025-12-19,-300.00,PLN,OUR COMPANY,rent transfer,D
pay-3,2025-12-20,"2 000,00",PLN,BETA SERWIS,przelew FV 18/12/2025,
`
	path := writeTempCSV(t, "statement.csv", content)

	parser := NewPaymentParser(nil)
	payments, stats, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 credit payments, got %d", len(payments))
	}
	if stats.SkippedRows != 1 {
		t.Errorf("expected 1 skipped debit row, got %d", stats.SkippedRows)
	}
	if payments[0].ID != "pay-1" {
		t.Errorf("unexpected payment id: %s", payments[0].ID)
	}
	if got := payments[1].Amount.String(); got != "2000" {
		t.Errorf("expected amount 2000, got %s", got)
	}
}

func TestPaymentParserIncludeDebits(t *testing.T) {
	content := `transaction_date,amount,title
2025-12-18,-150.00,outgoing transfer
`
	path := writeTempCSV(t, "statement.csv", content)

	config := DefaultPaymentParserConfig()
	config.IncludeDebits = true

	parser := NewPaymentParser(config)
	payments, _, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected debit row to be kept, got %d payments", len(payments))
	}
	if payments[0].Amount.IsNegative() {
		t.Errorf("amount should be stored as absolute value, got %s", payments[0].Amount)
	}
}

func TestPaymentParserGeneratedIDs(t *testing.T) {
	content := `transaction_date,amount,title
2025-12-18,100.00,first
2025-12-19,200.00,second
`
	path := writeTempCSV(t, "statement.csv", content)

	parser := NewPaymentParser(nil)
	payments, _, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].ID == payments[1].ID {
		t.Errorf("generated IDs must be distinct, both were %s", payments[0].ID)
	}
}

func TestParseStatsString(t *testing.T) {
	stats := NewParseStats()
	stats.TotalLines = 5
	stats.RecordsParsed = 4
	stats.RecordsValid = 3
	stats.AddError(&RowError{Line: 3, Field: "amount", Value: "x", Message: "invalid amount"})

	if !stats.HasErrors() {
		t.Error("expected HasErrors to be true")
	}
	samples := stats.GetSampleErrors(10)
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample error, got %d", len(samples))
	}
}
