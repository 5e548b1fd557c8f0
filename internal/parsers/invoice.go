package parsers

import (
	"context"
	"io"
	"strings"

	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/pkg/logger"
)

// InvoiceColumns maps logical invoice fields to CSV column names.
// Accounting exports disagree on naming, so every field is remappable.
type InvoiceColumns struct {
	ID                string
	Number            string
	IssueDate         string
	DueDate           string
	GrossAmount       string
	NetAmount         string
	Currency          string
	BuyerName         string
	BuyerTaxID        string
	BuyerSubaccount   string
	SellerBankAccount string
	Status            string
	Kind              string
}

// DefaultInvoiceColumns returns the column names used by the standard
// invoice export format.
func DefaultInvoiceColumns() InvoiceColumns {
	return InvoiceColumns{
		ID:                "id",
		Number:            "number",
		IssueDate:         "issue_date",
		DueDate:           "due_date",
		GrossAmount:       "gross_amount",
		NetAmount:         "net_amount",
		Currency:          "currency",
		BuyerName:         "buyer_name",
		BuyerTaxID:        "buyer_tax_id",
		BuyerSubaccount:   "buyer_subaccount",
		SellerBankAccount: "seller_bank_account",
		Status:            "status",
		Kind:              "kind",
	}
}

// InvoiceParserConfig configures invoice CSV parsing.
type InvoiceParserConfig struct {
	*ParseConfig
	Columns InvoiceColumns
}

// DefaultInvoiceParserConfig returns a config for the standard invoice
// export format.
func DefaultInvoiceParserConfig() *InvoiceParserConfig {
	return &InvoiceParserConfig{
		ParseConfig: DefaultParseConfig(),
		Columns:     DefaultInvoiceColumns(),
	}
}

// InvoiceParser parses invoice CSV exports into models.Invoice records.
type InvoiceParser struct {
	*baseParser
	config *InvoiceParserConfig
}

// NewInvoiceParser creates an invoice parser, using defaults when config
// is nil.
func NewInvoiceParser(config *InvoiceParserConfig) *InvoiceParser {
	if config == nil {
		config = DefaultInvoiceParserConfig()
	}
	return &InvoiceParser{
		baseParser: newBaseParser(config.ParseConfig, "invoice-parser"),
		config:     config,
	}
}

// ParseFile parses an invoice CSV file. Rows that fail to parse or
// validate are recorded in the returned stats and skipped; only file
// level problems abort the parse.
func (p *InvoiceParser) ParseFile(ctx context.Context, filePath string) ([]*models.Invoice, *ParseStats, error) {
	file, reader, err := p.openFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := newParseContext(ctx)
	stats := NewParseStats()

	required := []string{
		p.config.Columns.Number,
		p.config.Columns.IssueDate,
		p.config.Columns.GrossAmount,
		p.config.Columns.BuyerName,
	}
	if err := p.readHeaders(reader, parseCtx, filePath, required); err != nil {
		return nil, stats, err
	}

	var invoices []*models.Invoice
	for {
		record, err := p.readRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx != nil && ctx.Err() != nil {
				return invoices, stats, ctx.Err()
			}
			stats.AddError(&RowError{
				Line:    parseCtx.LineNumber,
				Field:   "record",
				Message: "malformed CSV row",
				Err:     err,
			})
			continue
		}

		stats.RecordsParsed++
		invoice, rowErr := p.parseRecord(record, parseCtx)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}
		if err := invoice.Validate(); err != nil {
			stats.AddError(&RowError{
				Line:    parseCtx.LineNumber,
				Field:   "invoice",
				Value:   invoice.Number,
				Message: "validation failed",
				Err:     err,
			})
			continue
		}

		stats.RecordsValid++
		invoices = append(invoices, invoice)
	}

	stats.TotalLines = parseCtx.LineNumber
	stats.SkippedRows = stats.RecordsParsed - stats.RecordsValid

	p.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"invoices":  len(invoices),
		"errors":    stats.ErrorCount,
	}).Info("Invoice file parsed")

	return invoices, stats, nil
}

func (p *InvoiceParser) parseRecord(record []string, parseCtx *parseContext) (*models.Invoice, *RowError) {
	cols := p.config.Columns

	invoice := &models.Invoice{
		ID:                fieldValue(record, parseCtx, cols.ID),
		Number:            fieldValue(record, parseCtx, cols.Number),
		Currency:          fieldValue(record, parseCtx, cols.Currency),
		BuyerName:         fieldValue(record, parseCtx, cols.BuyerName),
		BuyerTaxID:        fieldValue(record, parseCtx, cols.BuyerTaxID),
		BuyerSubaccount:   fieldValue(record, parseCtx, cols.BuyerSubaccount),
		SellerBankAccount: fieldValue(record, parseCtx, cols.SellerBankAccount),
	}
	if invoice.ID == "" {
		invoice.ID = invoice.Number
	}
	if invoice.Currency == "" {
		invoice.Currency = "PLN"
	}

	issueRaw := fieldValue(record, parseCtx, cols.IssueDate)
	issueDate, err := models.ParseDateWithFormats(issueRaw)
	if err != nil {
		return nil, &RowError{
			Line: parseCtx.LineNumber, Field: cols.IssueDate, Value: issueRaw,
			Message: "invalid issue date", Err: err,
		}
	}
	invoice.IssueDate = issueDate

	if dueRaw := fieldValue(record, parseCtx, cols.DueDate); dueRaw != "" {
		dueDate, err := models.ParseDateWithFormats(dueRaw)
		if err != nil {
			return nil, &RowError{
				Line: parseCtx.LineNumber, Field: cols.DueDate, Value: dueRaw,
				Message: "invalid due date", Err: err,
			}
		}
		invoice.DueDate = dueDate
	} else {
		invoice.DueDate = issueDate
	}

	grossRaw := fieldValue(record, parseCtx, cols.GrossAmount)
	gross, err := models.ParseDecimalFromString(grossRaw)
	if err != nil {
		return nil, &RowError{
			Line: parseCtx.LineNumber, Field: cols.GrossAmount, Value: grossRaw,
			Message: "invalid gross amount", Err: err,
		}
	}
	invoice.GrossAmount = gross

	if netRaw := fieldValue(record, parseCtx, cols.NetAmount); netRaw != "" {
		net, err := models.ParseDecimalFromString(netRaw)
		if err != nil {
			return nil, &RowError{
				Line: parseCtx.LineNumber, Field: cols.NetAmount, Value: netRaw,
				Message: "invalid net amount", Err: err,
			}
		}
		invoice.NetAmount = net
	}

	invoice.Status = models.StatusPending
	if statusRaw := fieldValue(record, parseCtx, cols.Status); statusRaw != "" {
		status, err := models.ParsePaymentStatus(statusRaw)
		if err != nil {
			return nil, &RowError{
				Line: parseCtx.LineNumber, Field: cols.Status, Value: statusRaw,
				Message: "invalid status", Err: err,
			}
		}
		invoice.Status = status
	}

	kind, err := models.ParseInvoiceKind(fieldValue(record, parseCtx, cols.Kind))
	if err != nil {
		return nil, &RowError{
			Line: parseCtx.LineNumber, Field: cols.Kind, Value: fieldValue(record, parseCtx, cols.Kind),
			Message: "invalid invoice kind", Err: err,
		}
	}
	invoice.Kind = kind
	invoice.Currency = strings.ToUpper(strings.TrimSpace(invoice.Currency))

	return invoice, nil
}
