package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/pkg/logger"
)

// PaymentColumns maps logical bank statement fields to CSV column names.
type PaymentColumns struct {
	ID               string
	TransactionDate  string
	Amount           string
	Currency         string
	SenderName       string
	SenderAccount    string
	SenderSubaccount string
	Title            string
	ExtendedTitle    string
	Reference        string
	Direction        string
}

// DefaultPaymentColumns returns the column names used by the standard
// bank statement export format.
func DefaultPaymentColumns() PaymentColumns {
	return PaymentColumns{
		ID:               "id",
		TransactionDate:  "transaction_date",
		Amount:           "amount",
		Currency:         "currency",
		SenderName:       "sender_name",
		SenderAccount:    "sender_account",
		SenderSubaccount: "sender_subaccount",
		Title:            "title",
		ExtendedTitle:    "extended_title",
		Reference:        "reference",
		Direction:        "direction",
	}
}

// PaymentParserConfig configures bank statement parsing.
type PaymentParserConfig struct {
	*ParseConfig
	Columns PaymentColumns

	// IncludeDebits keeps outgoing transactions. Matching only consumes
	// incoming payments, so debit rows are dropped by default.
	IncludeDebits bool
}

// DefaultPaymentParserConfig returns a config for the standard bank
// statement format.
func DefaultPaymentParserConfig() *PaymentParserConfig {
	return &PaymentParserConfig{
		ParseConfig: DefaultParseConfig(),
		Columns:     DefaultPaymentColumns(),
	}
}

// PaymentParser parses bank statement CSV exports into models.Payment
// records.
type PaymentParser struct {
	*baseParser
	config *PaymentParserConfig
}

// NewPaymentParser creates a bank statement parser, using defaults when
// config is nil.
func NewPaymentParser(config *PaymentParserConfig) *PaymentParser {
	if config == nil {
		config = DefaultPaymentParserConfig()
	}
	return &PaymentParser{
		baseParser: newBaseParser(config.ParseConfig, "payment-parser"),
		config:     config,
	}
}

// ParseFile parses a bank statement CSV file. Debit rows are skipped
// unless IncludeDebits is set; rows that fail to parse are recorded in
// stats and skipped.
func (p *PaymentParser) ParseFile(ctx context.Context, filePath string) ([]*models.Payment, *ParseStats, error) {
	file, reader, err := p.openFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := newParseContext(ctx)
	stats := NewParseStats()

	required := []string{
		p.config.Columns.TransactionDate,
		p.config.Columns.Amount,
		p.config.Columns.Title,
	}
	if err := p.readHeaders(reader, parseCtx, filePath, required); err != nil {
		return nil, stats, err
	}

	var payments []*models.Payment
	for {
		record, err := p.readRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx != nil && ctx.Err() != nil {
				return payments, stats, ctx.Err()
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
		payment, debit, rowErr := p.parseRecord(record, parseCtx)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}
		if debit && !p.config.IncludeDebits {
			stats.SkippedRows++
			continue
		}
		if err := payment.Validate(); err != nil {
			stats.AddError(&RowError{
				Line:    parseCtx.LineNumber,
				Field:   "payment",
				Value:   payment.ID,
				Message: "validation failed",
				Err:     err,
			})
			continue
		}

		stats.RecordsValid++
		payments = append(payments, payment)
	}

	stats.TotalLines = parseCtx.LineNumber

	p.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"payments":  len(payments),
		"skipped":   stats.SkippedRows,
		"errors":    stats.ErrorCount,
	}).Info("Bank statement parsed")

	return payments, stats, nil
}

func (p *PaymentParser) parseRecord(record []string, parseCtx *parseContext) (*models.Payment, bool, *RowError) {
	cols := p.config.Columns

	payment := &models.Payment{
		ID:               fieldValue(record, parseCtx, cols.ID),
		Currency:         strings.ToUpper(fieldValue(record, parseCtx, cols.Currency)),
		SenderName:       fieldValue(record, parseCtx, cols.SenderName),
		SenderAccount:    fieldValue(record, parseCtx, cols.SenderAccount),
		SenderSubaccount: fieldValue(record, parseCtx, cols.SenderSubaccount),
		Title:            fieldValue(record, parseCtx, cols.Title),
		ExtendedTitle:    fieldValue(record, parseCtx, cols.ExtendedTitle),
		Reference:        fieldValue(record, parseCtx, cols.Reference),
	}
	if payment.ID == "" {
		payment.ID = fmt.Sprintf("payment-%d", parseCtx.LineNumber)
	}
	if payment.Currency == "" {
		payment.Currency = "PLN"
	}

	dateRaw := fieldValue(record, parseCtx, cols.TransactionDate)
	date, err := models.ParseDateWithFormats(dateRaw)
	if err != nil {
		return nil, false, &RowError{
			Line: parseCtx.LineNumber, Field: cols.TransactionDate, Value: dateRaw,
			Message: "invalid transaction date", Err: err,
		}
	}
	payment.TransactionDate = date

	amountRaw := fieldValue(record, parseCtx, cols.Amount)
	amount, err := models.ParseDecimalFromString(amountRaw)
	if err != nil {
		return nil, false, &RowError{
			Line: parseCtx.LineNumber, Field: cols.Amount, Value: amountRaw,
			Message: "invalid amount", Err: err,
		}
	}

	debit := amount.IsNegative() || isDebitDirection(fieldValue(record, parseCtx, cols.Direction))
	payment.Amount = amount.Abs()

	return payment, debit, nil
}

// isDebitDirection recognizes the direction markers bank exports use for
// outgoing transactions.
func isDebitDirection(direction string) bool {
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "D", "DEBIT", "DT", "OUT", "WN", "OBCIĄŻENIE":
		return true
	default:
		return false
	}
}
