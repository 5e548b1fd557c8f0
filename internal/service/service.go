// Package service wires the parsers and the matching engine into one
// file-in, report-out workflow: parse an invoice export and one or more
// bank statements, filter by date range, run matching, and assemble a
// report with processing statistics.
package service

import (
	"context"
	"fmt"
	"time"

	"invoice-payment-matching-service/internal/matcher"
	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/internal/parsers"
	"invoice-payment-matching-service/pkg/errors"
	"invoice-payment-matching-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// MatchingService orchestrates the complete matching workflow.
type MatchingService struct {
	invoiceParser *parsers.InvoiceParser
	paymentParser *parsers.PaymentParser
	engine        *matcher.Engine
	config        *Config
	logger        logger.Logger
}

// Config holds workflow options for the matching service.
type Config struct {
	// Date range filtering applied to invoice issue dates and payment
	// transaction dates before matching.
	StartDate *time.Time
	EndDate   *time.Time

	// EnableGroupMatching turns on the sum-matching pass for buyers who
	// pay several invoices with one transfer.
	EnableGroupMatching bool
	MaxMonthsToGroup    int

	// MaxSampleErrors bounds how many parse errors are carried into the
	// report.
	MaxSampleErrors int
}

// DefaultConfig returns a default service configuration.
func DefaultConfig() *Config {
	return &Config{
		EnableGroupMatching: true,
		MaxSampleErrors:     10,
	}
}

// Validate validates the service configuration.
func (c *Config) Validate() error {
	if c.StartDate != nil && c.EndDate != nil && c.StartDate.After(*c.EndDate) {
		return fmt.Errorf("start date must be before end date")
	}
	if c.MaxSampleErrors < 0 {
		return fmt.Errorf("max sample errors cannot be negative, got %d", c.MaxSampleErrors)
	}
	return nil
}

// MatchRequest names the input files for one matching run.
type MatchRequest struct {
	InvoiceFile  string
	PaymentFiles []string

	// Optional per-request date range, overriding the service config.
	StartDate *time.Time
	EndDate   *time.Time
}

// Validate validates the match request.
func (r *MatchRequest) Validate() error {
	if r.InvoiceFile == "" {
		return fmt.Errorf("invoice file path is required")
	}
	if len(r.PaymentFiles) == 0 {
		return fmt.Errorf("at least one payment file is required")
	}
	if r.StartDate != nil && r.EndDate != nil && r.StartDate.After(*r.EndDate) {
		return fmt.Errorf("start date must be before end date")
	}
	return nil
}

// MatchReport is the complete result of one matching run.
type MatchReport struct {
	Run *matcher.MatchRun `json:"run"`

	// Financial summary
	TotalInvoiceAmount decimal.Decimal `json:"total_invoice_amount"`
	TotalPaymentAmount decimal.Decimal `json:"total_payment_amount"`

	// Processing information
	Stats       *ProcessingStats `json:"processing_stats"`
	ProcessedAt time.Time        `json:"processed_at"`
	DateRange   *DateRange       `json:"date_range,omitempty"`
}

// ProcessingStats contains detailed processing statistics for one run.
type ProcessingStats struct {
	FilesProcessed   int           `json:"files_processed"`
	InvoicesParsed   int           `json:"invoices_parsed"`
	PaymentsParsed   int           `json:"payments_parsed"`
	ParseErrors      int           `json:"parse_errors"`
	SampleErrors     []string      `json:"sample_errors,omitempty"`
	ParsingTime      time.Duration `json:"parsing_time"`
	MatchingTime     time.Duration `json:"matching_time"`
	TotalTime        time.Duration `json:"total_time"`
	FilteredInvoices int           `json:"filtered_invoices"`
	FilteredPayments int           `json:"filtered_payments"`
}

// DateRange represents a date range filter.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range, inclusive on both
// ends.
func (dr *DateRange) Contains(t time.Time) bool {
	return !t.Before(dr.Start) && !t.After(dr.End)
}

// NewMatchingService creates a matching service. Nil sub-configurations
// select the respective defaults.
func NewMatchingService(
	invoiceConfig *parsers.InvoiceParserConfig,
	paymentConfig *parsers.PaymentParserConfig,
	matchingConfig *matcher.MatchingConfig,
	config *Config,
) (*MatchingService, error) {

	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "service", config, err)
	}

	engine, err := matcher.NewEngine(matchingConfig)
	if err != nil {
		return nil, err
	}

	return &MatchingService{
		invoiceParser: parsers.NewInvoiceParser(invoiceConfig),
		paymentParser: parsers.NewPaymentParser(paymentConfig),
		engine:        engine,
		config:        config,
		logger:        logger.WithComponent("matching-service"),
	}, nil
}

// Engine exposes the underlying matching engine, mainly so callers can
// attach a tracer.
func (s *MatchingService) Engine() *matcher.Engine {
	return s.engine
}

// ProcessMatching runs the complete workflow for one request: parse,
// filter, match, report. A capacity refusal from the engine is returned
// as the error while the report still carries the conservative run.
func (s *MatchingService) ProcessMatching(ctx context.Context, request *MatchRequest) (*MatchReport, error) {
	if err := request.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "match_request", request, err).
			WithSuggestion("check the input file paths and date range")
	}

	started := time.Now()
	report := &MatchReport{
		ProcessedAt: started,
		Stats:       &ProcessingStats{},
	}

	invoices, payments, err := s.parseInputs(ctx, request, report.Stats)
	if err != nil {
		return nil, err
	}
	report.Stats.ParsingTime = time.Since(started)

	invoices, payments = s.applyDateRange(invoices, payments, request, report)

	matchingStarted := time.Now()
	run, err := s.engine.FindMatchesExtended(invoices, payments, matcher.ExtendedOptions{
		EnableGroupMatching: s.config.EnableGroupMatching,
		MaxMonthsToGroup:    s.config.MaxMonthsToGroup,
	})
	report.Stats.MatchingTime = time.Since(matchingStarted)
	report.Run = run

	s.summarizeAmounts(report, invoices, payments)
	report.Stats.TotalTime = time.Since(started)

	if err != nil {
		s.logger.WithError(err).Warn("Matching run refused")
		return report, err
	}

	s.logger.WithFields(logger.Fields{
		"invoices":     len(invoices),
		"payments":     len(payments),
		"auto_matched": run.Summary.AutoMatched,
		"suggested":    run.Summary.Suggested,
		"total_time":   report.Stats.TotalTime,
	}).Info("Matching run completed")

	return report, nil
}

func (s *MatchingService) parseInputs(ctx context.Context, request *MatchRequest, stats *ProcessingStats) ([]*models.Invoice, []*models.Payment, error) {
	invoices, invoiceStats, err := s.invoiceParser.ParseFile(ctx, request.InvoiceFile)
	if err != nil {
		return nil, nil, err
	}
	stats.FilesProcessed++
	stats.InvoicesParsed = len(invoices)
	s.collectParseErrors(stats, invoiceStats)

	var payments []*models.Payment
	for _, file := range request.PaymentFiles {
		parsed, paymentStats, err := s.paymentParser.ParseFile(ctx, file)
		if err != nil {
			return nil, nil, err
		}
		stats.FilesProcessed++
		s.collectParseErrors(stats, paymentStats)
		payments = append(payments, parsed...)
	}
	stats.PaymentsParsed = len(payments)

	return invoices, payments, nil
}

func (s *MatchingService) collectParseErrors(stats *ProcessingStats, parseStats *parsers.ParseStats) {
	if parseStats == nil {
		return
	}
	stats.ParseErrors += parseStats.ErrorCount

	remaining := s.config.MaxSampleErrors - len(stats.SampleErrors)
	if remaining <= 0 {
		return
	}
	stats.SampleErrors = append(stats.SampleErrors, parseStats.GetSampleErrors(remaining)...)
}

// applyDateRange drops invoices and payments outside the effective date
// range. Request dates take precedence over service config dates.
func (s *MatchingService) applyDateRange(invoices []*models.Invoice, payments []*models.Payment, request *MatchRequest, report *MatchReport) ([]*models.Invoice, []*models.Payment) {
	dateRange := s.effectiveDateRange(request)
	if dateRange == nil {
		return invoices, payments
	}
	report.DateRange = dateRange

	filteredInvoices := make([]*models.Invoice, 0, len(invoices))
	for _, invoice := range invoices {
		if dateRange.Contains(invoice.IssueDate) {
			filteredInvoices = append(filteredInvoices, invoice)
		}
	}

	filteredPayments := make([]*models.Payment, 0, len(payments))
	for _, payment := range payments {
		if dateRange.Contains(payment.TransactionDate) {
			filteredPayments = append(filteredPayments, payment)
		}
	}

	report.Stats.FilteredInvoices = len(invoices) - len(filteredInvoices)
	report.Stats.FilteredPayments = len(payments) - len(filteredPayments)

	if report.Stats.FilteredInvoices > 0 || report.Stats.FilteredPayments > 0 {
		s.logger.WithFields(logger.Fields{
			"filtered_invoices": report.Stats.FilteredInvoices,
			"filtered_payments": report.Stats.FilteredPayments,
		}).Debug("Date range filtering applied")
	}

	return filteredInvoices, filteredPayments
}

func (s *MatchingService) effectiveDateRange(request *MatchRequest) *DateRange {
	start, end := request.StartDate, request.EndDate
	if start == nil {
		start = s.config.StartDate
	}
	if end == nil {
		end = s.config.EndDate
	}
	if start == nil || end == nil {
		return nil
	}
	return &DateRange{Start: *start, End: *end}
}

func (s *MatchingService) summarizeAmounts(report *MatchReport, invoices []*models.Invoice, payments []*models.Payment) {
	totalInvoices := decimal.Zero
	for _, invoice := range invoices {
		totalInvoices = totalInvoices.Add(invoice.GrossAmount)
	}
	totalPayments := decimal.Zero
	for _, payment := range payments {
		totalPayments = totalPayments.Add(payment.Amount)
	}
	report.TotalInvoiceAmount = totalInvoices
	report.TotalPaymentAmount = totalPayments
}
