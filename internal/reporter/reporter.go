// Package reporter renders matching results for people and programs.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured output for programmatic consumption
//   - CSV: flat per-row output for spreadsheet review
//
// The console report leads with auto-applied matches, then suggestions
// that need human review (with their reasons), group payment
// suggestions, and finally the unmatched leftovers. A refused run is
// rendered as the capacity error plus the untouched inputs.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"invoice-payment-matching-service/internal/matcher"
	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/internal/service"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeAutoMatches       bool `json:"include_auto_matches"`
	IncludeSuggestions       bool `json:"include_suggestions"`
	IncludeGroupSuggestions  bool `json:"include_group_suggestions"`
	IncludeUnmatchedInvoices bool `json:"include_unmatched_invoices"`
	IncludeUnmatchedPayments bool `json:"include_unmatched_payments"`
	IncludeProcessingStats   bool `json:"include_processing_stats"`

	// Console options
	MaxListedItems int `json:"max_listed_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                   FormatConsole,
		IncludeAutoMatches:       true,
		IncludeSuggestions:       true,
		IncludeGroupSuggestions:  true,
		IncludeUnmatchedInvoices: true,
		IncludeUnmatchedPayments: true,
		IncludeProcessingStats:   true,
		MaxListedItems:           50,
		CSVDelimiter:             ',',
		CSVHeaders:               true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListedItems < 1 {
		return fmt.Errorf("max listed items must be at least 1, got %d", c.MaxListedItems)
	}
	return nil
}

// ReportGenerator renders MatchReport values in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the report to the provided writer.
func (rg *ReportGenerator) GenerateReport(report *service.MatchReport, writer io.Writer) error {
	if report == nil || report.Run == nil {
		return fmt.Errorf("match report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *service.MatchReport, writer io.Writer) error {
	run := report.Run

	fmt.Fprintf(writer, "INVOICE MATCHING REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", report.ProcessedAt.Format(time.RFC3339))
	if report.DateRange != nil {
		fmt.Fprintf(writer, "Date Range: %s to %s\n",
			report.DateRange.Start.Format("2006-01-02"),
			report.DateRange.End.Format("2006-01-02"))
	}
	fmt.Fprintf(writer, "\n")

	if run.Err != nil {
		fmt.Fprintf(writer, "=== RUN REFUSED ===\n")
		fmt.Fprintf(writer, "%s\n", run.Err.Message)
		if run.Err.Suggestion != "" {
			fmt.Fprintf(writer, "Suggestion: %s\n", run.Err.Suggestion)
		}
		fmt.Fprintf(writer, "All %d invoices and %d payments are reported unmatched.\n\n",
			len(run.UnmatchedInvoices), len(run.UnmatchedPayments))
	}

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(report, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeAutoMatches && len(run.AutoMatches) > 0 {
		fmt.Fprintf(writer, "=== AUTO-APPLIED MATCHES ===\n")
		rg.printMatches(run.AutoMatches, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeSuggestions && len(run.Suggestions) > 0 {
		fmt.Fprintf(writer, "=== SUGGESTIONS FOR REVIEW ===\n")
		rg.printMatches(run.Suggestions, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeGroupSuggestions && len(run.GroupSuggestions) > 0 {
		fmt.Fprintf(writer, "=== GROUP PAYMENT SUGGESTIONS ===\n")
		rg.printGroupSuggestions(run.GroupSuggestions, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatchedInvoices && len(run.UnmatchedInvoices) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED INVOICES ===\n")
		rg.printUnmatchedInvoices(run.UnmatchedInvoices, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatchedPayments && len(run.UnmatchedPayments) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED PAYMENTS ===\n")
		rg.printUnmatchedPayments(run.UnmatchedPayments, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeProcessingStats && report.Stats != nil {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printProcessingStats(report.Stats, writer)
	}

	return nil
}

func (rg *ReportGenerator) generateJSONReport(report *service.MatchReport, writer io.Writer) error {
	filtered := rg.filterReportForOutput(report)

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(filtered)
}

func (rg *ReportGenerator) generateCSVReport(report *service.MatchReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Type",
			"Invoice_ID",
			"Invoice_Number",
			"Payment_ID",
			"Invoice_Amount",
			"Payment_Amount",
			"Currency",
			"Buyer_Name",
			"Confidence",
			"Reasons",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	run := report.Run

	writeMatch := func(kind string, match *matcher.MatchResult) error {
		return csvWriter.Write([]string{
			kind,
			match.Invoice.ID,
			match.Invoice.Number,
			match.Payment.ID,
			match.Invoice.GrossAmount.StringFixed(2),
			match.Payment.Amount.StringFixed(2),
			match.Invoice.Currency,
			match.Invoice.BuyerName,
			fmt.Sprintf("%.2f", match.Confidence),
			strings.Join(match.Reasons, "; "),
		})
	}

	if rg.config.IncludeAutoMatches {
		for _, match := range run.AutoMatches {
			if err := writeMatch("auto_match", match); err != nil {
				return fmt.Errorf("failed to write auto match record: %w", err)
			}
		}
	}

	if rg.config.IncludeSuggestions {
		for _, match := range run.Suggestions {
			if err := writeMatch("suggestion", match); err != nil {
				return fmt.Errorf("failed to write suggestion record: %w", err)
			}
		}
	}

	if rg.config.IncludeGroupSuggestions {
		for _, group := range run.GroupSuggestions {
			numbers := make([]string, 0, len(group.Invoices))
			ids := make([]string, 0, len(group.Invoices))
			for _, invoice := range group.Invoices {
				numbers = append(numbers, invoice.Number)
				ids = append(ids, invoice.ID)
			}
			record := []string{
				"group_suggestion",
				strings.Join(ids, "|"),
				strings.Join(numbers, "|"),
				group.Payment.ID,
				group.TotalInvoiceAmount.StringFixed(2),
				group.Payment.Amount.StringFixed(2),
				group.Payment.Currency,
				group.BuyerName,
				fmt.Sprintf("%.2f", group.Confidence),
				strings.Join(group.Reasons, "; "),
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write group suggestion record: %w", err)
			}
		}
	}

	if rg.config.IncludeUnmatchedInvoices {
		for _, invoice := range run.UnmatchedInvoices {
			record := []string{
				"unmatched_invoice",
				invoice.ID,
				invoice.Number,
				"",
				invoice.GrossAmount.StringFixed(2),
				"",
				invoice.Currency,
				invoice.BuyerName,
				"",
				"no matching payment found",
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write unmatched invoice record: %w", err)
			}
		}
	}

	if rg.config.IncludeUnmatchedPayments {
		for _, payment := range run.UnmatchedPayments {
			record := []string{
				"unmatched_payment",
				"",
				"",
				payment.ID,
				"",
				payment.Amount.StringFixed(2),
				payment.Currency,
				payment.SenderName,
				"",
				"no matching invoice found",
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write unmatched payment record: %w", err)
			}
		}
	}

	return nil
}

// Console section helpers

func (rg *ReportGenerator) printSummary(report *service.MatchReport, writer io.Writer) {
	summary := report.Run.Summary

	fmt.Fprintf(writer, "Invoices:\n")
	fmt.Fprintf(writer, "  Total:       %d\n", summary.TotalInvoices)
	fmt.Fprintf(writer, "  Matchable:   %d\n", summary.MatchableInvoices)
	fmt.Fprintf(writer, "  Auto-matched: %d (%.1f%%)\n",
		summary.AutoMatched,
		rg.calculatePercentage(summary.AutoMatched, summary.MatchableInvoices))

	fmt.Fprintf(writer, "\nPayments:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", summary.TotalPayments)
	fmt.Fprintf(writer, "  Unmatched: %d\n", len(report.Run.UnmatchedPayments))

	fmt.Fprintf(writer, "\nSuggestions:       %d\n", summary.Suggested)
	fmt.Fprintf(writer, "Group suggestions: %d\n", summary.GroupSuggested)
	fmt.Fprintf(writer, "Match rate:        %.1f%%\n", summary.MatchRate*100)

	fmt.Fprintf(writer, "\nTotal invoice amount: %s\n", report.TotalInvoiceAmount.StringFixed(2))
	fmt.Fprintf(writer, "Total payment amount: %s\n", report.TotalPaymentAmount.StringFixed(2))
}

func (rg *ReportGenerator) printMatches(matches []*matcher.MatchResult, writer io.Writer) {
	for i, match := range matches {
		if i >= rg.config.MaxListedItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(matches)-rg.config.MaxListedItems)
			break
		}

		fmt.Fprintf(writer, "  %d. %s <- payment %s (confidence %.2f)\n",
			i+1, match.Invoice.Number, match.Payment.ID, match.Confidence)
		fmt.Fprintf(writer, "     %s, %s from %s\n",
			match.Payment.Amount.StringFixed(2),
			match.Payment.TransactionDate.Format("2006-01-02"),
			match.Payment.SenderName)
		for _, reason := range match.Reasons {
			fmt.Fprintf(writer, "     - %s\n", reason)
		}
	}
}

func (rg *ReportGenerator) printGroupSuggestions(groups []*matcher.GroupMatchSuggestion, writer io.Writer) {
	for i, group := range groups {
		if i >= rg.config.MaxListedItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(groups)-rg.config.MaxListedItems)
			break
		}

		numbers := make([]string, 0, len(group.Invoices))
		for _, invoice := range group.Invoices {
			numbers = append(numbers, invoice.Number)
		}

		fmt.Fprintf(writer, "  %d. payment %s (%s) covers %d invoices of %s (confidence %.2f)\n",
			i+1, group.Payment.ID, group.Payment.Amount.StringFixed(2),
			len(group.Invoices), group.BuyerName, group.Confidence)
		fmt.Fprintf(writer, "     invoices: %s\n", strings.Join(numbers, ", "))
		for _, reason := range group.Reasons {
			fmt.Fprintf(writer, "     - %s\n", reason)
		}
	}
}

func (rg *ReportGenerator) printUnmatchedInvoices(invoices []*models.Invoice, writer io.Writer) {
	fmt.Fprintf(writer, "Total: %d\n", len(invoices))
	for i, invoice := range invoices {
		if i >= rg.config.MaxListedItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(invoices)-rg.config.MaxListedItems)
			break
		}
		fmt.Fprintf(writer, "  %d. %s, %s %s, %s, due %s\n",
			i+1, invoice.Number,
			invoice.GrossAmount.StringFixed(2), invoice.Currency,
			invoice.BuyerName,
			invoice.DueDate.Format("2006-01-02"))
	}
}

func (rg *ReportGenerator) printUnmatchedPayments(payments []*models.Payment, writer io.Writer) {
	fmt.Fprintf(writer, "Total: %d\n", len(payments))
	for i, payment := range payments {
		if i >= rg.config.MaxListedItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(payments)-rg.config.MaxListedItems)
			break
		}
		title := payment.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Fprintf(writer, "  %d. %s, %s %s, %s, %q\n",
			i+1, payment.ID,
			payment.Amount.StringFixed(2), payment.Currency,
			payment.TransactionDate.Format("2006-01-02"),
			title)
	}
}

func (rg *ReportGenerator) printProcessingStats(stats *service.ProcessingStats, writer io.Writer) {
	fmt.Fprintf(writer, "Files Processed:  %d\n", stats.FilesProcessed)
	fmt.Fprintf(writer, "Invoices Parsed:  %d\n", stats.InvoicesParsed)
	fmt.Fprintf(writer, "Payments Parsed:  %d\n", stats.PaymentsParsed)
	fmt.Fprintf(writer, "Parse Errors:     %d\n", stats.ParseErrors)
	fmt.Fprintf(writer, "Parsing Time:     %v\n", stats.ParsingTime)
	fmt.Fprintf(writer, "Matching Time:    %v\n", stats.MatchingTime)
	fmt.Fprintf(writer, "Total Time:       %v\n", stats.TotalTime)

	for _, sample := range stats.SampleErrors {
		fmt.Fprintf(writer, "  parse error: %s\n", sample)
	}
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) filterReportForOutput(report *service.MatchReport) map[string]interface{} {
	run := report.Run

	output := map[string]interface{}{
		"summary":              run.Summary,
		"processed_at":         report.ProcessedAt,
		"total_invoice_amount": report.TotalInvoiceAmount,
		"total_payment_amount": report.TotalPaymentAmount,
	}
	if report.DateRange != nil {
		output["date_range"] = report.DateRange
	}
	if run.Err != nil {
		output["error"] = run.Err
	}

	if rg.config.IncludeAutoMatches && run.AutoMatches != nil {
		output["auto_matches"] = run.AutoMatches
	}
	if rg.config.IncludeSuggestions && run.Suggestions != nil {
		output["suggestions"] = run.Suggestions
	}
	if rg.config.IncludeGroupSuggestions && run.GroupSuggestions != nil {
		output["group_suggestions"] = run.GroupSuggestions
	}
	if rg.config.IncludeUnmatchedInvoices && run.UnmatchedInvoices != nil {
		output["unmatched_invoices"] = run.UnmatchedInvoices
	}
	if rg.config.IncludeUnmatchedPayments && run.UnmatchedPayments != nil {
		output["unmatched_payments"] = run.UnmatchedPayments
	}
	if rg.config.IncludeProcessingStats && report.Stats != nil {
		output["processing_stats"] = report.Stats
	}

	return output
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
