package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"invoice-payment-matching-service/cmd/matcher/config"
	"invoice-payment-matching-service/internal/matcher"
	"invoice-payment-matching-service/internal/reporter"
	"invoice-payment-matching-service/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the match command
var (
	invoiceFile  string
	paymentFiles []string
	outputFormat string
	outputFile   string
	startDate    string
	endDate      string

	autoThreshold       float64
	suggestionThreshold float64
	maxSuggestions      int
	strictMode          bool
	relaxedMode         bool

	enableGroups  bool
	groupMonths   int
	includeDebits bool
)

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match invoices with incoming bank payments",
	Long: `Match compares issued invoices with incoming bank transfers to find
which invoice each payment settles.

This command requires:
- An invoice CSV export
- One or more bank statement CSV files

Examples:
  # Basic matching
  matcher match --invoices invoices.csv --payments statement.csv

  # Multiple statements with date filtering
  matcher match --invoices inv.csv --payments bank1.csv,bank2.csv \
    --start-date 2025-12-01 --end-date 2025-12-31

  # Custom thresholds and JSON output
  matcher match --invoices inv.csv --payments stmt.csv \
    --format json --output report.json \
    --auto-threshold 0.9 --suggestion-threshold 0.7

  # Disable group payment detection
  matcher match --invoices inv.csv --payments stmt.csv --groups=false`,

	PreRunE: validateMatchFlags,
	RunE:    runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	// Required flags
	matchCmd.Flags().StringVarP(&invoiceFile, "invoices", "i", "", "path to invoice CSV export (required)")
	matchCmd.Flags().StringSliceVarP(&paymentFiles, "payments", "p", []string{}, "comma-separated paths to bank statement CSV files (required)")

	// Output flags
	matchCmd.Flags().StringVarP(&outputFormat, "format", "f", "console", "output format: console, json, csv")
	matchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path (default: stdout)")

	// Date filtering flags
	matchCmd.Flags().StringVar(&startDate, "start-date", "", "filter start date (YYYY-MM-DD)")
	matchCmd.Flags().StringVar(&endDate, "end-date", "", "filter end date (YYYY-MM-DD)")

	// Matching configuration flags
	matchCmd.Flags().Float64Var(&autoThreshold, "auto-threshold", 0, "minimum confidence for automatic matches (0-1, 0 = default)")
	matchCmd.Flags().Float64Var(&suggestionThreshold, "suggestion-threshold", 0, "minimum confidence for suggestions (0-1, 0 = default)")
	matchCmd.Flags().IntVar(&maxSuggestions, "max-suggestions", 0, "cap on emitted suggestions (0 = default)")
	matchCmd.Flags().BoolVar(&strictMode, "strict", false, "use the strict matching preset")
	matchCmd.Flags().BoolVar(&relaxedMode, "relaxed", false, "use the relaxed matching preset")

	// Group matching flags
	matchCmd.Flags().BoolVar(&enableGroups, "groups", true, "detect one payment covering several invoices")
	matchCmd.Flags().IntVar(&groupMonths, "group-months", 0, "maximum months a group may span (0 = default)")

	// Parsing flags
	matchCmd.Flags().BoolVar(&includeDebits, "include-debits", false, "keep outgoing transactions from the statements")

	matchCmd.MarkFlagRequired("invoices")
	matchCmd.MarkFlagRequired("payments")

	viper.BindPFlag("invoices", matchCmd.Flags().Lookup("invoices"))
	viper.BindPFlag("payments", matchCmd.Flags().Lookup("payments"))
	viper.BindPFlag("format", matchCmd.Flags().Lookup("format"))
	viper.BindPFlag("output", matchCmd.Flags().Lookup("output"))
	viper.BindPFlag("start-date", matchCmd.Flags().Lookup("start-date"))
	viper.BindPFlag("end-date", matchCmd.Flags().Lookup("end-date"))
	viper.BindPFlag("auto-threshold", matchCmd.Flags().Lookup("auto-threshold"))
	viper.BindPFlag("suggestion-threshold", matchCmd.Flags().Lookup("suggestion-threshold"))
	viper.BindPFlag("max-suggestions", matchCmd.Flags().Lookup("max-suggestions"))
	viper.BindPFlag("strict", matchCmd.Flags().Lookup("strict"))
	viper.BindPFlag("relaxed", matchCmd.Flags().Lookup("relaxed"))
	viper.BindPFlag("groups", matchCmd.Flags().Lookup("groups"))
	viper.BindPFlag("group-months", matchCmd.Flags().Lookup("group-months"))
	viper.BindPFlag("include-debits", matchCmd.Flags().Lookup("include-debits"))
}

func validateMatchFlags(cmd *cobra.Command, args []string) error {
	// Viper values win so the config file and MATCHER_* env vars can
	// override defaults.
	invoiceFile = viper.GetString("invoices")
	paymentFiles = viper.GetStringSlice("payments")
	outputFormat = viper.GetString("format")
	outputFile = viper.GetString("output")
	startDate = viper.GetString("start-date")
	endDate = viper.GetString("end-date")
	autoThreshold = viper.GetFloat64("auto-threshold")
	suggestionThreshold = viper.GetFloat64("suggestion-threshold")
	maxSuggestions = viper.GetInt("max-suggestions")
	strictMode = viper.GetBool("strict")
	relaxedMode = viper.GetBool("relaxed")
	enableGroups = viper.GetBool("groups")
	groupMonths = viper.GetInt("group-months")
	includeDebits = viper.GetBool("include-debits")

	if invoiceFile == "" {
		return fmt.Errorf("invoices file is required")
	}
	if len(paymentFiles) == 0 {
		return fmt.Errorf("at least one payments file is required")
	}

	if err := validateFileExists(invoiceFile, "invoice file"); err != nil {
		return err
	}
	for i, paymentFile := range paymentFiles {
		if err := validateFileExists(paymentFile, fmt.Sprintf("payment file %d", i+1)); err != nil {
			return err
		}
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			return fmt.Errorf("invalid start date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			return fmt.Errorf("invalid end date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if startDate != "" && endDate != "" {
		start, _ := time.Parse("2006-01-02", startDate)
		end, _ := time.Parse("2006-01-02", endDate)
		if start.After(end) {
			return fmt.Errorf("start date cannot be after end date")
		}
	}

	if autoThreshold < 0 || autoThreshold > 1 {
		return fmt.Errorf("auto threshold must be between 0 and 1")
	}
	if suggestionThreshold < 0 || suggestionThreshold > 1 {
		return fmt.Errorf("suggestion threshold must be between 0 and 1")
	}
	if maxSuggestions < 0 {
		return fmt.Errorf("max suggestions cannot be negative")
	}
	if groupMonths < 0 {
		return fmt.Errorf("group months cannot be negative")
	}
	if strictMode && relaxedMode {
		return fmt.Errorf("strict and relaxed presets are mutually exclusive")
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting matching...\n")
		fmt.Fprintf(os.Stderr, "Invoice file: %s\n", invoiceFile)
		fmt.Fprintf(os.Stderr, "Payment files: %s\n", strings.Join(paymentFiles, ", "))
		fmt.Fprintf(os.Stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "Output file: %s\n", outputFile)
		}
	}

	matchingConfig := config.CreateMatchingConfig(config.MatchingOverrides{
		Strict:              strictMode,
		Relaxed:             relaxedMode,
		AutoThreshold:       autoThreshold,
		SuggestionThreshold: suggestionThreshold,
		MaxSuggestions:      maxSuggestions,
		GroupMonths:         groupMonths,
	})
	serviceConfig := config.CreateServiceConfig(enableGroups, groupMonths)
	paymentConfig := config.CreatePaymentParserConfig(includeDebits)

	matchingService, err := service.NewMatchingService(nil, paymentConfig, matchingConfig, serviceConfig)
	if err != nil {
		return fmt.Errorf("failed to create matching service: %w", err)
	}
	if viper.GetBool("verbose") {
		matchingService.Engine().WithTracer(matcher.NewLogTracer(nil))
	}

	var startTime, endTime *time.Time
	if startDate != "" {
		t, _ := time.Parse("2006-01-02", startDate)
		startTime = &t
	}
	if endDate != "" {
		t, _ := time.Parse("2006-01-02", endDate)
		// End of day so same-day payments are included.
		t = t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
		endTime = &t
	}

	request := &service.MatchRequest{
		InvoiceFile:  invoiceFile,
		PaymentFiles: paymentFiles,
		StartDate:    startTime,
		EndDate:      endTime,
	}

	report, err := matchingService.ProcessMatching(ctx, request)
	if err != nil && report == nil {
		return fmt.Errorf("matching failed: %w", err)
	}
	// A refused run still renders: the report explains the refusal and
	// lists everything as unmatched.
	refused := err != nil

	reportConfig := config.CreateReportConfig(outputFormat)
	safeGenerator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	if err := safeGenerator.WriteToPath(report, outputFile); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		summary := report.Run.Summary
		fmt.Fprintf(os.Stderr, "\nMatching completed.\n")
		fmt.Fprintf(os.Stderr, "Processed %d invoices and %d payments.\n",
			summary.TotalInvoices, summary.TotalPayments)
		fmt.Fprintf(os.Stderr, "Auto-matched %d, suggested %d, group suggestions %d.\n",
			summary.AutoMatched, summary.Suggested, summary.GroupSuggested)
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", report.Stats.TotalTime)
	}

	if refused {
		return report.Run.Err
	}
	return nil
}
