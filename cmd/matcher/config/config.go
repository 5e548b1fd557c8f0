// Package config builds the concrete configuration objects the CLI
// passes to the matching service, applying flag overrides on top of the
// library defaults.
package config

import (
	"invoice-payment-matching-service/internal/matcher"
	"invoice-payment-matching-service/internal/parsers"
	"invoice-payment-matching-service/internal/reporter"
	"invoice-payment-matching-service/internal/service"
)

// MatchingOverrides carries the CLI flag values that override the
// matching defaults. Zero values leave the preset untouched.
type MatchingOverrides struct {
	Strict              bool
	Relaxed             bool
	AutoThreshold       float64
	SuggestionThreshold float64
	MaxSuggestions      int
	GroupMonths         int
}

// CreateMatchingConfig creates a matching configuration from the chosen
// preset plus explicit overrides.
func CreateMatchingConfig(overrides MatchingOverrides) *matcher.MatchingConfig {
	var config *matcher.MatchingConfig
	switch {
	case overrides.Strict:
		config = matcher.StrictMatchingConfig()
	case overrides.Relaxed:
		config = matcher.RelaxedMatchingConfig()
	default:
		config = matcher.DefaultMatchingConfig()
	}

	if overrides.AutoThreshold > 0 {
		config.AutoMatchThreshold = overrides.AutoThreshold
	}
	if overrides.SuggestionThreshold > 0 {
		config.SuggestionThreshold = overrides.SuggestionThreshold
	}
	if overrides.MaxSuggestions > 0 {
		config.MaxSuggestions = overrides.MaxSuggestions
	}
	if overrides.GroupMonths > 0 {
		config.MaxMonthsToGroup = overrides.GroupMonths
	}

	return config
}

// CreateServiceConfig creates a service configuration from CLI flags.
func CreateServiceConfig(enableGroups bool, groupMonths int) *service.Config {
	config := service.DefaultConfig()
	config.EnableGroupMatching = enableGroups
	if groupMonths > 0 {
		config.MaxMonthsToGroup = groupMonths
	}
	return config
}

// CreatePaymentParserConfig creates a bank statement parser configuration.
func CreatePaymentParserConfig(includeDebits bool) *parsers.PaymentParserConfig {
	config := parsers.DefaultPaymentParserConfig()
	config.IncludeDebits = includeDebits
	return config
}

// CreateReportConfig creates a report configuration for the specified
// output format.
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		// CSV is for row data, stats live in the other formats.
		config.IncludeProcessingStats = false
	}

	return config
}
