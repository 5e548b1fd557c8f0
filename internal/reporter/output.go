package reporter

import (
	"fmt"
	"io"
	"os"

	"invoice-payment-matching-service/internal/service"
	"invoice-payment-matching-service/pkg/errors"
	"invoice-payment-matching-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with output handling and a
// console fallback when the requested format fails.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a report generator with error handling.
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig, "report_config", config, err).
			WithSuggestion("check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// WriteToPath renders the report to the given path. An empty path or "-"
// selects standard output.
func (srg *SafeReportGenerator) WriteToPath(report *service.MatchReport, path string) error {
	if path == "" || path == "-" {
		return srg.GenerateReportSafely(report, os.Stdout)
	}

	file, err := os.Create(path)
	if err != nil {
		srg.logger.WithError(err).WithField("output_file", path).Error("Failed to create output file")
		if os.IsPermission(err) {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer file.Close()

	return srg.GenerateReportSafely(report, file)
}

// GenerateReportSafely generates a report, falling back to the console
// format when a structured format fails mid-write.
func (srg *SafeReportGenerator) GenerateReportSafely(report *service.MatchReport, writer io.Writer) error {
	if report == nil || report.Run == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil).
			WithSuggestion("run matching before generating a report")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}

	srg.logger.WithField("format", srg.config.Format).Debug("Generating report")

	err := srg.GenerateReport(report, writer)
	if err == nil {
		return nil
	}

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).Warn("Report generation failed, falling back to console format")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackGenerator, fallbackErr := NewReportGenerator(&fallbackConfig)
	if fallbackErr != nil {
		return srg.wrapGenerationError(err)
	}

	fmt.Fprintf(writer, "NOTE: report rendered in console format, %s output failed: %v\n\n",
		srg.config.Format, err)

	if fallbackErr := fallbackGenerator.GenerateReport(report, writer); fallbackErr != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, fallbackErr))
	}
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if matcherErr, ok := errors.AsMatcherError(err); ok {
		return matcherErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("check the output destination and report format settings")
}
