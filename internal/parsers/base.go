// Package parsers turns raw CSV exports into normalized invoices and
// payments for the matching engine: accounting-system invoice exports on
// one side, bank statement files on the other. Parsers tolerate the
// format variations found in real exports (column naming, date formats,
// decimal separators, currency symbols) and report per-row errors without
// aborting the whole file.
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"invoice-payment-matching-service/pkg/errors"
	"invoice-payment-matching-service/pkg/logger"
)

// RowError describes a problem with one CSV row.
type RowError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("row error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// baseParser provides the CSV plumbing shared by the invoice and payment
// parsers.
type baseParser struct {
	config *ParseConfig
	logger logger.Logger
}

func newBaseParser(config *ParseConfig, component string) *baseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &baseParser{
		config: config,
		logger: logger.WithComponent(component),
	}
}

// parseContext holds state during one file parse.
type parseContext struct {
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

func newParseContext(ctx context.Context) *parseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &parseContext{
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

func (pc *parseContext) isCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// columnIndex resolves a logical field to a column index via the header
// map, falling back to a case-insensitive lookup.
func (pc *parseContext) columnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	lower := strings.ToLower(name)
	for header, index := range pc.HeaderMap {
		if strings.ToLower(header) == lower {
			return index
		}
	}
	return -1
}

// openFile opens a CSV file, optionally validates its encoding, and
// returns a configured reader.
func (bp *baseParser) openFile(filePath string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, 0); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

// validateEncoding checks the first lines of the file for valid UTF-8.
func (bp *baseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeEncodingError, filePath, lineNum, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding detected"))
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	return nil
}

// readHeaders reads the header row and verifies the required columns are
// present.
func (bp *baseParser) readHeaders(reader *csv.Reader, parseCtx *parseContext, filePath string, required []string) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = append([]string{}, required...)
		bp.buildHeaderMap(parseCtx)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
				WithSuggestion("ensure the file contains header and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, filePath, 1, "headers", "", err)
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	for i, header := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(header)
	}
	bp.buildHeaderMap(parseCtx)

	var missing []string
	for _, header := range required {
		if parseCtx.columnIndex(header) == -1 {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(
			errors.CodeMissingColumn, filePath, parseCtx.LineNumber, "headers",
			strings.Join(missing, ", "), nil)
	}

	return nil
}

func (bp *baseParser) buildHeaderMap(parseCtx *parseContext) {
	parseCtx.HeaderMap = make(map[string]int)
	for i, header := range parseCtx.Headers {
		parseCtx.HeaderMap[header] = i
	}
}

// readRecord reads the next non-empty CSV record.
func (bp *baseParser) readRecord(reader *csv.Reader, parseCtx *parseContext) ([]string, error) {
	for {
		if parseCtx.isCancelled() {
			return nil, parseCtx.ctx.Err()
		}

		record, err := reader.Read()
		if err != nil {
			return nil, err
		}

		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// fieldValue retrieves a field by logical column name; the empty string
// means the column is absent or the row is short, which callers treat as
// missing optional data.
func fieldValue(record []string, parseCtx *parseContext, column string) string {
	if column == "" {
		return ""
	}
	index := parseCtx.columnIndex(column)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	SkippedRows   int
	ErrorCount    int
	Errors        []*RowError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*RowError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *RowError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid, %d skipped), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.SkippedRows, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples error messages for logging.
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
