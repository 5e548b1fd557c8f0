package matcher

import (
	"fmt"
	"sort"
	"time"

	"invoice-payment-matching-service/internal/models"
	"invoice-payment-matching-service/pkg/errors"
	"invoice-payment-matching-service/pkg/logger"
)

// Engine matches incoming bank payments against outstanding invoices. It
// is stateless between calls: every run takes a full snapshot of both
// sides and returns a complete result set. The engine is synchronous and
// single-threaded; callers wanting background execution run it on their
// own goroutine.
type Engine struct {
	config *MatchingConfig
	tracer Tracer
	logger logger.Logger
}

// NewEngine creates a matching engine with the given configuration. A nil
// configuration selects the defaults.
func NewEngine(config *MatchingConfig) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	return &Engine{
		config: config.Clone(),
		tracer: NopTracer{},
		logger: logger.WithComponent("matcher"),
	}, nil
}

// WithTracer installs a scoring-event observer and returns the engine for
// chaining.
func (e *Engine) WithTracer(tracer Tracer) *Engine {
	if tracer != nil {
		e.tracer = tracer
	}
	return e
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() *MatchingConfig {
	return e.config.Clone()
}

// ExtendedOptions controls the optional second pass of FindMatchesExtended.
type ExtendedOptions struct {
	// EnableGroupMatching turns on the sum-matching pass over invoices
	// left unmatched by the pairwise pass.
	EnableGroupMatching bool
	// MaxMonthsToGroup overrides the configured multi-month span bound
	// when positive.
	MaxMonthsToGroup int
}

// RunSummary aggregates counters for one matching run.
type RunSummary struct {
	TotalInvoices     int           `json:"total_invoices"`
	MatchableInvoices int           `json:"matchable_invoices"`
	TotalPayments     int           `json:"total_payments"`
	PairsScored       int           `json:"pairs_scored"`
	AutoMatched       int           `json:"auto_matched"`
	Suggested         int           `json:"suggested"`
	GroupSuggested    int           `json:"group_suggested"`
	MatchRate         float64       `json:"match_rate"`
	ProcessingTime    time.Duration `json:"processing_time"`
}

// MatchRun is the complete result of one matching invocation. When Err is
// set the run was refused before any matching work and every input is
// conservatively reported unmatched.
type MatchRun struct {
	AutoMatches       []*MatchResult          `json:"auto_matches"`
	Suggestions       []*MatchResult          `json:"suggestions"`
	GroupSuggestions  []*GroupMatchSuggestion `json:"group_suggestions,omitempty"`
	UnmatchedInvoices []*models.Invoice       `json:"unmatched_invoices"`
	UnmatchedPayments []*models.Payment       `json:"unmatched_payments"`
	Summary           RunSummary              `json:"summary"`
	Err               *errors.MatcherError    `json:"error,omitempty"`
}

// FindMatches runs the pairwise pipeline: resource guard, candidate
// search, scoring, then greedy assignment into auto-matches and
// suggestions. On a capacity refusal the returned run carries the error
// and the full unmatched lists, and the same error is returned.
func (e *Engine) FindMatches(invoices []*models.Invoice, payments []*models.Payment) (*MatchRun, error) {
	return e.FindMatchesExtended(invoices, payments, ExtendedOptions{})
}

// FindMatchesExtended runs FindMatches and then, when enabled, the group
// sum-matching pass over the leftovers.
func (e *Engine) FindMatchesExtended(invoices []*models.Invoice, payments []*models.Payment, opts ExtendedOptions) (*MatchRun, error) {
	started := time.Now()

	if err := e.checkCapacity(len(invoices), len(payments)); err != nil {
		e.logger.WithFields(logger.Fields{
			"invoices": len(invoices),
			"payments": len(payments),
		}).Warn("Matching refused by resource guard")

		run := &MatchRun{
			AutoMatches:       []*MatchResult{},
			Suggestions:       []*MatchResult{},
			UnmatchedInvoices: append([]*models.Invoice{}, invoices...),
			UnmatchedPayments: append([]*models.Payment{}, payments...),
			Err:               err,
		}
		run.Summary = RunSummary{
			TotalInvoices:  len(invoices),
			TotalPayments:  len(payments),
			ProcessingTime: time.Since(started),
		}
		return run, err
	}

	matchable := filterMatchable(invoices)
	index := NewPaymentIndex(e.config, payments)

	e.logger.WithFields(logger.Fields{
		"invoices":  len(invoices),
		"matchable": len(matchable),
		"payments":  len(payments),
	}).Info("Starting matching run")

	scored := make([]*MatchResult, 0, len(matchable))
	pairsScored := 0
	for _, invoice := range matchable {
		for _, payment := range index.Candidates(invoice) {
			result := e.scorePair(invoice, payment)
			pairsScored++
			if result.Confidence >= e.config.SuggestionThreshold {
				scored = append(scored, result)
			}
		}
	}

	sortByConfidence(scored)

	run := e.resolve(matchable, payments, scored)
	run.Summary = RunSummary{
		TotalInvoices:     len(invoices),
		MatchableInvoices: len(matchable),
		TotalPayments:     len(payments),
		PairsScored:       pairsScored,
		AutoMatched:       len(run.AutoMatches),
		Suggested:         len(run.Suggestions),
	}

	if opts.EnableGroupMatching {
		maxMonths := e.config.MaxMonthsToGroup
		if opts.MaxMonthsToGroup > 0 {
			maxMonths = opts.MaxMonthsToGroup
		}
		run.GroupSuggestions = e.findGroupMatches(run.UnmatchedInvoices, run.UnmatchedPayments, maxMonths)
		run.Summary.GroupSuggested = len(run.GroupSuggestions)
	}

	if len(matchable) > 0 {
		run.Summary.MatchRate = float64(len(run.AutoMatches)) / float64(len(matchable)) * 100
	}
	run.Summary.ProcessingTime = time.Since(started)

	e.logger.WithFields(logger.Fields{
		"auto_matches":      len(run.AutoMatches),
		"suggestions":       len(run.Suggestions),
		"group_suggestions": len(run.GroupSuggestions),
		"processing_time":   run.Summary.ProcessingTime.String(),
	}).Info("Matching run completed")

	return run, nil
}

// resolve greedily assigns the scored pairs, highest confidence first.
// Auto-matches claim both sides; suggestions claim neither, so several
// suggestions may reference the same invoice or payment and the decision
// stays with the reviewer. The claim sets live only for this call.
func (e *Engine) resolve(matchable []*models.Invoice, payments []*models.Payment, scored []*MatchResult) *MatchRun {
	claimedInvoices := make(map[string]bool)
	claimedPayments := make(map[string]bool)

	autoMatches := []*MatchResult{}
	suggestions := []*MatchResult{}

	for _, result := range scored {
		if claimedInvoices[result.Invoice.ID] || claimedPayments[result.Payment.ID] {
			continue
		}

		if result.Confidence >= e.config.AutoMatchThreshold {
			autoMatches = append(autoMatches, result)
			claimedInvoices[result.Invoice.ID] = true
			claimedPayments[result.Payment.ID] = true
		} else {
			suggestions = append(suggestions, result)
		}
	}

	if len(suggestions) > e.config.MaxSuggestions {
		suggestions = suggestions[:e.config.MaxSuggestions]
	}

	unmatchedInvoices := []*models.Invoice{}
	for _, invoice := range matchable {
		if !claimedInvoices[invoice.ID] {
			unmatchedInvoices = append(unmatchedInvoices, invoice)
		}
	}

	unmatchedPayments := []*models.Payment{}
	for _, payment := range payments {
		if !claimedPayments[payment.ID] {
			unmatchedPayments = append(unmatchedPayments, payment)
		}
	}

	return &MatchRun{
		AutoMatches:       autoMatches,
		Suggestions:       suggestions,
		UnmatchedInvoices: unmatchedInvoices,
		UnmatchedPayments: unmatchedPayments,
	}
}

// checkCapacity is the fail-fast resource guard: it refuses runs whose
// record or comparison counts would be prohibitive, before any quadratic
// work happens. Callers are expected to retry with a narrower date range.
func (e *Engine) checkCapacity(invoiceCount, paymentCount int) *errors.MatcherError {
	if total := invoiceCount + paymentCount; total > e.config.MaxRecords {
		return errors.CapacityError(errors.CodeTooManyRecords,
			fmt.Sprintf("record count %d exceeds the maximum of %d", total, e.config.MaxRecords)).
			WithContext("invoice_count", invoiceCount).
			WithContext("payment_count", paymentCount).
			WithContext("max_records", e.config.MaxRecords)
	}

	if comparisons := invoiceCount * paymentCount; comparisons > e.config.MaxComparisons {
		return errors.CapacityError(errors.CodeTooManyComparisons,
			fmt.Sprintf("comparison count %d exceeds the maximum of %d", comparisons, e.config.MaxComparisons)).
			WithContext("invoice_count", invoiceCount).
			WithContext("payment_count", paymentCount).
			WithContext("max_comparisons", e.config.MaxComparisons)
	}

	return nil
}

func filterMatchable(invoices []*models.Invoice) []*models.Invoice {
	matchable := make([]*models.Invoice, 0, len(invoices))
	for _, invoice := range invoices {
		if invoice.IsMatchable() {
			matchable = append(matchable, invoice)
		}
	}
	return matchable
}

// sortByConfidence orders results by confidence descending with a stable
// ID tie-break, so identical inputs always produce identical output order.
func sortByConfidence(results []*MatchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		if results[i].Invoice.ID != results[j].Invoice.ID {
			return results[i].Invoice.ID < results[j].Invoice.ID
		}
		return results[i].Payment.ID < results[j].Payment.ID
	})
}
