package matcher

import "invoice-payment-matching-service/pkg/logger"

// Tracer is an optional observer for scoring events. The scorer invokes it
// as a side channel so the scoring logic itself stays pure; production
// runs use NopTracer, debugging and tests can inject a recording
// implementation.
type Tracer interface {
	// ScoredPair is called once per scored invoice/payment pair with the
	// complete result, including pairs below any threshold.
	ScoredPair(result *MatchResult)

	// RuleFired is called when a decision-tree rule determines the
	// confidence for a pair.
	RuleFired(invoiceID, paymentID, rule string)
}

// NopTracer discards all scoring events.
type NopTracer struct{}

func (NopTracer) ScoredPair(*MatchResult) {}

func (NopTracer) RuleFired(string, string, string) {}

// LogTracer emits scoring events at debug level. The CLI installs it in
// verbose mode.
type LogTracer struct {
	log logger.Logger
}

// NewLogTracer returns a tracer writing to log, or to the global logger
// when log is nil.
func NewLogTracer(log logger.Logger) *LogTracer {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LogTracer{log: log.WithComponent("trace")}
}

func (t *LogTracer) ScoredPair(result *MatchResult) {
	t.log.WithFields(logger.Fields{
		"invoice_id": result.Invoice.ID,
		"payment_id": result.Payment.ID,
		"confidence": result.Confidence,
	}).Debug("pair scored")
}

func (t *LogTracer) RuleFired(invoiceID, paymentID, rule string) {
	t.log.WithFields(logger.Fields{
		"invoice_id": invoiceID,
		"payment_id": paymentID,
		"rule":       rule,
	}).Debug("rule fired")
}
