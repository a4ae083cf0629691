// Package engine runs emails through the extraction pipeline: preprocessing,
// regex extraction, model extraction and validation, one state machine per
// email, fanned out over a bounded worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/digital-asset-harvester/internal/llm"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
	"github.com/Veraticus/digital-asset-harvester/internal/validation"
)

var errNoModel = errors.New("no regex profile matched and model extraction is disabled")

// Outcome is the terminal result for one email.
type Outcome struct {
	Err       error
	Purchase  *model.Purchase
	MessageID string
	Signal    string // preprocessing signal
	Reason    RejectReason
	ErrorKind string
	State     State
	Path      []State
	Warnings  []string
	Duplicate bool
}

func (o *Outcome) advance(to State) {
	if len(o.Path) > 0 && !canTransition(o.State, to) {
		panic(fmt.Sprintf("illegal transition %s -> %s", o.State, to))
	}
	o.State = to
	o.Path = append(o.Path, to)
}

// Orchestrator drives a single email through the pipeline. It is safe for
// concurrent use when its stages are.
type Orchestrator struct {
	preprocessor Preprocessor
	regex        RegexExtractor
	model        ModelExtractor
	validator    Validator
	metrics      *metrics.ProcessingMetrics
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPreprocessor enables the preprocessing filter. Without one every email
// proceeds to regex extraction.
func WithPreprocessor(p Preprocessor) Option {
	return func(o *Orchestrator) { o.preprocessor = p }
}

// WithModel enables model extraction for emails no regex profile matches.
func WithModel(m ModelExtractor) Option {
	return func(o *Orchestrator) { o.model = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator over the mandatory regex and
// validation stages.
func NewOrchestrator(regex RegexExtractor, validator Validator, m *metrics.ProcessingMetrics, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		regex:     regex,
		validator: validator,
		metrics:   m,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs email to a terminal state. It never panics and never returns
// an error; failures are reported as REJECTED outcomes with a reason.
func (o *Orchestrator) Process(ctx context.Context, email model.RawEmail) (out Outcome) {
	out = Outcome{MessageID: email.MessageID}

	defer func() {
		if rec := recover(); rec != nil {
			o.metrics.Inc(metrics.Exceptions)
			o.logger.Error("Pipeline stage panicked",
				"message_id", email.MessageID,
				"state", out.State,
				"panic", rec)
			err := fmt.Errorf("panic in state %s: %v", out.State, rec)
			out.State = StateRejected
			out.Path = append(out.Path, StateRejected)
			out.Purchase = nil
			o.finishRejected(&out, ReasonInternalError, kindPanic, err)
		}
	}()

	out.advance(StateReceived)
	o.metrics.Inc(metrics.EmailsTotal)

	decision := model.Decision{Verdict: model.VerdictUncertain}
	if o.preprocessor != nil {
		decision = o.preprocessor.Classify(email)
	}
	out.Signal = decision.Signal
	out.advance(StatePreprocessed)

	if decision.Verdict == model.VerdictLikelyNonPurchase {
		out.advance(StateFiltered)
		o.logger.Debug("Email filtered", "message_id", email.MessageID, "signal", decision.Signal)
		return out
	}

	out.advance(StateRegexAttempted)
	candidate, matched := o.regex.Extract(email)
	if matched {
		out.advance(StateRegexMatched)
		o.metrics.Inc(metrics.RegexHits)
	} else {
		out.advance(StateRegexMissed)
		if o.model == nil {
			out.advance(StateRejected)
			o.finishRejected(&out, ReasonExtractionFailed, kindNoModel, errNoModel)
			return out
		}

		out.advance(StateLLMAttempted)
		c, err := o.model.ExtractWithFallback(ctx, email)
		if err != nil {
			out.advance(StateLLMFailed)
			kind := kindNoPurchase
			if !errors.Is(err, llm.ErrNoPurchase) {
				o.metrics.Inc(metrics.LLMFailures)
				if llm.IsConnectivityFailure(err) {
					o.metrics.Inc(metrics.LLMUnreachable)
				}
				kind = string(llm.KindOf(err))
				if kind == "" {
					kind = string(llm.KindExhausted)
				}
			}
			out.advance(StateRejected)
			o.finishRejected(&out, ReasonExtractionFailed, kind, err)
			return out
		}
		out.advance(StateLLMSucceeded)
		o.metrics.Inc(metrics.LLMHits)
		candidate = c
	}

	result := o.validator.Check(candidate)
	out.advance(StateValidated)

	if result.Status == validation.Rejected {
		out.advance(StateRejected)
		var err error
		kind := ""
		if result.Rejection != nil {
			err, kind = result.Rejection, string(result.Rejection.Kind)
		}
		o.finishRejected(&out, ReasonValidationFailed, kind, err)
		return out
	}

	purchase := result.Purchase
	out.Purchase = &purchase
	out.Warnings = result.Warnings
	out.advance(StateAccepted)
	o.metrics.Inc(metrics.Accepted)

	o.logger.Debug("Purchase accepted",
		"message_id", email.MessageID,
		"vendor", purchase.Vendor,
		"symbol", purchase.CryptoSymbol,
		"source", purchase.Source,
		"warnings", len(purchase.Warnings))
	return out
}

func (o *Orchestrator) finishRejected(out *Outcome, reason RejectReason, kind string, err error) {
	out.Reason = reason
	out.ErrorKind = kind
	out.Err = err
	o.metrics.RecordRejection(string(reason))
	o.logger.Debug("Email rejected",
		"message_id", out.MessageID,
		"reason", reason,
		"kind", kind,
		"error", err)
}
