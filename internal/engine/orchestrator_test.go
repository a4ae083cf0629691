package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
	"github.com/Veraticus/digital-asset-harvester/internal/llm"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
	"github.com/Veraticus/digital-asset-harvester/internal/preprocess"
	"github.com/Veraticus/digital-asset-harvester/internal/validation"
)

var mailDate = time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)

type countingRegex struct {
	inner RegexExtractor
	calls atomic.Int32
}

func (c *countingRegex) Extract(email model.RawEmail) (model.Candidate, bool) {
	c.calls.Add(1)
	return c.inner.Extract(email)
}

type panickingRegex struct{}

func (panickingRegex) Extract(model.RawEmail) (model.Candidate, bool) {
	panic("boom")
}

type testPipeline struct {
	orchestrator *Orchestrator
	model        *MockModelExtractor
	regex        *countingRegex
	metrics      *metrics.ProcessingMetrics
}

func newTestPipeline(t *testing.T, mode model.ValidationMode) *testPipeline {
	t.Helper()
	m := metrics.New()
	pre, err := preprocess.New(preprocess.DefaultKeywords(), m, nil)
	require.NoError(t, err)

	regex := &countingRegex{inner: extractor.NewRegistry(extractor.DefaultProfiles(), nil)}
	mock := NewMockModelExtractor()
	v := validation.New(validation.Options{Mode: mode, MinConfidence: 0.6}, m, nil)

	return &testPipeline{
		orchestrator: NewOrchestrator(regex, v, m, WithPreprocessor(pre), WithModel(mock)),
		model:        mock,
		regex:        regex,
		metrics:      m,
	}
}

func coinbaseEmail(id string) model.RawEmail {
	return model.RawEmail{
		MessageID: id,
		From:      "Coinbase <no-reply@coinbase.com>",
		Subject:   "You bought Bitcoin",
		Date:      mailDate,
		TextBody:  "You bought 0.5 BTC for $30,000.00 USD. Transaction ID: QWERTY12345",
	}
}

func priceAlertEmail(id string) model.RawEmail {
	return model.RawEmail{
		MessageID: id,
		From:      "alerts@cryptonews.example",
		Subject:   "Bitcoin Price Alert",
		Date:      mailDate,
		TextBody:  "Bitcoin is up 5% today. Read our weekly newsletter for more.",
	}
}

func unknownVendorEmail(id string) model.RawEmail {
	return model.RawEmail{
		MessageID: id,
		From:      "receipts@randomshop.com",
		Subject:   "Your receipt",
		Date:      mailDate,
		TextBody:  "You bought 0.5 BTC for $100.00 USD.",
	}
}

func llmCandidate(currency string, confidence float64) model.Candidate {
	return model.Candidate{
		Vendor:       "RandomShop",
		CryptoSymbol: "BTC",
		CryptoAmount: decimal.NewNullDecimal(decimal.RequireFromString("0.5")),
		FiatAmount:   decimal.NewNullDecimal(decimal.RequireFromString("100.00")),
		FiatCurrency: currency,
		PurchaseDate: mailDate,
		Confidence:   confidence,
	}
}

func TestProcess_RegexPath(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)

	out := p.orchestrator.Process(context.Background(), coinbaseEmail("<cb-1>"))

	require.Equal(t, StateAccepted, out.State)
	require.NotNil(t, out.Purchase)
	assert.Equal(t, []State{
		StateReceived, StatePreprocessed, StateRegexAttempted,
		StateRegexMatched, StateValidated, StateAccepted,
	}, out.Path)

	purchase := out.Purchase
	assert.Equal(t, "Coinbase", purchase.Vendor)
	assert.Equal(t, "BTC", purchase.CryptoSymbol)
	assert.True(t, purchase.CryptoAmount.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, purchase.FiatAmount.Equal(decimal.RequireFromString("30000.00")))
	assert.Equal(t, "USD", purchase.FiatCurrency)
	assert.Equal(t, "QWERTY12345", purchase.TransactionID)
	assert.Equal(t, model.SourceRegex, purchase.Source)

	assert.Equal(t, 0, p.model.CallCount())
	assert.Equal(t, int64(1), p.metrics.Get(metrics.RegexHits))
	assert.Equal(t, int64(1), p.metrics.Get(metrics.Accepted))
	assert.Equal(t, int64(1), p.metrics.Get(metrics.EmailsTotal))
}

func TestProcess_FilteredMakesNoExtractionCalls(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)

	out := p.orchestrator.Process(context.Background(), priceAlertEmail("<alert-1>"))

	assert.Equal(t, StateFiltered, out.State)
	assert.Equal(t, []State{StateReceived, StatePreprocessed, StateFiltered}, out.Path)
	assert.Equal(t, "price alert", out.Signal)
	assert.Nil(t, out.Purchase)
	assert.Equal(t, int32(0), p.regex.calls.Load())
	assert.Equal(t, 0, p.model.CallCount())
	assert.Equal(t, int64(1), p.metrics.Get(metrics.FilteredOut))
	assert.Equal(t, int64(0), p.metrics.Get(metrics.Rejected))
}

func TestProcess_LLMPath(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	p.model.WithResponse("<shop-1>", llmCandidate("USD", 0.85))

	out := p.orchestrator.Process(context.Background(), unknownVendorEmail("<shop-1>"))

	require.Equal(t, StateAccepted, out.State)
	assert.Equal(t, []State{
		StateReceived, StatePreprocessed, StateRegexAttempted, StateRegexMissed,
		StateLLMAttempted, StateLLMSucceeded, StateValidated, StateAccepted,
	}, out.Path)
	assert.Equal(t, model.SourceLLM, out.Purchase.Source)
	assert.Equal(t, 1, p.model.CallCount())
	assert.Equal(t, int32(1), p.regex.calls.Load())
	assert.Equal(t, int64(1), p.metrics.Get(metrics.LLMHits))
	assert.Zero(t, p.metrics.Get(metrics.RegexHits))
}

// lateClient answers successfully after delay even if its context is cancelled.
type lateClient struct {
	provider llm.Provider
	delay    time.Duration
	calls    atomic.Int32
}

func (l *lateClient) Provider() llm.Provider { return l.provider }

func (l *lateClient) ExtractViaModel(_ context.Context, email model.RawEmail) (model.Candidate, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	c := llmCandidate("USD", 0.9)
	c.Provider = string(l.provider)
	c.MessageID = email.MessageID
	c.Source = model.SourceLLM
	return c, nil
}

func TestProcess_LLMHitsCountsOnlyTheReturnedAnswer(t *testing.T) {
	m := metrics.New()
	primary := &lateClient{provider: llm.ProviderOllama, delay: 80 * time.Millisecond}
	secondary := &lateClient{provider: llm.ProviderOpenAI}
	controller := llm.NewFallbackController(primary, secondary, 20*time.Millisecond, m, nil)

	v := validation.New(validation.Options{Mode: model.ModeStrict, MinConfidence: 0.6}, m, nil)
	o := NewOrchestrator(extractor.NewRegistry(extractor.DefaultProfiles(), nil), v, m, WithModel(controller))

	out := o.Process(context.Background(), unknownVendorEmail("<shop-late>"))

	require.Equal(t, StateAccepted, out.State)
	assert.Equal(t, "openai", out.Purchase.Provider)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), secondary.calls.Load())
	assert.Equal(t, int64(1), m.Get(metrics.LLMFallbackTriggered))
	assert.Equal(t, int64(1), m.Get(metrics.LLMHits))
}

func TestProcess_LowercaseCurrency(t *testing.T) {
	t.Run("strict rejects", func(t *testing.T) {
		p := newTestPipeline(t, model.ModeStrict)
		p.model.WithResponse("<shop-1>", llmCandidate("usd", 0.9))

		out := p.orchestrator.Process(context.Background(), unknownVendorEmail("<shop-1>"))

		assert.Equal(t, StateRejected, out.State)
		assert.Equal(t, ReasonValidationFailed, out.Reason)
		assert.Equal(t, string(validation.KindOutOfRange), out.ErrorKind)
		assert.ErrorIs(t, out.Err, validation.ErrInvalid)
		assert.Equal(t, int64(1), p.metrics.Get(metrics.ValidationFailures))
		assert.Equal(t, map[string]int64{"VALIDATION_FAILED": 1}, p.metrics.Snapshot().RejectReasons)
	})

	t.Run("lenient normalizes with warning", func(t *testing.T) {
		p := newTestPipeline(t, model.ModeLenient)
		p.model.WithResponse("<shop-1>", llmCandidate("usd", 0.9))

		out := p.orchestrator.Process(context.Background(), unknownVendorEmail("<shop-1>"))

		require.Equal(t, StateAccepted, out.State)
		assert.Equal(t, "USD", out.Purchase.FiatCurrency)
		assert.Len(t, out.Warnings, 1)
		assert.Equal(t, model.ModeLenient, out.Purchase.Mode)
	})
}

func TestProcess_LowConfidenceRejected(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	p.model.WithResponse("<shop-1>", llmCandidate("USD", 0.3))

	out := p.orchestrator.Process(context.Background(), unknownVendorEmail("<shop-1>"))

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, string(validation.KindLowConfidence), out.ErrorKind)
}

func TestProcess_LLMFailure(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	p.model.WithError("<shop-1>", &llm.Error{
		Kind: llm.KindBothFailed,
		Err:  &llm.Error{Kind: llm.KindConnectivity, Err: fmt.Errorf("connection refused")},
	})

	out := p.orchestrator.Process(context.Background(), unknownVendorEmail("<shop-1>"))

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, StateLLMFailed, out.Path[len(out.Path)-2])
	assert.Equal(t, ReasonExtractionFailed, out.Reason)
	assert.Equal(t, string(llm.KindBothFailed), out.ErrorKind)
	assert.Equal(t, int64(1), p.metrics.Get(metrics.LLMFailures))
	assert.Equal(t, int64(1), p.metrics.Get(metrics.LLMUnreachable))
	assert.Equal(t, int64(1), p.metrics.Get(metrics.Rejected))
}

func TestProcess_ModelFindsNoPurchase(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)

	out := p.orchestrator.Process(context.Background(), unknownVendorEmail("<shop-1>"))

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonExtractionFailed, out.Reason)
	assert.Equal(t, kindNoPurchase, out.ErrorKind)
	assert.Equal(t, int64(0), p.metrics.Get(metrics.LLMFailures))
}

func TestProcess_WithoutModel(t *testing.T) {
	m := metrics.New()
	v := validation.New(validation.Options{Mode: model.ModeStrict, MinConfidence: 0.6}, m, nil)
	o := NewOrchestrator(extractor.NewRegistry(extractor.DefaultProfiles(), nil), v, m)

	out := o.Process(context.Background(), unknownVendorEmail("<shop-1>"))

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, []State{
		StateReceived, StatePreprocessed, StateRegexAttempted, StateRegexMissed, StateRejected,
	}, out.Path)
	assert.Equal(t, kindNoModel, out.ErrorKind)
}

func TestProcess_WithoutPreprocessorStillExtracts(t *testing.T) {
	m := metrics.New()
	v := validation.New(validation.Options{Mode: model.ModeStrict, MinConfidence: 0.6}, m, nil)
	o := NewOrchestrator(extractor.NewRegistry(extractor.DefaultProfiles(), nil), v, m)

	out := o.Process(context.Background(), priceAlertEmail("<alert-1>"))

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, int64(0), m.Get(metrics.FilteredOut))
}

func TestProcess_RecoversFromPanics(t *testing.T) {
	m := metrics.New()
	v := validation.New(validation.Options{Mode: model.ModeStrict}, m, nil)
	o := NewOrchestrator(panickingRegex{}, v, m)

	out := o.Process(context.Background(), coinbaseEmail("<cb-1>"))

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, ReasonInternalError, out.Reason)
	assert.Equal(t, kindPanic, out.ErrorKind)
	assert.Contains(t, out.Err.Error(), "REGEX_ATTEMPTED")
	assert.Equal(t, int64(1), m.Get(metrics.Exceptions))
	assert.Equal(t, int64(1), m.Get(metrics.Rejected))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(StatePreprocessed, StateFiltered))
	assert.True(t, canTransition(StateRegexMatched, StateValidated))
	assert.False(t, canTransition(StateRegexMatched, StateLLMAttempted))
	assert.False(t, canTransition(StateAccepted, StateRejected))
	assert.False(t, canTransition(StateFiltered, StateRegexAttempted))

	for _, s := range []State{StateAccepted, StateRejected, StateFiltered} {
		assert.True(t, s.IsTerminal())
	}
	assert.False(t, StateValidated.IsTerminal())
}
