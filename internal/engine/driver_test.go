package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
	"github.com/Veraticus/digital-asset-harvester/internal/llm"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
	"github.com/Veraticus/digital-asset-harvester/internal/preprocess"
	"github.com/Veraticus/digital-asset-harvester/internal/validation"
)

func mixedBatch(n int) []model.RawEmail {
	emails := make([]model.RawEmail, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("<msg-%d>", i)
		switch i % 3 {
		case 0:
			e := coinbaseEmail(id)
			e.TextBody = fmt.Sprintf("You bought 0.%d BTC for $%d.00 USD. Transaction ID: TX%04d", i+1, 100+i, i)
			emails = append(emails, e)
		case 1:
			emails = append(emails, priceAlertEmail(id))
		default:
			emails = append(emails, unknownVendorEmail(id))
		}
	}
	return emails
}

func TestRunBatch_EveryEmailReachesATerminalState(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	d := NewDriver(p.orchestrator, p.metrics, 4, nil)

	var mu sync.Mutex
	seen := 0
	d.OnOutcome(func(Outcome) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	emails := mixedBatch(30)
	result := d.RunBatch(context.Background(), emails)

	require.Len(t, result.Outcomes, 30)
	assert.Equal(t, 30, seen)
	for i, o := range result.Outcomes {
		assert.True(t, o.State.IsTerminal(), "outcome %d", i)
		assert.Equal(t, emails[i].MessageID, o.MessageID)
	}

	counts := result.Counts()
	assert.Equal(t, 10, counts[StateAccepted])
	assert.Equal(t, 10, counts[StateFiltered])
	assert.Equal(t, 10, counts[StateRejected])
	assert.Len(t, result.Purchases, 10)
	assert.NotEmpty(t, result.RunID)

	snap := result.Metrics
	assert.Equal(t, int64(30), snap.EmailsTotal)
	assert.Equal(t, int64(10), snap.FilteredOut)
	assert.Equal(t, int64(10), snap.RegexHits)
	assert.Equal(t, int64(10), snap.Accepted)
	assert.Equal(t, int64(10), snap.Rejected)
	assert.Equal(t, snap.EmailsTotal, snap.Accepted+snap.Rejected+snap.FilteredOut)
}

func TestRunBatch_MetricsIndependentOfPoolSize(t *testing.T) {
	emails := mixedBatch(24)

	var snapshots []metrics.Snapshot
	for _, workers := range []int{1, 3, 8} {
		p := newTestPipeline(t, model.ModeStrict)
		result := NewDriver(p.orchestrator, p.metrics, workers, nil).RunBatch(context.Background(), emails)
		snapshots = append(snapshots, result.Metrics)
	}

	for _, s := range snapshots[1:] {
		assert.Equal(t, snapshots[0].EmailsTotal, s.EmailsTotal)
		assert.Equal(t, snapshots[0].FilteredOut, s.FilteredOut)
		assert.Equal(t, snapshots[0].RegexHits, s.RegexHits)
		assert.Equal(t, snapshots[0].Accepted, s.Accepted)
		assert.Equal(t, snapshots[0].Rejected, s.Rejected)
		assert.Equal(t, snapshots[0].RejectReasons, s.RejectReasons)
	}
}

func TestRunBatch_Idempotent(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	d := NewDriver(p.orchestrator, p.metrics, 4, nil)
	emails := mixedBatch(12)

	first := d.RunBatch(context.Background(), emails)
	second := d.RunBatch(context.Background(), emails)

	assert.Equal(t, first.Purchases, second.Purchases)
	assert.Equal(t, first.Metrics.Accepted, second.Metrics.Accepted)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunBatch_DropsDuplicates(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	d := NewDriver(p.orchestrator, p.metrics, 2, nil)

	result := d.RunBatch(context.Background(), []model.RawEmail{
		coinbaseEmail("<cb-1>"),
		coinbaseEmail("<cb-1-forwarded>"),
	})

	require.Len(t, result.Purchases, 1)
	assert.Equal(t, "<cb-1>", result.Purchases[0].MessageID)
	assert.True(t, result.Outcomes[1].Duplicate)
	assert.Equal(t, int64(1), result.Metrics.Duplicates)
}

func TestRunBatch_EmptyBatch(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	result := NewDriver(p.orchestrator, p.metrics, 4, nil).RunBatch(context.Background(), nil)

	assert.Empty(t, result.Outcomes)
	assert.Empty(t, result.Purchases)
	assert.Equal(t, int64(0), result.Metrics.EmailsTotal)
}

func TestRunBatch_PanicDoesNotAbortBatch(t *testing.T) {
	m := metrics.New()
	v := validation.New(validation.Options{Mode: model.ModeStrict}, m, nil)
	d := NewDriver(NewOrchestrator(panickingRegex{}, v, m), m, 2, nil)

	result := d.RunBatch(context.Background(), mixedBatch(6))

	require.Len(t, result.Outcomes, 6)
	for _, o := range result.Outcomes {
		assert.Equal(t, StateRejected, o.State)
		assert.Equal(t, ReasonInternalError, o.Reason)
	}
	assert.Equal(t, int64(6), result.Metrics.Exceptions)
}

func TestRunBatch_WarnsWhenNothingReachable(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	p.model.WithDefaultError(&llm.Error{Kind: llm.KindConnectivity, Err: fmt.Errorf("connection refused")})
	d := NewDriver(p.orchestrator, p.metrics, 2, nil)

	result := d.RunBatch(context.Background(), []model.RawEmail{
		unknownVendorEmail("<a>"),
		unknownVendorEmail("<b>"),
	})

	assert.Empty(t, result.Purchases)
	assert.Equal(t, int64(2), result.Metrics.LLMUnreachable)
	require.Len(t, result.Metrics.Warnings, 1)
	assert.Contains(t, result.Metrics.Warnings[0], "no model provider was reachable")
}

func TestRunBatch_NoWarningWhenRegexMatched(t *testing.T) {
	p := newTestPipeline(t, model.ModeStrict)
	p.model.WithDefaultError(&llm.Error{Kind: llm.KindConnectivity})
	d := NewDriver(p.orchestrator, p.metrics, 2, nil)

	result := d.RunBatch(context.Background(), []model.RawEmail{
		coinbaseEmail("<cb-1>"),
		unknownVendorEmail("<b>"),
	})

	assert.Len(t, result.Purchases, 1)
	assert.Empty(t, result.Metrics.Warnings)
}

// TestRunBatch_FallsBackToCloudProvider runs the real model clients against
// fake servers: the local server never answers in time, the cloud one does.
func TestRunBatch_FallsBackToCloudProvider(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	var cloudCalls int
	var mu sync.Mutex
	cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cloudCalls++
		mu.Unlock()
		content := `{"is_purchase": true, "vendor": "RandomShop", "crypto_symbol": "BTC",
			"crypto_amount": 0.5, "fiat_amount": 100.00, "fiat_currency": "USD", "confidence": 0.85}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	defer cloud.Close()

	m := metrics.New()
	primary, err := llm.NewClient(llm.Config{
		Provider:             llm.ProviderOllama,
		BaseURL:              slow.URL,
		Timeout:              5 * time.Second,
		FailFastConnectivity: true,
	}, m, nil)
	require.NoError(t, err)
	secondary, err := llm.NewClient(llm.Config{
		Provider: llm.ProviderOpenAI,
		APIKey:   "test-key",
		BaseURL:  cloud.URL,
		Timeout:  5 * time.Second,
	}, m, nil)
	require.NoError(t, err)
	controller := llm.NewFallbackController(primary, secondary, 50*time.Millisecond, m, nil)

	pre, err := preprocess.New(preprocess.DefaultKeywords(), m, nil)
	require.NoError(t, err)
	v := validation.New(validation.Options{Mode: model.ModeStrict, MinConfidence: 0.6}, m, nil)
	o := NewOrchestrator(extractor.NewRegistry(extractor.DefaultProfiles(), nil), v, m,
		WithPreprocessor(pre), WithModel(controller))

	result := NewDriver(o, m, 1, nil).RunBatch(context.Background(), []model.RawEmail{unknownVendorEmail("<shop-1>")})

	require.Len(t, result.Purchases, 1)
	purchase := result.Purchases[0]
	assert.Equal(t, model.SourceLLM, purchase.Source)
	assert.Equal(t, "openai", purchase.Provider)
	assert.GreaterOrEqual(t, purchase.Confidence, 0.6)
	assert.Equal(t, int64(1), result.Metrics.LLMFallbackTriggered)
	assert.Equal(t, int64(1), result.Metrics.LLMHits)

	mu.Lock()
	assert.Equal(t, 1, cloudCalls)
	mu.Unlock()
}
