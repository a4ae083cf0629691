package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// FallbackController races the primary provider against a latency threshold
// and hands the email to a secondary provider when the primary is slow or
// unreachable. Without a secondary it passes calls straight through.
type FallbackController struct {
	primary   Client
	secondary Client
	metrics   *metrics.ProcessingMetrics
	logger    *slog.Logger
	threshold time.Duration
}

// NewFallbackController wires a primary and optional secondary client.
func NewFallbackController(primary, secondary Client, threshold time.Duration, m *metrics.ProcessingMetrics, logger *slog.Logger) *FallbackController {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackController{
		primary:   primary,
		secondary: secondary,
		threshold: threshold,
		metrics:   m,
		logger:    logger,
	}
}

// Enabled reports whether a secondary provider is configured.
func (f *FallbackController) Enabled() bool {
	return f.secondary != nil && f.threshold > 0
}

// Providers lists the configured providers, primary first.
func (f *FallbackController) Providers() []Provider {
	out := []Provider{f.primary.Provider()}
	if f.secondary != nil {
		out = append(out, f.secondary.Provider())
	}
	return out
}

type extraction struct {
	err       error
	candidate model.Candidate
}

// ExtractWithFallback returns the primary's answer if it arrives within the
// threshold. On timeout or a connectivity failure the primary is cancelled
// and the secondary is asked once. Any other primary failure is returned
// unchanged. If both fail the error is BOTH_FAILED and wraps both causes.
func (f *FallbackController) ExtractWithFallback(ctx context.Context, email model.RawEmail) (model.Candidate, error) {
	if !f.Enabled() {
		return f.primary.ExtractViaModel(ctx, email)
	}

	primaryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan extraction, 1)
	go func() {
		c, err := f.primary.ExtractViaModel(primaryCtx, email)
		done <- extraction{candidate: c, err: err}
	}()

	timer := time.NewTimer(f.threshold)
	defer timer.Stop()

	var primaryErr error
	select {
	case r := <-done:
		if r.err == nil {
			return r.candidate, nil
		}
		if !IsConnectivityFailure(r.err) {
			return model.Candidate{}, r.err
		}
		primaryErr = r.err
	case <-timer.C:
		cancel()
		primaryErr = &Error{
			Kind:     KindTimeout,
			Provider: f.primary.Provider(),
			Err:      fmt.Errorf("no response within %s", f.threshold),
		}
	case <-ctx.Done():
		return model.Candidate{}, ctx.Err()
	}

	f.metrics.Inc(metrics.LLMFallbackTriggered)
	f.logger.Info("Falling back to secondary provider",
		"message_id", email.MessageID,
		"primary", f.primary.Provider(),
		"secondary", f.secondary.Provider(),
		"reason", primaryErr)

	c, err := f.secondary.ExtractViaModel(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoPurchase) {
			return model.Candidate{}, err
		}
		return model.Candidate{}, &Error{
			Kind:     KindBothFailed,
			Provider: f.secondary.Provider(),
			Err:      errors.Join(primaryErr, err),
		}
	}
	return c, nil
}
