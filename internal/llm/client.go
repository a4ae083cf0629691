package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
	"github.com/Veraticus/digital-asset-harvester/internal/privacy"
)

// Provider names a model backend.
type Provider string

// Supported providers.
const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Client extracts a purchase candidate from an email with a language model.
type Client interface {
	ExtractViaModel(ctx context.Context, email model.RawEmail) (model.Candidate, error)
	Provider() Provider
}

// Config holds configuration for a single provider client.
type Config struct {
	Provider    Provider
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration // per attempt
	CacheTTL    time.Duration
	RateLimit   int // requests per minute
	Temperature float64
	MaxTokens   int
	ScrubPII    bool
	// FailFastConnectivity returns connectivity failures without retrying
	// so a fallback controller can switch providers at once.
	FailFastConnectivity bool
}

// completer is one round trip to a provider.
type completer interface {
	complete(ctx context.Context, system, prompt string) (string, error)
	modelName() string
}

// modelClient wraps a provider transport with retry, per-attempt deadlines,
// rate limiting, caching and PII scrubbing.
type modelClient struct {
	transport completer
	limiter   *rate.Limiter
	cache     *ResponseCache
	scrubber  *privacy.Scrubber
	metrics   *metrics.ProcessingMetrics
	logger    *slog.Logger
	provider  Provider
	retry     common.RetryOptions
	timeout   time.Duration
	failFast  bool
}

func newModelClient(transport completer, cfg Config, m *metrics.ProcessingMetrics, logger *slog.Logger) *modelClient {
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &modelClient{
		transport: transport,
		limiter:   newLimiter(cfg.RateLimit),
		cache:     NewResponseCache(cfg.CacheTTL),
		metrics:   m,
		logger:    logger.With("provider", cfg.Provider),
		provider:  cfg.Provider,
		retry: common.RetryOptions{
			MaxAttempts:  maxRetries,
			InitialDelay: retryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
		timeout:  timeout,
		failFast: cfg.FailFastConnectivity,
	}
	if cfg.ScrubPII {
		c.scrubber = privacy.NewScrubber(extractor.KnownSymbols()...)
	}
	return c
}

// Provider returns the backend this client talks to.
func (c *modelClient) Provider() Provider {
	return c.provider
}

// ExtractViaModel asks the model for a purchase record. Each attempt has its
// own deadline; timeouts, connectivity failures and malformed responses are
// retried up to the configured limit. A response saying there is no purchase
// returns ErrNoPurchase without retrying.
func (c *modelClient) ExtractViaModel(ctx context.Context, email model.RawEmail) (model.Candidate, error) {
	body := extractor.PlainText(email)
	if c.scrubber != nil {
		body = c.scrubber.Scrub(body)
	}
	prompt := buildExtractionPrompt(email, body)
	key := cacheKey(c.provider, c.transport.modelName(), prompt)

	if raw, ok := c.cache.Get(key); ok {
		if candidate, err := parseExtraction(raw); err == nil {
			c.logger.Debug("Using cached extraction", "message_id", email.MessageID)
			return c.finalize(candidate, email), nil
		}
	}

	var candidate model.Candidate
	attempts := 0
	err := common.WithRetry(ctx, func() error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &common.RetryableError{Err: err, Retryable: false}
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		start := time.Now()
		raw, err := c.transport.complete(attemptCtx, systemPrompt, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return &common.RetryableError{Err: ctx.Err(), Retryable: false}
			}
			lerr := c.asModelError(err)
			retryable := lerr.retryable()
			if c.failFast && lerr.Kind == KindConnectivity {
				retryable = false
			}
			return &common.RetryableError{Err: lerr, Retryable: retryable}
		}
		c.metrics.ObserveLLMLatency(time.Since(start))

		parsed, err := parseExtraction(raw)
		if err != nil {
			if errors.Is(err, ErrNoPurchase) {
				return &common.RetryableError{Err: err, Retryable: false}
			}
			return &common.RetryableError{Err: c.asModelError(err), Retryable: true}
		}

		c.cache.Set(key, raw)
		candidate = parsed
		return nil
	}, c.retry)

	if err != nil {
		return model.Candidate{}, c.finalError(err, attempts)
	}

	return c.finalize(candidate, email), nil
}

func (c *modelClient) asModelError(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		if le.Provider == "" {
			le.Provider = c.provider
		}
		return le
	}
	return &Error{Kind: KindConnectivity, Provider: c.provider, Err: err}
}

func (c *modelClient) finalError(err error, attempts int) error {
	switch {
	case errors.Is(err, ErrNoPurchase):
		return err
	case errors.Is(err, common.ErrMaxRetries):
		c.logger.Warn("Model extraction exhausted retries", "attempts", attempts, "error", err)
		return &Error{Kind: KindExhausted, Provider: c.provider, Attempts: attempts, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Provider: c.provider, Attempts: attempts, Err: err}
	}

	var le *Error
	if errors.As(err, &le) {
		le.Attempts = attempts
		return le
	}
	return &Error{Kind: KindExhausted, Provider: c.provider, Attempts: attempts, Err: err}
}

// finalize fills the fields the model is not asked for.
func (c *modelClient) finalize(candidate model.Candidate, email model.RawEmail) model.Candidate {
	candidate.Source = model.SourceLLM
	candidate.Provider = string(c.provider)
	candidate.MessageID = email.MessageID
	candidate.EmailSource = email.Source
	if candidate.PurchaseDate.IsZero() {
		candidate.PurchaseDate = email.Date.UTC()
	}
	if candidate.Reward && candidate.FiatCurrency == "" {
		candidate.FiatCurrency = "USD"
	}
	if candidate.FeeAmount.Valid && candidate.FeeCurrency == "" {
		candidate.FeeCurrency = strings.ToUpper(candidate.FiatCurrency)
	}
	if candidate.Reward && !candidate.FiatAmount.Valid {
		candidate.FiatAmount = decimal.NewNullDecimal(decimal.Zero)
	}
	return candidate
}

// String identifies the client in logs.
func (c *modelClient) String() string {
	return fmt.Sprintf("%s/%s", c.provider, c.transport.modelName())
}
