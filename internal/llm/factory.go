package llm

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/digital-asset-harvester/internal/config"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
)

// NewClient creates a model client for the configured provider.
func NewClient(cfg Config, m *metrics.ProcessingMetrics, logger *slog.Logger) (Client, error) {
	var (
		transport completer
		err       error
	)
	switch cfg.Provider {
	case ProviderOllama:
		transport, err = newOllamaClient(cfg)
	case ProviderOpenAI:
		transport, err = newOpenAIClient(cfg)
	case ProviderAnthropic:
		transport, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return newModelClient(transport, cfg, m, logger), nil
}

// ConfigFromSettings builds the client configuration for provider p. The
// llm.model setting names the local model; cloud providers use
// llm.cloud_model or their own default.
func ConfigFromSettings(s config.Settings, p Provider) Config {
	cfg := Config{
		Provider:    p,
		MaxRetries:  s.LLMMaxRetries,
		RetryDelay:  s.LLM.RetryDelay,
		Timeout:     s.LLMTimeout(),
		CacheTTL:    s.LLM.CacheTTL,
		RateLimit:   s.LLM.RateLimit,
		Temperature: s.LLM.Temperature,
		ScrubPII:    s.ScrubPII(),
	}
	switch p {
	case ProviderOllama:
		cfg.Model = s.LLM.Model
		cfg.BaseURL = s.LLM.OllamaBaseURL
	case ProviderOpenAI:
		cfg.Model = s.LLM.CloudModel
		cfg.APIKey = s.LLM.OpenAIAPIKey
		cfg.BaseURL = s.LLM.OpenAIBaseURL
	case ProviderAnthropic:
		cfg.Model = s.LLM.CloudModel
		cfg.APIKey = s.LLM.AnthropicAPIKey
		cfg.BaseURL = s.LLM.AnthropicBaseURL
	}
	return cfg
}

// NewFromSettings builds the model stage: the configured provider, wrapped
// in a fallback controller when a cloud fallback is enabled.
func NewFromSettings(s config.Settings, m *metrics.ProcessingMetrics, logger *slog.Logger) (*FallbackController, error) {
	primaryCfg := ConfigFromSettings(s, Provider(s.LLM.Provider))
	fallback := s.EnableOllamaFallback && primaryCfg.Provider == ProviderOllama
	primaryCfg.FailFastConnectivity = fallback

	primary, err := NewClient(primaryCfg, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", primaryCfg.Provider, err)
	}

	var secondary Client
	if fallback {
		secondaryCfg := ConfigFromSettings(s, Provider(s.FallbackCloudProvider))
		secondary, err = NewClient(secondaryCfg, m, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback %s client: %w", secondaryCfg.Provider, err)
		}
	}

	return NewFallbackController(primary, secondary, s.FallbackThreshold(), m, logger), nil
}
