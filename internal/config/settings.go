package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "HARVESTER"

// Provider names accepted by llm.provider and fallback_cloud_provider.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Settings is an immutable snapshot of the pipeline configuration.
// Components receive it by value at construction time.
type Settings struct {
	FallbackCloudProvider          string           `mapstructure:"fallback_cloud_provider"`
	Logging                        LoggingSettings  `mapstructure:"logging"`
	Database                       DatabaseSettings `mapstructure:"database"`
	LLM                            LLMSettings      `mapstructure:"llm"`
	MinConfidenceThreshold         float64          `mapstructure:"min_confidence_threshold"`
	OllamaFallbackThresholdSeconds float64          `mapstructure:"ollama_fallback_threshold_seconds"`
	LLMTimeoutSeconds              float64          `mapstructure:"llm_timeout_seconds"`
	LLMMaxRetries                  int              `mapstructure:"llm_max_retries"`
	MaxWorkers                     int              `mapstructure:"max_workers"`
	Privacy                        PrivacySettings  `mapstructure:"privacy"`
	StrictValidation               bool             `mapstructure:"strict_validation"`
	AllowUnknownCrypto             bool             `mapstructure:"allow_unknown_crypto"`
	EnablePreprocessing            bool             `mapstructure:"enable_preprocessing"`
	EnableOllamaFallback           bool             `mapstructure:"enable_ollama_fallback"`
	Parallel                       bool             `mapstructure:"parallel"`
}

// LLMSettings configures the model providers.
type LLMSettings struct {
	Provider         string        `mapstructure:"provider"`
	Model            string        `mapstructure:"model"`
	CloudModel       string        `mapstructure:"cloud_model"`
	OllamaBaseURL    string        `mapstructure:"ollama_base_url"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url"`
	AnthropicAPIKey  string        `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string        `mapstructure:"anthropic_base_url"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	Temperature      float64       `mapstructure:"temperature"`
	RateLimit        int           `mapstructure:"rate_limit"` // requests per minute, 0 disables
}

// PrivacySettings controls what leaves the machine.
type PrivacySettings struct {
	EnablePIIScrubbing bool `mapstructure:"enable_pii_scrubbing"`
	EnablePrivacyMode  bool `mapstructure:"enable_privacy_mode"`
}

// DatabaseSettings locates the purchase ledger.
type DatabaseSettings struct {
	Path string `mapstructure:"path"`
}

// LoggingSettings mirrors the --log-level and --log-format flags.
type LoggingSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		MinConfidenceThreshold:         0.6,
		StrictValidation:               true,
		AllowUnknownCrypto:             false,
		EnablePreprocessing:            true,
		EnableOllamaFallback:           false,
		OllamaFallbackThresholdSeconds: 10,
		FallbackCloudProvider:          ProviderOpenAI,
		LLMMaxRetries:                  3,
		LLMTimeoutSeconds:              30,
		MaxWorkers:                     4,
		Parallel:                       false,
		LLM: LLMSettings{
			Provider:      ProviderOllama,
			Model:         "llama3.2:3b",
			CloudModel:    "",
			OllamaBaseURL: "http://localhost:11434",
			CacheTTL:      15 * time.Minute,
			RetryDelay:    time.Second,
			Temperature:   0.0,
			RateLimit:     0,
		},
		Database: DatabaseSettings{Path: "~/.local/share/harvester/purchases.db"},
		Logging:  LoggingSettings{Level: "info", Format: "console"},
	}
}

// NewViper returns a viper instance with the harvester env conventions applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every key so env overrides are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("min_confidence_threshold", d.MinConfidenceThreshold)
	v.SetDefault("strict_validation", d.StrictValidation)
	v.SetDefault("allow_unknown_crypto", d.AllowUnknownCrypto)
	v.SetDefault("enable_preprocessing", d.EnablePreprocessing)
	v.SetDefault("enable_ollama_fallback", d.EnableOllamaFallback)
	v.SetDefault("ollama_fallback_threshold_seconds", d.OllamaFallbackThresholdSeconds)
	v.SetDefault("fallback_cloud_provider", d.FallbackCloudProvider)
	v.SetDefault("llm_max_retries", d.LLMMaxRetries)
	v.SetDefault("llm_timeout_seconds", d.LLMTimeoutSeconds)
	v.SetDefault("max_workers", d.MaxWorkers)
	v.SetDefault("parallel", d.Parallel)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.cloud_model", d.LLM.CloudModel)
	v.SetDefault("llm.ollama_base_url", d.LLM.OllamaBaseURL)
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.anthropic_base_url", "")
	v.SetDefault("llm.cache_ttl", d.LLM.CacheTTL)
	v.SetDefault("llm.retry_delay", d.LLM.RetryDelay)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.rate_limit", d.LLM.RateLimit)

	v.SetDefault("privacy.enable_pii_scrubbing", d.Privacy.EnablePIIScrubbing)
	v.SetDefault("privacy.enable_privacy_mode", d.Privacy.EnablePrivacyMode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load builds a validated Settings snapshot from viper.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode configuration: %w", err)
	}

	s.FallbackCloudProvider = strings.ToLower(strings.TrimSpace(s.FallbackCloudProvider))
	s.LLM.Provider = strings.ToLower(strings.TrimSpace(s.LLM.Provider))
	s.Database.Path = ExpandPath(s.Database.Path)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the pipeline cannot run with.
func (s Settings) Validate() error {
	if s.MinConfidenceThreshold < 0 || s.MinConfidenceThreshold > 1 {
		return fmt.Errorf("%w: min_confidence_threshold must be between 0 and 1, got %v",
			common.ErrInvalidConfig, s.MinConfidenceThreshold)
	}
	if s.LLMMaxRetries < 1 {
		return fmt.Errorf("%w: llm_max_retries must be at least 1", common.ErrInvalidConfig)
	}
	if s.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: llm_timeout_seconds must be positive", common.ErrInvalidConfig)
	}
	if s.MaxWorkers < 0 {
		return fmt.Errorf("%w: max_workers cannot be negative", common.ErrInvalidConfig)
	}
	if s.LLM.RateLimit < 0 {
		return fmt.Errorf("%w: llm.rate_limit cannot be negative", common.ErrInvalidConfig)
	}

	switch s.LLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: unknown llm.provider %q", common.ErrInvalidConfig, s.LLM.Provider)
	}

	if s.EnableOllamaFallback {
		if s.OllamaFallbackThresholdSeconds <= 0 {
			return fmt.Errorf("%w: ollama_fallback_threshold_seconds must be positive", common.ErrInvalidConfig)
		}
		switch s.FallbackCloudProvider {
		case ProviderOpenAI, ProviderAnthropic:
		default:
			return fmt.Errorf("%w: fallback_cloud_provider must be openai or anthropic, got %q",
				common.ErrInvalidConfig, s.FallbackCloudProvider)
		}
		if s.Privacy.EnablePrivacyMode {
			return fmt.Errorf("%w: privacy mode forbids cloud fallback", common.ErrInvalidConfig)
		}
	}

	if s.Privacy.EnablePrivacyMode && s.LLM.Provider != ProviderOllama {
		return fmt.Errorf("%w: privacy mode requires the ollama provider", common.ErrInvalidConfig)
	}

	return nil
}

// LLMTimeout is the per-attempt deadline.
func (s Settings) LLMTimeout() time.Duration {
	return secondsToDuration(s.LLMTimeoutSeconds)
}

// FallbackThreshold is the primary-provider watchdog.
func (s Settings) FallbackThreshold() time.Duration {
	return secondsToDuration(s.OllamaFallbackThresholdSeconds)
}

// ScrubPII reports whether bodies must be scrubbed before leaving the process.
func (s Settings) ScrubPII() bool {
	return s.Privacy.EnablePIIScrubbing || s.Privacy.EnablePrivacyMode
}

// Workers is the effective pool size; one when parallelism is off.
func (s Settings) Workers() int {
	if !s.Parallel || s.MaxWorkers < 1 {
		return 1
	}
	return s.MaxWorkers
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
