package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(NewViper())
	require.NoError(t, err)

	assert.InDelta(t, 0.6, s.MinConfidenceThreshold, 1e-9)
	assert.True(t, s.StrictValidation)
	assert.False(t, s.AllowUnknownCrypto)
	assert.True(t, s.EnablePreprocessing)
	assert.Equal(t, 3, s.LLMMaxRetries)
	assert.Equal(t, 10*time.Second, s.FallbackThreshold())
	assert.Equal(t, 30*time.Second, s.LLMTimeout())
	assert.Equal(t, ProviderOllama, s.LLM.Provider)
	assert.Equal(t, 15*time.Minute, s.LLM.CacheTTL)
	assert.Equal(t, 1, s.Workers())
	assert.NotContains(t, s.Database.Path, "~")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HARVESTER_MAX_WORKERS", "8")
	t.Setenv("HARVESTER_PARALLEL", "true")
	t.Setenv("HARVESTER_LLM_PROVIDER", "anthropic")

	s, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, 8, s.Workers())
	assert.Equal(t, ProviderAnthropic, s.LLM.Provider)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
min_confidence_threshold: 0.75
strict_validation: false
enable_ollama_fallback: true
ollama_fallback_threshold_seconds: 2.5
fallback_cloud_provider: Anthropic
llm:
  retry_delay: 250ms
  rate_limit: 30
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	v := NewViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	s, err := Load(v)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, s.MinConfidenceThreshold, 1e-9)
	assert.False(t, s.StrictValidation)
	assert.True(t, s.EnableOllamaFallback)
	assert.Equal(t, 2500*time.Millisecond, s.FallbackThreshold())
	assert.Equal(t, ProviderAnthropic, s.FallbackCloudProvider)
	assert.Equal(t, 250*time.Millisecond, s.LLM.RetryDelay)
	assert.Equal(t, 30, s.LLM.RateLimit)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"threshold above one", func(s *Settings) { s.MinConfidenceThreshold = 1.5 }},
		{"threshold negative", func(s *Settings) { s.MinConfidenceThreshold = -0.1 }},
		{"zero retries", func(s *Settings) { s.LLMMaxRetries = 0 }},
		{"zero timeout", func(s *Settings) { s.LLMTimeoutSeconds = 0 }},
		{"negative workers", func(s *Settings) { s.MaxWorkers = -1 }},
		{"unknown provider", func(s *Settings) { s.LLM.Provider = "bard" }},
		{"unknown cloud provider", func(s *Settings) {
			s.EnableOllamaFallback = true
			s.FallbackCloudProvider = "ollama"
		}},
		{"privacy mode with fallback", func(s *Settings) {
			s.EnableOllamaFallback = true
			s.Privacy.EnablePrivacyMode = true
		}},
		{"privacy mode with cloud primary", func(s *Settings) {
			s.LLM.Provider = ProviderOpenAI
			s.Privacy.EnablePrivacyMode = true
		}},
	}

	require.NoError(t, Defaults().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), common.ErrInvalidConfig)
		})
	}
}

func TestStore_Reload(t *testing.T) {
	v := NewViper()
	store, err := NewStore(v, nil)
	require.NoError(t, err)

	var seen []float64
	store.OnChange(func(s Settings) { seen = append(seen, s.MinConfidenceThreshold) })

	v.Set("min_confidence_threshold", 0.8)
	require.NoError(t, store.Reload())
	assert.InDelta(t, 0.8, store.Current().MinConfidenceThreshold, 1e-9)

	v.Set("min_confidence_threshold", 3.0)
	require.Error(t, store.Reload())
	assert.InDelta(t, 0.8, store.Current().MinConfidenceThreshold, 1e-9, "invalid reload keeps previous snapshot")

	assert.Equal(t, []float64{0.8}, seen)
}
