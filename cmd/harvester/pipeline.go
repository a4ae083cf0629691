package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/digital-asset-harvester/internal/config"
	"github.com/Veraticus/digital-asset-harvester/internal/engine"
	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
	"github.com/Veraticus/digital-asset-harvester/internal/llm"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/preprocess"
	"github.com/Veraticus/digital-asset-harvester/internal/validation"
)

// buildDriver wires the extraction pipeline from a settings snapshot.
func buildDriver(s config.Settings, m *metrics.ProcessingMetrics, useModel bool, logger *slog.Logger) (*engine.Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := extractor.NewRegistry(extractor.DefaultProfiles(), logger)
	validator := validation.New(validation.OptionsFromSettings(s), m, logger)

	opts := []engine.Option{engine.WithLogger(logger)}

	if s.EnablePreprocessing {
		pre, err := preprocess.New(preprocess.DefaultKeywords(), m, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build preprocessor: %w", err)
		}
		opts = append(opts, engine.WithPreprocessor(pre))
	}

	if useModel {
		model, err := llm.NewFromSettings(s, m, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build model client: %w", err)
		}
		logger.Debug("Model extraction enabled",
			"providers", model.Providers(),
			"fallback", model.Enabled())
		opts = append(opts, engine.WithModel(model))
	}

	o := engine.NewOrchestrator(registry, validator, m, opts...)
	return engine.NewDriver(o, m, s.Workers(), logger), nil
}
