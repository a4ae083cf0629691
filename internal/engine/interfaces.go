package engine

import (
	"context"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
	"github.com/Veraticus/digital-asset-harvester/internal/validation"
)

// Preprocessor makes the cheap purchase/non-purchase call.
type Preprocessor interface {
	Classify(email model.RawEmail) model.Decision
}

// RegexExtractor attempts deterministic extraction.
type RegexExtractor interface {
	Extract(email model.RawEmail) (model.Candidate, bool)
}

// ModelExtractor extracts with a language model, falling back between
// providers as configured.
type ModelExtractor interface {
	ExtractWithFallback(ctx context.Context, email model.RawEmail) (model.Candidate, error)
}

// Validator checks a candidate.
type Validator interface {
	Check(c model.Candidate) validation.Result
}
