package validation

import (
	"errors"
	"fmt"
)

// Kind classifies validation failures.
type Kind string

// Validation failure kinds.
const (
	KindMissingField  Kind = "MISSING_FIELD"
	KindOutOfRange    Kind = "OUT_OF_RANGE"
	KindUnknownSymbol Kind = "UNKNOWN_SYMBOL"
	KindLowConfidence Kind = "LOW_CONFIDENCE"
	KindBadDate       Kind = "BAD_DATE"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid purchase")

// Error describes the check a candidate failed.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
}

func (e *Error) Unwrap() error {
	return ErrInvalid
}
