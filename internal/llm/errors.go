package llm

import (
	"errors"
	"fmt"
)

// Kind classifies model failures.
type Kind string

// Failure kinds.
const (
	KindTimeout           Kind = "TIMEOUT"
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
	KindConnectivity      Kind = "CONNECTIVITY"
	KindExhausted         Kind = "EXHAUSTED"
	KindBothFailed        Kind = "BOTH_FAILED"
)

// ErrNoPurchase means the model answered but found no purchase in the email.
var ErrNoPurchase = errors.New("model found no purchase")

// Error is a model failure with its kind.
type Error struct {
	Err        error
	Kind       Kind
	Provider   Provider
	StatusCode int
	Attempts   int
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("llm %s", e.Kind)
	if e.Provider != "" {
		msg += fmt.Sprintf(" (%s)", e.Provider)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the outermost kind in err's chain, or "" if none.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsConnectivityFailure reports whether any model error in err's chain is a
// connectivity failure or timeout. An EXHAUSTED error whose last attempt
// could not reach the provider counts.
func IsConnectivityFailure(err error) bool {
	for err != nil {
		var le *Error
		if !errors.As(err, &le) {
			return false
		}
		if le.Kind == KindConnectivity || le.Kind == KindTimeout {
			return true
		}
		err = le.Err
	}
	return false
}

// retryable reports whether a single failed attempt should be retried.
// Client errors other than rate limiting will not improve on retry.
func (e *Error) retryable() bool {
	switch e.Kind {
	case KindTimeout, KindMalformedResponse:
		return true
	case KindConnectivity:
		return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}
