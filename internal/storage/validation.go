// Package storage persists accepted purchases, processed Message-IDs and
// batch run history in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrInvalidPurchase = errors.New("invalid purchase")
	ErrInvalidRun      = errors.New("invalid batch run")
	ErrSchemaTooNew    = errors.New("database schema is newer than this binary")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePurchase checks the columns the ledger requires.
func validatePurchase(p *model.Purchase) error {
	if p.Vendor == "" {
		return fmt.Errorf("%w: missing vendor", ErrInvalidPurchase)
	}
	if p.CryptoSymbol == "" {
		return fmt.Errorf("%w: missing crypto symbol", ErrInvalidPurchase)
	}
	if p.FiatCurrency == "" {
		return fmt.Errorf("%w: missing fiat currency", ErrInvalidPurchase)
	}
	if p.PurchaseDate.IsZero() {
		return fmt.Errorf("%w: missing purchase date", ErrInvalidPurchase)
	}
	return nil
}
