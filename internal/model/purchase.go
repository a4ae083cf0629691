package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExtractionSource records which stage produced a candidate.
type ExtractionSource string

// Extraction source constants.
const (
	SourceRegex ExtractionSource = "REGEX"
	SourceLLM   ExtractionSource = "LLM"
)

// TransactionType distinguishes paid purchases from zero-cost credits.
type TransactionType string

// Transaction type constants.
const (
	TransactionBuy           TransactionType = "buy"
	TransactionStakingReward TransactionType = "staking_reward"
)

// ValidationMode selects how the validator treats soft failures.
type ValidationMode string

// Validation mode constants.
const (
	ModeStrict  ValidationMode = "strict"
	ModeLenient ValidationMode = "lenient"
)

// Candidate is an unvalidated purchase record produced by the regex
// registry or the model extractor. Amounts are null when the source
// could not determine them.
type Candidate struct {
	PurchaseDate    time.Time
	CryptoAmount    decimal.NullDecimal
	FiatAmount      decimal.NullDecimal
	FeeAmount       decimal.NullDecimal
	Vendor          string
	CryptoSymbol    string
	FiatCurrency    string
	FeeCurrency     string
	TransactionID   string
	TransactionType TransactionType
	Source          ExtractionSource
	Provider        string // Model provider that answered, empty for regex
	MessageID       string
	EmailSource     string
	Notes           string
	Confidence      float64
	Reward          bool
}

// Purchase is a candidate that passed validation.
type Purchase struct {
	PurchaseDate    time.Time
	CryptoAmount    decimal.Decimal
	FiatAmount      decimal.Decimal
	FeeAmount       decimal.NullDecimal
	ID              string
	Vendor          string
	CryptoSymbol    string
	FiatCurrency    string
	FeeCurrency     string
	TransactionID   string
	TransactionType TransactionType
	Source          ExtractionSource
	Provider        string
	MessageID       string
	EmailSource     string
	Mode            ValidationMode
	Warnings        []string
	Confidence      float64
	Reward          bool
}

var purchaseNamespace = uuid.MustParse("6f1d2b0e-3c57-4f8e-9a43-2d7b8c1e5a90")

// GenerateHash creates a stable key for duplicate detection. Exchange
// transaction IDs win when present.
func (p *Purchase) GenerateHash() string {
	var data string
	if p.TransactionID != "" {
		data = fmt.Sprintf("%s:%s", strings.ToLower(p.Vendor), p.TransactionID)
	} else {
		data = fmt.Sprintf("%s|%s|%s|%s|%s",
			strings.ToLower(p.Vendor),
			p.CryptoSymbol,
			p.CryptoAmount.String(),
			p.FiatAmount.String(),
			p.PurchaseDate.UTC().Format(time.RFC3339))
	}
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// AssignID derives the purchase ID from its hash so repeated runs over the
// same mail produce identical records.
func (p *Purchase) AssignID() {
	p.ID = uuid.NewSHA1(purchaseNamespace, []byte(p.GenerateHash())).String()
}
