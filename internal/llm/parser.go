package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// cleanMarkdownWrapper strips code fences and any prose around the first
// JSON value in a model response.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if nl := strings.Index(content, "\n"); nl >= 0 {
			content = content[nl+1:]
		} else {
			content = strings.TrimPrefix(content, "```")
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}
	if content == "null" {
		return content
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

// flexDecimal accepts a JSON number, a numeric string such as "$1,234.50",
// or null.
type flexDecimal struct {
	decimal.NullDecimal
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		f.Valid = false
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "null") {
			f.Valid = false
			return nil
		}
		d, err := extractor.ParseAmount(s)
		if err != nil {
			return err
		}
		f.Decimal, f.Valid = d, true
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", b, err)
	}
	f.Decimal, f.Valid = d, true
	return nil
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		*f = flexString(b)
	}
	return nil
}

// flexConfidence accepts 0.85, 85, "85%" or "0.85". Values marked with "%"
// or of at least 2 are percentages; anything else above 1 is clamped.
type flexConfidence float64

func (f *flexConfidence) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		*f = 0
		return nil
	}
	percent := strings.HasSuffix(raw, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return fmt.Errorf("invalid confidence %q: %w", raw, err)
	}
	if percent || v >= 2 {
		v /= 100
	}
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	*f = flexConfidence(v)
	return nil
}

// extractionPayload is the JSON object requested from the model. The
// alternate names cover models that answer in the older field layout.
type extractionPayload struct {
	IsPurchase      *bool          `json:"is_purchase"`
	TransactionType flexString     `json:"transaction_type"`
	Vendor          flexString     `json:"vendor"`
	CryptoSymbol    flexString     `json:"crypto_symbol"`
	ItemName        flexString     `json:"item_name"`
	CryptoAmount    flexDecimal    `json:"crypto_amount"`
	Amount          flexDecimal    `json:"amount"`
	FiatAmount      flexDecimal    `json:"fiat_amount"`
	TotalSpent      flexDecimal    `json:"total_spent"`
	FiatCurrency    flexString     `json:"fiat_currency"`
	Currency        flexString     `json:"currency"`
	FeeAmount       flexDecimal    `json:"fee_amount"`
	FeeCurrency     flexString     `json:"fee_currency"`
	PurchaseDate    flexString     `json:"purchase_date"`
	TransactionID   flexString     `json:"transaction_id"`
	Confidence      flexConfidence `json:"confidence"`
	Notes           flexString     `json:"extraction_notes"`
}

// parseExtraction decodes a model response into a candidate. A null object,
// is_purchase=false, or a non-purchase transaction type yields ErrNoPurchase.
// Anything that is not a JSON object is malformed.
func parseExtraction(raw string) (model.Candidate, error) {
	cleaned := cleanMarkdownWrapper(raw)
	if cleaned == "null" {
		return model.Candidate{}, ErrNoPurchase
	}

	var p extractionPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return model.Candidate{}, &Error{
			Kind: KindMalformedResponse,
			Err:  fmt.Errorf("failed to parse extraction JSON: %w (content: %s)", err, truncate(cleaned, 120)),
		}
	}

	if p.IsPurchase != nil && !*p.IsPurchase {
		return model.Candidate{}, ErrNoPurchase
	}

	txType := model.TransactionBuy
	switch strings.ToLower(string(p.TransactionType)) {
	case "", "buy", "purchase":
	case "staking_reward", "reward", "staking":
		txType = model.TransactionStakingReward
	default:
		return model.Candidate{}, fmt.Errorf("%w: transaction type %q", ErrNoPurchase, p.TransactionType)
	}

	c := model.Candidate{
		Vendor:          string(p.Vendor),
		CryptoSymbol:    string(firstNonEmpty(p.CryptoSymbol, p.ItemName)),
		CryptoAmount:    firstValid(p.CryptoAmount, p.Amount),
		FiatAmount:      firstValid(p.FiatAmount, p.TotalSpent),
		FiatCurrency:    string(firstNonEmpty(p.FiatCurrency, p.Currency)),
		FeeAmount:       p.FeeAmount.NullDecimal,
		FeeCurrency:     strings.ToUpper(string(p.FeeCurrency)),
		TransactionID:   string(p.TransactionID),
		TransactionType: txType,
		Confidence:      float64(p.Confidence),
		Notes:           string(p.Notes),
	}
	if c.CryptoSymbol != "" {
		c.CryptoSymbol = extractor.NormalizeSymbol(c.CryptoSymbol)
	}
	if p.PurchaseDate != "" {
		if ts, ok := common.ParseTimestamp(string(p.PurchaseDate)); ok {
			c.PurchaseDate = ts
		}
	}
	if txType == model.TransactionStakingReward {
		c.Reward = true
		if !c.FiatAmount.Valid {
			c.FiatAmount = decimal.NewNullDecimal(decimal.Zero)
		}
	}
	return c, nil
}

func firstNonEmpty(values ...flexString) flexString {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstValid(values ...flexDecimal) decimal.NullDecimal {
	for _, v := range values {
		if v.Valid {
			return v.NullDecimal
		}
	}
	return decimal.NullDecimal{}
}
