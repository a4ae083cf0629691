package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading prose", "Here is the result:\n{\"a\": 1}\nThanks", `{"a": 1}`},
		{"null", "null", "null"},
		{"fenced null", "```json\nnull\n```", "null"},
		{"no object", "not json", "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestParseExtraction(t *testing.T) {
	raw := `{"is_purchase": true, "transaction_type": "buy", "vendor": "Coinbase",
		"crypto_symbol": "xbt", "crypto_amount": "0.0015", "fiat_amount": 100.00,
		"fiat_currency": "USD", "fee_amount": "$1.49", "purchase_date": "2024-01-15",
		"transaction_id": 12345, "confidence": "92%", "extraction_notes": "clear receipt"}`

	c, err := parseExtraction(raw)
	require.NoError(t, err)

	assert.Equal(t, "Coinbase", c.Vendor)
	assert.Equal(t, "BTC", c.CryptoSymbol)
	require.True(t, c.CryptoAmount.Valid)
	assert.Equal(t, "0.0015", c.CryptoAmount.Decimal.String())
	require.True(t, c.FiatAmount.Valid)
	assert.Equal(t, "100", c.FiatAmount.Decimal.String())
	assert.Equal(t, "USD", c.FiatCurrency)
	require.True(t, c.FeeAmount.Valid)
	assert.Equal(t, "1.49", c.FeeAmount.Decimal.String())
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), c.PurchaseDate)
	assert.Equal(t, "12345", c.TransactionID)
	assert.InDelta(t, 0.92, c.Confidence, 1e-9)
	assert.Equal(t, model.TransactionBuy, c.TransactionType)
	assert.Equal(t, "clear receipt", c.Notes)
}

func TestParseExtractionLegacyFields(t *testing.T) {
	raw := "```json\n" + `{"transaction_type": "purchase", "total_spent": 250, "currency": "EUR",
		"amount": 0.1, "item_name": "ETH", "vendor": "Kraken", "confidence": 0.8}` + "\n```"

	c, err := parseExtraction(raw)
	require.NoError(t, err)
	assert.Equal(t, "ETH", c.CryptoSymbol)
	assert.Equal(t, "0.1", c.CryptoAmount.Decimal.String())
	assert.Equal(t, "250", c.FiatAmount.Decimal.String())
	assert.Equal(t, "EUR", c.FiatCurrency)
}

func TestParseExtractionStakingReward(t *testing.T) {
	raw := `{"transaction_type": "staking_reward", "vendor": "Kraken", "crypto_symbol": "DOT",
		"crypto_amount": 0.25, "fiat_amount": null, "confidence": 0.9}`

	c, err := parseExtraction(raw)
	require.NoError(t, err)
	assert.True(t, c.Reward)
	assert.Equal(t, model.TransactionStakingReward, c.TransactionType)
	require.True(t, c.FiatAmount.Valid)
	assert.True(t, c.FiatAmount.Decimal.IsZero())
}

func TestParseExtractionNoPurchase(t *testing.T) {
	for _, raw := range []string{
		"null",
		`{"is_purchase": false}`,
		`{"transaction_type": "withdrawal", "vendor": "Coinbase"}`,
	} {
		_, err := parseExtraction(raw)
		assert.ErrorIs(t, err, ErrNoPurchase, raw)
	}
}

func TestParseExtractionMalformed(t *testing.T) {
	for _, raw := range []string{
		"I could not find anything",
		`{"vendor": "Coinbase", "crypto_amount": "lots"}`,
		`{"vendor": "Coinbase", "confidence": "high"}`,
		`[1, 2, 3]`,
	} {
		_, err := parseExtraction(raw)
		require.Error(t, err, raw)
		assert.Equal(t, KindMalformedResponse, KindOf(err), raw)
	}
}

func TestFlexConfidence(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`0.85`, 0.85},
		{`85`, 0.85},
		{`"85%"`, 0.85},
		{`"0.5"`, 0.5},
		{`null`, 0},
		{`-1`, 0},
		{`250`, 1},
		{`1.5`, 1},
		{`"1.5"`, 1},
		{`2`, 0.02},
		{`"1.5%"`, 0.015},
	}
	for _, tt := range tests {
		var f flexConfidence
		require.NoError(t, f.UnmarshalJSON([]byte(tt.raw)), tt.raw)
		assert.InDelta(t, tt.want, float64(f), 1e-9, tt.raw)
	}
}
