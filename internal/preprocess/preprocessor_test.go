package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

func newTestPreprocessor(t *testing.T) (*Preprocessor, *metrics.ProcessingMetrics) {
	t.Helper()
	m := metrics.New()
	p, err := New(DefaultKeywords(), m, nil)
	require.NoError(t, err)
	return p, m
}

func TestNew_InvalidKeyword(t *testing.T) {
	_, err := New([]Keyword{{Name: "bad", Kind: KindAction, Regex: `[invalid`}}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestPreprocessor_Classify(t *testing.T) {
	tests := []struct {
		name       string
		email      model.RawEmail
		verdict    model.Verdict
		signal     string
		filteredBy int64
	}{
		{
			name: "exchange purchase",
			email: model.RawEmail{
				From:     "Coinbase <no-reply@coinbase.com>",
				Subject:  "You bought Bitcoin",
				TextBody: "You bought 0.5 BTC for $30,000.00 USD. Transaction ID: QWERTY12345",
			},
			verdict: model.VerdictLikelyPurchase,
			signal:  "Coinbase+bought",
		},
		{
			name: "price alert newsletter",
			email: model.RawEmail{
				From:     "alerts@cryptonews.example",
				Subject:  "Bitcoin Price Alert",
				TextBody: "Bitcoin is up 5% today. Read our weekly newsletter for more.",
			},
			verdict:    model.VerdictLikelyNonPurchase,
			signal:     "price alert",
			filteredBy: 1,
		},
		{
			name: "login notification",
			email: model.RawEmail{
				From:     "Binance <do-not-reply@binance.com>",
				Subject:  "[Binance] New Login",
				TextBody: "We detected a new login to your account.",
			},
			verdict:    model.VerdictLikelyNonPurchase,
			signal:     "login",
			filteredBy: 1,
		},
		{
			name: "withdrawal",
			email: model.RawEmail{
				From:     "do-not-reply@binance.com",
				Subject:  "Withdrawal Successful",
				TextBody: "You have withdrawn 0.5 BTC to your external wallet.",
			},
			verdict:    model.VerdictLikelyNonPurchase,
			signal:     "withdrawal",
			filteredBy: 1,
		},
		{
			name: "negative term next to purchase verb",
			email: model.RawEmail{
				From:     "noreply@kraken.com",
				Subject:  "Deposit confirmed and order filled",
				TextBody: "Deposit confirmed and your buy order for 0.1 BTC was filled.",
			},
			verdict: model.VerdictLikelyPurchase,
		},
		{
			name: "crypto without action",
			email: model.RawEmail{
				From:     "learn@example.com",
				Subject:  "Bitcoin explained",
				TextBody: "A beginner's guide to how bitcoin works.",
			},
			verdict: model.VerdictUncertain,
		},
		{
			name: "unrelated mail",
			email: model.RawEmail{
				From:     "billing@utility.example",
				Subject:  "Your statement is ready",
				TextBody: "Your monthly statement is ready to view.",
			},
			verdict: model.VerdictUncertain,
		},
		{
			name: "staking reward",
			email: model.RawEmail{
				From:     "noreply@kraken.com",
				Subject:  "Staking reward received",
				TextBody: "We have credited your account with 10.5 ADA.",
			},
			verdict: model.VerdictLikelyPurchase,
		},
		{
			name: "html only purchase",
			email: model.RawEmail{
				From:     "orders@gemini.com",
				HTMLBody: "<p>Your order to purchase <b>0.25 ETH</b> was filled.</p>",
			},
			verdict: model.VerdictLikelyPurchase,
		},
		{
			name:       "empty body",
			email:      model.RawEmail{From: "no-reply@coinbase.com", Subject: "You bought Bitcoin"},
			verdict:    model.VerdictLikelyNonPurchase,
			signal:     "empty body",
			filteredBy: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m := newTestPreprocessor(t)
			d := p.Classify(tt.email)
			assert.Equal(t, tt.verdict, d.Verdict, "signal %q", d.Signal)
			if tt.signal != "" {
				assert.Equal(t, tt.signal, d.Signal)
			}
			assert.Equal(t, tt.filteredBy, m.Get(metrics.FilteredOut))
		})
	}
}

func TestPreprocessor_TickersAreCaseSensitive(t *testing.T) {
	p, _ := newTestPreprocessor(t)
	d := p.Classify(model.RawEmail{
		From:     "friend@example.com",
		Subject:  "Lunch",
		TextBody: "I bought a ton of snacks near the op shop.",
	})
	assert.Equal(t, model.VerdictUncertain, d.Verdict)
}

func TestPreprocessor_NilMetrics(t *testing.T) {
	p, err := New(DefaultKeywords(), nil, nil)
	require.NoError(t, err)
	d := p.Classify(model.RawEmail{})
	assert.Equal(t, model.VerdictLikelyNonPurchase, d.Verdict)
}
