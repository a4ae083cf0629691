package extractor

import (
	"regexp"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// Pattern fragments shared by the exchange templates. Keywords are matched
// case-insensitively; tickers and ISO codes must be uppercase.
const (
	amountFrag   = `(?P<amount>\d[\d.,]*)`
	symbolFrag   = `(?P<symbol>[A-Z][A-Z0-9]{1,9})`
	signFrag     = `(?P<cursym>A\$|AU\$|C\$|US\$|[$€£¥])?\s?`
	fiatFrag     = `(?P<fiat>\d[\d.,]*)`
	currencyFrag = `(?:[ \t]*(?P<currency>[A-Z]{3})\b)?`
	feeFrag      = `\b(?i:fee)(?:\s+of)?\s*:?\s*` + signFrag + `(?P<fee>\d[\d.,]*)(?:[ \t]*(?P<currency>[A-Z][A-Z0-9]{2,4})\b)?`

	// "bought 0.5 BTC for $30,000.00 USD"
	boughtForFrag = amountFrag + `\s+` + symbolFrag + `(?:\s+\([A-Z0-9]+\))?\s+(?i:for)\s+` + signFrag + fiatFrag + currencyFrag
)

func re(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

func buy(name string, body ...string) Template {
	t := Template{Name: name, Type: model.TransactionBuy}
	for _, b := range body {
		t.Body = append(t.Body, re(b))
	}
	return t
}

func reward(name, requires string, body string) Template {
	return Template{
		Name:     name,
		Type:     model.TransactionStakingReward,
		Requires: requires,
		Body:     []*regexp.Regexp{re(body)},
	}
}

func subjects(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = re(`(?i)` + p)
	}
	return out
}

// DefaultProfiles returns the built-in exchange registry.
func DefaultProfiles() []*ExchangeProfile {
	fee := re(feeFrag)
	return []*ExchangeProfile{
		{
			Name:            "Coinbase",
			SenderDomains:   []string{"coinbase.com"},
			SubjectPatterns: subjects(`purchase of`, `you bought`, `you received`, `recent purchase`, `staking reward`),
			Priority:        100,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("purchase", `(?i:purchased|bought)\s+`+boughtForFrag),
				{
					Name:    "subject purchase",
					Type:    model.TransactionBuy,
					Subject: []*regexp.Regexp{re(`(?i:purchase of)\s+` + amountFrag + `\s+` + symbolFrag)},
					Body:    []*regexp.Regexp{re(`(?i:for)\s+` + signFrag + fiatFrag + currencyFrag)},
				},
				reward("staking", "staking", `(?i:earned|received)\s+`+amountFrag+`\s+`+symbolFrag+`\s+(?i:in\s+staking\s+rewards?)`),
			},
			TransactionID: re(`Transaction ID:\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "Binance",
			SenderDomains:   []string{"binance.com"},
			SubjectPatterns: subjects(`trade confirmation`, `order to buy`, `order execution`, `filled`, `distribution confirmation`),
			Priority:        90,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("order details",
					`Amount:\s*`+amountFrag+`\s*`+symbolFrag,
					`(?:Total Cost|Total):\s*`+signFrag+fiatFrag+currencyFrag),
				buy("one-liner", `(?i:buy)\s+`+boughtForFrag),
				reward("staking", "staking", `(?i:credited with)\s+`+amountFrag+`\s+`+symbolFrag),
			},
			TransactionID: re(`(?:Transaction ID|Reference|Order\s*#)\s*:?\s*([A-Z0-9#][A-Z0-9#\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "Kraken",
			SenderDomains:   []string{"kraken.com"},
			SubjectPatterns: subjects(`trade confirmation`, `kraken order`, `staking reward`, `reward summary`),
			Priority:        90,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("trade", `(?i:bought|buy)\s+`+boughtForFrag),
				reward("staking", "staking", `(?i:credited your account with|staking reward of)\s+`+amountFrag+`\s+`+symbolFrag),
			},
			TransactionID: re(`(?:Order Reference|Reference|ID):\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "Bitstamp",
			SenderDomains:   []string{"bitstamp.net"},
			SubjectPatterns: subjects(`transaction confirmation`, `bought`),
			Priority:        80,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("trade", `(?i:successfully\s+bought)\s+`+boughtForFrag),
			},
			TransactionID: re(`Transaction\s*ID\s*:?\s*([A-Z0-9]+)`),
			Fee:           fee,
		},
		{
			Name:            "Bitfinex",
			SenderDomains:   []string{"bitfinex.com"},
			SubjectPatterns: subjects(`order executed`, `trade execution`, `buy`),
			Priority:        80,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("limit order", `(?i:buy)\s+`+amountFrag+`\s+`+symbolFrag+`\s+@\s+`+signFrag+`(?P<unit_price>\d[\d.,]*)`+currencyFrag),
			},
			TransactionID: re(`Order\s*ID\s*:?\s*(\d+)`),
			Fee:           fee,
		},
		{
			Name:            "Gemini",
			SenderDomains:   []string{"gemini.com"},
			SubjectPatterns: subjects(`order confirmation`, `purchase`, `buy`),
			Priority:        80,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("order", `(?i:order to purchase)\s+`+boughtForFrag),
			},
			TransactionID: re(`Transaction ID:\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "Crypto.com",
			SenderDomains:   []string{"crypto.com"},
			SubjectPatterns: subjects(`order`, `executed`, `buy`, `filled`),
			Priority:        80,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("order",
					`(?i:buy)\s+`+amountFrag+`\s+`+symbolFrag,
					`(?i:total cost):\s*`+signFrag+fiatFrag+currencyFrag),
			},
			TransactionID: re(`(?i:order)\s+#([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "FTX",
			SenderDomains:   []string{"ftx.com", "ftx.us"},
			SubjectPatterns: subjects(`trade executed`, `buy`),
			Priority:        70,
			DefaultCurrency: "USD",
			Templates: []Template{
				buy("trade",
					`Amount:\s*`+amountFrag+`\s+`+symbolFrag,
					`Total:\s*`+signFrag+fiatFrag+currencyFrag),
			},
			TransactionID: re(`(?:Trade|Order)\s*ID\s*:?\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "CoinSpot",
			SenderDomains:   []string{"coinspot.com.au", "coinspot.com"},
			SubjectPatterns: subjects(`buy order`, `order filled`, `purchase`),
			Priority:        70,
			DefaultCurrency: "AUD",
			Templates: []Template{
				buy("purchase", `(?i:purchased)\s+`+boughtForFrag),
			},
			TransactionID: re(`Reference:\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "Newton",
			SenderDomains:   []string{"newton.co"},
			SubjectPatterns: subjects(`trade confirmation`, `you bought`, `transaction confirmation`),
			Priority:        70,
			DefaultCurrency: "CAD",
			Templates: []Template{
				buy("trade", `(?i:bought)\s+`+boughtForFrag),
			},
			TransactionID: re(`Reference\s*#?\s*:?\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "Swyftx",
			SenderDomains:   []string{"swyftx.com", "swyftx.com.au"},
			SubjectPatterns: subjects(`trade confirmation`, `successfully bought`, `order filled`),
			Priority:        70,
			DefaultCurrency: "AUD",
			Templates: []Template{
				buy("trade", `(?i:bought)\s+`+boughtForFrag),
			},
			TransactionID: re(`Receipt\s*#?\s*:?\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "BTCMarkets",
			SenderDomains:   []string{"btcmarkets.net"},
			SubjectPatterns: subjects(`buy order filled`, `trade confirmation`, `order processed`),
			Priority:        70,
			DefaultCurrency: "AUD",
			Templates: []Template{
				buy("filled", `(?i:order for|bought)\s+`+amountFrag+`\s+`+symbolFrag+`\s+(?i:has been filled at|for)\s+`+signFrag+fiatFrag+currencyFrag),
			},
			TransactionID: re(`Order\s*ID\s*:?\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
		{
			Name:            "Independent Reserve",
			SenderDomains:   []string{"independentreserve.com"},
			SubjectPatterns: subjects(`trade confirmation`, `order filled`, `buy order`),
			Priority:        70,
			DefaultCurrency: "AUD",
			Templates: []Template{
				buy("trade", `(?i:bought|purchased)\s+`+boughtForFrag),
			},
			TransactionID: re(`\b(?:Reference|Ref|Order ID):?\s*([A-Z0-9][A-Z0-9\-]*)`),
			Fee:           fee,
		},
	}
}
