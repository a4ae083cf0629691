package preprocess

import (
	"strings"

	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
)

// DefaultKeywords returns the built-in keyword sets.
func DefaultKeywords() []Keyword {
	keywords := []Keyword{
		// Negative terms - checked first
		{Name: "security alert", Kind: KindNegative, Priority: 100,
			Regex: `\b(security alert|suspicious activity|password (reset|change)|two-factor|2fa code|verify your (email|identity))\b`},
		{Name: "login", Kind: KindNegative, Priority: 95,
			Regex: `\b(new (login|sign-in|device)|login attempt|sign-in attempt|logged in from|successful login)\b`},
		{Name: "price alert", Kind: KindNegative, Priority: 90,
			Regex: `\b(price alert|price movement|is (up|down) \d+(\.\d+)?%)`},
		{Name: "newsletter", Kind: KindNegative, Priority: 85,
			Regex: `\b(newsletter|weekly digest|market update|market recap)\b`},
		{Name: "withdrawal", Kind: KindNegative, Priority: 80,
			Regex: `\b(withdrawal (successful|request|confirmation|completed|initiated)|you('ve| have)? withdrawn)\b`},
		{Name: "deposit", Kind: KindNegative, Priority: 80,
			Regex: `\b(deposit (successful|confirmed|received|completed)|you('ve| have)? deposited)\b`},
		{Name: "promotion", Kind: KindNegative, Priority: 70,
			Regex: `\b(webinar|giveaway|promo code|refer a friend)\b`},

		// Purchase actions
		{Name: "bought", Kind: KindAction, Priority: 60, Regex: `\b(bought|purchased|purchase of|order to (buy|purchase))\b`},
		{Name: "buy order", Kind: KindAction, Priority: 60, Regex: `\b(buy order|buy\s+\d)`},
		{Name: "filled", Kind: KindAction, Priority: 55, Regex: `\b(filled|order executed|has been executed|trade executed)\b`},
		{Name: "trade confirmation", Kind: KindAction, Priority: 55, Regex: `\b(trade|transaction|order) confirmation\b`},
		{Name: "reward", Kind: KindAction, Priority: 50, Regex: `\b(earned|credited (your account )?with|staking rewards?)\b`},

		// Crypto terms
		{Name: "crypto", Kind: KindCrypto, Priority: 40,
			Regex: `\b(bitcoin|ethereum|litecoin|dogecoin|solana|cardano|polkadot|ripple|tether|crypto(currency)?)\b`},
	}

	tickers := append(extractor.KnownSymbols(), "XBT", "XDG")
	keywords = append(keywords, Keyword{
		Name:          "ticker",
		Kind:          KindCrypto,
		Priority:      35,
		Regex:         `\b(` + strings.Join(tickers, "|") + `)\b`,
		CaseSensitive: true,
	})

	for _, exchange := range []string{
		"Coinbase", "Binance", "Kraken", "Bitstamp", "Bitfinex", "Gemini", "Crypto.com", "FTX",
		"CoinSpot", "Newton", "Swyftx", "BTC Markets", "BTCMarkets", "Independent Reserve",
	} {
		keywords = append(keywords, Keyword{
			Name:     exchange,
			Kind:     KindExchange,
			Priority: 30,
			Regex:    `\b` + regexpQuote(exchange) + `\b`,
		})
	}

	return keywords
}

func regexpQuote(s string) string {
	return strings.NewReplacer(".", `\.`, " ", `\s+`).Replace(s)
}
