package extractor

import (
	"sort"
	"strings"
)

// symbolAliases maps exchange tickers and asset names to canonical tickers.
var symbolAliases = map[string]string{
	"XBT":              "BTC",
	"XXBT":             "BTC",
	"XDG":              "DOGE",
	"XXDG":             "DOGE",
	"XETH":             "ETH",
	"XLTC":             "LTC",
	"XXRP":             "XRP",
	"BITCOIN":          "BTC",
	"ETHEREUM":         "ETH",
	"ETHER":            "ETH",
	"LITECOIN":         "LTC",
	"SOLANA":           "SOL",
	"DOGECOIN":         "DOGE",
	"CARDANO":          "ADA",
	"POLKADOT":         "DOT",
	"RIPPLE":           "XRP",
	"TETHER":           "USDT",
	"USD COIN":         "USDC",
	"BINANCE COIN":     "BNB",
	"BITCOIN CASH":     "BCH",
	"ETHEREUM CLASSIC": "ETC",
	"CHAINLINK":        "LINK",
	"STELLAR":          "XLM",
	"MONERO":           "XMR",
	"AVALANCHE":        "AVAX",
	"POLYGON":          "MATIC",
	"SHIBA INU":        "SHIB",
	"COSMOS":           "ATOM",
	"UNISWAP":          "UNI",
}

var knownSymbols = map[string]struct{}{}

func init() {
	for _, s := range []string{
		"BTC", "ETH", "USDT", "USDC", "BNB", "XRP", "ADA", "SOL", "DOGE", "DOT",
		"MATIC", "LTC", "LINK", "BCH", "XLM", "XMR", "ETC", "AVAX", "WBTC", "DAI",
		"UNI", "ATOM", "SHIB", "LEO", "TRX", "TON", "NEAR", "OP", "ARB", "PEPE",
		"KAS", "APT", "STX", "HBAR", "FIL", "VET", "MKR", "LDO", "RNDR", "RUNE",
		"ALGO", "AAVE", "XTZ", "EOS", "CRO", "SAND", "MANA", "GRT", "FTM", "ZEC",
	} {
		knownSymbols[s] = struct{}{}
	}
}

// currencySymbols maps printed currency signs to ISO 4217 codes.
var currencySymbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"A$":  "AUD",
	"AU$": "AUD",
	"C$":  "CAD",
}

// NormalizeSymbol uppercases a ticker and resolves exchange aliases such as
// XBT and XDG.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.Join(strings.Fields(symbol), " "))
	if canonical, ok := symbolAliases[s]; ok {
		return canonical
	}
	return s
}

// IsKnownSymbol reports whether symbol is on the allowlist after normalization.
func IsKnownSymbol(symbol string) bool {
	_, ok := knownSymbols[NormalizeSymbol(symbol)]
	return ok
}

// KnownSymbols returns the allowlist, used by keyword matching.
func KnownSymbols() []string {
	out := make([]string, 0, len(knownSymbols))
	for s := range knownSymbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// resolveCurrency picks the fiat code from an explicit code, a printed sign,
// or the exchange default, in that order. A bare "$" takes the exchange's
// dollar when it has one.
func resolveCurrency(code, sign, fallback string) string {
	if code = strings.TrimSpace(code); code != "" {
		return strings.ToUpper(code)
	}
	if sign = strings.TrimSpace(sign); sign != "" {
		if sign == "$" && isDollar(fallback) {
			return fallback
		}
		if iso, ok := currencySymbols[sign]; ok {
			return iso
		}
	}
	return fallback
}

func isDollar(code string) bool {
	switch code {
	case "USD", "AUD", "CAD", "NZD", "SGD":
		return true
	}
	return false
}
