// Package extractor holds the deterministic, exchange-specific extractors
// tried before any model call.
package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// Named capture groups understood by templates.
const (
	groupAmount    = "amount"
	groupSymbol    = "symbol"
	groupFiat      = "fiat"
	groupSign      = "cursym"
	groupCurrency  = "currency"
	groupUnitPrice = "unit_price"
	groupFee       = "fee"
)

// Template is one known email layout. Every pattern must match; their named
// groups are merged, body patterns first.
type Template struct {
	Name     string
	Type     model.TransactionType
	Requires string // case-insensitive literal that must appear in the body
	Body     []*regexp.Regexp
	Subject  []*regexp.Regexp
}

// ExchangeProfile describes how one exchange writes its confirmations.
type ExchangeProfile struct {
	TransactionID   *regexp.Regexp
	Fee             *regexp.Regexp
	Name            string
	DefaultCurrency string
	SenderDomains   []string
	SubjectPatterns []*regexp.Regexp
	Templates       []Template
	Priority        int
}

// senderMatch returns the length of the longest sender domain matching from,
// or zero.
func (p *ExchangeProfile) senderMatch(fromDomain string) int {
	best := 0
	for _, d := range p.SenderDomains {
		if fromDomain == d || strings.HasSuffix(fromDomain, "."+d) {
			if len(d) > best {
				best = len(d)
			}
		}
	}
	return best
}

func (p *ExchangeProfile) subjectMatches(subject string) bool {
	for _, re := range p.SubjectPatterns {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

// extract tries each template in order and returns the first one that
// yields every mandatory field.
func (p *ExchangeProfile) extract(email model.RawEmail, body string) (model.Candidate, bool) {
	for _, tpl := range p.Templates {
		groups, ok := tpl.match(email.Subject, body)
		if !ok {
			continue
		}
		if c, ok := p.build(tpl, groups, email, body); ok {
			return c, true
		}
	}
	return model.Candidate{}, false
}

func (t Template) match(subject, body string) (map[string]string, bool) {
	if t.Requires != "" && !strings.Contains(strings.ToLower(body), strings.ToLower(t.Requires)) {
		return nil, false
	}
	groups := make(map[string]string)
	apply := func(re *regexp.Regexp, text string) bool {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return false
		}
		for i, name := range re.SubexpNames() {
			if name == "" || m[i] == "" {
				continue
			}
			if _, seen := groups[name]; !seen {
				groups[name] = m[i]
			}
		}
		return true
	}
	for _, re := range t.Body {
		if !apply(re, body) {
			return nil, false
		}
	}
	for _, re := range t.Subject {
		if !apply(re, subject) {
			return nil, false
		}
	}
	return groups, true
}

func (p *ExchangeProfile) build(tpl Template, g map[string]string, email model.RawEmail, body string) (model.Candidate, bool) {
	amount, err := ParseAmount(g[groupAmount])
	if err != nil {
		return model.Candidate{}, false
	}
	symbol := NormalizeSymbol(g[groupSymbol])
	if symbol == "" {
		return model.Candidate{}, false
	}

	c := model.Candidate{
		Vendor:          p.Name,
		CryptoSymbol:    symbol,
		CryptoAmount:    decimal.NewNullDecimal(amount),
		FiatCurrency:    resolveCurrency(g[groupCurrency], g[groupSign], p.DefaultCurrency),
		TransactionType: model.TransactionBuy,
		Source:          model.SourceRegex,
		Confidence:      1.0,
		MessageID:       email.MessageID,
		EmailSource:     email.Source,
	}
	if tpl.Type != "" {
		c.TransactionType = tpl.Type
	}

	switch {
	case c.TransactionType == model.TransactionStakingReward:
		c.FiatAmount = decimal.NewNullDecimal(decimal.Zero)
		c.Reward = true
	case g[groupUnitPrice] != "":
		price, err := ParseAmount(g[groupUnitPrice])
		if err != nil {
			return model.Candidate{}, false
		}
		c.FiatAmount = decimal.NewNullDecimal(amount.Mul(price))
	default:
		fiat, err := ParseAmount(g[groupFiat])
		if err != nil {
			return model.Candidate{}, false
		}
		c.FiatAmount = decimal.NewNullDecimal(fiat)
	}

	if c.FiatCurrency == "" {
		return model.Candidate{}, false
	}

	if p.TransactionID != nil {
		if m := p.TransactionID.FindStringSubmatch(body); len(m) > 1 {
			c.TransactionID = strings.TrimSpace(m[1])
		}
	}
	p.applyFee(&c, body)

	if t, ok := common.FindTimestamp(body); ok {
		c.PurchaseDate = t
	} else if !email.Date.IsZero() {
		c.PurchaseDate = email.Date.UTC()
	}

	return c, true
}

func (p *ExchangeProfile) applyFee(c *model.Candidate, body string) {
	if p.Fee == nil {
		return
	}
	m := p.Fee.FindStringSubmatch(body)
	if m == nil {
		return
	}
	g := make(map[string]string)
	for i, name := range p.Fee.SubexpNames() {
		if name != "" {
			g[name] = m[i]
		}
	}
	fee, err := ParseAmount(g[groupFee])
	if err != nil {
		return
	}
	c.FeeAmount = decimal.NewNullDecimal(fee)
	c.FeeCurrency = resolveCurrency(g[groupCurrency], g[groupSign], c.FiatCurrency)
}
