// Package preprocess provides the cheap keyword filter run before any
// extraction.
package preprocess

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// KeywordKind groups keywords by the role they play in the decision.
type KeywordKind string

const (
	// KindExchange marks exchange names.
	KindExchange KeywordKind = "exchange"
	// KindCrypto marks asset names and tickers.
	KindCrypto KeywordKind = "crypto"
	// KindAction marks purchase verbs.
	KindAction KeywordKind = "action"
	// KindNegative marks mail that is about something other than a purchase.
	KindNegative KeywordKind = "negative"
)

// Keyword is one term of a keyword set.
type Keyword struct {
	Name          string
	Kind          KeywordKind
	Regex         string
	Priority      int // Higher priority keywords are checked first
	CaseSensitive bool
}

type compiledKeyword struct {
	re *regexp.Regexp
	Keyword
}

// Preprocessor classifies emails as likely purchase, likely non-purchase or
// uncertain.
type Preprocessor struct {
	metrics  *metrics.ProcessingMetrics
	logger   *slog.Logger
	keywords map[KeywordKind][]compiledKeyword
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)

// New compiles keywords into a preprocessor.
func New(keywords []Keyword, m *metrics.ProcessingMetrics, logger *slog.Logger) (*Preprocessor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byKind := make(map[KeywordKind][]compiledKeyword)
	for _, k := range keywords {
		expr := k.Regex
		if !k.CaseSensitive && !strings.HasPrefix(expr, "(?i)") {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile keyword %s: %w", k.Name, err)
		}
		byKind[k.Kind] = append(byKind[k.Kind], compiledKeyword{Keyword: k, re: re})
	}

	for kind := range byKind {
		list := byKind[kind]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority > list[j].Priority })
	}

	return &Preprocessor{keywords: byKind, metrics: m, logger: logger}, nil
}

// Classify returns the preprocessing verdict. A negative term wins unless a
// purchase verb appears in the same sentence. Empty messages are treated as
// non-purchases. Internal failures yield UNCERTAIN.
func (p *Preprocessor) Classify(email model.RawEmail) (d model.Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Warn("Preprocessing failed", "message_id", email.MessageID, "panic", rec)
			d = model.Decision{Verdict: model.VerdictUncertain, Signal: "preprocess error"}
		}
	}()

	if !email.HasBody() {
		return p.filtered("empty body")
	}

	text := email.Subject + "\n" + extractor.PlainText(email)

	for _, sentence := range sentenceSplitRe.Split(text, -1) {
		if neg, ok := p.first(KindNegative, sentence); ok {
			if _, verb := p.first(KindAction, sentence); !verb {
				return p.filtered(neg.Name)
			}
		}
	}

	exchange, hasExchange := p.first(KindExchange, email.From+"\n"+text)
	crypto, hasCrypto := p.first(KindCrypto, text)
	action, hasAction := p.first(KindAction, text)

	if (hasExchange || hasCrypto) && hasAction {
		subject := exchange.Name
		if !hasExchange {
			subject = crypto.Name
		}
		return model.Decision{
			Verdict: model.VerdictLikelyPurchase,
			Signal:  subject + "+" + action.Name,
		}
	}

	return model.Decision{Verdict: model.VerdictUncertain}
}

func (p *Preprocessor) filtered(signal string) model.Decision {
	p.metrics.Inc(metrics.FilteredOut)
	return model.Decision{Verdict: model.VerdictLikelyNonPurchase, Signal: signal}
}

func (p *Preprocessor) first(kind KeywordKind, text string) (Keyword, bool) {
	for _, k := range p.keywords[kind] {
		if k.re.MatchString(text) {
			return k.Keyword, true
		}
	}
	return Keyword{}, false
}
