// Package validation checks extracted candidates before they become
// purchase records.
package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/digital-asset-harvester/internal/config"
	"github.com/Veraticus/digital-asset-harvester/internal/extractor"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// Status is the outcome of a validation.
type Status int

// Validation statuses.
const (
	Accepted Status = iota
	AcceptedWithWarnings
	Rejected
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case AcceptedWithWarnings:
		return "accepted_with_warnings"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of Check. Purchase is set unless the
// candidate was rejected; Rejection is set only when it was.
type Result struct {
	Rejection *Error
	Purchase  model.Purchase
	Warnings  []string
	Status    Status
}

// Options configures a Validator.
type Options struct {
	Mode               model.ValidationMode
	MinConfidence      float64
	AllowUnknownCrypto bool
}

// OptionsFromSettings maps the pipeline settings onto validator options.
func OptionsFromSettings(s config.Settings) Options {
	mode := model.ModeLenient
	if s.StrictValidation {
		mode = model.ModeStrict
	}
	return Options{
		Mode:               mode,
		MinConfidence:      s.MinConfidenceThreshold,
		AllowUnknownCrypto: s.AllowUnknownCrypto,
	}
}

// genesis is the Bitcoin genesis block date; nothing was bought before it.
var genesis = time.Date(2009, 1, 3, 0, 0, 0, 0, time.UTC)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Validator applies the purchase checks in a fixed order. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	metrics *metrics.ProcessingMetrics
	logger  *slog.Logger
	now     func() time.Time
	opts    Options
}

// New creates a validator.
func New(opts Options, m *metrics.ProcessingMetrics, logger *slog.Logger) *Validator {
	if opts.Mode == "" {
		opts.Mode = model.ModeStrict
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{opts: opts, metrics: m, logger: logger, now: time.Now}
}

// finding is one failed check. A warnOnly finding never rejects.
type finding struct {
	err      *Error
	warning  string
	warnOnly bool
}

func (f finding) message() string {
	if f.warning != "" {
		return f.warning
	}
	return f.err.Error()
}

// Check validates c. Missing required fields reject in every mode; in
// lenient mode every other failure becomes a warning on the accepted record.
func (v *Validator) Check(c model.Candidate) Result {
	if missing := missingFields(c); len(missing) > 0 {
		return v.reject(c, &Error{
			Kind:    KindMissingField,
			Field:   missing[0],
			Message: fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")),
		})
	}

	p := newPurchase(c, v.opts.Mode)
	checks := []func(*model.Purchase) *finding{
		v.checkAmounts,
		v.checkCurrency,
		v.checkSymbol,
		v.checkDate,
		v.checkConfidence,
	}

	var warnings []string
	for _, check := range checks {
		f := check(&p)
		if f == nil {
			continue
		}
		if f.warnOnly || v.opts.Mode == model.ModeLenient {
			warnings = append(warnings, f.message())
			continue
		}
		return v.reject(c, f.err)
	}

	p.Warnings = warnings
	p.AssignID()

	status := Accepted
	if len(warnings) > 0 {
		status = AcceptedWithWarnings
	}
	return Result{Status: status, Purchase: p, Warnings: warnings}
}

// Validate is Check for callers that want an error.
func (v *Validator) Validate(c model.Candidate) (model.Purchase, error) {
	r := v.Check(c)
	if r.Status == Rejected {
		return model.Purchase{}, r.Rejection
	}
	return r.Purchase, nil
}

func (v *Validator) reject(c model.Candidate, e *Error) Result {
	v.metrics.Inc(metrics.ValidationFailures)
	v.logger.Debug("Candidate rejected",
		"message_id", c.MessageID,
		"kind", e.Kind,
		"field", e.Field,
		"reason", e.Message)
	return Result{Status: Rejected, Rejection: e}
}

func missingFields(c model.Candidate) []string {
	var missing []string
	if strings.TrimSpace(c.Vendor) == "" {
		missing = append(missing, "vendor")
	}
	if strings.TrimSpace(c.CryptoSymbol) == "" {
		missing = append(missing, "crypto_symbol")
	}
	if !c.CryptoAmount.Valid {
		missing = append(missing, "crypto_amount")
	}
	if !c.FiatAmount.Valid {
		missing = append(missing, "fiat_amount")
	}
	if strings.TrimSpace(c.FiatCurrency) == "" {
		missing = append(missing, "fiat_currency")
	}
	if c.PurchaseDate.IsZero() {
		missing = append(missing, "purchase_date")
	}
	return missing
}

func newPurchase(c model.Candidate, mode model.ValidationMode) model.Purchase {
	txType := c.TransactionType
	if txType == "" {
		txType = model.TransactionBuy
	}
	confidence := c.Confidence
	if c.Source == model.SourceRegex {
		confidence = 1.0
	}
	return model.Purchase{
		PurchaseDate:    c.PurchaseDate.UTC(),
		CryptoAmount:    c.CryptoAmount.Decimal,
		FiatAmount:      c.FiatAmount.Decimal,
		FeeAmount:       c.FeeAmount,
		Vendor:          strings.TrimSpace(c.Vendor),
		CryptoSymbol:    extractor.NormalizeSymbol(c.CryptoSymbol),
		FiatCurrency:    strings.TrimSpace(c.FiatCurrency),
		FeeCurrency:     c.FeeCurrency,
		TransactionID:   c.TransactionID,
		TransactionType: txType,
		Source:          c.Source,
		Provider:        c.Provider,
		MessageID:       c.MessageID,
		EmailSource:     c.EmailSource,
		Mode:            mode,
		Confidence:      confidence,
		Reward:          c.Reward,
	}
}

func (v *Validator) checkAmounts(p *model.Purchase) *finding {
	if !p.CryptoAmount.IsPositive() {
		return &finding{err: &Error{
			Kind:    KindOutOfRange,
			Field:   "crypto_amount",
			Message: fmt.Sprintf("crypto amount must be positive, got %s", p.CryptoAmount),
		}}
	}
	switch {
	case p.FiatAmount.IsNegative():
		return &finding{err: &Error{
			Kind:    KindOutOfRange,
			Field:   "fiat_amount",
			Message: fmt.Sprintf("fiat amount must not be negative, got %s", p.FiatAmount),
		}}
	case p.FiatAmount.IsZero() && !p.Reward:
		return &finding{err: &Error{
			Kind:    KindOutOfRange,
			Field:   "fiat_amount",
			Message: "fiat amount is zero on a record not flagged as a reward",
		}}
	}
	if p.FeeAmount.Valid && p.FeeAmount.Decimal.IsNegative() {
		return &finding{err: &Error{
			Kind:    KindOutOfRange,
			Field:   "fee_amount",
			Message: fmt.Sprintf("fee must not be negative, got %s", p.FeeAmount.Decimal),
		}}
	}
	return nil
}

func (v *Validator) checkCurrency(p *model.Purchase) *finding {
	if currencyRe.MatchString(p.FiatCurrency) {
		return nil
	}
	f := &finding{err: &Error{
		Kind:    KindOutOfRange,
		Field:   "fiat_currency",
		Message: fmt.Sprintf("fiat currency %q is not a three-letter uppercase code", p.FiatCurrency),
	}}
	if upper := strings.ToUpper(p.FiatCurrency); v.opts.Mode == model.ModeLenient && currencyRe.MatchString(upper) {
		f.warning = fmt.Sprintf("fiat_currency normalized from %q to %q", p.FiatCurrency, upper)
		p.FiatCurrency = upper
		if strings.EqualFold(p.FeeCurrency, upper) {
			p.FeeCurrency = upper
		}
	}
	return f
}

func (v *Validator) checkSymbol(p *model.Purchase) *finding {
	if extractor.IsKnownSymbol(p.CryptoSymbol) {
		return nil
	}
	return &finding{
		err: &Error{
			Kind:    KindUnknownSymbol,
			Field:   "crypto_symbol",
			Message: fmt.Sprintf("unknown crypto symbol %q", p.CryptoSymbol),
		},
		warnOnly: v.opts.AllowUnknownCrypto,
	}
}

func (v *Validator) checkDate(p *model.Purchase) *finding {
	now := v.now()
	if p.PurchaseDate.Before(genesis) || p.PurchaseDate.After(now) {
		return &finding{err: &Error{
			Kind:  KindBadDate,
			Field: "purchase_date",
			Message: fmt.Sprintf("purchase date %s outside %s..%s",
				p.PurchaseDate.Format(time.RFC3339), genesis.Format("2006-01-02"), now.UTC().Format(time.RFC3339)),
		}}
	}
	return nil
}

func (v *Validator) checkConfidence(p *model.Purchase) *finding {
	if p.Source != model.SourceLLM || p.Confidence >= v.opts.MinConfidence {
		return nil
	}
	return &finding{err: &Error{
		Kind:    KindLowConfidence,
		Field:   "confidence",
		Message: fmt.Sprintf("confidence %.2f below threshold %.2f", p.Confidence, v.opts.MinConfidence),
	}}
}
