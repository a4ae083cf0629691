// Package privacy masks personal data in email text before it is sent to a
// model provider.
package privacy

import (
	"regexp"
	"strings"
)

// Scrubber replaces personal data with bracketed placeholders.
type Scrubber struct {
	skip map[string]struct{}
}

var (
	emailRe    = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	cardRe     = regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)
	ipRe       = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	phoneRe    = regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	addressRe  = regexp.MustCompile(`(?i)\b\d{1,5}\s+[a-z]+(?:\s+[a-z]+)*\s+(?:street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|court|ct|circle|cir|way)\b`)
	greetingRe = regexp.MustCompile(`\b(Hi|Dear|Hello|Greetings)\s+([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+){0,2})`)
)

// NewScrubber builds a scrubber. Matches equal to a skip term, compared
// case-insensitively, are left intact.
func NewScrubber(skipTerms ...string) *Scrubber {
	skip := make(map[string]struct{}, len(skipTerms))
	for _, term := range skipTerms {
		skip[strings.ToLower(term)] = struct{}{}
	}
	return &Scrubber{skip: skip}
}

func (s *Scrubber) keep(match string) bool {
	_, ok := s.skip[strings.ToLower(match)]
	return ok
}

func (s *Scrubber) mask(re *regexp.Regexp, text, placeholder string) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		if s.keep(m) {
			return m
		}
		return placeholder
	})
}

// Scrub returns text with emails, cards, IPs, phones, street addresses and
// greeting names masked.
func (s *Scrubber) Scrub(text string) string {
	if text == "" {
		return text
	}

	text = s.mask(emailRe, text, "[EMAIL]")
	text = cardRe.ReplaceAllString(text, "[CREDIT_CARD]")
	text = ipRe.ReplaceAllString(text, "[IP_ADDRESS]")
	text = s.mask(phoneRe, text, "[PHONE]")
	text = s.mask(addressRe, text, "[ADDRESS]")

	return greetingRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := greetingRe.FindStringSubmatch(m)
		if s.keep(parts[2]) {
			return m
		}
		return parts[1] + " [NAME]"
	})
}
