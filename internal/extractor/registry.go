package extractor

import (
	"log/slog"
	"net/mail"
	"sort"
	"strings"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// Registry tries exchange profiles against an email. It is built once and
// shared read-only by all workers.
type Registry struct {
	logger   *slog.Logger
	profiles []*ExchangeProfile
}

// NewRegistry creates a registry over profiles, highest priority first.
func NewRegistry(profiles []*ExchangeProfile, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := make([]*ExchangeProfile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Registry{profiles: sorted, logger: logger}
}

// Profiles returns the registry's profiles in priority order.
func (r *Registry) Profiles() []*ExchangeProfile {
	return r.profiles
}

// Extract returns the candidate from the first profile that extracts every
// mandatory field. Partial matches are discarded. Internal failures are
// logged and reported as a miss.
func (r *Registry) Extract(email model.RawEmail) (c model.Candidate, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Regex extraction failed", "message_id", email.MessageID, "panic", rec)
			c, ok = model.Candidate{}, false
		}
	}()

	candidates := r.candidateProfiles(email)
	if len(candidates) == 0 {
		return model.Candidate{}, false
	}

	bodies := []string{email.TextBody}
	if html := HTMLToText(email.HTMLBody); html != "" {
		bodies = append(bodies, html)
	}

	for _, body := range bodies {
		if strings.TrimSpace(body) == "" {
			continue
		}
		for _, p := range candidates {
			if c, ok := p.extract(email, body); ok {
				r.logger.Debug("Regex profile matched",
					"message_id", email.MessageID,
					"vendor", p.Name)
				return c, true
			}
		}
	}
	return model.Candidate{}, false
}

// candidateProfiles orders the profiles whose sender domain matches, most
// specific domain first. Mail from an unknown sender (forwarded mail, for
// example) is tried against profiles whose subject pattern matches and
// whose name appears in the body.
func (r *Registry) candidateProfiles(email model.RawEmail) []*ExchangeProfile {
	domain := senderDomain(email.From)

	type ranked struct {
		p     *ExchangeProfile
		score int
	}
	var byDomain []ranked
	for _, p := range r.profiles {
		if n := p.senderMatch(domain); n > 0 {
			byDomain = append(byDomain, ranked{p: p, score: n})
		}
	}
	if len(byDomain) > 0 {
		sort.SliceStable(byDomain, func(i, j int) bool {
			return byDomain[i].score > byDomain[j].score
		})
		out := make([]*ExchangeProfile, len(byDomain))
		for i, rp := range byDomain {
			out[i] = rp.p
		}
		return out
	}

	body := strings.ToLower(PlainText(email))
	var out []*ExchangeProfile
	for _, p := range r.profiles {
		if p.subjectMatches(email.Subject) && strings.Contains(body, strings.ToLower(p.Name)) {
			out = append(out, p)
		}
	}
	return out
}

func senderDomain(from string) string {
	addr := from
	if parsed, err := mail.ParseAddress(from); err == nil {
		addr = parsed.Address
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		addr = addr[at+1:]
	}
	return strings.Trim(addr, "<> ")
}
