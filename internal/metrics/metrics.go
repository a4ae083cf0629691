// Package metrics accumulates per-batch pipeline counters. Every method is
// safe for concurrent use by pipeline workers.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter names one of the pipeline counters.
type Counter int

// Pipeline counters.
const (
	EmailsTotal Counter = iota
	FilteredOut
	RegexHits
	LLMHits
	LLMFallbackTriggered
	LLMFailures
	LLMUnreachable
	ValidationFailures
	Exceptions
	Accepted
	Rejected
	Duplicates
	numCounters
)

var counterNames = [numCounters]string{
	EmailsTotal:          "emails_total",
	FilteredOut:          "filtered_out",
	RegexHits:            "regex_hits",
	LLMHits:              "llm_hits",
	LLMFallbackTriggered: "llm_fallback_triggered",
	LLMFailures:          "llm_failures",
	LLMUnreachable:       "llm_unreachable",
	ValidationFailures:   "validation_failures",
	Exceptions:           "exceptions",
	Accepted:             "accepted",
	Rejected:             "rejected",
	Duplicates:           "duplicates",
}

func (c Counter) String() string {
	if c < 0 || c >= numCounters {
		return "unknown"
	}
	return counterNames[c]
}

// ProcessingMetrics is the batch-wide accumulator.
type ProcessingMetrics struct {
	counters     [numCounters]atomic.Int64
	llmLatencyNs atomic.Int64
	llmCalls     atomic.Int64

	mu            sync.Mutex
	rejectReasons map[string]int64
	warnings      []string
}

// New returns zeroed metrics.
func New() *ProcessingMetrics {
	return &ProcessingMetrics{rejectReasons: make(map[string]int64)}
}

// Inc adds one to c. A nil receiver is a no-op so components can run without metrics.
func (m *ProcessingMetrics) Inc(c Counter) {
	if m == nil {
		return
	}
	m.counters[c].Add(1)
}

// Get returns the current value of c.
func (m *ProcessingMetrics) Get(c Counter) int64 {
	if m == nil {
		return 0
	}
	return m.counters[c].Load()
}

// ObserveLLMLatency records one completed model round trip.
func (m *ProcessingMetrics) ObserveLLMLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.llmLatencyNs.Add(int64(d))
	m.llmCalls.Add(1)
}

// RecordRejection tags a rejected email with its reason.
func (m *ProcessingMetrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.Inc(Rejected)
	m.mu.Lock()
	m.rejectReasons[reason]++
	m.mu.Unlock()
}

// AddWarning attaches a batch-level warning.
func (m *ProcessingMetrics) AddWarning(msg string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.warnings = append(m.warnings, msg)
	m.mu.Unlock()
}

// Reset zeroes every counter for a new batch.
func (m *ProcessingMetrics) Reset() {
	if m == nil {
		return
	}
	for i := range m.counters {
		m.counters[i].Store(0)
	}
	m.llmLatencyNs.Store(0)
	m.llmCalls.Store(0)
	m.mu.Lock()
	m.rejectReasons = make(map[string]int64)
	m.warnings = nil
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy for reporting.
type Snapshot struct {
	RejectReasons        map[string]int64 `json:"reject_reasons,omitempty"`
	Warnings             []string         `json:"warnings,omitempty"`
	EmailsTotal          int64            `json:"emails_total"`
	FilteredOut          int64            `json:"filtered_out"`
	RegexHits            int64            `json:"regex_hits"`
	LLMHits              int64            `json:"llm_hits"`
	LLMFallbackTriggered int64            `json:"llm_fallback_triggered"`
	LLMFailures          int64            `json:"llm_failures"`
	LLMUnreachable       int64            `json:"llm_unreachable"`
	ValidationFailures   int64            `json:"validation_failures"`
	Exceptions           int64            `json:"exceptions"`
	Accepted             int64            `json:"accepted"`
	Rejected             int64            `json:"rejected"`
	Duplicates           int64            `json:"duplicates"`
	LLMCalls             int64            `json:"llm_calls"`
	LLMLatency           time.Duration    `json:"llm_latency_ns"`
}

// Snapshot copies the current state.
func (m *ProcessingMetrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	s := Snapshot{
		EmailsTotal:          m.Get(EmailsTotal),
		FilteredOut:          m.Get(FilteredOut),
		RegexHits:            m.Get(RegexHits),
		LLMHits:              m.Get(LLMHits),
		LLMFallbackTriggered: m.Get(LLMFallbackTriggered),
		LLMFailures:          m.Get(LLMFailures),
		LLMUnreachable:       m.Get(LLMUnreachable),
		ValidationFailures:   m.Get(ValidationFailures),
		Exceptions:           m.Get(Exceptions),
		Accepted:             m.Get(Accepted),
		Rejected:             m.Get(Rejected),
		Duplicates:           m.Get(Duplicates),
		LLMCalls:             m.llmCalls.Load(),
		LLMLatency:           time.Duration(m.llmLatencyNs.Load()),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rejectReasons) > 0 {
		s.RejectReasons = make(map[string]int64, len(m.rejectReasons))
		for k, v := range m.rejectReasons {
			s.RejectReasons[k] = v
		}
	}
	s.Warnings = append([]string(nil), m.warnings...)
	return s
}

// AverageLLMLatency is zero when no model call completed.
func (s Snapshot) AverageLLMLatency() time.Duration {
	if s.LLMCalls == 0 {
		return 0
	}
	return s.LLMLatency / time.Duration(s.LLMCalls)
}

// SortedReasons lists reject reasons in stable order.
func (s Snapshot) SortedReasons() []string {
	reasons := make([]string, 0, len(s.RejectReasons))
	for r := range s.RejectReasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}
