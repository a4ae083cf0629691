package engine

import (
	"context"
	"sync"

	"github.com/Veraticus/digital-asset-harvester/internal/llm"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// MockModelExtractor is a test implementation of ModelExtractor. It answers
// from a table keyed by Message-ID and records every call.
type MockModelExtractor struct {
	responses map[string]model.Candidate
	errors    map[string]error
	fallback  error
	calls     []MockLLMCall
	mu        sync.Mutex
}

// MockLLMCall records one extraction request.
type MockLLMCall struct {
	Err       error
	MessageID string
}

// NewMockModelExtractor creates a mock that reports no purchase for any
// email without a configured response.
func NewMockModelExtractor() *MockModelExtractor {
	return &MockModelExtractor{
		responses: make(map[string]model.Candidate),
		errors:    make(map[string]error),
		fallback:  llm.ErrNoPurchase,
	}
}

// WithResponse answers messageID with c.
func (m *MockModelExtractor) WithResponse(messageID string, c model.Candidate) *MockModelExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[messageID] = c
	return m
}

// WithError fails messageID with err.
func (m *MockModelExtractor) WithError(messageID string, err error) *MockModelExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[messageID] = err
	return m
}

// WithDefaultError fails every unconfigured email with err.
func (m *MockModelExtractor) WithDefaultError(err error) *MockModelExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = err
	return m
}

// ExtractWithFallback returns the configured answer for the email.
func (m *MockModelExtractor) ExtractWithFallback(_ context.Context, email model.RawEmail) (model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.errors[email.MessageID]; ok {
		m.calls = append(m.calls, MockLLMCall{MessageID: email.MessageID, Err: err})
		return model.Candidate{}, err
	}
	if c, ok := m.responses[email.MessageID]; ok {
		m.calls = append(m.calls, MockLLMCall{MessageID: email.MessageID})
		c.Source = model.SourceLLM
		c.MessageID = email.MessageID
		c.EmailSource = email.Source
		if c.Provider == "" {
			c.Provider = "mock"
		}
		return c, nil
	}
	m.calls = append(m.calls, MockLLMCall{MessageID: email.MessageID, Err: m.fallback})
	return model.Candidate{}, m.fallback
}

// Calls returns a copy of the recorded calls.
func (m *MockModelExtractor) Calls() []MockLLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockLLMCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (m *MockModelExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *MockModelExtractor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
