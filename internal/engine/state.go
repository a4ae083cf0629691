package engine

// State is a step in the per-email extraction state machine.
type State string

// Extraction states. ACCEPTED, REJECTED and FILTERED are terminal.
const (
	StateReceived       State = "RECEIVED"
	StatePreprocessed   State = "PREPROCESSED"
	StateRegexAttempted State = "REGEX_ATTEMPTED"
	StateRegexMatched   State = "REGEX_MATCHED"
	StateRegexMissed    State = "REGEX_MISSED"
	StateLLMAttempted   State = "LLM_ATTEMPTED"
	StateLLMSucceeded   State = "LLM_SUCCEEDED"
	StateLLMFailed      State = "LLM_FAILED"
	StateValidated      State = "VALIDATED"
	StateAccepted       State = "ACCEPTED"
	StateRejected       State = "REJECTED"
	StateFiltered       State = "FILTERED"
)

// IsTerminal reports whether no further transition can follow s.
func (s State) IsTerminal() bool {
	return s == StateAccepted || s == StateRejected || s == StateFiltered
}

// RejectReason says why an email ended in REJECTED.
type RejectReason string

// Reject reasons.
const (
	ReasonExtractionFailed RejectReason = "EXTRACTION_FAILED"
	ReasonValidationFailed RejectReason = "VALIDATION_FAILED"
	ReasonInternalError    RejectReason = "INTERNAL_ERROR"
)

// Error kinds attached to rejections that carry no typed error of their own.
const (
	kindNoPurchase = "NO_PURCHASE"
	kindNoModel    = "NO_MODEL"
	kindPanic      = "PANIC"
)

// transitions lists the legal successors of each non-terminal state.
var transitions = map[State][]State{
	StateReceived:       {StatePreprocessed},
	StatePreprocessed:   {StateRegexAttempted, StateFiltered},
	StateRegexAttempted: {StateRegexMatched, StateRegexMissed},
	StateRegexMatched:   {StateValidated},
	StateRegexMissed:    {StateLLMAttempted, StateRejected},
	StateLLMAttempted:   {StateLLMSucceeded, StateLLMFailed},
	StateLLMSucceeded:   {StateValidated},
	StateLLMFailed:      {StateRejected},
	StateValidated:      {StateAccepted, StateRejected},
}

// canTransition reports whether to may follow from.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
