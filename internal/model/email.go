// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"
)

// RawEmail is a single message as read from a mailbox or .eml file.
type RawEmail struct {
	Date      time.Time
	MessageID string
	From      string
	Subject   string
	TextBody  string
	HTMLBody  string
	Source    string // Mailbox or file the message was read from
}

// HasBody reports whether the message carries any non-blank body part.
func (e RawEmail) HasBody() bool {
	return strings.TrimSpace(e.TextBody) != "" || strings.TrimSpace(e.HTMLBody) != ""
}

// Verdict is the preprocessor's cheap purchase/non-purchase call.
type Verdict string

// Verdict constants.
const (
	VerdictLikelyPurchase    Verdict = "LIKELY_PURCHASE"
	VerdictLikelyNonPurchase Verdict = "LIKELY_NON_PURCHASE"
	VerdictUncertain         Verdict = "UNCERTAIN"
)

// Decision pairs a verdict with the signal that produced it.
type Decision struct {
	Verdict Verdict
	Signal  string
}
