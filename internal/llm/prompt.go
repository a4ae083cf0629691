package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

const maxPromptBodyChars = 6000

const systemPrompt = "You extract cryptocurrency purchase records from emails. " +
	"You respond with a single JSON object and nothing else."

// buildExtractionPrompt renders the extraction request for one email. The
// body is already scrubbed when scrubbing is enabled.
func buildExtractionPrompt(email model.RawEmail, body string) string {
	var sb strings.Builder

	sb.WriteString("Extract the cryptocurrency purchase from this email.\n\n")
	sb.WriteString(fmt.Sprintf("Subject: %s\n", email.Subject))
	sb.WriteString(fmt.Sprintf("From: %s\n", senderDomainOnly(email.From)))
	if !email.Date.IsZero() {
		sb.WriteString(fmt.Sprintf("Date: %s\n", email.Date.UTC().Format("2006-01-02T15:04:05Z")))
	}
	sb.WriteString("\nBody:\n")
	sb.WriteString(truncate(strings.TrimSpace(body), maxPromptBodyChars))
	sb.WriteString("\n\n")

	sb.WriteString(`Return JSON with exactly these fields:
{
  "is_purchase": true or false,
  "transaction_type": "buy" or "staking_reward",
  "vendor": exchange or platform name,
  "crypto_symbol": ticker such as "BTC" or "ETH",
  "crypto_amount": amount of cryptocurrency received, as a number,
  "fiat_amount": total fiat spent including fees, as a number,
  "fiat_currency": three-letter ISO code such as "USD",
  "fee_amount": fee as a number or null,
  "fee_currency": three-letter code or null,
  "purchase_date": ISO 8601 date or null,
  "transaction_id": exchange reference or null,
  "confidence": number between 0 and 1,
  "extraction_notes": short note on anything uncertain
}

Rules:
- Deposits, withdrawals, sales, price alerts and newsletters are not purchases. Set "is_purchase" to false.
- Staking or earn rewards use "transaction_type": "staking_reward" with "fiat_amount": 0.
- Copy amounts exactly as written. Do not round or convert currencies.
- If no purchase can be extracted, return null for the entire object.
`)
	return sb.String()
}

// senderDomainOnly keeps only the domain of the From header so the local
// part of a personal address never reaches a provider.
func senderDomainOnly(from string) string {
	at := strings.LastIndex(from, "@")
	if at < 0 {
		return from
	}
	return strings.TrimRight(from[at+1:], "> ")
}
