package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

func TestHTMLToText(t *testing.T) {
	html := `<html><body><div>Amount:</div><div>10 BTC</div>` +
		`<table><tr><td>Total</td><td>$500.00&nbsp;USD</td></tr></table>` +
		`<p>Fees &amp; charges</p></body></html>`

	text := HTMLToText(html)
	assert.Contains(t, text, "Amount:")
	assert.Contains(t, text, "10 BTC")
	assert.Contains(t, text, "Total $500.00 USD")
	assert.Contains(t, text, "Fees & charges")
	assert.NotContains(t, text, "<")
	assert.NotContains(t, text, "Amount:10")

	assert.Empty(t, HTMLToText("   "))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "plain", PlainText(model.RawEmail{TextBody: "plain", HTMLBody: "<p>html</p>"}))
	assert.Equal(t, "html", PlainText(model.RawEmail{TextBody: " ", HTMLBody: "<p>html</p>"}))
	assert.Empty(t, PlainText(model.RawEmail{}))
}
