package extractor

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

var (
	textPolicy  = bluemonday.StrictPolicy()
	blockTagRe  = regexp.MustCompile(`(?i)<\s*/?\s*(?:br|p|div|tr|li|table|h[1-6])\b[^>]*>`)
	cellTagRe   = regexp.MustCompile(`(?i)<\s*/\s*t[dh]\s*>`)
	spaceRunRe  = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLineRe = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText strips markup from an HTML body, keeping block boundaries as
// line breaks so field labels stay next to their values.
func HTMLToText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	body = blockTagRe.ReplaceAllString(body, "\n$0")
	body = cellTagRe.ReplaceAllString(body, " $0")
	text := html.UnescapeString(textPolicy.Sanitize(body))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLineRe.ReplaceAllString(text, "\n\n"))
}

// PlainText returns the plain-text part, or the stripped HTML part when the
// message has no usable text part.
func PlainText(email model.RawEmail) string {
	if strings.TrimSpace(email.TextBody) != "" {
		return email.TextBody
	}
	return HTMLToText(email.HTMLBody)
}
