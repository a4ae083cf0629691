// Package ingest decodes .eml files and mbox archives into RawEmail values.
package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// maxParts bounds multipart recursion on hostile input.
const maxParts = 64

var wordDecoder = &mime.WordDecoder{}

// ParseMessage decodes one RFC 5322 message.
func ParseMessage(r io.Reader, source string) (model.RawEmail, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return model.RawEmail{}, fmt.Errorf("failed to read message: %w", err)
	}

	email := model.RawEmail{
		MessageID: strings.TrimSpace(msg.Header.Get("Message-Id")),
		From:      decodeHeader(msg.Header.Get("From")),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		Date:      parseDate(msg.Header.Get("Date")),
		Source:    source,
	}

	p := &partWalker{}
	if err := p.walk(msg.Header, msg.Body, 0); err != nil {
		return model.RawEmail{}, fmt.Errorf("failed to decode body of %s: %w", email.MessageID, err)
	}
	email.TextBody = strings.TrimSpace(p.text.String())
	email.HTMLBody = strings.TrimSpace(p.html.String())
	return email, nil
}

type header interface {
	Get(key string) string
}

type partWalker struct {
	text  strings.Builder
	html  strings.Builder
	parts int
}

func (w *partWalker) walk(h header, body io.Reader, depth int) error {
	w.parts++
	if w.parts > maxParts || depth > 8 {
		return nil
	}

	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart message without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := w.walk(part.Header, part, depth+1); err != nil {
				return err
			}
		}
	}

	if strings.EqualFold(h.Get("Content-Disposition"), "attachment") ||
		strings.HasPrefix(strings.ToLower(h.Get("Content-Disposition")), "attachment;") {
		return nil
	}

	var target *strings.Builder
	switch mediaType {
	case "text/plain":
		target = &w.text
	case "text/html":
		target = &w.html
	default:
		return nil
	}

	data, err := io.ReadAll(decodeTransfer(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return fmt.Errorf("failed to decode %s part: %w", mediaType, err)
	}
	if target.Len() > 0 {
		target.WriteString("\n")
	}
	target.Write(toUTF8(data, params["charset"]))
	return nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	default:
		return r
	}
}

// newlineStripper drops CR and LF so wrapped base64 decodes.
type newlineStripper struct{ r io.Reader }

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		count, err := n.r.Read(p)
		kept := 0
		for _, b := range p[:count] {
			if b != '\r' && b != '\n' {
				p[kept] = b
				kept++
			}
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}

// toUTF8 handles Latin-1 bodies; everything else is passed through.
func toUTF8(data []byte, charset string) []byte {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1", "windows-1252":
		var buf bytes.Buffer
		for _, b := range data {
			buf.WriteRune(rune(b))
		}
		return buf.Bytes()
	default:
		return data
	}
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

func parseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(v); err == nil {
		return t.UTC()
	}
	if t, ok := common.ParseTimestamp(v); ok {
		return t
	}
	return time.Time{}
}
