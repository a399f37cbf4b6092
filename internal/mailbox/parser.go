// internal/mailbox/parser.go
package mailbox

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime/v2"
)

// IncomingAttachment is an attachment as it arrives off the wire, before
// anything has been persisted.
type IncomingAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ParsedEmail is the decoded view of one mailbox message that the matcher
// and ingestor operate on.
type ParsedEmail struct {
	From        string
	Subject     string
	Date        time.Time
	MessageID   string
	InReplyTo   string
	References  []string
	TextBody    string
	Header      Header
	Attachments []IncomingAttachment
}

// ParseMessage decodes a raw RFC 5322 message into a ParsedEmail. Message
// ids are normalized here so every consumer compares the same form.
func ParseMessage(source []byte) (*ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail envelope: %w", err)
	}

	header := NewHeader()
	for _, key := range env.GetHeaderKeys() {
		for _, val := range env.GetHeaderValues(key) {
			header.Add(key, val)
		}
	}

	email := &ParsedEmail{
		Subject:    env.GetHeader("Subject"),
		MessageID:  NormalizeMessageID(env.GetHeader("Message-Id")),
		InReplyTo:  NormalizeMessageID(env.GetHeader("In-Reply-To")),
		References: SplitReferences(env.GetHeader("References")),
		TextBody:   env.Text,
		Header:     header,
	}

	if email.TextBody == "" {
		email.TextBody = env.HTML
	}

	if addr, err := mail.ParseAddress(env.GetHeader("From")); err == nil {
		email.From = strings.ToLower(addr.Address)
	} else {
		email.From = strings.ToLower(strings.TrimSpace(env.GetHeader("From")))
	}

	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		email.Date = date
	} else {
		email.Date = time.Now().UTC()
	}

	for _, part := range env.Attachments {
		email.Attachments = append(email.Attachments, IncomingAttachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Content:     part.Content,
		})
	}

	return email, nil
}
