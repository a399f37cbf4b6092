// internal/mailbox/parser_test.go
package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMessage = "From: Acme Sales <sales@acme.example>\r\n" +
	"To: rfp-inbox@buyer.example\r\n" +
	"Subject: Re: RFP rfp-1234 proposal\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"Message-Id: <reply-1@acme.example>\r\n" +
	"In-Reply-To: <rfp-outbound-1@buyer.example>\r\n" +
	"References: <rfp-outbound-0@buyer.example> <rfp-outbound-1@buyer.example>\r\n" +
	"X-RFP-ID: rfp-1234\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please find our proposal attached.\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"proposal.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--b1--\r\n"

func TestParseMessage(t *testing.T) {
	email, err := ParseMessage([]byte(sampleMessage))
	require.NoError(t, err)

	assert.Equal(t, "sales@acme.example", email.From)
	assert.Equal(t, "Re: RFP rfp-1234 proposal", email.Subject)
	assert.Equal(t, "reply-1@acme.example", email.MessageID)
	assert.Equal(t, "rfp-outbound-1@buyer.example", email.InReplyTo)
	assert.Equal(t, []string{"rfp-outbound-0@buyer.example", "rfp-outbound-1@buyer.example"}, email.References)
	assert.Contains(t, email.TextBody, "Please find our proposal attached.")
	assert.Equal(t, "rfp-1234", email.Header.Get("X-RFP-ID"))

	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "proposal.pdf", email.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", email.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), email.Attachments[0].Content)
}

func TestParseMessageLowercasesFrom(t *testing.T) {
	msg := "From: Sales <Sales@Acme.Example>\r\n" +
		"Subject: hi\r\n" +
		"Message-Id: <m1@acme.example>\r\n" +
		"\r\n" +
		"body\r\n"

	email, err := ParseMessage([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.example", email.From)
}
