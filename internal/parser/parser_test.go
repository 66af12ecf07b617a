package parser

import (
	"strings"
	"testing"

	"github.com/shineum/mailkit/email"
)

func TestParsePlainTextEmail(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: Sender Name <sender@example.com>",
		"To: recipient@example.com",
		"Subject: Test Subject",
		"Message-Id: <test123@example.com>",
		"Content-Type: text/plain",
		"",
		"Hello, this is a plain text email.",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := msg.Sender(); got.Address != "sender@example.com" || got.Name != "Sender Name" {
		t.Errorf("Sender: got %+v", got)
	}
	to := msg.RecipientsFor(email.To)
	if len(to) != 1 || to[0].Address != "recipient@example.com" {
		t.Errorf("To: got %v, want [recipient@example.com]", to)
	}
	if msg.Subject() != "Test Subject" {
		t.Errorf("Subject: got %q, want %q", msg.Subject(), "Test Subject")
	}
	if msg.Type() != email.PlainText {
		t.Errorf("Type: got %q, want plain", msg.Type())
	}
	if msg.Body() != "Hello, this is a plain text email." {
		t.Errorf("Body: got %q, want %q", msg.Body(), "Hello, this is a plain text email.")
	}
	if msg.HasAttachments() {
		t.Errorf("Attachments: got %d, want 0", len(msg.Attachments()))
	}
}

func TestParseMultipartTextAndHTML(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: alice@example.com, Bob <bob@example.com>",
		"Cc: carol@example.com",
		"Subject: Multipart Test",
		"Content-Type: multipart/alternative; boundary=boundary123",
		"",
		"--boundary123",
		"Content-Type: text/plain",
		"",
		"Plain text body",
		"--boundary123",
		"Content-Type: text/html",
		"",
		"<html><body><p>HTML body</p></body></html>",
		"--boundary123--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	to := msg.RecipientsFor(email.To)
	if len(to) != 2 {
		t.Fatalf("To: got %d recipients, want 2", len(to))
	}
	if to[0].Address != "alice@example.com" {
		t.Errorf("To[0]: got %q, want %q", to[0].Address, "alice@example.com")
	}
	if to[1].Address != "bob@example.com" || to[1].Name != "Bob" {
		t.Errorf("To[1]: got %+v", to[1])
	}
	cc := msg.RecipientsFor(email.CC)
	if len(cc) != 1 || cc[0].Address != "carol@example.com" {
		t.Errorf("Cc: got %v, want [carol@example.com]", cc)
	}
	if !msg.IsHTML() {
		t.Errorf("Type: got %q, want html", msg.Type())
	}
	if msg.Body() != "<html><body><p>HTML body</p></body></html>" {
		t.Errorf("Body: got %q", msg.Body())
	}
}

func TestParseEmailWithAttachments(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: With Attachment",
		"Content-Type: multipart/mixed; boundary=mixedboundary",
		"",
		"--mixedboundary",
		"Content-Type: text/plain",
		"",
		"Email body text",
		"--mixedboundary",
		"Content-Type: application/pdf; name=\"report.pdf\"",
		"Content-Disposition: attachment; filename=\"report.pdf\"",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8gV29ybGQ=",
		"--mixedboundary",
		"Content-Type: image/png",
		"Content-Disposition: inline; filename=\"logo.png\"",
		"Content-Id: <logo.png>",
		"Content-Transfer-Encoding: base64",
		"",
		"iVBORw0KGgo=",
		"--mixedboundary--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Body() != "Email body text" {
		t.Errorf("Body: got %q, want %q", msg.Body(), "Email body text")
	}
	atts := msg.Attachments()
	if len(atts) != 2 {
		t.Fatalf("Attachments: got %d, want 2", len(atts))
	}

	if atts[0].Name != "report.pdf" || atts[0].Disposition != email.Regular {
		t.Errorf("first attachment: got %q (%v)", atts[0].Name, atts[0].Disposition)
	}
	if string(atts[0].Contents) != "Hello World" {
		t.Errorf("first attachment contents: got %q, want %q", atts[0].Contents, "Hello World")
	}
	if atts[1].Name != "logo.png" || atts[1].Disposition != email.Inline {
		t.Errorf("second attachment: got %q (%v)", atts[1].Name, atts[1].Disposition)
	}
}

func TestParseMissingContentType(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: No Content Type",
		"",
		"Body without content type header",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body() != "Body without content type header" {
		t.Errorf("Body: got %q, want %q", msg.Body(), "Body without content type header")
	}
	if msg.Type() != email.PlainText {
		t.Errorf("Type: got %q, want plain", msg.Type())
	}
}

func TestParseMultipleRecipients(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: alice@example.com, bob@example.com, carol@example.com",
		"Bcc: secret@example.com",
		"Subject: Multiple Recipients",
		"Content-Type: text/plain",
		"",
		"Hello everyone",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(msg.RecipientsFor(email.To)); got != 3 {
		t.Errorf("To: got %d recipients, want 3", got)
	}
	bcc := msg.RecipientsFor(email.BCC)
	if len(bcc) != 1 || bcc[0].Address != "secret@example.com" {
		t.Errorf("Bcc: got %v, want [secret@example.com]", bcc)
	}
}

func TestParseEmptyAddressFields(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"Subject: No Addresses",
		"Content-Type: text/plain",
		"",
		"Body",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Sender().Address != "" {
		t.Errorf("Sender: got %+v, want empty", msg.Sender())
	}
	for _, role := range email.Roles {
		if got := msg.RecipientsFor(role); len(got) != 0 {
			t.Errorf("%s: got %v, want empty", role, got)
		}
	}
}

func TestParseEncodedHeaders(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: =?UTF-8?Q?Jos=C3=A9?= <jose@example.com>",
		"To: recipient@example.com",
		"Subject: =?UTF-8?B?SGVsbG8gV29ybGQ=?=",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Body",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject() != "Hello World" {
		t.Errorf("Subject: got %q, want %q", msg.Subject(), "Hello World")
	}
	if msg.Sender().Name != "José" {
		t.Errorf("Sender name: got %q, want %q", msg.Sender().Name, "José")
	}
}

func TestParseAttachmentWithoutFilename(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Unnamed Attachment",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"Body",
		"--b1",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8=",
		"--b1--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	atts := msg.Attachments()
	if len(atts) != 1 {
		t.Fatalf("Attachments: got %d, want 1", len(atts))
	}
	if atts[0].Name != "attachment.pdf" {
		t.Errorf("Name: got %q, want %q", atts[0].Name, "attachment.pdf")
	}
}

func TestParseNestedMultipart(t *testing.T) {
	t.Parallel()

	raw := []byte(strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Nested",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Plain part",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>HTML part</p>",
		"--inner--",
		"--outer",
		"Content-Type: text/csv",
		"Content-Disposition: attachment; filename=\"data.csv\"",
		"",
		"a,b,c",
		"--outer--",
	}, "\r\n"))

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Body() != "<p>HTML part</p>" || !msg.IsHTML() {
		t.Errorf("Body: got %q (%s)", msg.Body(), msg.Type())
	}
	atts := msg.Attachments()
	if len(atts) != 1 || atts[0].Name != "data.csv" {
		t.Fatalf("Attachments: got %v", atts)
	}
	if string(atts[0].Contents) != "a,b,c" {
		t.Errorf("Contents: got %q", atts[0].Contents)
	}
}
