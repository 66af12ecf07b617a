package local

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
)

type fakeDelivery struct {
	calls   int
	to      string
	subject string
	body    string
	headers Headers
	err     error
}

func (f *fakeDelivery) Deliver(_ context.Context, to, subject, body string, headers Headers) error {
	f.calls++
	f.to, f.subject, f.body, f.headers = to, subject, body, headers
	return f.err
}

func newMessage(t *testing.T, typ email.Type) *email.Message {
	t.Helper()
	msg, err := email.NewBuilder().
		Subject("Test").
		From(email.Address("sender@example.com"), "Test").
		To(email.Address("to@example.com")).
		CC(email.List("cc1@example.com", "Copy <cc2@example.com>")).
		BCC(email.Address("bcc@example.com")).
		Build()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if typ == email.HTML {
		msg.SetBody("<h1>This is a test</h1>").SetType(email.HTML)
	} else {
		msg.SetBody("This is a test")
	}
	return msg
}

func TestAdapter_SendHTML(t *testing.T) {
	t.Parallel()

	fake := &fakeDelivery{}
	a := New(WithDelivery(fake))

	if !a.Send(context.Background(), newMessage(t, email.HTML)) {
		t.Fatal("Send should succeed")
	}
	if fake.to != "<to@example.com>" {
		t.Errorf("to: got %q", fake.to)
	}
	if fake.subject != "Test" || fake.body != "<h1>This is a test</h1>" {
		t.Errorf("subject/body: got %q/%q", fake.subject, fake.body)
	}

	want := map[string]string{
		"From":         "Test <sender@example.com>",
		"Cc":           "<cc1@example.com>, Copy <cc2@example.com>",
		"Bcc":          "<bcc@example.com>",
		"MIME-Version": "1.0",
		"Content-type": "text/html; charset=utf8",
	}
	for name, value := range want {
		if got := fake.headers.Get(name); got != value {
			t.Errorf("header %s: got %q, want %q", name, got, value)
		}
	}
	if fake.headers[0].Name != "From" {
		t.Errorf("From should be the first header, got %s", fake.headers[0].Name)
	}
}

func TestAdapter_SendPlainOmitsMIMEHeaders(t *testing.T) {
	t.Parallel()

	fake := &fakeDelivery{}
	a := New(WithDelivery(fake))

	msg := email.NewMessage("Test", "hi", email.PlainText)
	_ = msg.SetSender(email.Address("sender@example.com"), "")
	_ = msg.AddTo(email.Address("to@example.com"))

	if !a.Send(context.Background(), msg) {
		t.Fatal("Send should succeed")
	}
	for _, name := range []string{"MIME-Version", "Content-type", "Cc", "Bcc"} {
		if got := fake.headers.Get(name); got != "" {
			t.Errorf("header %s should be absent, got %q", name, got)
		}
	}
	if got := fake.headers.Get("from"); got != "<sender@example.com>" {
		t.Errorf("From: got %q", got)
	}
}

func TestAdapter_NoToRecipients(t *testing.T) {
	t.Parallel()

	fake := &fakeDelivery{}
	a := New(WithDelivery(fake))

	msg := email.NewMessage("Test", "hi", email.PlainText)
	_ = msg.AddCC(email.Address("cc@example.com"))

	if a.Send(context.Background(), msg) {
		t.Error("Send should fail without To recipients")
	}
	if fake.calls != 0 {
		t.Errorf("delivery called %d times, want 0", fake.calls)
	}
}

func TestAdapter_DeliveryFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeDelivery{err: errors.New("mta refused")}
	a := New(WithDelivery(fake))

	if a.Send(context.Background(), newMessage(t, email.PlainText)) {
		t.Error("Send should report the delivery failure")
	}
	if err := a.Deliver(context.Background(), newMessage(t, email.PlainText)); err == nil || err.Error() != "mta refused" {
		t.Errorf("Deliver: got %v", err)
	}
}

func TestAdapter_DriverAndName(t *testing.T) {
	t.Parallel()

	a := New()
	if a.Driver() != nil {
		t.Error("Driver should be nil")
	}
	if a.Name() != "mail" {
		t.Errorf("Name: got %q", a.Name())
	}
	if s, ok := a.delivery.(*Sendmail); !ok || s.Path != DefaultSendmailPath {
		t.Errorf("default delivery: got %#v", a.delivery)
	}
}

func TestSendmail_Build(t *testing.T) {
	t.Parallel()

	s := NewSendmail("")
	headers := Headers{
		{Name: "From", Value: "Test <sender@example.com>"},
		{Name: "Cc", Value: "cc@example.com"},
		{Name: "Bcc", Value: "bcc@example.com"},
	}
	msg, err := s.build("to@example.com", "Test", "hi", headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients: %v", err)
	}
	if strings.Join(rcpts, ",") != "<to@example.com>,<cc@example.com>" {
		t.Errorf("recipients: got %v", rcpts)
	}

	if _, err := s.build("not an address", "Test", "hi", nil); err == nil {
		t.Error("expected error for invalid To")
	}
}

func TestSendmail_BuildNamesWithCommas(t *testing.T) {
	t.Parallel()

	msg := email.NewMessage("Test", "hi", email.PlainText)
	_ = msg.SetSender(email.Address("sender@example.com"), "Sender, Inc")
	_ = msg.AddTo(email.Named("Doe, John", "john@example.com"))
	_ = msg.AddTo(email.Address("jane@example.com"))
	_ = msg.AddCC(email.Named("Roe, Rick", "rick@example.com"))

	headers := buildHeaders(msg)
	m, err := NewSendmail("").build(adapter.Join(msg.RecipientsFor(email.To)), msg.Subject(), msg.Body(), headers)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	rcpts, err := m.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients: %v", err)
	}
	want := []string{"john@example.com", "jane@example.com", "rick@example.com"}
	if len(rcpts) != len(want) {
		t.Fatalf("recipients: got %v, want %v", rcpts, want)
	}
	for i, r := range rcpts {
		if !strings.Contains(r, want[i]) {
			t.Errorf("recipient %d: got %q, want %q", i, r, want[i])
		}
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	for _, want := range []string{`"Sender, Inc" <sender@example.com>`, `"Doe, John" <john@example.com>`, `"Roe, Rick" <rick@example.com>`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("rendered message missing %q:\n%s", want, buf.String())
		}
	}
}

func TestAddressList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{in: "<a@example.com>", want: []string{"<a@example.com>"}},
		{in: "a@example.com, B <b@example.com>", want: []string{"a@example.com", `"B" <b@example.com>`}},
		{in: "Doe, John <j@example.com>, <k@example.com>", want: []string{`"Doe, John" <j@example.com>`, "<k@example.com>"}},
		{in: `"Doe, Jane" <jd@example.com>`, want: []string{`"Doe, Jane" <jd@example.com>`}},
		{in: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := addressList(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("addressList(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSendmail_Deliver(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	dir := t.TempDir()
	out := filepath.Join(dir, "message.eml")
	script := filepath.Join(dir, "sendmail")
	body := "#!/bin/sh\ncat > '" + out + "'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	s := NewSendmail(script)
	headers := Headers{
		{Name: "From", Value: "sender@example.com"},
		{Name: "Bcc", Value: "bcc@example.com"},
		{Name: "Content-type", Value: "text/html; charset=utf8"},
	}
	if err := s.Deliver(context.Background(), "to@example.com", "Hello", "<b>hi</b>", headers); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	raw := string(data)
	for _, want := range []string{"Subject: Hello", "Bcc: bcc@example.com", "text/html", "<to@example.com>"} {
		if !strings.Contains(raw, want) {
			t.Errorf("rendered message missing %q:\n%s", want, raw)
		}
	}
}
