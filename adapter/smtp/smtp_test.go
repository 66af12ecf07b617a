package smtp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shineum/mailkit/email"
)

type fakeAttachment struct {
	contents    []byte
	name        string
	encoding    Encoding
	disposition string
}

type fakeDriver struct {
	calls       []string
	from        string
	to, cc, bcc []string
	attachments []fakeAttachment
	html        bool
	subject     string
	body        string
	altBody     string

	failOn  string
	sendErr error
}

func (f *fakeDriver) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn == call {
		return errors.New(call + " failed")
	}
	return nil
}

func (f *fakeDriver) Reset() {
	f.calls = append(f.calls, "Reset")
	f.from, f.to, f.cc, f.bcc, f.attachments = "", nil, nil, nil, nil
	f.html, f.subject, f.body, f.altBody = false, "", "", ""
}

func (f *fakeDriver) SetFrom(address, name string) error {
	f.from = name + "|" + address
	return f.record("SetFrom")
}

func (f *fakeDriver) AddAddress(address, name string) error {
	f.to = append(f.to, name+"|"+address)
	return f.record("AddAddress")
}

func (f *fakeDriver) AddCC(address, name string) error {
	f.cc = append(f.cc, name+"|"+address)
	return f.record("AddCC")
}

func (f *fakeDriver) AddBCC(address, name string) error {
	f.bcc = append(f.bcc, name+"|"+address)
	return f.record("AddBCC")
}

func (f *fakeDriver) AddAttachment(contents []byte, name string, encoding Encoding, disposition string) error {
	f.attachments = append(f.attachments, fakeAttachment{contents, name, encoding, disposition})
	return f.record("AddAttachment")
}

func (f *fakeDriver) IsHTML(html bool) { f.html = html }

func (f *fakeDriver) SetSubject(subject string) { f.subject = subject }

func (f *fakeDriver) SetBody(body string) { f.body = body }

func (f *fakeDriver) SetAltBody(body string) { f.altBody = body }

func (f *fakeDriver) Send(context.Context) error {
	f.calls = append(f.calls, "Send")
	return f.sendErr
}

func testMessage(t *testing.T) *email.Message {
	t.Helper()
	msg, err := email.NewBuilder().
		Subject("Test").
		HTML("<h1>This is a test</h1>").
		From(email.Address("sender@example.com"), "Test").
		To(email.List("Test <to@example.com>", "to2@example.com")).
		CC(email.Address("cc@example.com")).
		BCC(email.Address("bcc@example.com")).
		Attach(email.Text("Lorem ipsum"), "lorem.txt").
		Embed(email.Content([]byte("GIF89a")), "logo.gif").
		Build()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	return msg
}

func TestAdapter_Send(t *testing.T) {
	t.Parallel()

	fake := &fakeDriver{}
	a := NewWithDriver(fake, nil)

	if !a.Send(context.Background(), testMessage(t)) {
		t.Fatal("Send should succeed")
	}

	if fake.calls[0] != "Reset" || fake.calls[len(fake.calls)-1] != "Send" {
		t.Errorf("calls should start with Reset and end with Send, got %v", fake.calls)
	}
	if fake.from != "Test|sender@example.com" {
		t.Errorf("from: got %q", fake.from)
	}
	if strings.Join(fake.to, ",") != "Test|to@example.com,|to2@example.com" {
		t.Errorf("to: got %v", fake.to)
	}
	if len(fake.cc) != 1 || len(fake.bcc) != 1 {
		t.Errorf("cc/bcc: got %v/%v", fake.cc, fake.bcc)
	}
	if len(fake.attachments) != 2 {
		t.Fatalf("attachments: got %d, want 2", len(fake.attachments))
	}
	if att := fake.attachments[0]; att.name != "lorem.txt" || att.disposition != DispositionAttachment || att.encoding != EncodingBase64 {
		t.Errorf("first attachment: got %+v", att)
	}
	if att := fake.attachments[1]; att.name != "logo.gif" || att.disposition != DispositionInline {
		t.Errorf("second attachment: got %+v", att)
	}
	if !fake.html || fake.subject != "Test" || fake.body != "<h1>This is a test</h1>" {
		t.Errorf("content: html=%v subject=%q body=%q", fake.html, fake.subject, fake.body)
	}
	if fake.altBody != "This is a test" {
		t.Errorf("alt body: got %q", fake.altBody)
	}
}

func TestAdapter_PlainTextHasNoAltBody(t *testing.T) {
	t.Parallel()

	fake := &fakeDriver{}
	a := NewWithDriver(fake, nil)

	msg := email.NewMessage("Test", "plain body", email.PlainText)
	_ = msg.AddTo(email.Address("to@example.com"))

	if !a.Send(context.Background(), msg) {
		t.Fatal("Send should succeed")
	}
	if fake.html || fake.altBody != "" {
		t.Errorf("plain text: html=%v altBody=%q", fake.html, fake.altBody)
	}
}

func TestAdapter_NoToRecipients(t *testing.T) {
	t.Parallel()

	fake := &fakeDriver{}
	a := NewWithDriver(fake, nil)

	msg := email.NewMessage("Test", "body", email.PlainText)
	_ = msg.AddBCC(email.Address("bcc@example.com"))

	if a.Send(context.Background(), msg) {
		t.Error("Send should fail without To recipients")
	}
	if len(fake.calls) != 0 {
		t.Errorf("driver should not be touched, got %v", fake.calls)
	}
}

func TestAdapter_DriverFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		driver *fakeDriver
	}{
		{name: "send error", driver: &fakeDriver{sendErr: errors.New("connection refused")}},
		{name: "recipient rejected", driver: &fakeDriver{failOn: "AddCC"}},
		{name: "attachment rejected", driver: &fakeDriver{failOn: "AddAttachment"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewWithDriver(tt.driver, nil)
			if a.Send(context.Background(), testMessage(t)) {
				t.Error("Send should return false when the driver fails")
			}
		})
	}
}

func TestAdapter_ResetsBetweenSends(t *testing.T) {
	t.Parallel()

	fake := &fakeDriver{}
	a := NewWithDriver(fake, nil)

	_ = a.Send(context.Background(), testMessage(t))

	second := email.NewMessage("Second", "body", email.PlainText)
	_ = second.AddTo(email.Address("other@example.com"))
	if !a.Send(context.Background(), second) {
		t.Fatal("second Send should succeed")
	}
	if len(fake.to) != 1 || fake.to[0] != "|other@example.com" {
		t.Errorf("stale recipients leaked: %v", fake.to)
	}
	if len(fake.attachments) != 0 || len(fake.bcc) != 0 {
		t.Errorf("stale state leaked: attachments=%d bcc=%v", len(fake.attachments), fake.bcc)
	}
}

func TestAdapter_NilDriver(t *testing.T) {
	t.Parallel()

	a := NewWithDriver(nil, nil)
	err := a.Deliver(context.Background(), testMessage(t))
	if !errors.Is(err, ErrNoDriver) {
		t.Errorf("got %v, want ErrNoDriver", err)
	}
}

func TestAdapter_DriverAndName(t *testing.T) {
	t.Parallel()

	fake := &fakeDriver{}
	a := NewWithDriver(fake, nil)
	if a.Driver() != Driver(fake) {
		t.Error("Driver should return the live driver")
	}
	if a.Name() != "smtp" {
		t.Errorf("Name: got %q", a.Name())
	}
}

func TestNew_RequiresHost(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Error("expected error without host")
	}

	a, err := New(Options{Host: "mail.example.com", User: "user", Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := a.Driver().(*MailDriver); !ok {
		t.Errorf("Driver: got %T, want *MailDriver", a.Driver())
	}
}

func TestMailDriver_Message(t *testing.T) {
	t.Parallel()

	d, err := NewMailDriver(Options{Host: "mail.example.com"})
	if err != nil {
		t.Fatalf("NewMailDriver: %v", err)
	}
	msg := testMessage(t)

	_ = d.SetFrom(msg.Sender().Address, msg.Sender().Name)
	for _, box := range msg.RecipientsFor(email.To) {
		_ = d.AddAddress(box.Address, box.Name)
	}
	_ = d.AddBCC("bcc@example.com", "")
	if err := d.AddAttachment([]byte("Lorem ipsum"), "lorem.txt", EncodingBase64, DispositionAttachment); err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	if err := d.AddAttachment([]byte("GIF89a"), "logo.gif", EncodingBase64, DispositionInline); err != nil {
		t.Fatalf("AddAttachment inline: %v", err)
	}
	if err := d.AddAttachment(nil, "x", "uuencode", DispositionAttachment); err == nil {
		t.Error("expected error for unsupported encoding")
	}
	if err := d.AddAttachment(nil, "x", EncodingBase64, "sideways"); err == nil {
		t.Error("expected error for unsupported disposition")
	}
	d.IsHTML(true)
	d.SetSubject("Test")
	d.SetBody("<h1>This is a test</h1>")
	d.SetAltBody("This is a test")

	m, err := d.Message()
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	rcpts, err := m.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients: %v", err)
	}
	if len(rcpts) != 3 {
		t.Errorf("recipients: got %v, want 3 (to, to, bcc)", rcpts)
	}
	if _, err := m.GetSender(false); err != nil {
		t.Fatalf("GetSender: %v", err)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"Subject: Test", "multipart/alternative", "lorem.txt", "logo.gif", "inline", "attachment",
		`From: "Test" <sender@example.com>`, `To: "Test" <to@example.com>, <to2@example.com>`} {
		if !strings.Contains(raw, want) {
			t.Errorf("rendered message missing %q", want)
		}
	}

	if strings.Contains(raw, "bcc@example.com") {
		t.Error("Bcc recipient leaked into the rendered message")
	}

	d.Reset()
	m, err = d.Message()
	if err != nil {
		t.Fatalf("Message after Reset: %v", err)
	}
	if rcpts, _ := m.GetRecipients(); len(rcpts) != 0 {
		t.Errorf("Reset should clear recipients, got %v", rcpts)
	}
}

func TestParseSecure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Secure
		wantErr bool
	}{
		{in: "", want: SecureSSL},
		{in: "SSL", want: SecureSSL},
		{in: "tls", want: SecureStartTLS},
		{in: "starttls", want: SecureStartTLS},
		{in: "none", want: SecureNone},
		{in: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseSecure(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSecure(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSecure(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "<h1>This is a test</h1>", want: "This is a test"},
		{in: "<p>Hello <b>World</b></p><!-- note -->", want: "Hello World"},
		{in: "Fish &amp; Chips", want: "Fish &amp; Chips"},
		{in: "no markup", want: "no markup"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := StripTags(tt.in); got != tt.want {
			t.Errorf("StripTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
