package smtp

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"github.com/wneessen/go-mail/log"

	"github.com/shineum/mailkit/internal/compose"
)

// Encoding is the transfer encoding of an attachment.
type Encoding string

const (
	EncodingBase64          Encoding = "base64"
	EncodingQuotedPrintable Encoding = "quoted-printable"
)

// Attachment dispositions accepted by Driver.AddAttachment.
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
)

// Driver is a stateful SMTP session builder. Recipients, attachments and
// content accumulate until Reset.
type Driver interface {
	Reset()
	SetFrom(address, name string) error
	AddAddress(address, name string) error
	AddCC(address, name string) error
	AddBCC(address, name string) error
	AddAttachment(contents []byte, name string, encoding Encoding, disposition string) error
	IsHTML(html bool)
	SetSubject(subject string)
	SetBody(body string)
	SetAltBody(body string)
	Send(ctx context.Context) error
}

// MailDriver is the go-mail backed Driver.
type MailDriver struct {
	client *mail.Client
	draft  compose.Draft
}

// NewMailDriver creates a MailDriver with a client configured from o.
func NewMailDriver(o Options) (*MailDriver, error) {
	client, err := mail.NewClient(o.Host, clientOptions(o)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &MailDriver{client: client}, nil
}

func clientOptions(o Options) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(o.port()),
		mail.WithTimeout(o.timeout()),
	}

	switch o.Secure {
	case SecureStartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case SecureNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithSSL())
	}
	if o.TLSConfig != nil {
		opts = append(opts, mail.WithTLSConfig(o.TLSConfig))
	}

	if !o.SkipAuth && o.User != "" {
		opts = append(opts,
			mail.WithUsername(o.User),
			mail.WithPassword(o.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}
	if o.Debug {
		opts = append(opts, mail.WithDebugLog())
	}
	return opts
}

// Client returns the underlying go-mail client.
func (d *MailDriver) Client() *mail.Client {
	return d.client
}

// SetDebug toggles the SMTP protocol trace.
func (d *MailDriver) SetDebug(on bool) {
	d.client.SetDebugLog(on)
}

// SetLogger replaces the logger receiving the protocol trace.
func (d *MailDriver) SetLogger(l log.Logger) {
	d.client.SetLogger(l)
}

// Reset discards all message state.
func (d *MailDriver) Reset() {
	d.draft.Reset()
}

func (d *MailDriver) SetFrom(address, name string) error {
	return d.draft.SetFrom(address, name)
}

func (d *MailDriver) AddAddress(address, name string) error {
	return d.draft.AddTo(address, name)
}

func (d *MailDriver) AddCC(address, name string) error {
	return d.draft.AddCc(address, name)
}

func (d *MailDriver) AddBCC(address, name string) error {
	return d.draft.AddBcc(address, name)
}

// AddAttachment attaches contents under name. The content type is sniffed
// from the data when the message is assembled.
func (d *MailDriver) AddAttachment(contents []byte, name string, encoding Encoding, disposition string) error {
	enc := mail.EncodingB64
	switch encoding {
	case EncodingBase64, "":
	case EncodingQuotedPrintable:
		enc = mail.EncodingQP
	default:
		return fmt.Errorf("unsupported attachment encoding %q", encoding)
	}

	switch disposition {
	case DispositionInline:
		d.draft.Attach(name, contents, enc, true)
	case DispositionAttachment, "":
		d.draft.Attach(name, contents, enc, false)
	default:
		return fmt.Errorf("unsupported attachment disposition %q", disposition)
	}
	return nil
}

func (d *MailDriver) IsHTML(html bool) { d.draft.HTML = html }

func (d *MailDriver) SetSubject(subject string) { d.draft.Subject = subject }

func (d *MailDriver) SetBody(body string) { d.draft.Body = body }

func (d *MailDriver) SetAltBody(body string) { d.draft.AltBody = body }

// Message assembles the pending state into a go-mail message.
func (d *MailDriver) Message() (*mail.Msg, error) {
	return d.draft.Msg()
}

// Send dials the server and transmits the pending message.
func (d *MailDriver) Send(ctx context.Context) error {
	msg, err := d.Message()
	if err != nil {
		return err
	}
	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
