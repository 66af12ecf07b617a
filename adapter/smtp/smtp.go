// Package smtp implements an Adapter that submits messages over an
// authenticated SMTP session.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
)

// ErrNoDriver is returned when an Adapter has no driver to send with.
var ErrNoDriver = errors.New("smtp adapter has no driver")

const (
	DefaultPort    = 465
	DefaultTimeout = 30 * time.Second
)

// Secure selects the transport encryption.
type Secure string

const (
	SecureSSL      Secure = "ssl"
	SecureStartTLS Secure = "tls"
	SecureNone     Secure = "none"
)

// ParseSecure maps a configuration value to a Secure mode. The empty string
// selects SecureSSL.
func ParseSecure(s string) (Secure, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ssl", "smtps":
		return SecureSSL, nil
	case "tls", "starttls":
		return SecureStartTLS, nil
	case "none", "off":
		return SecureNone, nil
	}
	return "", fmt.Errorf("unknown smtp secure mode %q", s)
}

// Options configures the SMTP session.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Secure   Secure
	SkipAuth bool
	Debug    bool
	Timeout  time.Duration

	TLSConfig *tls.Config
	Logger    *slog.Logger
}

func (o Options) port() int {
	if o.Port <= 0 {
		return DefaultPort
	}
	return o.Port
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Adapter sends through one persistent Driver. It is not safe for
// concurrent use.
type Adapter struct {
	driver Driver
	logger *slog.Logger
}

// New creates an Adapter backed by a go-mail MailDriver.
func New(o Options) (*Adapter, error) {
	d, err := NewMailDriver(o)
	if err != nil {
		return nil, err
	}
	return NewWithDriver(d, o.Logger), nil
}

// NewWithDriver creates an Adapter around an existing driver.
func NewWithDriver(d Driver, logger *slog.Logger) *Adapter {
	return &Adapter{driver: d, logger: adapter.Logger(logger)}
}

// Send reports whether the SMTP server accepted msg.
func (a *Adapter) Send(ctx context.Context, msg *email.Message) bool {
	return adapter.Report(a.logger, a.Name(), a.Deliver(ctx, msg))
}

// Deliver loads msg into the driver and sends it. A message without To
// recipients is refused without touching the driver.
func (a *Adapter) Deliver(ctx context.Context, msg *email.Message) error {
	if !adapter.HasTo(msg) {
		return adapter.ErrNoRecipients
	}
	if a.driver == nil {
		return ErrNoDriver
	}

	d := a.driver
	d.Reset()

	sender := msg.Sender()
	if err := d.SetFrom(sender.Address, sender.Name); err != nil {
		return err
	}
	recipients := []struct {
		role email.RecipientRole
		add  func(address, name string) error
	}{
		{email.To, d.AddAddress},
		{email.CC, d.AddCC},
		{email.BCC, d.AddBCC},
	}
	for _, r := range recipients {
		for _, box := range msg.RecipientsFor(r.role) {
			if err := r.add(box.Address, box.Name); err != nil {
				return err
			}
		}
	}

	for _, att := range msg.Attachments() {
		disposition := DispositionAttachment
		if att.Disposition == email.Inline {
			disposition = DispositionInline
		}
		if err := d.AddAttachment(att.Contents, att.Name, EncodingBase64, disposition); err != nil {
			return err
		}
	}

	d.IsHTML(msg.IsHTML())
	d.SetSubject(msg.Subject())
	d.SetBody(msg.Body())
	if msg.IsHTML() {
		d.SetAltBody(StripTags(msg.Body()))
	}

	return d.Send(ctx)
}

// Driver returns the live driver.
func (a *Adapter) Driver() any {
	return a.driver
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "smtp"
}
