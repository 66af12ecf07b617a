// Package local implements an Adapter that hands messages to the local mail
// transfer agent.
package local

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
)

// Header is one mail header line.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list.
type Headers []Header

// Get returns the first value for name, compared case-insensitively.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// LocalDelivery is the local mail-transfer capability. to is the rendered,
// comma-joined To list.
type LocalDelivery interface {
	Deliver(ctx context.Context, to, subject, body string, headers Headers) error
}

// Adapter delivers through a LocalDelivery. It does not carry attachments
// and exposes no driver.
type Adapter struct {
	adapter.NoDriver
	delivery LocalDelivery
	logger   *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDelivery replaces the default sendmail delivery.
func WithDelivery(d LocalDelivery) Option {
	return func(a *Adapter) {
		if d != nil {
			a.delivery = d
		}
	}
}

// WithLogger sets the logger used to report failed sends.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = adapter.Logger(l)
	}
}

// New creates an Adapter that pipes messages to the sendmail binary unless
// WithDelivery says otherwise.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		delivery: NewSendmail(DefaultSendmailPath),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send reports whether the local MTA accepted msg.
func (a *Adapter) Send(ctx context.Context, msg *email.Message) bool {
	return adapter.Report(a.logger, a.Name(), a.Deliver(ctx, msg))
}

// Deliver hands msg to the local delivery capability and returns its
// result. A message without To recipients is refused before delivery.
func (a *Adapter) Deliver(ctx context.Context, msg *email.Message) error {
	to := msg.RecipientsFor(email.To)
	if len(to) == 0 {
		return adapter.ErrNoRecipients
	}
	return a.delivery.Deliver(ctx, adapter.Join(to), msg.Subject(), msg.Body(), buildHeaders(msg))
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "mail"
}

func buildHeaders(msg *email.Message) Headers {
	headers := Headers{{Name: "From", Value: msg.Sender().String()}}
	if cc := msg.RecipientsFor(email.CC); len(cc) > 0 {
		headers = append(headers, Header{Name: "Cc", Value: adapter.Join(cc)})
	}
	if bcc := msg.RecipientsFor(email.BCC); len(bcc) > 0 {
		headers = append(headers, Header{Name: "Bcc", Value: adapter.Join(bcc)})
	}
	if msg.IsHTML() {
		headers = append(headers,
			Header{Name: "MIME-Version", Value: "1.0"},
			Header{Name: "Content-type", Value: "text/html; charset=utf8"},
		)
	}
	return headers
}
