// Package compose renders outgoing mail as go-mail messages for the adapters
// that put MIME on the wire themselves.
package compose

import (
	"bytes"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/wneessen/go-mail"
)

// Draft accumulates the parts of one message. The zero value is an empty
// plain-text draft.
type Draft struct {
	HTML    bool
	Subject string
	Body    string
	// AltBody is sent as the text/plain alternative of an HTML body.
	AltBody string

	from        *netmail.Address
	to, cc, bcc []*netmail.Address
	files       []file
}

type file struct {
	name     string
	contents []byte
	encoding mail.Encoding
	inline   bool
}

// Reset discards all state.
func (d *Draft) Reset() {
	*d = Draft{}
}

// SetFrom sets the sender.
func (d *Draft) SetFrom(address, name string) error {
	a, err := parse(address, name)
	if err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	d.from = a
	return nil
}

// AddTo adds a To recipient.
func (d *Draft) AddTo(address, name string) error {
	return d.add(&d.to, "to", address, name)
}

// AddCc adds a Cc recipient.
func (d *Draft) AddCc(address, name string) error {
	return d.add(&d.cc, "cc", address, name)
}

// AddBcc adds a Bcc recipient.
func (d *Draft) AddBcc(address, name string) error {
	return d.add(&d.bcc, "bcc", address, name)
}

func (d *Draft) add(list *[]*netmail.Address, role, address, name string) error {
	a, err := parse(address, name)
	if err != nil {
		return fmt.Errorf("invalid %s address: %w", role, err)
	}
	*list = append(*list, a)
	return nil
}

// Attach adds a file under name. Inline files are embedded for reference
// from an HTML body.
func (d *Draft) Attach(name string, contents []byte, encoding mail.Encoding, inline bool) {
	d.files = append(d.files, file{name: name, contents: contents, encoding: encoding, inline: inline})
}

// Recipients returns the envelope recipient addresses in To, Cc, Bcc order.
func (d *Draft) Recipients() []string {
	var rcpts []string
	for _, list := range [][]*netmail.Address{d.to, d.cc, d.bcc} {
		for _, a := range list {
			rcpts = append(rcpts, a.Address)
		}
	}
	return rcpts
}

// Msg renders the draft.
//
// The go-mail client clears the display names on the address headers it
// reads for the SMTP envelope, so the envelope is kept apart from what the
// reader sees: EnvelopeFrom carries the sender, the Bcc list carries every
// recipient, and To and Cc are written as preformatted headers.
func (d *Draft) Msg() (*mail.Msg, error) {
	m := mail.NewMsg()

	if d.from != nil {
		if err := m.EnvelopeFrom(d.from.Address); err != nil {
			return nil, fmt.Errorf("invalid envelope sender: %w", err)
		}
		if err := m.From(d.from.String()); err != nil {
			return nil, fmt.Errorf("invalid from address: %w", err)
		}
	}
	if len(d.to) > 0 {
		m.SetGenHeaderPreformatted(mail.Header(mail.HeaderTo), join(d.to))
	}
	if len(d.cc) > 0 {
		m.SetGenHeaderPreformatted(mail.Header(mail.HeaderCc), join(d.cc))
	}
	if rcpts := d.Recipients(); len(rcpts) > 0 {
		if err := m.Bcc(rcpts...); err != nil {
			return nil, fmt.Errorf("invalid recipient: %w", err)
		}
	}

	m.Subject(d.Subject)
	switch {
	case d.HTML && d.AltBody != "":
		m.SetBodyString(mail.TypeTextPlain, d.AltBody)
		m.AddAlternativeString(mail.TypeTextHTML, d.Body)
	case d.HTML:
		m.SetBodyString(mail.TypeTextHTML, d.Body)
	default:
		m.SetBodyString(mail.TypeTextPlain, d.Body)
	}

	for _, f := range d.files {
		opts := []mail.FileOption{
			mail.WithFileContentType(mail.ContentType(mimetype.Detect(f.contents).String())),
			mail.WithFileEncoding(f.encoding),
		}
		attach := m.AttachReader
		if f.inline {
			attach = m.EmbedReader
		}
		if err := attach(f.name, bytes.NewReader(f.contents), opts...); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", f.name, err)
		}
	}
	return m, nil
}

// Render writes the draft as an RFC 5322 message.
func (d *Draft) Render() ([]byte, error) {
	m, err := d.Msg()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

func parse(address, name string) (*netmail.Address, error) {
	a, err := netmail.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	a.Name = name
	return a, nil
}

// join renders addresses for a header, quoting and encoding names as needed.
func join(list []*netmail.Address) string {
	items := make([]string, 0, len(list))
	for _, a := range list {
		items = append(items, a.String())
	}
	return strings.Join(items, ", ")
}
