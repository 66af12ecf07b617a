// Package email defines the transport-independent message model: mailboxes,
// attachments and the message that aggregates them, together with the
// normalization rules applied to loosely typed sender, recipient and
// attachment inputs.
package email

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"os"
)

// Type is the body format of a message.
type Type string

const (
	PlainText Type = "plain"
	HTML      Type = "html"
)

// RecipientRole groups recipients.
type RecipientRole string

const (
	To  RecipientRole = "to"
	CC  RecipientRole = "cc"
	BCC RecipientRole = "bcc"
)

// Roles lists every recipient role in header order.
var Roles = []RecipientRole{To, CC, BCC}

// Message is one outgoing mail. It is built once, handed to a single send
// and discarded. A Message is not safe for concurrent mutation.
type Message struct {
	subject     string
	body        string
	typ         Type
	sender      MailBox
	recipients  map[RecipientRole][]MailBox
	attachments []Attachment
}

// NewMessage returns a message with the given subject, body and type.
func NewMessage(subject, body string, typ Type) *Message {
	if typ == "" {
		typ = PlainText
	}
	return &Message{
		subject:    subject,
		body:       body,
		typ:        typ,
		recipients: make(map[RecipientRole][]MailBox),
	}
}

// SetSubject sets the subject line.
func (m *Message) SetSubject(subject string) *Message {
	m.subject = subject
	return m
}

// SetBody sets the body.
func (m *Message) SetBody(body string) *Message {
	m.body = body
	return m
}

// SetType sets the body format.
func (m *Message) SetType(typ Type) *Message {
	m.typ = typ
	return m
}

// SetSender replaces the sender.
//
// A MailBox is stored as given. An Address is parsed with ParseAddress when
// name is empty; otherwise the address is used verbatim with name.
func (m *Message) SetSender(in SenderInput, name string) error {
	switch x := in.(type) {
	case MailBox:
		m.sender = x
	case Address:
		if name == "" {
			m.sender = ParseMailBox(string(x))
		} else {
			m.sender = MailBox{Address: string(x), Name: name}
		}
	default:
		return invalid(reasonSender)
	}
	return nil
}

// AddRecipient appends recipients under role. The role entry is created
// before the input is inspected.
func (m *Message) AddRecipient(in RecipientInput, role RecipientRole) error {
	if m.recipients == nil {
		m.recipients = make(map[RecipientRole][]MailBox)
	}
	if _, ok := m.recipients[role]; !ok {
		m.recipients[role] = []MailBox{}
	}

	switch x := in.(type) {
	case MailBox:
		m.recipients[role] = append(m.recipients[role], x)
	case AddressMap:
		m.recipients[role] = append(m.recipients[role], x.mailBoxes()...)
	case Address:
		m.recipients[role] = append(m.recipients[role], ParseMailBox(string(x)))
	default:
		return invalid(reasonRecipient)
	}
	return nil
}

// AddTo adds To recipients.
func (m *Message) AddTo(in RecipientInput) error { return m.AddRecipient(in, To) }

// AddCC adds CC recipients.
func (m *Message) AddCC(in RecipientInput) error { return m.AddRecipient(in, CC) }

// AddBCC adds BCC recipients.
func (m *Message) AddBCC(in RecipientInput) error { return m.AddRecipient(in, BCC) }

// AddAttachment appends an attachment built from in.
//
// An Attachment is appended unchanged and name and d are ignored. Image,
// Content, Text and Stream inputs are wrapped with name and d. An image that
// encodes to nothing, or a stream that yields no bytes, is dropped without an
// error.
func (m *Message) AddAttachment(in AttachmentInput, name string, d Disposition) error {
	switch x := in.(type) {
	case Attachment:
		m.attachments = append(m.attachments, x)
	case Image:
		if x.Image == nil {
			return invalid(reasonAttachment)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, x.Image); err != nil || buf.Len() == 0 {
			return nil
		}
		m.attachments = append(m.attachments, NewAttachment(name, buf.Bytes(), d))
	case Content:
		m.attachments = append(m.attachments, NewAttachment(name, []byte(x), d))
	case Text:
		m.attachments = append(m.attachments, NewAttachment(name, []byte(x), d))
	case Stream:
		contents, err := drain(x.Reader)
		if err != nil {
			return err
		}
		if len(contents) > 0 {
			m.attachments = append(m.attachments, NewAttachment(name, contents, d))
		}
	default:
		return invalid(reasonAttachment)
	}
	return nil
}

// drain reads r to EOF. Handles that are not byte streams are rejected.
func drain(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, invalid(reasonResource)
	}
	if f, ok := r.(*os.File); ok {
		if f == nil {
			return nil, invalid(reasonResource)
		}
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat attachment handle: %w", err)
		}
		if info.IsDir() {
			return nil, invalid(reasonResource)
		}
	}
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment stream: %w", err)
	}
	return contents, nil
}

// Subject returns the subject line.
func (m *Message) Subject() string { return m.subject }

// Body returns the body.
func (m *Message) Body() string { return m.body }

// Type returns the body format.
func (m *Message) Type() Type { return m.typ }

// IsHTML reports whether the body is HTML.
func (m *Message) IsHTML() bool { return m.typ == HTML }

// Sender returns the sender. It is the zero MailBox until SetSender is called.
func (m *Message) Sender() MailBox { return m.sender }

// Recipients returns every populated role. Roles never passed to
// AddRecipient have no key.
func (m *Message) Recipients() map[RecipientRole][]MailBox {
	out := make(map[RecipientRole][]MailBox, len(m.recipients))
	for role, boxes := range m.recipients {
		out[role] = append([]MailBox{}, boxes...)
	}
	return out
}

// RecipientsFor returns the recipients of role, or an empty slice.
func (m *Message) RecipientsFor(role RecipientRole) []MailBox {
	return append([]MailBox{}, m.recipients[role]...)
}

// Attachments returns the attachments in insertion order.
func (m *Message) Attachments() []Attachment {
	return append([]Attachment{}, m.attachments...)
}

// HasAttachments reports whether any attachment was added.
func (m *Message) HasAttachments() bool {
	return len(m.attachments) > 0
}
