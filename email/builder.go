package email

// Builder composes a Message fluently. The first failing step is remembered
// and returned by Build; later steps are skipped.
type Builder struct {
	msg *Message
	err error
}

// NewBuilder starts an empty plain-text message.
func NewBuilder() *Builder {
	return &Builder{msg: NewMessage("", "", PlainText)}
}

// Subject sets the subject line.
func (b *Builder) Subject(subject string) *Builder {
	b.msg.SetSubject(subject)
	return b
}

// Text sets a plain-text body.
func (b *Builder) Text(body string) *Builder {
	b.msg.SetBody(body).SetType(PlainText)
	return b
}

// HTML sets an HTML body.
func (b *Builder) HTML(body string) *Builder {
	b.msg.SetBody(body).SetType(HTML)
	return b
}

// From sets the sender. See Message.SetSender for how name is applied.
func (b *Builder) From(in SenderInput, name string) *Builder {
	return b.do(func() error { return b.msg.SetSender(in, name) })
}

// To adds To recipients.
func (b *Builder) To(in RecipientInput) *Builder {
	return b.do(func() error { return b.msg.AddRecipient(in, To) })
}

// CC adds Cc recipients.
func (b *Builder) CC(in RecipientInput) *Builder {
	return b.do(func() error { return b.msg.AddRecipient(in, CC) })
}

// BCC adds Bcc recipients.
func (b *Builder) BCC(in RecipientInput) *Builder {
	return b.do(func() error { return b.msg.AddRecipient(in, BCC) })
}

// Attach adds a regular attachment named name.
func (b *Builder) Attach(in AttachmentInput, name string) *Builder {
	return b.do(func() error { return b.msg.AddAttachment(in, name, Regular) })
}

// Embed adds an inline attachment named name.
func (b *Builder) Embed(in AttachmentInput, name string) *Builder {
	return b.do(func() error { return b.msg.AddAttachment(in, name, Inline) })
}

// Build returns the composed message or the first error encountered.
func (b *Builder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.msg, nil
}

func (b *Builder) do(step func() error) *Builder {
	if b.err == nil {
		b.err = step()
	}
	return b
}
