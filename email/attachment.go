package email

import "encoding/base64"

// Disposition tells a transport how an attachment is presented.
type Disposition int

const (
	// Regular attachments are offered as separate files.
	Regular Disposition = iota
	// Inline attachments are rendered within the body.
	Inline
)

// String returns the Content-Disposition token for d.
func (d Disposition) String() string {
	if d == Inline {
		return "inline"
	}
	return "attachment"
}

// Attachment is a named binary payload.
type Attachment struct {
	Name        string
	Contents    []byte
	Disposition Disposition
}

// NewAttachment returns an Attachment holding contents under name.
func NewAttachment(name string, contents []byte, d Disposition) Attachment {
	return Attachment{Name: name, Contents: contents, Disposition: d}
}

// String returns the standard base64 encoding of the contents.
func (a Attachment) String() string {
	return base64.StdEncoding.EncodeToString(a.Contents)
}

// Size returns the length of the contents in bytes.
func (a Attachment) Size() int {
	return len(a.Contents)
}
