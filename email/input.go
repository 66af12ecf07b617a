package email

import (
	"image"
	"io"
	"strconv"
)

// SenderInput is the closed set of values SetSender accepts: Address and
// MailBox.
type SenderInput interface {
	senderInput()
}

// RecipientInput is the closed set of values AddRecipient accepts: Address,
// MailBox and AddressMap.
type RecipientInput interface {
	recipientInput()
}

// AttachmentInput is the closed set of values AddAttachment accepts:
// Attachment, Image, Content, Text and Stream.
type AttachmentInput interface {
	attachmentInput()
}

// Address is a raw address string, parsed with ParseAddress when used.
type Address string

func (Address) senderInput()    {}
func (Address) recipientInput() {}

func (MailBox) senderInput()    {}
func (MailBox) recipientInput() {}

// Entry is one key/value pair of an AddressMap.
type Entry struct {
	Key   string
	Value string
}

// AddressMap adds several recipients at once, in order.
//
// An entry whose key is empty or an integer carries no name and its value is
// parsed with ParseAddress. Any other key is the display name and the value
// is taken verbatim as the address.
type AddressMap []Entry

func (AddressMap) recipientInput() {}

// List returns an AddressMap with integer keys, one entry per address.
func List(addrs ...string) AddressMap {
	m := make(AddressMap, 0, len(addrs))
	for i, a := range addrs {
		m = append(m, Entry{Key: strconv.Itoa(i), Value: a})
	}
	return m
}

// Named returns an AddressMap with a single named entry.
func Named(name, address string) AddressMap {
	return AddressMap{{Key: name, Value: address}}
}

// Add returns m with another entry appended.
func (m AddressMap) Add(key, value string) AddressMap {
	return append(m, Entry{Key: key, Value: value})
}

func (m AddressMap) mailBoxes() []MailBox {
	out := make([]MailBox, 0, len(m))
	for _, e := range m {
		if isIndexKey(e.Key) {
			out = append(out, ParseMailBox(e.Value))
			continue
		}
		out = append(out, MailBox{Address: e.Value, Name: e.Key})
	}
	return out
}

func isIndexKey(key string) bool {
	if key == "" {
		return true
	}
	_, err := strconv.Atoi(key)
	return err == nil
}

func (Attachment) attachmentInput() {}

// Image is an in-memory raster image attached as PNG.
type Image struct {
	image.Image
}

// Content is a raw byte payload.
type Content []byte

// Text is a raw string payload.
type Text string

// Stream is a readable handle drained to EOF when attached.
type Stream struct {
	Reader io.Reader
}

func (Image) attachmentInput()   {}
func (Content) attachmentInput() {}
func (Text) attachmentInput()    {}
func (Stream) attachmentInput()  {}

// SenderFrom converts an untyped value into a SenderInput.
func SenderFrom(v any) (SenderInput, error) {
	// *MailBox satisfies SenderInput through its value methods, so it is
	// matched first.
	switch x := v.(type) {
	case *MailBox:
		if x != nil {
			return *x, nil
		}
	case SenderInput:
		return x, nil
	case string:
		return Address(x), nil
	}
	return nil, invalid(reasonSender)
}

// RecipientFrom converts an untyped value into a RecipientInput. A []string
// becomes an index-keyed AddressMap.
func RecipientFrom(v any) (RecipientInput, error) {
	switch x := v.(type) {
	case *MailBox:
		if x != nil {
			return *x, nil
		}
	case RecipientInput:
		return x, nil
	case string:
		return Address(x), nil
	case []string:
		return List(x...), nil
	}
	return nil, invalid(reasonRecipient)
}

// AttachmentFrom converts an untyped value into an AttachmentInput.
func AttachmentFrom(v any) (AttachmentInput, error) {
	switch x := v.(type) {
	case *Attachment:
		if x != nil {
			return *x, nil
		}
	case AttachmentInput:
		return x, nil
	case image.Image:
		return Image{x}, nil
	case []byte:
		return Content(x), nil
	case string:
		return Text(x), nil
	case io.Reader:
		return Stream{Reader: x}, nil
	}
	return nil, invalid(reasonAttachment)
}
