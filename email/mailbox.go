package email

import (
	"fmt"
	"regexp"
)

// MailBox is a single named email address.
type MailBox struct {
	Address string
	Name    string
}

// NewMailBox returns a MailBox for address with an optional display name.
func NewMailBox(address, name string) MailBox {
	return MailBox{Address: address, Name: name}
}

// WithName returns a copy of m with the display name replaced.
func (m MailBox) WithName(name string) MailBox {
	m.Name = name
	return m
}

// WithAddress returns a copy of m with the address replaced.
func (m MailBox) WithAddress(address string) MailBox {
	m.Address = address
	return m
}

// String renders "Name <address>", or "<address>" when there is no name.
func (m MailBox) String() string {
	if m.Name != "" {
		return fmt.Sprintf("%s <%s>", m.Name, m.Address)
	}
	return fmt.Sprintf("<%s>", m.Address)
}

// addressPattern matches an optional quoted or bare name followed by
// whitespace and an address that may be wrapped in angle brackets.
var addressPattern = regexp.MustCompile(`(?:"?([^"]*)"?\s)?<?(.+@[^>]+)>?`)

// ParseAddress splits s into a display name and an address.
//
// This is a best-effort heuristic, not an RFC 5322 parser. When a non-empty
// name is found the address comes from the bracketed part; otherwise the
// whole input is returned as the address with an empty name.
func ParseAddress(s string) (name, address string) {
	m := addressPattern.FindStringSubmatch(s)
	if m != nil && m[1] != "" {
		return m[1], m[2]
	}
	return "", s
}

// ParseMailBox is ParseAddress returning a MailBox.
func ParseMailBox(s string) MailBox {
	name, address := ParseAddress(s)
	return MailBox{Address: address, Name: name}
}
