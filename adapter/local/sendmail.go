package local

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/email"
)

// DefaultSendmailPath is where most MTAs install their sendmail interface.
const DefaultSendmailPath = "/usr/sbin/sendmail"

// Sendmail is a LocalDelivery that renders the mail with go-mail and pipes it
// to a sendmail-compatible binary, which reads recipients from the headers.
type Sendmail struct {
	Path string
	Args []string
}

// NewSendmail returns a Sendmail for the binary at path.
func NewSendmail(path string, args ...string) *Sendmail {
	if path == "" {
		path = DefaultSendmailPath
	}
	return &Sendmail{Path: path, Args: args}
}

// Deliver builds the message and runs sendmail until it exits or ctx ends.
func (s *Sendmail) Deliver(ctx context.Context, to, subject, body string, headers Headers) error {
	msg, err := s.build(to, subject, body, headers)
	if err != nil {
		return err
	}
	if err := msg.WriteToSendmailWithContext(ctx, s.Path, s.Args...); err != nil {
		return fmt.Errorf("sendmail delivery failed: %w", err)
	}
	return nil
}

func (s *Sendmail) build(to, subject, body string, headers Headers) (*mail.Msg, error) {
	msg := mail.NewMsg()
	rcpts := addressList(to)
	if len(rcpts) == 0 {
		return nil, errors.New("invalid to address: empty list")
	}
	if err := msg.To(rcpts...); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(subject)

	contentType := mail.TypeTextPlain
	for _, h := range headers {
		switch strings.ToLower(h.Name) {
		case "from":
			if err := msg.From(rfcAddress(h.Value)); err != nil {
				return nil, fmt.Errorf("invalid from address: %w", err)
			}
		case "cc":
			if err := msg.Cc(addressList(h.Value)...); err != nil {
				return nil, fmt.Errorf("invalid cc address: %w", err)
			}
		case "bcc":
			// Bcc travels as a plain header so that sendmail -t can both
			// route to and strip it.
			msg.SetGenHeader(mail.Header(mail.HeaderBcc), strings.Join(addressList(h.Value), ", "))
		case "content-type":
			if strings.HasPrefix(strings.ToLower(h.Value), "text/html") {
				contentType = mail.TypeTextHTML
			}
		case "mime-version":
			// written by go-mail
		default:
			msg.SetGenHeader(mail.Header(h.Name), h.Value)
		}
	}
	msg.SetBodyString(contentType, body)
	return msg, nil
}

// addressList splits a list of rendered mailboxes ("Name <addr>" or
// "<addr>") on the commas between entries. A comma inside a display name
// does not end an entry.
func addressList(list string) []string {
	var out []string
	var cur []string
	for _, part := range strings.Split(list, ",") {
		cur = append(cur, part)
		entry := strings.Join(cur, ",")
		if strings.Contains(entry, ">") || (strings.Contains(entry, "@") && !strings.Contains(entry, "<")) {
			out = append(out, rfcAddress(entry))
			cur = nil
		}
	}
	if entry := strings.TrimSpace(strings.Join(cur, ",")); entry != "" {
		out = append(out, rfcAddress(entry))
	}
	return out
}

// rfcAddress re-renders one mailbox with its display name quoted and
// encoded as RFC 5322 requires.
func rfcAddress(s string) string {
	s = strings.TrimSpace(s)
	box := email.ParseMailBox(s)
	if box.Name == "" {
		return s
	}
	return (&netmail.Address{Name: box.Name, Address: box.Address}).String()
}
