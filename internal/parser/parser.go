// Package parser converts RFC 5322 messages into composed email messages.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/shineum/mailkit/email"
)

// Parse parses a raw RFC 5322 message.
//
// The HTML body wins over the plain text body when both are present.
// Attachment parts become Regular attachments and inline parts become
// Inline ones. Parts enmime could not fully decode are logged as warnings.
func Parse(raw []byte) (*email.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	for _, perr := range env.Errors {
		slog.Warn("MIME part problem", "error", perr.Error())
	}

	msg := email.NewMessage(env.GetHeader("Subject"), env.Text, email.PlainText)
	if env.HTML != "" {
		msg.SetBody(env.HTML).SetType(email.HTML)
	}

	if from := addressList(env, "From"); len(from) > 0 {
		if err := msg.SetSender(from[0], ""); err != nil {
			return nil, err
		}
	}
	roles := []struct {
		header string
		role   email.RecipientRole
	}{
		{"To", email.To},
		{"Cc", email.CC},
		{"Bcc", email.BCC},
	}
	for _, r := range roles {
		for _, box := range addressList(env, r.header) {
			if err := msg.AddRecipient(box, r.role); err != nil {
				return nil, err
			}
		}
	}

	addParts := func(parts []*enmime.Part, d email.Disposition) error {
		for _, p := range parts {
			att := email.NewAttachment(fileName(p), p.Content, d)
			if err := msg.AddAttachment(att, "", d); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addParts(env.Attachments, email.Regular); err != nil {
		return nil, err
	}
	if err := addParts(env.Inlines, email.Inline); err != nil {
		return nil, err
	}
	for _, p := range env.OtherParts {
		if p.FileName == "" {
			slog.Warn("unrecognized MIME part, skipping", "content_type", p.ContentType)
			continue
		}
		if err := addParts([]*enmime.Part{p}, email.Inline); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// addressList returns the mailboxes in header. Lists that fail RFC 5322
// parsing fall back to a comma split.
func addressList(env *enmime.Envelope, header string) []email.MailBox {
	addrs, err := env.AddressList(header)
	if errors.Is(err, mail.ErrHeaderNotPresent) {
		return nil
	}
	if err != nil {
		raw := env.GetHeader(header)
		slog.Warn("failed to parse address list, splitting on commas",
			"header", header,
			"error", err,
		)
		var boxes []email.MailBox
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				boxes = append(boxes, email.ParseMailBox(trimmed))
			}
		}
		return boxes
	}

	boxes := make([]email.MailBox, 0, len(addrs))
	for _, a := range addrs {
		boxes = append(boxes, email.NewMailBox(a.Address, a.Name))
	}
	return boxes
}

// fileName returns the part's file name, or a name derived from its media
// type when the part has none.
func fileName(p *enmime.Part) string {
	if p.FileName != "" {
		return p.FileName
	}
	if mediaType, _, err := mime.ParseMediaType(p.ContentType); err == nil {
		if _, sub, ok := strings.Cut(mediaType, "/"); ok {
			return "attachment." + sub
		}
	}
	return "attachment"
}
