package graph

import (
	"encoding/base64"

	"github.com/gabriel-vasile/mimetype"

	"github.com/shineum/mailkit/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject       string            `json:"subject"`
	Body          messageBody       `json:"body"`
	From          *recipient        `json:"from,omitempty"`
	ToRecipients  []recipient       `json:"toRecipients"`
	CcRecipients  []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients []recipient       `json:"bccRecipients,omitempty"`
	Attachments   []graphAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
	IsInline     bool   `json:"isInline,omitempty"`
	ContentID    string `json:"contentId,omitempty"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts a message into a Graph API sendMail request body.
func buildSendMailRequest(msg *email.Message, saveToSentItems bool) *sendMailRequest {
	body := messageBody{ContentType: "text", Content: msg.Body()}
	if msg.IsHTML() {
		body.ContentType = "html"
	}

	var from *recipient
	if sender := msg.Sender(); sender.Address != "" {
		r := toRecipient(sender)
		from = &r
	}

	atts := msg.Attachments()
	attachments := make([]graphAttachment, 0, len(atts))
	for _, att := range atts {
		ga := graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Name,
			ContentType:  mimetype.Detect(att.Contents).String(),
			ContentBytes: base64.StdEncoding.EncodeToString(att.Contents),
		}
		if att.Disposition == email.Inline {
			ga.IsInline = true
			ga.ContentID = att.Name
		}
		attachments = append(attachments, ga)
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:       msg.Subject(),
			Body:          body,
			From:          from,
			ToRecipients:  toRecipients(msg.RecipientsFor(email.To)),
			CcRecipients:  toRecipients(msg.RecipientsFor(email.CC)),
			BccRecipients: toRecipients(msg.RecipientsFor(email.BCC)),
			Attachments:   attachments,
		},
		SaveToSentItems: saveToSentItems,
	}
}

func toRecipient(box email.MailBox) recipient {
	return recipient{EmailAddress: emailAddress{Name: box.Name, Address: box.Address}}
}

func toRecipients(boxes []email.MailBox) []recipient {
	out := make([]recipient, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, toRecipient(b))
	}
	return out
}
