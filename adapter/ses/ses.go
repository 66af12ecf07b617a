// Package ses implements an Adapter that sends messages via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
	"github.com/shineum/mailkit/internal/compose"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating an Adapter.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender is used when a message has no sender address.
	Sender string
	Logger *slog.Logger
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Adapter sends messages through the SES v2 API.
type Adapter struct {
	sender    string
	client    SendEmailAPI
	logger    *slog.Logger
	baseDelay time.Duration
}

// New creates an Adapter with an SES client built from cfg and the default
// AWS credential chain.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg), cfg.Logger), nil
}

// NewWithClient creates an Adapter with a custom client.
func NewWithClient(sender string, client SendEmailAPI, logger *slog.Logger) *Adapter {
	return &Adapter{
		sender:    sender,
		client:    client,
		logger:    adapter.Logger(logger),
		baseDelay: baseRetryDelay,
	}
}

// Send reports whether SES accepted msg.
func (a *Adapter) Send(ctx context.Context, msg *email.Message) bool {
	return adapter.Report(a.logger, a.Name(), a.Deliver(ctx, msg))
}

// Deliver sends msg, retrying failed API calls with exponential backoff.
// Messages with attachments are sent as raw MIME, the rest in the SES
// simple format.
func (a *Adapter) Deliver(ctx context.Context, msg *email.Message) error {
	if !adapter.HasTo(msg) {
		return adapter.ErrNoRecipients
	}

	sender := a.senderBox(msg)
	var input *sesv2.SendEmailInput
	if msg.HasAttachments() {
		raw, err := buildRawMessage(sender, msg)
		if err != nil {
			return fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(formatAddress(sender)),
			Destination:      destination(msg),
			Content: &types.EmailContent{
				Raw: &types.RawMessage{
					Data: raw,
				},
			},
		}
	} else {
		input = buildSimpleInput(formatAddress(sender), msg)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, a.backoffDelay(attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := a.client.SendEmail(ctx, input)
		if err == nil {
			return nil
		}

		lastErr = err
		a.logger.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Driver returns the SES client.
func (a *Adapter) Driver() any {
	return a.client
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "ses"
}

// senderBox returns the message sender, or the configured sender when the
// message has none.
func (a *Adapter) senderBox(msg *email.Message) email.MailBox {
	if sender := msg.Sender(); sender.Address != "" {
		return sender
	}
	return email.ParseMailBox(a.sender)
}

// formatAddress renders box for a header, quoting and encoding the name.
func formatAddress(box email.MailBox) string {
	if box.Name == "" {
		return box.Address
	}
	return (&netmail.Address{Name: box.Name, Address: box.Address}).String()
}

func formatAddresses(boxes []email.MailBox) []string {
	out := make([]string, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, formatAddress(b))
	}
	return out
}

// buildSimpleInput creates a SES SendEmailInput for messages without attachments.
func buildSimpleInput(from string, msg *email.Message) *sesv2.SendEmailInput {
	content := &types.Content{
		Data:    aws.String(msg.Body()),
		Charset: aws.String("UTF-8"),
	}
	body := &types.Body{}
	if msg.IsHTML() {
		body.Html = content
	} else {
		body.Text = content
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject()),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}

// destination lists every recipient of msg. Raw messages carry no Bcc
// header, so SES routes them from here.
func destination(msg *email.Message) *types.Destination {
	return &types.Destination{
		ToAddresses:  formatAddresses(msg.RecipientsFor(email.To)),
		CcAddresses:  formatAddresses(msg.RecipientsFor(email.CC)),
		BccAddresses: formatAddresses(msg.RecipientsFor(email.BCC)),
	}
}

// buildRawMessage renders msg as MIME for messages with attachments.
func buildRawMessage(sender email.MailBox, msg *email.Message) ([]byte, error) {
	var d compose.Draft
	if err := d.SetFrom(sender.Address, sender.Name); err != nil {
		return nil, err
	}
	recipients := []struct {
		role email.RecipientRole
		add  func(address, name string) error
	}{
		{email.To, d.AddTo},
		{email.CC, d.AddCc},
		{email.BCC, d.AddBcc},
	}
	for _, r := range recipients {
		for _, box := range msg.RecipientsFor(r.role) {
			if err := r.add(box.Address, box.Name); err != nil {
				return nil, err
			}
		}
	}

	d.HTML = msg.IsHTML()
	d.Subject = msg.Subject()
	d.Body = msg.Body()
	for _, att := range msg.Attachments() {
		d.Attach(att.Name, att.Contents, mail.EncodingB64, att.Disposition == email.Inline)
	}
	return d.Render()
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func (a *Adapter) backoffDelay(attempt int) time.Duration {
	delay := a.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
