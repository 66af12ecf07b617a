// Package adapter defines the contract that email delivery backends implement.
package adapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shineum/mailkit/email"
)

// ErrNoRecipients is the reason a message without To recipients is refused.
var ErrNoRecipients = errors.New("message has no To recipients")

// Adapter delivers messages through one transport.
// Each adapter translates the normalized email.Message into the calling
// convention of its backend (local MTA, SMTP session, HTTP API, ...).
type Adapter interface {
	// Send hands msg to the transport. It returns true when the transport
	// accepted the message; that is not a delivery receipt. Failures are
	// never returned as errors from Send.
	Send(ctx context.Context, msg *email.Message) bool

	// Driver returns the transport-specific handle for advanced
	// configuration, or nil when the transport has none.
	Driver() any

	// Name returns the human-readable name of this adapter.
	Name() string
}

// NoDriver is embedded by adapters that expose no transport handle.
type NoDriver struct{}

// Driver returns nil.
func (NoDriver) Driver() any { return nil }

// Report logs the outcome of a delivery attempt and folds it into the
// boolean Send result.
func Report(logger *slog.Logger, name string, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrNoRecipients) {
		logger.Debug("message not sent", "adapter", name, "reason", err)
		return false
	}
	logger.Error("message not sent", "adapter", name, "error", err)
	return false
}

// HasTo reports whether msg has at least one To recipient.
func HasTo(msg *email.Message) bool {
	return len(msg.RecipientsFor(email.To)) > 0
}

// Logger returns l, or slog.Default() when l is nil.
func Logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Join renders boxes and joins them with ", " in order.
func Join(boxes []email.MailBox) string {
	items := make([]string, 0, len(boxes))
	for _, b := range boxes {
		items = append(items, b.String())
	}
	return strings.Join(items, ", ")
}
