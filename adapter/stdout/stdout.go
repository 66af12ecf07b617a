// Package stdout implements an Adapter that prints messages to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
)

const separator = "========================================\n"

// Adapter prints messages in a human-readable format.
type Adapter struct {
	adapter.NoDriver

	mu     sync.Mutex
	writer io.Writer
	logger *slog.Logger
}

// New creates an Adapter that writes to os.Stdout.
func New(logger *slog.Logger) *Adapter {
	return NewWithWriter(os.Stdout, logger)
}

// NewWithWriter creates an Adapter that writes to w.
func NewWithWriter(w io.Writer, logger *slog.Logger) *Adapter {
	return &Adapter{writer: w, logger: adapter.Logger(logger)}
}

// Send reports whether msg was written.
func (a *Adapter) Send(ctx context.Context, msg *email.Message) bool {
	return adapter.Report(a.logger, a.Name(), a.Deliver(ctx, msg))
}

// Deliver writes msg to the output as one block.
func (a *Adapter) Deliver(_ context.Context, msg *email.Message) error {
	if !adapter.HasTo(msg) {
		return adapter.ErrNoRecipients
	}

	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", msg.Sender())
	fmt.Fprintf(&b, "To: %s\n", adapter.Join(msg.RecipientsFor(email.To)))

	if cc := msg.RecipientsFor(email.CC); len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", adapter.Join(cc))
	}
	if bcc := msg.RecipientsFor(email.BCC); len(bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", adapter.Join(bcc))
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject())
	fmt.Fprintf(&b, "Type: %s\n", msg.Type())
	b.WriteString("Body:\n")
	b.WriteString(msg.Body() + "\n")

	if atts := msg.Attachments(); len(atts) > 0 {
		items := make([]string, 0, len(atts))
		for _, att := range atts {
			item := fmt.Sprintf("%s (%s)", att.Name, formatSize(att.Size()))
			if att.Disposition == email.Inline {
				item += " inline"
			}
			items = append(items, item)
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(items, ", "))
	}

	b.WriteString(separator)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := io.WriteString(a.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
