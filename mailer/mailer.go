// Package mailer is the entry point for sending composed messages.
package mailer

import (
	"context"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
)

// Mailer sends messages through the adapter it was created with.
type Mailer struct {
	adapter adapter.Adapter
}

// New returns a Mailer bound to a.
func New(a adapter.Adapter) *Mailer {
	return &Mailer{adapter: a}
}

// Adapter returns the adapter given to New.
func (m *Mailer) Adapter() adapter.Adapter {
	return m.adapter
}

// Send forwards msg to the adapter and returns its result unchanged.
func (m *Mailer) Send(ctx context.Context, msg *email.Message) bool {
	return m.adapter.Send(ctx, msg)
}
