package testutil

import (
	"context"
	"sync"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/mailer"
)

// Mailbox is a mailer.Sender that records messages instead of sending them
type Mailbox struct {
	mu       sync.Mutex
	Disabled bool
	Err      error
	Sent     []mailer.Message
}

func (m *Mailbox) Configured() bool {
	return !m.Disabled
}

func (m *Mailbox) Send(ctx context.Context, msg mailer.Message) error {
	if m.Disabled {
		return apperr.Unavailable("SMTP not configured. Missing: SMTP_HOST")
	}
	if len(msg.To) == 0 {
		return apperr.Validation("No recipients")
	}
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// Messages returns a copy of the recorded messages
func (m *Mailbox) Messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.Sent...)
}

// Recipients flattens the To lists of all recorded messages
func (m *Mailbox) Recipients() []string {
	var out []string
	for _, msg := range m.Messages() {
		out = append(out, msg.To...)
	}
	return out
}
