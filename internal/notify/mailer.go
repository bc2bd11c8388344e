package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Message is one queued notification.
type Message struct {
	QueuedAt   time.Time `json:"queued_at"`
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Recipients []string  `json:"recipients"`
}

// Mailer delivers a message to all of its recipients.
type Mailer interface {
	Deliver(ctx context.Context, msg Message) error
}

// ConsoleMailer writes messages to w in a plain RFC 5322-like layout.
// It is the development backend.
type ConsoleMailer struct {
	mu   sync.Mutex
	w    io.Writer
	from string
}

// NewConsoleMailer creates a mailer that prints to w.
func NewConsoleMailer(w io.Writer, from string) *ConsoleMailer {
	return &ConsoleMailer{w: w, from: from}
}

// Deliver prints the message.
func (m *ConsoleMailer) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", m.from)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\n", msg.QueuedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s>\n\n", msg.ID)
	b.WriteString(msg.Body)
	b.WriteString("\n" + strings.Repeat("-", 72) + "\n")

	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := io.WriteString(m.w, b.String())
	return err
}
