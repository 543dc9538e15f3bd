package notify

import (
	"context"
	"log"

	"github.com/mhm-assoc/memberpass/internal/config"
)

// Message is one rendered card notification: text body plus the card
// image attached so members keep their card even when image storage is
// unavailable server-side.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachment  []byte
	AttachName  string
	InlineImage string
}

// Dispatcher delivers card notifications. Implementations must honor
// the context deadline; a stuck dispatch counts as a failure and must
// not stall issuance indefinitely.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the dispatcher for the given config: SMTP when a host is
// configured, log-only otherwise.
func New(cfg config.SMTPConfig) Dispatcher {
	if cfg.Host == "" {
		log.Printf("📭 Mail: SMTP_HOST not set, card emails will only be logged")
		return &LogDispatcher{}
	}
	return NewSMTPDispatcher(cfg)
}

// LogDispatcher logs instead of sending. Used in development and in
// tests; delivery is reported as successful.
type LogDispatcher struct{}

// Send logs the would-be delivery.
func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	log.Printf("📧 [dry-run] card email to %s: %s (%d byte attachment)", msg.To, msg.Subject, len(msg.Attachment))
	return nil
}
