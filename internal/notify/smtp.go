package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"

	"github.com/mhm-assoc/memberpass/internal/config"
)

// SMTPDispatcher sends card emails over plain SMTP with STARTTLS
// negotiation left to the server. The whole exchange runs in a
// goroutine so the context deadline can cut a stuck server short.
type SMTPDispatcher struct {
	cfg config.SMTPConfig
}

// NewSMTPDispatcher creates an SMTP-backed dispatcher.
func NewSMTPDispatcher(cfg config.SMTPConfig) *SMTPDispatcher {
	return &SMTPDispatcher{cfg: cfg}
}

// Send delivers one message, honoring ctx's deadline.
func (d *SMTPDispatcher) Send(ctx context.Context, msg Message) error {
	done := make(chan error, 1)
	go func() {
		done <- d.send(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("mail dispatch to %s timed out: %w", msg.To, ctx.Err())
	}
}

func (d *SMTPDispatcher) send(msg Message) error {
	body, contentType, err := buildMIME(msg)
	if err != nil {
		return fmt.Errorf("failed to build mail body: %w", err)
	}

	var raw bytes.Buffer
	fmt.Fprintf(&raw, "From: %s\r\n", d.cfg.From)
	fmt.Fprintf(&raw, "To: %s\r\n", msg.To)
	fmt.Fprintf(&raw, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&raw, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&raw, "Content-Type: %s\r\n\r\n", contentType)
	raw.Write(body)

	addr := net.JoinHostPort(d.cfg.Host, d.cfg.Port)
	var auth smtp.Auth
	if d.cfg.Username != "" {
		auth = smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, d.cfg.From, []string{msg.To}, raw.Bytes()); err != nil {
		return fmt.Errorf("smtp delivery to %s failed: %w", msg.To, err)
	}
	return nil
}

// buildMIME assembles a multipart body: plain-text part plus the card
// PNG as a base64 attachment.
func buildMIME(msg Message) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	part, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write([]byte(msg.Body)); err != nil {
		return nil, "", err
	}

	if len(msg.Attachment) > 0 {
		name := msg.AttachName
		if name == "" {
			name = "membership-card.png"
		}
		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", "image/png")
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		att, err := w.CreatePart(attHeader)
		if err != nil {
			return nil, "", err
		}
		enc := base64.NewEncoder(base64.StdEncoding, att)
		if _, err := enc.Write(msg.Attachment); err != nil {
			return nil, "", err
		}
		if err := enc.Close(); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/mixed; boundary=" + w.Boundary(), nil
}
