package services

import (
	"context"
	"log"
	"strings"
	"sync"
)

// Attachment is a file sent alongside a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outbound notification. Email senders use To, Subject, HTML
// and Attachments; WhatsApp senders use Phone and Text.
type Message struct {
	To          string
	Phone       string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Notifier delivers a message over one channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// TicketNotifier sends through Required and reports its error; BestEffort
// channels are attempted only after Required succeeds and their failures are
// logged.
type TicketNotifier struct {
	Required   Notifier
	BestEffort []Notifier
}

func (t *TicketNotifier) Send(ctx context.Context, msg Message) error {
	if err := t.Required.Send(ctx, msg); err != nil {
		return err
	}
	for _, n := range t.BestEffort {
		if err := n.Send(ctx, msg); err != nil {
			log.Printf("⚠️  Best-effort notification to %s failed: %v", firstNonEmpty(msg.Phone, msg.To), err)
		}
	}
	return nil
}

// LogSender prints messages instead of delivering them. It is used when no
// SMTP server is configured.
type LogSender struct {
	mu   sync.Mutex
	sent []Message
}

// NewLogSender creates a development notifier
func NewLogSender() *LogSender {
	return &LogSender{}
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()

	body := msg.Text
	if body == "" {
		body = stripTags(msg.HTML)
	}
	log.Printf("📧 [dev mail] to=%s subject=%q attachments=%d\n%s", msg.To, msg.Subject, len(msg.Attachments), body)
	return nil
}

// Sent returns a copy of every message passed to Send.
func (l *LogSender) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.sent))
	copy(out, l.sent)
	return out
}

func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
