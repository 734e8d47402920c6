package services

import (
	"context"
	"fmt"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
)

// Mailer renders the registrant-facing messages and hands them to notifiers.
type Mailer struct {
	event   string
	tickets Notifier
	notices Notifier
}

// NewMailer creates a mailer. tickets carries confirmations (usually a
// TicketNotifier with a WhatsApp copy); notices carries OTP and rejection mail.
func NewMailer(event string, tickets, notices Notifier) *Mailer {
	if notices == nil {
		notices = tickets
	}
	return &Mailer{event: event, tickets: tickets, notices: notices}
}

// SendTickets delivers every ticket of reg. The registration must already
// hold its ticket numbers.
func (m *Mailer) SendTickets(ctx context.Context, reg *models.Registration) error {
	msg, err := buildTicketMessage(m.event, reg)
	if err != nil {
		return err
	}
	if err := m.tickets.Send(ctx, msg); err != nil {
		return fmt.Errorf("ticket dispatch failed: %w", err)
	}
	return nil
}

// SendRejection tells the registrant why their proof was rejected.
func (m *Mailer) SendRejection(ctx context.Context, reg *models.Registration) error {
	return m.notices.Send(ctx, buildRejectionMessage(m.event, reg))
}

// SendOTP mails a one-time code.
func (m *Mailer) SendOTP(ctx context.Context, challenge *models.OTPChallenge) error {
	return m.notices.Send(ctx, buildOTPMessage(m.event, challenge.Email, challenge.Code, challenge.ExpiresAt.Sub(challenge.CreatedAt)))
}
