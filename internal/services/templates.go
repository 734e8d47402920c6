package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/skip2/go-qrcode"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/utils"
)

// qrImageSize is the edge length in pixels of ticket QR images.
const qrImageSize = 320

// ticketLine is one seat on a ticket confirmation.
type ticketLine struct {
	Holder string
	Number string
}

func ticketLines(reg *models.Registration) []ticketLine {
	var lines []ticketLine
	if reg.TicketNumber != nil {
		lines = append(lines, ticketLine{Holder: reg.Name, Number: *reg.TicketNumber})
	}
	for _, m := range reg.GroupMembers {
		if m.TicketNumber != nil {
			lines = append(lines, ticketLine{Holder: m.Name, Number: *m.TicketNumber})
		}
	}
	return lines
}

// buildTicketMessage renders the confirmation with one QR PNG per ticket.
func buildTicketMessage(event string, reg *models.Registration) (Message, error) {
	lines := ticketLines(reg)
	if len(lines) == 0 {
		return Message{}, fmt.Errorf("registration %s has no ticket numbers", reg.ID)
	}

	var rows strings.Builder
	var text strings.Builder
	attachments := make([]Attachment, 0, len(lines))

	fmt.Fprintf(&text, "🎟️ %s tickets confirmed for %s\n\n", event, reg.Name)
	for _, l := range lines {
		payload, err := utils.EncodeTicketPayload(utils.TicketPayload{
			TicketNumber: l.Number,
			Event:        event,
			Name:         l.Holder,
		})
		if err != nil {
			return Message{}, err
		}
		png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
		if err != nil {
			return Message{}, fmt.Errorf("failed to render QR for %s: %w", l.Number, err)
		}
		attachments = append(attachments, Attachment{
			Filename:    fmt.Sprintf("%s-%s.png", slug.Make(l.Holder), strings.ToLower(l.Number)),
			ContentType: "image/png",
			Data:        png,
		})

		fmt.Fprintf(&rows, "<tr><td>%s</td><td><code>%s</code></td></tr>",
			html.EscapeString(l.Holder), html.EscapeString(l.Number))
		fmt.Fprintf(&text, "• %s: %s\n", l.Holder, l.Number)
	}
	text.WriteString("\nShow the QR code attached to your email at the gate. Each ticket admits one person once per event day.")

	body := fmt.Sprintf(`<h2>%s</h2>
<p>Hi %s, your payment is confirmed. Your tickets are below and attached as QR codes.</p>
<table>%s</table>
<p>Show the QR code at the gate. Each ticket admits one person once per event day.</p>`,
		html.EscapeString(event), html.EscapeString(reg.Name), rows.String())

	return Message{
		To:          reg.Email,
		Phone:       reg.Phone,
		Subject:     fmt.Sprintf("Your %s ticket(s)", event),
		HTML:        body,
		Text:        text.String(),
		Attachments: attachments,
	}, nil
}

func buildRejectionMessage(event string, reg *models.Registration) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>We could not verify your payment for %s.</p>
<p><strong>Reason:</strong> %s</p>
<p>Please submit a new transaction ID and screenshot from your registration page.</p>`,
		html.EscapeString(reg.Name), html.EscapeString(event), html.EscapeString(reg.RejectionReason))

	return Message{
		To:      reg.Email,
		Phone:   reg.Phone,
		Subject: fmt.Sprintf("%s: payment needs attention", event),
		HTML:    body,
		Text: fmt.Sprintf("⚠️ We could not verify your %s payment.\nReason: %s\nPlease resubmit your payment proof.",
			event, reg.RejectionReason),
	}
}

func buildOTPMessage(event, email, code string, ttl time.Duration) Message {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return Message{
		To:      email,
		Subject: fmt.Sprintf("%s friend referral code", event),
		HTML: fmt.Sprintf(`<p>Your verification code is <strong>%s</strong>.</p>
<p>It expires in %d minute(s). If you did not ask to refer a friend, ignore this email.</p>`,
			html.EscapeString(code), minutes),
		Text: fmt.Sprintf("Your verification code is %s. It expires in %d minute(s).", code, minutes),
	}
}
