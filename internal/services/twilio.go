package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppSender sends the text copy of a message over Twilio WhatsApp.
type WhatsAppSender struct {
	client *twilio.RestClient
	from   string // Format: "whatsapp:+14155238886"
}

// NewWhatsAppSender creates a new Twilio WhatsApp sender
func NewWhatsAppSender(accountSid, authToken, from string) (*WhatsAppSender, error) {
	if accountSid == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	return &WhatsAppSender{client: client, from: from}, nil
}

func (w *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		// Registrations without a phone number only get email.
		return nil
	}
	body := msg.Text
	if body == "" {
		body = stripTags(msg.HTML)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(w.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", msg.Phone))
	params.SetBody(body)

	resp, err := w.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message: %v", err)
		return err
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		return fmt.Errorf("twilio error %d", *resp.ErrorCode)
	}

	if resp.Sid != nil {
		log.Printf("✅ WhatsApp message sent! SID: %s", *resp.Sid)
	}
	return nil
}
