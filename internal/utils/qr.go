package utils

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
)

// ErrEmptyPayload is returned when a scanned QR code carries no ticket number.
var ErrEmptyPayload = errors.New("qr payload has no ticket number")

// TicketPayload is the JSON document encoded into ticket QR codes.
type TicketPayload struct {
	TicketNumber string `json:"ticketNumber"`
	Event        string `json:"event,omitempty"`
	Name         string `json:"name,omitempty"`
}

// EncodeTicketPayload renders the QR content for one ticket.
func EncodeTicketPayload(p TicketPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeTicketPayload accepts either the JSON document written by
// EncodeTicketPayload or a bare ticket number typed in by hand.
func DecodeTicketPayload(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyPayload
	}

	if strings.HasPrefix(raw, "{") {
		var p TicketPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return "", err
		}
		number := strings.TrimSpace(p.TicketNumber)
		if number == "" {
			return "", ErrEmptyPayload
		}
		return strings.ToUpper(number), nil
	}
	return strings.ToUpper(raw), nil
}
