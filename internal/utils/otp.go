package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// ticketAlphabet drops characters that are easy to misread at a gate (0/O, 1/I).
const ticketAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// TicketSuffixLength is the number of random characters after the prefix.
const TicketSuffixLength = 6

// GenerateSecureOTP generates a cryptographically secure 6-digit OTP
func GenerateSecureOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateTicketNumber returns PREFIX-XXXXXX with a random suffix. Collisions
// are possible and must be handled by the caller.
func GenerateTicketNumber(prefix string) (string, error) {
	var b strings.Builder
	b.Grow(len(prefix) + 1 + TicketSuffixLength)
	b.WriteString(prefix)
	b.WriteByte('-')

	max := big.NewInt(int64(len(ticketAlphabet)))
	for i := 0; i < TicketSuffixLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate ticket suffix: %w", err)
		}
		b.WriteByte(ticketAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// MaskEmail hides most of the local part: "priya@example.com" -> "p***a@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + domain
}
