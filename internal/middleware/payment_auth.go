package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"

	"github.com/gofiber/fiber/v2"
)

// ValidatePaymentSignature validates Razorpay webhook signatures: the
// X-Razorpay-Signature header must equal hex(HMAC-SHA256(body, secret)).
func ValidatePaymentSignature(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			log.Println("ERROR: RAZORPAY_WEBHOOK_SECRET not set, rejecting webhook")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Webhooks are not configured",
				"code":  "GatewayUnavailable",
			})
		}

		signature := c.Get("X-Razorpay-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Razorpay signature",
				"code":  "SignatureInvalid",
			})
		}

		if !hmac.Equal([]byte(SignWebhook(secret, c.Body())), []byte(signature)) {
			log.Printf("🚨 AUDIT SignatureInvalid webhook from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
				"code":  "SignatureInvalid",
			})
		}

		return c.Next()
	}
}

// SignWebhook computes the signature Razorpay sends for body.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
