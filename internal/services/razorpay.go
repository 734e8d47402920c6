package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	razorpay "github.com/razorpay/razorpay-go"
)

// Gateway creates payment orders and reports captured payments.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (string, error)
	FetchCapturedPayment(ctx context.Context, orderID string) (paymentID string, captured bool, err error)
}

// SignatureVerifier checks the signature the gateway returns to the client
// after checkout.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// HMACSignatureVerifier verifies hex(HMAC-SHA256(orderID|paymentID)) with the
// key secret.
type HMACSignatureVerifier struct {
	secret []byte
}

// NewHMACSignatureVerifier creates a verifier over the gateway key secret
func NewHMACSignatureVerifier(secret string) *HMACSignatureVerifier {
	return &HMACSignatureVerifier{secret: []byte(secret)}
}

func (v *HMACSignatureVerifier) Verify(orderID, paymentID, signature string) bool {
	if len(v.secret) == 0 || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := SignPayment(string(v.secret), orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignPayment computes the checkout signature for an order and payment.
func SignPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// RazorpayGateway implements Gateway with the Razorpay API.
type RazorpayGateway struct {
	client *razorpay.Client
}

// NewRazorpayGateway creates a Razorpay client
func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data := map[string]interface{}{
		"amount":          amount,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}
	if len(notes) > 0 {
		n := make(map[string]interface{}, len(notes))
		for k, v := range notes {
			n[k] = v
		}
		data["notes"] = n
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		log.Printf("❌ Razorpay order creation failed for %s: %v", receipt, err)
		return "", fmt.Errorf("failed to create order: %w", err)
	}
	orderID, ok := body["id"].(string)
	if !ok || orderID == "" {
		return "", fmt.Errorf("razorpay order response has no id")
	}

	log.Printf("✅ Razorpay order %s created for %s", orderID, receipt)
	return orderID, nil
}

func (g *RazorpayGateway) FetchCapturedPayment(ctx context.Context, orderID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	body, err := g.client.Order.Payments(orderID, nil, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch payments for %s: %w", orderID, err)
	}

	items, _ := body["items"].([]interface{})
	for _, item := range items {
		payment, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if status, _ := payment["status"].(string); status == "captured" {
			id, _ := payment["id"].(string)
			return id, id != "", nil
		}
	}
	return "", false, nil
}
