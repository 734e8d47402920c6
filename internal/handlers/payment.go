package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/services"
)

// PaymentHandler handles gateway callbacks, polling and webhooks
type PaymentHandler struct {
	payments *services.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func finalizeResponse(c *fiber.Ctx, result *services.FinalizeResult) error {
	message := "Payment confirmed, tickets sent"
	if !result.TicketDispatched {
		message = "Payment confirmed, ticket pending"
	}
	if !result.Registration.PaymentStatus.IsPaid() {
		message = "Payment not captured yet"
	}
	return c.JSON(fiber.Map{
		"success":          true,
		"message":          message,
		"ticketDispatched": result.TicketDispatched,
		"registration":     result.Registration,
	})
}

// Callback verifies the checkout signature sent by the client after payment
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	var req struct {
		OrderID   string `json:"orderId"`
		PaymentID string `json:"paymentId"`
		Signature string `json:"signature"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.payments.ConfirmGatewayPayment(c.UserContext(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return respondError(c, err)
	}
	return finalizeResponse(c, result)
}

// OrderStatus polls the gateway for an order and applies a capture if found
func (h *PaymentHandler) OrderStatus(c *fiber.Ctx) error {
	result, err := h.payments.CheckOrderStatus(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return respondError(c, err)
	}
	return finalizeResponse(c, result)
}

// HandleWebhook processes a signature-checked Razorpay webhook
func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	if err := h.payments.ProcessPaymentWebhook(c.UserContext(), c.Body()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
