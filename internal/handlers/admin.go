package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/middleware"
	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/services"
)

// AdminHandler handles admin operations
type AdminHandler struct {
	payments *services.PaymentService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(payments *services.PaymentService) *AdminHandler {
	return &AdminHandler{payments: payments}
}

// ListRegistrations lists registrations, optionally by ?status=
func (h *AdminHandler) ListRegistrations(c *fiber.Ctx) error {
	status := models.PaymentStatus(c.Query("status"))

	regs, err := h.payments.ListRegistrations(c.UserContext(), middleware.ActorFrom(c), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"registrations": regs,
		"count":         len(regs),
	})
}

// VerifyPayment approves or rejects submitted UPI proof
func (h *AdminHandler) VerifyPayment(c *fiber.Ctx) error {
	var req struct {
		Action          string `json:"action"` // "approve" or "reject"
		Notes           string `json:"notes"`
		RejectionReason string `json:"rejectionReason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	actor := middleware.ActorFrom(c)
	id := c.Params("id")

	switch req.Action {
	case "approve":
		result, err := h.payments.ApprovePayment(c.UserContext(), actor, id, req.Notes)
		if err != nil {
			return respondError(c, err)
		}
		message := "Payment verified and tickets sent"
		if !result.TicketDispatched {
			message = "Payment verified, ticket pending"
		}
		return c.JSON(fiber.Map{
			"success":          true,
			"message":          message,
			"ticketDispatched": result.TicketDispatched,
			"registration":     result.Registration,
		})
	case "reject":
		reg, err := h.payments.RejectPayment(c.UserContext(), actor, id, req.RejectionReason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"success":      true,
			"message":      "Payment rejected",
			"registration": reg,
		})
	}

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Action must be 'approve' or 'reject'",
		"code":  services.KindValidationFailed,
		"field": "action",
	})
}

// ResendTicket retries ticket delivery
func (h *AdminHandler) ResendTicket(c *fiber.Ctx) error {
	result, err := h.payments.ResendTicket(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":          result.TicketDispatched,
		"ticketDispatched": result.TicketDispatched,
		"registration":     result.Registration,
	})
}

// GetStats returns registration and admission counters
func (h *AdminHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.payments.Stats(c.UserContext(), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
	})
}
