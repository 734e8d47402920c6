package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/middleware"
	"github.com/Ananth-NQI/eventpass-backend/internal/services"
)

// TicketHandler handles gate scanning
type TicketHandler struct {
	admission *services.AdmissionService
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(admission *services.AdmissionService) *TicketHandler {
	return &TicketHandler{admission: admission}
}

// VerifyMultiDay shows who holds a ticket and whether they already entered
func (h *TicketHandler) VerifyMultiDay(c *fiber.Ctx) error {
	var req struct {
		QRData   string `json:"qrData"`
		EventDay int    `json:"eventDay"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	check, err := h.admission.VerifyTicket(c.UserContext(), middleware.ActorFrom(c), req.QRData, req.EventDay)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"ticket":  check,
	})
}

// ConfirmEntryMultiDay admits a ticket for a day. A repeat scan is a
// successful DuplicateEntry response carrying the original entry time.
func (h *TicketHandler) ConfirmEntryMultiDay(c *fiber.Ctx) error {
	var req struct {
		TicketNumber string `json:"ticketNumber"`
		EventDay     int    `json:"eventDay"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.admission.ConfirmEntry(c.UserContext(), middleware.ActorFrom(c), req.TicketNumber, req.EventDay)
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	message := "Entry confirmed"
	if result.Outcome == services.OutcomeDuplicateEntry {
		status = fiber.StatusOK
		message = "Already entered on this day"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"outcome": result.Outcome,
		"message": message,
		"entry":   result,
	})
}
