package handlers

import (
	"encoding/base64"
	"io"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/auth"
	"github.com/Ananth-NQI/eventpass-backend/internal/middleware"
	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/services"
)

// registrantTokenTTL outlives the registration window and the event days.
const registrantTokenTTL = 90 * 24 * time.Hour

// RegistrationHandler handles registrant-facing registration requests
type RegistrationHandler struct {
	payments  *services.PaymentService
	allocator *services.Allocator
	jwtSecret string
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(payments *services.PaymentService, allocator *services.Allocator, jwtSecret string) *RegistrationHandler {
	return &RegistrationHandler{
		payments:  payments,
		allocator: allocator,
		jwtSecret: jwtSecret,
	}
}

// withAccessToken adds the registrant's own bearer token to a creation
// response. Without a JWT secret the token is omitted.
func withAccessToken(body fiber.Map, secret, id string) fiber.Map {
	token, err := auth.IssueToken(secret, id, auth.RoleRegistrant, registrantTokenTTL)
	if err != nil {
		log.Printf("⚠️  No access token for registration %s: %v", id, err)
		return body
	}
	body["accessToken"] = token
	return body
}

// Quote prices a booking without storing anything
func (h *RegistrationHandler) Quote(c *fiber.Ctx) error {
	var req services.BookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	quote, err := h.allocator.Quote(req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"quote":   quote,
	})
}

// CreateRegistration handles creating a new registration
func (h *RegistrationHandler) CreateRegistration(c *fiber.Ctx) error {
	var req services.RegistrationInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	reg, err := h.payments.CreateRegistration(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(withAccessToken(fiber.Map{
		"success":         true,
		"message":         "Registration created successfully",
		"registration":    reg,
		"totalSeats":      reg.TotalSeats(),
		"freeSeats":       reg.FreeSeats(),
		"requiredMembers": reg.TotalSeats() - 1,
	}, h.jwtSecret, reg.ID))
}

// GetRegistration retrieves a registration by ID
func (h *RegistrationHandler) GetRegistration(c *fiber.Ctx) error {
	reg, err := h.payments.GetRegistration(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"registration": reg,
	})
}

// UpdateMembers replaces the group member list
func (h *RegistrationHandler) UpdateMembers(c *fiber.Ctx) error {
	var req struct {
		GroupMembers []services.MemberInput `json:"groupMembers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	reg, err := h.payments.UpdateGroupMembers(c.UserContext(), c.Params("id"), req.GroupMembers)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"registration": reg,
	})
}

// SubmitPayment accepts UPI proof either as multipart form data (field
// "paymentScreenshot") or as JSON with a base64 or data-URL screenshot.
func (h *RegistrationHandler) SubmitPayment(c *fiber.Ctx) error {
	input, err := parseManualPayment(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	reg, err := h.payments.SubmitManualPayment(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"message":      "Payment proof submitted, awaiting verification",
		"registration": reg,
	})
}

func parseManualPayment(c *fiber.Ctx) (services.ManualPaymentInput, error) {
	var input services.ManualPaymentInput

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		input.UPITransactionID = c.FormValue("upiTransactionId")
		fileHeader, err := c.FormFile("paymentScreenshot")
		if err != nil {
			// Missing file is reported by the service as MissingPaymentProof.
			return input, nil
		}
		file, err := fileHeader.Open()
		if err != nil {
			return input, err
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, services.MaxScreenshotBytes+1))
		if err != nil {
			return input, err
		}
		input.Screenshot = data
		input.ContentType = fileHeader.Header.Get(fiber.HeaderContentType)
		return input, nil
	}

	var req struct {
		UPITransactionID  string `json:"upiTransactionId"`
		PaymentScreenshot string `json:"paymentScreenshot"`
	}
	if err := c.BodyParser(&req); err != nil {
		return input, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	input.UPITransactionID = req.UPITransactionID

	encoded := strings.TrimSpace(req.PaymentScreenshot)
	if strings.HasPrefix(encoded, "data:") {
		if comma := strings.Index(encoded, ","); comma > 0 {
			meta := encoded[len("data:"):comma]
			input.ContentType = strings.TrimSuffix(meta, ";base64")
			encoded = encoded[comma+1:]
		}
	}
	if encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return input, fiber.NewError(fiber.StatusBadRequest, "paymentScreenshot must be base64 encoded")
		}
		input.Screenshot = data
	}
	return input, nil
}

// CreateOrder opens a gateway order for online payment
func (h *RegistrationHandler) CreateOrder(c *fiber.Ctx) error {
	order, err := h.payments.CreateGatewayOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}

// UpdatePaymentStatus moves a registration to failed or back to pending
func (h *RegistrationHandler) UpdatePaymentStatus(c *fiber.Ctx) error {
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	reg, err := h.payments.UpdatePaymentStatus(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), models.PaymentStatus(req.Status), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"registration": reg,
	})
}
