package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/services"
)

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidationFailed, services.KindInvalidQuantity,
		services.KindIncompleteGroupDetails, services.KindMissingPaymentProof,
		services.KindRejectionReasonRequired, services.KindInvalidEventDay,
		services.KindInvalidOtp, services.KindOtpAlreadyConsumed,
		services.KindOtpNotVerified, services.KindSignatureInvalid:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindNotEligible:
		return fiber.StatusForbidden
	case services.KindRegistrationNotFound, services.KindUnknownTicket:
		return fiber.StatusNotFound
	case services.KindStaleState, services.KindAlreadySubmitted,
		services.KindDuplicateRegistration, services.KindDuplicateTransactionID,
		services.KindInvalidStatusTransition, services.KindTicketNotActive:
		return fiber.StatusConflict
	case services.KindOtpExpired:
		return fiber.StatusGone
	case services.KindTooManyOtpAttempts:
		return fiber.StatusTooManyRequests
	case services.KindTicketAllocationExhausted, services.KindGatewayUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// respondError writes the {"error","code","field"} envelope for err.
func respondError(c *fiber.Ctx, err error) error {
	var domainErr *services.Error
	if !errors.As(err, &domainErr) {
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
			"code":  "Internal",
		})
	}

	body := fiber.Map{
		"error": domainErr.Message,
		"code":  domainErr.Kind,
	}
	if domainErr.Field != "" {
		body["field"] = domainErr.Field
	}
	return c.Status(statusFor(domainErr.Kind)).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"code":  services.KindValidationFailed,
	})
}
