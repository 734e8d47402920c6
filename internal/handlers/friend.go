package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/services"
)

// FriendHandler handles the friend-referral flow
type FriendHandler struct {
	referrals *services.ReferralService
	jwtSecret string
}

// NewFriendHandler creates a new friend referral handler
func NewFriendHandler(referrals *services.ReferralService, jwtSecret string) *FriendHandler {
	return &FriendHandler{referrals: referrals, jwtSecret: jwtSecret}
}

// CheckEligibility sends an OTP to an eligible referrer
func (h *FriendHandler) CheckEligibility(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	eligibility, err := h.referrals.CheckEligibility(c.UserContext(), req.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Verification code sent to " + eligibility.MaskedEmail,
		"sentTo":    eligibility.MaskedEmail,
		"expiresAt": eligibility.ExpiresAt,
	})
}

// VerifyOTP checks the referrer's code
func (h *FriendHandler) VerifyOTP(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	verification, err := h.referrals.VerifyOTP(c.UserContext(), req.Email, req.OTP)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"verified": true,
		"referrer": fiber.Map{
			"name":    verification.ReferrerName,
			"college": verification.ReferrerCollege,
		},
		"quote": verification.Quote,
	})
}

// Register creates the friend's discounted registration
func (h *FriendHandler) Register(c *fiber.Ctx) error {
	var req services.FriendInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	reg, err := h.referrals.RegisterFriend(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(withAccessToken(fiber.Map{
		"success":      true,
		"message":      "Friend registration created",
		"registration": reg,
	}, h.jwtSecret, reg.ID))
}
