package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
	"github.com/Ananth-NQI/eventpass-backend/internal/utils"
)

// ReferralService lets a paid registrant sponsor one discounted friend.
type ReferralService struct {
	store     storage.Store
	otp       *OTPService
	allocator *Allocator
	window    time.Duration
}

// NewReferralService creates the friend-referral gate
func NewReferralService(store storage.Store, otp *OTPService, allocator *Allocator, window time.Duration) *ReferralService {
	return &ReferralService{store: store, otp: otp, allocator: allocator, window: window}
}

// Eligibility is returned once a code has been sent to the referrer.
type Eligibility struct {
	MaskedEmail string    `json:"maskedEmail"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ReferralVerification is returned after the referrer's code is accepted.
type ReferralVerification struct {
	ReferrerName    string `json:"referrerName"`
	ReferrerCollege string `json:"referrerCollege,omitempty"`
	Quote           *Quote `json:"quote"`
}

// FriendInput is the friend's identity submitted with the referrer's email.
type FriendInput struct {
	ReferrerEmail string `json:"referrerEmail" validate:"required,email"`
	Name          string `json:"name" validate:"required,min=2,max=120"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,min=7,max=20"`
	College       string `json:"college" validate:"max=200"`
	Year          string `json:"year" validate:"max=20"`
}

func (s *ReferralService) eligibleReferrer(ctx context.Context, email string) (*models.Registration, error) {
	referrer, err := s.store.GetRegistrationByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(KindNotEligible, "no registration found for this email")
	}
	if err != nil {
		return nil, err
	}
	if !referrer.PaymentStatus.IsPaid() {
		return nil, newError(KindNotEligible, "the referrer has not completed payment")
	}
	if referrer.ReferralUsed {
		return nil, newError(KindNotEligible, "this registration has already sponsored a friend")
	}
	return referrer, nil
}

// CheckEligibility confirms the referrer may sponsor a friend and sends them a code.
func (s *ReferralService) CheckEligibility(ctx context.Context, referrerEmail string) (*Eligibility, error) {
	if err := validateStruct(struct {
		Email string `json:"email" validate:"required,email"`
	}{referrerEmail}); err != nil {
		return nil, err
	}

	referrer, err := s.eligibleReferrer(ctx, referrerEmail)
	if err != nil {
		return nil, err
	}

	challenge, err := s.otp.Issue(ctx, referrer.Email, models.OTPPurposeFriendReferral)
	if err != nil {
		return nil, err
	}
	return &Eligibility{
		MaskedEmail: utils.MaskEmail(referrer.Email),
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// VerifyOTP accepts the referrer's code and returns the friend's quote.
func (s *ReferralService) VerifyOTP(ctx context.Context, referrerEmail, code string) (*ReferralVerification, error) {
	if _, err := s.otp.Verify(ctx, referrerEmail, models.OTPPurposeFriendReferral, code); err != nil {
		return nil, err
	}

	referrer, err := s.eligibleReferrer(ctx, referrerEmail)
	if err != nil {
		return nil, err
	}
	quote, err := s.allocator.Quote(BookingRequest{TicketQuantity: 1, IsFriendReferral: true})
	if err != nil {
		return nil, err
	}
	return &ReferralVerification{
		ReferrerName:    referrer.Name,
		ReferrerCollege: referrer.College,
		Quote:           quote,
	}, nil
}

// RegisterFriend creates the friend's pending registration and marks the
// referrer as used in the same store operation.
func (s *ReferralService) RegisterFriend(ctx context.Context, input FriendInput) (*models.Registration, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if normalizeEmail(input.Email) == normalizeEmail(input.ReferrerEmail) {
		return nil, fieldError(KindValidationFailed, "email", "you cannot refer yourself")
	}

	if err := s.otp.RequireVerified(ctx, input.ReferrerEmail, models.OTPPurposeFriendReferral, s.window); err != nil {
		return nil, err
	}
	referrer, err := s.eligibleReferrer(ctx, input.ReferrerEmail)
	if err != nil {
		return nil, err
	}

	quote, err := s.allocator.Quote(BookingRequest{TicketQuantity: 1, IsFriendReferral: true})
	if err != nil {
		return nil, err
	}

	referrerID := referrer.ID
	friend := &models.Registration{
		Name:                  input.Name,
		Email:                 normalizeEmail(input.Email),
		Phone:                 input.Phone,
		College:               input.College,
		Year:                  input.Year,
		PaymentStatus:         models.PaymentStatusPending,
		Amount:                quote.Amount,
		OriginalAmount:        quote.OriginalAmount,
		FriendDiscountApplied: quote.FriendDiscountApplied,
		TotalAmount:           quote.TotalAmount,
		TicketQuantity:        1,
		IsFriendReferral:      true,
		ReferrerID:            &referrerID,
	}

	err = s.store.CreateFriendRegistration(ctx, referrer.ID, friend)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrStaleState), errors.Is(err, storage.ErrNotFound):
		return nil, newError(KindNotEligible, "this registration has already sponsored a friend")
	case errors.Is(err, storage.ErrDuplicateKey):
		return nil, fieldError(KindDuplicateRegistration, "email", "this email is already registered")
	default:
		return nil, err
	}

	log.Printf("🤝 Friend registration %s created, sponsored by %s", friend.ID, referrer.ID)
	return friend, nil
}
