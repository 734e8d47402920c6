package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
	"github.com/Ananth-NQI/eventpass-backend/internal/utils"
)

type OTPService struct {
	store       storage.Store
	mailer      *Mailer
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	generate    func() (string, error)
}

func NewOTPService(store storage.Store, mailer *Mailer, ttl time.Duration, maxAttempts int) *OTPService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &OTPService{
		store:       store,
		mailer:      mailer,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
		generate:    utils.GenerateSecureOTP,
	}
}

// Issue creates a fresh challenge for email, replacing any live one, and mails the code.
func (s *OTPService) Issue(ctx context.Context, email, purpose string) (*models.OTPChallenge, error) {
	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := s.now()
	challenge := &models.OTPChallenge{
		Email:       normalizeEmail(email),
		ChallengeID: uuid.NewString(),
		Code:        code,
		Purpose:     purpose,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}
	if err := s.store.SaveOTPChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	if err := s.mailer.SendOTP(ctx, challenge); err != nil {
		log.Printf("❌ Failed to send OTP to %s: %v", utils.MaskEmail(challenge.Email), err)
		return nil, fmt.Errorf("failed to send verification code: %w", err)
	}
	log.Printf("🔐 OTP issued for %s (expires %s)", utils.MaskEmail(challenge.Email), challenge.ExpiresAt.Format(time.RFC3339))
	return challenge, nil
}

// Verify checks code against the live challenge issued to email for purpose
// and consumes it. Exactly one concurrent caller with the right code succeeds.
func (s *OTPService) Verify(ctx context.Context, email, purpose, code string) (*models.OTPChallenge, error) {
	email = normalizeEmail(email)
	challenge, err := s.store.GetOTPChallenge(ctx, email)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && challenge.Purpose != purpose) {
		return nil, fieldError(KindInvalidOtp, "otp", "no verification code was requested for this email")
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case challenge.Consumed:
		return nil, fieldError(KindOtpAlreadyConsumed, "otp", "this code has already been used")
	case challenge.Attempts >= s.maxAttempts:
		return nil, fieldError(KindTooManyOtpAttempts, "otp", "too many wrong attempts, request a new code")
	case challenge.Expired(now):
		return nil, fieldError(KindOtpExpired, "otp", "this code has expired, request a new one")
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		attempts, err := s.store.RecordOTPFailure(ctx, email, challenge.ChallengeID)
		if err != nil && !errors.Is(err, storage.ErrStaleState) {
			return nil, err
		}
		if attempts >= s.maxAttempts {
			return nil, fieldError(KindTooManyOtpAttempts, "otp", "too many wrong attempts, request a new code")
		}
		return nil, fieldError(KindInvalidOtp, "otp", "incorrect code")
	}

	if err := s.store.ConsumeOTPChallenge(ctx, email, challenge.ChallengeID, now); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return nil, fieldError(KindOtpAlreadyConsumed, "otp", "this code has already been used")
		}
		return nil, err
	}

	challenge.Consumed = true
	challenge.VerifiedAt = &now
	return challenge, nil
}

// RequireVerified succeeds only when email has a consumed challenge for
// purpose verified within window.
func (s *OTPService) RequireVerified(ctx context.Context, email, purpose string, window time.Duration) error {
	challenge, err := s.store.GetOTPChallenge(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return newError(KindOtpNotVerified, "verify the referrer's email before registering")
	}
	if err != nil {
		return err
	}
	if challenge.Purpose != purpose || !challenge.Consumed || challenge.VerifiedAt == nil {
		return newError(KindOtpNotVerified, "verify the referrer's email before registering")
	}
	if s.now().Sub(*challenge.VerifiedAt) > window {
		return newError(KindOtpNotVerified, "referrer verification has lapsed, verify again")
	}
	return nil
}
