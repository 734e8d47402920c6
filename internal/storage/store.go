package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned when a conditional write finds the record in
	// a different state than the caller expected.
	ErrStaleState = errors.New("stale state")
	// ErrDuplicateKey is matched by every *DuplicateKeyError.
	ErrDuplicateKey = errors.New("duplicate key")
)

// DuplicateKeyError names the unique field that was violated.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: %s", e.Field)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// DuplicateField returns the violated field when err is a duplicate key error.
func DuplicateField(err error) (string, bool) {
	var dup *DuplicateKeyError
	if errors.As(err, &dup) {
		return dup.Field, true
	}
	return "", false
}

// Mutation edits a copy of a registration inside a conditional update.
// Returning an error aborts the update without effect.
type Mutation func(reg *models.Registration) error

// Store defines the persistence operations the core relies on. Every write is
// atomic for a single registration; callers never coordinate through locks.
type Store interface {
	// Registration operations
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error)
	GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error)
	ListRegistrations(ctx context.Context, status models.PaymentStatus) ([]*models.Registration, error)
	UpdateRegistrationIf(ctx context.Context, id string, expected models.PaymentStatus, mutate Mutation) (*models.Registration, error)

	// Ticket operations
	AssignTicketNumbers(ctx context.Context, id string, expected models.PaymentStatus, assignment models.TicketAssignment) (*models.Registration, error)
	FindTicket(ctx context.Context, number string) (*models.TicketHolder, error)

	// Admission operations
	AppendEntryIfAbsent(ctx context.Context, entry *models.Entry) (*models.Entry, bool, error)

	// Referral operations
	CreateFriendRegistration(ctx context.Context, referrerID string, friend *models.Registration) error

	// OTP operations
	SaveOTPChallenge(ctx context.Context, challenge *models.OTPChallenge) error
	GetOTPChallenge(ctx context.Context, email string) (*models.OTPChallenge, error)
	ConsumeOTPChallenge(ctx context.Context, email, challengeID string, at time.Time) error
	RecordOTPFailure(ctx context.Context, email, challengeID string) (int, error)

	// Analytics operations
	Stats(ctx context.Context) (*models.Stats, error)
}
