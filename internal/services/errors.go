package services

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error. Handlers map kinds to HTTP statuses.
type Kind string

const (
	KindValidationFailed          Kind = "ValidationFailed"
	KindInvalidQuantity           Kind = "InvalidQuantity"
	KindIncompleteGroupDetails    Kind = "IncompleteGroupDetails"
	KindTicketAllocationExhausted Kind = "TicketAllocationExhausted"
	KindMissingPaymentProof       Kind = "MissingPaymentProof"
	KindAlreadySubmitted          Kind = "AlreadySubmitted"
	KindRejectionReasonRequired   Kind = "RejectionReasonRequired"
	KindSignatureInvalid          Kind = "SignatureInvalid"
	KindStaleState                Kind = "StaleState"
	KindInvalidStatusTransition   Kind = "InvalidStatusTransition"
	KindRegistrationNotFound      Kind = "RegistrationNotFound"
	KindDuplicateRegistration     Kind = "DuplicateRegistration"
	KindDuplicateTransactionID    Kind = "DuplicateTransactionId"
	KindGatewayUnavailable        Kind = "GatewayUnavailable"
	KindNotEligible               Kind = "NotEligible"
	KindInvalidOtp                Kind = "InvalidOtp"
	KindOtpExpired                Kind = "OtpExpired"
	KindOtpAlreadyConsumed        Kind = "OtpAlreadyConsumed"
	KindOtpNotVerified            Kind = "OtpNotVerified"
	KindTooManyOtpAttempts        Kind = "TooManyOtpAttempts"
	KindUnknownTicket             Kind = "UnknownTicket"
	KindTicketNotActive           Kind = "TicketNotActive"
	KindInvalidEventDay           Kind = "InvalidEventDay"
	KindUnauthorized              Kind = "Unauthorized"
)

// Error is the error type returned by every service operation.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrStaleState)
// works regardless of message or field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidationFailed          = &Error{Kind: KindValidationFailed}
	ErrInvalidQuantity           = &Error{Kind: KindInvalidQuantity}
	ErrIncompleteGroupDetails    = &Error{Kind: KindIncompleteGroupDetails}
	ErrTicketAllocationExhausted = &Error{Kind: KindTicketAllocationExhausted}
	ErrMissingPaymentProof       = &Error{Kind: KindMissingPaymentProof}
	ErrAlreadySubmitted          = &Error{Kind: KindAlreadySubmitted}
	ErrRejectionReasonRequired   = &Error{Kind: KindRejectionReasonRequired}
	ErrSignatureInvalid          = &Error{Kind: KindSignatureInvalid}
	ErrStaleState                = &Error{Kind: KindStaleState}
	ErrInvalidStatusTransition   = &Error{Kind: KindInvalidStatusTransition}
	ErrRegistrationNotFound      = &Error{Kind: KindRegistrationNotFound}
	ErrDuplicateRegistration     = &Error{Kind: KindDuplicateRegistration}
	ErrDuplicateTransactionID    = &Error{Kind: KindDuplicateTransactionID}
	ErrGatewayUnavailable        = &Error{Kind: KindGatewayUnavailable}
	ErrNotEligible               = &Error{Kind: KindNotEligible}
	ErrInvalidOtp                = &Error{Kind: KindInvalidOtp}
	ErrOtpExpired                = &Error{Kind: KindOtpExpired}
	ErrOtpAlreadyConsumed        = &Error{Kind: KindOtpAlreadyConsumed}
	ErrOtpNotVerified            = &Error{Kind: KindOtpNotVerified}
	ErrTooManyOtpAttempts        = &Error{Kind: KindTooManyOtpAttempts}
	ErrUnknownTicket             = &Error{Kind: KindUnknownTicket}
	ErrTicketNotActive           = &Error{Kind: KindTicketNotActive}
	ErrInvalidEventDay           = &Error{Kind: KindInvalidEventDay}
	ErrUnauthorized              = &Error{Kind: KindUnauthorized}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func fieldError(kind Kind, field, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
