package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Ananth-NQI/eventpass-backend/internal/auth"
	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
)

// MaxScreenshotBytes bounds uploaded payment proof images.
const MaxScreenshotBytes = 5 << 20

// PaymentService drives a registration through its payment states. Every
// transition is a conditional update from the expected state.
type PaymentService struct {
	store       storage.Store
	allocator   *Allocator
	mailer      *Mailer
	gateway     Gateway
	verifier    SignatureVerifier
	screenshots ScreenshotStore
	now         func() time.Time
}

// PaymentDeps are the collaborators of PaymentService. Gateway and Verifier
// may be nil when no payment gateway is configured.
type PaymentDeps struct {
	Store       storage.Store
	Allocator   *Allocator
	Mailer      *Mailer
	Gateway     Gateway
	Verifier    SignatureVerifier
	Screenshots ScreenshotStore
}

// NewPaymentService creates a new payment service
func NewPaymentService(deps PaymentDeps) *PaymentService {
	screenshots := deps.Screenshots
	if screenshots == nil {
		screenshots = InlineScreenshotStore{}
	}
	return &PaymentService{
		store:       deps.Store,
		allocator:   deps.Allocator,
		mailer:      deps.Mailer,
		gateway:     deps.Gateway,
		verifier:    deps.Verifier,
		screenshots: screenshots,
		now:         time.Now,
	}
}

// MemberInput is one group member as submitted by the registrant.
type MemberInput struct {
	Name    string `json:"name" validate:"required,min=2,max=120"`
	Email   string `json:"email" validate:"required,email"`
	College string `json:"college" validate:"max=200"`
	Year    string `json:"year" validate:"max=20"`
}

// RegistrationInput creates a registration. Group members may be supplied
// now or later through UpdateGroupMembers.
type RegistrationInput struct {
	Name           string        `json:"name" validate:"required,min=2,max=120"`
	Email          string        `json:"email" validate:"required,email"`
	Phone          string        `json:"phone" validate:"required,min=7,max=20"`
	College        string        `json:"college" validate:"max=200"`
	Year           string        `json:"year" validate:"max=20"`
	TicketQuantity int           `json:"ticketQuantity"`
	GroupMembers   []MemberInput `json:"groupMembers" validate:"dive"`
}

// ManualPaymentInput is the UPI proof submitted by the registrant.
type ManualPaymentInput struct {
	UPITransactionID string
	Screenshot       []byte
	ContentType      string
}

// OrderResult is what the client needs to open the gateway checkout.
type OrderResult struct {
	OrderID      string               `json:"orderId"`
	Amount       int64                `json:"amount"`
	Currency     string               `json:"currency"`
	Registration *models.Registration `json:"registration"`
}

// FinalizeResult reports whether tickets reached the registrant. When
// TicketDispatched is false the registration stays verified.
type FinalizeResult struct {
	Registration     *models.Registration `json:"registration"`
	TicketDispatched bool                 `json:"ticketDispatched"`
}

func (p *PaymentService) notFound(id string) error {
	return newError(KindRegistrationNotFound, "registration %s not found", id)
}

// translate maps storage errors onto domain kinds.
func (p *PaymentService) translate(id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return p.notFound(id)
	case errors.Is(err, storage.ErrStaleState):
		return newError(KindStaleState, "registration %s changed, reload and try again", id)
	}
	return err
}

func toMembers(in []MemberInput) []models.GroupMember {
	members := make([]models.GroupMember, len(in))
	for i, m := range in {
		members[i] = models.GroupMember{
			Position: i + 1,
			Name:     strings.TrimSpace(m.Name),
			Email:    normalizeEmail(m.Email),
			College:  m.College,
			Year:     m.Year,
		}
	}
	return members
}

// CreateRegistration validates identity, quotes the booking and stores it as pending.
func (p *PaymentService) CreateRegistration(ctx context.Context, input RegistrationInput) (*models.Registration, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	quote, err := p.allocator.Quote(BookingRequest{TicketQuantity: input.TicketQuantity})
	if err != nil {
		return nil, err
	}
	if len(input.GroupMembers) > quote.RequiredMembers {
		return nil, fieldError(KindIncompleteGroupDetails, "groupMembers",
			"at most %d group member(s) for %d ticket(s)", quote.RequiredMembers, quote.TicketQuantity)
	}

	reg := &models.Registration{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(input.Name),
		Email:          normalizeEmail(input.Email),
		Phone:          strings.TrimSpace(input.Phone),
		College:        input.College,
		Year:           input.Year,
		PaymentStatus:  models.PaymentStatusPending,
		Amount:         quote.Amount,
		OriginalAmount: quote.OriginalAmount,
		TotalAmount:    quote.TotalAmount,
		IsGroupBooking: quote.IsGroupBooking,
		TicketQuantity: quote.TicketQuantity,
		GroupMembers:   toMembers(input.GroupMembers),
	}

	if err := p.store.CreateRegistration(ctx, reg); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fieldError(KindDuplicateRegistration, "email", "this email is already registered")
		}
		return nil, err
	}

	log.Printf("📝 Registration %s created: %d ticket(s), %d seat(s)", reg.ID, quote.TicketQuantity, quote.TotalSeats)
	return reg, nil
}

// GetRegistration returns a registration by id.
func (p *PaymentService) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := p.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, p.translate(id, err)
	}
	return reg, nil
}

var errMembersFrozen = fieldError(KindInvalidStatusTransition, "groupMembers",
	"group members cannot be changed after checkout has started")

// UpdateGroupMembers replaces the member list while payment is still pending
// and no gateway order has been opened.
func (p *PaymentService) UpdateGroupMembers(ctx context.Context, id string, members []MemberInput) (*models.Registration, error) {
	if err := validateStruct(struct {
		Members []MemberInput `json:"groupMembers" validate:"dive"`
	}{members}); err != nil {
		return nil, err
	}

	current, err := p.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, p.translate(id, err)
	}
	if current.PaymentStatus != models.PaymentStatusPending {
		return nil, newError(KindInvalidStatusTransition, "group members can only be changed while payment is pending")
	}
	if current.OrderID != nil {
		return nil, errMembersFrozen
	}
	if limit := current.TotalSeats() - 1; len(members) > limit {
		return nil, fieldError(KindIncompleteGroupDetails, "groupMembers",
			"at most %d group member(s) for %d ticket(s)", limit, current.TicketQuantity)
	}

	updated, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusPending, func(reg *models.Registration) error {
		// An order opened since the read above freezes the list.
		if reg.OrderID != nil {
			return errMembersFrozen
		}
		reg.GroupMembers = toMembers(members)
		return nil
	})
	if err != nil {
		return nil, p.translate(id, err)
	}
	return updated, nil
}

// SubmitManualPayment records UPI proof: pending -> paid_awaiting_verification.
func (p *PaymentService) SubmitManualPayment(ctx context.Context, id string, input ManualPaymentInput) (*models.Registration, error) {
	utr := strings.ToUpper(strings.TrimSpace(input.UPITransactionID))
	if utr == "" {
		return nil, fieldError(KindMissingPaymentProof, "upiTransactionId", "UPI transaction ID is required")
	}
	if len(input.Screenshot) == 0 {
		return nil, fieldError(KindMissingPaymentProof, "paymentScreenshot", "payment screenshot is required")
	}
	if err := validateStruct(struct {
		UTR string `json:"upiTransactionId" validate:"alphanum,min=6,max=35"`
	}{utr}); err != nil {
		return nil, err
	}
	if len(input.Screenshot) > MaxScreenshotBytes {
		return nil, fieldError(KindValidationFailed, "paymentScreenshot", "screenshot must be at most %d MB", MaxScreenshotBytes>>20)
	}
	contentType := input.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(input.Screenshot)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fieldError(KindValidationFailed, "paymentScreenshot", "screenshot must be an image")
	}

	current, err := p.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, p.translate(id, err)
	}
	if current.PaymentStatus != models.PaymentStatusPending {
		return nil, newError(KindAlreadySubmitted, "payment proof was already submitted for this registration")
	}
	if err := p.allocator.CheckGroupDetails(current); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("payment-screenshots/%s/%s%s", id, uuid.NewString(), imageExtension(contentType))
	url, err := p.screenshots.Put(ctx, key, input.Screenshot, contentType)
	if err != nil {
		log.Printf("❌ Screenshot upload failed for %s: %v", id, err)
		return nil, err
	}

	now := p.now()
	updated, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusPending, func(reg *models.Registration) error {
		if err := p.allocator.CheckGroupDetails(reg); err != nil {
			return err
		}
		reg.PaymentStatus = models.PaymentStatusPaidAwaitingVerification
		reg.PaymentMethod = models.PaymentMethodUPI
		reg.UPITransactionID = &utr
		reg.PaymentScreenshot = url
		reg.PaymentSubmittedAt = &now
		reg.RejectionReason = ""
		reg.FailureReason = ""
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrStaleState):
		return nil, newError(KindAlreadySubmitted, "payment proof was already submitted for this registration")
	case errors.Is(err, storage.ErrDuplicateKey):
		return nil, fieldError(KindDuplicateTransactionID, "upiTransactionId", "this transaction ID has already been used")
	default:
		return nil, p.translate(id, err)
	}

	log.Printf("💳 Payment proof submitted for %s (UTR %s)", id, utr)
	return updated, nil
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}

// ApprovePayment is the admin transition paid_awaiting_verification -> verified,
// followed by ticket finalization.
func (p *PaymentService) ApprovePayment(ctx context.Context, actor auth.Actor, id, notes string) (*FinalizeResult, error) {
	if !actor.CanVerifyPayments() {
		return nil, newError(KindUnauthorized, "admin access required")
	}

	now := p.now()
	reg, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusPaidAwaitingVerification, func(reg *models.Registration) error {
		reg.PaymentStatus = models.PaymentStatusVerified
		reg.VerificationNotes = strings.TrimSpace(notes)
		reg.VerifiedBy = actor.Subject
		reg.VerifiedAt = &now
		return nil
	})
	if err != nil {
		return nil, p.translate(id, err)
	}

	log.Printf("✅ Payment for %s approved by %s", id, actor.Subject)
	return p.finalize(ctx, reg)
}

// RejectPayment returns a submitted registration to pending with a reason
// and clears the proof so it can be resubmitted.
func (p *PaymentService) RejectPayment(ctx context.Context, actor auth.Actor, id, reason string) (*models.Registration, error) {
	if !actor.CanVerifyPayments() {
		return nil, newError(KindUnauthorized, "admin access required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fieldError(KindRejectionReasonRequired, "rejectionReason", "a rejection reason is required")
	}

	now := p.now()
	reg, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusPaidAwaitingVerification, func(reg *models.Registration) error {
		reg.PaymentStatus = models.PaymentStatusPending
		reg.RejectionReason = reason
		reg.RejectedAt = &now
		reg.VerifiedBy = actor.Subject
		reg.UPITransactionID = nil
		reg.PaymentScreenshot = ""
		reg.PaymentSubmittedAt = nil
		reg.PaymentMethod = ""
		return nil
	})
	if err != nil {
		return nil, p.translate(id, err)
	}

	log.Printf("❌ Payment for %s rejected by %s: %s", id, actor.Subject, reason)
	if err := p.mailer.SendRejection(ctx, reg); err != nil {
		log.Printf("⚠️  Failed to notify %s about rejection: %v", id, err)
	}
	return reg, nil
}

// CreateGatewayOrder opens a gateway order for a pending registration. An
// order already recorded on the registration is reused.
func (p *PaymentService) CreateGatewayOrder(ctx context.Context, id string) (*OrderResult, error) {
	if p.gateway == nil {
		return nil, newError(KindGatewayUnavailable, "online payments are not available, use UPI")
	}

	current, err := p.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, p.translate(id, err)
	}
	if current.PaymentStatus != models.PaymentStatusPending {
		return nil, newError(KindInvalidStatusTransition, "registration is %s, not pending", current.PaymentStatus)
	}
	if err := p.allocator.CheckGroupDetails(current); err != nil {
		return nil, err
	}

	currency := p.allocator.Pricing().Currency
	if current.OrderID != nil {
		return &OrderResult{OrderID: *current.OrderID, Amount: current.TotalAmount, Currency: currency, Registration: current}, nil
	}

	orderID, err := p.gateway.CreateOrder(ctx, current.TotalAmount, currency, current.ID, map[string]string{
		"registration_id": current.ID,
		"email":           current.Email,
	})
	if err != nil {
		return nil, &Error{Kind: KindGatewayUnavailable, Message: err.Error()}
	}

	updated, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusPending, func(reg *models.Registration) error {
		if reg.OrderID != nil {
			orderID = *reg.OrderID
			return nil
		}
		if err := p.allocator.CheckGroupDetails(reg); err != nil {
			return err
		}
		reg.OrderID = &orderID
		reg.PaymentMethod = models.PaymentMethodGateway
		return nil
	})
	if err != nil {
		return nil, p.translate(id, err)
	}
	return &OrderResult{OrderID: orderID, Amount: updated.TotalAmount, Currency: currency, Registration: updated}, nil
}

// ConfirmGatewayPayment verifies the checkout signature and applies the
// capture transition.
func (p *PaymentService) ConfirmGatewayPayment(ctx context.Context, orderID, paymentID, signature string) (*FinalizeResult, error) {
	if p.verifier == nil || !p.verifier.Verify(orderID, paymentID, signature) {
		log.Printf("🚨 AUDIT SignatureInvalid order=%s payment=%s", orderID, paymentID)
		return nil, newError(KindSignatureInvalid, "payment signature could not be verified")
	}
	return p.capture(ctx, orderID, paymentID)
}

// CheckOrderStatus asks the gateway whether the order was paid and applies
// the same capture transition as the callback. Safe to call repeatedly.
func (p *PaymentService) CheckOrderStatus(ctx context.Context, orderID string) (*FinalizeResult, error) {
	reg, err := p.store.GetRegistrationByOrderID(ctx, orderID)
	if err != nil {
		return nil, p.translate(orderID, err)
	}
	if reg.PaymentStatus != models.PaymentStatusPending {
		return alreadyCaptured(reg), nil
	}
	if p.gateway == nil {
		return nil, newError(KindGatewayUnavailable, "online payments are not available")
	}

	paymentID, captured, err := p.gateway.FetchCapturedPayment(ctx, orderID)
	if err != nil {
		return nil, &Error{Kind: KindGatewayUnavailable, Message: err.Error()}
	}
	if !captured {
		return &FinalizeResult{Registration: reg}, nil
	}
	return p.capture(ctx, orderID, paymentID)
}

// capture is the single transition both the callback and polling paths use:
// pending -> verified, then ticket finalization to completed.
func (p *PaymentService) capture(ctx context.Context, orderID, paymentID string) (*FinalizeResult, error) {
	current, err := p.store.GetRegistrationByOrderID(ctx, orderID)
	if err != nil {
		return nil, p.translate(orderID, err)
	}
	if current.PaymentStatus.IsPaid() {
		return alreadyCaptured(current), nil
	}
	if current.PaymentStatus != models.PaymentStatusPending {
		log.Printf("⚠️  Captured payment %s for %s arrived in status %s, needs manual review", paymentID, current.ID, current.PaymentStatus)
		if current.PaymentStatus == models.PaymentStatusFailed {
			p.recordLateCapture(ctx, current.ID, paymentID)
		}
		return nil, newError(KindStaleState, "registration is %s, not pending", current.PaymentStatus)
	}

	now := p.now()
	reg, err := p.store.UpdateRegistrationIf(ctx, current.ID, models.PaymentStatusPending, func(reg *models.Registration) error {
		reg.PaymentStatus = models.PaymentStatusVerified
		reg.PaymentMethod = models.PaymentMethodGateway
		reg.GatewayPaymentID = &paymentID
		reg.VerifiedBy = "gateway"
		reg.VerifiedAt = &now
		reg.FailureReason = ""
		return nil
	})
	if errors.Is(err, storage.ErrStaleState) {
		// A concurrent callback or poll won; report what it produced.
		latest, getErr := p.store.GetRegistration(ctx, current.ID)
		if getErr == nil && latest.PaymentStatus.IsPaid() {
			return alreadyCaptured(latest), nil
		}
	}
	if err != nil {
		return nil, p.translate(current.ID, err)
	}

	log.Printf("✅ Gateway payment %s captured for %s", paymentID, reg.ID)
	return p.finalize(ctx, reg)
}

// recordLateCapture keeps a capture that raced a failure visible on the
// record. Retrying and polling the order then completes it.
func (p *PaymentService) recordLateCapture(ctx context.Context, id, paymentID string) {
	_, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusFailed, func(reg *models.Registration) error {
		reg.GatewayPaymentID = &paymentID
		reg.FailureReason = fmt.Sprintf("payment %s was captured after this payment failed, retry to complete it", paymentID)
		return nil
	})
	if err != nil {
		log.Printf("❌ Failed to record late capture %s on %s: %v", paymentID, id, err)
	}
}

func alreadyCaptured(reg *models.Registration) *FinalizeResult {
	return &FinalizeResult{Registration: reg, TicketDispatched: reg.PaymentStatus == models.PaymentStatusCompleted}
}

// MarkPaymentFailed records a gateway failure or timeout: pending -> failed.
func (p *PaymentService) MarkPaymentFailed(ctx context.Context, id, reason string) (*models.Registration, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment failed"
	}
	reg, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusPending, func(reg *models.Registration) error {
		reg.PaymentStatus = models.PaymentStatusFailed
		reg.FailureReason = reason
		return nil
	})
	if err != nil {
		return nil, p.transitionError(ctx, id, err, models.PaymentStatusFailed)
	}
	log.Printf("⚠️  Payment for %s marked failed: %s", id, reason)
	return reg, nil
}

// RetryPayment lets the registrant try again: failed -> pending.
func (p *PaymentService) RetryPayment(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusFailed, func(reg *models.Registration) error {
		reg.PaymentStatus = models.PaymentStatusPending
		return nil
	})
	if err != nil {
		return nil, p.transitionError(ctx, id, err, models.PaymentStatusPending)
	}
	return reg, nil
}

// UpdatePaymentStatus applies a registrant-driven status change. Only the
// registrant's own token or an admin may make it.
func (p *PaymentService) UpdatePaymentStatus(ctx context.Context, actor auth.Actor, id string, status models.PaymentStatus, reason string) (*models.Registration, error) {
	if !actor.CanManageRegistration(id) {
		return nil, newError(KindUnauthorized, "not allowed to change this registration")
	}
	switch status {
	case models.PaymentStatusFailed:
		return p.MarkPaymentFailed(ctx, id, reason)
	case models.PaymentStatusPending:
		return p.RetryPayment(ctx, id)
	}
	return nil, fieldError(KindInvalidStatusTransition, "status", "status can only be set to failed or pending")
}

// transitionError distinguishes a lost race from a transition that was never
// allowed from the stored state.
func (p *PaymentService) transitionError(ctx context.Context, id string, err error, target models.PaymentStatus) error {
	if !errors.Is(err, storage.ErrStaleState) {
		return p.translate(id, err)
	}
	current, getErr := p.store.GetRegistration(ctx, id)
	if getErr != nil {
		return p.translate(id, getErr)
	}
	return newError(KindInvalidStatusTransition, "cannot move from %s to %s", current.PaymentStatus, target)
}

// FinalizeTickets allocates tickets for a verified registration, sends them,
// and completes it. A failed dispatch leaves it verified for retry.
func (p *PaymentService) FinalizeTickets(ctx context.Context, id string) (*FinalizeResult, error) {
	reg, err := p.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, p.translate(id, err)
	}
	return p.finalize(ctx, reg)
}

func (p *PaymentService) finalize(ctx context.Context, reg *models.Registration) (*FinalizeResult, error) {
	switch reg.PaymentStatus {
	case models.PaymentStatusCompleted:
		return &FinalizeResult{Registration: reg, TicketDispatched: true}, nil
	case models.PaymentStatusVerified:
	default:
		return nil, newError(KindInvalidStatusTransition, "registration is %s, not verified", reg.PaymentStatus)
	}

	allocated, err := p.allocator.AllocateTickets(ctx, reg)
	if err != nil {
		p.recordDispatchError(ctx, reg, err)
		return nil, err
	}
	reg = allocated

	if err := p.mailer.SendTickets(ctx, reg); err != nil {
		log.Printf("❌ Ticket dispatch failed for %s, staying verified: %v", reg.ID, err)
		if updated := p.recordDispatchError(ctx, reg, err); updated != nil {
			reg = updated
		}
		return &FinalizeResult{Registration: reg, TicketDispatched: false}, nil
	}

	now := p.now()
	completed, err := p.store.UpdateRegistrationIf(ctx, reg.ID, models.PaymentStatusVerified, func(r *models.Registration) error {
		r.PaymentStatus = models.PaymentStatusCompleted
		r.TicketSentAt = &now
		r.TicketDispatchError = ""
		return nil
	})
	if errors.Is(err, storage.ErrStaleState) {
		latest, getErr := p.store.GetRegistration(ctx, reg.ID)
		if getErr == nil && latest.PaymentStatus == models.PaymentStatusCompleted {
			return &FinalizeResult{Registration: latest, TicketDispatched: true}, nil
		}
	}
	if err != nil {
		return nil, p.translate(reg.ID, err)
	}

	log.Printf("🎉 Registration %s completed, tickets sent to %s", completed.ID, completed.Email)
	return &FinalizeResult{Registration: completed, TicketDispatched: true}, nil
}

// recordDispatchError stores the failure on a verified registration so
// admins can see "payment confirmed, ticket pending".
func (p *PaymentService) recordDispatchError(ctx context.Context, reg *models.Registration, cause error) *models.Registration {
	if reg == nil {
		return nil
	}
	updated, err := p.store.UpdateRegistrationIf(ctx, reg.ID, models.PaymentStatusVerified, func(r *models.Registration) error {
		r.TicketDispatchError = cause.Error()
		return nil
	})
	if err != nil {
		log.Printf("⚠️  Could not record dispatch error for %s: %v", reg.ID, err)
		return nil
	}
	return updated
}

// ResendTicket retries finalization for verified registrations and re-sends
// tickets for completed ones.
func (p *PaymentService) ResendTicket(ctx context.Context, actor auth.Actor, id string) (*FinalizeResult, error) {
	if !actor.CanVerifyPayments() {
		return nil, newError(KindUnauthorized, "admin access required")
	}

	reg, err := p.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, p.translate(id, err)
	}

	switch reg.PaymentStatus {
	case models.PaymentStatusVerified:
		return p.finalize(ctx, reg)
	case models.PaymentStatusCompleted:
		if err := p.mailer.SendTickets(ctx, reg); err != nil {
			log.Printf("❌ Ticket resend failed for %s: %v", id, err)
			return &FinalizeResult{Registration: reg, TicketDispatched: false}, nil
		}
		now := p.now()
		updated, err := p.store.UpdateRegistrationIf(ctx, id, models.PaymentStatusCompleted, func(r *models.Registration) error {
			r.TicketSentAt = &now
			return nil
		})
		if err != nil {
			return &FinalizeResult{Registration: reg, TicketDispatched: true}, nil
		}
		log.Printf("📨 Tickets re-sent for %s by %s", id, actor.Subject)
		return &FinalizeResult{Registration: updated, TicketDispatched: true}, nil
	}
	return nil, newError(KindInvalidStatusTransition, "registration is %s, tickets are issued after payment is confirmed", reg.PaymentStatus)
}

// ListRegistrations returns registrations for admins, optionally filtered by status.
func (p *PaymentService) ListRegistrations(ctx context.Context, actor auth.Actor, status models.PaymentStatus) ([]*models.Registration, error) {
	if !actor.CanVerifyPayments() {
		return nil, newError(KindUnauthorized, "admin access required")
	}
	if status != "" && !status.Valid() {
		return nil, fieldError(KindValidationFailed, "status", "unknown payment status %q", status)
	}
	return p.store.ListRegistrations(ctx, status)
}

// Stats returns registration and admission counters for admins.
func (p *PaymentService) Stats(ctx context.Context, actor auth.Actor) (*models.Stats, error) {
	if !actor.CanVerifyPayments() {
		return nil, newError(KindUnauthorized, "admin access required")
	}
	return p.store.Stats(ctx)
}

// RazorpayWebhookPayload represents the webhook data from Razorpay
type RazorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				ErrorCode        string `json:"error_code"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// ProcessPaymentWebhook handles payment gateway webhooks. Its signature is
// checked by middleware before this is called. Replays are harmless.
func (p *PaymentService) ProcessPaymentWebhook(ctx context.Context, payload []byte) error {
	var webhook RazorpayWebhookPayload
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return fieldError(KindValidationFailed, "payload", "failed to parse webhook: %v", err)
	}

	payment := webhook.Payload.Payment.Entity
	log.Printf("Processing payment webhook: %s (order %s)", webhook.Event, payment.OrderID)

	switch webhook.Event {
	case "payment.captured":
		_, err := p.capture(ctx, payment.OrderID, payment.ID)
		return ignoreSettled(err)
	case "payment.failed":
		reg, err := p.store.GetRegistrationByOrderID(ctx, payment.OrderID)
		if err != nil {
			return p.translate(payment.OrderID, err)
		}
		reason := strings.TrimSpace(payment.ErrorCode + " " + payment.ErrorDescription)
		_, err = p.MarkPaymentFailed(ctx, reg.ID, reason)
		return ignoreSettled(err)
	default:
		log.Printf("Unhandled webhook event: %s", webhook.Event)
		return nil
	}
}

// ignoreSettled treats "already moved on" outcomes of a webhook as success.
func ignoreSettled(err error) error {
	switch KindOf(err) {
	case KindStaleState, KindInvalidStatusTransition:
		return nil
	}
	return err
}
