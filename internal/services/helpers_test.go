package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ananth-NQI/eventpass-backend/internal/auth"
	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
)

const (
	testBasePrice   = 49900
	testFriendPrice = 39900
	testKeySecret   = "rzp_test_secret"
)

var (
	admin   = auth.Actor{Subject: "admin@acd.test", Role: auth.RoleAdmin}
	scanner = auth.Actor{Subject: "gate-1", Role: auth.RoleScanner}
)

// recordingNotifier keeps every message and fails while failing is set.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    []Message
	failing bool
}

func (r *recordingNotifier) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("smtp: connection refused")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingNotifier) setFailing(v bool) {
	r.mu.Lock()
	r.failing = v
	r.mu.Unlock()
}

func (r *recordingNotifier) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// fakeGateway hands out sequential order ids and reports captures set by tests.
type fakeGateway struct {
	mu       sync.Mutex
	next     int
	captured map[string]string
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("order_%d", g.next), nil
}

func (g *fakeGateway) FetchCapturedPayment(ctx context.Context, orderID string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.captured[orderID]
	return id, ok, nil
}

func (g *fakeGateway) capture(orderID, paymentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captured == nil {
		g.captured = make(map[string]string)
	}
	g.captured[orderID] = paymentID
}

type testEnv struct {
	store     *storage.MemoryStore
	notifier  *recordingNotifier
	gateway   *fakeGateway
	allocator *Allocator
	mailer    *Mailer
	payments  *PaymentService
	otp       *OTPService
	referrals *ReferralService
	admission *AdmissionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	gateway := &fakeGateway{}
	allocator := NewAllocator(store, Pricing{
		BasePrice:   testBasePrice,
		FriendPrice: testFriendPrice,
		Currency:    "INR",
		MaxQuantity: 40,
	}, "ACD2026", 5)
	mailer := NewMailer("ACD 2026", notifier, notifier)
	payments := NewPaymentService(PaymentDeps{
		Store:     store,
		Allocator: allocator,
		Mailer:    mailer,
		Gateway:   gateway,
		Verifier:  NewHMACSignatureVerifier(testKeySecret),
	})
	otp := NewOTPService(store, mailer, 5*time.Minute, 5)

	return &testEnv{
		store:     store,
		notifier:  notifier,
		gateway:   gateway,
		allocator: allocator,
		mailer:    mailer,
		payments:  payments,
		otp:       otp,
		referrals: NewReferralService(store, otp, allocator, 15*time.Minute),
		admission: NewAdmissionService(store, 2),
	}
}

func members(n int) []MemberInput {
	out := make([]MemberInput, n)
	for i := range out {
		out[i] = MemberInput{
			Name:  fmt.Sprintf("Member %d", i+1),
			Email: fmt.Sprintf("member%d@college.test", i+1),
		}
	}
	return out
}

func (e *testEnv) register(t *testing.T, email string, quantity int) *models.Registration {
	t.Helper()
	reg, err := e.payments.CreateRegistration(context.Background(), RegistrationInput{
		Name:           "Priya Sharma",
		Email:          email,
		Phone:          "+919876543210",
		College:        "NIT Trichy",
		Year:           "3",
		TicketQuantity: quantity,
		GroupMembers:   members(quantity + quantity/4 - 1),
	})
	if err != nil {
		t.Fatalf("CreateRegistration(%s): %v", email, err)
	}
	return reg
}

var utrCounter int64

func nextUTR() string {
	return fmt.Sprintf("UTR%09d", atomic.AddInt64(&utrCounter, 1))
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func (e *testEnv) submit(t *testing.T, id, utr string) *models.Registration {
	t.Helper()
	reg, err := e.payments.SubmitManualPayment(context.Background(), id, ManualPaymentInput{
		UPITransactionID: utr,
		Screenshot:       pngHeader,
	})
	if err != nil {
		t.Fatalf("SubmitManualPayment(%s): %v", id, err)
	}
	return reg
}

// completed creates a registration and drives it to completed via manual review.
func (e *testEnv) completed(t *testing.T, email string, quantity int) *models.Registration {
	t.Helper()
	reg := e.register(t, email, quantity)
	e.submit(t, reg.ID, nextUTR())
	result, err := e.payments.ApprovePayment(context.Background(), admin, reg.ID, "")
	if err != nil {
		t.Fatalf("ApprovePayment(%s): %v", reg.ID, err)
	}
	if result.Registration.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Registration.PaymentStatus)
	}
	return result.Registration
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("error kind = %q (%v), want %q", got, err, kind)
	}
}
