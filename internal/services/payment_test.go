package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Ananth-NQI/eventpass-backend/internal/auth"
	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
)

func TestCreateRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "Priya@College.Test", 1)
	if reg.Email != "priya@college.test" {
		t.Errorf("email = %q, want normalized", reg.Email)
	}
	if reg.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("status = %s, want pending", reg.PaymentStatus)
	}
	if reg.TotalAmount != testBasePrice {
		t.Errorf("TotalAmount = %d", reg.TotalAmount)
	}
	if reg.TicketNumber != nil {
		t.Error("ticket assigned before payment")
	}

	_, err := env.payments.CreateRegistration(ctx, RegistrationInput{
		Name: "Someone Else", Email: "PRIYA@college.test", Phone: "+919999999999", TicketQuantity: 1,
	})
	wantKind(t, err, KindDuplicateRegistration)
}

func TestCreateRegistrationValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.payments.CreateRegistration(ctx, RegistrationInput{Name: "A", Email: "bad", Phone: "1", TicketQuantity: 1})
	wantKind(t, err, KindValidationFailed)

	_, err = env.payments.CreateRegistration(ctx, RegistrationInput{
		Name: "Priya", Email: "priya@college.test", Phone: "+919876543210", TicketQuantity: 0,
	})
	wantKind(t, err, KindInvalidQuantity)

	_, err = env.payments.CreateRegistration(ctx, RegistrationInput{
		Name: "Priya", Email: "priya@college.test", Phone: "+919876543210", TicketQuantity: 1,
		GroupMembers: members(1),
	})
	wantKind(t, err, KindIncompleteGroupDetails)
}

func TestManualPaymentApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "asha@college.test", 1)
	submitted := env.submit(t, reg.ID, "utr123456789")

	if submitted.PaymentStatus != models.PaymentStatusPaidAwaitingVerification {
		t.Fatalf("status = %s", submitted.PaymentStatus)
	}
	if *submitted.UPITransactionID != "UTR123456789" {
		t.Errorf("UTR = %s, want upper case", *submitted.UPITransactionID)
	}
	if !strings.HasPrefix(submitted.PaymentScreenshot, "data:image/png;base64,") {
		t.Errorf("screenshot = %.40s", submitted.PaymentScreenshot)
	}

	result, err := env.payments.ApprovePayment(ctx, admin, reg.ID, "matches bank statement")
	if err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if !result.TicketDispatched {
		t.Fatal("tickets not dispatched")
	}
	got := result.Registration
	if got.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("status = %s, want completed", got.PaymentStatus)
	}
	if got.TicketNumber == nil || !strings.HasPrefix(*got.TicketNumber, "ACD2026-") {
		t.Fatalf("ticket = %v", got.TicketNumber)
	}
	if got.VerifiedBy != admin.Subject || got.TicketSentAt == nil {
		t.Errorf("VerifiedBy = %q TicketSentAt = %v", got.VerifiedBy, got.TicketSentAt)
	}

	msgs := env.notifier.messages()
	if len(msgs) != 1 || msgs[0].To != "asha@college.test" || len(msgs[0].Attachments) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestManualPaymentRejectedAndResubmitted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "ravi@college.test", 1)
	env.submit(t, reg.ID, "UTR000111222")

	_, err := env.payments.RejectPayment(ctx, admin, reg.ID, "  ")
	wantKind(t, err, KindRejectionReasonRequired)

	rejected, err := env.payments.RejectPayment(ctx, admin, reg.ID, "amount does not match")
	if err != nil {
		t.Fatalf("RejectPayment: %v", err)
	}
	if rejected.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("status = %s, want pending", rejected.PaymentStatus)
	}
	if rejected.UPITransactionID != nil || rejected.PaymentScreenshot != "" {
		t.Error("payment proof not cleared")
	}
	if rejected.RejectionReason != "amount does not match" {
		t.Errorf("reason = %q", rejected.RejectionReason)
	}
	msgs := env.notifier.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "amount does not match") {
		t.Fatalf("rejection notice = %+v", msgs)
	}

	resubmitted := env.submit(t, reg.ID, "UTR000111222")
	if resubmitted.RejectionReason != "" {
		t.Error("rejection reason survived resubmission")
	}
}

func TestSubmitManualPaymentErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "meera@college.test", 1)

	_, err := env.payments.SubmitManualPayment(ctx, reg.ID, ManualPaymentInput{Screenshot: pngHeader})
	wantKind(t, err, KindMissingPaymentProof)

	_, err = env.payments.SubmitManualPayment(ctx, reg.ID, ManualPaymentInput{UPITransactionID: "UTR12345678"})
	wantKind(t, err, KindMissingPaymentProof)

	_, err = env.payments.SubmitManualPayment(ctx, reg.ID, ManualPaymentInput{UPITransactionID: "UTR-1", Screenshot: pngHeader})
	wantKind(t, err, KindValidationFailed)

	_, err = env.payments.SubmitManualPayment(ctx, reg.ID, ManualPaymentInput{
		UPITransactionID: "UTR12345678", Screenshot: []byte("definitely not an image"),
	})
	wantKind(t, err, KindValidationFailed)

	_, err = env.payments.SubmitManualPayment(ctx, "missing", ManualPaymentInput{UPITransactionID: "UTR12345678", Screenshot: pngHeader})
	wantKind(t, err, KindRegistrationNotFound)

	env.submit(t, reg.ID, "UTR12345678")
	_, err = env.payments.SubmitManualPayment(ctx, reg.ID, ManualPaymentInput{UPITransactionID: "UTR87654321", Screenshot: pngHeader})
	wantKind(t, err, KindAlreadySubmitted)

	other := env.register(t, "kiran@college.test", 1)
	_, err = env.payments.SubmitManualPayment(ctx, other.ID, ManualPaymentInput{UPITransactionID: "utr12345678", Screenshot: pngHeader})
	wantKind(t, err, KindDuplicateTransactionID)
}

func TestGroupMembersRequiredBeforeSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.payments.CreateRegistration(ctx, RegistrationInput{
		Name: "Group Lead", Email: "lead@college.test", Phone: "+919876543210",
		TicketQuantity: 4, GroupMembers: members(2),
	})
	if err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}

	_, err = env.payments.SubmitManualPayment(ctx, reg.ID, ManualPaymentInput{UPITransactionID: nextUTR(), Screenshot: pngHeader})
	wantKind(t, err, KindIncompleteGroupDetails)

	_, err = env.payments.UpdateGroupMembers(ctx, reg.ID, members(5))
	wantKind(t, err, KindIncompleteGroupDetails)

	updated, err := env.payments.UpdateGroupMembers(ctx, reg.ID, members(4))
	if err != nil {
		t.Fatalf("UpdateGroupMembers: %v", err)
	}
	if len(updated.GroupMembers) != 4 || updated.GroupMembers[3].Position != 4 {
		t.Fatalf("members = %+v", updated.GroupMembers)
	}

	env.submit(t, reg.ID, nextUTR())
	_, err = env.payments.UpdateGroupMembers(ctx, reg.ID, members(4))
	wantKind(t, err, KindInvalidStatusTransition)
}

func TestConcurrentApprovalsFinalizeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "race@college.test", 1)
	env.submit(t, reg.ID, nextUTR())

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		stale     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.payments.ApprovePayment(ctx, admin, reg.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch KindOf(err) {
			case "":
				successes++
			case KindStaleState:
				stale++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || stale != workers-1 {
		t.Fatalf("successes = %d stale = %d", successes, stale)
	}
	if n := len(env.notifier.messages()); n != 1 {
		t.Fatalf("ticket messages = %d, want 1", n)
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "gate@college.test", 1)
	env.submit(t, reg.ID, nextUTR())

	_, err := env.payments.ApprovePayment(ctx, scanner, reg.ID, "")
	wantKind(t, err, KindUnauthorized)
	_, err = env.payments.RejectPayment(ctx, scanner, reg.ID, "no")
	wantKind(t, err, KindUnauthorized)
	_, err = env.payments.ResendTicket(ctx, scanner, reg.ID)
	wantKind(t, err, KindUnauthorized)
	_, err = env.payments.ListRegistrations(ctx, scanner, "")
	wantKind(t, err, KindUnauthorized)
	_, err = env.payments.Stats(ctx, scanner)
	wantKind(t, err, KindUnauthorized)

	_, err = env.payments.ApprovePayment(ctx, admin, "missing", "")
	wantKind(t, err, KindRegistrationNotFound)
}

func TestDispatchFailureStaysVerified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "offline@college.test", 1)
	env.submit(t, reg.ID, nextUTR())

	env.notifier.setFailing(true)
	result, err := env.payments.ApprovePayment(ctx, admin, reg.ID, "")
	if err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if result.TicketDispatched {
		t.Fatal("dispatch reported despite failing notifier")
	}
	stuck := result.Registration
	if stuck.PaymentStatus != models.PaymentStatusVerified {
		t.Fatalf("status = %s, want verified", stuck.PaymentStatus)
	}
	if stuck.TicketNumber == nil || stuck.TicketDispatchError == "" {
		t.Fatalf("ticket = %v dispatchError = %q", stuck.TicketNumber, stuck.TicketDispatchError)
	}

	env.notifier.setFailing(false)
	retried, err := env.payments.FinalizeTickets(ctx, reg.ID)
	if err != nil {
		t.Fatalf("FinalizeTickets: %v", err)
	}
	done := retried.Registration
	if done.PaymentStatus != models.PaymentStatusCompleted || done.TicketDispatchError != "" {
		t.Fatalf("status = %s dispatchError = %q", done.PaymentStatus, done.TicketDispatchError)
	}
	if *done.TicketNumber != *stuck.TicketNumber {
		t.Fatalf("ticket changed on retry: %s -> %s", *stuck.TicketNumber, *done.TicketNumber)
	}
}

func TestResendTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := env.register(t, "later@college.test", 1)
	_, err := env.payments.ResendTicket(ctx, admin, pending.ID)
	wantKind(t, err, KindInvalidStatusTransition)

	reg := env.completed(t, "again@college.test", 1)
	result, err := env.payments.ResendTicket(ctx, admin, reg.ID)
	if err != nil {
		t.Fatalf("ResendTicket: %v", err)
	}
	if !result.TicketDispatched {
		t.Fatal("resend not dispatched")
	}
	if n := len(env.notifier.messages()); n != 2 {
		t.Fatalf("messages = %d, want 2", n)
	}
}

func TestGatewayCheckoutCapture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "online@college.test", 1)
	order, err := env.payments.CreateGatewayOrder(ctx, reg.ID)
	if err != nil {
		t.Fatalf("CreateGatewayOrder: %v", err)
	}
	if order.Amount != testBasePrice || order.Currency != "INR" {
		t.Fatalf("order = %+v", order)
	}
	again, err := env.payments.CreateGatewayOrder(ctx, reg.ID)
	if err != nil {
		t.Fatalf("CreateGatewayOrder again: %v", err)
	}
	if again.OrderID != order.OrderID {
		t.Fatalf("order not reused: %s vs %s", again.OrderID, order.OrderID)
	}

	_, err = env.payments.ConfirmGatewayPayment(ctx, order.OrderID, "pay_1", "forged")
	wantKind(t, err, KindSignatureInvalid)
	stored, _ := env.payments.GetRegistration(ctx, reg.ID)
	if stored.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("status after forged signature = %s", stored.PaymentStatus)
	}

	signature := SignPayment(testKeySecret, order.OrderID, "pay_1")
	result, err := env.payments.ConfirmGatewayPayment(ctx, order.OrderID, "pay_1", signature)
	if err != nil {
		t.Fatalf("ConfirmGatewayPayment: %v", err)
	}
	got := result.Registration
	if got.PaymentStatus != models.PaymentStatusCompleted || got.VerifiedBy != "gateway" {
		t.Fatalf("status = %s verifiedBy = %q", got.PaymentStatus, got.VerifiedBy)
	}
	if got.GatewayPaymentID == nil || *got.GatewayPaymentID != "pay_1" {
		t.Fatalf("gateway payment id = %v", got.GatewayPaymentID)
	}

	replay, err := env.payments.ConfirmGatewayPayment(ctx, order.OrderID, "pay_1", signature)
	if err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if *replay.Registration.TicketNumber != *got.TicketNumber {
		t.Fatal("replay changed the ticket number")
	}
	if n := len(env.notifier.messages()); n != 1 {
		t.Fatalf("ticket messages = %d, want 1", n)
	}
}

func TestGatewayGroupMembersFrozenAtCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "online-crew@college.test", 4)
	order, err := env.payments.CreateGatewayOrder(ctx, reg.ID)
	if err != nil {
		t.Fatalf("CreateGatewayOrder: %v", err)
	}
	if order.Amount != 4*testBasePrice {
		t.Fatalf("amount = %d", order.Amount)
	}

	_, err = env.payments.UpdateGroupMembers(ctx, reg.ID, nil)
	wantKind(t, err, KindInvalidStatusTransition)
	_, err = env.payments.UpdateGroupMembers(ctx, reg.ID, members(2))
	wantKind(t, err, KindInvalidStatusTransition)

	signature := SignPayment(testKeySecret, order.OrderID, "pay_crew")
	result, err := env.payments.ConfirmGatewayPayment(ctx, order.OrderID, "pay_crew", signature)
	if err != nil {
		t.Fatalf("ConfirmGatewayPayment: %v", err)
	}
	got := result.Registration
	if got.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("status = %s, want completed", got.PaymentStatus)
	}
	if len(got.GroupMembers) != 4 {
		t.Fatalf("members = %d, want 4", len(got.GroupMembers))
	}
	for _, m := range got.GroupMembers {
		if m.TicketNumber == nil {
			t.Fatalf("member %d has no ticket", m.Position)
		}
	}
	msgs := env.notifier.messages()
	if len(msgs) != 1 || len(msgs[0].Attachments) != 5 {
		t.Fatalf("ticket messages = %d", len(msgs))
	}
}

func TestGatewayOrderNeedsCompleteGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "short-crew@college.test", 4)
	if _, err := env.payments.UpdateGroupMembers(ctx, reg.ID, members(3)); err != nil {
		t.Fatalf("UpdateGroupMembers: %v", err)
	}
	_, err := env.payments.CreateGatewayOrder(ctx, reg.ID)
	wantKind(t, err, KindIncompleteGroupDetails)

	stored, _ := env.payments.GetRegistration(ctx, reg.ID)
	if stored.OrderID != nil {
		t.Fatalf("order recorded for incomplete group: %s", *stored.OrderID)
	}
}

func TestCaptureAfterFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "late@college.test", 1)
	order, err := env.payments.CreateGatewayOrder(ctx, reg.ID)
	if err != nil {
		t.Fatalf("CreateGatewayOrder: %v", err)
	}
	if _, err := env.payments.MarkPaymentFailed(ctx, reg.ID, "checkout timed out"); err != nil {
		t.Fatalf("MarkPaymentFailed: %v", err)
	}

	captured := webhookBody("payment.captured", order.OrderID, "pay_late")
	if err := env.payments.ProcessPaymentWebhook(ctx, captured); err != nil {
		t.Fatalf("captured webhook: %v", err)
	}
	stored, _ := env.payments.GetRegistration(ctx, reg.ID)
	if stored.PaymentStatus != models.PaymentStatusFailed {
		t.Fatalf("status = %s, want failed", stored.PaymentStatus)
	}
	if stored.GatewayPaymentID == nil || *stored.GatewayPaymentID != "pay_late" {
		t.Fatalf("gateway payment id = %v", stored.GatewayPaymentID)
	}
	if !strings.Contains(stored.FailureReason, "pay_late") {
		t.Fatalf("reason = %q", stored.FailureReason)
	}

	if _, err := env.payments.RetryPayment(ctx, reg.ID); err != nil {
		t.Fatalf("RetryPayment: %v", err)
	}
	if err := env.payments.ProcessPaymentWebhook(ctx, captured); err != nil {
		t.Fatalf("redelivered webhook: %v", err)
	}
	stored, _ = env.payments.GetRegistration(ctx, reg.ID)
	if stored.PaymentStatus != models.PaymentStatusCompleted || stored.FailureReason != "" {
		t.Fatalf("status = %s reason = %q", stored.PaymentStatus, stored.FailureReason)
	}
}

func TestCheckOrderStatusPollsGateway(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "poll@college.test", 1)
	order, err := env.payments.CreateGatewayOrder(ctx, reg.ID)
	if err != nil {
		t.Fatalf("CreateGatewayOrder: %v", err)
	}

	result, err := env.payments.CheckOrderStatus(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("CheckOrderStatus: %v", err)
	}
	if result.Registration.PaymentStatus != models.PaymentStatusPending || result.TicketDispatched {
		t.Fatalf("uncaptured order reported %s", result.Registration.PaymentStatus)
	}

	env.gateway.capture(order.OrderID, "pay_poll")
	result, err = env.payments.CheckOrderStatus(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("CheckOrderStatus after capture: %v", err)
	}
	if result.Registration.PaymentStatus != models.PaymentStatusCompleted || !result.TicketDispatched {
		t.Fatalf("status = %s", result.Registration.PaymentStatus)
	}

	_, err = env.payments.CheckOrderStatus(ctx, "order_unknown")
	wantKind(t, err, KindRegistrationNotFound)
}

func TestGatewayUnavailable(t *testing.T) {
	env := newTestEnv(t)
	payments := NewPaymentService(PaymentDeps{Store: env.store, Allocator: env.allocator, Mailer: env.mailer})

	reg := env.register(t, "upi-only@college.test", 1)
	_, err := payments.CreateGatewayOrder(context.Background(), reg.ID)
	wantKind(t, err, KindGatewayUnavailable)

	_, err = payments.ConfirmGatewayPayment(context.Background(), "order_1", "pay_1", "sig")
	wantKind(t, err, KindSignatureInvalid)
}

func webhookBody(event, orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":"captured","error_code":"BAD_REQUEST_ERROR","error_description":"card declined"}}},"created_at":1767225600}`,
		event, paymentID, orderID))
}

func TestPaymentWebhook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	paid := env.register(t, "hook@college.test", 1)
	order, err := env.payments.CreateGatewayOrder(ctx, paid.ID)
	if err != nil {
		t.Fatalf("CreateGatewayOrder: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.payments.ProcessPaymentWebhook(ctx, webhookBody("payment.captured", order.OrderID, "pay_hook")); err != nil {
			t.Fatalf("captured webhook #%d: %v", i+1, err)
		}
	}
	stored, _ := env.payments.GetRegistration(ctx, paid.ID)
	if stored.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("status = %s, want completed", stored.PaymentStatus)
	}

	// A late failure event cannot undo a capture.
	if err := env.payments.ProcessPaymentWebhook(ctx, webhookBody("payment.failed", order.OrderID, "pay_hook")); err != nil {
		t.Fatalf("late failure webhook: %v", err)
	}
	stored, _ = env.payments.GetRegistration(ctx, paid.ID)
	if stored.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("status after late failure = %s", stored.PaymentStatus)
	}

	failed := env.register(t, "declined@college.test", 1)
	order, err = env.payments.CreateGatewayOrder(ctx, failed.ID)
	if err != nil {
		t.Fatalf("CreateGatewayOrder: %v", err)
	}
	if err := env.payments.ProcessPaymentWebhook(ctx, webhookBody("payment.failed", order.OrderID, "pay_x")); err != nil {
		t.Fatalf("failed webhook: %v", err)
	}
	stored, _ = env.payments.GetRegistration(ctx, failed.ID)
	if stored.PaymentStatus != models.PaymentStatusFailed || !strings.Contains(stored.FailureReason, "card declined") {
		t.Fatalf("status = %s reason = %q", stored.PaymentStatus, stored.FailureReason)
	}

	if err := env.payments.ProcessPaymentWebhook(ctx, []byte("{")); KindOf(err) != KindValidationFailed {
		t.Fatalf("malformed webhook error = %v", err)
	}
	if err := env.payments.ProcessPaymentWebhook(ctx, webhookBody("refund.created", "order_x", "pay_x")); err != nil {
		t.Fatalf("unhandled event: %v", err)
	}
}

func TestFailAndRetryPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "retry@college.test", 1)

	owner := auth.Actor{Subject: reg.ID, Role: auth.RoleRegistrant}
	_, err := env.payments.UpdatePaymentStatus(ctx, auth.Actor{}, reg.ID, models.PaymentStatusFailed, "")
	wantKind(t, err, KindUnauthorized)
	_, err = env.payments.UpdatePaymentStatus(ctx, auth.Actor{Subject: "someone-else", Role: auth.RoleRegistrant}, reg.ID, models.PaymentStatusFailed, "")
	wantKind(t, err, KindUnauthorized)
	_, err = env.payments.UpdatePaymentStatus(ctx, scanner, reg.ID, models.PaymentStatusFailed, "")
	wantKind(t, err, KindUnauthorized)

	failed, err := env.payments.UpdatePaymentStatus(ctx, owner, reg.ID, models.PaymentStatusFailed, "checkout closed")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed.PaymentStatus != models.PaymentStatusFailed || failed.FailureReason != "checkout closed" {
		t.Fatalf("status = %s reason = %q", failed.PaymentStatus, failed.FailureReason)
	}

	_, err = env.payments.SubmitManualPayment(ctx, reg.ID, ManualPaymentInput{UPITransactionID: nextUTR(), Screenshot: pngHeader})
	wantKind(t, err, KindAlreadySubmitted)

	retried, err := env.payments.UpdatePaymentStatus(ctx, admin, reg.ID, models.PaymentStatusPending, "")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("status = %s, want pending", retried.PaymentStatus)
	}

	_, err = env.payments.UpdatePaymentStatus(ctx, owner, reg.ID, models.PaymentStatusCompleted, "")
	wantKind(t, err, KindInvalidStatusTransition)

	done := env.completed(t, "done@college.test", 1)
	_, err = env.payments.MarkPaymentFailed(ctx, done.ID, "")
	wantKind(t, err, KindInvalidStatusTransition)
}

func TestListRegistrationsAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "one@college.test", 1)
	env.completed(t, "two@college.test", 4)

	pending, err := env.payments.ListRegistrations(ctx, admin, models.PaymentStatusPending)
	if err != nil {
		t.Fatalf("ListRegistrations: %v", err)
	}
	if len(pending) != 1 || pending[0].Email != "one@college.test" {
		t.Fatalf("pending = %d", len(pending))
	}

	all, err := env.payments.ListRegistrations(ctx, admin, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("all = %d err = %v", len(all), err)
	}

	_, err = env.payments.ListRegistrations(ctx, admin, "refunded")
	wantKind(t, err, KindValidationFailed)

	stats, err := env.payments.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Registrations != 2 || stats.TicketsIssued != 5 || stats.RevenueVerified != 4*testBasePrice {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestStoreErrorsTranslate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.payments.GetRegistration(context.Background(), "nope")
	wantKind(t, err, KindRegistrationNotFound)
	if !errors.Is(err, ErrRegistrationNotFound) {
		t.Fatal("errors.Is does not match the sentinel")
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Fatal("storage error leaked through")
	}
}
