package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Ananth-NQI/eventpass-backend/internal/auth"
	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
	"github.com/Ananth-NQI/eventpass-backend/internal/utils"
)

// AdmissionOutcome is the result of confirming an entry.
type AdmissionOutcome string

const (
	OutcomeAdmitted       AdmissionOutcome = "Admitted"
	OutcomeDuplicateEntry AdmissionOutcome = "DuplicateEntry"
)

// Attendee is what gate staff see about a ticket holder.
type Attendee struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	College        string  `json:"college,omitempty"`
	Year           string  `json:"year,omitempty"`
	RegistrationID string  `json:"registrationId"`
	PaymentStatus  string  `json:"paymentStatus"`
	IsGroupMember  bool    `json:"isGroupMember"`
	MemberPosition *int    `json:"memberRef,omitempty"`
	PrimaryName    string  `json:"primaryName,omitempty"`
	TicketNumber   string  `json:"ticketNumber"`
	IsFriendTicket bool    `json:"isFriendReferral"`
	Phone          *string `json:"phone,omitempty"`
}

// TicketCheck is the side-effect free result of scanning a ticket.
type TicketCheck struct {
	TicketNumber   string        `json:"ticketNumber"`
	Day            int           `json:"eventDay"`
	Attendee       Attendee      `json:"attendee"`
	AlreadyEntered bool          `json:"alreadyEntered"`
	Entry          *models.Entry `json:"entry,omitempty"`
}

// AdmissionResult is the result of confirming entry. DuplicateEntry carries
// the original entry timestamp.
type AdmissionResult struct {
	Outcome        AdmissionOutcome `json:"outcome"`
	TicketNumber   string           `json:"ticketNumber"`
	Day            int              `json:"eventDay"`
	Attendee       Attendee         `json:"attendee"`
	EntryTimestamp time.Time        `json:"entryTimestamp"`
	ScannedBy      string           `json:"scannedBy,omitempty"`
}

// AdmissionService admits each ticket at most once per event day.
type AdmissionService struct {
	store     storage.Store
	eventDays int
}

// NewAdmissionService creates the gate admission controller
func NewAdmissionService(store storage.Store, eventDays int) *AdmissionService {
	return &AdmissionService{store: store, eventDays: eventDays}
}

func (s *AdmissionService) checkDay(day int) error {
	if day < 1 || day > s.eventDays {
		return fieldError(KindInvalidEventDay, "eventDay", "event day must be between 1 and %d", s.eventDays)
	}
	return nil
}

func (s *AdmissionService) resolve(ctx context.Context, ticketNumber string) (*models.TicketHolder, error) {
	holder, err := s.store.FindTicket(ctx, ticketNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fieldError(KindUnknownTicket, "ticketNumber", "ticket %s does not exist", ticketNumber)
	}
	if err != nil {
		return nil, err
	}
	if !holder.Registration.PaymentStatus.IsPaid() {
		return nil, fieldError(KindTicketNotActive, "ticketNumber",
			"ticket %s is not active (payment %s)", ticketNumber, holder.Registration.PaymentStatus)
	}
	return holder, nil
}

func attendeeFor(holder *models.TicketHolder, ticketNumber string) Attendee {
	reg := holder.Registration
	a := Attendee{
		Name:           reg.Name,
		Email:          reg.Email,
		College:        reg.College,
		Year:           reg.Year,
		RegistrationID: reg.ID,
		PaymentStatus:  string(reg.PaymentStatus),
		TicketNumber:   ticketNumber,
		IsFriendTicket: reg.IsFriendReferral,
		Phone:          models.StringPtr(reg.Phone),
	}
	if member := holder.Member(); member != nil {
		pos := member.Position
		a.Name = member.Name
		a.Email = member.Email
		a.College = member.College
		a.Year = member.Year
		a.IsGroupMember = true
		a.MemberPosition = &pos
		a.PrimaryName = reg.Name
		a.Phone = nil
	}
	return a
}

// VerifyTicket decodes a QR payload and reports the holder and any entry
// already recorded for day. It never writes.
func (s *AdmissionService) VerifyTicket(ctx context.Context, actor auth.Actor, qrData string, day int) (*TicketCheck, error) {
	if !actor.CanScanTickets() {
		return nil, newError(KindUnauthorized, "scanner access required")
	}
	ticketNumber, err := utils.DecodeTicketPayload(qrData)
	if err != nil {
		return nil, fieldError(KindUnknownTicket, "qrData", "QR code is not a ticket: %v", err)
	}
	if err := s.checkDay(day); err != nil {
		return nil, err
	}

	holder, err := s.resolve(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}

	check := &TicketCheck{
		TicketNumber: ticketNumber,
		Day:          day,
		Attendee:     attendeeFor(holder, ticketNumber),
	}
	if entry := holder.Registration.EntryFor(ticketNumber, day); entry != nil {
		e := *entry
		check.AlreadyEntered = true
		check.Entry = &e
	}
	return check, nil
}

// ConfirmEntry records admission for (ticket, day) if none exists. Concurrent
// scans of the same ticket and day produce exactly one Admitted.
func (s *AdmissionService) ConfirmEntry(ctx context.Context, actor auth.Actor, ticketNumber string, day int) (*AdmissionResult, error) {
	if !actor.CanScanTickets() {
		return nil, newError(KindUnauthorized, "scanner access required")
	}
	ticketNumber, err := utils.DecodeTicketPayload(ticketNumber)
	if err != nil {
		return nil, fieldError(KindUnknownTicket, "ticketNumber", "ticket number is required")
	}
	if err := s.checkDay(day); err != nil {
		return nil, err
	}

	holder, err := s.resolve(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}

	entry, inserted, err := s.store.AppendEntryIfAbsent(ctx, &models.Entry{
		RegistrationID: holder.Registration.ID,
		TicketNumber:   ticketNumber,
		Day:            day,
		MemberPosition: holder.MemberPosition,
		ScannedBy:      actor.Subject,
	})
	if err != nil {
		return nil, err
	}

	result := &AdmissionResult{
		Outcome:        OutcomeAdmitted,
		TicketNumber:   ticketNumber,
		Day:            day,
		Attendee:       attendeeFor(holder, ticketNumber),
		EntryTimestamp: entry.EntryTimestamp,
		ScannedBy:      entry.ScannedBy,
	}
	if !inserted {
		result.Outcome = OutcomeDuplicateEntry
		log.Printf("ℹ️  %s already entered day %d at %s", ticketNumber, day, entry.EntryTimestamp.Format(time.Kitchen))
		return result, nil
	}

	log.Printf("🚪 %s admitted for day %d by %s", ticketNumber, day, actor.Subject)
	return result, nil
}
