package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
	"github.com/Ananth-NQI/eventpass-backend/internal/storage"
	"github.com/Ananth-NQI/eventpass-backend/internal/utils"
)

// Pricing holds per-seat prices in minor currency units.
type Pricing struct {
	BasePrice   int64
	FriendPrice int64
	Currency    string
	MaxQuantity int
}

// BookingRequest is the input to a price quote.
type BookingRequest struct {
	TicketQuantity   int  `json:"ticketQuantity"`
	IsFriendReferral bool `json:"isFriendReferral"`
}

// Quote is the computed price and seat layout for a booking.
type Quote struct {
	TicketQuantity        int    `json:"ticketQuantity"`
	FreeSeats             int    `json:"freeSeats"`
	TotalSeats            int    `json:"totalSeats"`
	RequiredMembers       int    `json:"requiredMembers"`
	IsGroupBooking        bool   `json:"isGroupBooking"`
	Amount                int64  `json:"amount"`
	OriginalAmount        int64  `json:"originalAmount"`
	FriendDiscountApplied int64  `json:"friendDiscountApplied"`
	TotalAmount           int64  `json:"totalAmount"`
	Currency              string `json:"currency"`
}

// Allocator prices bookings and assigns ticket numbers once payment is confirmed.
type Allocator struct {
	store    storage.Store
	pricing  Pricing
	prefix   string
	attempts int

	generate func(prefix string) (string, error)
}

// NewAllocator creates a ticket allocator
func NewAllocator(store storage.Store, pricing Pricing, prefix string, attempts int) *Allocator {
	if attempts < 1 {
		attempts = 1
	}
	return &Allocator{
		store:    store,
		pricing:  pricing,
		prefix:   strings.ToUpper(prefix),
		attempts: attempts,
		generate: utils.GenerateTicketNumber,
	}
}

// Pricing returns the configured prices.
func (a *Allocator) Pricing() Pricing {
	return a.pricing
}

// Quote computes seats and price. Friend referrals are always a single
// seat at the discounted rate.
func (a *Allocator) Quote(req BookingRequest) (*Quote, error) {
	q := req.TicketQuantity
	if q < 1 {
		return nil, fieldError(KindInvalidQuantity, "ticketQuantity", "ticket quantity must be at least 1")
	}
	if a.pricing.MaxQuantity > 0 && q > a.pricing.MaxQuantity {
		return nil, fieldError(KindInvalidQuantity, "ticketQuantity", "ticket quantity cannot exceed %d", a.pricing.MaxQuantity)
	}

	if req.IsFriendReferral {
		if q != 1 {
			return nil, fieldError(KindInvalidQuantity, "ticketQuantity", "friend referral bookings are single seat")
		}
		return &Quote{
			TicketQuantity:        1,
			TotalSeats:            1,
			Amount:                a.pricing.FriendPrice,
			OriginalAmount:        a.pricing.BasePrice,
			FriendDiscountApplied: a.pricing.BasePrice - a.pricing.FriendPrice,
			TotalAmount:           a.pricing.FriendPrice,
			Currency:              a.pricing.Currency,
		}, nil
	}

	free := q / 4
	amount := int64(q) * a.pricing.BasePrice
	return &Quote{
		TicketQuantity:  q,
		FreeSeats:       free,
		TotalSeats:      q + free,
		RequiredMembers: q + free - 1,
		IsGroupBooking:  q > 1,
		Amount:          amount,
		OriginalAmount:  amount,
		TotalAmount:     amount,
		Currency:        a.pricing.Currency,
	}, nil
}

// CheckGroupDetails verifies the member list fills every seat but the primary's.
func (a *Allocator) CheckGroupDetails(reg *models.Registration) error {
	required := reg.TotalSeats() - 1
	if required < 0 {
		required = 0
	}
	if len(reg.GroupMembers) != required {
		return fieldError(KindIncompleteGroupDetails, "groupMembers",
			"%d group member(s) required, %d provided", required, len(reg.GroupMembers))
	}
	for i, m := range reg.GroupMembers {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Email) == "" {
			return fieldError(KindIncompleteGroupDetails, "groupMembers",
				"member %d is missing a name or email", i+1)
		}
	}
	return nil
}

// AllocateTickets assigns ticket numbers to the primary and every member
// still lacking one. Collisions are retried with fresh numbers.
func (a *Allocator) AllocateTickets(ctx context.Context, reg *models.Registration) (*models.Registration, error) {
	if reg.HasAllTickets() {
		return reg, nil
	}

	for attempt := 1; attempt <= a.attempts; attempt++ {
		assignment, err := a.buildAssignment(reg)
		if err != nil {
			return nil, err
		}

		updated, err := a.store.AssignTicketNumbers(ctx, reg.ID, reg.PaymentStatus, assignment)
		if err == nil {
			log.Printf("🎟️  Assigned %d ticket(s) to registration %s", len(assignment.Numbers()), reg.ID)
			return updated, nil
		}

		if errors.Is(err, storage.ErrDuplicateKey) {
			log.Printf("⚠️  Ticket number collision for %s (attempt %d/%d)", reg.ID, attempt, a.attempts)
			continue
		}
		if errors.Is(err, storage.ErrStaleState) {
			// Another finalizer may have assigned them first.
			current, getErr := a.store.GetRegistration(ctx, reg.ID)
			if getErr == nil && current.HasAllTickets() {
				return current, nil
			}
			return nil, newError(KindStaleState, "registration changed while assigning tickets")
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(KindRegistrationNotFound, "registration %s not found", reg.ID)
		}
		return nil, err
	}

	return nil, newError(KindTicketAllocationExhausted, "could not allocate unique ticket numbers after %d attempts", a.attempts)
}

func (a *Allocator) buildAssignment(reg *models.Registration) (models.TicketAssignment, error) {
	assignment := models.TicketAssignment{Members: make(map[int]string)}
	used := make(map[string]bool)

	next := func() (string, error) {
		for i := 0; i < 16; i++ {
			n, err := a.generate(a.prefix)
			if err != nil {
				return "", err
			}
			if !used[n] {
				used[n] = true
				return n, nil
			}
		}
		return "", newError(KindTicketAllocationExhausted, "ticket number generator keeps repeating itself")
	}

	if reg.TicketNumber == nil {
		n, err := next()
		if err != nil {
			return assignment, err
		}
		assignment.Primary = n
	}
	for _, m := range reg.GroupMembers {
		if m.TicketNumber != nil {
			continue
		}
		n, err := next()
		if err != nil {
			return assignment, err
		}
		assignment.Members[m.Position] = n
	}
	return assignment, nil
}
