package models

import "time"

// PaymentStatus is the payment state of a registration.
type PaymentStatus string

const (
	PaymentStatusPending                  PaymentStatus = "pending"
	PaymentStatusPaidAwaitingVerification PaymentStatus = "paid_awaiting_verification"
	PaymentStatusVerified                 PaymentStatus = "verified"
	PaymentStatusCompleted                PaymentStatus = "completed"
	PaymentStatusFailed                   PaymentStatus = "failed"
)

// IsPaid reports whether the payment has been confirmed, either by an admin
// or by the gateway.
func (s PaymentStatus) IsPaid() bool {
	return s == PaymentStatusVerified || s == PaymentStatusCompleted
}

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaidAwaitingVerification,
		PaymentStatusVerified, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// Payment methods
const (
	PaymentMethodGateway = "gateway"
	PaymentMethodUPI     = "upi"
)

// Registration is one attendee's (or one group's) record. Amounts are in
// minor currency units.
type Registration struct {
	ID string `json:"id" gorm:"primaryKey;type:varchar(36)"`

	// Identity
	Name    string `json:"name" gorm:"not null"`
	Email   string `json:"email" gorm:"uniqueIndex;not null"`
	Phone   string `json:"phone"`
	College string `json:"college"`
	Year    string `json:"year"`

	// Payment
	PaymentStatus PaymentStatus `json:"paymentStatus" gorm:"type:varchar(32);index;not null"`
	PaymentMethod string        `json:"paymentMethod,omitempty"`

	Amount                int64 `json:"amount"`
	OriginalAmount        int64 `json:"originalAmount"`
	FriendDiscountApplied int64 `json:"friendDiscountApplied"`
	TotalAmount           int64 `json:"totalAmount"`

	// Group booking
	IsGroupBooking bool          `json:"isGroupBooking"`
	TicketQuantity int           `json:"ticketQuantity"`
	GroupMembers   []GroupMember `json:"groupMembers" gorm:"foreignKey:RegistrationID;constraint:OnDelete:CASCADE"`

	// Friend referral
	IsFriendReferral bool    `json:"isFriendReferral"`
	ReferrerID       *string `json:"referrerId,omitempty" gorm:"index"`
	ReferralUsed     bool    `json:"referralUsed"`

	TicketNumber *string `json:"ticketNumber,omitempty" gorm:"uniqueIndex"`

	// Gateway path
	OrderID          *string `json:"orderId,omitempty" gorm:"uniqueIndex"`
	GatewayPaymentID *string `json:"gatewayPaymentId,omitempty"`

	// Manual UPI path
	UPITransactionID   *string    `json:"upiTransactionId,omitempty" gorm:"column:upi_transaction_id;uniqueIndex"`
	PaymentScreenshot  string     `json:"paymentScreenshot,omitempty"`
	PaymentSubmittedAt *time.Time `json:"paymentSubmittedAt,omitempty"`

	// Admin review
	VerificationNotes string     `json:"verificationNotes,omitempty"`
	VerifiedBy        string     `json:"verifiedBy,omitempty"`
	VerifiedAt        *time.Time `json:"verifiedAt,omitempty"`
	RejectionReason   string     `json:"rejectionReason,omitempty"`
	RejectedAt        *time.Time `json:"rejectedAt,omitempty"`
	FailureReason     string     `json:"failureReason,omitempty"`

	// Ticket dispatch
	TicketSentAt        *time.Time `json:"ticketSentAt,omitempty"`
	TicketDispatchError string     `json:"ticketDispatchError,omitempty"`

	Entries []Entry `json:"entries" gorm:"foreignKey:RegistrationID;constraint:OnDelete:CASCADE"`

	// Version is bumped on every successful write; the database store uses it
	// for optimistic concurrency.
	Version int `json:"-" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GroupMember is one seat of a group booking other than the primary registrant.
type GroupMember struct {
	ID             uint    `json:"-" gorm:"primaryKey"`
	RegistrationID string  `json:"-" gorm:"type:varchar(36);index;not null"`
	Position       int     `json:"position" gorm:"not null"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	College        string  `json:"college"`
	Year           string  `json:"year"`
	TicketNumber   *string `json:"ticketNumber,omitempty" gorm:"uniqueIndex"`
}

// FreeSeats is the number of bonus seats earned by the paid quantity.
func (r *Registration) FreeSeats() int {
	if r.TicketQuantity < 1 {
		return 0
	}
	return r.TicketQuantity / 4
}

// TotalSeats is paid plus bonus seats.
func (r *Registration) TotalSeats() int {
	return r.TicketQuantity + r.FreeSeats()
}

// HasAllTickets reports whether the primary and every member hold a ticket number.
func (r *Registration) HasAllTickets() bool {
	if r.TicketNumber == nil {
		return false
	}
	for _, m := range r.GroupMembers {
		if m.TicketNumber == nil {
			return false
		}
	}
	return true
}

// EntryFor returns the admission record for a ticket and day, if any.
func (r *Registration) EntryFor(ticketNumber string, day int) *Entry {
	for i := range r.Entries {
		if r.Entries[i].TicketNumber == ticketNumber && r.Entries[i].Day == day {
			return &r.Entries[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	c := *r
	c.ReferrerID = cloneString(r.ReferrerID)
	c.TicketNumber = cloneString(r.TicketNumber)
	c.OrderID = cloneString(r.OrderID)
	c.GatewayPaymentID = cloneString(r.GatewayPaymentID)
	c.UPITransactionID = cloneString(r.UPITransactionID)
	c.PaymentSubmittedAt = cloneTime(r.PaymentSubmittedAt)
	c.VerifiedAt = cloneTime(r.VerifiedAt)
	c.RejectedAt = cloneTime(r.RejectedAt)
	c.TicketSentAt = cloneTime(r.TicketSentAt)

	if r.GroupMembers != nil {
		c.GroupMembers = make([]GroupMember, len(r.GroupMembers))
		for i, m := range r.GroupMembers {
			m.TicketNumber = cloneString(m.TicketNumber)
			c.GroupMembers[i] = m
		}
	}
	if r.Entries != nil {
		c.Entries = make([]Entry, len(r.Entries))
		for i, e := range r.Entries {
			e.MemberPosition = cloneInt(e.MemberPosition)
			c.Entries[i] = e
		}
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
