package models

import "time"

// Ticket claims a ticket number globally. The primary key is the uniqueness
// guarantee for ticket numbers across registrations and group members.
type Ticket struct {
	Number         string    `json:"number" gorm:"primaryKey;type:varchar(64)"`
	RegistrationID string    `json:"registrationId" gorm:"type:varchar(36);index;not null"`
	MemberPosition *int      `json:"memberPosition,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Entry is one admission record. At most one exists per (ticket number, day).
type Entry struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RegistrationID string    `json:"-" gorm:"type:varchar(36);index;not null"`
	TicketNumber   string    `json:"ticketNumber" gorm:"type:varchar(64);not null;uniqueIndex:idx_entry_ticket_day"`
	Day            int       `json:"day" gorm:"not null;uniqueIndex:idx_entry_ticket_day"`
	MemberPosition *int      `json:"memberRef"`
	EntryTimestamp time.Time `json:"entryTimestamp"`
	ScannedBy      string    `json:"scannedBy,omitempty"`
}

// TicketAssignment carries the ticket numbers to stamp on a registration.
// Members is keyed by member position.
type TicketAssignment struct {
	Primary string
	Members map[int]string
}

// Numbers lists every ticket number in the assignment.
func (a TicketAssignment) Numbers() []string {
	numbers := make([]string, 0, len(a.Members)+1)
	if a.Primary != "" {
		numbers = append(numbers, a.Primary)
	}
	for _, n := range a.Members {
		numbers = append(numbers, n)
	}
	return numbers
}

// TicketHolder is the result of resolving a ticket number.
type TicketHolder struct {
	Registration   *Registration
	MemberPosition *int
}

// Member returns the group member holding the ticket, or nil for the primary.
func (h *TicketHolder) Member() *GroupMember {
	if h.MemberPosition == nil || h.Registration == nil {
		return nil
	}
	for i := range h.Registration.GroupMembers {
		if h.Registration.GroupMembers[i].Position == *h.MemberPosition {
			return &h.Registration.GroupMembers[i]
		}
	}
	return nil
}
