package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
)

// MemoryStore holds all data in memory. Every operation runs under one
// mutex, which gives the same single-record atomicity the database store gets
// from conditional SQL. Records are copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	registrations map[string]*models.Registration
	byEmail       map[string]string
	byOrderID     map[string]string
	byUTR         map[string]string

	tickets map[string]models.Ticket
	entries map[string]models.Entry
	otps    map[string]*models.OTPChallenge

	now func() time.Time
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registrations: make(map[string]*models.Registration),
		byEmail:       make(map[string]string),
		byOrderID:     make(map[string]string),
		byUTR:         make(map[string]string),
		tickets:       make(map[string]models.Ticket),
		entries:       make(map[string]models.Entry),
		otps:          make(map[string]*models.OTPChallenge),
		now:           time.Now,
	}
}

func entryKey(ticketNumber string, day int) string {
	return fmt.Sprintf("%s|%d", ticketNumber, day)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Registration operations

func (m *MemoryStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(reg)
}

func (m *MemoryStore) insertLocked(reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if _, exists := m.registrations[reg.ID]; exists {
		return &DuplicateKeyError{Field: "id"}
	}
	email := normalizeEmail(reg.Email)
	if _, exists := m.byEmail[email]; exists {
		return &DuplicateKeyError{Field: "email"}
	}
	if reg.OrderID != nil {
		if _, exists := m.byOrderID[*reg.OrderID]; exists {
			return &DuplicateKeyError{Field: "orderId"}
		}
	}
	if reg.UPITransactionID != nil {
		if _, exists := m.byUTR[*reg.UPITransactionID]; exists {
			return &DuplicateKeyError{Field: "upiTransactionId"}
		}
	}

	now := m.now()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now
	for i := range reg.GroupMembers {
		reg.GroupMembers[i].RegistrationID = reg.ID
	}

	stored := reg.Clone()
	m.registrations[stored.ID] = stored
	m.byEmail[email] = stored.ID
	if stored.OrderID != nil {
		m.byOrderID[*stored.OrderID] = stored.ID
	}
	if stored.UPITransactionID != nil {
		m.byUTR[*stored.UPITransactionID] = stored.ID
	}
	return nil
}

func (m *MemoryStore) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, exists := m.registrations[id]
	if !exists {
		return nil, ErrNotFound
	}
	return reg.Clone(), nil
}

func (m *MemoryStore) GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byEmail[normalizeEmail(email)]
	if !exists {
		return nil, ErrNotFound
	}
	return m.registrations[id].Clone(), nil
}

func (m *MemoryStore) GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byOrderID[orderID]
	if !exists {
		return nil, ErrNotFound
	}
	return m.registrations[id].Clone(), nil
}

func (m *MemoryStore) ListRegistrations(ctx context.Context, status models.PaymentStatus) ([]*models.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var regs []*models.Registration
	for _, reg := range m.registrations {
		if status != "" && reg.PaymentStatus != status {
			continue
		}
		regs = append(regs, reg.Clone())
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].CreatedAt.After(regs[j].CreatedAt)
	})
	return regs, nil
}

func (m *MemoryStore) UpdateRegistrationIf(ctx context.Context, id string, expected models.PaymentStatus, mutate Mutation) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.registrations[id]
	if !exists {
		return nil, ErrNotFound
	}
	if current.PaymentStatus != expected {
		return nil, ErrStaleState
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	// Identity of the document, its tickets and its admissions are owned by
	// other operations.
	next.ID = current.ID
	next.Email = current.Email
	next.TicketNumber = current.TicketNumber
	next.Entries = current.Clone().Entries
	for i := range next.GroupMembers {
		next.GroupMembers[i].RegistrationID = current.ID
	}

	if next.OrderID != nil && !sameString(next.OrderID, current.OrderID) {
		if owner, taken := m.byOrderID[*next.OrderID]; taken && owner != id {
			return nil, &DuplicateKeyError{Field: "orderId"}
		}
	}
	if next.UPITransactionID != nil && !sameString(next.UPITransactionID, current.UPITransactionID) {
		if owner, taken := m.byUTR[*next.UPITransactionID]; taken && owner != id {
			return nil, &DuplicateKeyError{Field: "upiTransactionId"}
		}
	}

	if current.OrderID != nil && !sameString(next.OrderID, current.OrderID) {
		delete(m.byOrderID, *current.OrderID)
	}
	if next.OrderID != nil {
		m.byOrderID[*next.OrderID] = id
	}
	if current.UPITransactionID != nil && !sameString(next.UPITransactionID, current.UPITransactionID) {
		delete(m.byUTR, *current.UPITransactionID)
	}
	if next.UPITransactionID != nil {
		m.byUTR[*next.UPITransactionID] = id
	}

	next.Version = current.Version + 1
	next.UpdatedAt = m.now()
	m.registrations[id] = next
	return next.Clone(), nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Ticket operations

func (m *MemoryStore) AssignTicketNumbers(ctx context.Context, id string, expected models.PaymentStatus, assignment models.TicketAssignment) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.registrations[id]
	if !exists {
		return nil, ErrNotFound
	}
	if current.PaymentStatus != expected {
		return nil, ErrStaleState
	}

	seen := make(map[string]bool)
	for _, number := range assignment.Numbers() {
		if _, taken := m.tickets[number]; taken || seen[number] {
			return nil, &DuplicateKeyError{Field: "ticketNumber"}
		}
		seen[number] = true
	}

	next := current.Clone()
	now := m.now()
	var claims []models.Ticket

	if assignment.Primary != "" {
		if next.TicketNumber != nil {
			return nil, ErrStaleState
		}
		number := assignment.Primary
		next.TicketNumber = &number
		claims = append(claims, models.Ticket{Number: number, RegistrationID: id, CreatedAt: now})
	}
	for position, number := range assignment.Members {
		idx := memberIndex(next, position)
		if idx < 0 {
			return nil, fmt.Errorf("registration %s has no member at position %d", id, position)
		}
		if next.GroupMembers[idx].TicketNumber != nil {
			return nil, ErrStaleState
		}
		n := number
		next.GroupMembers[idx].TicketNumber = &n
		pos := position
		claims = append(claims, models.Ticket{Number: n, RegistrationID: id, MemberPosition: &pos, CreatedAt: now})
	}

	for _, claim := range claims {
		m.tickets[claim.Number] = claim
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
	m.registrations[id] = next
	return next.Clone(), nil
}

func memberIndex(reg *models.Registration, position int) int {
	for i := range reg.GroupMembers {
		if reg.GroupMembers[i].Position == position {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) FindTicket(ctx context.Context, number string) (*models.TicketHolder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ticket, exists := m.tickets[number]
	if !exists {
		return nil, ErrNotFound
	}
	reg, exists := m.registrations[ticket.RegistrationID]
	if !exists {
		return nil, ErrNotFound
	}
	holder := &models.TicketHolder{Registration: reg.Clone()}
	if ticket.MemberPosition != nil {
		pos := *ticket.MemberPosition
		holder.MemberPosition = &pos
	}
	return holder, nil
}

// Admission operations

func (m *MemoryStore) AppendEntryIfAbsent(ctx context.Context, entry *models.Entry) (*models.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey(entry.TicketNumber, entry.Day)
	if existing, exists := m.entries[key]; exists {
		e := existing
		return &e, false, nil
	}

	reg, exists := m.registrations[entry.RegistrationID]
	if !exists {
		return nil, false, ErrNotFound
	}

	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.EntryTimestamp.IsZero() {
		stored.EntryTimestamp = m.now()
	}
	m.entries[key] = stored
	reg.Entries = append(reg.Entries, stored)

	e := stored
	return &e, true, nil
}

// Referral operations

func (m *MemoryStore) CreateFriendRegistration(ctx context.Context, referrerID string, friend *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	referrer, exists := m.registrations[referrerID]
	if !exists {
		return ErrNotFound
	}
	if !referrer.PaymentStatus.IsPaid() || referrer.ReferralUsed {
		return ErrStaleState
	}
	if _, taken := m.byEmail[normalizeEmail(friend.Email)]; taken {
		return &DuplicateKeyError{Field: "email"}
	}

	if err := m.insertLocked(friend); err != nil {
		return err
	}

	next := referrer.Clone()
	next.ReferralUsed = true
	next.Version = referrer.Version + 1
	next.UpdatedAt = m.now()
	m.registrations[referrerID] = next
	return nil
}

// OTP operations

func (m *MemoryStore) SaveOTPChallenge(ctx context.Context, challenge *models.OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *challenge
	c.Email = normalizeEmail(challenge.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.otps[c.Email] = &c
	return nil
}

func (m *MemoryStore) GetOTPChallenge(ctx context.Context, email string) (*models.OTPChallenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.otps[normalizeEmail(email)]
	if !exists {
		return nil, ErrNotFound
	}
	out := *c
	if c.VerifiedAt != nil {
		v := *c.VerifiedAt
		out.VerifiedAt = &v
	}
	return &out, nil
}

func (m *MemoryStore) ConsumeOTPChallenge(ctx context.Context, email, challengeID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.otps[normalizeEmail(email)]
	if !exists {
		return ErrNotFound
	}
	if c.ChallengeID != challengeID || c.Consumed {
		return ErrStaleState
	}
	c.Consumed = true
	c.VerifiedAt = &at
	return nil
}

func (m *MemoryStore) RecordOTPFailure(ctx context.Context, email, challengeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.otps[normalizeEmail(email)]
	if !exists {
		return 0, ErrNotFound
	}
	if c.ChallengeID != challengeID {
		return 0, ErrStaleState
	}
	c.Attempts++
	return c.Attempts, nil
}

// Analytics operations

func (m *MemoryStore) Stats(ctx context.Context) (*models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.Stats{
		ByPaymentStatus: make(map[models.PaymentStatus]int64),
		AdmissionsByDay: make(map[int]int64),
	}
	for _, reg := range m.registrations {
		stats.Registrations++
		stats.ByPaymentStatus[reg.PaymentStatus]++
		if reg.IsFriendReferral {
			stats.FriendReferrals++
		}
		if reg.PaymentStatus.IsPaid() {
			stats.RevenueVerified += reg.TotalAmount
		}
	}
	stats.TicketsIssued = int64(len(m.tickets))
	for _, e := range m.entries {
		stats.AdmissionsByDay[e.Day]++
	}
	return stats, nil
}
