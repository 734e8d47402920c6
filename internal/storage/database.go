package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/eventpass-backend/internal/models"
)

// DatabaseStore implements Store on gorm. Conditional writes are expressed as
// UPDATE ... WHERE payment_status = ? AND version = ? and judged by
// RowsAffected; uniqueness is enforced by indexes.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store over an open gorm connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Models lists every table the store needs migrated.
func Models() []interface{} {
	return []interface{}{
		&models.Registration{},
		&models.GroupMember{},
		&models.Ticket{},
		&models.Entry{},
		&models.OTPChallenge{},
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &DuplicateKeyError{Field: uniqueField(pgErr.ConstraintName + " " + pgErr.Detail)}
	}

	msg := err.Error()
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") {
		return &DuplicateKeyError{Field: uniqueField(msg)}
	}
	return err
}

// uniqueField maps a constraint name or driver message to the API field name.
func uniqueField(source string) string {
	s := strings.ToLower(source)
	switch {
	case strings.Contains(s, "upi_transaction_id"):
		return "upiTransactionId"
	case strings.Contains(s, "order_id"):
		return "orderId"
	case strings.Contains(s, "entr"):
		return "entry"
	case strings.Contains(s, "ticket"):
		return "ticketNumber"
	case strings.Contains(s, "email"):
		return "email"
	}
	return "id"
}

func loadRegistration(tx *gorm.DB, query string, args ...interface{}) (*models.Registration, error) {
	var reg models.Registration
	err := tx.
		Preload("GroupMembers", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("entry_timestamp ASC") }).
		Where(query, args...).
		First(&reg).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &reg, nil
}

// Registration operations

func (s *DatabaseStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.Email = normalizeEmail(reg.Email)
	return translateError(s.db.WithContext(ctx).Create(reg).Error)
}

func (s *DatabaseStore) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	return loadRegistration(s.db.WithContext(ctx), "id = ?", id)
}

func (s *DatabaseStore) GetRegistrationByEmail(ctx context.Context, email string) (*models.Registration, error) {
	return loadRegistration(s.db.WithContext(ctx), "email = ?", normalizeEmail(email))
}

func (s *DatabaseStore) GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	return loadRegistration(s.db.WithContext(ctx), "order_id = ?", orderID)
}

func (s *DatabaseStore) ListRegistrations(ctx context.Context, status models.PaymentStatus) ([]*models.Registration, error) {
	query := s.db.WithContext(ctx).
		Preload("GroupMembers", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Entries").
		Order("created_at DESC")
	if status != "" {
		query = query.Where("payment_status = ?", status)
	}

	var regs []*models.Registration
	if err := query.Find(&regs).Error; err != nil {
		return nil, translateError(err)
	}
	return regs, nil
}

func (s *DatabaseStore) UpdateRegistrationIf(ctx context.Context, id string, expected models.PaymentStatus, mutate Mutation) (*models.Registration, error) {
	var updated *models.Registration

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadRegistration(tx, "id = ?", id)
		if err != nil {
			return err
		}
		if current.PaymentStatus != expected {
			return ErrStaleState
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.Email = current.Email
		next.TicketNumber = current.TicketNumber
		next.Entries = current.Entries
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now()

		result := tx.Model(next).
			Where("payment_status = ? AND version = ?", expected, current.Version).
			Select("*").
			Omit(clause.Associations, "id", "email", "ticket_number", "created_at").
			Updates(next)
		if result.Error != nil {
			return translateError(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		if !sameMembers(current.GroupMembers, next.GroupMembers) {
			if err := tx.Where("registration_id = ?", id).Delete(&models.GroupMember{}).Error; err != nil {
				return translateError(err)
			}
			for i := range next.GroupMembers {
				next.GroupMembers[i].ID = 0
				next.GroupMembers[i].RegistrationID = id
			}
			if len(next.GroupMembers) > 0 {
				if err := tx.Create(&next.GroupMembers).Error; err != nil {
					return translateError(err)
				}
			}
		}

		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func sameMembers(a, b []models.GroupMember) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Position != b[i].Position || a[i].Name != b[i].Name ||
			a[i].Email != b[i].Email || a[i].College != b[i].College ||
			a[i].Year != b[i].Year || !sameString(a[i].TicketNumber, b[i].TicketNumber) {
			return false
		}
	}
	return true
}

// Ticket operations

func (s *DatabaseStore) AssignTicketNumbers(ctx context.Context, id string, expected models.PaymentStatus, assignment models.TicketAssignment) (*models.Registration, error) {
	var updated *models.Registration

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadRegistration(tx, "id = ?", id)
		if err != nil {
			return err
		}
		if current.PaymentStatus != expected {
			return ErrStaleState
		}

		now := time.Now()
		var claims []models.Ticket
		if assignment.Primary != "" {
			claims = append(claims, models.Ticket{Number: assignment.Primary, RegistrationID: id, CreatedAt: now})
		}
		for position, number := range assignment.Members {
			pos := position
			claims = append(claims, models.Ticket{Number: number, RegistrationID: id, MemberPosition: &pos, CreatedAt: now})
		}
		if len(claims) == 0 {
			updated = current
			return nil
		}
		if err := tx.Create(&claims).Error; err != nil {
			return translateError(err)
		}

		updates := map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}
		query := tx.Model(&models.Registration{}).
			Where("id = ? AND payment_status = ? AND version = ?", id, expected, current.Version)
		if assignment.Primary != "" {
			updates["ticket_number"] = assignment.Primary
			query = query.Where("ticket_number IS NULL")
		}
		result := query.Updates(updates)
		if result.Error != nil {
			return translateError(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		for position, number := range assignment.Members {
			result := tx.Model(&models.GroupMember{}).
				Where("registration_id = ? AND position = ? AND ticket_number IS NULL", id, position).
				Update("ticket_number", number)
			if result.Error != nil {
				return translateError(result.Error)
			}
			if result.RowsAffected == 0 {
				return ErrStaleState
			}
		}

		updated, err = loadRegistration(tx, "id = ?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *DatabaseStore) FindTicket(ctx context.Context, number string) (*models.TicketHolder, error) {
	db := s.db.WithContext(ctx)

	var ticket models.Ticket
	if err := db.First(&ticket, "number = ?", number).Error; err != nil {
		return nil, translateError(err)
	}
	reg, err := loadRegistration(db, "id = ?", ticket.RegistrationID)
	if err != nil {
		return nil, err
	}
	return &models.TicketHolder{Registration: reg, MemberPosition: ticket.MemberPosition}, nil
}

// Admission operations

func (s *DatabaseStore) AppendEntryIfAbsent(ctx context.Context, entry *models.Entry) (*models.Entry, bool, error) {
	db := s.db.WithContext(ctx)

	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.EntryTimestamp.IsZero() {
		stored.EntryTimestamp = time.Now()
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&stored)
	if result.Error != nil {
		return nil, false, translateError(result.Error)
	}
	if result.RowsAffected == 1 {
		return &stored, true, nil
	}

	var existing models.Entry
	if err := db.First(&existing, "ticket_number = ? AND day = ?", entry.TicketNumber, entry.Day).Error; err != nil {
		return nil, false, translateError(err)
	}
	return &existing, false, nil
}

// Referral operations

func (s *DatabaseStore) CreateFriendRegistration(ctx context.Context, referrerID string, friend *models.Registration) error {
	if friend.ID == "" {
		friend.ID = uuid.NewString()
	}
	friend.Email = normalizeEmail(friend.Email)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paid := []string{string(models.PaymentStatusVerified), string(models.PaymentStatusCompleted)}
		result := tx.Model(&models.Registration{}).
			Where("id = ? AND referral_used = ? AND payment_status IN ?", referrerID, false, paid).
			Updates(map[string]interface{}{
				"referral_used": true,
				"version":       gorm.Expr("version + 1"),
				"updated_at":    time.Now(),
			})
		if result.Error != nil {
			return translateError(result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Registration{}).Where("id = ?", referrerID).Count(&count).Error; err != nil {
				return translateError(err)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStaleState
		}

		return translateError(tx.Create(friend).Error)
	})
}

// OTP operations

func (s *DatabaseStore) SaveOTPChallenge(ctx context.Context, challenge *models.OTPChallenge) error {
	c := *challenge
	c.Email = normalizeEmail(challenge.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			UpdateAll: true,
		}).
		Create(&c).Error
	return translateError(err)
}

func (s *DatabaseStore) GetOTPChallenge(ctx context.Context, email string) (*models.OTPChallenge, error) {
	var c models.OTPChallenge
	if err := s.db.WithContext(ctx).First(&c, "email = ?", normalizeEmail(email)).Error; err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (s *DatabaseStore) ConsumeOTPChallenge(ctx context.Context, email, challengeID string, at time.Time) error {
	db := s.db.WithContext(ctx)
	email = normalizeEmail(email)

	result := db.Model(&models.OTPChallenge{}).
		Where("email = ? AND challenge_id = ? AND consumed = ?", email, challengeID, false).
		Updates(map[string]interface{}{"consumed": true, "verified_at": at})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetOTPChallenge(ctx, email); err != nil {
			return err
		}
		return ErrStaleState
	}
	return nil
}

func (s *DatabaseStore) RecordOTPFailure(ctx context.Context, email, challengeID string) (int, error) {
	db := s.db.WithContext(ctx)
	email = normalizeEmail(email)

	result := db.Model(&models.OTPChallenge{}).
		Where("email = ? AND challenge_id = ?", email, challengeID).
		Update("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return 0, translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, ErrStaleState
	}

	c, err := s.GetOTPChallenge(ctx, email)
	if err != nil {
		return 0, err
	}
	return c.Attempts, nil
}

// Analytics operations

func (s *DatabaseStore) Stats(ctx context.Context) (*models.Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &models.Stats{
		ByPaymentStatus: make(map[models.PaymentStatus]int64),
		AdmissionsByDay: make(map[int]int64),
	}

	var statusRows []struct {
		PaymentStatus models.PaymentStatus
		Count         int64
	}
	if err := db.Model(&models.Registration{}).
		Select("payment_status, count(*) AS count").
		Group("payment_status").
		Scan(&statusRows).Error; err != nil {
		return nil, translateError(err)
	}
	for _, row := range statusRows {
		stats.ByPaymentStatus[row.PaymentStatus] = row.Count
		stats.Registrations += row.Count
	}

	var dayRows []struct {
		Day   int
		Count int64
	}
	if err := db.Model(&models.Entry{}).
		Select("day, count(*) AS count").
		Group("day").
		Scan(&dayRows).Error; err != nil {
		return nil, translateError(err)
	}
	for _, row := range dayRows {
		stats.AdmissionsByDay[row.Day] = row.Count
	}

	if err := db.Model(&models.Ticket{}).Count(&stats.TicketsIssued).Error; err != nil {
		return nil, translateError(err)
	}
	if err := db.Model(&models.Registration{}).Where("is_friend_referral = ?", true).Count(&stats.FriendReferrals).Error; err != nil {
		return nil, translateError(err)
	}

	paid := []string{string(models.PaymentStatusVerified), string(models.PaymentStatusCompleted)}
	if err := db.Model(&models.Registration{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("payment_status IN ?", paid).
		Scan(&stats.RevenueVerified).Error; err != nil {
		return nil, translateError(err)
	}
	return stats, nil
}
