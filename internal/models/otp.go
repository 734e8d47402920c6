package models

import (
	"time"
)

// OTPChallenge is the live one-time code for an email. There is at most one
// per email; issuing a new challenge replaces the previous one.
type OTPChallenge struct {
	Email       string     `gorm:"primaryKey;type:varchar(255)"`
	ChallengeID string     `gorm:"type:varchar(36);not null"`
	Code        string     `gorm:"not null"`
	Purpose     string     `gorm:"not null"` // "friend_referral"
	ExpiresAt   time.Time  `gorm:"not null"`
	Consumed    bool       `gorm:"default:false"`
	VerifiedAt  *time.Time
	Attempts    int `gorm:"default:0"`
	CreatedAt   time.Time
}

// Expired reports whether the challenge is past its TTL at t.
func (o *OTPChallenge) Expired(t time.Time) bool {
	return !t.Before(o.ExpiresAt)
}

const OTPPurposeFriendReferral = "friend_referral"
