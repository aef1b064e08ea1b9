package authentication

import (
	"time"
)

// RefreshTokenRecord holds the currently valid refresh token of a user. At most one record
// exists per user: storing a new token supersedes the previous one.
type RefreshTokenRecord struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"uniqueIndex;not null"`
	TokenHash string    `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
