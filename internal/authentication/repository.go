package authentication

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRecordNotFound   = errors.New("refresh token record not found")
	ErrStoreUnavailable = errors.New("refresh token store unavailable")
)

// RecordRepository persists refresh tokens by their SHA-256 digest, one record per user.
type RecordRepository interface {
	// Store creates the record for userID, replacing any existing one.
	Store(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error
	// Find returns the record only when both userID and tokenHash match.
	Find(ctx context.Context, userID uint, tokenHash string) (*RefreshTokenRecord, error)
	// Update rotates the stored token of an existing record.
	Update(ctx context.Context, userID uint, newTokenHash string, expiresAt time.Time) error
	// Remove deletes the record holding tokenHash.
	Remove(ctx context.Context, tokenHash string) error
}

// HashToken returns the hex SHA-256 digest under which a refresh token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Store(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	rec := &RefreshTokenRecord{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "updated_at"}),
		}).
		Create(rec).
		Error
	if err != nil {
		return fmt.Errorf("%w: store: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *recordRepository) Find(ctx context.Context, userID uint, tokenHash string) (*RefreshTokenRecord, error) {
	var rec RefreshTokenRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		First(&rec).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find: %v", ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (r *recordRepository) Update(ctx context.Context, userID uint, newTokenHash string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&RefreshTokenRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"token_hash": newTokenHash,
			"expires_at": expiresAt,
		})
	if res.Error != nil {
		return fmt.Errorf("%w: update: %v", ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *recordRepository) Remove(ctx context.Context, tokenHash string) error {
	res := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		Delete(&RefreshTokenRecord{})
	if res.Error != nil {
		return fmt.Errorf("%w: remove: %v", ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
