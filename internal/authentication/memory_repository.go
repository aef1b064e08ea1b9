package authentication

import (
	"context"
	"sync"
	"time"
)

type memoryRecordRepository struct {
	mu      sync.Mutex
	nextID  uint
	byUser  map[uint]*RefreshTokenRecord
	byToken map[string]uint
}

// NewMemoryRecordRepository returns a process-local RecordRepository.
func NewMemoryRecordRepository() RecordRepository {
	return &memoryRecordRepository{
		byUser:  make(map[uint]*RefreshTokenRecord),
		byToken: make(map[string]uint),
	}
}

func (m *memoryRecordRepository) Store(_ context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if rec, ok := m.byUser[userID]; ok {
		delete(m.byToken, rec.TokenHash)
		rec.TokenHash = tokenHash
		rec.ExpiresAt = expiresAt
		rec.UpdatedAt = now
		m.byToken[tokenHash] = userID
		return nil
	}

	m.nextID++
	m.byUser[userID] = &RefreshTokenRecord{
		ID:        m.nextID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byToken[tokenHash] = userID
	return nil
}

func (m *memoryRecordRepository) Find(_ context.Context, userID uint, tokenHash string) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byUser[userID]
	if !ok || rec.TokenHash != tokenHash {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryRecordRepository) Update(_ context.Context, userID uint, newTokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byUser[userID]
	if !ok {
		return ErrRecordNotFound
	}
	delete(m.byToken, rec.TokenHash)
	rec.TokenHash = newTokenHash
	rec.ExpiresAt = expiresAt
	rec.UpdatedAt = time.Now().UTC()
	m.byToken[newTokenHash] = userID
	return nil
}

func (m *memoryRecordRepository) Remove(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.byToken[tokenHash]
	if !ok {
		return ErrRecordNotFound
	}
	delete(m.byToken, tokenHash)
	delete(m.byUser, userID)
	return nil
}
