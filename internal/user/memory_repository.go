package user

import (
	"context"
	"sync"
	"time"
)

// memoryRepository keeps users in process memory. Used for local runs and tests.
type memoryRepository struct {
	mu      sync.RWMutex
	nextID  uint
	byID    map[uint]*User
	byEmail map[string]uint
}

func NewMemoryRepository() UserRepository {
	return &memoryRepository{
		byID:    make(map[uint]*User),
		byEmail: make(map[string]uint),
	}
}

func (m *memoryRepository) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[user.Email]; exists {
		return ErrEmailAlreadyExists
	}
	m.nextID++
	now := time.Now().UTC()
	user.ID = m.nextID
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	m.byID[cp.ID] = &cp
	m.byEmail[cp.Email] = cp.ID
	return nil
}

func (m *memoryRepository) ReadByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *memoryRepository) ReadByID(_ context.Context, id uint) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
