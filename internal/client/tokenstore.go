package client

import "sync"

// TokenStore holds the current access token.
type TokenStore interface {
	AccessToken() string
	SetAccessToken(token string)
	Clear()
}

// MemoryTokenStore is a TokenStore safe for concurrent use.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryTokenStore) Clear() {
	s.SetAccessToken("")
}
