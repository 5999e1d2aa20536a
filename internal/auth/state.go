package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStateNotFound means the callback carried a state this server never
// issued, or one that already expired or was consumed.
var ErrStateNotFound = errors.New("unknown or expired oauth state")

// PendingLogin correlates an outgoing authorization redirect with the
// incoming callback. It lives server-side until consumed or expired.
type PendingLogin struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// StateStore holds pending logins. Consume is one-shot: a state can never
// authorize two callbacks.
type StateStore interface {
	Issue(ctx context.Context, login PendingLogin) error
	Consume(ctx context.Context, state string) (*PendingLogin, error)
}

// MemoryStateStore is the default single-process StateStore.
type MemoryStateStore struct {
	mu     sync.Mutex
	logins map[string]PendingLogin
	now    func() time.Time
}

var _ StateStore = &MemoryStateStore{}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		logins: make(map[string]PendingLogin),
		now:    time.Now,
	}
}

func (s *MemoryStateStore) Issue(_ context.Context, login PendingLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.logins[login.State] = login
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (*PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	login, ok := s.logins[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(s.logins, state)
	if s.now().After(login.ExpiresAt) {
		return nil, ErrStateNotFound
	}
	return &login, nil
}

// sweepLocked drops expired entries so abandoned logins do not accumulate.
func (s *MemoryStateStore) sweepLocked() {
	now := s.now()
	for k, v := range s.logins {
		if now.After(v.ExpiresAt) {
			delete(s.logins, k)
		}
	}
}
