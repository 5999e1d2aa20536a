package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoToken is returned by a Store when nothing has been persisted yet.
var ErrNoToken = errors.New("no token stored")

// Store persists the current token pair. Implementations must tolerate
// concurrent callers; the record is a single shared mutable resource.
type Store interface {
	// Load returns the last-saved record or ErrNoToken.
	Load(ctx context.Context) (*Record, error)

	// Save overwrites the stored record with the given pair.
	Save(ctx context.Context, rec *Record) error

	// Clear removes the stored record.
	Clear(ctx context.Context) error
}

// FileStore is a JSON-file-backed Store, the default for a single
// logged-in user. Writes go through a temp file + rename so a crash
// mid-write never leaves a truncated token file behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = &FileStore{}

// NewFileStore creates a store at the given path, creating parent
// directories as needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(_ context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoToken
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	if rec.AccessToken == "" {
		return nil, ErrNoToken
	}
	return &rec, nil
}

func (s *FileStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
