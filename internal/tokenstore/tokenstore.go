// Package tokenstore persists the backend bearer token between runs.
//
// The token lives in a small JSON document keyed by the header name the
// backend expects:
//
//	~/.config/aicacia/token.json
//	{"aicacia-api-token": "..."}
//
// Presence of the key is the client's only notion of "maybe signed in";
// whether the token is still valid is decided by the backend.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Key is the storage key and the request header carrying the token.
const Key = "aicacia-api-token"

// ErrCorrupted is returned when the token file is not valid JSON.
var ErrCorrupted = errors.New("token file corrupted")

// Store reads and writes the persisted token.
type Store interface {
	// Get returns the token and whether one is present.
	Get() (string, bool)
	Set(token string) error
	Remove() error
}

// FileStore keeps the token in a JSON file with owner-only permissions.
type FileStore struct {
	mu   sync.RWMutex
	path string
	data map[string]string
}

// NewFileStore opens the token file at path, creating its directory.
// A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("token path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	s := &FileStore{path: path, data: make(map[string]string)}
	if err := s.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// Path returns the token file location.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the stored token.
func (s *FileStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.data[Key]
	return tok, ok && tok != ""
}

// Set stores token, replacing any previous value.
func (s *FileStore) Set(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[Key] = token
	return s.save()
}

// Remove deletes the token. Removing an absent token is not an error.
func (s *FileStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[Key]; !ok {
		return nil
	}
	delete(s.data, Key)
	return s.save()
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if m != nil {
		s.data = m
	}
	return nil
}

// save writes the file atomically via a temp file and rename.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename token file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store holding token (empty means absent).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) Set(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
