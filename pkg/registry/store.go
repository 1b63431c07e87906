package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Store is the handler registry backend. ListHandlers returns records in
// insertion order; that order is what the catalog builder shows the
// Supervisor, so implementations must preserve it.
type Store interface {
	ListHandlers(ctx context.Context) ([]HandlerRecord, error)
	PutHandler(ctx context.Context, rec HandlerRecord) error
}

// MemoryStore is an in-process Store used by tests and by `taskrouter
// dispatch` runs that have no sqlite path configured.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	rows  map[string]HandlerRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]HandlerRecord)}
}

// ListHandlers returns all records in insertion order.
func (s *MemoryStore) ListHandlers(_ context.Context) ([]HandlerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HandlerRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.rows[name])
	}
	return out, nil
}

// PutHandler inserts or replaces a record. Handler names are normalized by
// stripping spaces, mirroring how operator-entered names are stored.
func (s *MemoryStore) PutHandler(_ context.Context, rec HandlerRecord) error {
	rec.Name = NormalizeName(rec.Name)
	if rec.Name == "" {
		return fmt.Errorf("memory store: handler name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[rec.Name]; !exists {
		s.order = append(s.order, rec.Name)
	}
	s.rows[rec.Name] = rec
	return nil
}

// NormalizeName strips whitespace from an operator-entered handler name.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "")
}
