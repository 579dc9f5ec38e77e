// Package state persists incremental cursor high-water marks between runs.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relloyd/sunglass-etl/rdbms/shared"
)

// Key identifies a cursor: one pipeline loading one table using one column.
type Key struct {
	Pipeline string
	Table    string
	Column   string
}

func (k Key) String() string {
	return fmt.Sprintf("%v/%v/%v", k.Pipeline, k.Table, k.Column)
}

// Mark is a stored high-water mark. Value is the text form of the cursor value (see schema.FormatValue).
type Mark struct {
	Value     string
	UpdatedAt time.Time
}

// Store abstracts the state backend.
type Store interface {
	Get(ctx context.Context, key Key) (Mark, bool, error)
	Set(ctx context.Context, key Key, value string) error
	Close() error
}

// TxStore is a Store that can write as part of a warehouse transaction, so data and marks commit together.
type TxStore interface {
	Store
	InTx(exec shared.Execer) Store
}

// InMemoryStore is a simple thread-safe map store, used by tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[Key]Mark
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[Key]Mark)}
}

func (s *InMemoryStore) Get(_ context.Context, key Key) (Mark, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[key]
	return m, ok, nil
}

func (s *InMemoryStore) Set(_ context.Context, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Mark{Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
