// Package memory provides an in-process StateRepository for tests and ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/repository"
)

// StateRepo is a map-backed StateRepository safe for concurrent use.
type StateRepo struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ repository.StateRepository = (*StateRepo)(nil)

// NewStateRepo returns an empty repository.
func NewStateRepo() *StateRepo {
	return &StateRepo{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (r *StateRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value.
func (r *StateRepo) Put(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key if present.
func (r *StateRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

// Len reports the number of stored keys.
func (r *StateRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
