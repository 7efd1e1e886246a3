package repository

import (
	"context"
	"fmt"

	"github.com/and161185/docdesk/internal/crypto/clientcrypto"
)

// Sealed encrypts values before handing them to the wrapped repository.
// Each value is bound to its key, so swapping records between keys fails to open.
type Sealed struct {
	inner  StateRepository
	master []byte
}

var _ StateRepository = (*Sealed)(nil)

// NewSealed wraps inner with at-rest encryption under master.
func NewSealed(inner StateRepository, master []byte) *Sealed {
	return &Sealed{inner: inner, master: append([]byte(nil), master...)}
}

// Get opens the stored value.
func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	pt, err := clientcrypto.OpenEntry(s.master, key, sealed)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return pt, nil
}

// Put seals and stores value.
func (s *Sealed) Put(ctx context.Context, key string, value []byte) error {
	sealed, err := clientcrypto.SealEntry(s.master, key, value)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.inner.Put(ctx, key, sealed)
}

// Delete passes through.
func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
