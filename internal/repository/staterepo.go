// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "context"

// Well-known state keys.
const (
	// KeySessionToken holds the persisted session token.
	KeySessionToken = "session_token"
	// KeyLimiterPrefix prefixes per-user login limiter records.
	KeyLimiterPrefix = "login_limiter."
)

// StateRepository is the key-value persistence capability for client state.
type StateRepository interface {
	// Get returns the value stored under key or errs.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
