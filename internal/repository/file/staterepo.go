// Package file stores client state as one file per key under a private directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/and161185/docdesk/internal/crypto/clientcrypto"
	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/repository"
)

const (
	keyFile  = "key.bin"
	saltFile = "salt.bin"
	ext      = ".state"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// StateRepo implements repository.StateRepository on the local filesystem.
type StateRepo struct{ dir string }

var _ repository.StateRepository = (*StateRepo)(nil)

// NewStateRepo ensures dir exists with owner-only permissions.
func NewStateRepo(dir string) (*StateRepo, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &StateRepo{dir: dir}, nil
}

// Dir returns the state directory.
func (r *StateRepo) Dir() string { return r.dir }

func (r *StateRepo) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", errs.Invalid("key", fmt.Sprintf("invalid state key %q", key))
	}
	return filepath.Join(r.dir, key+ext), nil
}

// Get reads the value for key.
func (r *StateRepo) Get(_ context.Context, key string) ([]byte, error) {
	p, err := r.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.ErrNotFound
	}
	return b, err
}

// Put writes value atomically (temp file + rename).
func (r *StateRepo) Put(_ context.Context, key string, value []byte) error {
	p, err := r.path(key)
	if err != nil {
		return err
	}
	return writeAtomic(p, value)
}

// Delete removes the file for key; a missing file is fine.
func (r *StateRepo) Delete(_ context.Context, key string) error {
	p, err := r.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MasterKey returns the sealing key for dir. With a passphrase the key is
// derived from it and a persisted salt; otherwise a random key file is used.
func MasterKey(dir string, passphrase []byte) ([]byte, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if len(passphrase) > 0 {
		salt, err := loadOrCreate(filepath.Join(dir, saltFile), clientcrypto.SaltLen)
		if err != nil {
			return nil, fmt.Errorf("state salt: %w", err)
		}
		return clientcrypto.DeriveMasterKey(passphrase, salt), nil
	}
	key, err := loadOrCreate(filepath.Join(dir, keyFile), clientcrypto.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("state key: %w", err)
	}
	return key, nil
}

func loadOrCreate(path string, n int) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != n {
			return nil, fmt.Errorf("%s: want %d bytes, got %d", filepath.Base(path), n, len(b))
		}
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	b, err = clientcrypto.Rand(n)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
