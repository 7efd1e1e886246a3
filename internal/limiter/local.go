package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/repository"
)

// Local is a limiter persisted in the client state repository, with a
// fixed failure window opened by the first failure and a lockout. It survives restarts of the client.
type Local struct {
	repo     repository.StateRepository
	clk      clock.Clock
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

var _ Limiter = (*Local)(nil)

type record struct {
	Fails        int       `json:"fails"`
	WindowStart  time.Time `json:"window_start"`
	BlockedUntil time.Time `json:"blocked_until"`
}

// NewLocal constructs a repository-backed limiter. A nil clock means wall time.
func NewLocal(repo repository.StateRepository, clk clock.Clock, window time.Duration, maxFails int, blockFor time.Duration) *Local {
	if clk == nil {
		clk = clock.New()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxFails <= 0 {
		maxFails = DefaultMaxFails
	}
	if blockFor <= 0 {
		blockFor = DefaultBlockFor
	}
	return &Local{repo: repo, clk: clk, window: window, maxFails: maxFails, blockFor: blockFor}
}

// HashUser returns a stable hash for a username so raw names never reach storage keys.
func HashUser(username string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(h[:])
}

func key(username string) string { return repository.KeyLimiterPrefix + HashUser(username) }

func (l *Local) load(ctx context.Context, username string) (record, bool, error) {
	b, err := l.repo.Get(ctx, key(username))
	if errors.Is(err, errs.ErrNotFound) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, err
	}
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		// unreadable record: start over
		return record{}, false, nil
	}
	return r, true, nil
}

func (l *Local) save(ctx context.Context, username string, r record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return l.repo.Put(ctx, key(username), b)
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Local) Allow(ctx context.Context, username string) (bool, time.Duration, error) {
	r, ok, err := l.load(ctx, username)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return true, 0, nil
	}
	now := l.clk.Now()
	if r.BlockedUntil.After(now) {
		return false, r.BlockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for username.
func (l *Local) Success(ctx context.Context, username string) error {
	return l.repo.Delete(ctx, key(username))
}

// Failure records a failed attempt; may set a block until a future time.
func (l *Local) Failure(ctx context.Context, username string) (bool, time.Duration, error) {
	r, _, err := l.load(ctx, username)
	if err != nil {
		return false, 0, err
	}
	now := l.clk.Now()
	if r.WindowStart.IsZero() || now.Sub(r.WindowStart) > l.window {
		r.WindowStart = now
		r.Fails = 0
	}
	r.Fails++

	blocked := r.Fails >= l.maxFails
	if blocked {
		r.BlockedUntil = now.Add(l.blockFor)
		r.Fails = 0
		r.WindowStart = time.Time{}
	}
	if err := l.save(ctx, username, r); err != nil {
		return false, 0, err
	}
	if blocked {
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
