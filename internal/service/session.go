package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/internal/convert"
	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/gateway"
	"github.com/and161185/docdesk/internal/limiter"
	"github.com/and161185/docdesk/internal/model"
	"github.com/and161185/docdesk/internal/repository"
)

// DefaultTokenTTL is assumed when a token carries no expiry.
const DefaultTokenTTL = 30 * time.Minute

type storedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Session owns the current token and user identity. It implements gateway.Credentials.
type Session struct {
	api    Backend
	repo   repository.StateRepository
	lim    limiter.Limiter
	notify Notifier
	log    *zap.Logger
	clk    clock.Clock

	mu        sync.Mutex
	cur       model.Session
	listeners []func(model.Session)
}

var _ gateway.Credentials = (*Session)(nil)

// NewSession constructs the session store. lim may be nil to disable local lockout.
func NewSession(api Backend, repo repository.StateRepository, lim limiter.Limiter, n Notifier, log *zap.Logger, clk clock.Clock) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Session{api: api, repo: repo, lim: lim, notify: notifierOrNop(n), log: log, clk: clk}
}

// Snapshot returns a copy of the current session.
func (s *Session) Snapshot() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() model.Session {
	cp := s.cur
	if s.cur.User != nil {
		u := *s.cur.User
		cp.User = &u
	}
	return cp
}

// Subscribe registers fn to receive a snapshot after every change.
func (s *Session) Subscribe(fn func(model.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) publish(snap model.Session) {
	s.mu.Lock()
	ls := append(([]func(model.Session))(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(snap)
	}
}

// Current implements gateway.Credentials.
func (s *Session) Current() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Token, s.cur.Epoch
}

// Expire implements gateway.Credentials. A stale epoch is ignored so a 401
// for a replaced token never logs out its successor.
func (s *Session) Expire(epoch uint64) {
	s.mu.Lock()
	if s.cur.Token == "" || s.cur.Epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.cur = model.Session{Epoch: s.cur.Epoch + 1}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.Delete(ctx, repository.KeySessionToken); err != nil {
		s.log.Warn("drop persisted token", zap.Error(err))
	}
	s.log.Info("session expired", zap.Uint64("epoch", epoch))
	s.notify.Notify(Notification{Level: LevelWarn, Message: errs.MsgSessionExpired})
	s.publish(snap)
}

// Restore reloads a persisted token. Expired or unreadable tokens are discarded.
func (s *Session) Restore(ctx context.Context) (model.Session, error) {
	raw, err := s.repo.Get(ctx, repository.KeySessionToken)
	if errors.Is(err, errs.ErrNotFound) {
		return s.Snapshot(), nil
	}
	if err != nil {
		s.log.Warn("read persisted token", zap.Error(err))
		s.discard(ctx)
		return s.Snapshot(), nil
	}

	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil || st.AccessToken == "" {
		s.discard(ctx)
		return s.Snapshot(), nil
	}
	exp := st.ExpiresAt
	if jwtExp, ok := tokenExpiry(st.AccessToken); ok {
		exp = jwtExp
	}
	if !exp.IsZero() && !s.clk.Now().Before(exp) {
		s.log.Info("persisted token expired")
		s.discard(ctx)
		return s.Snapshot(), nil
	}

	s.mu.Lock()
	s.cur = model.Session{Token: st.AccessToken, ExpiresAt: exp, Epoch: s.cur.Epoch + 1}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return snap, nil
}

func (s *Session) discard(ctx context.Context) {
	if err := s.repo.Delete(ctx, repository.KeySessionToken); err != nil {
		s.log.Warn("drop persisted token", zap.Error(err))
	}
}

// Login exchanges credentials for a token and makes it the live session.
// A failed attempt leaves the existing session untouched.
func (s *Session) Login(ctx context.Context, username, password string) (model.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.Session{}, errs.Invalid("username", "username is required")
	}
	if password == "" {
		return model.Session{}, errs.Invalid("password", "password is required")
	}

	if s.lim != nil {
		ok, retry, err := s.lim.Allow(ctx, username)
		switch {
		case err != nil:
			s.log.Warn("login limiter", zap.Error(err))
		case !ok:
			return model.Session{}, fmt.Errorf("%w: %w", errs.ErrRateLimited, &errs.ValidationError{
				Reason: fmt.Sprintf("too many failed attempts, try again in %s", retry.Round(time.Second)),
			})
		}
	}

	tok, err := s.api.Exchange(ctx, username, password)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) && s.lim != nil {
			if blocked, _, lerr := s.lim.Failure(ctx, username); lerr != nil {
				s.log.Warn("login limiter", zap.Error(lerr))
			} else if blocked {
				s.log.Info("login locked", zap.String("user_hash", limiter.HashUser(username)))
			}
		}
		return model.Session{}, err
	}
	if s.lim != nil {
		if err := s.lim.Success(ctx, username); err != nil {
			s.log.Warn("login limiter", zap.Error(err))
		}
	}

	exp, ok := tokenExpiry(tok.AccessToken)
	if !ok {
		exp = tok.Expiry
	}
	if exp.IsZero() {
		exp = s.clk.Now().Add(DefaultTokenTTL)
	}
	if b, err := json.Marshal(storedToken{AccessToken: tok.AccessToken, ExpiresAt: exp}); err == nil {
		if err := s.repo.Put(ctx, repository.KeySessionToken, b); err != nil {
			s.log.Warn("persist token", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.cur = model.Session{Token: tok.AccessToken, ExpiresAt: exp, Epoch: s.cur.Epoch + 1}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.log.Info("logged in", zap.Uint64("epoch", snap.Epoch))
	s.publish(snap)

	if _, err := s.Profile(ctx); err != nil {
		Report(s.notify, "profile", err)
	}
	return s.Snapshot(), nil
}

// Logout clears the live and persisted token. Calling it twice is harmless.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	had := s.cur.Token != ""
	if had {
		s.cur = model.Session{Epoch: s.cur.Epoch + 1}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, repository.KeySessionToken); err != nil {
		return fmt.Errorf("drop persisted token: %w", err)
	}
	if had {
		s.publish(snap)
	}
	return nil
}

// Profile refetches the authenticated user and stores it on the session.
func (s *Session) Profile(ctx context.Context) (model.UserProfile, error) {
	_, epoch := s.Current()
	var u convert.User
	if err := s.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/users/me"}, &u); err != nil {
		return model.UserProfile{}, err
	}
	p := convert.ToProfile(u)

	s.mu.Lock()
	if s.cur.Epoch != epoch || s.cur.Token == "" {
		s.mu.Unlock()
		return p, nil
	}
	s.cur.User = &p
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
	return p, nil
}

// Register validates and submits a new account.
func (s *Session) Register(ctx context.Context, r model.Registration) error {
	if err := ValidateRegistration(r); err != nil {
		return err
	}
	return s.api.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/users/",
		Body:   convert.FromRegistration(r),
		NoAuth: true,
	}, nil)
}

// ValidateRegistration checks a registration before any network call.
func ValidateRegistration(r model.Registration) error {
	r.Username = strings.TrimSpace(r.Username)
	roles := make([]any, 0, len(model.Roles))
	for _, role := range model.Roles {
		roles = append(roles, role)
	}
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required.Error("username is required")),
		validation.Field(&r.Password,
			validation.Required.Error("password is required"),
			validation.RuneLength(6, 0).Error("password must be at least 6 characters")),
		validation.Field(&r.Confirm, validation.By(func(v any) error {
			if c, _ := v.(string); c != r.Password {
				return errors.New("passwords do not match")
			}
			return nil
		})),
		validation.Field(&r.Role,
			validation.Required.Error("role is required"),
			validation.In(roles...).Error("unknown role")),
	)
	return firstInvalid(err, "Username", "Password", "Confirm", "Role")
}

// firstInvalid maps ozzo field errors onto a single ValidationError, in field order.
func firstInvalid(err error, order ...string) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if !errors.As(err, &fields) {
		return err
	}
	for _, name := range order {
		if ferr, ok := fields[name]; ok && ferr != nil {
			return errs.Invalid(strings.ToLower(name), ferr.Error())
		}
	}
	for name, ferr := range fields {
		return errs.Invalid(strings.ToLower(name), ferr.Error())
	}
	return nil
}

// tokenExpiry reads "exp" from a JWT without verifying it.
func tokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
