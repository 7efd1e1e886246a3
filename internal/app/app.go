// Package app assembles the client: state store, backend gateway, session,
// document cache, searcher and uploader.
package app

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/internal/config"
	"github.com/and161185/docdesk/internal/gateway"
	"github.com/and161185/docdesk/internal/limiter"
	"github.com/and161185/docdesk/internal/migrate"
	"github.com/and161185/docdesk/internal/repository"
	"github.com/and161185/docdesk/internal/repository/file"
	"github.com/and161185/docdesk/internal/repository/postgres"
	"github.com/and161185/docdesk/internal/service"
)

// Options override collaborators, mostly for tests.
type Options struct {
	Logger    *zap.Logger
	Clock     clock.Clock
	Transport http.RoundTripper
	Repo      repository.StateRepository
}

// App is the wired client.
type App struct {
	Config   config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Registry *prometheus.Registry

	Gateway  *gateway.Client
	Repo     repository.StateRepository
	Session  *service.Session
	Docs     *service.Documents
	Searcher *service.Searcher
	Uploader *service.Uploader

	hub     *hub
	closers []func()
}

// New wires every component from cfg and restores a persisted session.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &App{
		Config:   cfg,
		Log:      opts.Logger,
		Clock:    opts.Clock,
		Registry: prometheus.NewRegistry(),
		hub:      &hub{},
	}
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	if a.Clock == nil {
		a.Clock = clock.New()
	}
	a.Registry.MustRegister(collectors.NewGoCollector())

	repo := opts.Repo
	if repo == nil {
		var err error
		if repo, err = a.openRepo(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Repo = repo

	rt := opts.Transport
	if rt == nil {
		var err error
		if rt, err = transport(cfg.CACert, cfg.Insecure); err != nil {
			a.Close()
			return nil, fmt.Errorf("tls: %w", err)
		}
	}
	gw, err := gateway.New(gateway.Config{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RPS:       cfg.RPS,
		Burst:     cfg.Burst,
		Logger:    a.Log.Named("gateway"),
		Registry:  a.Registry,
		Transport: rt,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gw

	lim := limiter.NewLocal(repo, a.Clock, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	a.Session = service.NewSession(gw, repo, lim, a.hub, a.Log.Named("session"), a.Clock)
	gw.UseCredentials(a.Session)
	a.Docs = service.NewDocuments(gw, a.Log.Named("documents"), a.Clock, cfg.ListLimit)
	a.Searcher = service.NewSearcher(gw, a.Docs, a.Session, a.hub, a.Log.Named("search"), a.Clock,
		cfg.SearchDebounce, cfg.SearchMinLength, cfg.SearchLimit)
	a.closers = append(a.closers, a.Searcher.Close)
	a.Uploader = service.NewUploader(gw, a.Docs, a.Session, a.hub, a.Log.Named("upload"), a.Clock)

	if _, err := a.Session.Restore(ctx); err != nil {
		a.Log.Warn("restore session", zap.Error(err))
	}
	return a, nil
}

func (a *App) openRepo(ctx context.Context) (repository.StateRepository, error) {
	cfg := a.Config
	var inner repository.StateRepository
	if cfg.StateDSN != "" {
		version, err := migrate.Up(ctx, cfg.StateDSN, a.Log)
		if err != nil {
			return nil, fmt.Errorf("migrate state db: %w", err)
		}
		db, err := postgres.New(ctx, cfg.StateDSN)
		if err != nil {
			return nil, fmt.Errorf("open state db: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		inner = postgres.NewStateRepo(db, cfg.StateProfile)
		a.Log.Debug("state store", zap.String("kind", "postgres"), zap.String("profile", cfg.StateProfile), zap.Int64("schema", version))
	} else {
		fs, err := file.NewStateRepo(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		inner = fs
		a.Log.Debug("state store", zap.String("kind", "file"), zap.String("dir", fs.Dir()))
	}
	key, err := file.MasterKey(cfg.StateDir, []byte(cfg.Passphrase))
	if err != nil {
		return nil, err
	}
	return repository.NewSealed(inner, key), nil
}

// transport returns an HTTP transport trusting caPath, or skipping verification when insecure.
func transport(caPath string, insecure bool) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in flag
		return base, nil
	}
	if caPath == "" {
		return base, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	base.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return base, nil
}

// Subscribe registers fn for user-facing notifications from every component.
func (a *App) Subscribe(fn func(service.Notification)) { a.hub.add(fn) }

// Notifier returns the shared notification hub.
func (a *App) Notifier() service.Notifier { return a.hub }

// MetricsHandler exposes the app registry in the Prometheus text format.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// ServeMetrics serves /metrics on addr until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()
	a.Log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

type hub struct {
	mu  sync.Mutex
	fns []func(service.Notification)
}

func (h *hub) add(fn func(service.Notification)) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *hub) Notify(n service.Notification) {
	h.mu.Lock()
	fns := append(([]func(service.Notification))(nil), h.fns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}
