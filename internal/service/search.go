package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/internal/convert"
	"github.com/and161185/docdesk/internal/gateway"
	"github.com/and161185/docdesk/internal/model"
)

// Search defaults.
const (
	DefaultDebounce       = 500 * time.Millisecond
	DefaultMinQueryLength = 3
)

// epochSource reports the live session epoch.
type epochSource interface {
	Current() (token string, epoch uint64)
}

// Searcher debounces query input and dispatches semantic search. Only the
// latest dispatch may change the rendered view.
type Searcher struct {
	api    Backend
	docs   *Documents
	sess   epochSource
	notify Notifier
	log    *zap.Logger
	clk    clock.Clock

	delay  time.Duration
	minLen int
	limit  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   *clock.Timer
	gen     uint64 // debounce generation
	seq     uint64 // dispatch sequence
	pending string
}

// NewSearcher constructs a dispatcher. Zero delay or minLen take the defaults.
func NewSearcher(api Backend, docs *Documents, sess epochSource, n Notifier, log *zap.Logger, clk clock.Clock, delay time.Duration, minLen, limit int) *Searcher {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if minLen <= 0 {
		minLen = DefaultMinQueryLength
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Searcher{
		api: api, docs: docs, sess: sess, notify: notifierOrNop(n), log: log, clk: clk,
		delay: delay, minLen: minLen, limit: limit,
		ctx: ctx, cancel: cancel,
	}
}

// Input records the current query text and restarts the debounce window.
func (s *Searcher) Input(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	g := s.gen
	s.pending = q
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	s.timer = s.clk.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.settle(g)
	})
}

func (s *Searcher) settle(g uint64) {
	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	q := s.pending
	s.timer = nil
	s.mu.Unlock()

	if _, err := s.dispatch(s.ctx, q); err != nil {
		Report(s.notify, "search", err)
	}
}

// Search dispatches q immediately, bypassing the debounce window.
func (s *Searcher) Search(ctx context.Context, q string) ([]model.Document, error) {
	s.wg.Add(1)
	defer s.wg.Done()
	return s.dispatch(ctx, q)
}

// Wait blocks until pending and in-flight searches settle.
func (s *Searcher) Wait() { s.wg.Wait() }

// Reset abandons the pending query and any in-flight search without
// touching the view. Callers use it when another view replaces search results.
func (s *Searcher) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.seq++
}

// Close stops the debounce timer and abandons in-flight searches.
func (s *Searcher) Close() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.cancel()
}

// stopLocked invalidates the armed timer; s.mu must be held.
func (s *Searcher) stopLocked() {
	s.gen++
	s.pending = ""
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
}

// latest reports whether seq is still the newest dispatch for the session
// that was live at dispatch time.
func (s *Searcher) latest(seq, epoch uint64) func() bool {
	return func() bool {
		s.mu.Lock()
		cur := s.seq
		s.mu.Unlock()
		if seq != cur {
			s.log.Debug("stale search dropped", zap.Uint64("seq", seq), zap.Uint64("latest", cur))
			return false
		}
		if _, e := s.sess.Current(); e != epoch {
			s.log.Debug("search for previous session dropped", zap.Uint64("epoch", epoch))
			return false
		}
		return true
	}
}

// dispatch runs one settled query. A stale result, or a result for another
// session, returns nil without touching the view. s.mu is never held while
// the view changes, so subscribers may call back into the searcher.
func (s *Searcher) dispatch(ctx context.Context, raw string) ([]model.Document, error) {
	q := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(q)

	if n > 0 && n < s.minLen {
		return nil, nil
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	_, epoch := s.sess.Current()
	latest := s.latest(seq, epoch)

	if n == 0 {
		s.docs.revert(latest)
		return nil, nil
	}

	params := url.Values{"query": {q}}
	if s.limit > 0 {
		params.Set("limit", strconv.Itoa(s.limit))
	}
	var wire []convert.Document
	err := s.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/search/", Query: params}, &wire)
	if err != nil {
		if !latest() {
			return nil, nil
		}
		return nil, err
	}
	results := convert.ToDocuments(wire)
	if !s.docs.showSearch(q, results, latest) {
		return nil, nil
	}
	return results, nil
}
