package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/internal/convert"
	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/gateway"
	"github.com/and161185/docdesk/internal/model"
)

// Snapshot is an immutable view of the document collection.
type Snapshot struct {
	All        []model.Document
	View       []model.Document
	Categories []string
	Authors    []string
	Query      string // search that produced View, empty for the full list or a filter
	Version    uint64
}

// Documents caches the last fetched document set and the rendered view.
type Documents struct {
	api   Backend
	log   *zap.Logger
	clk   clock.Clock
	limit int

	mu         sync.Mutex
	all        []model.Document
	view       []model.Document
	categories []string
	authors    []string
	query      string
	version    uint64
	listeners  []func(Snapshot)
}

// NewDocuments constructs an empty collection. limit > 0 is sent with list calls.
func NewDocuments(api Backend, log *zap.Logger, clk clock.Clock, limit int) *Documents {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Documents{api: api, log: log, clk: clk, limit: limit}
}

// Subscribe registers fn to receive a snapshot after every change.
func (d *Documents) Subscribe(fn func(Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Snapshot returns the current state.
func (d *Documents) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Documents) snapshotLocked() Snapshot {
	return Snapshot{
		All:        d.all,
		View:       d.view,
		Categories: d.categories,
		Authors:    d.authors,
		Query:      d.query,
		Version:    d.version,
	}
}

// commitLocked bumps the version; d.mu must be held. Listeners run after unlock.
func (d *Documents) commitLocked() (Snapshot, []func(Snapshot)) {
	d.version++
	return d.snapshotLocked(), append(([]func(Snapshot))(nil), d.listeners...)
}

func fanout(snap Snapshot, ls []func(Snapshot)) {
	for _, fn := range ls {
		fn(snap)
	}
}

// LoadAll fetches the full visible list and replaces the collection and view wholesale.
func (d *Documents) LoadAll(ctx context.Context) error {
	var q url.Values
	if d.limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(d.limit)}}
	}
	var wire []convert.Document
	if err := d.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/documents/", Query: q}, &wire); err != nil {
		return err
	}
	docs := convert.ToDocuments(wire)

	d.mu.Lock()
	d.all = docs
	d.view = docs
	d.query = ""
	d.categories, d.authors = facets(docs)
	snap, ls := d.commitLocked()
	d.mu.Unlock()

	d.log.Debug("documents loaded", zap.Int("count", len(docs)))
	fanout(snap, ls)
	return nil
}

// ApplyFilters returns the loaded collection narrowed by f. It performs no I/O and mutates nothing.
func (d *Documents) ApplyFilters(f model.Filter) []model.Document {
	d.mu.Lock()
	all := d.all
	d.mu.Unlock()
	return Filter(all, f, d.clk.Now())
}

// ShowFiltered makes the filtered collection the rendered view.
func (d *Documents) ShowFiltered(f model.Filter) Snapshot {
	view := d.ApplyFilters(f)
	d.mu.Lock()
	d.view = view
	d.query = ""
	snap, ls := d.commitLocked()
	d.mu.Unlock()
	fanout(snap, ls)
	return snap
}

// showSearch replaces the view with search results if latest still holds.
// latest runs under d.mu and must not call back into Documents.
func (d *Documents) showSearch(query string, results []model.Document, latest func() bool) bool {
	d.mu.Lock()
	if !latest() {
		d.mu.Unlock()
		return false
	}
	d.view = results
	d.query = query
	snap, ls := d.commitLocked()
	d.mu.Unlock()
	fanout(snap, ls)
	return true
}

// revert restores the view to the full cached collection if latest still holds.
func (d *Documents) revert(latest func() bool) {
	d.mu.Lock()
	if !latest() {
		d.mu.Unlock()
		return
	}
	d.view = d.all
	d.query = ""
	snap, ls := d.commitLocked()
	d.mu.Unlock()
	fanout(snap, ls)
}

// Filter is the pure filtering function behind ApplyFilters. Constraints compose with AND.
func Filter(docs []model.Document, f model.Filter, now time.Time) []model.Document {
	out := make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		if matches(doc, f, now) {
			out = append(out, doc)
		}
	}
	return out
}

func matches(doc model.Document, f model.Filter, now time.Time) bool {
	if f.Category != "" && doc.Category != f.Category {
		return false
	}
	if f.Author != "" && (doc.Author == nil || *doc.Author != f.Author) {
		return false
	}
	switch f.Range {
	case model.RangeToday:
		y1, m1, d1 := doc.UploadDate.In(now.Location()).Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case model.RangeWeek:
		return !doc.UploadDate.Before(now.Add(-7 * 24 * time.Hour))
	case model.RangeMonth:
		return !doc.UploadDate.Before(now.Add(-30 * 24 * time.Hour))
	}
	return true
}

func facets(docs []model.Document) (categories, authors []string) {
	cs := map[string]struct{}{}
	as := map[string]struct{}{}
	for _, doc := range docs {
		if doc.Category != "" {
			cs[doc.Category] = struct{}{}
		}
		if doc.Author != nil {
			as[*doc.Author] = struct{}{}
		}
	}
	return sortedKeys(cs), sortedKeys(as)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func docPath(id string, suffix string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errs.Invalid("id", "document id is required")
	}
	return "/documents/" + url.PathEscape(id) + suffix, nil
}

// Get fetches one document with its content preview. Results are not cached.
func (d *Documents) Get(ctx context.Context, id string) (model.Document, error) {
	p, err := docPath(id, "")
	if err != nil {
		return model.Document{}, err
	}
	var wire convert.Document
	if err := d.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: p}, &wire); err != nil {
		return model.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return convert.ToDocument(wire), nil
}

// Download streams a document into dir and returns the written path.
func (d *Documents) Download(ctx context.Context, id, dir string) (string, error) {
	p, err := docPath(id, "/download")
	if err != nil {
		return "", err
	}
	dl, err := d.api.Fetch(ctx, gateway.Request{Method: http.MethodGet, Path: p})
	if err != nil {
		return "", fmt.Errorf("download document %s: %w", id, err)
	}
	defer dl.Body.Close()

	name := SafeName(dl.Name)
	if name == "" {
		name = "document-" + SafeName(id)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, dl.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", &errs.TransportError{Op: "GET " + p, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	d.log.Info("document downloaded", zap.String("id", id), zap.String("path", dst))
	return dst, nil
}

// SafeName reduces a server-supplied file name to a plain base name.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}

// AccessLogs lists audit records. The backend restricts this to HR and Admin.
func (d *Documents) AccessLogs(ctx context.Context, skip, limit int) ([]model.AccessLog, error) {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var wire []convert.AccessLog
	if err := d.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/logs/", Query: q}, &wire); err != nil {
		return nil, err
	}
	return convert.ToAccessLogs(wire), nil
}
