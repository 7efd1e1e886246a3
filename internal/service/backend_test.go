package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/docdesk/internal/gateway"
	"github.com/and161185/docdesk/internal/limiter"
	"github.com/and161185/docdesk/internal/repository/memory"
)

type wireDoc struct {
	DocID          int      `json:"docid"`
	Filename       string   `json:"filename"`
	Category       string   `json:"category"`
	Author         *string  `json:"author"`
	Summary        *string  `json:"summary"`
	UploadDate     string   `json:"upload_date"`
	UUID           string   `json:"uuid"`
	ContentPreview *string  `json:"content_preview,omitempty"`
	Relevance      *float64 `json:"relevance_score,omitempty"`
}

// fakeBackend mimics the document service closely enough for end-to-end service tests.
type fakeBackend struct {
	t *testing.T

	mu       sync.Mutex
	token    string
	revoked  bool
	user     map[string]string
	users    map[string]bool
	docs     []wireDoc
	nextID   int
	hits     map[string]int
	searches []string

	// optional hooks
	onSearch func(q string) []wireDoc
	onUpload func(name string)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{
		t:      t,
		token:  "tok123",
		user:   map[string]string{"username": "admin", "role": "Admin", "uuid": "u-admin"},
		users:  map[string]bool{"admin": true},
		nextID: 100,
		hits:   map[string]int{},
	}
}

func (b *fakeBackend) hit(key string) {
	b.mu.Lock()
	b.hits[key]++
	b.mu.Unlock()
}

func (b *fakeBackend) Hits(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[key]
}

func (b *fakeBackend) Searches() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.searches...)
}

func (b *fakeBackend) Revoke() {
	b.mu.Lock()
	b.revoked = true
	b.mu.Unlock()
}

func (b *fakeBackend) SetToken(tok string) {
	b.mu.Lock()
	b.token = tok
	b.mu.Unlock()
}

func (b *fakeBackend) OnSearch(fn func(q string) []wireDoc) {
	b.mu.Lock()
	b.onSearch = fn
	b.mu.Unlock()
}

func (b *fakeBackend) OnUpload(fn func(name string)) {
	b.mu.Lock()
	b.onUpload = fn
	b.mu.Unlock()
}

func (b *fakeBackend) AddDoc(d wireDoc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) authorized(w http.ResponseWriter, r *http.Request) bool {
	b.mu.Lock()
	ok := !b.revoked && r.Header.Get("Authorization") == "Bearer "+b.token
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
	}
	return ok
}

func (b *fakeBackend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		b.hit("token")
		_ = r.ParseForm()
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "admin123" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		b.mu.Lock()
		tok := b.token
		b.revoked = false
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"access_token": tok, "token_type": "bearer"})
	})
	mux.HandleFunc("POST /users/", func(w http.ResponseWriter, r *http.Request) {
		b.hit("register")
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.users[in["username"]] {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"Username already registered"}`)
			return
		}
		b.users[in["username"]] = true
		writeJSON(w, http.StatusOK, map[string]string{"username": in["username"], "role": in["role"], "uuid": "u-new"})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		b.hit("me")
		if !b.authorized(w, r) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, b.user)
	})
	mux.HandleFunc("GET /documents/", func(w http.ResponseWriter, r *http.Request) {
		b.hit("list")
		if !b.authorized(w, r) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, append([]wireDoc{}, b.docs...))
	})
	mux.HandleFunc("GET /documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.hit("get")
		if !b.authorized(w, r) {
			return
		}
		if d, ok := b.find(r.PathValue("id")); ok {
			preview := "preview of " + d.Filename
			d.ContentPreview = &preview
			writeJSON(w, http.StatusOK, d)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Document not found"})
	})
	mux.HandleFunc("GET /documents/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		b.hit("download")
		if !b.authorized(w, r) {
			return
		}
		d, ok := b.find(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Document not found"})
			return
		}
		if d.Filename != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, d.Filename))
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, "content of "+d.Filename)
	})
	mux.HandleFunc("POST /documents/", func(w http.ResponseWriter, r *http.Request) {
		b.hit("upload")
		if !b.authorized(w, r) {
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]string{{"msg": "field required"}}})
			return
		}
		_ = f.Close()
		b.mu.Lock()
		hook := b.onUpload
		b.mu.Unlock()
		if hook != nil {
			hook(hdr.Filename)
		}
		b.mu.Lock()
		b.nextID++
		d := wireDoc{DocID: b.nextID, Filename: hdr.Filename, Category: "General", UploadDate: time.Now().UTC().Format("2006-01-02T15:04:05"), UUID: "u-admin"}
		b.docs = append(b.docs, d)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, d)
	})
	mux.HandleFunc("GET /search/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		q := r.URL.Query().Get("query")
		b.mu.Lock()
		b.searches = append(b.searches, q)
		hook := b.onSearch
		docs := append([]wireDoc(nil), b.docs...)
		b.mu.Unlock()

		var out []wireDoc
		if hook != nil {
			out = hook(q)
		} else {
			for _, d := range docs {
				if strings.Contains(strings.ToLower(d.Filename), strings.ToLower(q)) {
					out = append(out, d)
				}
			}
		}
		writeJSON(w, http.StatusOK, append([]wireDoc{}, out...))
	})
	mux.HandleFunc("GET /logs/", func(w http.ResponseWriter, r *http.Request) {
		b.hit("logs")
		if !b.authorized(w, r) {
			return
		}
		if r.URL.Query().Get("limit") != "2" || r.URL.Query().Get("skip") != "1" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad paging"})
			return
		}
		_, _ = io.WriteString(w, `[{"log_id":2,"user_uuid":"u-admin","doc_uuid":"d-1","action":"download","timestamp":"2025-01-02T09:00:00"}]`)
	})
	return mux
}

func (b *fakeBackend) find(id string) (wireDoc, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.docs {
		if fmt.Sprint(d.DocID) == id {
			return d, true
		}
	}
	return wireDoc{}, false
}

// notes records notifications.
type notes struct {
	mu  sync.Mutex
	all []Notification
}

func (n *notes) Notify(x Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, x)
}

func (n *notes) Messages(level Level) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, x := range n.all {
		if x.Level == level {
			out = append(out, x.Message)
		}
	}
	return out
}

var _ Notifier = (*notes)(nil)

type stack struct {
	be     *fakeBackend
	gw     *gateway.Client
	repo   *memory.StateRepo
	clk    *clock.Mock
	notes  *notes
	sess   *Session
	docs   *Documents
	search *Searcher
	up     *Uploader
}

func newStack(t *testing.T) *stack {
	t.Helper()
	be := newFakeBackend(t)
	srv := httptest.NewServer(be.Handler())
	t.Cleanup(srv.Close)

	log := zaptest.NewLogger(t)
	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL, Timeout: 5 * time.Second, Logger: log, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	clk := clock.NewMock()
	clk.Set(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	repo := memory.NewStateRepo()
	n := &notes{}
	lim := limiter.NewLocal(repo, clk, 15*time.Minute, 5, 15*time.Minute)

	sess := NewSession(gw, repo, lim, n, log, clk)
	gw.UseCredentials(sess)
	docs := NewDocuments(gw, log, clk, 0)
	s := &stack{
		be: be, gw: gw, repo: repo, clk: clk, notes: n, sess: sess, docs: docs,
		search: NewSearcher(gw, docs, sess, n, log, clk, 0, 0, 0),
		up:     NewUploader(gw, docs, sess, n, log, clk),
	}
	t.Cleanup(s.search.Close)
	return s
}

func strptr(s string) *string { return &s }
