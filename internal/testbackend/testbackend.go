// Package testbackend serves an in-memory document backend over httptest for
// front-end tests.
package testbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Credentials accepted by the /token endpoint.
const (
	Username = "admin"
	Password = "admin123"
	Token    = "test-token"
)

// Doc is a stored document in wire form.
type Doc struct {
	DocID      int     `json:"docid"`
	Filename   string  `json:"filename"`
	Category   string  `json:"category"`
	Author     *string `json:"author"`
	Summary    *string `json:"summary"`
	UploadDate string  `json:"upload_date"`
	UUID       string  `json:"uuid"`
	Content    string  `json:"-"`
}

// Server is a running fake backend.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	docs   []Doc
	nextID int
	hits   map[string]int
}

// New starts a server seeded with docs and closes it with the test.
func New(t *testing.T, docs ...Doc) *Server {
	t.Helper()
	s := &Server{docs: docs, nextID: 1000, hits: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", s.token)
	mux.HandleFunc("GET /users/me", s.auth(s.me))
	mux.HandleFunc("POST /users/", s.register)
	mux.HandleFunc("GET /documents/", s.auth(s.list))
	mux.HandleFunc("POST /documents/", s.auth(s.upload))
	mux.HandleFunc("GET /documents/{id}", s.auth(s.get))
	mux.HandleFunc("GET /documents/{id}/download", s.auth(s.download))
	mux.HandleFunc("GET /search/", s.auth(s.search))
	mux.HandleFunc("GET /logs/", s.auth(s.logs))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "healthy", "timestamp": "2025-06-10T12:00:00", "indexed_documents": len(s.Docs()), "total_mappings": len(s.Docs()),
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Docs returns a copy of the stored documents.
func (s *Server) Docs() []Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Doc(nil), s.docs...)
}

// Hits reports how often route was served, e.g. "GET /search/".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

func (s *Server) count(r *http.Request) {
	s.mu.Lock()
	s.hits[r.Method+" "+r.URL.Path]++
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.count(r)
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		next(w, r)
	}
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	if err := r.ParseForm(); err != nil || r.PostForm.Get("username") != Username || r.PostForm.Get("password") != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": Token, "token_type": "bearer"})
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"username": Username, "role": "Admin", "uuid": "u-admin"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	s.count(r)
	var body struct{ Username string }
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Username == Username {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Username already registered"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": body.Username})
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Docs())
}

func (s *Server) find(id string) (Doc, bool) {
	for _, d := range s.Docs() {
		if strconv.Itoa(d.DocID) == id {
			return d, true
		}
	}
	return Doc{}, false
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	d, ok := s.find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Document not found"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Doc
		ContentPreview string `json:"content_preview"`
	}{d, d.Content})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	d, ok := s.find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Document not found"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	_, _ = io.WriteString(w, d.Content)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "file required"})
		return
	}
	defer f.Close()
	body, _ := io.ReadAll(f)

	s.mu.Lock()
	s.nextID++
	d := Doc{DocID: s.nextID, Filename: hdr.Filename, Category: "General", UploadDate: "2025-06-10T12:00:00", UUID: "u-admin", Content: string(body)}
	s.docs = append(s.docs, d)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("query"))
	type scored struct {
		Doc
		Relevance float64 `json:"relevance_score"`
	}
	out := []scored{}
	for _, d := range s.Docs() {
		if strings.Contains(strings.ToLower(d.Filename+" "+d.Content), q) {
			out = append(out, scored{d, 0.9})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{{
		"log_id": 1, "user_uuid": "u-admin", "doc_uuid": nil, "action": "login", "timestamp": "2025-06-10T12:00:00",
	}})
}
