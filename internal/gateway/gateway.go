// Package gateway is the single path for outbound calls to the document backend.
//
// Every call attaches the current bearer token, normalizes failures into the
// errs taxonomy and reports 401 responses back to the credential owner.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/and161185/docdesk/internal/convert"
	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/model"
)

const maxErrorBody = 64 << 10

// Credentials supplies the token at send time and is told when the backend rejects it.
type Credentials interface {
	// Current returns the live token (empty when unauthenticated) and its session epoch.
	Current() (token string, epoch uint64)
	// Expire tears the session down if epoch is still current.
	Expire(epoch uint64)
}

// Auth pins a request to a specific credential instead of the live one.
type Auth struct {
	Token string
	Epoch uint64
}

// File is one multipart file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Body        io.Reader
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any   // JSON-encoded when non-nil
	File   *File // multipart body; exclusive with Body
	Auth   *Auth // nil means the live credential
	NoAuth bool
}

// Download is a streamed response body. Callers must close Body.
type Download struct {
	Name        string // from Content-Disposition, may be empty
	ContentType string
	Size        int64 // -1 when unknown
	Body        io.ReadCloser
}

// Config configures the client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RPS       float64 // <= 0 disables pacing
	Burst     int
	Logger    *zap.Logger
	Registry  prometheus.Registerer
	Transport http.RoundTripper
}

// Client is safe for concurrent use.
type Client struct {
	base  *url.URL
	http  *http.Client
	log   *zap.Logger
	creds Credentials
}

type noCreds struct{}

func (noCreds) Current() (string, uint64) { return "", 0 }
func (noCreds) Expire(uint64)             {}

// New builds a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register gateway metrics: %w", err)
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	next := cfg.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	rt := &instrumented{
		next:    otelhttp.NewTransport(next),
		log:     log,
		pace:    rate.NewLimiter(limit, burst),
		metrics: m,
	}
	return &Client{
		base:  base,
		http:  &http.Client{Transport: rt, Timeout: cfg.Timeout},
		log:   log,
		creds: noCreds{},
	}, nil
}

// UseCredentials binds the credential owner. Called once during wiring.
func (c *Client) UseCredentials(creds Credentials) {
	if creds == nil {
		creds = noCreds{}
	}
	c.creds = creds
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(p string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + p
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) send(ctx context.Context, r Request) (*http.Response, error) {
	op := r.Method + " " + r.Path

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.File != nil:
		buf, ct, err := encodeMultipart(r.File)
		if err != nil {
			return nil, fmt.Errorf("%s: encode upload: %w", op, err)
		}
		body, contentType = buf, ct
	case r.Body != nil:
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.endpoint(r.Path, r.Query), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	var (
		token string
		epoch uint64
	)
	switch {
	case r.NoAuth:
	case r.Auth != nil:
		token, epoch = r.Auth.Token, r.Auth.Epoch
	default:
		token, epoch = c.creds.Current()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errs.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode == http.StatusUnauthorized {
		if token != "" {
			c.creds.Expire(epoch)
		}
		return nil, &errs.AuthError{Reason: Reason(raw), Expired: true}
	}
	return nil, &errs.RequestError{Status: resp.StatusCode, Reason: Reason(raw)}
}

// Do performs r and decodes a JSON response into out (when non-nil).
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &errs.TransportError{Op: r.Method + " " + r.Path, Err: err}
		}
		return fmt.Errorf("%s: decode response: %w", r.Method+" "+r.Path, err)
	}
	return nil
}

// Fetch performs r and hands back the raw response stream.
func (c *Client) Fetch(ctx context.Context, r Request) (*Download, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	return &Download{
		Name:        dispositionName(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

// Health probes the backend. Failures are logged and returned; callers may ignore them.
func (c *Client) Health(ctx context.Context) (model.Health, error) {
	var h convert.Health
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/health", NoAuth: true}, &h); err != nil {
		c.log.Warn("health check failed", zap.Error(err))
		return model.Health{}, err
	}
	return convert.ToHealth(h), nil
}

// Reason extracts a human-readable reason from an error body: a string
// "detail", or the "msg" of the first validation item.
func Reason(body []byte) string {
	var p struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &p); err != nil || len(p.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(p.Detail, &items); err == nil && len(items) > 0 {
		return strings.TrimSpace(items[0].Msg)
	}
	return ""
}

func dispositionName(h string) string {
	if h == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(h)
	if err != nil {
		return ""
	}
	return path.Base(strings.ReplaceAll(params["filename"], `\`, "/"))
}

func encodeMultipart(f *File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	field := f.Field
	if field == "" {
		field = "file"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     field,
		"filename": f.Name,
	}))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f.Body); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
