package gateway

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docdesk",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of backend requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docdesk",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Backend request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	if err := reg.Register(m.requests); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

var idSegment = regexp.MustCompile(`/(\d+|[0-9a-fA-F-]{36})(/|$)`)

// route collapses identifiers so metric labels stay bounded.
func route(path string) string {
	if path == "" {
		return "/"
	}
	return idSegment.ReplaceAllString(path, "/{id}$2")
}

// instrumented paces, tags, logs and measures every outbound request,
// including the token exchange issued by the oauth2 package.
type instrumented struct {
	next    http.RoundTripper
	log     *zap.Logger
	pace    *rate.Limiter
	metrics *metrics
}

func (t *instrumented) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.pace.Wait(req.Context()); err != nil {
		return nil, err
	}

	rid := req.Header.Get(HeaderRequestID)
	if rid == "" {
		id, err := uuid.NewV4()
		if err == nil {
			rid = id.String()
		}
		req = req.Clone(req.Context())
		req.Header.Set(HeaderRequestID, rid)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	dur := time.Since(start)

	r := route(req.URL.Path)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	t.metrics.requests.WithLabelValues(req.Method, r, status).Inc()
	t.metrics.duration.WithLabelValues(req.Method, r).Observe(dur.Seconds())

	// only metadata, never payloads or credentials
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("status", status),
		zap.Duration("dur", dur),
		zap.String("request_id", rid),
	}
	if err != nil {
		t.log.Warn("backend", append(fields, zap.Error(err))...)
	} else {
		t.log.Debug("backend", fields...)
	}
	return resp, err
}
