package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Gateway metrics
var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversight_decisions_total",
			Help: "Evaluated actions by decision.",
		},
		[]string{"decision"},
	)

	riskScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oversight_risk_score",
		Help:    "Distribution of assigned risk scores.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	approvalsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "oversight_approvals_pending",
		Help: "Approval requests awaiting a human.",
	})

	approvalsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversight_approvals_resolved_total",
			Help: "Resolved approval requests by outcome and source.",
		},
		[]string{"outcome", "source"},
	)

	notifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversight_notify_failures_total",
			Help: "Notifications that could not be delivered after retries.",
		},
		[]string{"variant"},
	)
)

var (
	initOnce sync.Once
	ready    atomic.Bool
)

// Init registers all collectors with the default registry. Idempotent.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			decisionsTotal, riskScores, approvalsPending, approvalsResolved, notifyFailures,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func SetReady(v bool) { ready.Store(v) }

func Ready() bool { return ready.Load() }

func ObserveDecision(decision string, score int) {
	decisionsTotal.WithLabelValues(decision).Inc()
	riskScores.Observe(float64(score))
}

func SetPendingApprovals(n int) { approvalsPending.Set(float64(n)) }

// ObserveResolution counts a resolved approval; source is "operator" or "expiry".
func ObserveResolution(outcome, source string) {
	approvalsResolved.WithLabelValues(outcome, source).Inc()
}

func ObserveNotifyFailure(variant string) {
	notifyFailures.WithLabelValues(variant).Inc()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses approval ids so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	const prefix = "/v1/approvals/"
	if !strings.HasPrefix(p, prefix) {
		return p
	}
	parts := strings.Split(strings.TrimPrefix(p, prefix), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return prefix + ":id"
	case len(parts) == 2 && parts[0] != "" && (parts[1] == "approve" || parts[1] == "deny"):
		return prefix + ":id/" + parts[1]
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events streaming through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
