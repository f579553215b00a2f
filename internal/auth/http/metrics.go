package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
)

const metricsNamespace = "tokensmith"

// Metrics holds the Prometheus collectors of the authorization server.
// It doubles as the service.GrantObserver for token requests.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInflight  prometheus.Gauge
	tokenRequests *prometheus.CounterVec
	tokenDuration *prometheus.HistogramVec
	verifications *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg uses a fresh
// registry, which keeps tests isolated from the default one.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests currently being served.",
		}),
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_requests_total",
			Help:      "Token requests by grant type and outcome.",
		}, []string{"grant_type", "outcome"}),
		tokenDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "token_request_duration_seconds",
			Help:      "Time spent in the token request state machine. Dominated by secret hashing.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"grant_type"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_verifications_total",
			Help:      "Access token verifications by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.httpRequests, m.httpDuration, m.httpInflight,
		m.tokenRequests, m.tokenDuration, m.verifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TrackSigningKeys exports the number of verification keys the manager holds.
func (m *Metrics) TrackSigningKeys(km *jwtx.KeyManager) error {
	return registerCollector(m.registry, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "signing_keys",
		Help:      "Verification keys currently published, including the active one.",
	}, func() float64 { return float64(len(km.Keys())) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records request count, latency and in-flight requests under
// the given route label. Routes are labelled by their mux pattern so path
// parameters never reach the label set.
func (m *Metrics) Instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.httpInflight.Inc()
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			defer func() {
				m.httpInflight.Dec()
				m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}
				m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// ObserveGrant implements service.GrantObserver.
func (m *Metrics) ObserveGrant(_ context.Context, o service.GrantOutcome) {
	grant := grantLabel(o.GrantType)
	m.tokenRequests.WithLabelValues(grant, grantOutcome(o)).Inc()
	m.tokenDuration.WithLabelValues(grant).Observe(o.Duration.Seconds())
}

// Verifier wraps v so every verification is counted by result.
func (m *Metrics) Verifier(v jwtx.Verifier) jwtx.Verifier {
	return &countingVerifier{next: v, results: m.verifications}
}

type countingVerifier struct {
	next    jwtx.Verifier
	results *prometheus.CounterVec
}

func (v *countingVerifier) Verify(token string) (jwtx.Claims, error) {
	claims, err := v.next.Verify(token)
	v.results.WithLabelValues(verificationResult(err)).Inc()
	return claims, err
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, jwtx.ErrExpired):
		return "expired"
	case errors.Is(err, jwtx.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, jwtx.ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}

// grantLabel bounds the label set; grant_type is caller supplied.
func grantLabel(grant string) string {
	switch grant {
	case "client_credentials", "authorization_code", "password", "refresh_token", "implicit":
		return grant
	default:
		return "other"
	}
}

func grantOutcome(o service.GrantOutcome) string {
	if o.State == service.GrantTokenIssued && o.Err == nil {
		return "issued"
	}
	switch {
	case errors.Is(o.Err, service.ErrInvalidClient):
		return "invalid_client"
	case errors.Is(o.Err, service.ErrUnauthorizedGrant):
		return "unauthorized_grant"
	case errors.Is(o.Err, service.ErrUnsupportedGrantType):
		return "unsupported_grant_type"
	case errors.Is(o.Err, service.ErrInvalidScope):
		return "invalid_scope"
	default:
		return "error"
	}
}

// registerCollector registers c, tolerating a collector that is already
// registered.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
