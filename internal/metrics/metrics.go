// Package metrics exposes Prometheus collectors for the registry, the auth
// gate, outbound notifications and the HTTP front door.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/atinyakov/DocLedger/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docledger"

// Metrics groups every collector the server exports. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	operations      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	documents       *prometheus.GaugeVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Registry and auth operations by outcome.",
		}, []string{"operation", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Mint notifications by outcome.",
		}, []string{"outcome"}),
		documents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents",
			Help:      "Documents held in the ledger by state.",
		}, []string{"state"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.operations, m.notifications, m.documents, m.requestDuration)
	return m
}

// ObserveOperation counts one registry or auth operation.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), Outcome(err)).Inc()
}

// ObserveNotification counts one delivery attempt; outcome is "sent",
// "failed" or "skipped".
func (m *Metrics) ObserveNotification(outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetDocuments publishes the ledger totals.
func (m *Metrics) SetDocuments(live, retired int64) {
	if m == nil || m.documents == nil {
		return
	}
	m.documents.WithLabelValues("live").Set(float64(live))
	m.documents.WithLabelValues("retired").Set(float64(retired))
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(d.Seconds())
}

// Outcome maps an operation error to a bounded label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, models.ErrDuplicateContent):
		return "duplicate_content"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrAlreadyRetired):
		return "already_retired"
	case errors.Is(err, models.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, models.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, models.ErrUserExists):
		return "user_exists"
	case errors.Is(err, models.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, models.ErrLockedOut):
		return "locked_out"
	default:
		return "error"
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
