package prometheus

import (
	"strconv"
	"time"

	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// AppMetrics holds every metric the service records.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	TransitionsTotal   CounterVec
	TransitionDuration HistogramVec
	PaymentsTotal      CounterVec
	LockWaitDuration   HistogramVec

	RateResolutionsTotal CounterVec
	PenaltiesApplied     CounterVec

	EventsPublishedTotal CounterVec
	EventsConsumedTotal  CounterVec

	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	HealthCheckStatus GaugeVec
}

var lockBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5}

func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "HTTP requests by route and status", "method", "route", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request latency", nil, "method", "route"),

		TransitionsTotal:   c.RegisterCounter("franchise_transitions_total", "Approval status transitions by outcome", "kind", "to", "result"),
		TransitionDuration: c.RegisterHistogram("franchise_transition_duration_seconds", "Transition latency including locking", nil, "kind"),
		PaymentsTotal:      c.RegisterCounter("franchise_payments_total", "Recorded payments by outcome", "kind", "result"),
		LockWaitDuration:   c.RegisterHistogram("franchise_lock_wait_seconds", "Time spent acquiring the record mutex", lockBuckets, "kind"),

		RateResolutionsTotal: c.RegisterCounter("rate_resolutions_total", "Rate sheet resolutions by outcome", "result"),
		PenaltiesApplied:     c.RegisterCounter("rate_penalties_applied_total", "Resolutions that activated a penalty tier"),

		EventsPublishedTotal: c.RegisterCounter("events_published_total", "Lifecycle events produced", "topic", "result"),
		EventsConsumedTotal:  c.RegisterCounter("events_consumed_total", "Lifecycle events handled by the worker", "topic", "result"),

		CacheHitsTotal:   c.RegisterCounter("cache_hits_total", "Cache hits", "cache"),
		CacheMissesTotal: c.RegisterCounter("cache_misses_total", "Cache misses", "cache"),

		HealthCheckStatus: c.RegisterGauge("health_check_status", "Dependency health (1=up, 0=down)", "component"),
	}
}

// Result maps an error to a low-cardinality outcome label.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.GetCode(err))
}

func (m *AppMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *AppMetrics) RecordTransition(kind, to string, err error, d time.Duration) {
	m.TransitionsTotal.WithLabelValues(kind, to, Result(err)).Inc()
	m.TransitionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *AppMetrics) RecordPayment(kind string, err error) {
	m.PaymentsTotal.WithLabelValues(kind, Result(err)).Inc()
}

func (m *AppMetrics) RecordLockWait(kind string, d time.Duration) {
	m.LockWaitDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *AppMetrics) RecordRateResolution(err error, penalty bool) {
	m.RateResolutionsTotal.WithLabelValues(Result(err)).Inc()
	if penalty {
		m.PenaltiesApplied.WithLabelValues().Inc()
	}
}

func (m *AppMetrics) RecordEventPublished(topic string, err error) {
	m.EventsPublishedTotal.WithLabelValues(topic, Result(err)).Inc()
}

func (m *AppMetrics) RecordEventConsumed(topic string, err error) {
	m.EventsConsumedTotal.WithLabelValues(topic, Result(err)).Inc()
}

func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

func (m *AppMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
