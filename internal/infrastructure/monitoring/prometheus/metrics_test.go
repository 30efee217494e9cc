package prometheus

import (
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, string(apperrors.ErrCodeInvalidTransition), Result(apperrors.InvalidTransition("nope")))
	assert.Equal(t, string(apperrors.CodeUnknown), Result(stderrors.New("boom")))
}

func TestAppMetrics_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)
	m.RecordHTTPRequest(http.MethodPost, "/api/v1/franchises/{id}/status", 200, 15*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_http_requests_total{method="POST",route="/api/v1/franchises/{id}/status",status_code="200"} 1`)
	assert.Contains(t, out, `test_http_request_duration_seconds_count{method="POST",route="/api/v1/franchises/{id}/status"} 1`)
}

func TestAppMetrics_RecordTransition(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)
	m.RecordTransition("renewal", "approved", nil, time.Millisecond)
	m.RecordTransition("renewal", "approved", apperrors.IneligibleWindow("closed"), time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_franchise_transitions_total{kind="renewal",result="ok",to="approved"} 1`)
	assert.Contains(t, out, `test_franchise_transitions_total{kind="renewal",result="`+string(apperrors.ErrCodeIneligibleWindow)+`",to="approved"} 1`)
	assert.Contains(t, out, `test_franchise_transition_duration_seconds_count{kind="renewal"} 2`)
}

func TestAppMetrics_RecordRateResolution(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)
	m.RecordRateResolution(nil, true)
	m.RecordRateResolution(nil, false)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_rate_resolutions_total{result="ok"} 2`)
	assert.Contains(t, out, "test_rate_penalties_applied_total 1")
}

func TestAppMetrics_CacheAndHealth(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)
	m.RecordCacheAccess("rate_sheet", true)
	m.RecordCacheAccess("rate_sheet", false)
	m.RecordCacheAccess("rate_sheet", false)
	m.SetHealth("redis", true)
	m.SetHealth("kafka", false)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_cache_hits_total{cache="rate_sheet"} 1`)
	assert.Contains(t, out, `test_cache_misses_total{cache="rate_sheet"} 2`)
	assert.Contains(t, out, `test_health_check_status{component="redis"} 1`)
	assert.Contains(t, out, `test_health_check_status{component="kafka"} 0`)
}

func TestAppMetrics_EventsAndPayments(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)
	m.RecordEventPublished("franchise.issued", nil)
	m.RecordEventConsumed("franchise.status_changed", nil)
	m.RecordPayment("registration", nil)
	m.RecordLockWait("franchise", 3*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_events_published_total{result="ok",topic="franchise.issued"} 1`)
	assert.Contains(t, out, `test_events_consumed_total{result="ok",topic="franchise.status_changed"} 1`)
	assert.Contains(t, out, `test_franchise_payments_total{kind="registration",result="ok"} 1`)
	assert.Contains(t, out, `test_franchise_lock_wait_seconds_count{kind="franchise"} 1`)
}
