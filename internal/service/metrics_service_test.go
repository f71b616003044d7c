package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/births", 200, 10*time.Millisecond)
	m.IncRecordEvent("birth", "create")
	m.IncRecordEvent("birth", "create")
	m.IncAuditWriteFailure("death")
	m.ObserveStoreOperation("birth_records", "find", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/api/births", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordEvents.WithLabelValues("birth", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditWriteFailures.WithLabelValues("death")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "registry_audit_write_failures_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.IncAuditWriteFailure("birth")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
