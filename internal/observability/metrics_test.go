package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that every metric can be used without
// panic, ensuring label dimensions match the call sites in nwp, geocode,
// alerts, llm, filecache, thinning, and pipeline.
func TestMetrics_Usable(t *testing.T) {
	UpstreamCallsTotal.WithLabelValues("nwp", "success").Inc()
	UpstreamCallsTotal.WithLabelValues("llm", "error").Inc()
	UpstreamDuration.WithLabelValues("nwp", "success").Observe(0.2)
	UpstreamRetriesTotal.WithLabelValues("nwp").Inc()
	CircuitBreakerTripsTotal.WithLabelValues("nwp").Inc()
	CacheHitsTotal.WithLabelValues("geocode").Inc()
	CacheMissesTotal.WithLabelValues("impact").Inc()
	EntitiesProcessedTotal.WithLabelValues("rendered").Inc()
	ThinningDroppedTotal.WithLabelValues("ensemble").Inc()
	LLMCostUSDTotal.WithLabelValues("forecast").Add(0.0123)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler
// serves Prometheus text exposition format with correct HTTP status.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	UpstreamCallsTotal.WithLabelValues("nwp", "success").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "ibfUpstreamCallsTotal") {
		t.Error("MetricsHandler response should contain ibfUpstreamCallsTotal")
	}
}
