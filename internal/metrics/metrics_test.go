package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry(t *testing.T) {
	InitRegistry()
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
	assert.Same(t, registry, InitRegistry())
}

func TestRecordProviderRequest(t *testing.T) {
	InitRegistry()

	before := testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("statpal", "ok"))
	assert.NotPanics(t, func() {
		RecordProviderRequest("statpal", "ok", 0.25)
	})
	assert.Equal(t, before+1, testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("statpal", "ok")))
}

func TestUpdateQuota(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name  string
		used  int
		limit int
	}{
		{name: "fresh day", used: 0, limit: 100},
		{name: "partially used", used: 42, limit: 100},
		{name: "exhausted", used: 100, limit: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			UpdateQuota(tt.used, tt.limit)
			assert.Equal(t, float64(tt.used), testutil.ToFloat64(QuotaUsed))
			assert.Equal(t, float64(tt.limit), testutil.ToFloat64(QuotaLimit))
		})
	}
}

func TestRecordCaptureLagClampsNegative(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordCaptureLag("10min_before", -3)
		RecordCaptureLag("at_post", 12)
	})
}

func TestRecordHelpers(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordQuotaRejection()
		RecordCacheLookup(true)
		RecordCacheLookup(false)
		RecordSnapshotsStored("5min_before", 8)
		RecordIntervalOutcome("5min_before", "captured")
		RecordRaceMissed()
		RecordRecompute("race-1", 2)
		RecordCircuitBreakerTrip()
		RecordPass(4, 0.8)
	})
	assert.Equal(t, float64(4), testutil.ToFloat64(MonitoredRaces))
}

func TestClearRaceDropsValueBetsSeries(t *testing.T) {
	InitRegistry()

	RecordRecompute("race-closed", 3)
	RecordRecompute("race-open", 1)
	before := testutil.CollectAndCount(ValueBets)

	ClearRace("race-closed")
	assert.Equal(t, before-1, testutil.CollectAndCount(ValueBets))
	assert.Equal(t, float64(1), testutil.ToFloat64(ValueBets.WithLabelValues("race-open")))

	assert.NotPanics(t, func() { ClearRace("race-unknown") })
}

func TestHandlerServesMetrics(t *testing.T) {
	InitRegistry()
	RecordQuotaRejection()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stall10n_quota_rejections_total")
}
