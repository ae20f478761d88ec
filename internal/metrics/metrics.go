// Package metrics provides centralized Prometheus metrics registry for the odds monitor.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stall10n"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Total odds provider requests by outcome",
	}, []string{"provider", "outcome"})
	QuotaRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_rejections_total",
		Help:      "Total fetch attempts rejected by the daily quota",
	})
	OddsCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "odds_cache_lookups_total",
		Help:      "Odds cache lookups by result",
	}, []string{"result"})
	SnapshotsStoredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_stored_total",
		Help:      "Odds snapshots written by interval",
	}, []string{"interval"})
	IntervalOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interval_outcomes_total",
		Help:      "Scheduled interval outcomes (captured, duplicate, stale, deferred, failed)",
	}, []string{"interval", "outcome"})
	RacesMissedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "races_missed_total",
		Help:      "Races abandoned without a complete capture",
	})
	RecomputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recomputes_total",
		Help:      "Probability tables computed",
	})
	CircuitBreakerTripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of circuit breaker trips",
	})
)

// Gauge metrics
var (
	QuotaUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quota_used",
		Help:      "Provider calls used in the current quota day",
	})
	QuotaLimit = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quota_limit",
		Help:      "Provider call budget per quota day",
	})
	MonitoredRaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monitored_races",
		Help:      "Races considered by the last scheduler pass",
	})
	ValueBets = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "value_bets",
		Help:      "Entries with positive edge in the race's current table",
	}, []string{"race_id"})
)

// Histogram metrics
var (
	ProviderLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_latency_seconds",
		Help:      "Latency of odds provider fetches in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_pass_duration_seconds",
		Help:      "Duration of scheduler passes in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	CaptureLag = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capture_lag_seconds",
		Help:      "Delay between an interval's target time and its capture",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	}, []string{"interval"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(ProviderRequestsTotal)
		registry.MustRegister(QuotaRejectionsTotal)
		registry.MustRegister(OddsCacheLookupsTotal)
		registry.MustRegister(SnapshotsStoredTotal)
		registry.MustRegister(IntervalOutcomesTotal)
		registry.MustRegister(RacesMissedTotal)
		registry.MustRegister(RecomputesTotal)
		registry.MustRegister(CircuitBreakerTripsTotal)

		registry.MustRegister(QuotaUsed)
		registry.MustRegister(QuotaLimit)
		registry.MustRegister(MonitoredRaces)
		registry.MustRegister(ValueBets)

		registry.MustRegister(ProviderLatency)
		registry.MustRegister(PassDuration)
		registry.MustRegister(CaptureLag)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordProviderRequest records one provider fetch and its latency.
func RecordProviderRequest(provider, outcome string, durationSeconds float64) {
	ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
	ProviderLatency.Observe(durationSeconds)
}

// RecordQuotaRejection records a fetch refused by the daily budget.
func RecordQuotaRejection() {
	QuotaRejectionsTotal.Inc()
}

// UpdateQuota publishes the current quota usage.
func UpdateQuota(used, limit int) {
	QuotaUsed.Set(float64(used))
	QuotaLimit.Set(float64(limit))
}

// RecordCacheLookup records an odds cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	OddsCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordSnapshotsStored records snapshots written for an interval.
func RecordSnapshotsStored(interval string, n int) {
	SnapshotsStoredTotal.WithLabelValues(interval).Add(float64(n))
}

// RecordIntervalOutcome records how a scheduled interval ended.
func RecordIntervalOutcome(interval, outcome string) {
	IntervalOutcomesTotal.WithLabelValues(interval, outcome).Inc()
}

// RecordCaptureLag records how late a capture was relative to its target.
func RecordCaptureLag(interval string, lagSeconds float64) {
	if lagSeconds < 0 {
		lagSeconds = 0
	}
	CaptureLag.WithLabelValues(interval).Observe(lagSeconds)
}

// RecordRaceMissed records an abandoned race.
func RecordRaceMissed() {
	RacesMissedTotal.Inc()
}

// RecordRecompute records a probability table computation.
func RecordRecompute(raceID string, valueBets int) {
	RecomputesTotal.Inc()
	ValueBets.WithLabelValues(raceID).Set(float64(valueBets))
}

// ClearRace drops per-race series once a race is closed.
func ClearRace(raceID string) {
	ValueBets.DeleteLabelValues(raceID)
}

// RecordCircuitBreakerTrip records a circuit breaker trip.
func RecordCircuitBreakerTrip() {
	CircuitBreakerTripsTotal.Inc()
}

// RecordPass records a completed scheduler pass.
func RecordPass(races int, durationSeconds float64) {
	MonitoredRaces.Set(float64(races))
	PassDuration.Observe(durationSeconds)
}
