package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics

	harvestdMetricsOnce sync.Once
	harvestdRegistry    *HarvestdMetrics

	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics

	indexdMetricsOnce sync.Once
	indexdRegistry    *IndexdMetrics
)

// RPCMetrics returns the lazily-initialised registry recording JSON-RPC
// handler activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and RPC error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bene",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting or auth.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records one handled RPC call. A zero code means success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the rejection counter. Reasons should be stable
// strings such as "rate_limit" or "unauthorized".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// VaultMetrics captures the business counters of the conversion engine.
type VaultMetrics struct {
	contributions prometheus.Counter
	conversions   *prometheus.CounterVec
	claims        prometheus.Counter
	harvests      prometheus.Counter
	rewards       *prometheus.CounterVec
}

// Vault returns the singleton vault metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			contributions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "vault",
				Name:      "contributions_total",
				Help:      "Count of accepted benefactor contributions.",
			}),
			conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "vault",
				Name:      "conversions_total",
				Help:      "Count of conversion attempts segmented by outcome.",
			}, []string{"outcome"}),
			claims: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "vault",
				Name:      "claims_total",
				Help:      "Count of non-zero fee claims paid out.",
			}),
			harvests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "vault",
				Name:      "harvests_total",
				Help:      "Count of completed fee harvests.",
			}),
			rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "vault",
				Name:      "rewards_total",
				Help:      "Count of caller incentive attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			vaultRegistry.contributions,
			vaultRegistry.conversions,
			vaultRegistry.claims,
			vaultRegistry.harvests,
			vaultRegistry.rewards,
		)
	})
	return vaultRegistry
}

// RecordContribution counts one accepted contribution.
func (m *VaultMetrics) RecordContribution() {
	if m == nil {
		return
	}
	m.contributions.Inc()
}

// RecordConversion counts a conversion attempt.
func (m *VaultMetrics) RecordConversion(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.conversions.WithLabelValues(outcome).Inc()
}

// RecordClaim counts a paid claim.
func (m *VaultMetrics) RecordClaim() {
	if m == nil {
		return
	}
	m.claims.Inc()
}

// RecordHarvest counts a completed harvest.
func (m *VaultMetrics) RecordHarvest() {
	if m == nil {
		return
	}
	m.harvests.Inc()
}

// RecordReward counts a caller incentive attempt.
func (m *VaultMetrics) RecordReward(outcome string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(outcome))
	if normalized == "" {
		normalized = "unknown"
	}
	m.rewards.WithLabelValues(normalized).Inc()
}

// HarvestdMetrics captures the harvest daemon loop counters.
type HarvestdMetrics struct {
	runs    *prometheus.CounterVec
	lastRun prometheus.Gauge
}

// Harvestd returns the singleton harvest daemon registry.
func Harvestd() *HarvestdMetrics {
	harvestdMetricsOnce.Do(func() {
		harvestdRegistry = &HarvestdMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "harvestd",
				Name:      "runs_total",
				Help:      "Count of harvest cycles segmented by outcome.",
			}, []string{"outcome"}),
			lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "bene",
				Subsystem: "harvestd",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix timestamp of the most recent harvest cycle.",
			}),
		}
		prometheus.MustRegister(harvestdRegistry.runs, harvestdRegistry.lastRun)
	})
	return harvestdRegistry
}

// ObserveRun records one harvest cycle.
func (m *HarvestdMetrics) ObserveRun(at time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.lastRun.Set(float64(at.Unix()))
}

// GatewayMetrics captures REST facade activity.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// Gateway returns the singleton gateway registry.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Count of gateway requests segmented by route and status.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bene",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway routes.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(gatewayRegistry.requests, gatewayRegistry.latency)
	})
	return gatewayRegistry
}

// Observe records one proxied gateway request.
func (m *GatewayMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// IndexdMetrics captures the indexer consumer counters.
type IndexdMetrics struct {
	indexed *prometheus.CounterVec
	cursor  prometheus.Gauge
}

// Indexd returns the singleton indexer registry.
func Indexd() *IndexdMetrics {
	indexdMetricsOnce.Do(func() {
		indexdRegistry = &IndexdMetrics{
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "indexd",
				Name:      "events_indexed_total",
				Help:      "Count of indexed events segmented by type.",
			}, []string{"type"}),
			cursor: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "bene",
				Subsystem: "indexd",
				Name:      "cursor",
				Help:      "Most recently persisted event cursor.",
			}),
		}
		prometheus.MustRegister(indexdRegistry.indexed, indexdRegistry.cursor)
	})
	return indexdRegistry
}

// RecordIndexed counts one stored event and advances the cursor gauge.
func (m *IndexdMetrics) RecordIndexed(eventType string, cursor uint64) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.indexed.WithLabelValues(eventType).Inc()
	m.cursor.Set(float64(cursor))
}
