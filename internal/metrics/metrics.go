package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Relay pipeline
	// ============================================
	RelayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total relay requests by terminal outcome",
		},
		[]string{"outcome"}, // accepted / validation / auth / expired / replay / upstream
	)

	RelaySubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_submission_duration_seconds",
		Help:    "Duration of on-chain stake submission including retries",
		Buckets: prometheus.DefBuckets,
	})

	RelayNonceResyncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_nonce_resyncs_total",
		Help: "Times the relayer nonce was re-synced from chain state",
	})

	RelayRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_submission_retries_total",
			Help: "Submission retries by cause",
		},
		[]string{"cause"}, // transient / nonce / underpriced
	)

	ReplayRecordsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_replay_records_pruned_total",
		Help: "Replay records removed by the retention pruner",
	})

	// ============================================
	// Relayer account
	// ============================================
	RelayerBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayer_balance_eth",
			Help: "Relayer account balance in ether",
		},
		[]string{"address"},
	)

	RelayerNonce = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_nonce",
		Help: "Next nonce the relayer will use",
	})

	// ============================================
	// Chain data aggregation
	// ============================================
	SwapQuotesDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swap_quotes_degraded_total",
		Help: "Swap quotes served from the fallback rate table",
	})

	GasEstimateCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gas_estimate_cache_total",
			Help: "Gas estimate cache lookups by result",
		},
		[]string{"result"}, // hit / miss
	)

	ChainReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_read_duration_seconds",
			Help:    "Duration of read-only chain queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// ============================================
	// Database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})
)
