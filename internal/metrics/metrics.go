// Package metrics exposes the engine's ambient Prometheus counters and
// gauges: trade outcomes, circuit-breaker state, and worker pool
// queue depth/throughput/latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dzakiart/derivengine/internal/workerpool"
)

// TradesTotal counts settled contracts by symbol and result.
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "derivengine",
		Subsystem: "trading",
		Name:      "trades_total",
		Help:      "Total number of settled contracts",
	},
	[]string{"symbol", "result"}, // result: win, loss
)

// ProfitTotal is the cumulative realized profit in account currency.
var ProfitTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "derivengine",
		Subsystem: "trading",
		Name:      "profit_total",
		Help:      "Total realized profit across all settled contracts",
	},
)

// BuyFailuresTotal counts failed buy submissions by symbol.
var BuyFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "derivengine",
		Subsystem: "trading",
		Name:      "buy_failures_total",
		Help:      "Total number of failed buy submissions",
	},
	[]string{"symbol"},
)

// CircuitBreakerState reports whether the circuit breaker is tripped
// (1=tripped, 0=clear) per symbol.
var CircuitBreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "derivengine",
		Subsystem: "risk",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (1=tripped, 0=clear)",
	},
	[]string{"symbol"},
)

// MartingaleLevel reports the current martingale recovery level per
// symbol.
var MartingaleLevel = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "derivengine",
		Subsystem: "trading",
		Name:      "martingale_level",
		Help:      "Current martingale recovery level",
	},
	[]string{"symbol"},
)

// ScannerQueueDepth reports the Pair Scanner worker pool's pending task
// count at the last sweep submission.
var ScannerQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "derivengine",
		Subsystem: "scanner",
		Name:      "queue_depth",
		Help:      "Pending tasks in the pair scanner worker pool",
	},
)

// ScannerSweepP99Seconds reports the worker pool's P99 per-symbol
// Analyze() latency over its rolling sample window.
var ScannerSweepP99Seconds = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "derivengine",
		Subsystem: "scanner",
		Name:      "sweep_p99_seconds",
		Help:      "P99 latency of a single symbol's analysis within the worker pool",
	},
)

// ScannerSweepThroughput reports the worker pool's completed-analyses-per-
// second rate since the scanner started.
var ScannerSweepThroughput = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "derivengine",
		Subsystem: "scanner",
		Name:      "sweep_throughput",
		Help:      "Symbol analyses completed per second by the worker pool",
	},
)

// ScannerSweepOutcomes reports the worker pool's cumulative task outcomes.
var ScannerSweepOutcomes = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "derivengine",
		Subsystem: "scanner",
		Name:      "sweep_outcomes",
		Help:      "Cumulative worker pool task outcomes",
	},
	[]string{"outcome"}, // outcome: completed, failed, timeout, panic_recovered
)

// RecordPoolStats folds a worker pool's PoolStats snapshot into the
// scanner's throughput/latency/outcome gauges.
func RecordPoolStats(stats workerpool.PoolStats) {
	ScannerSweepP99Seconds.Set(stats.P99Latency.Seconds())
	ScannerSweepThroughput.Set(stats.Throughput)
	ScannerSweepOutcomes.WithLabelValues("completed").Set(float64(stats.TasksCompleted))
	ScannerSweepOutcomes.WithLabelValues("failed").Set(float64(stats.TasksFailed))
	ScannerSweepOutcomes.WithLabelValues("timeout").Set(float64(stats.TasksTimeout))
	ScannerSweepOutcomes.WithLabelValues("panic_recovered").Set(float64(stats.PanicRecovered))
}

// EntryFilterEvaluations counts Entry Filter verdicts by risk mode and
// outcome.
var EntryFilterEvaluations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "derivengine",
		Subsystem: "entryfilter",
		Name:      "evaluations_total",
		Help:      "Total Entry Filter evaluations by risk mode and outcome",
	},
	[]string{"mode", "outcome"}, // outcome: allowed, blocked
)

// RecordTrade folds a settled contract's outcome into the trade counters.
func RecordTrade(symbol string, isWin bool, profit float64) {
	result := "loss"
	if isWin {
		result = "win"
	}
	TradesTotal.WithLabelValues(symbol, result).Inc()
	ProfitTotal.Add(profit)
}

// RecordBuyFailure increments the buy-failure counter for symbol.
func RecordBuyFailure(symbol string) {
	BuyFailuresTotal.WithLabelValues(symbol).Inc()
}

// SetCircuitBreaker reports the circuit breaker's current state for
// symbol.
func SetCircuitBreaker(symbol string, tripped bool) {
	if tripped {
		CircuitBreakerState.WithLabelValues(symbol).Set(1)
		return
	}
	CircuitBreakerState.WithLabelValues(symbol).Set(0)
}

// SetMartingaleLevel reports the current martingale level for symbol.
func SetMartingaleLevel(symbol string, level int) {
	MartingaleLevel.WithLabelValues(symbol).Set(float64(level))
}

// RecordEntryFilterEvaluation folds an Entry Filter verdict into the
// per-mode evaluation counters.
func RecordEntryFilterEvaluation(mode string, allowed bool) {
	outcome := "blocked"
	if allowed {
		outcome = "allowed"
	}
	EntryFilterEvaluations.WithLabelValues(mode, outcome).Inc()
}
