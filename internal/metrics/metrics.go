// Package metrics exposes Prometheus collectors for the conversational pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BotMetrics records per-turn and per-checkout outcomes. A nil *BotMetrics is a no-op.
type BotMetrics struct {
	turns       *prometheus.CounterVec
	duration    prometheus.Histogram
	rateLimited prometheus.Counter
	commits     *prometheus.CounterVec
	oracle      *prometheus.CounterVec
}

// New registers the bot collectors on reg.
func New(reg prometheus.Registerer) *BotMetrics {
	if reg == nil {
		return &BotMetrics{}
	}
	turns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_turns_total",
		Help: "Processed conversation turns by matched intent.",
	}, []string{"intent"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_turn_duration_seconds",
		Help:    "Time spent handling one inbound message.",
		Buckets: prometheus.DefBuckets,
	})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_rate_limited_total",
		Help: "Inbound messages dropped by admission control.",
	})
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_inventory_commits_total",
		Help: "Inventory commits by result.",
	}, []string{"result"})
	oracle := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_oracle_calls_total",
		Help: "Fallback completion calls by result.",
	}, []string{"result"})
	reg.MustRegister(turns, duration, rateLimited, commits, oracle)
	return &BotMetrics{
		turns:       turns,
		duration:    duration,
		rateLimited: rateLimited,
		commits:     commits,
		oracle:      oracle,
	}
}

// ObserveTurn counts a turn and records its duration.
func (m *BotMetrics) ObserveTurn(intent string, d time.Duration) {
	if m == nil || m.turns == nil {
		return
	}
	m.turns.WithLabelValues(normalizeLabel(intent)).Inc()
	m.duration.Observe(d.Seconds())
}

// IncRateLimited counts a dropped message.
func (m *BotMetrics) IncRateLimited() {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.Inc()
}

// IncCommit counts an inventory commit with result "ok", "conflict" or "error".
func (m *BotMetrics) IncCommit(result string) {
	if m == nil || m.commits == nil {
		return
	}
	m.commits.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncOracle counts a completion call with result "ok" or "error".
func (m *BotMetrics) IncOracle(result string) {
	if m == nil || m.oracle == nil {
		return
	}
	m.oracle.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
