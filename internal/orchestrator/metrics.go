package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mkrolick/co-streamer/internal/model"
)

// Metrics holds the Prometheus collectors for one orchestrator
type Metrics struct {
	Registry *prometheus.Registry

	ProbesTotal      *prometheus.CounterVec
	FetchesTotal     *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	ChannelsByPhase  *prometheus.GaugeVec
	SlotsInUse       prometheus.Gauge
	FetchDuration    prometheus.Histogram
	LedgerRecordings prometheus.Counter
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costreamer_probes_total",
			Help: "Channel probes, by result.",
		},
		[]string{"result"},
	)

	m.FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costreamer_fetches_total",
			Help: "Item fetch attempts, by outcome.",
		},
		[]string{"status"},
	)

	m.FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "costreamer_failures_total",
			Help: "Classified failures, by kind and action.",
		},
		[]string{"kind", "action"},
	)

	m.ChannelsByPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "costreamer_channels",
			Help: "Channel workers currently in each phase.",
		},
		[]string{"phase"},
	)

	m.SlotsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "costreamer_slots_in_use",
			Help: "Concurrency slots held by probing or fetching workers.",
		},
	)

	m.FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "costreamer_fetch_duration_seconds",
			Help:    "Duration of item fetches.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	m.LedgerRecordings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "costreamer_ledger_recorded_total",
			Help: "Items newly recorded in the ledger.",
		},
	)

	m.Registry.MustRegister(
		m.ProbesTotal,
		m.FetchesTotal,
		m.FailuresTotal,
		m.ChannelsByPhase,
		m.SlotsInUse,
		m.FetchDuration,
		m.LedgerRecordings,
	)
	return m
}

// phaseChanged moves one channel between phase gauges
func (m *Metrics) phaseChanged(from, to model.Phase) {
	if from != "" {
		m.ChannelsByPhase.WithLabelValues(string(from)).Dec()
	}
	m.ChannelsByPhase.WithLabelValues(string(to)).Inc()
}
