// Package metrics exposes the decoder processing counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds the Prometheus collectors of one decoder process.
type Manager struct {
	namespace       string
	subsystem       string
	durationBuckets []float64
	constLabels     map[string]string
	registry        prometheus.Registerer

	recordsDecoded *prometheus.CounterVec
	correlated     prometheus.Counter
	singles        *prometheus.CounterVec
	macropulses    prometheus.Counter
	rollovers      *prometheus.CounterVec
	errors         *prometheus.CounterVec

	filesProcessed *prometheus.CounterVec
	fileDuration   prometheus.Histogram
	activeWorkers  prometheus.Gauge
	maxDeadtime    *prometheus.GaugeVec
}

// NewRegistry returns a registry without the default Go collectors.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "tof",
		subsystem:       "decoder",
		durationBuckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		constLabels:     make(map[string]string),
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recordsDecoded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "records_decoded_total",
		Help:        "Records decoded by event kind and channel",
		ConstLabels: m.constLabels,
	}, []string{"kind", "channel"})

	m.correlated = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "coincidences_total",
		Help:        "Correlated left/right events",
		ConstLabels: m.constLabels,
	})

	m.singles = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "singles_total",
		Help:        "Events passed through without a coincidence partner",
		ConstLabels: m.constLabels,
	}, []string{"channel"})

	m.macropulses = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "macropulses_total",
		Help:        "Target changer signals seen",
		ConstLabels: m.constLabels,
	})

	m.rollovers = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "timetag_rollovers_total",
		Help:        "Coarse time rollovers per channel",
		ConstLabels: m.constLabels,
	}, []string{"channel"})

	m.errors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_total",
		Help:        "Fatal errors by component",
		ConstLabels: m.constLabels,
	}, []string{"component"})

	m.filesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "files_processed_total",
		Help:        "Input files processed by outcome",
		ConstLabels: m.constLabels,
	}, []string{"status"})

	m.fileDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "file_duration_seconds",
		Help:        "Time spent processing one input file",
		Buckets:     m.durationBuckets,
		ConstLabels: m.constLabels,
	})

	m.activeWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "active_workers",
		Help:        "Workers currently processing a file",
		ConstLabels: m.constLabels,
	})

	m.maxDeadtime = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "max_deadtime_fraction",
		Help:        "Largest estimated dead time fraction per histogram",
		ConstLabels: m.constLabels,
	}, []string{"histogram"})
}

func (m *Manager) RecordDecoded(kind string, channel uint8) {
	m.recordsDecoded.WithLabelValues(kind, strconv.Itoa(int(channel))).Inc()
}

func (m *Manager) RecordCorrelated() {
	m.correlated.Inc()
}

func (m *Manager) RecordSingle(channel uint8) {
	m.singles.WithLabelValues(strconv.Itoa(int(channel))).Inc()
}

func (m *Manager) RecordMacropulse() {
	m.macropulses.Inc()
}

func (m *Manager) RecordRollover(channel uint8) {
	m.rollovers.WithLabelValues(strconv.Itoa(int(channel))).Inc()
}

func (m *Manager) RecordError(component string) {
	m.errors.WithLabelValues(component).Inc()
}

func (m *Manager) SetMaxDeadtime(histogram string, fraction float64) {
	m.maxDeadtime.WithLabelValues(histogram).Set(fraction)
}

// RecordFile records the outcome and duration of one input file.
func (m *Manager) RecordFile(ok bool, seconds float64) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.filesProcessed.WithLabelValues(status).Inc()
	m.fileDuration.Observe(seconds)
}

func (m *Manager) WorkerStarted() {
	m.activeWorkers.Inc()
}

func (m *Manager) WorkerDone() {
	m.activeWorkers.Dec()
}
