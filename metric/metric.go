// Package metric exposes block counters as prometheus metrics.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace  = "sdr"
	blockLabel = "block"
)

const (
	// SampleCounter measures number of samples produced by block.
	SampleCounter = "samples_total"
	// RunCounter measures number of run calls.
	RunCounter = "runs_total"
	// StartCounter measures number of worker starts, including restarts
	// after pause.
	StartCounter = "starts_total"
	// DurationCounter measures duration of produced signal in seconds.
	DurationCounter = "signal_seconds_total"
)

// Metric holds counters of all measured blocks.
type Metric struct {
	registry *prometheus.Registry
	samples  *prometheus.CounterVec
	runs     *prometheus.CounterVec
	starts   *prometheus.CounterVec
	duration *prometheus.CounterVec

	mu     sync.Mutex
	meters map[string]*Meter
}

// New creates a metric with its own registry.
func New() *Metric {
	newVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "block",
			Name:      name,
			Help:      help,
		}, []string{blockLabel})
	}
	m := &Metric{
		registry: prometheus.NewRegistry(),
		samples:  newVec(SampleCounter, "Number of samples produced by block."),
		runs:     newVec(RunCounter, "Number of run calls completed by block."),
		starts:   newVec(StartCounter, "Number of worker starts of block."),
		duration: newVec(DurationCounter, "Duration of signal produced by block."),
		meters:   make(map[string]*Meter),
	}
	m.registry.MustRegister(m.samples, m.runs, m.starts, m.duration)
	return m
}

// Registry returns underlying prometheus registry.
func (m *Metric) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns http handler that serves metrics.
func (m *Metric) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Meter returns meter for the block. Meters are cached by block name, so
// a block that is recreated with the same name continues its counters.
// Nil metric returns nil meter, which is safe to use.
func (m *Metric) Meter(block string, sampleRate float64) *Meter {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if meter, ok := m.meters[block]; ok {
		meter.setSampleRate(sampleRate)
		return meter
	}
	meter := &Meter{
		samples:    m.samples.WithLabelValues(block),
		runs:       m.runs.WithLabelValues(block),
		starts:     m.starts.WithLabelValues(block),
		duration:   m.duration.WithLabelValues(block),
		sampleRate: sampleRate,
	}
	m.meters[block] = meter
	return meter
}

// Meter captures counters of a single block.
type Meter struct {
	samples  prometheus.Counter
	runs     prometheus.Counter
	starts   prometheus.Counter
	duration prometheus.Counter

	mu         sync.Mutex
	sampleRate float64
}

// Run captures a completed run call which produced n samples.
func (m *Meter) Run(n int) {
	if m == nil {
		return
	}
	m.runs.Inc()
	if n <= 0 {
		return
	}
	m.samples.Add(float64(n))
	m.mu.Lock()
	sr := m.sampleRate
	m.mu.Unlock()
	if sr > 0 {
		m.duration.Add(float64(n) / sr)
	}
}

// Start captures a worker start.
func (m *Meter) Start() {
	if m == nil {
		return
	}
	m.starts.Inc()
}

func (m *Meter) setSampleRate(sr float64) {
	m.mu.Lock()
	m.sampleRate = sr
	m.mu.Unlock()
}

// SetSampleRate updates the rate used to calculate signal duration.
func (m *Meter) SetSampleRate(sr float64) {
	if m == nil {
		return
	}
	m.setSampleRate(sr)
}
