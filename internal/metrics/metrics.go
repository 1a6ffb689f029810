// Package metrics holds the Prometheus collectors shared by the sweep engine
// and the HTTP layer.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ipscope"

// Probe result label values.
const (
	ResultOnline  = "online"
	ResultTimeout = "timeout"
	ResultOther   = "other"
)

// Sweep groups the collectors updated while sweeping address ranges.
type Sweep struct {
	Probes        *prometheus.CounterVec
	ProbeLatency  *prometheus.HistogramVec
	SweepDuration *prometheus.HistogramVec
	InFlight      prometheus.Gauge
}

// NewSweep creates the sweep collectors and registers them with reg. A nil
// reg leaves them unregistered, which tests rely on. Collectors that are
// already registered are reused.
func NewSweep(reg prometheus.Registerer) (*Sweep, error) {
	m := &Sweep{
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "total",
			Help:      "Probes issued, by method and result.",
		}, []string{"method", "result"}),
		ProbeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "latency_seconds",
			Help:      "Round-trip time of successful probes.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"method"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of complete sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"method"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "in_flight",
			Help:      "Probes currently outstanding.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	m.Probes, err = register(reg, m.Probes)
	if err != nil {
		return nil, err
	}
	m.ProbeLatency, err = register(reg, m.ProbeLatency)
	if err != nil {
		return nil, err
	}
	m.SweepDuration, err = register(reg, m.SweepDuration)
	if err != nil {
		return nil, err
	}
	m.InFlight, err = register(reg, m.InFlight)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveProbe records one probe outcome.
func (m *Sweep) ObserveProbe(method, result string, latencyMs *float64) {
	m.Probes.WithLabelValues(method, result).Inc()
	if latencyMs != nil {
		m.ProbeLatency.WithLabelValues(method).Observe(*latencyMs / 1000)
	}
}

// ObserveSweep records the duration of one sweep.
func (m *Sweep) ObserveSweep(method string, d time.Duration) {
	m.SweepDuration.WithLabelValues(method).Observe(d.Seconds())
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
