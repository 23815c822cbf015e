package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stride"

// Collectors are the live counters of one control loop. A nil *Collectors
// records nothing.
type Collectors struct {
	ticks          prometheus.Counter
	solveFailures  *prometheus.CounterVec
	staleSamples   *prometheus.CounterVec
	lateTouchdowns *prometheus.CounterVec
	fatalSignals   prometheus.Counter
	replans        prometheus.Counter
	toeOffs        *prometheus.CounterVec
	iterations     *prometheus.HistogramVec
	icpError       prometheus.Gauge
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	m := &Collectors{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control ticks executed.",
		}),
		solveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_failures_total",
			Help:      "Failed QP solves by stage.",
		}, []string{"stage"}),
		staleSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_samples_total",
			Help:      "Ticks that reused the previous sample, by source.",
		}, []string{"source"}),
		lateTouchdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_touchdowns_total",
			Help:      "Swings that timed out before the foot switch closed.",
		}, []string{"side"}),
		fatalSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_failures_total",
			Help:      "Controller failure signals sent to the supervisor.",
		}),
		replans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replans_total",
			Help:      "Centroidal plans published.",
		}),
		toeOffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toe_off_checks_total",
			Help:      "Toe-off checks by outcome.",
		}, []string{"outcome"}),
		iterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "qp_iterations",
			Help:      "Active-set iterations per solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"stage"}),
		icpError: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "icp_error_meters",
			Help:      "Distance between measured and planned capture point.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ticks,
			m.solveFailures,
			m.staleSamples,
			m.lateTouchdowns,
			m.fatalSignals,
			m.replans,
			m.toeOffs,
			m.iterations,
			m.icpError,
		)
	}
	return m
}

func (m *Collectors) Tick(icpError float64) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.icpError.Set(icpError)
}

func (m *Collectors) SolveFailure(stage string) {
	if m == nil {
		return
	}
	m.solveFailures.WithLabelValues(stage).Inc()
}

func (m *Collectors) Solved(stage string, iterations int) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(stage).Observe(float64(iterations))
}

func (m *Collectors) Stale(source string) {
	if m == nil {
		return
	}
	m.staleSamples.WithLabelValues(source).Inc()
}

func (m *Collectors) LateTouchdown(side string) {
	if m == nil {
		return
	}
	m.lateTouchdowns.WithLabelValues(side).Inc()
}

func (m *Collectors) Fatal() {
	if m == nil {
		return
	}
	m.fatalSignals.Inc()
}

func (m *Collectors) Replanned() {
	if m == nil {
		return
	}
	m.replans.Inc()
}

func (m *Collectors) ToeOff(safe bool) {
	if m == nil {
		return
	}
	outcome := "unsafe"
	if safe {
		outcome = "safe"
	}
	m.toeOffs.WithLabelValues(outcome).Inc()
}
