package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Core holds the runtime's own metrics: component lifecycle, config
// reloads, and health. Components get their own instruments through
// the Registrar interface instead.
type Core struct {
	ComponentState   *prometheus.GaugeVec
	StartDuration    *prometheus.HistogramVec
	StopDuration     *prometheus.HistogramVec
	StartFailures    *prometheus.CounterVec
	ConfigVersion    prometheus.Gauge
	ConfigReloads    *prometheus.CounterVec
	RebindsTotal     *prometheus.CounterVec
	HealthStatus     *prometheus.GaugeVec
	ProbeDuration    *prometheus.HistogramVec
	ResolutionsTotal *prometheus.CounterVec
}

func newCore() *Core {
	return &Core{
		ComponentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "runtimekit",
				Subsystem: "component",
				Name:      "state",
				Help:      "Component lifecycle state (0=registered, 1=configuring, 2=configured, 3=starting, 4=running, 5=stopping, 6=stopped, 7=failed)",
			},
			[]string{"component"},
		),
		StartDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runtimekit",
				Subsystem: "component",
				Name:      "start_duration_seconds",
				Help:      "Time spent starting each component",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),
		StopDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runtimekit",
				Subsystem: "component",
				Name:      "stop_duration_seconds",
				Help:      "Time spent stopping each component",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component"},
		),
		StartFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runtimekit",
				Subsystem: "component",
				Name:      "start_failures_total",
				Help:      "Component start attempts that failed",
			},
			[]string{"component"},
		),
		ConfigVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "runtimekit",
				Subsystem: "config",
				Name:      "snapshot_version",
				Help:      "Version of the currently published config snapshot",
			},
		),
		ConfigReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runtimekit",
				Subsystem: "config",
				Name:      "reloads_total",
				Help:      "Configuration reload attempts",
			},
			[]string{"status"},
		),
		RebindsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runtimekit",
				Subsystem: "config",
				Name:      "rebinds_total",
				Help:      "Component reconfigurations after a reload",
			},
			[]string{"component", "status"},
		),
		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "runtimekit",
				Subsystem: "health",
				Name:      "status",
				Help:      "Component health (0=unknown, 1=healthy, 2=degraded, 3=unhealthy)",
			},
			[]string{"component"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "runtimekit",
				Subsystem: "health",
				Name:      "probe_duration_seconds",
				Help:      "Time spent in each health probe",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5},
			},
			[]string{"component"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "runtimekit",
				Subsystem: "resolver",
				Name:      "resolutions_total",
				Help:      "Component resolutions by lifetime",
			},
			[]string{"lifetime"},
		),
	}
}

func (c *Core) mustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		c.ComponentState,
		c.StartDuration,
		c.StopDuration,
		c.StartFailures,
		c.ConfigVersion,
		c.ConfigReloads,
		c.RebindsTotal,
		c.HealthStatus,
		c.ProbeDuration,
		c.ResolutionsTotal,
	)
}

// ObserveStart records a completed start attempt.
func (c *Core) ObserveStart(component string, d time.Duration, failed bool) {
	c.StartDuration.WithLabelValues(component).Observe(d.Seconds())
	if failed {
		c.StartFailures.WithLabelValues(component).Inc()
	}
}

// ObserveStop records a completed stop attempt.
func (c *Core) ObserveStop(component string, d time.Duration) {
	c.StopDuration.WithLabelValues(component).Observe(d.Seconds())
}

// SetComponentState publishes a component's lifecycle state.
func (c *Core) SetComponentState(component string, state int) {
	c.ComponentState.WithLabelValues(component).Set(float64(state))
}

// ObserveReload records a reload attempt and, on success, the new
// snapshot version.
func (c *Core) ObserveReload(version uint64, err error) {
	if err != nil {
		c.ConfigReloads.WithLabelValues("failure").Inc()
		return
	}
	c.ConfigReloads.WithLabelValues("success").Inc()
	c.ConfigVersion.Set(float64(version))
}
