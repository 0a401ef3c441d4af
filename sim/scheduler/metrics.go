package scheduler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Collector bundles Prometheus metrics for scheduled simulation runs.
// A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs      *prometheus.CounterVec
	Duration  prometheus.Histogram
	Coalesced prometheus.Counter
	Stages    prometheus.Gauge
	DeltaV    *prometheus.GaugeVec
}

// NewCollector registers scheduler metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stagesim_runs_total",
		Help: "Completed simulation runs, labeled by outcome.",
	}, []string{"outcome"}), "stagesim_runs_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stagesim_run_duration_seconds",
		Help:    "Wall-clock duration of one vacuum plus atmosphere simulation.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "stagesim_run_duration_seconds")
	if err != nil {
		return nil, err
	}
	coalesced, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stagesim_requests_coalesced_total",
		Help: "Requests merged into an already pending run.",
	}), "stagesim_requests_coalesced_total")
	if err != nil {
		return nil, err
	}
	stages, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stagesim_stages",
		Help: "Number of stages in the last published result.",
	}), "stagesim_stages")
	if err != nil {
		return nil, err
	}
	deltaV, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stagesim_total_delta_v_meters_per_second",
		Help: "Total delta-v of the last published result.",
	}, []string{"environment"}), "stagesim_total_delta_v_meters_per_second")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:  gatherer,
		Runs:      runs,
		Duration:  duration,
		Coalesced: coalesced,
		Stages:    stages,
		DeltaV:    deltaV,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) observeRun(outcome string, d time.Duration, res *Results) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
	c.Duration.Observe(d.Seconds())
	if res == nil {
		return
	}
	c.Stages.Set(float64(len(res.Vacuum)))
	if len(res.Vacuum) > 0 {
		c.DeltaV.WithLabelValues("vacuum").Set(res.Vacuum[0].TotalDeltaV)
	}
	if len(res.Atmosphere) > 0 {
		c.DeltaV.WithLabelValues("atmosphere").Set(res.Atmosphere[0].TotalDeltaV)
	}
}

func (c *Collector) incCoalesced() {
	if c == nil {
		return
	}
	c.Coalesced.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerCounter(reg prometheus.Registerer, ctr prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(ctr); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return ctr, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
