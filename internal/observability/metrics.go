package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the simulation core and
// provides a ready-to-serve /metrics handler. It satisfies the ledger's
// MetricsRecorder interface and the predictor client's CallObserver so
// both can drive metrics without importing this package's types.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Handovers          *prometheus.CounterVec
	Fallbacks          *prometheus.CounterVec
	Ticks              prometheus.Counter
	TickDurations      prometheus.Histogram
	PredictorDurations *prometheus.HistogramVec

	Stations    prometheus.Gauge
	Cells       prometheus.Gauge
	ArmedTimers prometheus.Gauge
}

// NewSimCollector registers simulation Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when
// nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	handovers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_handovers_total",
		Help: "Total number of applied handovers, labeled by trigger reason.",
	}, []string{"reason"})
	handovers, err := registerCounterVec(reg, handovers, "sim_handovers_total")
	if err != nil {
		return nil, err
	}

	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_decision_fallbacks_total",
		Help: "Total number of decisions degraded to the rule path, labeled by fallback reason.",
	}, []string{"reason"})
	fallbacks, err = registerCounterVec(reg, fallbacks, "sim_decision_fallbacks_total")
	if err != nil {
		return nil, err
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total number of completed simulation ticks.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	tickDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock duration of one simulation tick in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	predictorDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_predictor_call_duration_seconds",
		Help:    "External predictor call latency in seconds, labeled by outcome.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"outcome"})
	predictorDurations, err = registerHistogramVec(reg, predictorDurations, "sim_predictor_call_duration_seconds")
	if err != nil {
		return nil, err
	}

	stations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_stations",
		Help: "Current number of stations in the ledger.",
	}), "sim_stations")
	if err != nil {
		return nil, err
	}
	cells, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_cells",
		Help: "Current number of cells in the ledger.",
	}), "sim_cells")
	if err != nil {
		return nil, err
	}
	armedTimers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_armed_a3_timers",
		Help: "Number of (station, candidate) pairs currently holding an armed A3 timer.",
	}), "sim_armed_a3_timers")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:           gatherer,
		Handovers:          handovers,
		Fallbacks:          fallbacks,
		Ticks:              ticks,
		TickDurations:      tickDurations,
		PredictorDurations: predictorDurations,
		Stations:           stations,
		Cells:              cells,
		ArmedTimers:        armedTimers,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// HandoverApplied counts one applied handover by trigger reason.
func (c *SimCollector) HandoverApplied(reason string) {
	if c == nil || c.Handovers == nil {
		return
	}
	c.Handovers.WithLabelValues(reason).Inc()
}

// FallbackOccurred counts one degraded decision by fallback reason.
func (c *SimCollector) FallbackOccurred(reason string) {
	if c == nil || c.Fallbacks == nil {
		return
	}
	c.Fallbacks.WithLabelValues(reason).Inc()
}

// TickCompleted records one finished tick and its wall-clock duration.
func (c *SimCollector) TickCompleted(d time.Duration) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.TickDurations != nil {
		c.TickDurations.Observe(d.Seconds())
	}
}

// ObservePredictorCall records one predictor round trip.
func (c *SimCollector) ObservePredictorCall(d time.Duration, outcome string) {
	if c == nil || c.PredictorDurations == nil {
		return
	}
	c.PredictorDurations.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetEntityCounts drives the station/cell gauges from the ledger.
func (c *SimCollector) SetEntityCounts(stations, cells int) {
	if c == nil {
		return
	}
	if c.Stations != nil {
		c.Stations.Set(float64(stations))
	}
	if c.Cells != nil {
		c.Cells.Set(float64(cells))
	}
}

// SetArmedTimers drives the armed A3 timer gauge from the ledger.
func (c *SimCollector) SetArmedTimers(n int) {
	if c == nil || c.ArmedTimers == nil {
		return
	}
	c.ArmedTimers.Set(float64(n))
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

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
