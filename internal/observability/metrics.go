package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/orbital-federates/core"
)

// SimCollector bundles Prometheus metrics for a running simulation. It
// satisfies core.Recorder so the Context can drive it directly.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Turns           prometheus.Counter
	SimTime         prometheus.Gauge
	FederateCash    *prometheus.GaugeVec
	Resolutions     *prometheus.CounterVec
	ResolutionValue *prometheus.CounterVec
	Reveals         *prometheus.CounterVec
	DisturbanceHits *prometheus.CounterVec
	Liquidations    *prometheus.CounterVec
}

var _ core.Recorder = (*SimCollector)(nil)

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	turns, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ofs_turns_total",
		Help: "Total number of simulated turns committed.",
	}), "ofs_turns_total")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ofs_sim_time",
		Help: "Current simulated time.",
	}), "ofs_sim_time")
	if err != nil {
		return nil, err
	}
	cash, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ofs_federate_cash",
		Help: "Cash held by each federate at the end of the last turn.",
	}, []string{"federate"}), "ofs_federate_cash")
	if err != nil {
		return nil, err
	}
	resolutions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofs_contract_resolutions_total",
		Help: "Resolved contracts, labeled by federate and outcome.",
	}, []string{"federate", "outcome"}), "ofs_contract_resolutions_total")
	if err != nil {
		return nil, err
	}
	value, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofs_contract_value_total",
		Help: "Absolute cash moved by contract resolutions, labeled by federate and outcome.",
	}, []string{"federate", "outcome"}), "ofs_contract_value_total")
	if err != nil {
		return nil, err
	}
	reveals, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofs_events_revealed_total",
		Help: "Events revealed into sectors, labeled by kind.",
	}, []string{"kind"}), "ofs_events_revealed_total")
	if err != nil {
		return nil, err
	}
	hits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofs_disturbance_hits_total",
		Help: "Modules destroyed by disturbances, labeled by owning federate.",
	}, []string{"federate"}), "ofs_disturbance_hits_total")
	if err != nil {
		return nil, err
	}
	liquidations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofs_liquidations_total",
		Help: "Federates liquidated for negative cash.",
	}, []string{"federate"}), "ofs_liquidations_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:        gatherer,
		Turns:           turns,
		SimTime:         simTime,
		FederateCash:    cash,
		Resolutions:     resolutions,
		ResolutionValue: value,
		Reveals:         reveals,
		DisturbanceHits: hits,
		Liquidations:    liquidations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	return handlerFor(c.gatherer)
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *SimCollector) RecordTurn(time int, federates []*core.Federate) {
	if c == nil {
		return
	}
	c.Turns.Inc()
	c.SimTime.Set(float64(time))
	for _, f := range federates {
		c.FederateCash.WithLabelValues(f.Name()).Set(f.Cash)
	}
}

func (c *SimCollector) RecordResolution(federate, outcome string, value float64) {
	if c == nil {
		return
	}
	c.Resolutions.WithLabelValues(federate, outcome).Inc()
	if value < 0 {
		value = -value
	}
	c.ResolutionValue.WithLabelValues(federate, outcome).Add(value)
}

func (c *SimCollector) RecordReveal(kind string) {
	if c == nil {
		return
	}
	c.Reveals.WithLabelValues(kind).Inc()
}

func (c *SimCollector) RecordDisturbanceHit(federate string) {
	if c == nil {
		return
	}
	c.DisturbanceHits.WithLabelValues(federate).Inc()
}

func (c *SimCollector) RecordLiquidation(federate string) {
	if c == nil {
		return
	}
	c.Liquidations.WithLabelValues(federate).Inc()
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
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
