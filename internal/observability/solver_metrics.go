package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/orbital-federates/internal/operations"
)

// SolverCollector exposes metrics for the per-turn allocation solves.
type SolverCollector struct {
	gatherer prometheus.Gatherer

	Solves        *prometheus.CounterVec
	SolveDuration *prometheus.HistogramVec
	ProblemSize   *prometheus.GaugeVec
}

var _ operations.Recorder = (*SolverCollector)(nil)

// NewSolverCollector registers solver metrics against the provided registerer.
func NewSolverCollector(reg prometheus.Registerer) (*SolverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	solves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofs_operations_solves_total",
		Help: "Allocation solves, labeled by model and outcome.",
	}, []string{"model", "outcome"}), "ofs_operations_solves_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ofs_operations_solve_duration_seconds",
		Help:    "Duration of allocation formulation and solve.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"model"}), "ofs_operations_solve_duration_seconds")
	if err != nil {
		return nil, err
	}
	size, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ofs_operations_problem_size",
		Help: "Size of the last allocation problem, labeled by model and dimension (vars or rows).",
	}, []string{"model", "dimension"}), "ofs_operations_problem_size")
	if err != nil {
		return nil, err
	}

	return &SolverCollector{
		gatherer:      gatherer,
		Solves:        solves,
		SolveDuration: duration,
		ProblemSize:   size,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SolverCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RecordSolve records one solve. Empty plans count but are not timed.
func (c *SolverCollector) RecordSolve(model, outcome string, elapsed time.Duration, vars, rows int) {
	if c == nil {
		return
	}
	c.Solves.WithLabelValues(model, outcome).Inc()
	if outcome == operations.OutcomeEmpty {
		return
	}
	c.SolveDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	c.ProblemSize.WithLabelValues(model, "vars").Set(float64(vars))
	c.ProblemSize.WithLabelValues(model, "rows").Set(float64(rows))
}
