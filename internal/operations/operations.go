// Package operations implements the per-turn allocation models that decide
// which demands a controller senses, stores, transports and resolves.
package operations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/internal/milp"
	"github.com/signalsfoundry/orbital-federates/model"
)

// AutoStoragePenalty selects the computed expected-value-loss penalty.
const AutoStoragePenalty = -1.0

const (
	DefaultHorizon        = 6
	DefaultStoragePenalty = 10.0
	DefaultISLPenalty     = 10.0
	minAutoPenalty        = 100.0
)

// Solve outcomes reported to the Recorder.
const (
	OutcomeSolved     = "solved"
	OutcomeEmpty      = "empty"
	OutcomeInfeasible = "infeasible"
	OutcomeTimeout    = "timeout"
	OutcomeError      = "error"
)

// Recorder receives solve measurements.
type Recorder interface {
	RecordSolve(model, outcome string, elapsed time.Duration, vars, rows int)
}

type noopRecorder struct{}

func (noopRecorder) RecordSolve(string, string, time.Duration, int, int) {}

type settings struct {
	log      logging.Logger
	recorder Recorder
	timeout  time.Duration
	maxNodes int
	tracer   trace.Tracer
}

// Option configures an operations model.
type Option func(*settings)

func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.log = logging.OrNoop(l) }
}

func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithTimeout bounds each solve. A solve that runs out of time is treated
// like any other solver failure and the turn takes no action.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithMaxNodes bounds the branch-and-bound search of each solve.
func WithMaxNodes(n int) Option {
	return func(s *settings) { s.maxNodes = n }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		log:      logging.Noop(),
		recorder: noopRecorder{},
		tracer:   otel.Tracer("github.com/signalsfoundry/orbital-federates/internal/operations"),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Dynamic plans jointly over every asset of its controller, charging a small
// opportunity cost for storage and inter-satellite links.
type Dynamic struct {
	PlanningHorizon int
	// StoragePenalty is the per-step cost of holding an item, or
	// AutoStoragePenalty.
	StoragePenalty float64
	ISLPenalty     float64

	settings settings

	mu sync.Mutex
	// penalties memoizes the computed storage penalty per element for the
	// lifetime of the model.
	penalties map[*core.Element]float64
}

var _ core.Operations = (*Dynamic)(nil)

// NewDynamic returns a Dynamic model.
func NewDynamic(horizon int, storagePenalty, islPenalty float64, opts ...Option) *Dynamic {
	return &Dynamic{
		PlanningHorizon: horizon,
		StoragePenalty:  storagePenalty,
		ISLPenalty:      islPenalty,
		settings:        newSettings(opts),
		penalties:       make(map[*core.Element]float64),
	}
}

func (d *Dynamic) String() string {
	return fmt.Sprintf("d%d,%s,%g", d.PlanningHorizon, penaltyString(d.StoragePenalty), d.ISLPenalty)
}

func penaltyString(p float64) string {
	if p == AutoStoragePenalty {
		return "a"
	}
	return fmt.Sprintf("%g", p)
}

// Execute plans and realizes this turn's actions for controller.
func (d *Dynamic) Execute(ctx context.Context, controller core.Controller, world *core.Context) {
	sc := scope{
		store:          func(*core.Element) bool { return true },
		resolve:        func(*core.Element) bool { return true },
		storagePenalty: func(e *core.Element) float64 { return d.storagePenalty(e, world) },
		linkCost: func(protocol string, _, _ *core.Element) (float64, float64) {
			if core.IsISLProtocol(protocol) {
				return d.ISLPenalty, 0
			}
			return 0, 0
		},
	}
	p, sol := d.solve(ctx, "dynamic", controller, world, sc)
	if sol == nil {
		return
	}
	newRealizer(controller, world, p, sol, nil).run()
}

// solve builds and solves the plan for sc. It returns a nil solution when
// there is nothing to do or the solver failed.
func (d *Dynamic) solve(ctx context.Context, name string, controller core.Controller, world *core.Context, sc scope) (*plan, *milp.Solution) {
	ctx, span := d.settings.tracer.Start(ctx, "operations.solve", trace.WithAttributes(
		attribute.String("operations.model", name),
		attribute.String("operations.controller", controller.Name()),
		attribute.Int("sim.turn", world.Time()),
	))
	defer span.End()

	start := time.Now()
	p := buildPlan(controller, world, sc, d.PlanningHorizon)
	if p == nil {
		d.settings.recorder.RecordSolve(name, OutcomeEmpty, time.Since(start), 0, 0)
		return nil, nil
	}
	vars, rows := p.prob.NumVars(), p.prob.NumConstraints()
	span.SetAttributes(attribute.Int("milp.vars", vars), attribute.Int("milp.rows", rows))

	if d.settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.settings.timeout)
		defer cancel()
	}
	var opts []milp.Option
	if d.settings.maxNodes > 0 {
		opts = append(opts, milp.WithMaxNodes(d.settings.maxNodes))
	}
	sol, err := p.prob.Solve(ctx, opts...)
	elapsed := time.Since(start)
	if err != nil {
		outcome := OutcomeError
		switch {
		case errors.Is(err, milp.ErrInfeasible):
			outcome = OutcomeInfeasible
		case errors.Is(err, context.DeadlineExceeded):
			outcome = OutcomeTimeout
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		d.settings.recorder.RecordSolve(name, outcome, elapsed, vars, rows)
		d.settings.log.Warn(ctx, "operations solve failed; no action this turn",
			logging.String("model", name),
			logging.String("controller", controller.Name()),
			logging.Turn(world.Time()),
			logging.String("outcome", outcome),
			logging.Err(err),
		)
		return nil, nil
	}
	d.settings.recorder.RecordSolve(name, OutcomeSolved, elapsed, vars, rows)
	d.settings.log.Debug(ctx, "operations solved",
		logging.String("model", name),
		logging.String("controller", controller.Name()),
		logging.Turn(world.Time()),
		logging.Float("objective", sol.Objective),
		logging.Int("nodes", sol.Nodes),
		logging.Bool("optimal", sol.Optimal),
	)
	return p, sol
}

// storagePenalty returns the fixed penalty, or for AutoStoragePenalty the
// expected value of the best demand type e could otherwise sense, floored at
// minAutoPenalty. The computed value is kept for the lifetime of the model.
func (d *Dynamic) storagePenalty(e *core.Element, world *core.Context) float64 {
	if d.StoragePenalty != AutoStoragePenalty {
		return d.StoragePenalty
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.penalties[e]; ok {
		return p
	}
	p := expectedDemandValue(e, world.Events())
	if p < minAutoPenalty {
		p = minAutoPenalty
	}
	d.penalties[e] = p
	return p
}

type demandType struct {
	phenomenon string
	size       float64
	schedule   string
}

// expectedDemandValue is the best over demand types e can sense of the
// type's share of the catalog times its initial value.
func expectedDemandValue(e *core.Element, events []model.Event) float64 {
	if len(events) == 0 {
		return 0
	}
	counts := make(map[demandType]int)
	var order []demandType
	first := make(map[demandType]*model.Demand)
	for _, ev := range events {
		dem, ok := ev.(*model.Demand)
		if !ok {
			continue
		}
		key := demandType{dem.Phenomenon, dem.Size, fmt.Sprint(dem.Schedule, dem.Default)}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			first[key] = dem
		}
		counts[key]++
	}
	sensed := make(map[string]bool)
	for _, phen := range e.Phenomena() {
		sensed[phen] = true
	}
	best := 0.0
	for _, key := range order {
		if !sensed[key.phenomenon] {
			continue
		}
		v := float64(counts[key]) / float64(len(events)) * first[key].ValueAt(0)
		if v > best {
			best = v
		}
	}
	return best
}
