// Package ofs builds and runs orbital federates games from a compact design
// description and the catalog knowledge base.
package ofs

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/internal/operations"
	"github.com/signalsfoundry/orbital-federates/kb"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

const (
	DefaultSectors = 6
	federationName = "FSS"
)

var ErrInvalidParams = errors.New("invalid game parameters")

// Params describes one run.
type Params struct {
	Elements   string `yaml:"elements" json:"elements"`
	NumPlayers int    `yaml:"players" json:"players"`
	// InitialCash of zero funds each federate with exactly the cost of its
	// own design.
	InitialCash float64 `yaml:"initial_cash" json:"initial_cash"`
	NumTurns    int     `yaml:"turns" json:"turns"`
	Seed        int64   `yaml:"seed" json:"seed"`
	Ops         string  `yaml:"ops" json:"ops"`
	Fops        string  `yaml:"fops" json:"fops"`
	Sectors     int     `yaml:"sectors" json:"sectors"`
}

func (p Params) validate() error {
	switch {
	case p.NumPlayers < 1:
		return fmt.Errorf("%w: players must be positive", ErrInvalidParams)
	case p.NumTurns < 0:
		return fmt.Errorf("%w: turns must not be negative", ErrInvalidParams)
	case p.InitialCash < 0:
		return fmt.Errorf("%w: initial cash must not be negative", ErrInvalidParams)
	case p.Sectors < 0:
		return fmt.Errorf("%w: sectors must not be negative", ErrInvalidParams)
	}
	return nil
}

// Result is the cash summary of one federate.
type Result struct {
	Federate    string  `json:"federate"`
	InitialCash float64 `json:"initial_cash"`
	FinalCash   float64 `json:"final_cash"`
}

// Game builds runs against a knowledge base.
type Game struct {
	kb       *kb.KnowledgeBase
	log      logging.Logger
	recorder core.Recorder
	opsOpts  []operations.Option
	tracer   trace.Tracer
}

// GameOption configures a Game.
type GameOption func(*Game)

func WithKnowledgeBase(base *kb.KnowledgeBase) GameOption {
	return func(g *Game) {
		if base != nil {
			g.kb = base
		}
	}
}

func WithLogger(l logging.Logger) GameOption {
	return func(g *Game) { g.log = logging.OrNoop(l) }
}

// WithRecorder forwards simulation measurements to r.
func WithRecorder(r core.Recorder) GameOption {
	return func(g *Game) { g.recorder = r }
}

// WithTracer records one span per executed run on t.
func WithTracer(t trace.Tracer) GameOption {
	return func(g *Game) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithOperationsOptions applies opts to every operations model the game builds.
func WithOperationsOptions(opts ...operations.Option) GameOption {
	return func(g *Game) { g.opsOpts = append(g.opsOpts, opts...) }
}

// NewGame returns a Game using the embedded catalog unless another
// knowledge base is supplied.
func NewGame(opts ...GameOption) (*Game, error) {
	g := &Game{log: logging.Noop(), tracer: otel.Tracer("github.com/signalsfoundry/orbital-federates/internal/ofs")}
	for _, opt := range opts {
		opt(g)
	}
	if g.kb == nil {
		base, err := kb.Default()
		if err != nil {
			return nil, fmt.Errorf("load default catalog: %w", err)
		}
		g.kb = base
	}
	return g, nil
}

// Run is a constructed, not yet executed game.
type Run struct {
	Params     Params
	Context    *core.Context
	Simulator  *timectrl.Simulator
	Federation *core.Federation
	Federates  []*core.Federate

	placements []placement
	log        logging.Logger
	tracer     trace.Tracer
}

type placement struct {
	federate *core.Federate
	element  *core.Element
	location *model.Location
}

// Build constructs the entity graph for p.
func (g *Game) Build(p Params) (*Run, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	designs, err := ParseDesign(p.Elements, p.NumPlayers)
	if err != nil {
		return nil, err
	}
	sectors := p.Sectors
	if sectors == 0 {
		sectors = DefaultSectors
	}
	locations := model.StandardLocations(sectors)
	byName := make(map[string]*model.Location, len(locations))
	for _, loc := range locations {
		byName[loc.Name] = loc
	}

	run := &Run{Params: p, log: g.log, tracer: g.tracer}
	costs := make([]float64, p.NumPlayers)
	counts := make([]int, p.NumPlayers)
	for i := 0; i < p.NumPlayers; i++ {
		f := core.NewFederate(fmt.Sprintf("P%d", i+1), p.InitialCash, operations.Parse(p.Ops, g.opsOpts...))
		run.Federates = append(run.Federates, f)
	}
	for _, d := range designs {
		loc, ok := byName[d.Location]
		if !ok {
			return nil, fmt.Errorf("%w %q: unknown location %s", ErrInvalidDesign, d.String(), d.Location)
		}
		idx := d.Player - 1
		counts[idx]++
		name := fmt.Sprintf("%s.E%d", run.Federates[idx].Name(), counts[idx])
		e, err := g.kb.NewElement(d.Type, name, d.Modules...)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidDesign, d.String(), err)
		}
		if !e.CanCommission(loc) {
			return nil, fmt.Errorf("%w %q: %s cannot be commissioned at %s", ErrInvalidDesign, d.String(), e.Kind, loc.Name)
		}
		costs[idx] += e.DesignCost() + e.CommissionCost(loc)
		run.placements = append(run.placements, placement{federate: run.Federates[idx], element: e, location: loc})
	}
	if p.InitialCash == 0 {
		for i, f := range run.Federates {
			f.InitialCash = costs[i]
		}
	}

	run.Federation = core.NewFederation(federationName, operations.Parse(p.Fops, g.opsOpts...), run.Federates...)
	ctxOpts := []core.ContextOption{core.WithSeed(p.Seed), core.WithLogger(g.log)}
	if g.recorder != nil {
		ctxOpts = append(ctxOpts, core.WithRecorder(g.recorder))
	}
	run.Context = core.NewContext(locations, g.kb.Events(), []*core.Federation{run.Federation}, ctxOpts...)
	run.Simulator = timectrl.NewSimulator(0, 1, p.NumTurns, run.Context)
	return run, nil
}

// Execute builds and runs p to completion.
func (g *Game) Execute(ctx context.Context, p Params) ([]Result, error) {
	run, err := g.Build(p)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// Init resets the run and deploys every designed element.
func (r *Run) Init(ctx context.Context) error {
	r.Simulator.Init(ctx)
	for _, pl := range r.placements {
		pl.element.Init()
		if !pl.federate.Design(pl.element, r.Context) {
			return fmt.Errorf("design %s for %s failed", pl.element.Name, pl.federate.Name())
		}
		if !pl.federate.Commission(pl.element, pl.location, r.Context) {
			return fmt.Errorf("commission %s at %s failed", pl.element.Name, pl.location.Name)
		}
	}
	return nil
}

// Execute initialises the run and advances it until complete.
func (r *Run) Execute(ctx context.Context) (_ []Result, err error) {
	tracer := r.tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/signalsfoundry/orbital-federates/internal/ofs")
	}
	ctx, span := tracer.Start(ctx, "ofs.game", trace.WithAttributes(r.Params.attributes()...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "game failed")
		}
		span.End()
	}()

	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	r.log.Info(ctx, "game started",
		logging.Int("players", len(r.Federates)),
		logging.Int("turns", r.Params.NumTurns),
		logging.Any("seed", r.Params.Seed),
		logging.String("ops", r.Params.Ops),
		logging.String("fops", r.Params.Fops),
	)
	for !r.Simulator.IsComplete() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("game interrupted at turn %d: %w", r.Simulator.Time, err)
		}
		r.Simulator.Advance(ctx)
	}
	results := r.Results()
	var total float64
	for _, res := range results {
		total += res.FinalCash - res.InitialCash
		r.log.Info(ctx, "game finished",
			logging.String("federate", res.Federate),
			logging.Float("initial_cash", res.InitialCash),
			logging.Float("final_cash", res.FinalCash),
		)
	}
	span.SetAttributes(attribute.Float64("ofs.net_value", total))
	return results, nil
}

// attributes labels trace spans with the parameters that identify a run.
func (p Params) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("ofs.seed", p.Seed),
		attribute.Int("ofs.players", p.NumPlayers),
		attribute.Int("ofs.turns", p.NumTurns),
		attribute.String("ofs.ops", p.Ops),
		attribute.String("ofs.fops", p.Fops),
		attribute.String("ofs.elements", p.Elements),
	}
}

// Results reports each federate's initial and current cash in player order.
func (r *Run) Results() []Result {
	out := make([]Result, len(r.Federates))
	for i, f := range r.Federates {
		out[i] = Result{Federate: f.Name(), InitialCash: f.InitialCash, FinalCash: f.Cash}
	}
	return out
}
