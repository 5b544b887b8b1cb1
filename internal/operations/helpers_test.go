package operations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

var testCosts = core.ElementCosts{
	Design:     100,
	Commission: map[string]float64{"SUR": 0, "LEO": 0, "MEO": 0, "GEO": 0},
}

func sensor(phenomenon string) core.ModuleSpec {
	return core.ModuleSpec{Type: phenomenon, Kind: core.ModuleSensor, Size: 1, Capacity: 1, Phenomenon: phenomenon, MaxSensed: 1}
}

func link(protocol string) core.ModuleSpec {
	return core.ModuleSpec{Type: protocol, Kind: core.ModuleLink, Size: 1, Capacity: 1, Protocol: protocol, MaxTransmitted: 1, MaxReceived: 1}
}

func element(name string, kind core.ElementKind, specs ...core.ModuleSpec) *core.Element {
	e := core.NewElement(name, "Test", kind, 6, testCosts)
	for i, spec := range specs {
		e.AddModule(core.NewModule(fmt.Sprintf("%s.m%d", name, i+1), spec))
	}
	return e
}

func sat(name string, specs ...core.ModuleSpec) *core.Element {
	return element(name, core.Satellite, specs...)
}

func station(name string, specs ...core.ModuleSpec) *core.Element {
	return element(name, core.GroundStation, specs...)
}

func visDemand(name string) *model.Demand {
	return model.NewDemand(name, "VIS", 1,
		model.NewValueSchedule(model.Breakpoint{Time: 1, Value: 500}, model.Breakpoint{Time: 4, Value: 400}), -50)
}

type world struct {
	ctx *core.Context
	sim *timectrl.Simulator
}

func newWorld(t *testing.T, maxTime int, events []model.Event, federations ...*core.Federation) *world {
	t.Helper()
	ctx := core.NewContext(model.StandardLocations(6), events, federations, core.WithSeed(7))
	sim := timectrl.NewSimulator(0, 1, maxTime, ctx)
	sim.Init(context.Background())
	return &world{ctx: ctx, sim: sim}
}

func (w *world) advance(n int) {
	for i := 0; i < n; i++ {
		w.sim.Advance(context.Background())
	}
}

func (w *world) deploy(t *testing.T, f *core.Federate, e *core.Element, location string) {
	t.Helper()
	if !f.Design(e, w.ctx) || !f.Commission(e, w.ctx.Location(location), w.ctx) {
		t.Fatalf("deploy %s at %s failed", e.Name, location)
	}
}

type solveRecord struct {
	model, outcome string
	vars, rows     int
}

type fakeRecorder struct {
	mu     sync.Mutex
	solves []solveRecord
}

func (r *fakeRecorder) RecordSolve(model, outcome string, _ time.Duration, vars, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.solves = append(r.solves, solveRecord{model, outcome, vars, rows})
}

func (r *fakeRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.solves))
	for i, s := range r.solves {
		out[i] = s.outcome
	}
	return out
}
