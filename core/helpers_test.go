package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

func sensorSpec(phenomenon string) ModuleSpec {
	return ModuleSpec{Type: phenomenon, Kind: ModuleSensor, Cost: 250, Size: 1, Capacity: 1, Phenomenon: phenomenon, MaxSensed: 1}
}

func storageSpec() ModuleSpec {
	return ModuleSpec{Type: "DAT", Kind: ModuleStorage, Cost: 50, Size: 1, Capacity: 1}
}

func defenseSpec() ModuleSpec {
	return ModuleSpec{Type: "DEF", Kind: ModuleDefense, Cost: 100, Size: 1}
}

func linkSpec(protocol string) ModuleSpec {
	return ModuleSpec{Type: protocol, Kind: ModuleLink, Cost: 50, Size: 1, Capacity: 1, Protocol: protocol, MaxTransmitted: 1, MaxReceived: 1}
}

var testCosts = ElementCosts{
	Design:     100,
	Commission: map[string]float64{"SUR": 0, "LEO": 0, "MEO": 50, "GEO": 100},
	Salvage:    map[string]float64{"SUR": 60},
}

func newTestElement(name string, kind ElementKind, specs ...ModuleSpec) *Element {
	e := NewElement(name, "Test", kind, 6, testCosts)
	for i, spec := range specs {
		e.AddModule(NewModule(fmt.Sprintf("%s.m%d", name, i+1), spec))
	}
	return e
}

func newSat(name string, specs ...ModuleSpec) *Element {
	return newTestElement(name, Satellite, specs...)
}

func newStation(name string, specs ...ModuleSpec) *Element {
	return newTestElement(name, GroundStation, specs...)
}

func visDemand(name string) *model.Demand {
	return model.NewDemand(name, "VIS", 1,
		model.NewValueSchedule(model.Breakpoint{Time: 1, Value: 500}, model.Breakpoint{Time: 4, Value: 400}), -50)
}

// testWorld wires a context into a simulator over six standard sectors.
type testWorld struct {
	ctx *Context
	sim *timectrl.Simulator
}

func newTestWorld(t *testing.T, seed int64, events []model.Event, federations ...*Federation) *testWorld {
	t.Helper()
	world := NewContext(model.StandardLocations(6), events, federations, WithSeed(seed))
	sim := timectrl.NewSimulator(0, 1, timectrl.NoMaxTime, world)
	sim.Init(context.Background())
	return &testWorld{ctx: world, sim: sim}
}

func (w *testWorld) advance(n int) {
	for i := 0; i < n; i++ {
		w.sim.Advance(context.Background())
	}
}

// deploy designs and commissions e for f at the named location.
func (w *testWorld) deploy(t *testing.T, f *Federate, e *Element, location string) {
	t.Helper()
	if !f.Design(e, w.ctx) {
		t.Fatalf("Design(%s) failed", e.Name)
	}
	if !f.Commission(e, w.ctx.Location(location), w.ctx) {
		t.Fatalf("Commission(%s, %s) failed", e.Name, location)
	}
}

func currentDemand(t *testing.T, world *Context) *model.Demand {
	t.Helper()
	for _, ev := range world.CurrentEvents() {
		if d, ok := ev.(*model.Demand); ok {
			return d
		}
	}
	t.Fatalf("no current demand")
	return nil
}

// greedyOps contracts and senses every demand it can and delivers held data
// over any available link, so that contracts both complete and default.
type greedyOps struct{}

func (greedyOps) Execute(ctx context.Context, c Controller, world *Context) {
	for _, ev := range world.CurrentEvents() {
		d, ok := ev.(*model.Demand)
		if !ok {
			continue
		}
		for _, e := range c.Elements() {
			if !e.CanSense(d) {
				continue
			}
			if contract := c.Contract(d, world); contract != nil {
				c.SenseAndStore(contract, e, world)
			}
			break
		}
	}
	for _, contract := range c.Contracts() {
		if contract.Data == nil {
			continue
		}
		tx := world.ElementOf(contract.Data)
		if tx == nil {
			continue
		}
		for _, rx := range c.Elements() {
			for _, p := range tx.Protocols() {
				if c.CanTransport(p, contract.Data, tx, rx, world) {
					c.Transport(p, contract.Data, tx, rx, world)
				}
			}
		}
		if contract.IsCompleted(world) {
			c.Resolve(contract, world)
		}
	}
}
