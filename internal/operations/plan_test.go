package operations

import (
	"context"
	"testing"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

func ownScope(storagePenalty float64) scope {
	return scope{
		store:          func(*core.Element) bool { return true },
		resolve:        func(*core.Element) bool { return true },
		storagePenalty: func(*core.Element) float64 { return storagePenalty },
		linkCost:       func(string, *core.Element, *core.Element) (float64, float64) { return 0, 0 },
	}
}

// strandedContract leaves f holding one contract on a GEO satellite with no
// station anywhere, so the data can only be stored or written off.
func strandedContract(t *testing.T) (*core.Federate, *world) {
	t.Helper()
	f := core.NewFederate("P1", 10000, nil)
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, core.NewFederation("F", nil, f))
	s := sat("S", sensor("VIS"), link("pSGL"))
	w.deploy(t, f, s, "GEO1")
	w.advance(1)

	var demand *model.Demand
	for _, ev := range w.ctx.CurrentEvents() {
		if d, ok := ev.(*model.Demand); ok {
			demand = d
		}
	}
	if demand == nil {
		t.Fatalf("no current demand")
	}
	c := f.Contract(demand, w.ctx)
	if c == nil || !f.SenseAndStore(c, s, w.ctx) {
		t.Fatalf("could not hold %s on %s", demand.Name(), s.Name)
	}
	return f, w
}

func firstStep(t *testing.T, f *core.Federate, w *world, horizon int) (wroteOff, stored bool) {
	t.Helper()
	p := buildPlan(f, w.ctx, ownScope(10), horizon)
	if p == nil {
		t.Fatalf("nothing to plan")
	}
	sol, err := p.prob.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for _, rv := range p.resolves {
		if rv.step == 0 && sol.IsSet(rv.v) {
			wroteOff = true
		}
	}
	for _, st := range p.stores {
		if st.step == 0 && sol.IsSet(st.v) {
			stored = true
		}
	}
	return wroteOff, stored
}

func TestPlanWritesOffWhenCashAllows(t *testing.T) {
	f, w := strandedContract(t)
	f.Cash = 10000

	// Writing off now costs 50; storing first costs 10 more.
	wroteOff, stored := firstStep(t, f, w, 2)
	if !wroteOff || stored {
		t.Fatalf("wroteOff=%v stored=%v, want an immediate write-off", wroteOff, stored)
	}
}

func TestPlanKeepsCashAboveFloor(t *testing.T) {
	f, w := strandedContract(t)
	// A write-off of -50 would leave the federate at -50.
	f.Cash = 0

	wroteOff, stored := firstStep(t, f, w, 2)
	if wroteOff {
		t.Fatalf("plan wrote off a contract the federate cannot pay for")
	}
	if !stored {
		t.Fatalf("contract neither resolved nor stored")
	}
}

func TestLastStepNeverStores(t *testing.T) {
	f, w := strandedContract(t)

	if p := buildPlan(f, w.ctx, ownScope(10), 1); len(p.stores) != 0 {
		t.Fatalf("single-step plan has %d store variables", len(p.stores))
	}
	p := buildPlan(f, w.ctx, ownScope(10), 3)
	for _, st := range p.stores {
		if st.step == p.steps-1 {
			t.Fatalf("store variable on the last step: %+v", st)
		}
	}
	if len(p.stores) == 0 {
		t.Fatalf("multi-step plan cannot store")
	}

	// With nowhere to keep the data, the only plan writes it off now.
	wroteOff, _ := firstStep(t, f, w, 1)
	if !wroteOff {
		t.Fatalf("single-step plan left held data unresolved")
	}
}
