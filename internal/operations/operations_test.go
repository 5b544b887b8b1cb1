package operations

import (
	"context"
	"testing"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

func pastDemands(w *world) int {
	n := 0
	for _, ev := range w.ctx.PastEvents() {
		if ev.IsDemand() {
			n++
		}
	}
	return n
}

func TestDynamicSensesAndResolvesInOneTurn(t *testing.T) {
	rec := &fakeRecorder{}
	f := core.NewFederate("P1", 10000, NewDynamic(6, 10, 10, WithRecorder(rec)))
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, core.NewFederation("F", nil, f))
	w.deploy(t, f, sat("S", sensor("VIS"), link("pSGL")), "GEO1")
	w.deploy(t, f, station("G", link("pSGL")), "SUR1")
	before := f.Cash

	w.advance(1)

	if got := f.Cash - before; got != 500 {
		t.Fatalf("cash gained = %v, want 500", got)
	}
	if len(f.Contracts()) != 0 {
		t.Fatalf("contracts left open: %d", len(f.Contracts()))
	}
	if pastDemands(w) != 1 {
		t.Fatalf("resolved demand not returned to past events")
	}
	if outcomes := rec.outcomes(); len(outcomes) == 0 || outcomes[0] != OutcomeSolved {
		t.Fatalf("solve outcomes = %v", outcomes)
	}
	if err := w.ctx.CheckEventConservation(); err != nil {
		t.Fatalf("CheckEventConservation: %v", err)
	}
}

func TestDynamicStoresUntilStationInView(t *testing.T) {
	f := core.NewFederate("P1", 10000, NewDynamic(6, 10, 10))
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, core.NewFederation("F", nil, f))
	s := sat("S", sensor("VIS"), link("pSGL"))
	// LEO moves two sectors per turn: LEO5 -> LEO1 -> LEO3.
	w.deploy(t, f, s, "LEO5")
	w.deploy(t, f, station("G", link("pSGL")), "SUR3")
	before := f.Cash

	w.advance(1)
	if len(f.Contracts()) != 1 {
		t.Fatalf("contracts after sensing turn = %d, want 1", len(f.Contracts()))
	}
	c := f.Contracts()[0]
	if c.Data == nil || w.ctx.ElementOf(c.Data) != s {
		t.Fatalf("sensed data not held by %s", s.Name)
	}
	if f.Cash != before {
		t.Fatalf("cash changed before delivery: %v", f.Cash-before)
	}

	w.advance(1)
	if len(f.Contracts()) != 0 {
		t.Fatalf("stored contract not delivered")
	}
	if got := f.Cash - before; got != 500 {
		t.Fatalf("cash gained = %v, want 500", got)
	}
}

func TestDynamicRelaysOverInterSatelliteLink(t *testing.T) {
	f := core.NewFederate("P1", 10000, NewDynamic(1, 10, 10))
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, core.NewFederation("F", nil, f))
	w.deploy(t, f, sat("A", sensor("VIS"), link("pISL")), "GEO1")
	w.deploy(t, f, sat("B", link("pISL"), link("pSGL")), "GEO2")
	w.deploy(t, f, station("G", link("pSGL")), "SUR2")
	before := f.Cash

	w.advance(1)

	if got := f.Cash - before; got != 500 {
		t.Fatalf("cash gained = %v, want 500 (relayed delivery)", got)
	}
}

func TestDynamicDeclinesUnreachableDemand(t *testing.T) {
	f := core.NewFederate("P1", 10000, NewDynamic(6, 10, 10))
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, core.NewFederation("F", nil, f))
	// GEO never moves and the only station is in another sector.
	w.deploy(t, f, sat("S", sensor("VIS"), link("pSGL")), "GEO1")
	w.deploy(t, f, station("G", link("pSGL")), "SUR4")

	w.advance(3)

	if len(f.Contracts()) != 0 {
		t.Fatalf("contracted a demand that can never be delivered")
	}
}

func TestSolverFailureIsANoOpTurn(t *testing.T) {
	rec := &fakeRecorder{}
	ops := NewDynamic(6, 10, 10, WithRecorder(rec))
	f := core.NewFederate("P1", 10000, nil)
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, core.NewFederation("F", nil, f))
	w.deploy(t, f, sat("S", sensor("VIS"), link("pSGL")), "GEO1")
	w.deploy(t, f, station("G", link("pSGL")), "SUR1")
	w.advance(1)
	before := f.Cash

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ops.Execute(ctx, f, w.ctx)

	if f.Cash != before || len(f.Contracts()) != 0 {
		t.Fatalf("failed solve still acted: cash %v -> %v, contracts %d", before, f.Cash, len(f.Contracts()))
	}
	if outcomes := rec.outcomes(); len(outcomes) != 1 || outcomes[0] != OutcomeError {
		t.Fatalf("solve outcomes = %v, want [%s]", outcomes, OutcomeError)
	}
}

func TestEmptyControllerSkipsSolve(t *testing.T) {
	rec := &fakeRecorder{}
	f := core.NewFederate("P1", 0, NewDynamic(6, 10, 10, WithRecorder(rec)))
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, core.NewFederation("F", nil, f))
	w.advance(2)
	for _, o := range rec.outcomes() {
		if o != OutcomeEmpty {
			t.Fatalf("outcome = %q, want %q", o, OutcomeEmpty)
		}
	}
}

func TestHorizonClippedToRemainingTime(t *testing.T) {
	f := core.NewFederate("P1", 0, nil)
	w := newWorld(t, 3, nil, core.NewFederation("F", nil, f))
	if got := horizonSteps(w.ctx, 6); got != 4 {
		t.Fatalf("steps at t=0 = %d, want 4", got)
	}
	w.advance(2)
	if got := horizonSteps(w.ctx, 6); got != 2 {
		t.Fatalf("steps at t=2 = %d, want 2", got)
	}
	if got := horizonSteps(w.ctx, 1); got != 1 {
		t.Fatalf("steps with horizon 1 = %d, want 1", got)
	}
}

func TestAutoStoragePenaltyIsMemoized(t *testing.T) {
	events := []model.Event{visDemand("V1"), visDemand("V2"), visDemand("V3"), model.NewDisturbance("R1", 0.5, 1)}
	f := core.NewFederate("P1", 0, nil)
	w := newWorld(t, timectrl.NoMaxTime, events, core.NewFederation("F", nil, f))
	d := NewDynamic(6, AutoStoragePenalty, 10)
	s := sat("S", sensor("VIS"))

	if got := d.storagePenalty(s, w.ctx); got != 375 {
		t.Fatalf("auto penalty = %v, want 375", got)
	}
	empty := newWorld(t, timectrl.NoMaxTime, nil, core.NewFederation("E", nil, core.NewFederate("P2", 0, nil)))
	if got := d.storagePenalty(s, empty.ctx); got != 375 {
		t.Fatalf("memoized penalty = %v, want 375", got)
	}
	if got := d.storagePenalty(sat("X", link("pSGL")), w.ctx); got != minAutoPenalty {
		t.Fatalf("penalty without sensors = %v, want floor %v", got, minAutoPenalty)
	}
	if got := NewDynamic(6, 12, 10).storagePenalty(s, w.ctx); got != 12 {
		t.Fatalf("fixed penalty = %v, want 12", got)
	}
}

func TestFixedCostChargesForeignStation(t *testing.T) {
	p1 := core.NewFederate("P1", 10000, nil)
	p2 := core.NewFederate("P2", 10000, nil)
	fed := core.NewFederation("F", NewFixedCost(50, 20, 6, 10, 10), p1, p2)
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, fed)
	w.deploy(t, p1, sat("S", sensor("VIS"), link("oSGL")), "GEO1")
	w.deploy(t, p2, station("G", link("oSGL")), "SUR1")

	var debited, credited float64
	p1.On("transferOut", func(ev timectrl.Event) { debited += ev.Fields["amount"].(float64) })
	p2.On("transferIn", func(ev timectrl.Event) { credited += ev.Fields["amount"].(float64) })
	before1, before2 := p1.Cash, p2.Cash

	w.advance(1)

	if got := p1.Cash - before1; got != 450 {
		t.Fatalf("P1 gained %v, want 500 value - 50 price", got)
	}
	if got := p2.Cash - before2; got != 50 {
		t.Fatalf("P2 gained %v, want 50", got)
	}
	if debited == 0 || debited != credited {
		t.Fatalf("exchange debited %v, credited %v", debited, credited)
	}
}

func TestFixedCostKeepsProprietaryLinksPrivate(t *testing.T) {
	p1 := core.NewFederate("P1", 10000, nil)
	p2 := core.NewFederate("P2", 10000, nil)
	fed := core.NewFederation("F", NewFixedCost(50, 20, 6, 10, 10), p1, p2)
	w := newWorld(t, timectrl.NoMaxTime, []model.Event{visDemand("V")}, fed)
	w.deploy(t, p1, sat("S", sensor("VIS"), link("pSGL")), "GEO1")
	w.deploy(t, p2, station("G", link("pSGL")), "SUR1")
	before := p1.Cash

	w.advance(2)

	if len(p1.Contracts()) != 0 || p1.Cash != before {
		t.Fatalf("demand handled over another federate's proprietary link")
	}
}
