package kb

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/model"
)

func TestDefaultCatalogEvents(t *testing.T) {
	store, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	events := store.Events()
	if len(events) != 72 {
		t.Fatalf("len(events) = %d, want 72", len(events))
	}

	var demands, disturbances int
	names := make(map[string]bool)
	for _, ev := range events {
		if names[ev.Name()] {
			t.Fatalf("duplicate event name %q", ev.Name())
		}
		names[ev.Name()] = true
		if ev.IsDemand() {
			demands++
		} else {
			disturbances++
		}
	}
	if demands != 60 || disturbances != 12 {
		t.Fatalf("demands=%d disturbances=%d, want 60 and 12", demands, disturbances)
	}

	d, ok := events[0].(*model.Demand)
	if !ok {
		t.Fatalf("first event is %T, want *model.Demand", events[0])
	}
	if d.ValueAt(0) != 500 || d.ValueAt(4) != 400 || d.ValueAt(5) != -50 {
		t.Fatalf("VIS1 schedule = %v default %v", d.Schedule, d.Default)
	}
}

func TestEventsAreFreshInstances(t *testing.T) {
	store, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	a, b := store.Events(), store.Events()
	if a[0] == b[0] {
		t.Fatalf("Events returned shared instances")
	}
}

func TestNewElementWithModules(t *testing.T) {
	store, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	e, err := store.NewElement("SmallSat", "P1.SmallSat1", "VIS", "pSGL")
	if err != nil {
		t.Fatalf("NewElement: %v", err)
	}
	if !e.IsSpace() || len(e.Modules()) != 2 {
		t.Fatalf("element = %+v, want satellite with 2 modules", e)
	}
	if got := e.DesignCost(); got != 200+250+50 {
		t.Fatalf("DesignCost = %v, want 500", got)
	}
	if got := e.CommissionCost(model.NewOrbit(3, model.MEO)); got != 50 {
		t.Fatalf("MEO commission cost = %v, want 50", got)
	}
	if !e.HasProtocol("pSGL") || e.MaxStored("VIS") != 1 {
		t.Fatalf("capabilities: pSGL=%v maxStored=%v", e.HasProtocol("pSGL"), e.MaxStored("VIS"))
	}
}

func TestNewElementRejectsOverfullDesign(t *testing.T) {
	store, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	_, err = store.NewElement("SmallSat", "x", "VIS", "SAR", "DAT")
	if !errors.Is(err, ErrModuleDoesNotFit) {
		t.Fatalf("err = %v, want ErrModuleDoesNotFit", err)
	}
	_, err = store.NewElement("TinySat", "x")
	if !errors.Is(err, ErrUnknownElementType) {
		t.Fatalf("err = %v, want ErrUnknownElementType", err)
	}
	_, err = store.NewElement("SmallSat", "x", "LASER")
	if !errors.Is(err, ErrUnknownModuleType) {
		t.Fatalf("err = %v, want ErrUnknownModuleType", err)
	}
}

func TestGroundStationSalvage(t *testing.T) {
	store, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	e, err := store.NewElement("GroundSta", "G", "pSGL")
	if err != nil {
		t.Fatalf("NewElement: %v", err)
	}
	if e.Kind != core.GroundStation {
		t.Fatalf("Kind = %v, want ground station", e.Kind)
	}
	if !e.CanCommission(model.NewSurface(1)) || e.CanCommission(model.NewOrbit(1, model.LEO)) {
		t.Fatalf("ground station commission rules violated")
	}
}

func TestLoadRejectsBadKinds(t *testing.T) {
	cases := []string{
		"elements: [{type: X, kind: rocket}]",
		"modules: [{type: X, kind: laser}]",
		"events: [{type: X, kind: meteor, count: 1}]",
		"modules: [{type: X, kind: storage}, {type: X, kind: storage}]",
	}
	for _, raw := range cases {
		if _, err := Load([]byte(raw)); !errors.Is(err, ErrInvalidCatalog) {
			t.Fatalf("Load(%q) err = %v, want ErrInvalidCatalog", raw, err)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	store, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := store.NewElement("MediumSat", "m", "VIS", "DAT", "oSGL"); err != nil {
					t.Errorf("NewElement: %v", err)
					return
				}
				_ = store.Events()
			}
		}()
	}
	wg.Wait()
}
