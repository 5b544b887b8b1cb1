package core

import "testing"

func TestModuleCapacityInvariant(t *testing.T) {
	for _, capacity := range []float64{0, 1, 2, 3} {
		for _, size := range []float64{0.5, 1, 2} {
			m := NewModule("m", ModuleSpec{Kind: ModuleStorage, Capacity: capacity})
			for i := 0; i < 5; i++ {
				d := &Data{Phenomenon: "VIS", Size: size}
				fits := m.Stored()+size <= capacity
				if got := m.CanTransferIn(d); got != fits {
					t.Fatalf("cap=%v size=%v stored=%v: CanTransferIn=%v, want %v", capacity, size, m.Stored(), got, fits)
				}
				m.TransferIn(d)
				if m.Stored() > capacity {
					t.Fatalf("cap=%v: stored %v exceeds capacity", capacity, m.Stored())
				}
			}
		}
	}
}

func TestModuleRejectsDuplicateData(t *testing.T) {
	m := NewModule("m", storageSpec())
	m.Capacity = 5
	d := &Data{Phenomenon: "VIS", Size: 1}
	if !m.TransferIn(d) {
		t.Fatalf("first TransferIn failed")
	}
	if m.TransferIn(d) {
		t.Fatalf("same data transferred in twice")
	}
	other := &Data{Phenomenon: "VIS", Size: 1}
	if !m.TransferIn(other) {
		t.Fatalf("equal-valued data must be distinct")
	}
}

func TestSensorThroughputResetsAtTock(t *testing.T) {
	m := NewModule("vis", sensorSpec("VIS"))
	m.Capacity = 3
	demand := visDemand("VIS1.1")
	if !m.CanSense(demand) {
		t.Fatalf("fresh sensor cannot sense")
	}
	m.Sense(&Data{Phenomenon: "VIS", Size: 1})
	if m.CanSense(demand) {
		t.Fatalf("sensor exceeded MaxSensed within a turn")
	}
	m.Tock()
	if !m.CanSense(demand) {
		t.Fatalf("sensing throughput not reset at tock")
	}
	if len(m.Data()) != 1 {
		t.Fatalf("sensor dropped stored data at tock")
	}
	if m.CanSense(visDemand("other")) && m.Sense(&Data{Phenomenon: "SAR", Size: 1}) {
		t.Fatalf("sensor accepted foreign phenomenon")
	}
}

func TestLinkDropsDataAtTock(t *testing.T) {
	m := NewModule("link", linkSpec("oSGL"))
	d := &Data{Phenomenon: "VIS", Size: 1}
	if !m.receive(d) {
		t.Fatalf("receive failed")
	}
	if m.CanReceive(&Data{Phenomenon: "VIS", Size: 1}) {
		t.Fatalf("link exceeded MaxReceived")
	}
	m.Tock()
	if len(m.Data()) != 0 {
		t.Fatalf("link kept data across tock")
	}
	if !m.CanTransmit(d) {
		t.Fatalf("transmit throughput not available")
	}
}

func TestModuleCapabilityFlags(t *testing.T) {
	cases := []struct {
		spec                                 ModuleSpec
		storage, sensor, link, sgl, isl, def bool
	}{
		{storageSpec(), true, false, false, false, false, false},
		{sensorSpec("SAR"), true, true, false, false, false, false},
		{linkSpec("pSGL"), false, false, true, true, false, false},
		{linkSpec("oISL"), false, false, true, false, true, false},
		{defenseSpec(), false, false, false, false, false, true},
	}
	for _, tc := range cases {
		m := NewModule("m", tc.spec)
		got := []bool{m.IsStorage(), m.IsSensor(), m.IsLink(), m.IsSGL(), m.IsISL(), m.IsDefense()}
		want := []bool{tc.storage, tc.sensor, tc.link, tc.sgl, tc.isl, tc.def}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("%s flags = %v, want %v", tc.spec.Type, got, want)
			}
		}
	}
}
