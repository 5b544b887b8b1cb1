package core

import (
	"strings"

	"github.com/signalsfoundry/orbital-federates/model"
)

// capacityEpsilon absorbs float noise in size arithmetic.
const capacityEpsilon = 1e-9

// ModuleKind is the capability class of a module.
type ModuleKind int

const (
	ModuleStorage ModuleKind = iota
	ModuleSensor
	ModuleLink
	ModuleDefense
)

func (k ModuleKind) String() string {
	switch k {
	case ModuleSensor:
		return "sensor"
	case ModuleLink:
		return "link"
	case ModuleDefense:
		return "defense"
	default:
		return "storage"
	}
}

// Protocol name conventions: the first letter marks proprietary ("p") or
// open ("o") protocols, the suffix the link class.
const (
	ProprietaryPrefix = "p"
	OpenPrefix        = "o"
	SGLSuffix         = "SGL"
	ISLSuffix         = "ISL"
)

// IsProprietary reports whether protocol only connects a single federate's elements.
func IsProprietary(protocol string) bool { return strings.HasPrefix(protocol, ProprietaryPrefix) }

// IsSGLProtocol reports whether protocol is a space-to-ground link protocol.
func IsSGLProtocol(protocol string) bool { return strings.HasSuffix(protocol, SGLSuffix) }

// IsISLProtocol reports whether protocol is an inter-satellite link protocol.
func IsISLProtocol(protocol string) bool { return strings.HasSuffix(protocol, ISLSuffix) }

// ModuleSpec is the immutable catalog description of a module type.
type ModuleSpec struct {
	Type     string
	Kind     ModuleKind
	Cost     float64
	Size     float64
	Capacity float64

	// Sensors only.
	Phenomenon string
	MaxSensed  float64

	// Links only.
	Protocol       string
	MaxTransmitted float64
	MaxReceived    float64
}

// Module is a functional subsystem of an element. Held data and per-turn
// transfer counters are run state, reset by Init.
type Module struct {
	ModuleSpec
	Name string

	data        []*Data
	sensed      float64
	transmitted float64
	received    float64
}

// NewModule creates a module instance from spec.
func NewModule(name string, spec ModuleSpec) *Module {
	return &Module{ModuleSpec: spec, Name: name}
}

func (m *Module) IsStorage() bool { return m.Kind == ModuleStorage || m.Kind == ModuleSensor }
func (m *Module) IsSensor() bool  { return m.Kind == ModuleSensor }
func (m *Module) IsLink() bool    { return m.Kind == ModuleLink }
func (m *Module) IsDefense() bool { return m.Kind == ModuleDefense }
func (m *Module) IsSGL() bool     { return m.IsLink() && IsSGLProtocol(m.Protocol) }
func (m *Module) IsISL() bool     { return m.IsLink() && IsISLProtocol(m.Protocol) }

// Init clears held data and transfer counters.
func (m *Module) Init() {
	m.data = nil
	m.sensed, m.transmitted, m.received = 0, 0, 0
}

// Tock resets per-turn counters and drops data held by non-storage modules.
func (m *Module) Tock() {
	m.sensed, m.transmitted, m.received = 0, 0, 0
	if !m.IsStorage() {
		m.data = nil
	}
}

// Data returns a copy of the held data.
func (m *Module) Data() []*Data {
	return append([]*Data(nil), m.data...)
}

// Contains reports whether m holds d.
func (m *Module) Contains(d *Data) bool {
	for _, held := range m.data {
		if held == d {
			return true
		}
	}
	return false
}

// Stored is the aggregate size of held data.
func (m *Module) Stored() float64 {
	var total float64
	for _, d := range m.data {
		total += d.Size
	}
	return total
}

// CanTransferIn reports whether d fits within the module's capacity.
func (m *Module) CanTransferIn(d *Data) bool {
	if d == nil || m.Contains(d) {
		return false
	}
	return m.Stored()+d.Size <= m.Capacity+capacityEpsilon
}

// TransferIn adds d if it fits.
func (m *Module) TransferIn(d *Data) bool {
	if !m.CanTransferIn(d) {
		return false
	}
	m.data = append(m.data, d)
	return true
}

// TransferOut removes d if held.
func (m *Module) TransferOut(d *Data) bool {
	for i, held := range m.data {
		if held == d {
			m.data = append(m.data[:i], m.data[i+1:]...)
			return true
		}
	}
	return false
}

// CanStore reports whether m is a storage module able to hold d.
// Sensors only store data of their own phenomenon.
func (m *Module) CanStore(d *Data) bool {
	if !m.IsStorage() {
		return false
	}
	if m.IsSensor() && d != nil && m.Phenomenon != d.Phenomenon {
		return false
	}
	return m.CanTransferIn(d)
}

// AcceptsPhenomenon reports whether storage module m may hold data of phenomenon.
func (m *Module) AcceptsPhenomenon(phenomenon string) bool {
	if !m.IsStorage() {
		return false
	}
	return !m.IsSensor() || m.Phenomenon == phenomenon
}

// RemainingSense is the sensing throughput left this turn.
func (m *Module) RemainingSense() float64 {
	if !m.IsSensor() {
		return 0
	}
	return m.MaxSensed - m.sensed
}

// CanSense reports whether this sensor can sense demand now: matching
// phenomenon, remaining sensing throughput and room to hold the data.
func (m *Module) CanSense(demand *model.Demand) bool {
	if !m.IsSensor() || demand == nil || demand.Phenomenon != m.Phenomenon {
		return false
	}
	if m.sensed+demand.Size > m.MaxSensed+capacityEpsilon {
		return false
	}
	return m.Stored()+demand.Size <= m.Capacity+capacityEpsilon
}

// Sense stores freshly generated data d. d must have been generated from a
// demand this sensor can sense.
func (m *Module) Sense(d *Data) bool {
	if !m.IsSensor() || d == nil || d.Phenomenon != m.Phenomenon {
		return false
	}
	if m.sensed+d.Size > m.MaxSensed+capacityEpsilon || !m.TransferIn(d) {
		return false
	}
	m.sensed += d.Size
	return true
}

// Transmitted and Received report throughput consumed this turn.
func (m *Module) Transmitted() float64 { return m.transmitted }
func (m *Module) Received() float64    { return m.received }

// CanTransmit reports whether this link can send d this turn.
func (m *Module) CanTransmit(d *Data) bool {
	if !m.IsLink() || d == nil {
		return false
	}
	return m.transmitted+d.Size <= m.MaxTransmitted+capacityEpsilon &&
		d.Size <= m.Capacity+capacityEpsilon
}

// CanReceive reports whether this link can accept d this turn.
func (m *Module) CanReceive(d *Data) bool {
	if !m.IsLink() || d == nil {
		return false
	}
	return m.received+d.Size <= m.MaxReceived+capacityEpsilon && m.CanTransferIn(d)
}

func (m *Module) transmit(d *Data) bool {
	if !m.CanTransmit(d) {
		return false
	}
	m.transmitted += d.Size
	return true
}

func (m *Module) receive(d *Data) bool {
	if !m.CanReceive(d) {
		return false
	}
	m.data = append(m.data, d)
	m.received += d.Size
	return true
}
