package core

import "github.com/signalsfoundry/orbital-federates/model"

// ElementKind distinguishes ground stations from satellites.
type ElementKind int

const (
	GroundStation ElementKind = iota
	Satellite
)

func (k ElementKind) String() string {
	if k == Satellite {
		return "satellite"
	}
	return "ground station"
}

// ElementCosts holds the design cost and the location-class dependent
// commission, decommission and salvage tables, keyed by model.Location.Class.
type ElementCosts struct {
	Design       float64
	Commission   map[string]float64
	Decommission map[string]float64
	Salvage      map[string]float64
}

// Element is a physical asset composed of modules.
type Element struct {
	Name     string
	Type     string
	Kind     ElementKind
	Capacity float64
	Costs    ElementCosts

	// Location is nil until the element is commissioned.
	Location *model.Location

	designModules []*Module
	modules       []*Module
	nextLocation  *model.Location
}

// NewElement builds an uncommissioned element.
func NewElement(name, typ string, kind ElementKind, capacity float64, costs ElementCosts) *Element {
	return &Element{Name: name, Type: typ, Kind: kind, Capacity: capacity, Costs: costs}
}

func (e *Element) IsSpace() bool  { return e.Kind == Satellite }
func (e *Element) IsGround() bool { return e.Kind == GroundStation }

// Init restores the designed module set and clears location and data.
func (e *Element) Init() {
	e.modules = append([]*Module(nil), e.designModules...)
	for _, m := range e.modules {
		m.Init()
	}
	e.Location, e.nextLocation = nil, nil
}

// Modules returns the modules currently installed.
func (e *Element) Modules() []*Module {
	return append([]*Module(nil), e.modules...)
}

// ModuleSize is the aggregate size of installed modules.
func (e *Element) ModuleSize() float64 {
	var total float64
	for _, m := range e.designModules {
		total += m.Size
	}
	return total
}

// CanAddModule reports whether m fits the remaining element capacity.
func (e *Element) CanAddModule(m *Module) bool {
	return m != nil && e.ModuleSize()+m.Size <= e.Capacity+capacityEpsilon
}

// AddModule installs m as part of the element design.
func (e *Element) AddModule(m *Module) bool {
	if !e.CanAddModule(m) {
		return false
	}
	e.designModules = append(e.designModules, m)
	e.modules = append(e.modules, m)
	return true
}

// RemoveModule destroys m for the remainder of the run, dropping its data.
func (e *Element) RemoveModule(m *Module) bool {
	for i, held := range e.modules {
		if held == m {
			e.modules = append(e.modules[:i:i], e.modules[i+1:]...)
			m.Init()
			return true
		}
	}
	return false
}

// DesignCost is the element cost plus the cost of its designed modules.
func (e *Element) DesignCost() float64 {
	total := e.Costs.Design
	for _, m := range e.designModules {
		total += m.Cost
	}
	return total
}

// CommissionCost is the cost to commission at loc.
func (e *Element) CommissionCost(loc *model.Location) float64 {
	return e.Costs.Commission[loc.Class()]
}

// DecommissionCost is the cost to decommission from the current location.
func (e *Element) DecommissionCost() float64 {
	return e.Costs.Decommission[e.Location.Class()]
}

// SalvageValue is the value recovered when decommissioning from the current location.
func (e *Element) SalvageValue() float64 {
	return e.Costs.Salvage[e.Location.Class()]
}

// IsCommissioned reports whether the element has a location.
func (e *Element) IsCommissioned() bool { return e.Location != nil }

// CanCommission reports whether loc is a valid location kind for this element.
func (e *Element) CanCommission(loc *model.Location) bool {
	if loc == nil || e.Location != nil {
		return false
	}
	if e.IsSpace() {
		return loc.IsOrbit()
	}
	return loc.IsSurface()
}

func (e *Element) commission(loc *model.Location) bool {
	if !e.CanCommission(loc) {
		return false
	}
	e.Location, e.nextLocation = loc, loc
	return true
}

func (e *Element) decommission() {
	for _, m := range e.modules {
		m.Init()
	}
	e.Location, e.nextLocation = nil, nil
}

// Tick computes the next location by propagation.
func (e *Element) Tick(world *Context, duration int) {
	if e.Location == nil {
		return
	}
	e.nextLocation = world.Propagate(e.Location, duration)
}

// Tock commits the propagated location and resets module counters.
func (e *Element) Tock() {
	if e.Location != nil {
		e.Location = e.nextLocation
	}
	for _, m := range e.modules {
		m.Tock()
	}
}

// HasDefense reports whether any defense module is installed.
func (e *Element) HasDefense() bool {
	for _, m := range e.modules {
		if m.IsDefense() {
			return true
		}
	}
	return false
}

// Contains reports whether any module holds d.
func (e *Element) Contains(d *Data) bool { return e.moduleOf(d) != nil }

func (e *Element) moduleOf(d *Data) *Module {
	for _, m := range e.modules {
		if m.Contains(d) {
			return m
		}
	}
	return nil
}

// Data returns all data held by the element's modules.
func (e *Element) Data() []*Data {
	var out []*Data
	for _, m := range e.modules {
		out = append(out, m.data...)
	}
	return out
}

// RemoveData deletes d from whichever module holds it.
func (e *Element) RemoveData(d *Data) bool {
	if m := e.moduleOf(d); m != nil {
		return m.TransferOut(d)
	}
	return false
}

// Phenomena lists the distinct phenomena of installed sensors in module order.
func (e *Element) Phenomena() []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range e.modules {
		if m.IsSensor() && !seen[m.Phenomenon] {
			seen[m.Phenomenon] = true
			out = append(out, m.Phenomenon)
		}
	}
	return out
}

// Protocols lists the distinct link protocols in module order.
func (e *Element) Protocols() []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range e.modules {
		if m.IsLink() && !seen[m.Protocol] {
			seen[m.Protocol] = true
			out = append(out, m.Protocol)
		}
	}
	return out
}

// HasProtocol reports whether a link module for protocol is installed.
func (e *Element) HasProtocol(protocol string) bool {
	for _, m := range e.modules {
		if m.IsLink() && m.Protocol == protocol {
			return true
		}
	}
	return false
}

// CouldSense reports whether the element is positioned and equipped to sense
// demand, ignoring per-turn throughput and storage state.
func (e *Element) CouldSense(demand *model.Demand) bool {
	if !e.IsSpace() || e.Location == nil || demand == nil || e.Location.Sector != demand.Sector() {
		return false
	}
	for _, m := range e.modules {
		if m.IsSensor() && m.Phenomenon == demand.Phenomenon && demand.Size <= m.MaxSensed+capacityEpsilon {
			return true
		}
	}
	return false
}

// CanSense reports whether the element can sense demand this turn.
func (e *Element) CanSense(demand *model.Demand) bool {
	return e.CouldSense(demand) && e.sensorFor(demand) != nil
}

func (e *Element) sensorFor(demand *model.Demand) *Module {
	for _, m := range e.modules {
		if m.CanSense(demand) {
			return m
		}
	}
	return nil
}

// MaxSensed is the per-turn sensing throughput for phenomenon.
func (e *Element) MaxSensed(phenomenon string) float64 {
	var total float64
	for _, m := range e.modules {
		if m.IsSensor() && m.Phenomenon == phenomenon {
			total += m.MaxSensed
		}
	}
	return total
}

// RemainingSense is the sensing throughput for phenomenon left this turn.
func (e *Element) RemainingSense(phenomenon string) float64 {
	var total float64
	for _, m := range e.modules {
		if m.IsSensor() && m.Phenomenon == phenomenon {
			total += m.RemainingSense()
		}
	}
	return total
}

// MaxStored is the storage capacity available to phenomenon.
func (e *Element) MaxStored(phenomenon string) float64 {
	var total float64
	for _, m := range e.modules {
		if m.AcceptsPhenomenon(phenomenon) {
			total += m.Capacity
		}
	}
	return total
}

// StorageCapacity is the combined capacity of all storage modules.
func (e *Element) StorageCapacity() float64 {
	var total float64
	for _, m := range e.modules {
		if m.IsStorage() {
			total += m.Capacity
		}
	}
	return total
}

// senseAndStore generates data for c, senses it with a capable sensor and
// moves it to plain storage when room is available.
func (e *Element) senseAndStore(c *Contract) bool {
	sensor := e.sensorFor(c.Demand)
	if sensor == nil || !e.CouldSense(c.Demand) {
		return false
	}
	d := c.newData()
	if !sensor.Sense(d) {
		return false
	}
	c.Data = d
	e.store(d)
	return true
}

// store places held data d into a storage module, preferring plain storage
// over sensors. It reports whether d ends in storage.
func (e *Element) store(d *Data) bool {
	holder := e.moduleOf(d)
	if holder == nil {
		return false
	}
	if holder.Kind == ModuleStorage {
		return true
	}
	for _, m := range e.modules {
		if m.Kind == ModuleStorage && m.CanStore(d) {
			holder.TransferOut(d)
			m.data = append(m.data, d)
			return true
		}
	}
	if holder.IsStorage() {
		return true
	}
	for _, m := range e.modules {
		if m.CanStore(d) {
			holder.TransferOut(d)
			m.data = append(m.data, d)
			return true
		}
	}
	return false
}

// MaxTransmit is the per-turn transmit throughput over protocol.
func (e *Element) MaxTransmit(protocol string) float64 {
	var total float64
	for _, m := range e.modules {
		if m.IsLink() && m.Protocol == protocol {
			total += m.MaxTransmitted
		}
	}
	return total
}

// MaxReceive is the per-turn receive throughput over protocol.
func (e *Element) MaxReceive(protocol string) float64 {
	var total float64
	for _, m := range e.modules {
		if m.IsLink() && m.Protocol == protocol {
			total += m.MaxReceived
		}
	}
	return total
}

// RemainingTransmit is the transmit throughput over protocol left this turn.
func (e *Element) RemainingTransmit(protocol string) float64 {
	var total float64
	for _, m := range e.modules {
		if m.IsLink() && m.Protocol == protocol {
			total += m.MaxTransmitted - m.transmitted
		}
	}
	return total
}

// RemainingReceive is the receive throughput over protocol left this turn.
func (e *Element) RemainingReceive(protocol string) float64 {
	var total float64
	for _, m := range e.modules {
		if m.IsLink() && m.Protocol == protocol {
			total += m.MaxReceived - m.received
		}
	}
	return total
}

func (e *Element) transmitterFor(protocol string, d *Data) *Module {
	for _, m := range e.modules {
		if m.IsLink() && m.Protocol == protocol && m.CanTransmit(d) {
			return m
		}
	}
	return nil
}

func (e *Element) receiverFor(protocol string, d *Data) *Module {
	for _, m := range e.modules {
		if m.IsLink() && m.Protocol == protocol && m.CanReceive(d) {
			return m
		}
	}
	return nil
}

// CanTransmit reports whether the element holds d and has transmit throughput for it.
func (e *Element) CanTransmit(protocol string, d *Data) bool {
	return e.Contains(d) && e.transmitterFor(protocol, d) != nil
}

// CanReceive reports whether the element has receive throughput and room for d.
func (e *Element) CanReceive(protocol string, d *Data) bool {
	return !e.Contains(d) && e.receiverFor(protocol, d) != nil
}

// transfer moves d from e to rx over protocol. Space receivers move the data
// on into storage.
func (e *Element) transfer(protocol string, d *Data, rx *Element) bool {
	tx := e.transmitterFor(protocol, d)
	in := rx.receiverFor(protocol, d)
	holder := e.moduleOf(d)
	if tx == nil || in == nil || holder == nil {
		return false
	}
	holder.TransferOut(d)
	tx.transmit(d)
	in.receive(d)
	if rx.IsSpace() {
		rx.store(d)
	}
	return true
}
