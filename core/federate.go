package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

// Resolution outcomes reported to observers and recorders.
const (
	OutcomeCompleted = "completed"
	OutcomeDefaulted = "defaulted"
)

// Federate is an agent owning elements and contracts.
type Federate struct {
	timectrl.Observable

	InitialCash float64
	Cash        float64

	name        string
	elements    []*Element
	contracts   []*Contract
	ops         Operations
	contractSeq int
}

var _ Controller = (*Federate)(nil)

// NewFederate creates a federate. A nil ops selects NoOperations.
func NewFederate(name string, initialCash float64, ops Operations) *Federate {
	f := &Federate{name: name, InitialCash: initialCash, Cash: initialCash, ops: orNoOperations(ops)}
	f.SetSource(name)
	return f
}

func (f *Federate) Name() string           { return f.name }
func (f *Federate) Operations() Operations { return f.ops }
func (f *Federate) Federates() []*Federate { return []*Federate{f} }

// SetOperations replaces the operations model. A nil ops selects NoOperations.
func (f *Federate) SetOperations(ops Operations) { f.ops = orNoOperations(ops) }

func (f *Federate) Elements() []*Element {
	return append([]*Element(nil), f.elements...)
}

func (f *Federate) Contracts() []*Contract {
	return append([]*Contract(nil), f.contracts...)
}

// Controls reports whether f owns e.
func (f *Federate) Controls(e *Element) bool {
	for _, owned := range f.elements {
		if owned == e {
			return true
		}
	}
	return false
}

func (f *Federate) hasContract(c *Contract) bool {
	for _, owned := range f.contracts {
		if owned == c {
			return true
		}
	}
	return false
}

// Init resets cash to the initial cash and drops elements and contracts.
func (f *Federate) Init() {
	f.Cash = f.InitialCash
	f.elements = nil
	f.contracts = nil
	f.contractSeq = 0
}

// Tick computes next element locations and contract elapsed times.
func (f *Federate) Tick(world *Context) {
	for _, e := range f.elements {
		e.Tick(world, world.TimeStep())
	}
	for _, c := range f.contracts {
		c.Tick()
	}
}

// Tock commits element and contract state.
func (f *Federate) Tock() {
	for _, e := range f.elements {
		e.Tock()
	}
	for _, c := range f.contracts {
		c.Tock()
	}
}

// Design takes ownership of an uncommissioned element and pays its design cost.
func (f *Federate) Design(e *Element, world *Context) bool {
	if e == nil || e.IsCommissioned() || f.Controls(e) || world.FederateOf(e) != nil {
		world.warn("design rejected", logging.String("federate", f.name), logging.String("element", elementName(e)))
		return false
	}
	if e.ModuleSize() > e.Capacity+capacityEpsilon {
		world.warn("design rejected: modules exceed capacity",
			logging.String("federate", f.name), logging.String("element", e.Name))
		return false
	}
	e.Init()
	f.elements = append(f.elements, e)
	cost := e.DesignCost()
	f.Cash -= cost
	f.Trigger("design", map[string]any{"element": e.Name, "cost": cost, "time": world.Time()})
	return true
}

// Commission places an owned element at loc and pays the commission cost.
func (f *Federate) Commission(e *Element, loc *model.Location, world *Context) bool {
	if loc == nil || !f.Controls(e) || !e.CanCommission(loc) || world.Location(loc.Name) != loc {
		world.warn("commission rejected",
			logging.String("federate", f.name),
			logging.String("element", elementName(e)),
			logging.String("location", loc.String()))
		return false
	}
	e.commission(loc)
	cost := e.CommissionCost(loc)
	f.Cash -= cost
	f.Trigger("commission", map[string]any{
		"element":  e.Name,
		"location": loc.Name,
		"cost":     cost,
		"time":     world.Time(),
	})
	return true
}

// Decommission removes an owned element, paying the decommission cost and
// recovering its salvage value. Data held by the element is lost.
func (f *Federate) Decommission(e *Element, world *Context) bool {
	if !f.Controls(e) {
		world.warn("decommission rejected", logging.String("federate", f.name), logging.String("element", elementName(e)))
		return false
	}
	var net float64
	if e.IsCommissioned() {
		net = e.SalvageValue() - e.DecommissionCost()
	}
	e.decommission()
	for i, owned := range f.elements {
		if owned == e {
			f.elements = append(f.elements[:i:i], f.elements[i+1:]...)
			break
		}
	}
	f.Cash += net
	f.Trigger("decommission", map[string]any{"element": e.Name, "value": net, "time": world.Time()})
	return true
}

func (f *Federate) CanContract(demand *model.Demand, world *Context) bool {
	return canContract(f, demand, world)
}

// Contract accepts demand, removing it from the current events.
func (f *Federate) Contract(demand *model.Demand, world *Context) *Contract {
	if !f.CanContract(demand, world) || !world.takeCurrent(demand) {
		world.warn("contract rejected", logging.String("federate", f.name), logging.String("demand", demandName(demand)))
		return nil
	}
	f.contractSeq++
	c := NewContract(fmt.Sprintf("%s.C%d", f.name, f.contractSeq), demand)
	f.contracts = append(f.contracts, c)
	f.Trigger("contract", map[string]any{"contract": c.Name, "demand": demand.Name(), "time": world.Time()})
	return c
}

func (f *Federate) SenseAndStore(c *Contract, e *Element, world *Context) bool {
	return senseAndStore(f, c, e, world)
}

func (f *Federate) CouldTransport(protocol string, tx, rx *Element, world *Context) bool {
	return couldTransport(f, protocol, tx, rx, world)
}

func (f *Federate) CanTransport(protocol string, d *Data, tx, rx *Element, world *Context) bool {
	return canTransport(f, protocol, d, tx, rx, world)
}

func (f *Federate) Transport(protocol string, d *Data, tx, rx *Element, world *Context) bool {
	return transport(f, protocol, d, tx, rx, world)
}

func (f *Federate) Resolve(c *Contract, world *Context) bool {
	return resolve(f, c, world)
}

// Exchange moves cash between federates under this controller. For a lone
// federate that is only itself.
func (f *Federate) Exchange(amount float64, debtor, creditor *Federate) bool {
	if debtor != f || creditor != f || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return true
}

// resolve credits or debits c and returns its demand to the past events.
// force resolves at default terms regardless of completion.
func (f *Federate) resolve(c *Contract, world *Context, force bool) bool {
	idx := -1
	for i, owned := range f.contracts {
		if owned == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		world.warn("resolve rejected: unknown contract", logging.String("federate", f.name))
		return false
	}

	var value float64
	var outcome string
	switch {
	case !force && c.IsCompleted(world):
		value, outcome = c.Value(), OutcomeCompleted
	case force || c.IsDefaulted(world):
		value, outcome = c.Demand.DefaultValue(), OutcomeDefaulted
	default:
		world.warn("resolve rejected: contract neither completed nor defaulted",
			logging.String("federate", f.name), logging.String("contract", c.Name))
		return false
	}

	if c.Data != nil {
		if e := world.ElementOf(c.Data); e != nil {
			e.RemoveData(c.Data)
		}
	}
	f.Cash += value
	f.contracts = append(f.contracts[:idx:idx], f.contracts[idx+1:]...)
	world.returnEvent(c.Demand)
	world.recorder.RecordResolution(f.name, outcome, value)
	f.Trigger("resolve", map[string]any{
		"contract": c.Name,
		"demand":   c.Demand.Name(),
		"outcome":  outcome,
		"value":    value,
		"elapsed":  c.ElapsedTime,
		"time":     world.Time(),
	})
	return true
}

// Liquidate force-defaults every contract and decommissions every element.
func (f *Federate) Liquidate(world *Context) {
	for _, c := range f.Contracts() {
		f.resolve(c, world, true)
	}
	for _, e := range f.Elements() {
		f.Decommission(e, world)
	}
	world.recorder.RecordLiquidation(f.name)
	f.Trigger("liquidate", map[string]any{"cash": f.Cash, "time": world.Time()})
}

func demandName(d *model.Demand) string {
	if d == nil {
		return ""
	}
	return d.Name()
}
