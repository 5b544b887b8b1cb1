package operations

import (
	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/internal/milp"
	"github.com/signalsfoundry/orbital-federates/model"
)

// contractor is implemented by controllers that can assign a demand to the
// member owning a particular sensor.
type contractor interface {
	ContractFor(demand *model.Demand, sensor *core.Element, world *core.Context) *core.Contract
}

// hopCharger settles the cash side of a completed hop.
type hopCharger func(protocol string, tx, rx *core.Element)

// realizer applies the first step of a solved plan. Every action goes back
// through the controller and is checked against live state.
type realizer struct {
	controller core.Controller
	world      *core.Context
	plan       *plan
	sol        *milp.Solution
	charge     hopCharger

	// customer contracts new demands when set.
	customer *core.Federate

	contracts map[int]*core.Contract
}

func newRealizer(controller core.Controller, world *core.Context, p *plan, sol *milp.Solution, charge hopCharger) *realizer {
	return &realizer{
		controller: controller,
		world:      world,
		plan:       p,
		sol:        sol,
		charge:     charge,
		contracts:  make(map[int]*core.Contract),
	}
}

func (r *realizer) run() {
	// Contracts resolved this turn.
	for i, it := range r.plan.items {
		if !it.isNew() && r.resolvesNow(i) {
			r.deliver(i, it.contract, it.holder, true)
		}
	}
	// New demands resolved this turn.
	for i, it := range r.plan.items {
		if it.isNew() && r.resolvesNow(i) {
			if sat := r.sensor(i); sat != nil {
				if c := r.senseNew(i, sat); c != nil {
					r.deliver(i, c, sat, true)
				}
			}
		}
	}
	// New demands sensed into storage.
	var stored []int
	for i, it := range r.plan.items {
		if it.isNew() && !r.resolvesNow(i) {
			if sat := r.sensor(i); sat != nil && r.senseNew(i, sat) != nil {
				stored = append(stored, i)
			}
		}
	}
	for _, i := range stored {
		r.deliver(i, r.contracts[i], r.world.ElementOf(r.contracts[i].Data), false)
	}
	// Contracts moved without resolution.
	for i, it := range r.plan.items {
		if !it.isNew() && !r.resolvesNow(i) {
			r.deliver(i, it.contract, it.holder, false)
		}
	}
}

func (r *realizer) resolvesNow(item int) bool {
	for _, rv := range r.plan.resolves {
		if rv.step == 0 && rv.item == item && r.sol.IsSet(rv.v) {
			return true
		}
	}
	return false
}

func (r *realizer) sensor(item int) *core.Element {
	for _, sv := range r.plan.senses {
		if sv.item == item && r.sol.IsSet(sv.v) {
			return sv.sat
		}
	}
	return nil
}

// senseNew contracts the demand of item and senses it with sat.
func (r *realizer) senseNew(item int, sat *core.Element) *core.Contract {
	demand := r.plan.items[item].demand
	var c *core.Contract
	switch ctr, ok := r.controller.(contractor); {
	case r.customer != nil:
		c = r.customer.Contract(demand, r.world)
	case ok:
		c = ctr.ContractFor(demand, sat, r.world)
	default:
		c = r.controller.Contract(demand, r.world)
	}
	if c == nil {
		return nil
	}
	if !r.controller.SenseAndStore(c, sat, r.world) {
		// The demand stays contracted and defaults if it is never sensed.
		return nil
	}
	r.contracts[item] = c
	return c
}

// deliver follows the planned first-step hops of item from holder and, when
// resolve is set, resolves the contract where the data ends up.
func (r *realizer) deliver(item int, c *core.Contract, holder *core.Element, resolve bool) {
	if c == nil || c.Data == nil || holder == nil {
		return
	}
	at := holder
	visited := map[*core.Element]bool{at: true}
	for {
		next := r.nextHop(item, at, visited)
		if next == nil {
			break
		}
		if !r.controller.Transport(next.protocol, c.Data, next.tx, next.rx, r.world) {
			break
		}
		if r.charge != nil {
			r.charge(next.protocol, next.tx, next.rx)
		}
		at = next.rx
		visited[at] = true
	}
	if !resolve {
		return
	}
	if c.IsCompleted(r.world) || c.IsDefaulted(r.world) {
		r.controller.Resolve(c, r.world)
	}
}

func (r *realizer) nextHop(item int, from *core.Element, visited map[*core.Element]bool) *linkVar {
	for i := range r.plan.links {
		lv := &r.plan.links[i]
		if lv.step == 0 && lv.item == item && lv.tx == from && !visited[lv.rx] && r.sol.IsSet(lv.v) {
			return lv
		}
	}
	return nil
}
