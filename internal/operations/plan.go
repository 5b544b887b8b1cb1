package operations

import (
	"fmt"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/internal/milp"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

const sizeEpsilon = 1e-9

// item is a unit of flow through the plan: either a demand that may be
// contracted this turn or an existing contract whose data is held somewhere.
type item struct {
	demand   *model.Demand
	contract *core.Contract
	holder   *core.Element
	owner    *core.Federate
}

func (it *item) isNew() bool        { return it.contract == nil }
func (it *item) phenomenon() string { return it.demand.Phenomenon }
func (it *item) size() float64      { return it.demand.Size }
func (it *item) elapsed(offset int) int {
	if it.contract != nil {
		return it.contract.ElapsedTime + offset
	}
	return offset
}

func (it *item) label() string {
	if it.contract != nil {
		return it.contract.Name
	}
	return it.demand.Name()
}

type senseVar struct {
	v    milp.Var
	sat  *core.Element
	item int
}

type storeVar struct {
	v    milp.Var
	step int
	sat  *core.Element
	item int
}

type linkVar struct {
	v        milp.Var
	step     int
	tx, rx   *core.Element
	protocol string
	item     int
	// price is the cash the plan's customer pays for the hop.
	price float64
}

type resolveVar struct {
	v     milp.Var
	step  int
	elem  *core.Element
	item  int
	value float64
}

// scope restricts what a plan may use and how link use is valued.
type scope struct {
	// customer is the federate paying for foreign assets, nil when the
	// controller plans for all of its assets jointly.
	customer *core.Federate
	// store reports whether a satellite may sense into and hold data.
	store func(*core.Element) bool
	// resolve reports whether a satellite may resolve data. Ground
	// stations always may.
	resolve func(*core.Element) bool
	// storagePenalty is the per-step cost of holding an item.
	storagePenalty func(*core.Element) float64
	// linkCost returns the objective cost and the cash price of a hop.
	linkCost func(protocol string, tx, rx *core.Element) (cost, price float64)
}

// plan is the time-indexed allocation model of one controller for one turn.
type plan struct {
	world *core.Context
	scope scope
	prob  *milp.Problem

	steps int
	elems []*core.Element
	index map[*core.Element]int
	locs  [][]*model.Location

	items    []*item
	senses   []senseVar
	stores   []storeVar
	links    []linkVar
	resolves []resolveVar
}

// horizonSteps is the number of planned steps from now, clipped to the end
// of the run.
func horizonSteps(world *core.Context, horizon int) int {
	if horizon < 1 {
		horizon = 1
	}
	if world.MaxTime() == timectrl.NoMaxTime {
		return horizon
	}
	step := world.TimeStep()
	if step < 1 {
		step = 1
	}
	remaining := (world.MaxTime()-world.Time())/step + 1
	if remaining < 1 {
		remaining = 1
	}
	if remaining < horizon {
		return remaining
	}
	return horizon
}

// buildPlan formulates the allocation problem. It returns nil when the
// controller has nothing to plan.
func buildPlan(c core.Controller, world *core.Context, sc scope, horizon int) *plan {
	p := &plan{world: world, scope: sc, prob: milp.NewProblem(), index: make(map[*core.Element]int)}
	for _, e := range c.Elements() {
		if e.IsCommissioned() {
			p.index[e] = len(p.elems)
			p.elems = append(p.elems, e)
		}
	}
	if len(p.elems) == 0 {
		return nil
	}

	p.steps = horizonSteps(world, horizon)
	p.locs = make([][]*model.Location, p.steps)
	for k := range p.locs {
		row := make([]*model.Location, len(p.elems))
		for j, e := range p.elems {
			row[j] = world.Propagate(e.Location, k*world.TimeStep())
		}
		p.locs[k] = row
	}

	p.collectItems(c)
	if len(p.items) == 0 {
		return nil
	}
	p.addVariables()
	p.addConstraints(c)
	return p
}

func contractOwner(c core.Controller, contract *core.Contract) *core.Federate {
	for _, f := range c.Federates() {
		for _, owned := range f.Contracts() {
			if owned == contract {
				return f
			}
		}
	}
	return nil
}

func (p *plan) collectItems(c core.Controller) {
	for _, contract := range c.Contracts() {
		if contract.Data == nil {
			continue
		}
		owner := contractOwner(c, contract)
		if p.scope.customer != nil && owner != p.scope.customer {
			continue
		}
		holder := p.world.ElementOf(contract.Data)
		if _, ok := p.index[holder]; !ok {
			continue
		}
		p.items = append(p.items, &item{demand: contract.Demand, contract: contract, holder: holder, owner: owner})
	}

	for _, ev := range p.world.CurrentEvents() {
		d, ok := ev.(*model.Demand)
		if !ok {
			continue
		}
		var candidates []*core.Element
		var owner *core.Federate
		mixed := false
		for _, e := range p.elems {
			if !e.IsSpace() || !p.scope.store(e) || !e.CanSense(d) {
				continue
			}
			f := p.world.FederateOf(e)
			switch {
			case len(candidates) == 0:
				owner = f
			case owner != f:
				mixed = true
			}
			candidates = append(candidates, e)
		}
		if len(candidates) == 0 {
			continue
		}
		if mixed {
			owner = nil
		}
		idx := len(p.items)
		p.items = append(p.items, &item{demand: d, owner: owner})
		for _, s := range candidates {
			v := p.prob.AddBinary(fmt.Sprintf("S[%s][%s]", s.Name, d.Name()), 0)
			p.senses = append(p.senses, senseVar{v: v, sat: s, item: idx})
		}
	}
}

func (p *plan) addVariables() {
	for k := 0; k < p.steps; k++ {
		last := k == p.steps-1
		for j, s := range p.elems {
			if !s.IsSpace() {
				continue
			}
			if !last && p.scope.store(s) {
				penalty := p.scope.storagePenalty(s)
				for i, it := range p.items {
					if s.MaxStored(it.phenomenon())+sizeEpsilon < it.size() {
						continue
					}
					v := p.prob.AddBinary(fmt.Sprintf("E[%d][%s][%s]", k, s.Name, it.label()), -penalty)
					p.stores = append(p.stores, storeVar{v: v, step: k, sat: s, item: i})
				}
			}
			for _, protocol := range s.Protocols() {
				for jj, rx := range p.elems {
					if !p.world.CouldTransportAt(protocol, s, p.locs[k][j], rx, p.locs[k][jj]) {
						continue
					}
					cost, price := p.scope.linkCost(protocol, s, rx)
					for i, it := range p.items {
						if it.size() > s.MaxTransmit(protocol)+sizeEpsilon || it.size() > rx.MaxReceive(protocol)+sizeEpsilon {
							continue
						}
						family := "L"
						if rx.IsGround() {
							family = "T"
						}
						v := p.prob.AddBinary(fmt.Sprintf("%s[%d][%s][%s][%s][%s]", family, k, s.Name, rx.Name, protocol, it.label()), -cost)
						p.links = append(p.links, linkVar{v: v, step: k, tx: s, rx: rx, protocol: protocol, item: i, price: price})
					}
				}
			}
		}
		for j, e := range p.elems {
			loc := p.locs[k][j]
			for i, it := range p.items {
				// New demands are never resolved in orbit; declining to
				// sense them is always cheaper. Held data may always be
				// written off where it is.
				if e.IsSpace() && (it.isNew() || !p.scope.resolve(e) && e != it.holder) {
					continue
				}
				value := it.demand.DefaultValue()
				if loc.IsSurface() {
					value = it.demand.ValueAt(it.elapsed(k))
				}
				v := p.prob.AddBinary(fmt.Sprintf("R[%d][%s][%s]", k, e.Name, it.label()), value)
				p.resolves = append(p.resolves, resolveVar{v: v, step: k, elem: e, item: i, value: value})
			}
		}
	}
}

type flowKey struct{ step, elem, item int }

func (p *plan) addConstraints(c core.Controller) {
	in := make(map[flowKey][]milp.Term)
	out := make(map[flowKey][]milp.Term)
	for _, sv := range p.senses {
		key := flowKey{0, p.index[sv.sat], sv.item}
		in[key] = append(in[key], milp.T(sv.v, 1))
	}
	for _, st := range p.stores {
		from := flowKey{st.step, p.index[st.sat], st.item}
		to := flowKey{st.step + 1, p.index[st.sat], st.item}
		out[from] = append(out[from], milp.T(st.v, -1))
		in[to] = append(in[to], milp.T(st.v, 1))
	}
	for _, lv := range p.links {
		from := flowKey{lv.step, p.index[lv.tx], lv.item}
		to := flowKey{lv.step, p.index[lv.rx], lv.item}
		out[from] = append(out[from], milp.T(lv.v, -1))
		in[to] = append(in[to], milp.T(lv.v, 1))
	}
	for _, rv := range p.resolves {
		key := flowKey{rv.step, p.index[rv.elem], rv.item}
		out[key] = append(out[key], milp.T(rv.v, -1))
	}

	// Flow conservation: inflow + initial holding - outflow = 0.
	for k := 0; k < p.steps; k++ {
		for j, e := range p.elems {
			for i, it := range p.items {
				key := flowKey{k, j, i}
				terms := append(append([]milp.Term(nil), in[key]...), out[key]...)
				held := 0.0
				if k == 0 && it.holder == e {
					held = 1
				}
				if len(terms) == 0 && held == 0 {
					continue
				}
				p.prob.AddConstraint(fmt.Sprintf("flow[%d][%s][%s]", k, e.Name, it.label()), terms, milp.Equal, -held)
			}
		}
	}

	// Each demand is sensed at most once.
	for i, it := range p.items {
		if !it.isNew() {
			continue
		}
		var terms []milp.Term
		for _, sv := range p.senses {
			if sv.item == i {
				terms = append(terms, milp.T(sv.v, 1))
			}
		}
		p.prob.AddConstraint("demand["+it.label()+"]", terms, milp.LessEq, 1)
	}

	for _, s := range p.elems {
		if !s.IsSpace() {
			continue
		}
		// Sensing throughput this turn.
		for _, phen := range s.Phenomena() {
			var terms []milp.Term
			for _, sv := range p.senses {
				if sv.sat == s && p.items[sv.item].phenomenon() == phen {
					terms = append(terms, milp.T(sv.v, p.items[sv.item].size()))
				}
			}
			if len(terms) > 0 {
				p.prob.AddConstraint("sense["+s.Name+"]["+phen+"]", terms, milp.LessEq, s.RemainingSense(phen))
			}
		}
		// Storage capacity per step, per phenomenon and in total.
		for k := 0; k < p.steps-1; k++ {
			var total []milp.Term
			byPhen := make(map[string][]milp.Term)
			var phens []string
			for _, st := range p.stores {
				if st.sat != s || st.step != k {
					continue
				}
				it := p.items[st.item]
				if _, seen := byPhen[it.phenomenon()]; !seen {
					phens = append(phens, it.phenomenon())
				}
				byPhen[it.phenomenon()] = append(byPhen[it.phenomenon()], milp.T(st.v, it.size()))
				total = append(total, milp.T(st.v, it.size()))
			}
			for _, phen := range phens {
				p.prob.AddConstraint(fmt.Sprintf("store[%d][%s][%s]", k, s.Name, phen), byPhen[phen], milp.LessEq, s.MaxStored(phen))
			}
			if len(total) > 0 {
				p.prob.AddConstraint(fmt.Sprintf("store[%d][%s]", k, s.Name), total, milp.LessEq, s.StorageCapacity())
			}
		}
	}

	// Link throughput per element, protocol and step; the first step only
	// has what is left this turn.
	for k := 0; k < p.steps; k++ {
		for _, e := range p.elems {
			for _, protocol := range e.Protocols() {
				var tx, rx []milp.Term
				for _, lv := range p.links {
					if lv.step != k || lv.protocol != protocol {
						continue
					}
					size := p.items[lv.item].size()
					if lv.tx == e {
						tx = append(tx, milp.T(lv.v, size))
					}
					if lv.rx == e {
						rx = append(rx, milp.T(lv.v, size))
					}
				}
				txCap, rxCap := e.MaxTransmit(protocol), e.MaxReceive(protocol)
				if k == 0 {
					txCap, rxCap = e.RemainingTransmit(protocol), e.RemainingReceive(protocol)
				}
				if len(tx) > 0 {
					p.prob.AddConstraint(fmt.Sprintf("tx[%d][%s][%s]", k, e.Name, protocol), tx, milp.LessEq, txCap)
				}
				if len(rx) > 0 {
					p.prob.AddConstraint(fmt.Sprintf("rx[%d][%s][%s]", k, e.Name, protocol), rx, milp.LessEq, rxCap)
				}
			}
		}
	}

	// Cash: what each federate secures now must not leave it below -1.
	for _, f := range c.Federates() {
		var terms []milp.Term
		for _, rv := range p.resolves {
			if rv.step == 0 && p.items[rv.item].owner == f {
				terms = append(terms, milp.T(rv.v, rv.value))
			}
		}
		for _, lv := range p.links {
			if lv.step == 0 && lv.price > 0 && p.items[lv.item].owner == f {
				terms = append(terms, milp.T(lv.v, -lv.price))
			}
		}
		if len(terms) > 0 {
			p.prob.AddConstraint("cash["+f.Name()+"]", terms, milp.GreaterEq, -1-f.Cash)
		}
	}
}
