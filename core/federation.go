package core

import (
	"math"

	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

// Federation is a coalition of federates. Controller queries and actions
// delegate to the union of its members.
type Federation struct {
	timectrl.Observable

	name          string
	initFederates []*Federate
	federates     []*Federate
	ops           Operations
}

var _ Controller = (*Federation)(nil)

// NewFederation creates a federation over federates. A nil ops selects NoOperations.
func NewFederation(name string, ops Operations, federates ...*Federate) *Federation {
	fed := &Federation{
		name:          name,
		initFederates: append([]*Federate(nil), federates...),
		federates:     append([]*Federate(nil), federates...),
		ops:           orNoOperations(ops),
	}
	fed.SetSource(name)
	return fed
}

func (fed *Federation) Name() string           { return fed.name }
func (fed *Federation) Operations() Operations { return fed.ops }

// SetOperations replaces the operations model. A nil ops selects NoOperations.
func (fed *Federation) SetOperations(ops Operations) { fed.ops = orNoOperations(ops) }

// Federates returns the members in the current turn order.
func (fed *Federation) Federates() []*Federate {
	return append([]*Federate(nil), fed.federates...)
}

func (fed *Federation) Elements() []*Element {
	var out []*Element
	for _, f := range fed.federates {
		out = append(out, f.elements...)
	}
	return out
}

func (fed *Federation) Contracts() []*Contract {
	var out []*Contract
	for _, f := range fed.federates {
		out = append(out, f.contracts...)
	}
	return out
}

func (fed *Federation) Controls(e *Element) bool {
	for _, f := range fed.federates {
		if f.Controls(e) {
			return true
		}
	}
	return false
}

func (fed *Federation) member(f *Federate) bool {
	for _, m := range fed.federates {
		if m == f {
			return true
		}
	}
	return false
}

// Init restores the member order and initialises every member.
func (fed *Federation) Init() {
	fed.federates = append(fed.federates[:0], fed.initFederates...)
	for _, f := range fed.federates {
		f.Init()
	}
}

func (fed *Federation) Tick(world *Context) {
	for _, f := range fed.federates {
		f.Tick(world)
	}
}

func (fed *Federation) Tock() {
	for _, f := range fed.federates {
		f.Tock()
	}
}

func (fed *Federation) CanContract(demand *model.Demand, world *Context) bool {
	return canContract(fed, demand, world)
}

// Contract assigns demand to the first member able to sense it.
func (fed *Federation) Contract(demand *model.Demand, world *Context) *Contract {
	for _, f := range fed.federates {
		if f.CanContract(demand, world) {
			return f.Contract(demand, world)
		}
	}
	world.warn("contract rejected", logging.String("federation", fed.name), logging.String("demand", demandName(demand)))
	return nil
}

// ContractFor assigns demand to the member owning sensor, so the contract and
// the sensing element belong to the same federate.
func (fed *Federation) ContractFor(demand *model.Demand, sensor *Element, world *Context) *Contract {
	owner := world.FederateOf(sensor)
	if owner == nil || !fed.member(owner) {
		return fed.Contract(demand, world)
	}
	return owner.Contract(demand, world)
}

func (fed *Federation) SenseAndStore(c *Contract, e *Element, world *Context) bool {
	return senseAndStore(fed, c, e, world)
}

func (fed *Federation) CouldTransport(protocol string, tx, rx *Element, world *Context) bool {
	return couldTransport(fed, protocol, tx, rx, world)
}

func (fed *Federation) CanTransport(protocol string, d *Data, tx, rx *Element, world *Context) bool {
	return canTransport(fed, protocol, d, tx, rx, world)
}

func (fed *Federation) Transport(protocol string, d *Data, tx, rx *Element, world *Context) bool {
	return transport(fed, protocol, d, tx, rx, world)
}

func (fed *Federation) Resolve(c *Contract, world *Context) bool {
	return resolve(fed, c, world)
}

// Exchange transfers amount from debtor to creditor. Either may end with
// negative cash; insolvency is handled at tock.
func (fed *Federation) Exchange(amount float64, debtor, creditor *Federate) bool {
	if debtor == nil || creditor == nil || !fed.member(debtor) || !fed.member(creditor) {
		return false
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	if debtor == creditor || amount == 0 {
		return true
	}
	debtor.Cash -= amount
	creditor.Cash += amount
	debtor.Trigger("transferOut", map[string]any{"amount": amount, "creditor": creditor.name})
	creditor.Trigger("transferIn", map[string]any{"amount": amount, "debtor": debtor.name})
	fed.Trigger("exchange", map[string]any{
		"amount":   amount,
		"debtor":   debtor.name,
		"creditor": creditor.name,
	})
	return true
}
