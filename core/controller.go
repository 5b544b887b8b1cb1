package core

import (
	"context"

	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/model"
)

// Controller is the capability set shared by federates and federations.
// Physical actions return false on a failed precondition and never mutate
// state in that case.
type Controller interface {
	Name() string
	Elements() []*Element
	Federates() []*Federate
	Contracts() []*Contract
	Operations() Operations
	Controls(e *Element) bool

	CanContract(demand *model.Demand, world *Context) bool
	Contract(demand *model.Demand, world *Context) *Contract
	SenseAndStore(c *Contract, e *Element, world *Context) bool
	CouldTransport(protocol string, tx, rx *Element, world *Context) bool
	CanTransport(protocol string, d *Data, tx, rx *Element, world *Context) bool
	Transport(protocol string, d *Data, tx, rx *Element, world *Context) bool
	Resolve(c *Contract, world *Context) bool
	Exchange(amount float64, debtor, creditor *Federate) bool

	Trigger(name string, fields map[string]any)
}

// Operations is a per-turn decision procedure. All effects are applied
// through the controller.
type Operations interface {
	Execute(ctx context.Context, controller Controller, world *Context)
}

// NoOperations takes no action.
type NoOperations struct{}

func (NoOperations) Execute(context.Context, Controller, *Context) {}

func orNoOperations(ops Operations) Operations {
	if ops == nil {
		return NoOperations{}
	}
	return ops
}

func canContract(c Controller, demand *model.Demand, world *Context) bool {
	if demand == nil || world == nil || !world.IsCurrent(demand) {
		return false
	}
	for _, e := range c.Elements() {
		if e.CanSense(demand) {
			return true
		}
	}
	return false
}

func ownsContract(c Controller, contract *Contract) *Federate {
	for _, f := range c.Federates() {
		if f.hasContract(contract) {
			return f
		}
	}
	return nil
}

func senseAndStore(c Controller, contract *Contract, e *Element, world *Context) bool {
	if contract == nil || e == nil || !c.Controls(e) || ownsContract(c, contract) == nil {
		world.warn("sense rejected: not controlled", logging.String("controller", c.Name()))
		return false
	}
	if contract.Data != nil {
		world.warn("sense rejected: contract already sensed",
			logging.String("controller", c.Name()), logging.String("contract", contract.Name))
		return false
	}
	if !e.CanSense(contract.Demand) || !e.senseAndStore(contract) {
		world.warn("sense rejected: element cannot sense demand",
			logging.String("controller", c.Name()),
			logging.String("element", e.Name),
			logging.String("demand", contract.Demand.Name()))
		return false
	}
	c.Trigger("sense", map[string]any{
		"element": e.Name,
		"demand":  contract.Demand.Name(),
		"time":    world.Time(),
	})
	return true
}

func couldTransport(c Controller, protocol string, tx, rx *Element, world *Context) bool {
	if tx == nil || rx == nil || !c.Controls(tx) || !c.Controls(rx) {
		return false
	}
	return world.CouldTransportAt(protocol, tx, tx.Location, rx, rx.Location)
}

func canTransport(c Controller, protocol string, d *Data, tx, rx *Element, world *Context) bool {
	return couldTransport(c, protocol, tx, rx, world) &&
		tx.CanTransmit(protocol, d) && rx.CanReceive(protocol, d)
}

func transport(c Controller, protocol string, d *Data, tx, rx *Element, world *Context) bool {
	if !canTransport(c, protocol, d, tx, rx, world) || !tx.transfer(protocol, d, rx) {
		world.warn("transport rejected",
			logging.String("controller", c.Name()),
			logging.String("protocol", protocol),
			logging.String("tx", elementName(tx)),
			logging.String("rx", elementName(rx)))
		return false
	}
	c.Trigger("transport", map[string]any{
		"protocol": protocol,
		"tx":       tx.Name,
		"rx":       rx.Name,
		"time":     world.Time(),
	})
	return true
}

func resolve(c Controller, contract *Contract, world *Context) bool {
	owner := ownsContract(c, contract)
	if owner == nil {
		world.warn("resolve rejected: contract not controlled", logging.String("controller", c.Name()))
		return false
	}
	return owner.resolve(contract, world, false)
}

func elementName(e *Element) string {
	if e == nil {
		return ""
	}
	return e.Name
}
