package operations

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/internal/logging"
)

const (
	DefaultCostSGL = 50.0
	DefaultCostISL = 20.0
)

// FixedCost plans separately for each federate of a federation. A federate
// may route through another member's assets at a fixed price per hop and
// foreign endpoint, settled through the controller's Exchange.
type FixedCost struct {
	*Dynamic
	CostSGL float64
	CostISL float64
}

var _ core.Operations = (*FixedCost)(nil)

// NewFixedCost returns a FixedCost model.
func NewFixedCost(costSGL, costISL float64, horizon int, storagePenalty, islPenalty float64, opts ...Option) *FixedCost {
	return &FixedCost{
		Dynamic: NewDynamic(horizon, storagePenalty, islPenalty, opts...),
		CostSGL: costSGL,
		CostISL: costISL,
	}
}

func (x *FixedCost) String() string {
	return fmt.Sprintf("x%g,%g,%d,%s,%g", x.CostSGL, x.CostISL, x.PlanningHorizon, penaltyString(x.StoragePenalty), x.ISLPenalty)
}

// unitPrice is the price of one foreign endpoint of a hop over protocol.
func (x *FixedCost) unitPrice(protocol string) float64 {
	if core.IsISLProtocol(protocol) {
		return x.CostISL
	}
	return x.CostSGL
}

// Execute plans for each member federate in turn, in controller order.
func (x *FixedCost) Execute(ctx context.Context, controller core.Controller, world *core.Context) {
	for _, customer := range controller.Federates() {
		if err := ctx.Err(); err != nil {
			x.settings.log.Warn(ctx, "fixed-cost operations interrupted",
				logging.String("controller", controller.Name()), logging.Err(err))
			return
		}
		x.executeFor(ctx, controller, customer, world)
	}
}

func (x *FixedCost) executeFor(ctx context.Context, controller core.Controller, customer *core.Federate, world *core.Context) {
	owned := func(e *core.Element) bool { return world.FederateOf(e) == customer }
	foreign := func(tx, rx *core.Element) int {
		n := 0
		if !owned(tx) {
			n++
		}
		if !owned(rx) {
			n++
		}
		return n
	}
	sc := scope{
		customer:       customer,
		store:          owned,
		resolve:        owned,
		storagePenalty: func(e *core.Element) float64 { return x.storagePenalty(e, world) },
		linkCost: func(protocol string, tx, rx *core.Element) (float64, float64) {
			price := x.unitPrice(protocol) * float64(foreign(tx, rx))
			cost := price
			if core.IsISLProtocol(protocol) {
				cost += x.ISLPenalty
			}
			return cost, price
		},
	}
	p, sol := x.solve(ctx, "fixed-cost", controller, world, sc)
	if sol == nil {
		return
	}
	charge := func(protocol string, tx, rx *core.Element) {
		for _, e := range []*core.Element{tx, rx} {
			if owned(e) {
				continue
			}
			owner := world.FederateOf(e)
			if owner == nil {
				continue
			}
			if !controller.Exchange(x.unitPrice(protocol), customer, owner) {
				x.settings.log.Warn(ctx, "link charge rejected",
					logging.String("controller", controller.Name()),
					logging.String("payer", customer.Name()),
					logging.String("payee", owner.Name()))
			}
		}
	}
	r := newRealizer(controller, world, p, sol, charge)
	r.customer = customer
	r.run()
}
