package core

import "github.com/signalsfoundry/orbital-federates/model"

// Data is a sensed-data record generated from a demand at sense time.
// Data values are compared by identity.
type Data struct {
	Phenomenon string
	Size       float64
	Contract   *Contract
}

// Contract is a federate's obligation to deliver data for a demand.
type Contract struct {
	Name        string
	Demand      *model.Demand
	Data        *Data
	ElapsedTime int

	nextElapsed int
}

// NewContract creates a contract for demand with zero elapsed time.
func NewContract(name string, demand *model.Demand) *Contract {
	return &Contract{Name: name, Demand: demand}
}

// newData generates the data record for this contract's demand.
func (c *Contract) newData() *Data {
	return &Data{Phenomenon: c.Demand.Phenomenon, Size: c.Demand.Size, Contract: c}
}

// Tick computes the next elapsed time.
func (c *Contract) Tick() { c.nextElapsed = c.ElapsedTime + 1 }

// Tock commits the elapsed time computed by Tick.
func (c *Contract) Tock() { c.ElapsedTime = c.nextElapsed }

// Location is where the contract's data currently resides, or nil when the
// data is lost or was never sensed.
func (c *Contract) Location(world *Context) *model.Location {
	if c.Data == nil || world == nil {
		return nil
	}
	return world.LocationOfData(c.Data)
}

// IsDefaulted reports whether the contract is past its default time or its
// data has been lost.
func (c *Contract) IsDefaulted(world *Context) bool {
	if c.Demand.IsDefaultedAt(c.ElapsedTime) {
		return true
	}
	return c.Location(world) == nil
}

// IsCompleted reports whether the contract's data has reached the surface in time.
func (c *Contract) IsCompleted(world *Context) bool {
	if c.Demand.IsDefaultedAt(c.ElapsedTime) {
		return false
	}
	return c.Location(world).IsSurface()
}

// Value is the demand value at the current elapsed time.
func (c *Contract) Value() float64 { return c.Demand.ValueAt(c.ElapsedTime) }
