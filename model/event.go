package model

import "sort"

// Event is a stochastic occurrence revealed in a sector each turn.
// Events are identity-compared; the sector is assigned when the event is revealed.
type Event interface {
	Name() string
	Sector() int
	SetSector(sector int)
	IsDemand() bool
	IsDisturbance() bool
}

type eventBase struct {
	name   string
	sector int
}

func (e *eventBase) Name() string         { return e.name }
func (e *eventBase) Sector() int          { return e.sector }
func (e *eventBase) SetSector(sector int) { e.sector = sector }

// Breakpoint is one step of a value schedule: the value holds for elapsed
// times up to and including Time.
type Breakpoint struct {
	Time  int     `yaml:"time" json:"time"`
	Value float64 `yaml:"value" json:"value"`
}

// ValueSchedule is a time-decaying step function. Breakpoints are kept sorted by Time.
type ValueSchedule []Breakpoint

// NewValueSchedule returns a sorted copy of points.
func NewValueSchedule(points ...Breakpoint) ValueSchedule {
	out := append(ValueSchedule(nil), points...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// MaxTime is the last breakpoint time, or zero for an empty schedule.
func (v ValueSchedule) MaxTime() int {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1].Time
}

// Demand is an opportunity to earn revenue by sensing a phenomenon and
// delivering the data to the surface.
type Demand struct {
	eventBase
	Phenomenon string
	Size       float64
	Schedule   ValueSchedule
	Default    float64
}

// NewDemand constructs a demand with a sorted copy of schedule.
func NewDemand(name, phenomenon string, size float64, schedule ValueSchedule, defaultValue float64) *Demand {
	return &Demand{
		eventBase:  eventBase{name: name},
		Phenomenon: phenomenon,
		Size:       size,
		Schedule:   NewValueSchedule(schedule...),
		Default:    defaultValue,
	}
}

func (d *Demand) IsDemand() bool      { return true }
func (d *Demand) IsDisturbance() bool { return false }

// ValueAt returns the value earned when the demand is delivered after elapsed turns.
func (d *Demand) ValueAt(elapsed int) float64 {
	for _, bp := range d.Schedule {
		if elapsed <= bp.Time {
			return bp.Value
		}
	}
	return d.Default
}

// DefaultValue is the (usually negative) value applied when the contract defaults.
func (d *Demand) DefaultValue() float64 { return d.Default }

// DefaultTime is the elapsed time after which a contract for this demand defaults.
func (d *Demand) DefaultTime() int { return d.Schedule.MaxTime() }

// IsDefaultedAt reports whether a contract with the given elapsed time has defaulted.
func (d *Demand) IsDefaultedAt(elapsed int) bool { return elapsed > d.DefaultTime() }

// Disturbance is a hazard that may destroy modules of undefended satellites
// in its sector.
type Disturbance struct {
	eventBase
	HitChance float64
	MaxHits   int
}

// NewDisturbance constructs a disturbance event.
func NewDisturbance(name string, hitChance float64, maxHits int) *Disturbance {
	return &Disturbance{
		eventBase: eventBase{name: name},
		HitChance: hitChance,
		MaxHits:   maxHits,
	}
}

func (d *Disturbance) IsDemand() bool      { return false }
func (d *Disturbance) IsDisturbance() bool { return true }
