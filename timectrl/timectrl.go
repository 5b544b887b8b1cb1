package timectrl

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NoMaxTime marks a simulator that never completes on its own.
const NoMaxTime = -1

// Simulator event names.
const (
	EventInit     = "init"
	EventAdvance  = "advance"
	EventComplete = "complete"
)

// SimClock is the read-only view of simulation time handed to entities.
type SimClock interface {
	// Now returns the current simulation time.
	Now() int
	// Step returns the fixed time step.
	Step() int
	// Limit returns the time at which the run completes, or NoMaxTime.
	Limit() int
}

// Entity is a simulation participant with a three-phase lifecycle.
//
// Tick computes next state from the committed state of the previous turn;
// Tock commits it. Every entity ticks before any entity tocks.
type Entity interface {
	Init(ctx context.Context, clock SimClock)
	Tick(ctx context.Context, clock SimClock)
	Tock(ctx context.Context)
}

// Simulator is a fixed-step discrete-time driver.
type Simulator struct {
	Observable

	Time     int
	InitTime int
	TimeStep int
	MaxTime  int

	Entities []Entity

	tracer trace.Tracer
}

// NewSimulator constructs a simulator. Pass NoMaxTime for an unbounded run.
func NewSimulator(initTime, timeStep, maxTime int, entities ...Entity) *Simulator {
	if timeStep <= 0 {
		timeStep = 1
	}
	s := &Simulator{
		Time:     initTime,
		InitTime: initTime,
		TimeStep: timeStep,
		MaxTime:  maxTime,
		Entities: entities,
	}
	s.SetSource("simulator")
	return s
}

func (s *Simulator) Now() int   { return s.Time }
func (s *Simulator) Step() int  { return s.TimeStep }
func (s *Simulator) Limit() int { return s.MaxTime }

// AddEntity registers an entity. Entities are initialised in registration order.
func (s *Simulator) AddEntity(e Entity) {
	s.Entities = append(s.Entities, e)
}

// IsComplete reports whether simulation time has reached MaxTime.
func (s *Simulator) IsComplete() bool {
	if s.MaxTime == NoMaxTime {
		return false
	}
	return s.Time >= s.MaxTime
}

// Init resets time and initialises every entity. Entities must not depend on
// each other's initialisation order.
func (s *Simulator) Init(ctx context.Context) {
	s.Time = s.InitTime
	for _, e := range s.Entities {
		e.Init(ctx, s)
	}
	s.Trigger(EventInit, map[string]any{"time": s.Time})
}

// Advance runs one turn: tick every entity, then tock every entity, then
// step time forward. It is a no-op once the simulator is complete.
func (s *Simulator) Advance(ctx context.Context) {
	if s.IsComplete() {
		return
	}
	ctx, span := s.tracerOrDefault().Start(ctx, "simulator.advance",
		trace.WithAttributes(attribute.Int("sim.time", s.Time)))
	defer span.End()

	for _, e := range s.Entities {
		e.Tick(ctx, s)
	}
	for _, e := range s.Entities {
		e.Tock(ctx)
	}
	s.Time += s.TimeStep
	s.Trigger(EventAdvance, map[string]any{"time": s.Time})
	if s.IsComplete() {
		s.Trigger(EventComplete, map[string]any{"time": s.Time})
	}
}

func (s *Simulator) tracerOrDefault() trace.Tracer {
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/signalsfoundry/orbital-federates/timectrl")
	}
	return s.tracer
}

// Execute initialises the simulator and advances until complete. It returns
// early with the context error if ctx is cancelled between turns.
func (s *Simulator) Execute(ctx context.Context) error {
	s.Init(ctx)
	for !s.IsComplete() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Advance(ctx)
	}
	return nil
}
