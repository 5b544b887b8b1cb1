package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/model"
	"github.com/signalsfoundry/orbital-federates/timectrl"
)

// ErrEventsNotConserved reports that the event pools no longer partition the catalog.
var ErrEventsNotConserved = errors.New("event pools do not match the event catalog")

// Event kinds reported to recorders on reveal.
const (
	RevealDemand      = "demand"
	RevealDisturbance = "disturbance"
)

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithSeed sets the root seed of every random stream.
func WithSeed(seed int64) ContextOption {
	return func(c *Context) { c.seed = seed }
}

// WithLogger sets the logger used for rejected actions and turn bookkeeping.
func WithLogger(l logging.Logger) ContextOption {
	return func(c *Context) { c.log = logging.OrNoop(l) }
}

// WithRecorder sets the measurement sink.
func WithRecorder(r Recorder) ContextOption {
	return func(c *Context) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Context is the spatial and temporal world state: the sector ring, the
// event pools and the federations acting in it.
type Context struct {
	timectrl.Observable

	locations []*model.Location
	byName    map[string]*model.Location
	rings     map[model.Altitude][]*model.Location
	sectors   []int

	events          []model.Event
	initFederations []*Federation
	federations     []*Federation

	currentEvents []model.Event
	futureEvents  []model.Event
	pastEvents    []model.Event

	seed     int64
	time     int
	nextTime int
	timeStep int
	maxTime  int

	masterStream  *rand.Rand
	shuffleStream *rand.Rand
	orderStream   *rand.Rand
	rollStreams   map[*Federate]*rand.Rand

	log      logging.Logger
	recorder Recorder
}

var _ timectrl.Entity = (*Context)(nil)

// NewContext builds a world over locations with the given event catalog and federations.
func NewContext(locations []*model.Location, events []model.Event, federations []*Federation, opts ...ContextOption) *Context {
	c := &Context{
		locations:       append([]*model.Location(nil), locations...),
		byName:          make(map[string]*model.Location, len(locations)),
		rings:           make(map[model.Altitude][]*model.Location),
		events:          append([]model.Event(nil), events...),
		initFederations: append([]*Federation(nil), federations...),
		federations:     append([]*Federation(nil), federations...),
		timeStep:        1,
		maxTime:         timectrl.NoMaxTime,
		log:             logging.Noop(),
		recorder:        noopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetSource("context")

	seen := make(map[int]bool)
	for _, loc := range c.locations {
		c.byName[loc.Name] = loc
		if loc.IsOrbit() {
			c.rings[loc.Altitude] = append(c.rings[loc.Altitude], loc)
		}
		if !seen[loc.Sector] {
			seen[loc.Sector] = true
			c.sectors = append(c.sectors, loc.Sector)
		}
	}
	sort.Ints(c.sectors)
	for alt, ring := range c.rings {
		sort.SliceStable(ring, func(i, j int) bool { return ring[i].Sector < ring[j].Sector })
		c.rings[alt] = ring
	}
	return c
}

func (c *Context) Time() int              { return c.time }
func (c *Context) TimeStep() int          { return c.timeStep }
func (c *Context) MaxTime() int           { return c.maxTime }
func (c *Context) Seed() int64            { return c.seed }
func (c *Context) Logger() logging.Logger { return c.log }
func (c *Context) Sectors() []int         { return append([]int(nil), c.sectors...) }
func (c *Context) Locations() []*model.Location {
	return append([]*model.Location(nil), c.locations...)
}
func (c *Context) Events() []model.Event { return append([]model.Event(nil), c.events...) }
func (c *Context) CurrentEvents() []model.Event {
	return append([]model.Event(nil), c.currentEvents...)
}
func (c *Context) FutureEvents() []model.Event { return append([]model.Event(nil), c.futureEvents...) }
func (c *Context) PastEvents() []model.Event   { return append([]model.Event(nil), c.pastEvents...) }

// Location returns the location called name, or nil.
func (c *Context) Location(name string) *model.Location { return c.byName[name] }

// Federations returns the federations in the current turn order.
func (c *Context) Federations() []*Federation {
	return append([]*Federation(nil), c.federations...)
}

// Federates returns every federate in federation order.
func (c *Context) Federates() []*Federate {
	var out []*Federate
	for _, fed := range c.federations {
		out = append(out, fed.federates...)
	}
	return out
}

// Init resets time, random streams, event pools and every federation.
func (c *Context) Init(ctx context.Context, clock timectrl.SimClock) {
	c.time, c.nextTime = clock.Now(), clock.Now()
	c.timeStep = clock.Step()
	c.maxTime = clock.Limit()

	c.masterStream = rand.New(rand.NewSource(c.seed))
	c.shuffleStream = rand.New(rand.NewSource(c.masterStream.Int63()))
	c.orderStream = rand.New(rand.NewSource(c.masterStream.Int63()))
	c.rollStreams = make(map[*Federate]*rand.Rand)
	for _, fed := range c.initFederations {
		for _, f := range fed.initFederates {
			c.rollStreams[f] = rand.New(rand.NewSource(c.masterStream.Int63()))
		}
	}

	c.federations = append(c.federations[:0], c.initFederations...)
	for _, fed := range c.federations {
		fed.Init()
	}

	c.currentEvents = nil
	c.pastEvents = nil
	c.futureEvents = append([]model.Event(nil), c.events...)
	shuffleEvents(c.shuffleStream, c.futureEvents)
	c.Trigger("init", map[string]any{"time": c.time, "seed": c.seed})
}

// Tick computes next state for every federation.
func (c *Context) Tick(ctx context.Context, clock timectrl.SimClock) {
	for _, fed := range c.federations {
		fed.Tick(c)
	}
	c.nextTime = c.time + c.timeStep
}

// Tock commits the turn and runs end-of-turn bookkeeping: expire current
// events, auto-default, liquidate, reveal, disturb, commit time and run
// operations, in that order.
func (c *Context) Tock(ctx context.Context) {
	for _, fed := range c.federations {
		fed.Tock()
	}

	c.pastEvents = append(c.pastEvents, c.currentEvents...)
	c.currentEvents = nil

	c.autoDefault(ctx)
	c.liquidate(ctx)
	revealed := c.reveal()
	c.disturb(ctx, revealed)

	c.time = c.nextTime
	c.recorder.RecordTurn(c.time, c.Federates())

	c.orderStream.Shuffle(len(c.federations), func(i, j int) {
		c.federations[i], c.federations[j] = c.federations[j], c.federations[i]
	})
	for _, fed := range c.federations {
		c.orderStream.Shuffle(len(fed.federates), func(i, j int) {
			fed.federates[i], fed.federates[j] = fed.federates[j], fed.federates[i]
		})
		for _, f := range fed.federates {
			f.ops.Execute(ctx, f, c)
		}
		fed.ops.Execute(ctx, fed, c)
	}
}

func (c *Context) autoDefault(ctx context.Context) {
	for _, f := range c.Federates() {
		for _, contract := range f.Contracts() {
			if !contract.IsDefaulted(c) {
				continue
			}
			c.log.Info(ctx, "contract defaulted",
				logging.Turn(c.time),
				logging.String("federate", f.name),
				logging.String("contract", contract.Name),
				logging.Float("penalty", contract.Demand.DefaultValue()))
			f.resolve(contract, c, true)
		}
	}
}

func (c *Context) liquidate(ctx context.Context) {
	for _, f := range c.Federates() {
		if f.Cash >= 0 || (len(f.elements) == 0 && len(f.contracts) == 0) {
			continue
		}
		c.log.Warn(ctx, "liquidating insolvent federate",
			logging.Turn(c.time), logging.String("federate", f.name), logging.Float("cash", f.Cash))
		f.Liquidate(c)
	}
}

// reveal exposes one event per sector, reshuffling the past events into the
// future pool whenever it runs dry.
func (c *Context) reveal() []model.Event {
	var revealed []model.Event
	for _, sector := range c.sectors {
		if len(c.futureEvents) == 0 {
			c.reshuffle()
		}
		if len(c.futureEvents) == 0 {
			break
		}
		last := len(c.futureEvents) - 1
		ev := c.futureEvents[last]
		c.futureEvents = c.futureEvents[:last]
		ev.SetSector(sector)
		c.currentEvents = append(c.currentEvents, ev)
		revealed = append(revealed, ev)

		kind := RevealDemand
		if ev.IsDisturbance() {
			kind = RevealDisturbance
		}
		c.recorder.RecordReveal(kind)
		c.Trigger("reveal", map[string]any{"event": ev.Name(), "sector": sector, "kind": kind})

		if len(c.futureEvents) == 0 {
			c.reshuffle()
		}
	}
	return revealed
}

// reshuffle moves every past event back into the future pool.
func (c *Context) reshuffle() {
	if len(c.pastEvents) == 0 {
		return
	}
	c.futureEvents = append(c.futureEvents, c.pastEvents...)
	c.pastEvents = nil
	shuffleEvents(c.shuffleStream, c.futureEvents)
	c.Trigger("reshuffle", map[string]any{"events": len(c.futureEvents), "time": c.time})
}

func (c *Context) disturb(ctx context.Context, revealed []model.Event) {
	for _, ev := range revealed {
		dist, ok := ev.(*model.Disturbance)
		if !ok {
			continue
		}
		for _, f := range c.Federates() {
			for _, e := range f.Elements() {
				if !e.IsSpace() || e.Location == nil || e.Location.Sector != dist.Sector() || e.HasDefense() {
					continue
				}
				c.strike(ctx, f, e, dist)
			}
		}
	}
}

func (c *Context) strike(ctx context.Context, f *Federate, e *Element, dist *model.Disturbance) {
	stream := c.rollStream(f)
	modules := e.Modules()
	stream.Shuffle(len(modules), func(i, j int) { modules[i], modules[j] = modules[j], modules[i] })
	hits := 0
	for _, m := range modules {
		if hits >= dist.MaxHits {
			break
		}
		if stream.Float64() >= dist.HitChance {
			continue
		}
		e.RemoveModule(m)
		hits++
		c.recorder.RecordDisturbanceHit(f.name)
		c.log.Info(ctx, "module destroyed",
			logging.Turn(c.time),
			logging.String("federate", f.name),
			logging.String("element", e.Name),
			logging.String("module", m.Name),
			logging.String("disturbance", dist.Name()))
		c.Trigger("disturbance", map[string]any{
			"federate": f.name,
			"element":  e.Name,
			"module":   m.Name,
			"sector":   dist.Sector(),
		})
	}
}

// rollStream returns f's private stream. Federates unknown at Init get a
// stream drawn from the master stream on first use.
func (c *Context) rollStream(f *Federate) *rand.Rand {
	if s, ok := c.rollStreams[f]; ok {
		return s
	}
	s := rand.New(rand.NewSource(c.masterStream.Int63()))
	c.rollStreams[f] = s
	return s
}

func shuffleEvents(r *rand.Rand, events []model.Event) {
	r.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
}

// Propagate returns the location reached from loc after duration turns.
// Surface locations do not move.
func (c *Context) Propagate(loc *model.Location, duration int) *model.Location {
	if loc == nil || !loc.IsOrbit() {
		return loc
	}
	ring := c.rings[loc.Altitude]
	idx := -1
	for i, l := range ring {
		if l.Name == loc.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return loc
	}
	n := len(ring)
	next := (idx + duration*loc.Altitude.Rate()) % n
	if next < 0 {
		next += n
	}
	return ring[next]
}

// adjacent reports whether sectors a and b are equal or neighbours on the ring.
func (c *Context) adjacent(a, b int) bool {
	if a == b {
		return true
	}
	ia, ib := sort.SearchInts(c.sectors, a), sort.SearchInts(c.sectors, b)
	if ia >= len(c.sectors) || ib >= len(c.sectors) || c.sectors[ia] != a || c.sectors[ib] != b {
		return false
	}
	diff := ia - ib
	if diff < 0 {
		diff = -diff
	}
	return diff == 1 || diff == len(c.sectors)-1
}

// CouldTransportAt reports whether tx at txLoc could send over protocol to rx
// at rxLoc. It ignores throughput and storage state. Proprietary protocols
// only connect elements of the same federate.
func (c *Context) CouldTransportAt(protocol string, tx *Element, txLoc *model.Location, rx *Element, rxLoc *model.Location) bool {
	if tx == nil || rx == nil || tx == rx || txLoc == nil || rxLoc == nil {
		return false
	}
	if !tx.HasProtocol(protocol) || !rx.HasProtocol(protocol) {
		return false
	}
	switch {
	case IsSGLProtocol(protocol):
		if !tx.IsSpace() || !rx.IsGround() || txLoc.Sector != rxLoc.Sector {
			return false
		}
	case IsISLProtocol(protocol):
		if !tx.IsSpace() || !rx.IsSpace() || !c.adjacent(txLoc.Sector, rxLoc.Sector) {
			return false
		}
	default:
		return false
	}
	if IsProprietary(protocol) {
		owner := c.FederateOf(tx)
		if owner == nil || owner != c.FederateOf(rx) {
			return false
		}
	}
	return true
}

// FederateOf returns the owner of e, or nil.
func (c *Context) FederateOf(e *Element) *Federate {
	if e == nil {
		return nil
	}
	for _, f := range c.Federates() {
		if f.Controls(e) {
			return f
		}
	}
	return nil
}

// ElementOf returns the element holding d, or nil when d is lost.
func (c *Context) ElementOf(d *Data) *Element {
	if d == nil {
		return nil
	}
	for _, f := range c.Federates() {
		for _, e := range f.elements {
			if e.Contains(d) {
				return e
			}
		}
	}
	return nil
}

// LocationOfData returns the location of the element holding d, or nil.
func (c *Context) LocationOfData(d *Data) *model.Location {
	if e := c.ElementOf(d); e != nil {
		return e.Location
	}
	return nil
}

// IsCurrent reports whether ev is among the current events.
func (c *Context) IsCurrent(ev model.Event) bool {
	for _, cur := range c.currentEvents {
		if cur == ev {
			return true
		}
	}
	return false
}

func (c *Context) takeCurrent(ev model.Event) bool {
	for i, cur := range c.currentEvents {
		if cur == ev {
			c.currentEvents = append(c.currentEvents[:i:i], c.currentEvents[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Context) returnEvent(ev model.Event) {
	c.pastEvents = append(c.pastEvents, ev)
}

// CheckEventConservation verifies that the event pools together with the
// demands held under contract contain every catalog event exactly once.
func (c *Context) CheckEventConservation() error {
	counts := make(map[model.Event]int, len(c.events))
	for _, ev := range c.events {
		counts[ev]++
	}
	pools := [][]model.Event{c.currentEvents, c.futureEvents, c.pastEvents}
	for _, pool := range pools {
		for _, ev := range pool {
			counts[ev]--
		}
	}
	for _, f := range c.Federates() {
		for _, contract := range f.contracts {
			counts[contract.Demand]--
		}
	}
	for _, ev := range c.events {
		if n := counts[ev]; n != 0 {
			return fmt.Errorf("%w: %s off by %d", ErrEventsNotConserved, ev.Name(), -n)
		}
	}
	for ev, n := range counts {
		if n != 0 {
			return fmt.Errorf("%w: unknown event %s", ErrEventsNotConserved, ev.Name())
		}
	}
	return nil
}

func (c *Context) warn(msg string, fields ...logging.Field) {
	c.log.Warn(context.Background(), msg, append(fields, logging.Turn(c.time))...)
}
