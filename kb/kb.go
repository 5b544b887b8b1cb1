package kb

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/orbital-federates/core"
	"github.com/signalsfoundry/orbital-federates/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrUnknownElementType = errors.New("unknown element type")
	ErrUnknownModuleType  = errors.New("unknown module type")
	ErrModuleDoesNotFit   = errors.New("module exceeds element capacity")
	ErrInvalidCatalog     = errors.New("invalid catalog")
)

// ElementType is a catalog row describing a satellite or ground station.
type ElementType struct {
	Type         string             `yaml:"type"`
	Kind         string             `yaml:"kind"`
	Capacity     float64            `yaml:"capacity"`
	Cost         float64            `yaml:"cost"`
	Commission   map[string]float64 `yaml:"commission"`
	Decommission map[string]float64 `yaml:"decommission"`
	Salvage      map[string]float64 `yaml:"salvage"`
}

// ModuleType is a catalog row describing a module.
type ModuleType struct {
	Type           string  `yaml:"type"`
	Kind           string  `yaml:"kind"`
	Cost           float64 `yaml:"cost"`
	Size           float64 `yaml:"size"`
	Capacity       float64 `yaml:"capacity"`
	Phenomenon     string  `yaml:"phenomenon"`
	MaxSensed      float64 `yaml:"max_sensed"`
	Protocol       string  `yaml:"protocol"`
	MaxTransmitted float64 `yaml:"max_transmitted"`
	MaxReceived    float64 `yaml:"max_received"`
}

// EventType is a catalog row expanded into Count identical events.
type EventType struct {
	Type       string             `yaml:"type"`
	Kind       string             `yaml:"kind"`
	Count      int                `yaml:"count"`
	Phenomenon string             `yaml:"phenomenon"`
	Size       float64            `yaml:"size"`
	Schedule   []model.Breakpoint `yaml:"schedule"`
	Default    float64            `yaml:"default"`
	HitChance  float64            `yaml:"hit_chance"`
	MaxHits    int                `yaml:"max_hits"`
}

type catalogFile struct {
	Elements []ElementType `yaml:"elements"`
	Modules  []ModuleType  `yaml:"modules"`
	Events   []EventType   `yaml:"events"`
}

// KnowledgeBase holds the catalog tables used to construct entities. It is
// safe for concurrent use once loaded.
type KnowledgeBase struct {
	mu sync.RWMutex

	elements map[string]ElementType
	modules  map[string]ModuleType
	events   []EventType
}

// Default loads the embedded catalog.
func Default() (*KnowledgeBase, error) {
	return Load(defaultCatalog)
}

// Load parses a YAML catalog.
func Load(raw []byte) (*KnowledgeBase, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	kb := &KnowledgeBase{
		elements: make(map[string]ElementType, len(file.Elements)),
		modules:  make(map[string]ModuleType, len(file.Modules)),
	}
	for _, et := range file.Elements {
		if _, err := elementKind(et.Kind); err != nil {
			return nil, err
		}
		if _, exists := kb.elements[et.Type]; exists {
			return nil, fmt.Errorf("%w: duplicate element type %q", ErrInvalidCatalog, et.Type)
		}
		kb.elements[et.Type] = et
	}
	for _, mt := range file.Modules {
		if _, err := moduleKind(mt.Kind); err != nil {
			return nil, err
		}
		if _, exists := kb.modules[mt.Type]; exists {
			return nil, fmt.Errorf("%w: duplicate module type %q", ErrInvalidCatalog, mt.Type)
		}
		kb.modules[mt.Type] = mt
	}
	for _, ev := range file.Events {
		if ev.Kind != "demand" && ev.Kind != "disturbance" {
			return nil, fmt.Errorf("%w: event type %q has kind %q", ErrInvalidCatalog, ev.Type, ev.Kind)
		}
		if ev.Count < 0 {
			return nil, fmt.Errorf("%w: event type %q has negative count", ErrInvalidCatalog, ev.Type)
		}
	}
	kb.events = file.Events
	return kb, nil
}

func elementKind(kind string) (core.ElementKind, error) {
	switch kind {
	case "satellite":
		return core.Satellite, nil
	case "ground":
		return core.GroundStation, nil
	}
	return 0, fmt.Errorf("%w: element kind %q", ErrInvalidCatalog, kind)
}

func moduleKind(kind string) (core.ModuleKind, error) {
	switch kind {
	case "storage":
		return core.ModuleStorage, nil
	case "sensor":
		return core.ModuleSensor, nil
	case "link":
		return core.ModuleLink, nil
	case "defense":
		return core.ModuleDefense, nil
	}
	return 0, fmt.Errorf("%w: module kind %q", ErrInvalidCatalog, kind)
}

// ElementType returns the catalog row for typ.
func (kb *KnowledgeBase) ElementType(typ string) (ElementType, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	et, ok := kb.elements[typ]
	return et, ok
}

// ModuleType returns the catalog row for typ.
func (kb *KnowledgeBase) ModuleType(typ string) (ModuleType, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	mt, ok := kb.modules[typ]
	return mt, ok
}

// NewModule builds a module instance of type typ.
func (kb *KnowledgeBase) NewModule(typ, name string) (*core.Module, error) {
	mt, ok := kb.ModuleType(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModuleType, typ)
	}
	kind, err := moduleKind(mt.Kind)
	if err != nil {
		return nil, err
	}
	return core.NewModule(name, core.ModuleSpec{
		Type:           mt.Type,
		Kind:           kind,
		Cost:           mt.Cost,
		Size:           mt.Size,
		Capacity:       mt.Capacity,
		Phenomenon:     mt.Phenomenon,
		MaxSensed:      mt.MaxSensed,
		Protocol:       mt.Protocol,
		MaxTransmitted: mt.MaxTransmitted,
		MaxReceived:    mt.MaxReceived,
	}), nil
}

// NewElement builds an uncommissioned element of type typ carrying the
// given module types in order.
func (kb *KnowledgeBase) NewElement(typ, name string, moduleTypes ...string) (*core.Element, error) {
	et, ok := kb.ElementType(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownElementType, typ)
	}
	kind, err := elementKind(et.Kind)
	if err != nil {
		return nil, err
	}
	e := core.NewElement(name, et.Type, kind, et.Capacity, core.ElementCosts{
		Design:       et.Cost,
		Commission:   copyCosts(et.Commission),
		Decommission: copyCosts(et.Decommission),
		Salvage:      copyCosts(et.Salvage),
	})
	for i, mt := range moduleTypes {
		m, err := kb.NewModule(mt, fmt.Sprintf("%s.%s%d", name, mt, i+1))
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", name, err)
		}
		if !e.AddModule(m) {
			return nil, fmt.Errorf("element %s: %w: %s", name, ErrModuleDoesNotFit, mt)
		}
	}
	return e, nil
}

func copyCosts(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Events builds a fresh event catalog. Events are named <type>.<n> and
// ordered by catalog row.
func (kb *KnowledgeBase) Events() []model.Event {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var out []model.Event
	for _, et := range kb.events {
		for i := 1; i <= et.Count; i++ {
			name := fmt.Sprintf("%s.%d", et.Type, i)
			if et.Kind == "disturbance" {
				out = append(out, model.NewDisturbance(name, et.HitChance, et.MaxHits))
				continue
			}
			out = append(out, model.NewDemand(name, et.Phenomenon, et.Size,
				model.NewValueSchedule(et.Schedule...), et.Default))
		}
	}
	return out
}

// EventTypes returns the event rows in catalog order.
func (kb *KnowledgeBase) EventTypes() []EventType {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]EventType(nil), kb.events...)
}
