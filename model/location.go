package model

import (
	"fmt"
	"strconv"
	"strings"
)

// LocationKind distinguishes surface sites from orbital slots.
type LocationKind int

const (
	Surface LocationKind = iota
	Orbit
)

func (k LocationKind) String() string {
	if k == Orbit {
		return "orbit"
	}
	return "surface"
}

// Altitude is the orbital shell of an Orbit location. Surface locations use AltitudeNone.
type Altitude string

const (
	AltitudeNone Altitude = ""
	LEO          Altitude = "LEO"
	MEO          Altitude = "MEO"
	GEO          Altitude = "GEO"
)

// Rate returns the number of sectors an orbit at this altitude advances per turn.
func (a Altitude) Rate() int {
	switch a {
	case LEO:
		return 2
	case MEO:
		return 1
	default:
		return 0
	}
}

// SurfacePrefix is the name prefix used for surface locations (SUR1, SUR2, ...).
const SurfacePrefix = "SUR"

// Location is an immutable position on the sector ring.
type Location struct {
	Name     string
	Sector   int
	Kind     LocationKind
	Altitude Altitude
}

// NewSurface returns the surface location for sector.
func NewSurface(sector int) *Location {
	return &Location{
		Name:   fmt.Sprintf("%s%d", SurfacePrefix, sector),
		Sector: sector,
		Kind:   Surface,
	}
}

// NewOrbit returns the orbital location for sector at the given altitude.
func NewOrbit(sector int, altitude Altitude) *Location {
	return &Location{
		Name:     fmt.Sprintf("%s%d", altitude, sector),
		Sector:   sector,
		Kind:     Orbit,
		Altitude: altitude,
	}
}

func (l *Location) IsSurface() bool { return l != nil && l.Kind == Surface }
func (l *Location) IsOrbit() bool   { return l != nil && l.Kind == Orbit }

// Class returns the altitude for orbits and SurfacePrefix for surface sites.
// Element cost tables are keyed by class.
func (l *Location) Class() string {
	if l == nil {
		return ""
	}
	if l.Kind == Surface {
		return SurfacePrefix
	}
	return string(l.Altitude)
}

func (l *Location) String() string {
	if l == nil {
		return "<nil>"
	}
	return l.Name
}

// ParseLocationName splits a location name such as "MEO3" or "SUR4" into its
// kind, altitude and sector.
func ParseLocationName(name string) (LocationKind, Altitude, int, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, prefix := range []string{SurfacePrefix, string(LEO), string(MEO), string(GEO)} {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		sector, err := strconv.Atoi(name[len(prefix):])
		if err != nil {
			return 0, "", 0, fmt.Errorf("location %q: invalid sector: %w", name, err)
		}
		if prefix == SurfacePrefix {
			return Surface, AltitudeNone, sector, nil
		}
		return Orbit, Altitude(prefix), sector, nil
	}
	return 0, "", 0, fmt.Errorf("location %q: unknown kind", name)
}

// StandardLocations builds the surface, LEO, MEO and GEO locations for sectors
// 1..numSectors.
func StandardLocations(numSectors int) []*Location {
	out := make([]*Location, 0, 4*numSectors)
	for s := 1; s <= numSectors; s++ {
		out = append(out, NewSurface(s))
	}
	for _, alt := range []Altitude{LEO, MEO, GEO} {
		for s := 1; s <= numSectors; s++ {
			out = append(out, NewOrbit(s, alt))
		}
	}
	return out
}
