package operations

import (
	"regexp"
	"strconv"

	"github.com/signalsfoundry/orbital-federates/core"
)

const (
	number     = `\d+(?:\.\d+)?`
	num        = `(` + number + `)`
	penaltyArg = `(a|` + number + `)`
)

// Patterns are matched in order; more specific forms come first.
var (
	dynamicFull    = regexp.MustCompile(`^d(\d+),` + penaltyArg + `,` + num + `$`)
	dynamicHorizon = regexp.MustCompile(`^d(\d+)$`)
	dynamicBare    = regexp.MustCompile(`^d$`)

	fixedFull      = regexp.MustCompile(`^x` + num + `,` + num + `,(\d+),` + penaltyArg + `,` + num + `$`)
	fixedPrices    = regexp.MustCompile(`^x` + num + `,` + num + `,(\d+)$`)
	fixedPenalties = regexp.MustCompile(`^x(\d+),` + penaltyArg + `,` + num + `$`)
	fixedHorizon   = regexp.MustCompile(`^x(\d+)$`)
	fixedBare      = regexp.MustCompile(`^x$`)
)

// Parse selects an operations model from its compact form:
//
//	d | dH | dH,S,I                      Dynamic
//	x | xH | xH,S,I | xG,I,H | xG,I,H,S,I FixedCost
//
// S may be "a" for the computed storage penalty. Three all-numeric fields
// with an integer third field read as xG,I,H; otherwise xH,S,I. Forms must
// match whole, so trailing text selects core.NoOperations like any other
// unrecognized form.
func Parse(spec string, opts ...Option) core.Operations {
	if m := dynamicFull.FindStringSubmatch(spec); m != nil {
		return NewDynamic(atoi(m[1]), penalty(m[2]), atof(m[3]), opts...)
	}
	if m := dynamicHorizon.FindStringSubmatch(spec); m != nil {
		return NewDynamic(atoi(m[1]), DefaultStoragePenalty, DefaultISLPenalty, opts...)
	}
	if dynamicBare.MatchString(spec) {
		return NewDynamic(DefaultHorizon, DefaultStoragePenalty, DefaultISLPenalty, opts...)
	}
	if m := fixedFull.FindStringSubmatch(spec); m != nil {
		return NewFixedCost(atof(m[1]), atof(m[2]), atoi(m[3]), penalty(m[4]), atof(m[5]), opts...)
	}
	if m := fixedPrices.FindStringSubmatch(spec); m != nil {
		return NewFixedCost(atof(m[1]), atof(m[2]), atoi(m[3]), DefaultStoragePenalty, DefaultISLPenalty, opts...)
	}
	if m := fixedPenalties.FindStringSubmatch(spec); m != nil {
		return NewFixedCost(DefaultCostSGL, DefaultCostISL, atoi(m[1]), penalty(m[2]), atof(m[3]), opts...)
	}
	if m := fixedHorizon.FindStringSubmatch(spec); m != nil {
		return NewFixedCost(DefaultCostSGL, DefaultCostISL, atoi(m[1]), DefaultStoragePenalty, DefaultISLPenalty, opts...)
	}
	if fixedBare.MatchString(spec) {
		return NewFixedCost(DefaultCostSGL, DefaultCostISL, DefaultHorizon, DefaultStoragePenalty, DefaultISLPenalty, opts...)
	}
	return core.NoOperations{}
}

func penalty(s string) float64 {
	if s == "a" {
		return AutoStoragePenalty
	}
	return atof(s)
}

// The patterns only admit digits, so conversion cannot fail.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
