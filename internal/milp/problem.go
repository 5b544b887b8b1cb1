// Package milp models small binary/linear programs and solves them by
// depth-first branch and bound over LP relaxations.
package milp

import (
	"fmt"
	"math"
)

// Sense is the comparison of a constraint row.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return "<="
	}
}

// Kind is the domain of a variable. Every variable is non-negative.
type Kind int

const (
	Continuous Kind = iota
	Binary
)

// Var identifies a variable of a Problem.
type Var int

// Term is a coefficient applied to a variable in a constraint.
type Term struct {
	Var  Var
	Coef float64
}

// T is shorthand for a Term.
func T(v Var, coef float64) Term { return Term{Var: v, Coef: coef} }

type variable struct {
	name  string
	kind  Kind
	upper float64
	obj   float64
}

type constraint struct {
	name  string
	terms []Term
	sense Sense
	rhs   float64
}

// Problem is a maximisation over non-negative variables subject to linear rows.
type Problem struct {
	vars []variable
	rows []constraint
}

// NewProblem returns an empty problem.
func NewProblem() *Problem { return &Problem{} }

// AddBinary adds a 0/1 variable with objective coefficient obj.
func (p *Problem) AddBinary(name string, obj float64) Var {
	p.vars = append(p.vars, variable{name: name, kind: Binary, upper: 1, obj: obj})
	return Var(len(p.vars) - 1)
}

// AddContinuous adds a variable in [0, upper]. Use math.Inf(1) for no bound.
func (p *Problem) AddContinuous(name string, obj, upper float64) Var {
	p.vars = append(p.vars, variable{name: name, kind: Continuous, upper: upper, obj: obj})
	return Var(len(p.vars) - 1)
}

// AddObjective adds c to the objective coefficient of v.
func (p *Problem) AddObjective(v Var, c float64) { p.vars[v].obj += c }

// Objective returns the objective coefficient of v.
func (p *Problem) Objective(v Var) float64 { return p.vars[v].obj }

// Name returns the name v was created with.
func (p *Problem) Name(v Var) string { return p.vars[v].name }

// AddConstraint adds the row Σ terms <sense> rhs. Terms on the same
// variable are summed and zero coefficients dropped.
func (p *Problem) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	merged := make([]Term, 0, len(terms))
	index := make(map[Var]int, len(terms))
	for _, t := range terms {
		if int(t.Var) < 0 || int(t.Var) >= len(p.vars) {
			panic(fmt.Sprintf("milp: constraint %s references unknown variable %d", name, t.Var))
		}
		if i, ok := index[t.Var]; ok {
			merged[i].Coef += t.Coef
			continue
		}
		index[t.Var] = len(merged)
		merged = append(merged, t)
	}
	out := merged[:0]
	for _, t := range merged {
		if t.Coef != 0 {
			out = append(out, t)
		}
	}
	p.rows = append(p.rows, constraint{name: name, terms: out, sense: sense, rhs: rhs})
}

func (p *Problem) NumVars() int        { return len(p.vars) }
func (p *Problem) NumConstraints() int { return len(p.rows) }

// Evaluate returns the objective value of x.
func (p *Problem) Evaluate(x []float64) float64 {
	var total float64
	for i, v := range p.vars {
		total += v.obj * x[i]
	}
	return total
}

// Feasible reports whether x satisfies every row and bound within tol.
func (p *Problem) Feasible(x []float64, tol float64) bool {
	for i, v := range p.vars {
		if x[i] < -tol || x[i] > v.upper+tol {
			return false
		}
		if v.kind == Binary && math.Abs(x[i]-math.Round(x[i])) > tol {
			return false
		}
	}
	for _, r := range p.rows {
		var lhs float64
		for _, t := range r.terms {
			lhs += t.Coef * x[t.Var]
		}
		if !satisfied(lhs, r.sense, r.rhs, tol) {
			return false
		}
	}
	return true
}

func satisfied(lhs float64, sense Sense, rhs, tol float64) bool {
	switch sense {
	case LessEq:
		return lhs <= rhs+tol
	case GreaterEq:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}

// Solution is the best assignment found.
type Solution struct {
	Objective float64
	Values    []float64
	Nodes     int
	// Optimal is false when the search stopped at the node limit.
	Optimal bool
}

// Value returns the value of v.
func (s *Solution) Value(v Var) float64 { return s.Values[v] }

// IsSet reports whether binary v is one.
func (s *Solution) IsSet(v Var) bool { return s.Values[v] > 0.5 }
