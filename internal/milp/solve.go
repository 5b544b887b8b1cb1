package milp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

var (
	ErrInfeasible = errors.New("milp: problem is infeasible")
	ErrUnbounded  = errors.New("milp: problem is unbounded")
	ErrNodeLimit  = errors.New("milp: node limit reached without a feasible solution")
)

const (
	defaultMaxNodes       = 2000
	defaultTolerance      = 1e-9
	defaultIntegralityTol = 1e-6
)

type options struct {
	maxNodes       int
	tolerance      float64
	integralityTol float64
}

// Option configures Solve.
type Option func(*options)

// WithMaxNodes bounds the number of relaxations solved.
func WithMaxNodes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxNodes = n
		}
	}
}

// WithTolerance sets the simplex tolerance.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		if tol > 0 {
			o.tolerance = tol
		}
	}
}

// fixing marks each variable free (-1) or fixed to 0 or 1.
type fixing []int8

const free = -1

type node struct {
	fix fixing
}

// Solve maximises the problem. Binary variables are branched on depth-first,
// most fractional first, exploring the one-branch before the zero-branch.
// When the node limit is reached the incumbent is returned with Optimal
// unset; without an incumbent ErrNodeLimit is returned. Cancellation of ctx
// is checked before every node.
func (p *Problem) Solve(ctx context.Context, opts ...Option) (*Solution, error) {
	o := options{
		maxNodes:       defaultMaxNodes,
		tolerance:      defaultTolerance,
		integralityTol: defaultIntegralityTol,
	}
	for _, opt := range opts {
		opt(&o)
	}

	root := make(fixing, len(p.vars))
	for i := range root {
		root[i] = free
	}
	stack := []node{{fix: root}}

	var (
		best      []float64
		bestObj   = math.Inf(-1)
		nodes     int
		rootError error
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("milp: solve interrupted: %w", err)
		}
		if nodes >= o.maxNodes {
			if best == nil {
				return nil, ErrNodeLimit
			}
			return &Solution{Objective: bestObj, Values: best, Nodes: nodes}, nil
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		obj, x, err := p.relax(n.fix, o.tolerance)
		if err != nil {
			if nodes == 1 && !errors.Is(err, ErrInfeasible) {
				rootError = err
				break
			}
			continue
		}
		if obj <= bestObj+o.integralityTol {
			continue
		}

		branch, worst := -1, o.integralityTol
		for i, v := range p.vars {
			if v.kind != Binary || n.fix[i] != free {
				continue
			}
			frac := math.Abs(x[i] - math.Round(x[i]))
			if frac > worst {
				branch, worst = i, frac
			}
		}
		if branch < 0 {
			for i, v := range p.vars {
				if v.kind == Binary {
					x[i] = math.Round(x[i])
				}
			}
			best, bestObj = x, p.Evaluate(x)
			continue
		}

		zero := append(fixing(nil), n.fix...)
		zero[branch] = 0
		one := append(fixing(nil), n.fix...)
		one[branch] = 1
		stack = append(stack, node{fix: zero}, node{fix: one})
	}
	if rootError != nil {
		return nil, rootError
	}
	if best == nil {
		return nil, ErrInfeasible
	}
	return &Solution{Objective: bestObj, Values: best, Nodes: nodes, Optimal: true}, nil
}

// relax solves the LP relaxation with the fixed variables substituted out.
// It returns the objective including fixed contributions and a full-length
// assignment.
func (p *Problem) relax(fix fixing, tol float64) (float64, []float64, error) {
	x := make([]float64, len(p.vars))
	var fixedObj float64
	for i, f := range fix {
		if f != free {
			x[i] = float64(f)
			fixedObj += p.vars[i].obj * x[i]
		}
	}

	// Standard-form rows: coefficients over free variables plus one slack
	// per row. Equalities become a pair of inequalities so that the slack
	// columns keep the matrix at full row rank.
	type stdRow struct {
		terms []Term
		slack float64 // +1 for <=, -1 for >=
		rhs   float64
	}
	var rows []stdRow
	used := make([]bool, len(p.vars))

	addRow := func(terms []Term, sense Sense, rhs float64, name string) error {
		if len(terms) == 0 {
			if !satisfied(0, sense, rhs, tol) {
				return fmt.Errorf("%w: row %s", ErrInfeasible, name)
			}
			return nil
		}
		for _, t := range terms {
			used[t.Var] = true
		}
		switch sense {
		case LessEq:
			rows = append(rows, stdRow{terms: terms, slack: 1, rhs: rhs})
		case GreaterEq:
			rows = append(rows, stdRow{terms: terms, slack: -1, rhs: rhs})
		default:
			rows = append(rows,
				stdRow{terms: terms, slack: 1, rhs: rhs},
				stdRow{terms: terms, slack: -1, rhs: rhs})
		}
		return nil
	}

	for _, r := range p.rows {
		rhs := r.rhs
		var terms []Term
		for _, t := range r.terms {
			if fix[t.Var] != free {
				rhs -= t.Coef * x[t.Var]
				continue
			}
			terms = append(terms, t)
		}
		if err := addRow(terms, r.sense, rhs, r.name); err != nil {
			return 0, nil, err
		}
	}
	for i, v := range p.vars {
		if fix[i] == free && !math.IsInf(v.upper, 1) {
			if err := addRow([]Term{{Var: Var(i), Coef: 1}}, LessEq, v.upper, v.name+".ub"); err != nil {
				return 0, nil, err
			}
		}
	}

	// Free variables untouched by any row sit at zero unless they improve
	// the objective without bound.
	col := make([]int, len(p.vars))
	var cols []int
	for i := range p.vars {
		col[i] = -1
		if fix[i] != free {
			continue
		}
		if !used[i] {
			if p.vars[i].obj > 0 {
				return 0, nil, fmt.Errorf("%w: variable %s", ErrUnbounded, p.vars[i].name)
			}
			continue
		}
		col[i] = len(cols)
		cols = append(cols, i)
	}
	if len(rows) == 0 {
		return fixedObj, x, nil
	}

	m, n := len(rows), len(cols)+len(rows)
	A := mat.NewDense(m, n, nil)
	b := make([]float64, m)
	c := make([]float64, n)
	for j, v := range cols {
		c[j] = -p.vars[v].obj
	}
	for i, r := range rows {
		// a·x + s = rhs for <= rows, a·x - s = rhs for >= rows, negated
		// when rhs is negative.
		mult := 1.0
		if r.rhs < 0 {
			mult = -1
		}
		for _, t := range r.terms {
			j := col[t.Var]
			A.Set(i, j, A.At(i, j)+mult*t.Coef)
		}
		A.Set(i, len(cols)+i, mult*r.slack)
		b[i] = mult * r.rhs
	}

	// The slack columns are a feasible starting basis when every slack
	// takes a non-negative value at x = 0; otherwise simplex runs its own
	// phase one.
	basis := make([]int, m)
	for i, r := range rows {
		basis[i] = len(cols) + i
		if r.rhs*r.slack < 0 {
			basis = nil
			break
		}
	}

	opt, sol, err := lp.Simplex(c, A, b, tol, basis)
	if err != nil {
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return 0, nil, ErrInfeasible
		case errors.Is(err, lp.ErrUnbounded):
			return 0, nil, ErrUnbounded
		default:
			return 0, nil, fmt.Errorf("milp: simplex: %w", err)
		}
	}
	for j, v := range cols {
		val := sol[j]
		if val < 0 {
			val = 0
		}
		x[v] = val
	}
	return fixedObj - opt, x, nil
}
