package milp

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestKnapsack(t *testing.T) {
	p := NewProblem()
	values := []float64{10, 13, 7, 8}
	weights := []float64{3, 4, 2, 3}
	vars := make([]Var, len(values))
	terms := make([]Term, len(values))
	for i := range values {
		vars[i] = p.AddBinary("x", values[i])
		terms[i] = T(vars[i], weights[i])
	}
	p.AddConstraint("weight", terms, LessEq, 7)

	sol, err := p.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	// Best is items 1+2 (13+7=20, weight 6) or 0+1 (23, weight 7).
	if math.Abs(sol.Objective-23) > 1e-6 {
		t.Fatalf("objective = %v, want 23", sol.Objective)
	}
	if !sol.IsSet(vars[0]) || !sol.IsSet(vars[1]) || sol.IsSet(vars[2]) || sol.IsSet(vars[3]) {
		t.Fatalf("values = %v", sol.Values)
	}
	if !sol.Optimal || !p.Feasible(sol.Values, 1e-6) {
		t.Fatalf("solution not optimal/feasible: %+v", sol)
	}
}

func TestFlowWithNegativeRightHandSide(t *testing.T) {
	// An item held initially must leave either by resolution or storage:
	// store - 0 = ... expressed as -hold - resolve + 1 = 0.
	p := NewProblem()
	store := p.AddBinary("store", -5)
	resolve := p.AddBinary("resolve", 100)
	p.AddConstraint("flow", []Term{T(store, -1), T(resolve, -1)}, Equal, -1)

	sol, err := p.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.IsSet(resolve) || sol.IsSet(store) {
		t.Fatalf("values = %v, want resolve only", sol.Values)
	}
}

func TestGreaterEqualRow(t *testing.T) {
	p := NewProblem()
	a := p.AddBinary("a", -3)
	b := p.AddBinary("b", -2)
	p.AddConstraint("cover", []Term{T(a, 1), T(b, 1)}, GreaterEq, 1)
	sol, err := p.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.IsSet(a) || !sol.IsSet(b) || math.Abs(sol.Objective+2) > 1e-6 {
		t.Fatalf("solution = %+v", sol)
	}
}

func TestInfeasible(t *testing.T) {
	p := NewProblem()
	a := p.AddBinary("a", 1)
	p.AddConstraint("low", []Term{T(a, 1)}, GreaterEq, 2)
	if _, err := p.Solve(context.Background()); !errors.Is(err, ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}

	q := NewProblem()
	b := q.AddBinary("b", 1)
	q.AddConstraint("contradiction", []Term{T(b, 0)}, GreaterEq, 1)
	if _, err := q.Solve(context.Background()); !errors.Is(err, ErrInfeasible) {
		t.Fatalf("empty row err = %v, want ErrInfeasible", err)
	}
}

func TestUnconstrainedVariables(t *testing.T) {
	p := NewProblem()
	loss := p.AddContinuous("loss", -1, math.Inf(1))
	gain := p.AddBinary("gain", 4)
	sol, err := p.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Value(loss) != 0 || !sol.IsSet(gain) {
		t.Fatalf("values = %v", sol.Values)
	}

	q := NewProblem()
	q.AddContinuous("runaway", 1, math.Inf(1))
	if _, err := q.Solve(context.Background()); !errors.Is(err, ErrUnbounded) {
		t.Fatalf("err = %v, want ErrUnbounded", err)
	}
}

func TestCancelledContext(t *testing.T) {
	p := NewProblem()
	p.AddBinary("a", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Solve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNodeLimitReturnsIncumbent(t *testing.T) {
	p := NewProblem()
	var terms []Term
	for i := 0; i < 12; i++ {
		v := p.AddBinary("x", float64(10+i%3))
		terms = append(terms, T(v, float64(2+i%4)))
	}
	p.AddConstraint("weight", terms, LessEq, 11.5)
	sol, err := p.Solve(context.Background(), WithMaxNodes(3))
	if err != nil && !errors.Is(err, ErrNodeLimit) {
		t.Fatalf("err = %v", err)
	}
	if sol != nil && !p.Feasible(sol.Values, 1e-6) {
		t.Fatalf("incumbent infeasible: %v", sol.Values)
	}
}

func TestAddConstraintMergesTerms(t *testing.T) {
	p := NewProblem()
	a := p.AddBinary("a", 1)
	p.AddConstraint("dup", []Term{T(a, 1), T(a, 1)}, LessEq, 1)
	sol, err := p.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.IsSet(a) {
		t.Fatalf("2a <= 1 admitted a = 1")
	}
}
