package lp

import (
	"errors"
	"math"
	"testing"
)

func TestOptimizeMaximizeWithBudget(t *testing.T) {
	env := NewEnv(nil)
	m := env.NewModel()
	x := m.AddVar(0, 1, "x")
	y := m.AddVar(0, 1, "y")

	var budget LinExpr
	budget.AddTerm(1, x)
	budget.AddTerm(1, y)
	m.AddConstr(budget, LessEq, 1.5, "budget")

	var obj LinExpr
	obj.AddTerm(2, x)
	obj.AddTerm(1, y)
	m.SetObjective(obj, Maximize)

	sol, err := m.Optimize()
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if math.Abs(sol.Objective-2.5) > 1e-9 {
		t.Fatalf("objective = %g, want 2.5", sol.Objective)
	}
	if math.Abs(sol.Value(x)-1) > 1e-9 || math.Abs(sol.Value(y)-0.5) > 1e-9 {
		t.Fatalf("solution = (%g, %g), want (1, 0.5)", sol.Value(x), sol.Value(y))
	}
}

func TestOptimizeMinimizeWithEquality(t *testing.T) {
	env := NewEnv(nil)
	m := env.NewModel()
	x := m.AddVar(0, 0.75, "x")
	y := m.AddVar(0, 1, "y")

	var dist LinExpr
	dist.AddTerm(1, x)
	dist.AddTerm(1, y)
	m.AddConstr(dist, Equal, 1, "distribution")

	var obj LinExpr
	obj.AddTerm(1, x)
	obj.AddTerm(2, y)
	m.SetObjective(obj, Minimize)

	sol, err := m.Optimize()
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if math.Abs(sol.Objective-1.25) > 1e-9 {
		t.Fatalf("objective = %g, want 1.25", sol.Objective)
	}
	if math.Abs(sol.Value(x)-0.75) > 1e-9 {
		t.Fatalf("x = %g, want 0.75", sol.Value(x))
	}
}

func TestOptimizeNegativeLowerBounds(t *testing.T) {
	env := NewEnv(nil)
	m := env.NewModel()
	x := m.AddVar(-2, 2, "x")

	var floor LinExpr
	floor.AddTerm(1, x)
	m.AddConstr(floor, GreaterEq, -1, "floor")

	var obj LinExpr
	obj.AddTerm(1, x)
	m.SetObjective(obj, Minimize)

	sol, err := m.Optimize()
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if math.Abs(sol.Value(x)+1) > 1e-9 {
		t.Fatalf("x = %g, want -1", sol.Value(x))
	}
}

func TestOptimizeFeasibilityOnly(t *testing.T) {
	env := NewEnv(nil)
	m := env.NewModel()
	a := m.AddVar(0.3, 0.7, "a")
	b := m.AddVar(0.3, 0.7, "b")

	var dist LinExpr
	dist.AddTerm(1, a)
	dist.AddTerm(1, b)
	m.AddConstr(dist, Equal, 1, "distribution")

	sol, err := m.Optimize()
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	sum := sol.Value(a) + sol.Value(b)
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("sum = %g, want 1", sum)
	}
	for _, v := range []float64{sol.Value(a), sol.Value(b)} {
		if v < 0.3-1e-9 || v > 0.7+1e-9 {
			t.Fatalf("value %g escapes its bounds", v)
		}
	}
}

func TestOptimizeInfeasible(t *testing.T) {
	env := NewEnv(nil)
	m := env.NewModel()
	x := m.AddVar(0, 1, "x")

	var impossible LinExpr
	impossible.AddTerm(1, x)
	m.AddConstr(impossible, GreaterEq, 2, "impossible")

	if _, err := m.Optimize(); !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
}

func TestOptimizeRejectsEmptyModel(t *testing.T) {
	env := NewEnv(nil)
	if _, err := env.NewModel().Optimize(); err == nil {
		t.Fatal("expected error for model without variables")
	}
}

func TestRepeatedTermsAreMerged(t *testing.T) {
	env := NewEnv(nil)
	m := env.NewModel()
	x := m.AddVar(0, 4, "x")

	var twice LinExpr
	twice.AddTerm(1, x)
	twice.AddTerm(1, x)
	m.AddConstr(twice, Equal, 4, "twice")

	sol, err := m.Optimize()
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if math.Abs(sol.Value(x)-2) > 1e-9 {
		t.Fatalf("x = %g, want 2", sol.Value(x))
	}
}
