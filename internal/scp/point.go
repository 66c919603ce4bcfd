package scp

import (
	"log/slog"

	"aoratos/internal/lp"
	"aoratos/internal/simple"
)

const improveIterations = 50

// Point is one local search: a policy/value/witness triple, its trust
// region, and the remaining iteration budget.
type Point struct {
	Transform *simple.Transform
	Spec      *simple.Specification
	Params    Parameters
	Vars      *Variables

	env            *lp.Env
	objective      float64
	iterationsLeft int
}

// NewPoint initialises the uniform starting policy, evaluates it against
// the oracle and recovers the interval witnesses that seed the first
// linearisation.
func NewPoint(env *lp.Env, t *simple.Transform, spec *simple.Specification, params Parameters) (*Point, error) {
	sp := t.Simple

	policy := make([]float64, 2*sp.NumStates())
	for _, s := range sp.UncertainStates {
		policy[2*s] = 1
	}
	for _, s := range sp.ActionStates {
		policy[2*s] = 0.5
		policy[2*s+1] = 0.5
	}

	main := evaluatePolicy(sp, spec, policy)
	witnesses, err := computeWitnesses(env, sp, spec, main)
	if err != nil {
		return nil, err
	}

	return &Point{
		Transform:      t,
		Spec:           spec,
		Params:         params,
		Vars:           &Variables{Policy: policy, Main: main, IntervalWitness: witnesses},
		env:            env,
		objective:      spec.WorstValue(),
		iterationsLeft: improveIterations,
	}, nil
}

// Improve runs one SCP step. It reports false once the trust region has
// collapsed, the budget is spent, or the step failed; a failed step abandons
// the point without being fatal to the search.
func (p *Point) Improve() bool {
	if p.Params.TrustRegion <= p.Params.RegionThreshold || p.iterationsLeft == 0 {
		return false
	}
	p.iterationsLeft--

	next, err := solveStep(p.env, p.Transform.Simple, p.Spec, p.Vars, p.Params)
	if err != nil {
		p.env.Logger().Warn("abandoning solution point", slog.Any("error", err))
		return false
	}

	sign := p.Spec.ObjectiveSign()
	nextObjective := next.Main[p.Transform.Simple.Initial]
	if sign*nextObjective < sign*p.objective {
		p.objective = nextObjective
		p.Vars = next
		p.Params.TrustRegion *= p.Params.RegionChangeFactor
	} else {
		p.Params.TrustRegion /= p.Params.RegionChangeFactor
	}
	return true
}

// Converge drives the point until Improve reports done.
func (p *Point) Converge() {
	for p.Improve() {
	}
}

// Objective is the best accepted value at the initial state, or the worst
// sentinel before any acceptance.
func (p *Point) Objective() float64 {
	return p.objective
}

// Value is the oracle value of the current variables at the initial state.
func (p *Point) Value() float64 {
	return p.Vars.Main[p.Transform.Simple.Initial]
}
