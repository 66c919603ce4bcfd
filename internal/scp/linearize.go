package scp

import (
	"fmt"

	"aoratos/internal/lp"
	"aoratos/internal/simple"
)

// Parameters controls the trust-region iteration.
type Parameters struct {
	PenaltyWeight      float64
	TrustRegion        float64
	RegionChangeFactor float64
	RegionThreshold    float64
}

// DefaultParameters returns the standard trust-region schedule.
func DefaultParameters() Parameters {
	return Parameters{
		PenaltyWeight:      1e4,
		TrustRegion:        1.5,
		RegionChangeFactor: 1.5,
		RegionThreshold:    1e-4,
	}
}

const (
	// graphEpsilon keeps both branches of an action state alive so the
	// support graph of the induced chain never degenerates.
	graphEpsilon = 1e-9

	penaltyBound = 1e9
	rewardBound  = 1e6
)

// stepLP is one linearised program around the current point.
type stepLP struct {
	sp     *simple.IPOMDP
	spec   *simple.Specification
	around *Variables
	params Parameters

	model        *lp.Model
	mainVars     []lp.Var
	policyVars   []lp.Var
	penAction    []lp.Var
	penUncertain []lp.Var
}

func newStepLP(env *lp.Env, sp *simple.IPOMDP, spec *simple.Specification, around *Variables, params Parameters) *stepLP {
	g := &stepLP{
		sp:     sp,
		spec:   spec,
		around: around,
		params: params,
		model:  env.NewModel(),
	}
	g.addVariables()
	return g
}

// solveStep builds and solves the linearised program, then re-evaluates the
// optimal policy against the oracle: the LP's value vector is only a
// linearised estimate.
func solveStep(env *lp.Env, sp *simple.IPOMDP, spec *simple.Specification, around *Variables, params Parameters) (*Variables, error) {
	g := newStepLP(env, sp, spec, around, params)

	g.tiePolicyToObservations()
	g.constrainPolicyDistributions()
	g.pinGoalStates()
	g.addTrustRegion()
	g.addActionStateConstraints()
	g.addUncertainStateConstraints()
	g.setObjective()

	sol, err := g.model.Optimize()
	if err != nil {
		return nil, fmt.Errorf("scp step: %w", err)
	}

	policy := g.extractPolicy(sol)
	main := evaluatePolicy(sp, spec, policy)
	witnesses, err := computeWitnesses(env, sp, spec, main)
	if err != nil {
		return nil, err
	}

	return &Variables{Policy: policy, Main: main, IntervalWitness: witnesses}, nil
}

func (g *stepLP) addVariables() {
	n := g.sp.NumStates()
	g.mainVars = make([]lp.Var, n)
	g.policyVars = make([]lp.Var, 2*n)
	g.penAction = make([]lp.Var, n)
	g.penUncertain = make([]lp.Var, n)

	lower, upper := 0.0, 1.0
	if g.spec.IsReward {
		lower, upper = -rewardBound, rewardBound
	}
	for s := 0; s < n; s++ {
		g.mainVars[s] = g.model.AddVar(lower, upper, fmt.Sprintf("x%d", s))
	}

	for _, s := range g.sp.UncertainStates {
		g.policyVars[2*s] = g.model.AddVar(0, 1, fmt.Sprintf("policy%da", s))
	}
	for _, s := range g.sp.ActionStates {
		g.policyVars[2*s] = g.model.AddVar(graphEpsilon, 1, fmt.Sprintf("policy%da", s))
		g.policyVars[2*s+1] = g.model.AddVar(graphEpsilon, 1, fmt.Sprintf("policy%db", s))
	}

	for s := 0; s < n; s++ {
		g.penAction[s] = g.model.AddVar(0, penaltyBound, fmt.Sprintf("penaltyAction%d", s))
		g.penUncertain[s] = g.model.AddVar(0, penaltyBound, fmt.Sprintf("penaltyUncertain%d", s))
	}
}

// inequality is the Bellman comparison direction: >= when maximising, <=
// when minimising.
func (g *stepLP) inequality() lp.Relation {
	if g.spec.Maximize {
		return lp.GreaterEq
	}
	return lp.LessEq
}

func (g *stepLP) sense() lp.Sense {
	if g.spec.Maximize {
		return lp.Maximize
	}
	return lp.Minimize
}

// tiePolicyToObservations forces the policy of every action state to agree
// with the leader of its observation, the highest-indexed state carrying it.
func (g *stepLP) tiePolicyToObservations() {
	n := g.sp.NumStates()
	leader := make(map[int]int, n)
	for s := 0; s < n; s++ {
		leader[g.sp.Observations[s]] = s
	}

	for _, s := range g.sp.ActionStates {
		idx := leader[g.sp.Observations[s]]
		if idx == s {
			continue
		}
		for k := 0; k <= 1; k++ {
			var tie lp.LinExpr
			tie.AddTerm(1, g.policyVars[2*s+k])
			tie.AddTerm(-1, g.policyVars[2*idx+k])
			g.model.AddConstr(tie, lp.Equal, 0, fmt.Sprintf("policyObservation%d", s))
		}
	}
}

func (g *stepLP) constrainPolicyDistributions() {
	for _, s := range g.sp.UncertainStates {
		var dist lp.LinExpr
		dist.AddTerm(1, g.policyVars[2*s])
		g.model.AddConstr(dist, lp.Equal, 1, fmt.Sprintf("policyUncertainState%d", s))
	}
	for _, s := range g.sp.ActionStates {
		var dist lp.LinExpr
		dist.AddTerm(1, g.policyVars[2*s])
		dist.AddTerm(1, g.policyVars[2*s+1])
		g.model.AddConstr(dist, lp.Equal, 1, fmt.Sprintf("policyActionState%d", s))
	}
}

func (g *stepLP) pinGoalStates() {
	for s, ok := g.spec.Target.NextSet(0); ok; s, ok = g.spec.Target.NextSet(s + 1) {
		var goal lp.LinExpr
		goal.AddTerm(1, g.mainVars[s])
		g.model.AddConstr(goal, lp.Equal, g.spec.GoalValue(), fmt.Sprintf("goalState%d", s))
	}
}

// addTrustRegion bounds every variable inside a multiplicative box around
// the current point.
func (g *stepLP) addTrustRegion() {
	region := g.params.TrustRegion + 1

	for s := 0; s < g.sp.NumStates(); s++ {
		var left, right lp.LinExpr
		left.AddTerm(1, g.mainVars[s])
		g.model.AddConstr(left, lp.GreaterEq, g.around.Main[s]/region, fmt.Sprintf("trustRegionMainLeft%d", s))
		right.AddTerm(1, g.mainVars[s])
		g.model.AddConstr(right, lp.LessEq, g.around.Main[s]*region, fmt.Sprintf("trustRegionMainRight%d", s))
	}

	for _, s := range g.sp.ActionStates {
		for k := 0; k <= 1; k++ {
			var left, right lp.LinExpr
			left.AddTerm(1, g.policyVars[2*s+k])
			g.model.AddConstr(left, lp.GreaterEq, g.around.Policy[2*s+k]/region, fmt.Sprintf("trustRegionPolicyLeft%d", s))
			right.AddTerm(1, g.policyVars[2*s+k])
			g.model.AddConstr(right, lp.LessEq, g.around.Policy[2*s+k]*region, fmt.Sprintf("trustRegionPolicyRight%d", s))
		}
	}
}

// addActionStateConstraints linearises m[s] = sum_k pi[s,k]*(m[succ_k] +
// r[s,k]) + r[s] around the current point, one soft constraint per interior
// action state.
func (g *stepLP) addActionStateConstraints() {
	for _, s := range g.sp.ActionStates {
		if !g.spec.Interior(s) {
			continue
		}

		var constraint lp.LinExpr
		constraint.AddTerm(-1, g.mainVars[s])
		constraint.AddTerm(g.spec.PenaltySign(), g.penAction[s])

		rhs := 0.0
		for k := 0; k <= 1; k++ {
			successor := g.sp.Transitions[s][k].State

			constraint.AddTerm(g.around.Policy[2*s+k], g.mainVars[successor])
			constraint.AddTerm(g.around.Main[successor], g.policyVars[2*s+k])
			constraint.AddTerm(g.sp.TransitionRewards[2*s+k], g.policyVars[2*s+k])

			rhs += g.around.Policy[2*s+k] * g.around.Main[successor]
		}

		rhs -= g.sp.StateRewards[s]
		g.model.AddConstr(constraint, g.inequality(), rhs, fmt.Sprintf("actionState%d", s))
	}
}

func (g *stepLP) addUncertainStateConstraints() {
	if g.spec.Existential {
		g.addUncertainExistential()
	} else {
		g.addUncertainUniversal()
	}
}

// addUncertainExistential introduces fresh interval variables per edge and
// linearises the bilinear product against the recorded witnesses.
func (g *stepLP) addUncertainExistential() {
	for _, s := range g.sp.UncertainStates {
		if !g.spec.Interior(s) {
			continue
		}
		edges := g.sp.Transitions[s]

		intervalVars := make([]lp.Var, len(edges))
		var distribution lp.LinExpr
		for i, e := range edges {
			intervalVars[i] = g.model.AddVar(e.Interval.Lower, e.Interval.Upper, fmt.Sprintf("interval%d_%d", s, i))
			distribution.AddTerm(1, intervalVars[i])
		}
		g.model.AddConstr(distribution, lp.Equal, 1, fmt.Sprintf("distribution%d", s))

		var constraint lp.LinExpr
		constraint.AddTerm(-1, g.mainVars[s])
		constraint.AddTerm(g.spec.PenaltySign(), g.penUncertain[s])

		witness := g.around.IntervalWitness[s]
		rhs := 0.0
		for i, e := range edges {
			constraint.AddTerm(g.around.Main[e.State], intervalVars[i])
			constraint.AddTerm(witness[i], g.mainVars[e.State])
			rhs += g.around.Main[e.State] * witness[i]
		}

		rhs -= g.sp.StateRewards[s]
		g.model.AddConstr(constraint, g.inequality(), rhs, fmt.Sprintf("uncertainState%d", s))
	}
}

// addUncertainUniversal dualises the interval polytope l <= x <= u,
// 1^T x = 1 per interior uncertain state: one dual variable per polytope
// row, the stationarity equality per successor, and a single value
// inequality against the dual objective.
func (g *stepLP) addUncertainUniversal() {
	for _, s := range g.sp.UncertainStates {
		if !g.spec.Interior(s) {
			continue
		}
		edges := g.sp.Transitions[s]
		n := len(edges)
		m := 2*n + 2

		gvec := make([]float64, m)
		for i, e := range edges {
			gvec[2*i] = -e.Interval.Lower
			gvec[2*i+1] = e.Interval.Upper
		}
		gvec[2*n] = -1
		gvec[2*n+1] = 1

		duals := make([]lp.Var, m)
		for i := 0; i < m; i++ {
			duals[i] = g.model.AddVar(0, penaltyBound, fmt.Sprintf("dual%d_%d", s, i))
		}

		var inequality lp.LinExpr
		inequality.AddTerm(-1, g.mainVars[s])
		for i := 0; i < m; i++ {
			inequality.AddTerm(gvec[i], duals[i])
		}
		g.model.AddConstr(inequality, g.inequality(), -g.sp.StateRewards[s], fmt.Sprintf("dualizationInequality%d", s))

		for i, e := range edges {
			var stationarity lp.LinExpr
			stationarity.AddTerm(1, g.mainVars[e.State])
			stationarity.AddTerm(1, duals[2*i])
			stationarity.AddTerm(-1, duals[2*i+1])
			stationarity.AddTerm(1, duals[2*n])
			stationarity.AddTerm(-1, duals[2*n+1])
			g.model.AddConstr(stationarity, lp.Equal, 0, fmt.Sprintf("dualizationConstraint%d_%d", s, i))
		}
	}
}

func (g *stepLP) setObjective() {
	var obj lp.LinExpr
	obj.AddTerm(1, g.mainVars[g.sp.Initial])
	for _, s := range g.sp.ActionStates {
		obj.AddTerm(-g.spec.PenaltySign()*g.params.PenaltyWeight, g.penAction[s])
	}
	for _, s := range g.sp.UncertainStates {
		obj.AddTerm(-g.spec.PenaltySign()*g.params.PenaltyWeight, g.penUncertain[s])
	}
	g.model.SetObjective(obj, g.sense())
}

func (g *stepLP) extractPolicy(sol lp.Solution) []float64 {
	policy := make([]float64, 2*g.sp.NumStates())
	for _, s := range g.sp.UncertainStates {
		policy[2*s] = sol.Value(g.policyVars[2*s])
	}
	for _, s := range g.sp.ActionStates {
		for k := 0; k <= 1; k++ {
			policy[2*s+k] = sol.Value(g.policyVars[2*s+k])
		}
	}
	return policy
}
