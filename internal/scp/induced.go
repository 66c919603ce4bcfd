// Package scp implements the sequential-convex-programming loop over a
// simple IPOMDP: evaluating the chain a policy induces, linearising the
// bilinear Bellman constraints around the current point, and driving the
// trust-region iteration.
package scp

import (
	"errors"
	"fmt"

	"aoratos/internal/idtmc"
	"aoratos/internal/lp"
	"aoratos/internal/model"
	"aoratos/internal/simple"
)

// Variables is one point of the SCP iteration: the policy over the simple
// IPOMDP, its oracle-evaluated value vector, and the interval witnesses that
// linearise the bilinear terms of existential uncertain states.
type Variables struct {
	Policy          []float64
	Main            []float64
	IntervalWitness [][]float64
}

// inducedChain builds the interval DTMC a policy induces: uncertain states
// keep their intervals, action states emit two point intervals carrying the
// branch probabilities.
func inducedChain(sp *simple.IPOMDP, policy []float64) *idtmc.IDTMC {
	chain := idtmc.New(sp.NumStates())

	for _, state := range sp.UncertainStates {
		for _, e := range sp.Transitions[state] {
			chain.SetProbability(state, e.State, e.Interval)
		}
	}

	for _, state := range sp.ActionStates {
		for k := 0; k <= 1; k++ {
			p := policy[2*state+k]
			successor := sp.Transitions[state][k].State
			chain.SetProbability(state, successor, model.Interval{Lower: p, Upper: p})
		}
	}

	return chain
}

// inducedRewards folds the gadget transition rewards into a state-reward
// vector for the induced chain, weighted by the policy.
func inducedRewards(sp *simple.IPOMDP, policy []float64) idtmc.StateRewards {
	rewards := make(idtmc.StateRewards, sp.NumStates())
	copy(rewards, sp.StateRewards)

	for _, state := range sp.ActionStates {
		for k := 0; k <= 1; k++ {
			rewards[state] += policy[2*state+k] * sp.TransitionRewards[2*state+k]
		}
	}
	return rewards
}

// evaluatePolicy runs the interval-DTMC oracle on the induced chain. The
// oracle's answer, not the LP estimate, is the value of a policy.
func evaluatePolicy(sp *simple.IPOMDP, spec *simple.Specification, policy []float64) []float64 {
	chain := inducedChain(sp, policy)
	checker := idtmc.Checker{}
	if spec.IsReward {
		return checker.ComputeReachRewards(chain, inducedRewards(sp, policy), spec.Target, spec.MinMax)
	}
	return checker.ComputeReachProbs(chain, spec.Remain, spec.Target, spec.MinMax)
}

const witnessEpsilon = 1e-3

// recoverWitness finds interval probabilities that reproduce main[state]
// from its successors: sum to one, stay in the intervals, and satisfy the
// recurrence up to a +-eps bracket that doubles until the program is
// feasible. A loose enough bracket is always feasible, so this terminates.
func recoverWitness(env *lp.Env, state int, main []float64, sp *simple.IPOMDP) ([]float64, error) {
	edges := sp.Transitions[state]
	target := main[state] - sp.StateRewards[state]

	for eps := witnessEpsilon; ; eps *= 2 {
		m := env.NewModel()

		vars := make([]lp.Var, len(edges))
		var distribution, recurrence lp.LinExpr
		for i, e := range edges {
			vars[i] = m.AddVar(e.Interval.Lower, e.Interval.Upper, fmt.Sprintf("interval%d", i))
			distribution.AddTerm(1, vars[i])
			recurrence.AddTerm(main[e.State], vars[i])
		}
		m.AddConstr(distribution, lp.Equal, 1, "distribution")
		m.AddConstr(recurrence, lp.GreaterEq, target-eps, "recurrenceLow")
		m.AddConstr(recurrence, lp.LessEq, target+eps, "recurrenceHigh")

		sol, err := m.Optimize()
		if err != nil {
			if errors.Is(err, lp.ErrInfeasible) {
				continue
			}
			return nil, fmt.Errorf("witness recovery at state %d: %w", state, err)
		}

		out := make([]float64, len(edges))
		for i, v := range vars {
			out[i] = sol.Value(v)
		}
		return out, nil
	}
}

// computeWitnesses recovers interval witnesses for every interior uncertain
// state when the adversary is existentially quantified.
func computeWitnesses(env *lp.Env, sp *simple.IPOMDP, spec *simple.Specification, main []float64) ([][]float64, error) {
	witnesses := make([][]float64, sp.NumStates())
	if !spec.Existential {
		return witnesses, nil
	}
	for _, state := range sp.UncertainStates {
		if !spec.Interior(state) {
			continue
		}
		w, err := recoverWitness(env, state, main, sp)
		if err != nil {
			return nil, err
		}
		witnesses[state] = w
	}
	return witnesses, nil
}
