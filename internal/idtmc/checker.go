package idtmc

import (
	"math"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"aoratos/internal/model"
)

const (
	defaultMaxItersProbs   = 2000
	defaultMaxItersRewards = 5000
	defaultEpsilon         = 1e-8
)

// Checker runs interval value iteration on an IDTMC. Non-convergence within
// the iteration cap is tolerated: the current vector is returned as a
// best-effort answer.
type Checker struct {
	MaxIters int
	Epsilon  float64
}

// ComputeReachProbs computes per-state reachability probabilities for the
// target set, constrained to remain (nil means all states), resolving the
// interval uncertainty in the direction given by minMax.
func (ck Checker) ComputeReachProbs(chain *IDTMC, remain, target *bitset.BitSet, minMax model.MinMax) []float64 {
	n := chain.NumStates()
	maxIters := ck.MaxIters
	if maxIters <= 0 {
		maxIters = defaultMaxItersProbs
	}

	values := make([]float64, n)
	for s := 0; s < n; s++ {
		if target.Test(uint(s)) {
			values[s] = 1
		}
	}

	next := make([]float64, n)
	for iter := 0; iter < maxIters; iter++ {
		delta := 0.0
		for s := 0; s < n; s++ {
			switch {
			case target.Test(uint(s)):
				next[s] = 1
			case remain != nil && !remain.Test(uint(s)):
				next[s] = 0
			default:
				next[s] = resolveIntervals(chain.Edges(s), values, minMax.MaxUnc)
			}
			delta = math.Max(delta, math.Abs(next[s]-values[s]))
		}
		values, next = next, values
		if delta < ck.epsilon() {
			break
		}
	}
	return values
}

// ComputeReachRewards computes per-state expected cumulative rewards until
// the target set is reached.
func (ck Checker) ComputeReachRewards(chain *IDTMC, rewards StateRewards, target *bitset.BitSet, minMax model.MinMax) []float64 {
	n := chain.NumStates()
	maxIters := ck.MaxIters
	if maxIters <= 0 {
		maxIters = defaultMaxItersRewards
	}

	values := make([]float64, n)
	next := make([]float64, n)
	for iter := 0; iter < maxIters; iter++ {
		delta := 0.0
		for s := 0; s < n; s++ {
			if target.Test(uint(s)) {
				next[s] = 0
			} else {
				next[s] = rewards.StateReward(s) + resolveIntervals(chain.Edges(s), values, minMax.MaxUnc)
			}
			delta = math.Max(delta, math.Abs(next[s]-values[s]))
		}
		values, next = next, values
		if delta < ck.epsilon() {
			break
		}
	}
	return values
}

func (ck Checker) epsilon() float64 {
	if ck.Epsilon > 0 {
		return ck.Epsilon
	}
	return defaultEpsilon
}

// resolveIntervals evaluates one Bellman step at a state: the adversary picks
// edge probabilities inside the intervals, summing to one, to maximise or
// minimise the expected value. Lower bounds are assigned first and the spare
// mass is pushed onto successors in value order.
func resolveIntervals(edges []model.Edge, values []float64, maximise bool) float64 {
	if len(edges) == 0 {
		return 0
	}

	order := make([]int, len(edges))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := values[edges[order[a]].State], values[edges[order[b]].State]
		if maximise {
			return va > vb
		}
		return va < vb
	})

	spare := 1.0
	for _, e := range edges {
		spare -= e.Interval.Lower
	}

	total := 0.0
	for _, i := range order {
		e := edges[i]
		p := e.Interval.Lower
		if spare > 0 {
			extra := math.Min(spare, e.Interval.Upper-e.Interval.Lower)
			p += extra
			spare -= extra
		}
		total += p * values[e.State]
	}
	return total
}
