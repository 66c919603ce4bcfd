// Package simple reduces a (product) IPOMDP to its binary-branching form:
// every state is either an action state with exactly two policy-labelled
// edges or an uncertain state whose edges carry probability intervals.
package simple

import (
	"fmt"
	"math/rand"

	"github.com/bits-and-blooms/bitset"

	"aoratos/internal/model"
)

// sentinel interval on action-state edges; it carries no probability content.
var policyEdge = model.Interval{Lower: -1, Upper: 1}

// IPOMDP is the binary-branching form. Policy and transition-reward vectors
// are laid out two slots per state: entries 2s and 2s+1 belong to state s.
// StateRewards holds one entry per state.
type IPOMDP struct {
	UncertainStates   []int
	ActionStates      []int
	Transitions       [][]model.Edge
	Observations      []int
	StateRewards      []float64
	TransitionRewards []float64
	Initial           int
}

func (sp *IPOMDP) NumStates() int {
	return len(sp.Transitions)
}

// Transform binarises one IPOMDP. Each multi-way choice becomes a gadget: a
// chain of action states whose leaves are the uncertain states, one per
// original choice. Gadget maps each original state to its gadget root and
// Traversal records creation order.
type Transform struct {
	Simple    *IPOMDP
	Gadget    []int
	Traversal []int

	source          model.IPOMDP
	choicesForState [][]int
}

// NewTransform builds the simple IPOMDP. When shuffle is set, the first
// gadget of each observation fixes a random permutation of its choices and
// every later gadget with the same observation reuses it, which keeps
// observation-equal gadgets isomorphic.
func NewTransform(ip model.IPOMDP, rewards model.Rewards, shuffle bool, rng *rand.Rand) (*Transform, error) {
	if shuffle && rng == nil {
		return nil, fmt.Errorf("random source is required when shuffling choices")
	}

	t := &Transform{
		Simple:          &IPOMDP{},
		source:          ip,
		choicesForState: make([][]int, ip.NumStates()),
	}
	t.buildSupportGraph(ip, shuffle, rng)
	t.assignObservations(ip)
	t.attachRewards(ip, rewards)
	t.Simple.Initial = t.Gadget[ip.FirstInitialState()]
	return t, nil
}

func (t *Transform) buildSupportGraph(ip model.IPOMDP, shuffle bool, rng *rand.Rand) {
	numStates := ip.NumStates()

	total := 0
	for s := 0; s < numStates; s++ {
		total += 2*ip.NumChoices(s) - 1
	}

	gadget := make([]int, numStates)
	for i := range gadget {
		gadget[i] = -1
	}

	var traversal []int
	var uncertainStates, actionStates []int
	transitions := make([][]model.Edge, total)

	// Choice permutations are fixed per observation so that gadgets under
	// the same observation share their shape.
	choicesForObservation := make(map[int][]int)

	last := -1
	for state := 0; state < numStates; state++ {
		if gadget[state] < 0 {
			last++
			gadget[state] = last
		}

		numChoices := ip.NumChoices(state)
		for dummy := 0; dummy < numChoices-1; dummy++ {
			curr := gadget[state]
			if dummy > 0 {
				last++
				curr = last
			}
			traversal = append(traversal, curr)
			actionStates = append(actionStates, curr)
			transitions[curr] = []model.Edge{
				{State: last + 1, Interval: policyEdge},
				{State: last + numChoices, Interval: policyEdge},
			}
		}

		obs := ip.Observation(state)
		perm, ok := choicesForObservation[obs]
		if !ok {
			perm = make([]int, numChoices)
			for i := range perm {
				perm[i] = i
			}
			if shuffle {
				rng.Shuffle(len(perm), func(i, j int) {
					perm[i], perm[j] = perm[j], perm[i]
				})
			}
			choicesForObservation[obs] = perm
		}
		t.choicesForState[state] = perm

		future := last
		if numChoices > 1 {
			future = last + numChoices
		}
		for choice := 0; choice < numChoices; choice++ {
			curr := gadget[state]
			if numChoices > 1 {
				last++
				curr = last
			}
			traversal = append(traversal, curr)
			uncertainStates = append(uncertainStates, curr)

			edges := ip.Transitions(state, perm[choice])
			dist := make([]model.Edge, len(edges))
			for i, e := range edges {
				if gadget[e.State] < 0 {
					future++
					gadget[e.State] = future
				}
				dist[i] = model.Edge{State: gadget[e.State], Interval: e.Interval}
			}
			transitions[curr] = dist
		}

		last = future
	}

	t.Gadget = gadget
	t.Traversal = traversal
	t.Simple.UncertainStates = uncertainStates
	t.Simple.ActionStates = actionStates
	t.Simple.Transitions = transitions
}

// assignObservations walks the traversal order. Gadget roots reuse one fresh
// observation per original observation; interior states continue with
// consecutive ids, so two isomorphic gadgets get position-wise identical
// observation sequences.
func (t *Transform) assignObservations(ip model.IPOMDP) {
	total := len(t.Traversal)

	gadgetInv := make([]int, total)
	for i := range gadgetInv {
		gadgetInv[i] = -1
	}
	for s := 0; s < ip.NumStates(); s++ {
		gadgetInv[t.Gadget[s]] = s
	}

	fresh := make(map[int]int)
	observations := make([]int, total)

	lastObs := -1
	indexObs := -1
	for _, state := range t.Traversal {
		if gadgetInv[state] < 0 {
			if indexObs > lastObs {
				lastObs = indexObs
			}
			observations[state] = indexObs
			indexObs++
			continue
		}

		origObs := ip.Observation(gadgetInv[state])
		f, ok := fresh[origObs]
		if !ok {
			lastObs++
			f = lastObs
			fresh[origObs] = f
		}
		indexObs = f
		observations[state] = indexObs
		indexObs++
	}

	t.Simple.Observations = observations
}

func (t *Transform) attachRewards(ip model.IPOMDP, rewards model.Rewards) {
	n := t.Simple.NumStates()
	t.Simple.StateRewards = make([]float64, n)
	t.Simple.TransitionRewards = make([]float64, 2*n)

	if rewards == nil {
		return
	}

	for state := 0; state < ip.NumStates(); state++ {
		t.Simple.StateRewards[t.Gadget[state]] = rewards.StateReward(state)
	}

	for state := 0; state < ip.NumStates(); state++ {
		perm := t.choicesForState[state]
		numChoices := ip.NumChoices(state)
		if numChoices == 1 {
			t.Simple.StateRewards[t.Gadget[state]] += rewards.TransitionReward(state, 0)
			continue
		}

		// Interior action states carry the reward of one choice on their
		// right edge; the last action state carries the first and last
		// choices on its two leaf edges.
		curr := t.Gadget[state]
		for choice := 0; choice < numChoices-2; choice++ {
			t.Simple.TransitionRewards[2*curr+1] = rewards.TransitionReward(state, perm[choice+1])
			curr = t.Simple.Transitions[curr][0].State
		}
		t.Simple.TransitionRewards[2*curr] = rewards.TransitionReward(state, perm[0])
		t.Simple.TransitionRewards[2*curr+1] = rewards.TransitionReward(state, perm[numChoices-1])
	}
}

// TargetSet lifts a target set through the gadget mapping: the gadget root
// of a target state is a target of the simple IPOMDP.
func (t *Transform) TargetSet(target *bitset.BitSet) *bitset.BitSet {
	out := bitset.New(uint(t.Simple.NumStates()))
	for i, ok := target.NextSet(0); ok; i, ok = target.NextSet(i + 1) {
		out.Set(uint(t.Gadget[i]))
	}
	return out
}

// RemainSet lifts a remain set: remain is the allowed-states set, so its
// complement marks bad states and only their gadget roots leave the simple
// remain set. Interior gadget states always remain. A nil set allows all.
func (t *Transform) RemainSet(remain *bitset.BitSet) *bitset.BitSet {
	total := uint(t.Simple.NumStates())
	out := bitset.New(total)
	out.FlipRange(0, total)
	if remain == nil {
		return out
	}
	for s := 0; s < t.source.NumStates(); s++ {
		if !remain.Test(uint(s)) {
			out.Clear(uint(t.Gadget[s]))
		}
	}
	return out
}
