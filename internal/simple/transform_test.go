package simple

import (
	"math/rand"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/go-cmp/cmp"

	"aoratos/internal/model"
)

func edge(state int, lo, hi float64) model.Edge {
	return model.Edge{State: state, Interval: model.Interval{Lower: lo, Upper: hi}}
}

// threeChoiceModel has a three-way choice in state 0 and a self-looping
// state 1.
func threeChoiceModel() *model.ExplicitIPOMDP {
	return &model.ExplicitIPOMDP{
		Initial:      0,
		Observations: []int{0, 1},
		Choices: [][][]model.Edge{
			{
				{edge(1, 1, 1)},
				{edge(1, 1, 1)},
				{edge(1, 1, 1)},
			},
			{
				{edge(1, 1, 1)},
			},
		},
	}
}

// twinObservationModel has two states sharing an observation, each with two
// distinguishable choices, plus an absorbing third state.
func twinObservationModel() *model.ExplicitIPOMDP {
	return &model.ExplicitIPOMDP{
		Initial:      0,
		Observations: []int{0, 0, 1},
		Choices: [][][]model.Edge{
			{
				{edge(2, 0.1, 0.9), edge(1, 0.1, 0.9)},
				{edge(2, 0.2, 0.8), edge(1, 0.2, 0.8)},
			},
			{
				{edge(2, 0.1, 0.9), edge(0, 0.1, 0.9)},
				{edge(2, 0.2, 0.8), edge(0, 0.2, 0.8)},
			},
			{
				{edge(2, 1, 1)},
			},
		},
	}
}

func TestTransformGadgetCount(t *testing.T) {
	tr, err := NewTransform(threeChoiceModel(), nil, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	// sum over states of 2*numChoices - 1.
	if got := tr.Simple.NumStates(); got != 6 {
		t.Fatalf("simple states = %d, want 6", got)
	}
	if got := len(tr.Simple.ActionStates); got != 2 {
		t.Fatalf("action states = %d, want 2", got)
	}
	if got := len(tr.Simple.UncertainStates); got != 4 {
		t.Fatalf("uncertain states = %d, want 4", got)
	}
	if got := len(tr.Traversal); got != 6 {
		t.Fatalf("traversal length = %d, want 6", got)
	}
}

func TestTransformSingleChoiceIsIdentityOnStateCount(t *testing.T) {
	chainModel := &model.ExplicitIPOMDP{
		Initial:      0,
		Observations: []int{0, 1, 2},
		Choices: [][][]model.Edge{
			{{edge(1, 0.4, 0.6), edge(2, 0.4, 0.6)}},
			{{edge(1, 1, 1)}},
			{{edge(2, 1, 1)}},
		},
	}

	tr, err := NewTransform(chainModel, nil, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got := tr.Simple.NumStates(); got != chainModel.NumStates() {
		t.Fatalf("simple states = %d, want %d", got, chainModel.NumStates())
	}
	if len(tr.Simple.ActionStates) != 0 {
		t.Fatalf("expected no action states, got %v", tr.Simple.ActionStates)
	}
}

func TestTransformActionEdgesCarrySentinelInterval(t *testing.T) {
	tr, err := NewTransform(threeChoiceModel(), nil, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	for _, s := range tr.Simple.ActionStates {
		edges := tr.Simple.Transitions[s]
		if len(edges) != 2 {
			t.Fatalf("action state %d has %d edges, want 2", s, len(edges))
		}
		for _, e := range edges {
			if e.Interval != (model.Interval{Lower: -1, Upper: 1}) {
				t.Fatalf("action edge interval = %+v, want [-1, 1]", e.Interval)
			}
		}
	}
}

func TestTransformObservationSequencesMatchAcrossGadgets(t *testing.T) {
	ip := twinObservationModel()
	tr, err := NewTransform(ip, nil, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	sp := tr.Simple

	root0, root1 := tr.Gadget[0], tr.Gadget[1]
	if sp.Observations[root0] != sp.Observations[root1] {
		t.Fatalf("roots of equal-observation gadgets got observations %d and %d",
			sp.Observations[root0], sp.Observations[root1])
	}

	// Position-wise: leaf k of one gadget shares its observation with leaf k
	// of the other.
	for k := 0; k <= 1; k++ {
		leaf0 := sp.Transitions[root0][k].State
		leaf1 := sp.Transitions[root1][k].State
		if sp.Observations[leaf0] != sp.Observations[leaf1] {
			t.Fatalf("leaf %d observations differ: %d vs %d", k,
				sp.Observations[leaf0], sp.Observations[leaf1])
		}
	}

	// Distinct original observations stay distinct.
	root2 := tr.Gadget[2]
	if sp.Observations[root2] == sp.Observations[root0] {
		t.Fatal("distinct original observations collapsed")
	}
}

func TestTransformSharedShuffleAcrossObservation(t *testing.T) {
	ip := twinObservationModel()
	rng := rand.New(rand.NewSource(7))
	tr, err := NewTransform(ip, nil, true, rng)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	sp := tr.Simple

	// Both gadgets must apply the same choice permutation: leaf k's
	// distribution carries the same intervals in both.
	root0, root1 := tr.Gadget[0], tr.Gadget[1]
	for k := 0; k <= 1; k++ {
		leaf0 := sp.Transitions[root0][k].State
		leaf1 := sp.Transitions[root1][k].State
		if sp.Transitions[leaf0][0].Interval != sp.Transitions[leaf1][0].Interval {
			t.Fatalf("leaf %d intervals differ across equal-observation gadgets", k)
		}
	}
}

func TestTransformShuffleRequiresRand(t *testing.T) {
	if _, err := NewTransform(threeChoiceModel(), nil, true, nil); err == nil {
		t.Fatal("expected error for shuffle without random source")
	}
}

func TestTransformRewards(t *testing.T) {
	ip := threeChoiceModel()
	rewards := &model.ExplicitRewards{
		State:      []float64{7, 1},
		Transition: [][]float64{{10, 20, 30}, {5}},
	}

	tr, err := NewTransform(ip, rewards, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	sp := tr.Simple

	// State rewards land on gadget roots; a single-choice state folds its
	// transition reward into the root's state reward.
	if got := sp.StateRewards[tr.Gadget[0]]; got != 7 {
		t.Fatalf("root state reward = %g, want 7", got)
	}
	if got := sp.StateRewards[tr.Gadget[1]]; got != 6 {
		t.Fatalf("single-choice state reward = %g, want 6", got)
	}

	// The chain walk: root's right edge carries the middle choice, the last
	// action state's two edges carry the first and last choices.
	root := tr.Gadget[0]
	second := sp.Transitions[root][0].State
	if got := sp.TransitionRewards[2*root+1]; got != 20 {
		t.Fatalf("root right-edge reward = %g, want 20", got)
	}
	if got := sp.TransitionRewards[2*second]; got != 10 {
		t.Fatalf("second left-edge reward = %g, want 10", got)
	}
	if got := sp.TransitionRewards[2*second+1]; got != 30 {
		t.Fatalf("second right-edge reward = %g, want 30", got)
	}
}

func TestTransformTargetAndRemainLifting(t *testing.T) {
	ip := twinObservationModel()
	tr, err := NewTransform(ip, nil, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	target := bitset.New(3)
	target.Set(2)
	lifted := tr.TargetSet(target)
	if !lifted.Test(uint(tr.Gadget[2])) {
		t.Fatal("target root not lifted")
	}
	if got := lifted.Count(); got != 1 {
		t.Fatalf("lifted target count = %d, want 1", got)
	}

	// A nil remain set allows every simple state.
	allRemain := tr.RemainSet(nil)
	if got := allRemain.Count(); got != uint(tr.Simple.NumStates()) {
		t.Fatalf("nil remain count = %d, want %d", got, tr.Simple.NumStates())
	}

	// Forbidding state 1 clears only its gadget root; interior states stay.
	remain := bitset.New(3)
	remain.Set(0)
	remain.Set(2)
	liftedRemain := tr.RemainSet(remain)
	if liftedRemain.Test(uint(tr.Gadget[1])) {
		t.Fatal("forbidden root still in remain")
	}
	if got := liftedRemain.Count(); got != uint(tr.Simple.NumStates()-1) {
		t.Fatalf("remain count = %d, want %d", got, tr.Simple.NumStates()-1)
	}
}

func TestTransformInitialIsGadgetRoot(t *testing.T) {
	ip := twinObservationModel()
	tr, err := NewTransform(ip, nil, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if tr.Simple.Initial != tr.Gadget[0] {
		t.Fatalf("initial = %d, want gadget root %d", tr.Simple.Initial, tr.Gadget[0])
	}
}

func TestTransformUncertainLeavesKeepDistributions(t *testing.T) {
	ip := twinObservationModel()
	tr, err := NewTransform(ip, nil, false, nil)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	sp := tr.Simple

	root0 := tr.Gadget[0]
	leaf0 := sp.Transitions[root0][0].State
	want := []model.Edge{
		{State: tr.Gadget[2], Interval: model.Interval{Lower: 0.1, Upper: 0.9}},
		{State: tr.Gadget[1], Interval: model.Interval{Lower: 0.1, Upper: 0.9}},
	}
	if diff := cmp.Diff(want, sp.Transitions[leaf0]); diff != "" {
		t.Fatalf("leaf distribution mismatch (-want +got):\n%s", diff)
	}
}
