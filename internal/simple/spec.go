package simple

import (
	"github.com/bits-and-blooms/bitset"

	"aoratos/internal/model"
)

// Specification translates the user's query into the inequality directions,
// objective sense, penalty sign and adversary quantifier used by the
// linearised programs over the simple IPOMDP.
type Specification struct {
	Remain      *bitset.BitSet
	Target      *bitset.BitSet
	MinMax      model.MinMax
	Maximize    bool
	Existential bool
	IsReward    bool
}

// NewSpecification lifts remain/target through the transform and fixes the
// optimisation directions. The uncertainty quantifier is existential when the
// adversary is aligned with the controller objective, universal otherwise.
func NewSpecification(t *Transform, isReward bool, remain, target *bitset.BitSet, minMax model.MinMax) *Specification {
	return &Specification{
		Remain:      t.RemainSet(remain),
		Target:      t.TargetSet(target),
		MinMax:      minMax,
		Maximize:    minMax.Max,
		Existential: minMax.Existential(),
		IsReward:    isReward,
	}
}

// Interior reports whether a simple state is subject to a Bellman
// constraint: not a goal state and inside the remain set.
func (sp *Specification) Interior(state int) bool {
	return !sp.Target.Test(uint(state)) && sp.Remain.Test(uint(state))
}

// ObjectiveSign orients comparisons so that sign*a < sign*b means "a is
// strictly better than b" under the chosen objective.
func (sp *Specification) ObjectiveSign() float64 {
	if sp.Maximize {
		return -1
	}
	return 1
}

// PenaltySign is the sign placed on penalty terms in constraints and on the
// penalty weight in the objective.
func (sp *Specification) PenaltySign() float64 {
	if sp.Maximize {
		return 1
	}
	return -1
}

// GoalValue is the value pinned on target states.
func (sp *Specification) GoalValue() float64 {
	if sp.IsReward {
		return 0
	}
	return 1
}

// WorstValue is the sentinel a fresh solution point starts from: 0 (maximise)
// or 1 (minimise) for probabilities, 1-1e6 or 1e6 for rewards. A step is
// accepted only when it is strictly better, so an answer equal to the
// sentinel is never accepted.
func (sp *Specification) WorstValue() float64 {
	worst := 1.0
	if sp.IsReward {
		worst = 1e6
	}
	if sp.Maximize {
		return 1 - worst
	}
	return worst
}
