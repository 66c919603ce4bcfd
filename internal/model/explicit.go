package model

import (
	"fmt"
)

// ExplicitIPOMDP is an in-memory IPOMDP, also the JSON input format of the
// CLI. Choices[s][a] lists the interval-weighted edges of choice a in state s.
type ExplicitIPOMDP struct {
	Initial      int        `json:"initial"`
	Observations []int      `json:"observations"`
	Choices      [][][]Edge `json:"choices"`
}

func (m *ExplicitIPOMDP) NumStates() int {
	return len(m.Choices)
}

func (m *ExplicitIPOMDP) FirstInitialState() int {
	return m.Initial
}

func (m *ExplicitIPOMDP) NumChoices(state int) int {
	return len(m.Choices[state])
}

func (m *ExplicitIPOMDP) Transitions(state, choice int) []Edge {
	return m.Choices[state][choice]
}

func (m *ExplicitIPOMDP) Observation(state int) int {
	return m.Observations[state]
}

// Validate checks the structural invariants: every state has at least one
// choice, every edge points into the state space with an interval inside
// [0, 1], and every choice admits a distribution inside its intervals.
func (m *ExplicitIPOMDP) Validate() error {
	n := len(m.Choices)
	if n == 0 {
		return fmt.Errorf("model has no states")
	}
	if len(m.Observations) != n {
		return fmt.Errorf("observation list mismatch: got=%d want=%d", len(m.Observations), n)
	}
	if m.Initial < 0 || m.Initial >= n {
		return fmt.Errorf("initial state out of range: %d", m.Initial)
	}
	for s := 0; s < n; s++ {
		if len(m.Choices[s]) == 0 {
			return fmt.Errorf("state %d has no choices", s)
		}
		if m.Observations[s] < 0 {
			return fmt.Errorf("state %d has negative observation", s)
		}
		for a, edges := range m.Choices[s] {
			if len(edges) == 0 {
				return fmt.Errorf("state %d choice %d has no edges", s, a)
			}
			lowerSum, upperSum := 0.0, 0.0
			for _, e := range edges {
				if e.State < 0 || e.State >= n {
					return fmt.Errorf("state %d choice %d: successor out of range: %d", s, a, e.State)
				}
				iv := e.Interval
				if iv.Lower < 0 || iv.Upper > 1 || iv.Lower > iv.Upper {
					return fmt.Errorf("state %d choice %d: invalid interval [%g, %g]", s, a, iv.Lower, iv.Upper)
				}
				lowerSum += iv.Lower
				upperSum += iv.Upper
			}
			if lowerSum > 1+1e-12 || upperSum < 1-1e-12 {
				return fmt.Errorf("state %d choice %d: no distribution fits intervals (lower sum %g, upper sum %g)", s, a, lowerSum, upperSum)
			}
		}
	}
	return nil
}

// ExplicitRewards is an in-memory reward structure matching ExplicitIPOMDP.
type ExplicitRewards struct {
	State      []float64   `json:"state"`
	Transition [][]float64 `json:"transition"`
}

func (r *ExplicitRewards) StateReward(state int) float64 {
	if state >= len(r.State) {
		return 0
	}
	return r.State[state]
}

func (r *ExplicitRewards) TransitionReward(state, choice int) float64 {
	if state >= len(r.Transition) || choice >= len(r.Transition[state]) {
		return 0
	}
	return r.Transition[state][choice]
}
