// Package idtmc implements explicit interval DTMCs and the value-iteration
// oracle used to evaluate induced chains.
package idtmc

import (
	"aoratos/internal/model"
)

// IDTMC is an explicit Markov chain whose edges carry probability intervals.
type IDTMC struct {
	edges [][]model.Edge
}

func New(numStates int) *IDTMC {
	return &IDTMC{edges: make([][]model.Edge, numStates)}
}

func (c *IDTMC) NumStates() int {
	return len(c.edges)
}

// SetProbability sets the interval on the edge state -> successor, replacing
// any previous interval on that edge.
func (c *IDTMC) SetProbability(state, successor int, iv model.Interval) {
	for i, e := range c.edges[state] {
		if e.State == successor {
			c.edges[state][i].Interval = iv
			return
		}
	}
	c.edges[state] = append(c.edges[state], model.Edge{State: successor, Interval: iv})
}

func (c *IDTMC) Edges(state int) []model.Edge {
	return c.edges[state]
}

// StateRewards is a per-state reward vector for an IDTMC.
type StateRewards []float64

func (r StateRewards) StateReward(state int) float64 {
	if state >= len(r) {
		return 0
	}
	return r[state]
}
