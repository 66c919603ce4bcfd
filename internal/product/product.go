// Package product builds the synchronous product between an IPOMDP and a
// finite-state controller with a fixed number of memory states.
package product

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"aoratos/internal/model"
)

// Product is the IPOMDP x FSC product. It implements model.IPOMDP over the
// augmented state space S x {0..k-1}; observations are augmented the same
// way so that memory is part of what the controller can see.
type Product struct {
	Memory       int
	Initial      int
	Choices      [][][]model.Edge
	Observations []int
	Remain       *bitset.BitSet
	Target       *bitset.BitSet
	Rewards      *Rewards
}

// Rewards is the product reward structure; nil signals a probability
// specification.
type Rewards struct {
	State      []float64
	Transition [][]float64
}

func (r *Rewards) StateReward(state int) float64 {
	return r.State[state]
}

func (r *Rewards) TransitionReward(state, choice int) float64 {
	return r.Transition[state][choice]
}

// Build constructs the product. The choice (a, m') is encoded as a*k + m':
// the first component picks the IPOMDP action, the second becomes the next
// memory state regardless of the current one. A nil remain set means the
// controller may remain anywhere.
func Build(ip model.IPOMDP, rewards model.Rewards, remain, target *bitset.BitSet, memory int) (*Product, error) {
	if memory <= 0 {
		return nil, fmt.Errorf("memory size must be > 0, got %d", memory)
	}
	k := memory
	n := ip.NumStates()
	pn := n * k

	p := &Product{
		Memory:       k,
		Initial:      ip.FirstInitialState() * k,
		Choices:      make([][][]model.Edge, pn),
		Observations: make([]int, pn),
		Remain:       bitset.New(uint(pn)),
		Target:       bitset.New(uint(pn)),
	}
	if rewards != nil {
		p.Rewards = &Rewards{
			State:      make([]float64, pn),
			Transition: make([][]float64, pn),
		}
	}

	for s := 0; s < n; s++ {
		for m := 0; m < k; m++ {
			ps := s*k + m

			if remain == nil || remain.Test(uint(s)) {
				p.Remain.Set(uint(ps))
			}
			if target.Test(uint(s)) {
				p.Target.Set(uint(ps))
			}
			if rewards != nil {
				p.Rewards.State[ps] = rewards.StateReward(s)
				p.Rewards.Transition[ps] = make([]float64, ip.NumChoices(s)*k)
			}

			choices := make([][]model.Edge, ip.NumChoices(s)*k)
			for a := 0; a < ip.NumChoices(s); a++ {
				edges := ip.Transitions(s, a)
				for mNext := 0; mNext < k; mNext++ {
					dist := make([]model.Edge, len(edges))
					for i, e := range edges {
						dist[i] = model.Edge{State: e.State*k + mNext, Interval: e.Interval}
					}
					choices[a*k+mNext] = dist
					if rewards != nil {
						p.Rewards.Transition[ps][a*k+mNext] = rewards.TransitionReward(s, a)
					}
				}
			}
			p.Choices[ps] = choices
		}
	}

	// Observations are assigned after all transitions so that product states
	// sharing an observation also share the same action set.
	for s := 0; s < n; s++ {
		for m := 0; m < k; m++ {
			p.Observations[s*k+m] = ip.Observation(s)*k + m
		}
	}

	return p, nil
}

func (p *Product) NumStates() int {
	return len(p.Choices)
}

func (p *Product) FirstInitialState() int {
	return p.Initial
}

func (p *Product) NumChoices(state int) int {
	return len(p.Choices[state])
}

func (p *Product) Transitions(state, choice int) []model.Edge {
	return p.Choices[state][choice]
}

func (p *Product) Observation(state int) int {
	return p.Observations[state]
}
