// Package search wraps the local SCP iteration in the two outer strategies:
// independent multi-start restarts and generational pruning. Both exist to
// escape poor local optima; neither changes what a converged point means.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"aoratos/internal/lp"
	"aoratos/internal/model"
	"aoratos/internal/scp"
	"aoratos/internal/simple"
)

const (
	defaultAttempts        = 10
	defaultPopulationSize  = 32
	defaultPruneIterations = 4
)

// Config controls the outer search. Rand drives the per-point gadget
// permutations and is required.
type Config struct {
	Rand            *rand.Rand
	Logger          *slog.Logger
	Attempts        int
	PopulationSize  int
	PruneIterations int
}

func (cfg Config) validate() error {
	if cfg.Rand == nil {
		return fmt.Errorf("random source is required")
	}
	return nil
}

func (cfg Config) attempts() int {
	if cfg.Attempts > 0 {
		return cfg.Attempts
	}
	return defaultAttempts
}

func (cfg Config) populationSize() int {
	if cfg.PopulationSize > 0 {
		return cfg.PopulationSize
	}
	return defaultPopulationSize
}

func (cfg Config) pruneIterations() int {
	if cfg.PruneIterations > 0 {
		return cfg.PruneIterations
	}
	return defaultPruneIterations
}

func newPoint(env *lp.Env, ip model.IPOMDP, rewards model.Rewards, remain, target *bitset.BitSet, minMax model.MinMax, rng *rand.Rand) (*scp.Point, error) {
	t, err := simple.NewTransform(ip, rewards, true, rng)
	if err != nil {
		return nil, err
	}
	spec := simple.NewSpecification(t, rewards != nil, remain, target, minMax)
	return scp.NewPoint(env, t, spec, scp.DefaultParameters())
}

// MultiStart converges independent solution points, each built on a freshly
// shuffled gadget permutation, and returns the best initial-state value.
func MultiStart(ctx context.Context, ip model.IPOMDP, rewards model.Rewards, remain, target *bitset.BitSet, minMax model.MinMax, cfg Config) (float64, error) {
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	env := lp.NewEnv(cfg.Logger)

	var best *scp.Point
	for i := 0; i < cfg.attempts(); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		point, err := newPoint(env, ip, rewards, remain, target, minMax, cfg.Rand)
		if err != nil {
			return 0, err
		}
		point.Converge()

		sign := point.Spec.ObjectiveSign()
		if best == nil || sign*point.Objective() < sign*best.Objective() {
			best = point
		}
	}
	return best.Value(), nil
}

// Generational maintains a population of solution points, advances each a
// few SCP steps per round, prunes the worst half, and fully converges the
// survivor.
func Generational(ctx context.Context, ip model.IPOMDP, rewards model.Rewards, remain, target *bitset.BitSet, minMax model.MinMax, cfg Config) (float64, error) {
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	env := lp.NewEnv(cfg.Logger)

	population := make([]*scp.Point, 0, cfg.populationSize())
	for i := 0; i < cfg.populationSize(); i++ {
		point, err := newPoint(env, ip, rewards, remain, target, minMax, cfg.Rand)
		if err != nil {
			return 0, err
		}
		population = append(population, point)
	}

	for len(population) > 1 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		for _, point := range population {
			for it := 0; it < cfg.pruneIterations(); it++ {
				point.Improve()
			}
		}

		sort.SliceStable(population, func(i, j int) bool {
			return population[i].Spec.ObjectiveSign()*population[i].Objective() <
				population[j].Spec.ObjectiveSign()*population[j].Objective()
		})
		drop := (len(population) + 1) / 2
		population = population[:len(population)-drop]
	}

	survivor := population[0]
	survivor.Converge()
	return survivor.Value(), nil
}
