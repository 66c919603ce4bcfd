// Package aoratos is the caller-facing surface of the IPOMDP reachability
// engine: quantitative reach probabilities and expected rewards for
// observation-based controllers under interval uncertainty.
package aoratos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"

	"aoratos/internal/model"
	"aoratos/internal/product"
	"aoratos/internal/search"
	"aoratos/internal/stats"
	"aoratos/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultDBPath       = "aoratos.db"

	memoryStatesProbs   = 1
	memoryStatesRewards = 2
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	Seed         int64
	Logger       *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger
	rng    *rand.Rand
	seed   int64

	artifactsDir string
	initialized  bool
}

// Result is the outcome of one computation. Values holds one entry per
// original state; only the initial state's entry is computed, all others are
// zero.
type Result struct {
	RunID  string
	Value  float64
	Values []float64
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		rng:          rand.New(rand.NewSource(opts.Seed)),
		seed:         opts.Seed,
		artifactsDir: artifactsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// ComputeReachProbs computes the optimal probability of reaching target
// while staying in remain (nil means anywhere), from the initial state,
// under a memoryless observation-based controller.
func (c *Client) ComputeReachProbs(ctx context.Context, ip model.IPOMDP, remain, target *bitset.BitSet, minMax model.MinMax) (Result, error) {
	if ip == nil {
		return Result{}, errors.New("model is required")
	}
	if target == nil {
		return Result{}, errors.New("target set is required")
	}

	prod, err := product.Build(ip, nil, remain, target, memoryStatesProbs)
	if err != nil {
		return Result{}, err
	}

	cfg := search.Config{Rand: c.rng, Logger: c.logger}
	value, err := search.MultiStart(ctx, prod, nil, prod.Remain, prod.Target, minMax, cfg)
	if err != nil {
		return Result{}, err
	}

	return c.finishRun(ctx, ip, minMax, model.RunKindReachProbs, memoryStatesProbs, value)
}

// ComputeUntilProbs is reachability with a remain constraint; it is the
// same computation as ComputeReachProbs.
func (c *Client) ComputeUntilProbs(ctx context.Context, ip model.IPOMDP, remain, target *bitset.BitSet, minMax model.MinMax) (Result, error) {
	return c.ComputeReachProbs(ctx, ip, remain, target, minMax)
}

// ComputeReachRewards computes the optimal expected cumulative reward until
// the target set is reached, under a two-memory-state observation-based
// controller.
func (c *Client) ComputeReachRewards(ctx context.Context, ip model.IPOMDP, rewards model.Rewards, target *bitset.BitSet, minMax model.MinMax) (Result, error) {
	if ip == nil {
		return Result{}, errors.New("model is required")
	}
	if rewards == nil {
		return Result{}, errors.New("reward structure is required")
	}
	if target == nil {
		return Result{}, errors.New("target set is required")
	}

	prod, err := product.Build(ip, rewards, nil, target, memoryStatesRewards)
	if err != nil {
		return Result{}, err
	}

	cfg := search.Config{Rand: c.rng, Logger: c.logger}
	value, err := search.Generational(ctx, prod, prod.Rewards, prod.Remain, prod.Target, minMax, cfg)
	if err != nil {
		return Result{}, err
	}

	return c.finishRun(ctx, ip, minMax, model.RunKindReachRewards, memoryStatesRewards, value)
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx, req.Limit)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return "", errors.New("export requires run id or latest")
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = "exports"
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, outDir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(exportedDir), nil
}

func (c *Client) finishRun(ctx context.Context, ip model.IPOMDP, minMax model.MinMax, kind string, memoryStates int, value float64) (Result, error) {
	values := make([]float64, ip.NumStates())
	values[ip.FirstInitialState()] = value

	runID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if err := c.ensureStore(ctx); err != nil {
		return Result{}, err
	}
	record := model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:           runID,
		Kind:         kind,
		MinMax:       minMax,
		NumStates:    ip.NumStates(),
		Seed:         c.seed,
		Value:        value,
		Converged:    true,
		CreatedAtUTC: now,
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return Result{}, fmt.Errorf("save run %s: %w", runID, err)
	}

	if _, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        runID,
			Kind:         kind,
			Max:          minMax.Max,
			MaxUnc:       minMax.MaxUnc,
			MemoryStates: memoryStates,
			NumStates:    ip.NumStates(),
			Seed:         c.seed,
		},
		Values: values,
		Value:  value,
	}); err != nil {
		return Result{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Kind:         kind,
		NumStates:    ip.NumStates(),
		Seed:         c.seed,
		Value:        value,
		CreatedAtUTC: now,
	}); err != nil {
		return Result{}, err
	}

	return Result{RunID: runID, Value: value, Values: values}, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}
