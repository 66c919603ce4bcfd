// Command aoratosctl checks reachability queries on IPOMDP models described
// in JSON files and manages the recorded runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"aoratos/internal/model"
	aoratosapi "aoratos/pkg/aoratos"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "check":
		return runCheck(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type usageError string

func (e usageError) Error() string {
	return fmt.Sprintf("%s\n\nusage: aoratosctl <check|runs|export> [flags]", string(e))
}

// modelFile is the JSON input of the check command.
type modelFile struct {
	Model   model.ExplicitIPOMDP   `json:"model"`
	Rewards *model.ExplicitRewards `json:"rewards,omitempty"`
}

func runCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	modelPath := fs.String("model", "", "path to the model JSON file")
	targetFlag := fs.String("target", "", "comma-separated target state indices")
	remainFlag := fs.String("remain", "", "comma-separated remain state indices (default: all)")
	dir := fs.String("dir", "max", "controller objective: max or min")
	unc := fs.String("unc", "", "uncertainty direction: max or min (default: same as -dir)")
	reward := fs.Bool("reward", false, "compute expected rewards instead of probabilities")
	seed := fs.Int64("seed", 0, "random seed for the outer search")
	storeKind := fs.String("store", "", "run store backend: memory or sqlite")
	dbPath := fs.String("db", "", "sqlite database path")
	artifactsDir := fs.String("out", "", "artifacts directory")
	verbose := fs.Bool("v", false, "log engine diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *modelPath == "" {
		return usageError("check requires -model")
	}
	if *targetFlag == "" {
		return usageError("check requires -target")
	}

	input, err := loadModelFile(*modelPath)
	if err != nil {
		return err
	}
	if err := input.Model.Validate(); err != nil {
		return fmt.Errorf("invalid model %s: %w", *modelPath, err)
	}

	minMax, err := parseMinMax(*dir, *unc)
	if err != nil {
		return err
	}
	target, err := parseStateSet(*targetFlag, input.Model.NumStates())
	if err != nil {
		return fmt.Errorf("parse -target: %w", err)
	}
	var remain *bitset.BitSet
	if *remainFlag != "" {
		remain, err = parseStateSet(*remainFlag, input.Model.NumStates())
		if err != nil {
			return fmt.Errorf("parse -remain: %w", err)
		}
	}

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	client, err := aoratosapi.New(aoratosapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: *artifactsDir,
		Seed:         *seed,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	var result aoratosapi.Result
	if *reward {
		if input.Rewards == nil {
			return fmt.Errorf("model file %s carries no reward structure", *modelPath)
		}
		result, err = client.ComputeReachRewards(ctx, &input.Model, input.Rewards, target, minMax)
	} else {
		result, err = client.ComputeReachProbs(ctx, &input.Model, remain, target, minMax)
	}
	if err != nil {
		return err
	}

	fmt.Printf("run %s\n", result.RunID)
	fmt.Printf("value at state %d: %g\n", input.Model.FirstInitialState(), result.Value)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum number of runs to list")
	storeKind := fs.String("store", "", "run store backend: memory or sqlite")
	dbPath := fs.String("db", "", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := aoratosapi.New(aoratosapi.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer client.Close()

	runs, err := client.Runs(ctx, aoratosapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  states=%d  value=%g  %s\n", r.ID, r.Kind, r.NumStates, r.Value, r.CreatedAtUTC)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run", "", "run id to export")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", "", "destination directory")
	artifactsDir := fs.String("artifacts", "", "artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := aoratosapi.New(aoratosapi.Options{ArtifactsDir: *artifactsDir})
	if err != nil {
		return err
	}
	defer client.Close()

	dir, err := client.Export(ctx, aoratosapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", dir)
	return nil
}

func loadModelFile(path string) (modelFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return modelFile{}, err
	}
	var input modelFile
	if err := json.Unmarshal(data, &input); err != nil {
		return modelFile{}, fmt.Errorf("decode model %s: %w", path, err)
	}
	return input, nil
}

func parseMinMax(dir, unc string) (model.MinMax, error) {
	var mm model.MinMax
	switch dir {
	case "max":
		mm.Max = true
	case "min":
	default:
		return model.MinMax{}, usageError(fmt.Sprintf("invalid -dir: %s", dir))
	}
	switch unc {
	case "":
		mm.MaxUnc = mm.Max
	case "max":
		mm.MaxUnc = true
	case "min":
	default:
		return model.MinMax{}, usageError(fmt.Sprintf("invalid -unc: %s", unc))
	}
	return mm, nil
}

func parseStateSet(list string, numStates int) (*bitset.BitSet, error) {
	out := bitset.New(uint(numStates))
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid state index %q", part)
		}
		if s < 0 || s >= numStates {
			return nil, fmt.Errorf("state index out of range: %d", s)
		}
		out.Set(uint(s))
	}
	return out, nil
}
