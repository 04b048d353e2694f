// Command critsim estimates how often a list of attack patterns beats a
// damage target, either locally or through a running critsim API.
//
//	critsim -f scenario.yaml [-server http://localhost:8080] [-seed 42] [-trials 100000] [-target 7000000]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/pefman/critsim/internal/api"
	"github.com/pefman/critsim/internal/engine"
	"github.com/pefman/critsim/internal/game"
	"github.com/pefman/critsim/internal/logger"
	"github.com/pefman/critsim/internal/models"
	"github.com/pefman/critsim/internal/scenario"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("critsim failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	file      string
	server    string
	seed      int64
	trials    int
	target    float64
	batch     int
	quiet     bool
	trace     bool
	logLevel  string
	overrides map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("critsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.file, "f", "scenario.yaml", "scenario file (YAML)")
	fs.StringVar(&o.server, "server", "", "run through the critsim API at this base URL instead of locally")
	fs.Int64Var(&o.seed, "seed", 0, "random seed (overrides the file)")
	fs.IntVar(&o.trials, "trials", 0, "number of trials (overrides the file)")
	fs.Float64Var(&o.target, "target", 0, "target damage (overrides the file)")
	fs.IntVar(&o.batch, "batch", 0, "trials between progress lines")
	fs.BoolVar(&o.quiet, "q", false, "print only the final result")
	fs.BoolVar(&o.trace, "trace", false, "print the rolls of a single trial instead of estimating")
	fs.StringVar(&o.logLevel, "log-level", "WARN", "log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return o, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	o.overrides = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.overrides[f.Name] = true })
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	log, closer, err := logger.New(logger.Config{Level: o.logLevel})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(log)

	sc, err := scenario.Load(o.file)
	if err != nil {
		return err
	}
	if o.overrides["seed"] {
		sc.Seed = &o.seed
	}
	if o.overrides["trials"] {
		sc.Trials = o.trials
	}
	if o.overrides["target"] {
		sc.TargetDamage = o.target
	}
	if o.overrides["batch"] {
		sc.BatchSize = o.batch
	}

	req := sc.Request()
	if err := req.Validate(); err != nil {
		if errors.Is(err, models.ErrEmptyDataset) {
			log.Warn("nothing to simulate", "file", o.file)
			fmt.Fprintln(stdout, "warning: add at least one attack pattern")
			return nil
		}
		return err
	}
	log.Debug("scenario loaded", "file", o.file, "patterns", len(req.Patterns), "trials", req.Trials)

	if o.trace {
		tr, err := traceOne(ctx, o.server, sc)
		if err != nil {
			return err
		}
		for _, line := range tr.Logs {
			fmt.Fprintln(stdout, line)
		}
		return nil
	}

	progress := func(p models.Progress) {
		if !o.quiet {
			fmt.Fprintf(stdout, "current success probability: %.2f%% (%d trials)\n", p.Probability*100, p.Trials)
		}
	}

	var res models.SimulationResult
	if o.server != "" {
		res, err = runRemote(ctx, o.server, sc, progress)
	} else {
		res, err = runLocal(ctx, sc, progress)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "final result: %.2f%%\n", res.Probability*100)
	return nil
}

func runLocal(ctx context.Context, sc scenario.Scenario, progress engine.ProgressFunc) (models.SimulationResult, error) {
	opts := []engine.Option{engine.WithBatchSize(sc.BatchSize), engine.WithProgress(progress)}
	if sc.Seed != nil {
		opts = append(opts, engine.WithSeed(*sc.Seed))
	}
	return engine.Estimate(ctx, sc.Request(), opts...)
}

func runRemote(ctx context.Context, baseURL string, sc scenario.Scenario, progress func(models.Progress)) (models.SimulationResult, error) {
	c := api.NewClient(baseURL)
	if err := c.Health(ctx); err != nil {
		return models.SimulationResult{}, fmt.Errorf("server %s not reachable: %w", baseURL, err)
	}
	return c.Stream(ctx, api.SimulateRequest{
		Patterns:     sc.Patterns,
		TargetDamage: sc.TargetDamage,
		Trials:       sc.Trials,
		Seed:         sc.Seed,
		BatchSize:    sc.BatchSize,
	}, progress)
}

func traceOne(ctx context.Context, baseURL string, sc scenario.Scenario) (game.TrialTrace, error) {
	if baseURL != "" {
		return api.NewClient(baseURL).Trace(ctx, api.SimulateRequest{
			Patterns:     sc.Patterns,
			TargetDamage: sc.TargetDamage,
			Seed:         sc.Seed,
		})
	}
	var rng *rand.Rand
	if sc.Seed != nil {
		rng = rand.New(rand.NewSource(*sc.Seed))
	}
	return game.TraceTrial(engine.NewRoller(rng), sc.Patterns, sc.TargetDamage)
}
