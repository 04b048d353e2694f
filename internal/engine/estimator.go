package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/pefman/critsim/internal/models"
)

// DefaultBatchSize is the number of trials between progress callbacks.
const DefaultBatchSize = 1000

// ProgressFunc observes a run after each batch. It cannot change the result.
type ProgressFunc func(models.Progress)

type options struct {
	rng      *rand.Rand
	batch    int
	progress ProgressFunc
}

// Option configures Estimate.
type Option func(*options)

// WithSeed makes the run reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) { o.rng = seededRNG(seed) }
}

// WithRand uses r as the random source. r must not be shared with a
// concurrently running estimate.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithBatchSize sets trials per batch; values below 1 keep the default.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.batch = n
		}
	}
}

// WithProgress registers fn to be called after every batch.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// Estimate runs req.Trials independent trials and returns the fraction whose
// total damage is strictly greater than req.TargetDamage.
//
// Trials are processed in batches; ctx is checked before each batch and a
// cancelled run returns ctx.Err() with no result.
func Estimate(ctx context.Context, req models.SimulationRequest, opts ...Option) (models.SimulationResult, error) {
	if err := req.Validate(); err != nil {
		return models.SimulationResult{}, err
	}
	o := options{batch: DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	ro := NewRoller(o.rng)

	start := time.Now()
	res := models.SimulationResult{Trials: req.Trials}
	sum := 0.0
	done := 0
	for done < req.Trials {
		if err := ctx.Err(); err != nil {
			return models.SimulationResult{}, err
		}
		end := min(done+o.batch, req.Trials)
		for ; done < end; done++ {
			total := ro.Trial(req.Patterns)
			if done == 0 || total < res.MinDamage {
				res.MinDamage = total
			}
			if done == 0 || total > res.MaxDamage {
				res.MaxDamage = total
			}
			sum += total
			if total > req.TargetDamage {
				res.Successes++
			}
		}
		if o.progress != nil {
			o.progress(models.Progress{
				Trials:      done,
				Successes:   res.Successes,
				Probability: float64(res.Successes) / float64(done),
			})
		}
	}
	res.Probability = float64(res.Successes) / float64(req.Trials)
	res.MeanDamage = sum / float64(req.Trials)
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res, nil
}
