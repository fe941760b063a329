// Package montecarlo fans a single company profile out into many independent
// scenario runs and collects the results in run order.
package montecarlo

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/sim"
)

// ErrInvalidParameter is returned for non-positive iteration or period counts.
var ErrInvalidParameter = sim.ErrInvalidParameter

// pcgStream is the fixed second PCG word. Only the first word varies per run.
const pcgStream = 0x9e3779b97f4a7c15

// Options control a batch.
type Options struct {
	Iterations int
	Periods    int
	Seed       uint64
	Workers    int // <= 0 means runtime.GOMAXPROCS(0)

	// Sim is passed through to every run.
	Sim sim.Options

	// Progress, when set, is called after each run with the number of runs
	// completed so far. It is called from worker goroutines.
	Progress func(completed int)
}

// Batch is the collected output of a batch. Runs are in run-index order;
// Indices[k] is the run index of Runs[k]. A complete batch has
// Indices[k] == k for every k.
type Batch struct {
	Seed      uint64            `json:"seed"`
	Requested int               `json:"requested"`
	Runs      []model.RunResult `json:"runs"`
	Indices   []int             `json:"indices"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// Complete reports whether every requested run finished.
func (b *Batch) Complete() bool {
	return len(b.Runs) == b.Requested
}

// RunSource returns the random source for run i of a batch seeded with seed.
// A run's stream depends only on the batch seed and its own index, never on
// batch size or scheduling.
func RunSource(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed^uint64(i), pcgStream))
}

// Run executes opts.Iterations independent simulations of p. Runs are
// scheduled across a bounded worker pool; each writes only its own result
// slot, so the output is identical for any worker count.
//
// Cancellation is observed between runs. A cancelled batch returns the runs
// that completed, in index order, together with an error wrapping the
// context's error.
func Run(ctx context.Context, p *model.CompanyProfile, opts Options) (*Batch, error) {
	if p == nil {
		return nil, eris.Wrap(ErrInvalidParameter, "montecarlo: profile is required")
	}
	if opts.Iterations <= 0 {
		return nil, eris.Wrapf(ErrInvalidParameter, "montecarlo: iterations must be positive, got %d", opts.Iterations)
	}
	if opts.Periods <= 0 {
		return nil, eris.Wrapf(ErrInvalidParameter, "montecarlo: periods must be positive, got %d", opts.Periods)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, opts.Iterations)

	log := zap.L().With(
		zap.Int("iterations", opts.Iterations),
		zap.Int("periods", opts.Periods),
		zap.Uint64("seed", opts.Seed),
		zap.Int("workers", workers),
	)
	log.Debug("montecarlo: batch starting")
	start := time.Now()

	results := make([]model.RunResult, opts.Iterations)
	done := make([]bool, opts.Iterations)
	var completed atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)

	for i := 0; i < opts.Iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := sim.SimulateWithOptions(p, opts.Periods, RunSource(opts.Seed, i), opts.Sim)
			if err != nil {
				return eris.Wrapf(err, "montecarlo: run %d", i)
			}
			results[i] = res
			done[i] = true
			n := completed.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &Batch{
		Seed:      opts.Seed,
		Requested: opts.Iterations,
		Runs:      make([]model.RunResult, 0, completed.Load()),
		Indices:   make([]int, 0, completed.Load()),
		Elapsed:   time.Since(start),
	}
	for i, ok := range done {
		if ok {
			batch.Runs = append(batch.Runs, results[i])
			batch.Indices = append(batch.Indices, i)
		}
	}

	if err := ctx.Err(); err != nil && !batch.Complete() {
		log.Warn("montecarlo: batch cancelled",
			zap.Int("completed", len(batch.Runs)),
			zap.Error(err),
		)
		return batch, eris.Wrapf(err, "montecarlo: cancelled after %d of %d runs", len(batch.Runs), opts.Iterations)
	}

	log.Debug("montecarlo: batch complete", zap.Duration("elapsed", batch.Elapsed))
	return batch, nil
}
