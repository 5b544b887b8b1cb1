// Package batch runs one game design over many seeds concurrently and
// summarises the outcomes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/internal/ofs"
)

var ErrNoSeeds = errors.New("batch has no seeds")

// Executor runs a single game.
type Executor interface {
	Execute(ctx context.Context, p ofs.Params) ([]ofs.Result, error)
}

// Trial is the outcome of one seed.
type Trial struct {
	Seed    int64
	Results []ofs.Result
}

// Stats summarises one federate's final cash across trials.
type Stats struct {
	Federate string
	Trials   int
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
}

// Report is the outcome of a batch.
type Report struct {
	ID     string
	Trials []Trial
	Stats  []Stats
}

// Runner fans trials out over a bounded number of workers.
type Runner struct {
	exec        Executor
	concurrency int
	log         logging.Logger
}

type Option func(*Runner)

// WithConcurrency bounds simultaneous trials. Values below one mean
// GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

func WithLogger(l logging.Logger) Option {
	return func(r *Runner) { r.log = logging.OrNoop(l) }
}

func NewRunner(exec Executor, opts ...Option) *Runner {
	r := &Runner{exec: exec, log: logging.Noop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency < 1 {
		r.concurrency = runtime.GOMAXPROCS(0)
	}
	return r
}

// Seeds returns n consecutive seeds starting at first.
func Seeds(first int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = first + int64(i)
	}
	return out
}

// Run executes base once per seed. The first failing trial cancels the rest.
// Trials are reported in seed order.
func (r *Runner) Run(ctx context.Context, base ofs.Params, seeds []int64) (*Report, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	report := &Report{ID: uuid.New().String(), Trials: make([]Trial, len(seeds))}
	log := r.log.With(logging.String("batch_id", report.ID))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	var mu sync.Mutex
	done := 0
	for i, seed := range seeds {
		g.Go(func() error {
			p := base
			p.Seed = seed
			res, err := r.exec.Execute(gctx, p)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			report.Trials[i] = Trial{Seed: seed, Results: res}
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			log.Debug(gctx, "trial finished", logging.Any("seed", seed), logging.Int("done", n), logging.Int("total", len(seeds)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(report.Trials, func(i, j int) bool { return report.Trials[i].Seed < report.Trials[j].Seed })
	report.Stats = Summarize(report.Trials)
	log.Info(ctx, "batch finished", logging.Int("trials", len(seeds)), logging.Int("concurrency", r.concurrency))
	return report, nil
}

// Summarize computes per-federate statistics of final cash, in the order
// federates first appear.
func Summarize(trials []Trial) []Stats {
	var order []string
	values := make(map[string][]float64)
	for _, t := range trials {
		for _, res := range t.Results {
			if _, ok := values[res.Federate]; !ok {
				order = append(order, res.Federate)
			}
			values[res.Federate] = append(values[res.Federate], res.FinalCash)
		}
	}
	out := make([]Stats, 0, len(order))
	for _, name := range order {
		vs := values[name]
		s := Stats{Federate: name, Trials: len(vs), Min: math.Inf(1), Max: math.Inf(-1)}
		for _, v := range vs {
			s.Mean += v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		s.Mean /= float64(len(vs))
		if len(vs) > 1 {
			var ss float64
			for _, v := range vs {
				ss += (v - s.Mean) * (v - s.Mean)
			}
			s.StdDev = math.Sqrt(ss / float64(len(vs)-1))
		}
		out = append(out, s)
	}
	return out
}
