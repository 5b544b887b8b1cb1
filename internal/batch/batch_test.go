package batch

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/signalsfoundry/orbital-federates/internal/ofs"
)

type fakeExecutor struct {
	running, peak atomic.Int32
	failSeed      int64
}

func (f *fakeExecutor) Execute(ctx context.Context, p ofs.Params) ([]ofs.Result, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		old := f.peak.Load()
		if n <= old || f.peak.CompareAndSwap(old, n) {
			break
		}
	}
	if p.Seed == f.failSeed {
		return nil, errors.New("boom")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []ofs.Result{
		{Federate: "P1", InitialCash: 100, FinalCash: float64(p.Seed)},
		{Federate: "P2", InitialCash: 100, FinalCash: 50},
	}, nil
}

func TestRunOrdersTrialsAndSummarizes(t *testing.T) {
	exec := &fakeExecutor{failSeed: -1}
	r := NewRunner(exec, WithConcurrency(2))
	report, err := r.Run(context.Background(), ofs.Params{NumPlayers: 2}, Seeds(1, 5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ID == "" {
		t.Fatalf("report has no id")
	}
	for i, trial := range report.Trials {
		if trial.Seed != int64(i+1) || trial.Results[0].FinalCash != float64(i+1) {
			t.Fatalf("trial %d out of order: %+v", i, trial)
		}
	}
	if peak := exec.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
	if len(report.Stats) != 2 || report.Stats[0].Federate != "P1" {
		t.Fatalf("unexpected stats: %+v", report.Stats)
	}
	s := report.Stats[0]
	if s.Trials != 5 || s.Mean != 3 || s.Min != 1 || s.Max != 5 {
		t.Fatalf("unexpected P1 stats: %+v", s)
	}
	if math.Abs(s.StdDev-math.Sqrt(2.5)) > 1e-9 {
		t.Fatalf("stddev = %v, want sqrt(2.5)", s.StdDev)
	}
	if report.Stats[1].StdDev != 0 || report.Stats[1].Mean != 50 {
		t.Fatalf("unexpected P2 stats: %+v", report.Stats[1])
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	r := NewRunner(&fakeExecutor{failSeed: 3}, WithConcurrency(1))
	if _, err := r.Run(context.Background(), ofs.Params{}, Seeds(1, 5)); err == nil {
		t.Fatalf("expected failure from seed 3")
	}
}

func TestRunRequiresSeeds(t *testing.T) {
	r := NewRunner(&fakeExecutor{})
	if _, err := r.Run(context.Background(), ofs.Params{}, nil); !errors.Is(err, ErrNoSeeds) {
		t.Fatalf("err = %v, want ErrNoSeeds", err)
	}
}

func TestRunWithRealGames(t *testing.T) {
	g, err := ofs.NewGame()
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	report, err := NewRunner(g, WithConcurrency(3)).Run(context.Background(), ofs.Params{
		Elements:   "1.SmallSat@GEO1,VIS,pSGL 1.GroundSta@SUR1,pSGL",
		NumPlayers: 1,
		NumTurns:   6,
		Ops:        "d3",
	}, Seeds(10, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Stats) != 1 || report.Stats[0].Trials != 3 {
		t.Fatalf("unexpected stats: %+v", report.Stats)
	}
}
