package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/orbital-federates/internal/ofs"
)

type countingExecutor struct {
	calls int
}

func (c *countingExecutor) Execute(_ context.Context, p ofs.Params) ([]ofs.Result, error) {
	c.calls++
	return []ofs.Result{
		{Federate: "P1", InitialCash: 1000, FinalCash: 1000 + float64(p.Seed)},
		{Federate: "P2", InitialCash: 1000, FinalCash: 900},
	}, nil
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "results.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKeyDependsOnParams(t *testing.T) {
	a, err := Key(ofs.Params{NumPlayers: 1, Seed: 1})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	b, _ := Key(ofs.Params{NumPlayers: 1, Seed: 1})
	c, _ := Key(ofs.Params{NumPlayers: 1, Seed: 2})
	if a != b {
		t.Fatalf("equal params produced different keys")
	}
	if a == c || len(a) != 64 {
		t.Fatalf("unexpected keys %s %s", a, c)
	}
}

func TestSaveAndLookup(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	p := ofs.Params{Elements: "1.GroundSta@SUR1,pSGL", NumPlayers: 1, NumTurns: 3, Seed: 5, Ops: "d6"}

	if _, ok, err := s.Lookup(ctx, p); err != nil || ok {
		t.Fatalf("Lookup before save = %v, %v", ok, err)
	}
	res := []ofs.Result{{Federate: "P1", InitialCash: 550, FinalCash: 800}}
	id, err := s.Save(ctx, "", p, res, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	run, ok, err := s.Lookup(ctx, p)
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if run.ID != id || run.Params != p || run.Elapsed != 1500*time.Millisecond {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(run.Results) != 1 || run.Results[0] != res[0] {
		t.Fatalf("unexpected results: %+v", run.Results)
	}
}

func TestCachedExecutesOnce(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	exec := &countingExecutor{}
	p := ofs.Params{NumPlayers: 2, NumTurns: 10, Seed: 7}

	first, hit, err := s.Cached(ctx, exec, p)
	if err != nil || hit {
		t.Fatalf("first Cached hit=%v err=%v", hit, err)
	}
	second, hit, err := s.Cached(ctx, exec, p)
	if err != nil || !hit {
		t.Fatalf("second Cached hit=%v err=%v", hit, err)
	}
	if exec.calls != 1 {
		t.Fatalf("executor calls = %d, want 1", exec.calls)
	}
	if first.ID != second.ID || second.Results[0].FinalCash != 1007 {
		t.Fatalf("cached run mismatch: %+v vs %+v", first, second)
	}

	if _, hit, _ := s.Cached(ctx, exec, ofs.Params{NumPlayers: 2, NumTurns: 10, Seed: 8}); hit {
		t.Fatalf("different seed served from cache")
	}
	if n, err := s.Count(ctx); err != nil || n != 2 {
		t.Fatalf("Count = %d, %v; want 2", n, err)
	}
}

func TestInMemoryStore(t *testing.T) {
	s, err := Open(InMemory)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	id, err := s.Save(context.Background(), "run-a", ofs.Params{NumPlayers: 1}, nil, 0)
	if err != nil || id != "run-a" {
		t.Fatalf("Save = %q, %v", id, err)
	}
	if n, _ := s.Count(context.Background()); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}
