package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
game:
  elements: "1.SmallSat@GEO1,VIS,oSGL 2.GroundSta@SUR1,oSGL"
  players: 2
  initial_cash: 5000
  fops: x50,25,6,a,1
batch:
  trials: 8
  concurrency: 4
solver:
  timeout: 2s
output:
  results_db: out/results.sqlite
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Game.NumPlayers != 2 || cfg.Game.InitialCash != 5000 || cfg.Game.Fops != "x50,25,6,a,1" {
		t.Fatalf("unexpected game: %+v", cfg.Game)
	}
	// untouched keys keep their defaults
	if cfg.Game.NumTurns != 24 || cfg.Game.Ops != "d6,a,1" || cfg.Logging.Level != "info" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Batch.Trials != 8 || cfg.Batch.Concurrency != 4 || cfg.Output.ResultsDB != "out/results.sqlite" {
		t.Fatalf("unexpected batch/output: %+v", cfg)
	}
	if d, err := cfg.SolverTimeout(); err != nil || d != 2*time.Second {
		t.Fatalf("SolverTimeout = %v, %v", d, err)
	}
}

func TestParseEmptyIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("empty config differs from Default")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		"game:\n  playerz: 2\n",
		"batch:\n  trials: 0\n",
		"batch:\n  concurrency: -1\n",
		"solver:\n  timeout: soon\n",
		"solver:\n  max_nodes: -5\n",
	} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("Parse(%q) err = %v, want ErrInvalidConfig", raw, err)
		}
	}
}

func TestLoadRoundTrip(t *testing.T) {
	want := Default()
	want.Game.Seed = 99
	want.Output.AuditLog = "audit.jsonl.zst"
	raw, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}
