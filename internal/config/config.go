// Package config loads YAML run configurations for the ofs command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/orbital-federates/internal/ofs"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is a complete run description.
type Config struct {
	Game    ofs.Params `yaml:"game"`
	Catalog string     `yaml:"catalog"`
	Batch   Batch      `yaml:"batch"`
	Solver  Solver     `yaml:"solver"`
	Output  Output     `yaml:"output"`
	Logging Logging    `yaml:"logging"`
}

// Batch repeats the game over consecutive seeds starting at Game.Seed.
type Batch struct {
	Trials      int `yaml:"trials"`
	Concurrency int `yaml:"concurrency"`
}

type Solver struct {
	Timeout  string `yaml:"timeout"`
	MaxNodes int    `yaml:"max_nodes"`
}

type Output struct {
	AuditLog    string `yaml:"audit_log"`
	ResultsDB   string `yaml:"results_db"`
	MetricsAddr string `yaml:"metrics_addr"`
	JSON        bool   `yaml:"json"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Game: ofs.Params{
			Elements:   "1.SmallSat@MEO6,VIS,SAR,pSGL 1.GroundSta@SUR1,pSGL",
			NumPlayers: 1,
			NumTurns:   24,
			Ops:        "d6,a,1",
			Fops:       "",
			Sectors:    ofs.DefaultSectors,
		},
		Batch:   Batch{Trials: 1},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads path over Default.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw over Default. Unknown keys are rejected.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks fields that cannot be checked while building a game.
func (c Config) Validate() error {
	if c.Batch.Trials < 1 {
		return fmt.Errorf("%w: batch.trials must be positive", ErrInvalidConfig)
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("%w: batch.concurrency must not be negative", ErrInvalidConfig)
	}
	if c.Solver.MaxNodes < 0 {
		return fmt.Errorf("%w: solver.max_nodes must not be negative", ErrInvalidConfig)
	}
	if _, err := c.SolverTimeout(); err != nil {
		return err
	}
	return nil
}

// SolverTimeout parses Solver.Timeout; empty means no limit.
func (c Config) SolverTimeout() (time.Duration, error) {
	if c.Solver.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Solver.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: solver.timeout %q", ErrInvalidConfig, c.Solver.Timeout)
	}
	return d, nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
