package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/orbital-federates/internal/auditlog"
	"github.com/signalsfoundry/orbital-federates/internal/batch"
	"github.com/signalsfoundry/orbital-federates/internal/config"
	"github.com/signalsfoundry/orbital-federates/internal/logging"
	"github.com/signalsfoundry/orbital-federates/internal/observability"
	"github.com/signalsfoundry/orbital-federates/internal/ofs"
	"github.com/signalsfoundry/orbital-federates/internal/operations"
	"github.com/signalsfoundry/orbital-federates/internal/results"
	"github.com/signalsfoundry/orbital-federates/kb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "ofs:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: stderr})
	tracing := observability.TracingConfigFromEnv()
	tracing.Game = observability.GameLabels{
		Elements: cfg.Game.Elements,
		Ops:      cfg.Game.Ops,
		Fops:     cfg.Game.Fops,
		Seed:     cfg.Game.Seed,
		Trials:   cfg.Batch.Trials,
	}
	shutdown, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	reg := prometheus.NewRegistry()
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("init simulation metrics: %w", err)
	}
	solverMetrics, err := observability.NewSolverCollector(reg)
	if err != nil {
		return fmt.Errorf("init solver metrics: %w", err)
	}
	if cfg.Output.MetricsAddr != "" {
		srv := serveMetrics(cfg.Output.MetricsAddr, simMetrics.Handler(), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	timeout, _ := cfg.SolverTimeout()
	gameOpts := []ofs.GameOption{
		ofs.WithLogger(log),
		ofs.WithRecorder(simMetrics),
		ofs.WithOperationsOptions(
			operations.WithLogger(log),
			operations.WithRecorder(solverMetrics),
			operations.WithTimeout(timeout),
			operations.WithMaxNodes(cfg.Solver.MaxNodes),
		),
	}
	if cfg.Catalog != "" {
		raw, err := os.ReadFile(cfg.Catalog)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
		base, err := kb.Load(raw)
		if err != nil {
			return err
		}
		gameOpts = append(gameOpts, ofs.WithKnowledgeBase(base))
	}
	game, err := ofs.NewGame(gameOpts...)
	if err != nil {
		return err
	}

	var store *results.Store
	if cfg.Output.ResultsDB != "" {
		if store, err = results.Open(cfg.Output.ResultsDB); err != nil {
			return fmt.Errorf("open results db: %w", err)
		}
		defer store.Close()
	}

	if cfg.Batch.Trials > 1 {
		if cfg.Output.AuditLog != "" {
			log.Warn(ctx, "audit log is only written for single runs", logging.String("path", cfg.Output.AuditLog))
		}
		var exec batch.Executor = game
		if store != nil {
			exec = cachedExecutor{store: store, game: game}
		}
		report, err := batch.NewRunner(exec, batch.WithConcurrency(cfg.Batch.Concurrency), batch.WithLogger(log)).
			Run(ctx, cfg.Game, batch.Seeds(cfg.Game.Seed, cfg.Batch.Trials))
		if err != nil {
			return err
		}
		return printReport(stdout, report, cfg.Output.JSON)
	}

	out, err := single(ctx, cfg, game, store, log)
	if err != nil {
		return err
	}
	return printResults(stdout, out, cfg.Output.JSON)
}

type singleResult struct {
	RunID   string        `json:"run_id"`
	Cached  bool          `json:"cached"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Results []ofs.Result  `json:"results"`
}

func single(ctx context.Context, cfg config.Config, game *ofs.Game, store *results.Store, log logging.Logger) (*singleResult, error) {
	if store != nil {
		if cached, ok, err := store.Lookup(ctx, cfg.Game); err != nil {
			return nil, err
		} else if ok {
			log.Info(ctx, "served from results cache", logging.String("run_id", cached.ID))
			return &singleResult{RunID: cached.ID, Cached: true, Elapsed: cached.Elapsed, Results: cached.Results}, nil
		}
	}

	r, err := game.Build(cfg.Game)
	if err != nil {
		return nil, err
	}
	runID := results.NewRunID()
	if cfg.Output.AuditLog != "" {
		audit, err := auditlog.Create(cfg.Output.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		audit.SetRunID(runID)
		subs := []auditlog.Subscriber{r.Simulator, r.Context, r.Federation}
		for _, f := range r.Federates {
			subs = append(subs, f)
		}
		detach := audit.Attach(subs...)
		defer func() {
			detach()
			if err := audit.Close(); err != nil {
				log.Warn(ctx, "audit log close failed", logging.Err(err))
			}
			log.Info(ctx, "audit log written",
				logging.String("path", cfg.Output.AuditLog),
				logging.String("entries", humanize.Comma(int64(audit.Count()))),
			)
		}()
	}

	start := time.Now()
	res, err := r.Execute(ctx)
	if err != nil {
		return nil, err
	}
	out := &singleResult{RunID: runID, Elapsed: time.Since(start), Results: res}
	if store != nil {
		if _, err := store.Save(ctx, runID, cfg.Game, res, out.Elapsed); err != nil {
			return nil, fmt.Errorf("save results: %w", err)
		}
	}
	return out, nil
}

type cachedExecutor struct {
	store *results.Store
	game  *ofs.Game
}

func (c cachedExecutor) Execute(ctx context.Context, p ofs.Params) ([]ofs.Result, error) {
	r, _, err := c.store.Cached(ctx, c.game, p)
	if err != nil {
		return nil, err
	}
	return r.Results, nil
}

// loadConfig reads -config, then applies any explicitly set flags on top.
func loadConfig(args []string, stderr io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet("ofs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "YAML run configuration")
	elements := fs.String("elements", "", "design tokens, e.g. \"1.SmallSat@MEO6,VIS,pSGL 1.GroundSta@SUR1,pSGL\"")
	players := fs.Int("players", 0, "number of federates")
	cash := fs.Float64("cash", 0, "initial cash per federate (0 funds exactly the design cost)")
	turns := fs.Int("turns", 0, "number of turns")
	seed := fs.Int64("seed", 0, "random seed")
	ops := fs.String("ops", "", "federate operations model (d[H[,P[,I]]], x[...], n)")
	fops := fs.String("fops", "", "federation operations model")
	sectors := fs.Int("sectors", 0, "number of sectors")
	catalog := fs.String("catalog", "", "YAML catalog overriding the built-in one")
	trials := fs.Int("trials", 0, "number of consecutive seeds to run")
	concurrency := fs.Int("concurrency", 0, "parallel trials (0 uses GOMAXPROCS)")
	timeout := fs.Duration("solver-timeout", 0, "per-solve time limit")
	maxNodes := fs.Int("solver-max-nodes", 0, "branch-and-bound node limit per solve")
	audit := fs.String("audit", "", "write an event audit log (.zst compresses)")
	db := fs.String("db", "", "SQLite results cache")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus /metrics on this address while running")
	jsonOut := fs.Bool("json", false, "print results as JSON")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	logFormat := fs.String("log-format", "", "text or json")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			return config.Config{}, err
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "elements":
			cfg.Game.Elements = *elements
		case "players":
			cfg.Game.NumPlayers = *players
		case "cash":
			cfg.Game.InitialCash = *cash
		case "turns":
			cfg.Game.NumTurns = *turns
		case "seed":
			cfg.Game.Seed = *seed
		case "ops":
			cfg.Game.Ops = *ops
		case "fops":
			cfg.Game.Fops = *fops
		case "sectors":
			cfg.Game.Sectors = *sectors
		case "catalog":
			cfg.Catalog = *catalog
		case "trials":
			cfg.Batch.Trials = *trials
		case "concurrency":
			cfg.Batch.Concurrency = *concurrency
		case "solver-timeout":
			cfg.Solver.Timeout = timeout.String()
		case "solver-max-nodes":
			cfg.Solver.MaxNodes = *maxNodes
		case "audit":
			cfg.Output.AuditLog = *audit
		case "db":
			cfg.Output.ResultsDB = *db
		case "metrics-addr":
			cfg.Output.MetricsAddr = *metricsAddr
		case "json":
			cfg.Output.JSON = *jsonOut
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func printResults(w io.Writer, out *singleResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	source := "run"
	if out.Cached {
		source = "cached run"
	}
	fmt.Fprintf(w, "%s %s (%s)\n", source, out.RunID, out.Elapsed.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEDERATE\tINITIAL\tFINAL\tNET")
	for _, r := range out.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Federate, money(r.InitialCash), money(r.FinalCash), signed(r.FinalCash-r.InitialCash))
	}
	return tw.Flush()
}

func printReport(w io.Writer, report *batch.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(w, "batch %s: %s trials\n", report.ID, humanize.Comma(int64(len(report.Trials))))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEDERATE\tMEAN\tSTDDEV\tMIN\tMAX")
	for _, s := range report.Stats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Federate, money(s.Mean), money(s.StdDev), money(s.Min), money(s.Max))
	}
	return tw.Flush()
}

func money(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

func signed(v float64) string {
	s := money(v)
	if v > 0 && !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return s
}
