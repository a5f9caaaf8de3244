package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wolfishy/nexus-cli/internal/config"
	"github.com/wolfishy/nexus-cli/internal/engine"
	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/events"
	"github.com/wolfishy/nexus-cli/internal/log"
	"github.com/wolfishy/nexus-cli/internal/prover"
	"github.com/wolfishy/nexus-cli/internal/report"
	"github.com/wolfishy/nexus-cli/internal/storage"
)

// reportDrainTimeout bounds how long shutdown waits for pending failure reports.
const reportDrainTimeout = 10 * time.Second

// loadConfig resolves and loads the configuration. Without --config, a
// missing config falls back to defaults.
func loadConfig(g *globalFlags) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			cfg := config.Defaults()
			setupLogging(g, cfg)
			log.WithComponent("main").Debug("no config file found, using defaults", "reason", err)
			return cfg, nil
		}
		path = discovered
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(g, cfg)
	return cfg, nil
}

func setupLogging(g *globalFlags, cfg *config.Config) {
	if g.logLevel != "" {
		cfg.Service.LogLevel = g.logLevel
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
}

func buildEngine(cfg *config.Config) (prover.Engine, error) {
	switch cfg.Engine.Kind {
	case config.EngineTrace:
		return engine.NewTraceEngine(cfg.Engine.MaxIterations), nil
	case config.EngineExec:
		return engine.NewExecEngine(cfg.Engine.Command, cfg.Engine.Args, cfg.Engine.TerminationGrace), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Engine.Kind)
	}
}

// proverRuntime bundles the prover with the resources its reporters hold.
type proverRuntime struct {
	prover  *prover.Prover
	hub     *events.Hub
	journal *report.Journal // nil when the journal is disabled
	env     environment.Environment
	db      *sql.DB
	logger  *slog.Logger
}

func newProverRuntime(ctx context.Context, cfg *config.Config) (*proverRuntime, error) {
	logger := log.WithComponent("main")

	env, err := environment.Parse(cfg.Prover.Environment)
	if err != nil {
		return nil, err
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return nil, err
	}

	rt := &proverRuntime{
		hub:    events.NewHub(cfg.Reports.EventBuffer),
		env:    env,
		logger: logger,
	}
	reporters := report.Multi{report.NewPublisher(rt.hub)}

	if cfg.Reports.JournalEnabled() {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.db = db
		rt.journal = report.NewJournal(db)
		reporters = append(reporters, rt.journal)
		logger.Debug("journal opened", "path", cfg.State.Path)
	}

	rt.prover = prover.New(eng,
		prover.WithReporter(reporters),
		prover.WithEvents(rt.hub),
		prover.WithLogger(log.WithClient(cfg.Prover.ClientID).With("component", "prover")),
	)
	return rt, nil
}

// Close drains pending failure reports, then releases the journal.
func (rt *proverRuntime) Close(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportDrainTimeout)
	defer cancel()

	var errs []error
	if err := rt.prover.WaitReports(drainCtx); err != nil {
		rt.logger.Warn("gave up waiting for failure reports", "error", err)
		errs = append(errs, err)
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
