package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wolfishy/nexus-cli/internal/api"
	"github.com/wolfishy/nexus-cli/internal/lock"
	"github.com/wolfishy/nexus-cli/internal/log"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proving HTTP API",
		Long: `Serve exposes task proving over HTTP:

  GET  /healthz
  POST /v1/tasks               prove a task document synchronously
  GET  /v1/tasks/{taskID}      recently proved results
  GET  /v1/reports?limit=N     journaled failure reports
  GET  /v1/events?since=ID     buffered events (?type=task. narrows by prefix)
  GET  /v1/events/stream       server-sent events (same ?type= filter)

Only one server may run per state directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.Listen = listen
			}
			logger := log.WithComponent("main")

			lockPath := lock.PathFor(cfg.State.Path)
			pidLock, err := lock.Acquire(lockPath)
			if err != nil {
				return err
			}
			defer pidLock.Release()
			logger.Info("acquired PID lock", "path", lockPath)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newProverRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(ctx); err != nil {
					logger.Warn("shutdown incomplete", "error", err)
				}
			}()

			apiCfg := api.Config{
				Listen:          cfg.API.Listen,
				APIKey:          cfg.API.APIKey,
				Environment:     rt.env,
				ClientID:        cfg.Prover.ClientID,
				Workers:         cfg.Prover.Workers,
				ResultCacheSize: cfg.API.ResultCacheSize,
				Programs:        rt.prover.Programs().IDs(),
			}
			var reports api.ReportLister
			if rt.journal != nil {
				reports = rt.journal
			}
			server, err := api.New(apiCfg, rt.prover, reports, rt.hub, log.WithComponent("api"))
			if err != nil {
				return err
			}

			logger.Info("nexus-cli serving", "version", version, "environment", rt.env, "engine", cfg.Engine.Kind)
			err = server.Start(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			logger.Info("nexus-cli stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Override api.listen")
	return cmd
}
