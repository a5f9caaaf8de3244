package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfishy/nexus-cli/internal/api"
	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/task"
)

type proveFlags struct {
	taskPath    string
	workers     int
	clientID    string
	environment string
}

func newProveCmd(g *globalFlags) *cobra.Command {
	f := &proveFlags{}
	cmd := &cobra.Command{
		Use:   "prove --task FILE",
		Short: "Prove every input of a task file and print the result as JSON",
		Long: `Prove reads a task document (YAML or JSON) with hex-encoded inputs:

  id: task-42
  program_id: fib_input_initial
  type: proof_hash        # individual | proof_hash | all_proof_hashes
  inputs:
    - "0a0000000100000001000000"

The result carries the task hash, the per-input proof hashes and the proofs.
Computation and guest program failures are reported before the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProve(cmd, g, f)
		},
	}
	cmd.Flags().StringVarP(&f.taskPath, "task", "t", "", "Task file to prove (required)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Maximum inputs proved concurrently (default prover.workers)")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "Override prover.client_id")
	cmd.Flags().StringVar(&f.environment, "environment", "", "Override prover.environment")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func runProve(cmd *cobra.Command, g *globalFlags, f *proveFlags) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if f.clientID != "" {
		cfg.Prover.ClientID = f.clientID
	}
	if f.environment != "" {
		if _, err := environment.Parse(f.environment); err != nil {
			return err
		}
		cfg.Prover.Environment = f.environment
	}
	workers := cfg.Prover.Workers
	if cmd.Flags().Changed("workers") {
		workers = f.workers
	}

	t, err := task.LoadFile(f.taskPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newProverRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	res, err := rt.prover.ProveTask(ctx, t, rt.env, cfg.Prover.ClientID, workers)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}

	resp, err := api.NewTaskResponse(t, res, time.Now())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
