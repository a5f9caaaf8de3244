package prover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/task"
)

// unitScope is the read-only context shared by every unit of one task.
type unitScope struct {
	task     *task.Task
	env      environment.Environment
	clientID string
	logger   *slog.Logger
}

type unitResult struct {
	proof Artifact
	hash  string
	index int
	done  bool
}

// proveUnit parses, proves and hashes one input. Computation and guest program
// failures are reported in the background before the error is returned.
func (p *Prover) proveUnit(ctx context.Context, program Program, sc unitScope, index int, raw []byte) (unitResult, error) {
	input, err := program.Parse(raw)
	if err != nil {
		return unitResult{}, err
	}

	proof, err := p.engine.Prove(ctx, ProveRequest{
		Input:       input,
		InputIndex:  index,
		Task:        sc.task,
		Environment: sc.env,
		ClientID:    sc.clientID,
	})
	if err != nil {
		kind := KindOf(err)
		sc.logger.Debug("input failed", "input_index", index, "kind", kind.String(), "error", err)
		if kind.Reportable() {
			p.reportDetached(ctx, FailureReport{
				Task:        sc.task.Clone(),
				InputIndex:  index,
				Kind:        kind,
				Message:     fmt.Sprintf("Input %d: %v", index, err),
				Environment: sc.env,
				ClientID:    sc.clientID,
				At:          p.now().UTC(),
			}, sc.logger)
		}
		return unitResult{}, err
	}
	if proof == nil {
		return unitResult{}, NewError(KindOther, "engine returned no proof for input %d", index)
	}

	hash, err := ProofHash(proof)
	if err != nil {
		return unitResult{}, err
	}
	sc.logger.Debug("input proved", "input_index", index, "proof_hash", hash)
	return unitResult{proof: proof, hash: hash, index: index, done: true}, nil
}

// reportDetached hands r to the reporter without waiting for it. The report
// outlives ctx cancellation and its error never reaches the caller.
func (p *Prover) reportDetached(ctx context.Context, r FailureReport, logger *slog.Logger) {
	rctx := context.WithoutCancel(ctx)
	p.reports.add()
	go func() {
		defer p.reports.done()
		if err := p.reporter.Report(rctx, r); err != nil {
			logger.Debug("failure report not delivered", "input_index", r.InputIndex, "error", err)
		}
	}()
}
