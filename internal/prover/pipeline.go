package prover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/events"
	"github.com/wolfishy/nexus-cli/internal/log"
	"github.com/wolfishy/nexus-cli/internal/task"
)

// Prover fans a task's inputs out to the Engine and assembles the result.
type Prover struct {
	engine   Engine
	reporter Reporter
	programs *Registry
	events   *events.Hub
	logger   *slog.Logger
	now      func() time.Time

	reports reportTracker
}

// Option configures a Prover.
type Option func(*Prover)

// WithReporter sets where verification failures are reported.
func WithReporter(r Reporter) Option {
	return func(p *Prover) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithRegistry replaces the built-in program registry.
func WithRegistry(r *Registry) Option {
	return func(p *Prover) {
		if r != nil {
			p.programs = r
		}
	}
}

// WithEvents publishes task lifecycle events on hub.
func WithEvents(hub *events.Hub) Option {
	return func(p *Prover) { p.events = hub }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prover) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Prover backed by engine.
func New(engine Engine, opts ...Option) *Prover {
	p := &Prover{
		engine:   engine,
		reporter: nopReporter{},
		programs: DefaultRegistry(),
		logger:   log.WithComponent("prover"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is a proved task. Proofs and ProofHashes follow the task's input order.
type Result struct {
	Proofs      []Artifact
	TaskHash    string
	ProofHashes []string
}

// ProveTask proves every input of t with at most workers inputs in flight.
//
// The first failing input decides the outcome: no further inputs are started,
// inputs already running finish on their own and their results are dropped.
// Unknown programs and empty tasks fail with ErrMalformedTask before the
// engine is called.
func (p *Prover) ProveTask(ctx context.Context, t *task.Task, env environment.Environment, clientID string, workers int) (*Result, error) {
	if workers < 1 {
		return nil, ErrInvalidWorkerBudget
	}
	if t == nil {
		return nil, NewError(KindMalformedTask, "task is nil")
	}
	program, ok := p.programs.Get(t.ProgramID)
	if !ok {
		return nil, NewError(KindMalformedTask, "unsupported program ID: %s", t.ProgramID)
	}
	if len(t.Inputs) == 0 {
		return nil, NewError(KindMalformedTask, "no inputs provided for task")
	}

	logger := p.logger.With("task_id", t.ID, "program_id", t.ProgramID, "task_type", t.Type.String())
	logger.Info("proving task", "inputs", len(t.Inputs), "workers", workers)
	p.publish("task.started", map[string]any{
		"task_id":    t.ID,
		"program_id": t.ProgramID,
		"inputs":     len(t.Inputs),
		"workers":    workers,
	})
	started := p.now()

	scope := unitScope{task: t, env: env, clientID: clientID, logger: logger}
	slots := make([]unitResult, len(t.Inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, raw := range t.Inputs {
		if gctx.Err() != nil {
			break
		}
		// Blocks while the window is full.
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Units get the caller's ctx so a sibling failure never cancels them.
			res, err := p.proveUnit(ctx, program, scope, i, raw)
			if err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, p.fail(t, logger, err)
	}

	result := &Result{
		Proofs:      make([]Artifact, 0, len(slots)),
		ProofHashes: make([]string, 0, len(slots)),
	}
	for i, s := range slots {
		if !s.done {
			return nil, p.fail(t, logger, fmt.Errorf("input %d not proved: %w", i, ctx.Err()))
		}
		result.Proofs = append(result.Proofs, s.proof)
		result.ProofHashes = append(result.ProofHashes, s.hash)
	}
	result.TaskHash = CombineHashes(t.Type, result.ProofHashes)

	logger.Info("task proved", "task_hash", result.TaskHash, "duration_ms", p.now().Sub(started).Milliseconds())
	p.publish("task.proved", map[string]any{
		"task_id":   t.ID,
		"task_hash": result.TaskHash,
		"inputs":    len(result.ProofHashes),
	})
	return result, nil
}

// WaitReports blocks until no detached failure report is pending or ctx ends.
// Meant for process shutdown; proving never waits on reports. It is safe to
// call while tasks are still being proved.
func (p *Prover) WaitReports(ctx context.Context) error {
	return p.reports.wait(ctx)
}

// Programs returns the program registry in use.
func (p *Prover) Programs() *Registry {
	return p.programs
}

func (p *Prover) fail(t *task.Task, logger *slog.Logger, err error) error {
	logger.Warn("task failed", "error", err, "kind", KindOf(err).String())
	p.publish("task.failed", map[string]any{
		"task_id": t.ID,
		"kind":    KindOf(err).String(),
		"error":   err.Error(),
	})
	return err
}

func (p *Prover) publish(eventType string, data map[string]any) {
	if p.events == nil {
		return
	}
	p.events.Publish(eventType, data)
}
