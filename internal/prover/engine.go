package prover

import (
	"context"
	"encoding"
	"time"

	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/task"
)

//go:generate mockgen -destination=mocks/mock_prover.go -package=mocks github.com/wolfishy/nexus-cli/internal/prover Engine,Reporter

// Artifact is an opaque proof. MarshalBinary must return its canonical bytes:
// identical proofs always serialize identically.
type Artifact interface {
	encoding.BinaryMarshaler
}

// ProveRequest carries one parsed input plus the shared, read-only task context.
type ProveRequest struct {
	Input       any
	InputIndex  int
	Task        *task.Task
	Environment environment.Environment
	ClientID    string
}

// Engine produces and validates a proof for one input. Failures should be
// *Error values so the prover can classify them; anything else counts as KindOther.
type Engine interface {
	Prove(ctx context.Context, req ProveRequest) (Artifact, error)
}

// FailureReport describes a proof that failed verification or whose guest
// program failed.
type FailureReport struct {
	Task        *task.Task
	InputIndex  int
	Kind        Kind
	Message     string
	Environment environment.Environment
	ClientID    string
	At          time.Time
}

// Reporter receives failure reports. It is called detached; its error is
// logged and otherwise ignored.
type Reporter interface {
	Report(ctx context.Context, r FailureReport) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r FailureReport) error

func (f ReporterFunc) Report(ctx context.Context, r FailureReport) error { return f(ctx, r) }

type nopReporter struct{}

func (nopReporter) Report(context.Context, FailureReport) error { return nil }
