// Package engine provides prover.Engine implementations: an in-process trace
// engine for the built-in guest programs, and an engine that delegates to an
// external prover process.
package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/wolfishy/nexus-cli/internal/log"
	"github.com/wolfishy/nexus-cli/internal/prover"
)

// DefaultMaxIterations bounds the guest loop when no limit is configured.
const DefaultMaxIterations = 1 << 20

const traceProofVersion = 1

// TraceProof records a native execution of the Fibonacci guest.
type TraceProof struct {
	ProgramID string
	Input     prover.FibInput
	Output    uint32
}

// MarshalBinary encodes the proof canonically:
// version(1) | len(program_id) u16 | program_id | n | init_a | init_b | output, little endian.
func (p *TraceProof) MarshalBinary() ([]byte, error) {
	if len(p.ProgramID) > math.MaxUint16 {
		return nil, fmt.Errorf("program id too long: %d bytes", len(p.ProgramID))
	}
	b := make([]byte, 0, 1+2+len(p.ProgramID)+16)
	b = append(b, traceProofVersion)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(p.ProgramID)))
	b = append(b, p.ProgramID...)
	b = binary.LittleEndian.AppendUint32(b, p.Input.N)
	b = binary.LittleEndian.AppendUint32(b, p.Input.InitA)
	b = binary.LittleEndian.AppendUint32(b, p.Input.InitB)
	b = binary.LittleEndian.AppendUint32(b, p.Output)
	return b, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (p *TraceProof) UnmarshalBinary(b []byte) error {
	if len(b) < 3 || b[0] != traceProofVersion {
		return fmt.Errorf("not a v%d trace proof", traceProofVersion)
	}
	n := int(binary.LittleEndian.Uint16(b[1:3]))
	if len(b) != 3+n+16 {
		return fmt.Errorf("trace proof length %d, want %d", len(b), 3+n+16)
	}
	rest := b[3+n:]
	*p = TraceProof{
		ProgramID: string(b[3 : 3+n]),
		Input: prover.FibInput{
			N:     binary.LittleEndian.Uint32(rest[0:4]),
			InitA: binary.LittleEndian.Uint32(rest[4:8]),
			InitB: binary.LittleEndian.Uint32(rest[8:12]),
		},
		Output: binary.LittleEndian.Uint32(rest[12:16]),
	}
	return nil
}

// TraceEngine executes guest programs natively and validates the result by
// re-execution. It stands in for a proving backend in local and test setups.
type TraceEngine struct {
	maxIterations uint32
	logger        *slog.Logger
}

// NewTraceEngine creates a TraceEngine. maxIterations of 0 uses DefaultMaxIterations.
func NewTraceEngine(maxIterations uint32) *TraceEngine {
	if maxIterations == 0 {
		maxIterations = DefaultMaxIterations
	}
	return &TraceEngine{
		maxIterations: maxIterations,
		logger:        log.WithComponent("engine.trace"),
	}
}

// Prove implements prover.Engine.
func (e *TraceEngine) Prove(ctx context.Context, req prover.ProveRequest) (prover.Artifact, error) {
	in, ok := req.Input.(prover.FibInput)
	if !ok {
		return nil, prover.NewError(prover.KindOther, "trace engine cannot run input of type %T", req.Input)
	}
	if in.N > e.maxIterations {
		return nil, prover.NewError(prover.KindGuestProgram, "n=%d exceeds iteration limit %d", in.N, e.maxIterations)
	}

	out, err := runFib(ctx, in)
	if err != nil {
		return nil, err
	}
	proof := &TraceProof{ProgramID: req.Task.ProgramID, Input: in, Output: out}

	if err := e.validate(ctx, proof); err != nil {
		return nil, err
	}
	e.logger.Debug("trace proved", "task_id", req.Task.ID, "input_index", req.InputIndex, "output", out)
	return proof, nil
}

func (e *TraceEngine) validate(ctx context.Context, p *TraceProof) error {
	again, err := runFib(ctx, p.Input)
	if err != nil {
		return err
	}
	if again != p.Output {
		return prover.NewError(prover.KindComputation, "re-execution produced %d, proof claims %d", again, p.Output)
	}
	return nil
}

// runFib steps (a, b) -> (b, a+b) n times from (init_a, init_b) and returns a.
// Overflow is a guest failure, matching a guest built with overflow checks.
func runFib(ctx context.Context, in prover.FibInput) (uint32, error) {
	a, b := in.InitA, in.InitB
	for i := uint32(0); i < in.N; i++ {
		if i&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return 0, prover.WrapError(prover.KindOther, "execution interrupted", err)
			}
		}
		if b > math.MaxUint32-a {
			return 0, prover.NewError(prover.KindGuestProgram, "arithmetic overflow at step %d", i)
		}
		a, b = b, a+b
	}
	return a, nil
}
