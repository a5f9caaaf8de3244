package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/wolfishy/nexus-cli/internal/log"
	"github.com/wolfishy/nexus-cli/internal/protocol"
	"github.com/wolfishy/nexus-cli/internal/prover"
)

const (
	// DefaultTerminationGrace is how long a prover process gets between
	// SIGTERM and SIGKILL once its context is cancelled.
	DefaultTerminationGrace = 5 * time.Second

	// maxStderrBytes caps the amount of stderr captured from a prover process.
	maxStderrBytes = 64 * 1024
)

// RawProof is an opaque proof returned by an external prover.
type RawProof []byte

// MarshalBinary returns the proof bytes unchanged.
func (p RawProof) MarshalBinary() ([]byte, error) {
	return []byte(p), nil
}

// ExecEngine proves each input by running an external prover process.
// The request goes to the process on stdin as a single JSON document and the
// response is read back from stdout.
type ExecEngine struct {
	command string
	args    []string
	grace   time.Duration
	logger  *slog.Logger
}

// NewExecEngine creates an ExecEngine for command. A grace of 0 uses
// DefaultTerminationGrace.
func NewExecEngine(command string, args []string, grace time.Duration) *ExecEngine {
	if grace <= 0 {
		grace = DefaultTerminationGrace
	}
	return &ExecEngine{
		command: command,
		args:    append([]string(nil), args...),
		grace:   grace,
		logger:  log.WithComponent("engine.exec"),
	}
}

// Prove implements prover.Engine.
func (e *ExecEngine) Prove(ctx context.Context, req prover.ProveRequest) (prover.Artifact, error) {
	logger := e.logger.With("task_id", req.Task.ID, "input_index", req.InputIndex)

	preq := &protocol.Request{
		Protocol:    protocol.Version,
		TaskID:      req.Task.ID,
		ProgramID:   req.Task.ProgramID,
		TaskType:    req.Task.Type.String(),
		InputIndex:  req.InputIndex,
		Input:       req.Input,
		Environment: req.Environment.String(),
		ClientID:    req.ClientID,
	}
	var stdin bytes.Buffer
	if err := protocol.EncodeRequest(&stdin, preq); err != nil {
		return nil, prover.WrapError(prover.KindOther, "encode prover request", err)
	}

	resp, stderr, err := e.run(ctx, &stdin, logger)
	if stderr != "" {
		logger.Debug("prover stderr", "stderr", stderr)
	}
	if err != nil {
		return nil, err
	}
	for _, entry := range resp.Logs {
		logger.Debug("prover log", "level", entry.Level, "message", entry.Message)
	}

	if resp.Status == "error" {
		return nil, prover.NewError(kindFor(resp.ErrorKind), "%s", resp.Error)
	}
	return RawProof(resp.Proof), nil
}

func (e *ExecEngine) run(ctx context.Context, stdin *bytes.Buffer, logger *slog.Logger) (*protocol.Response, string, error) {
	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Cancel = func() error {
		logger.Warn("prover cancelled, sending SIGTERM")
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = e.grace

	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logger.Debug("spawning prover", "command", e.command)
	start := time.Now()
	err := cmd.Run()
	logger.Debug("prover exited", "duration", time.Since(start))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, stderr.String(), prover.WrapError(prover.KindOther, "prover interrupted", ctxErr)
	}
	if err == nil {
		raw := bytes.Clone(stdout.Bytes())
		resp, decErr := protocol.DecodeResponse(&stdout)
		if decErr != nil {
			logger.Error("failed to decode prover response", "error", decErr, "stdout", string(raw))
			return nil, stderr.String(), prover.WrapError(prover.KindOther, "decode prover response", decErr)
		}
		return resp, stderr.String(), nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, stderr.String(), prover.WrapError(prover.KindOther, "run prover", err)
	}
	// A crashed prover may still have written a structured error, possibly
	// with extra diagnostic fields.
	logger.Warn("prover exited with non-zero status", "exit_code", exitErr.ExitCode())
	resp, raw, decErr := protocol.DecodeResponseLenient(&stdout)
	if decErr != nil {
		logger.Error("failed to decode prover response", "error", decErr, "stdout", string(raw))
		return nil, stderr.String(), prover.WrapError(prover.KindOther, "decode prover response", decErr)
	}
	return resp, stderr.String(), nil
}

func kindFor(errorKind string) prover.Kind {
	switch errorKind {
	case protocol.ErrorKindComputation:
		return prover.KindComputation
	case protocol.ErrorKindGuestProgram:
		return prover.KindGuestProgram
	default:
		return prover.KindOther
	}
}

// String describes the engine for logs.
func (e *ExecEngine) String() string {
	return fmt.Sprintf("exec(%s)", e.command)
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
