// Package task defines the unit of work handed to the prover and the
// hash-combination primitive shared with the orchestrator.
package task

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Task is one unit of work: a program to run over an ordered list of raw inputs.
// A Task handed to the prover is treated as read-only.
type Task struct {
	ID        string
	ProgramID string
	Type      Type
	Inputs    [][]byte
}

var ErrNoInputs = errors.New("task has no inputs")

// Validate checks the structural fields a task needs before proving.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	if strings.TrimSpace(t.ProgramID) == "" {
		return fmt.Errorf("program_id is empty")
	}
	if len(t.Inputs) == 0 {
		return ErrNoInputs
	}
	return nil
}

// Clone returns a deep copy; input buffers are not shared with the original.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := &Task{
		ID:        t.ID,
		ProgramID: t.ProgramID,
		Type:      t.Type,
		Inputs:    make([][]byte, len(t.Inputs)),
	}
	for i, in := range t.Inputs {
		cp.Inputs[i] = append([]byte(nil), in...)
	}
	return cp
}

// CombineProofHashes folds an ordered list of hex proof hashes into one:
// Keccak-256 over their concatenation, lowercase hex. Order matters.
// An empty list yields the empty string.
func CombineProofHashes(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	h := sha3.NewLegacyKeccak256()
	for _, s := range hashes {
		_, _ = h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
