package api

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/wolfishy/nexus-cli/internal/events"
	"github.com/wolfishy/nexus-cli/internal/prover"
	"github.com/wolfishy/nexus-cli/internal/report"
	"github.com/wolfishy/nexus-cli/internal/task"
)

// SubmitTaskRequest is the JSON body for POST /v1/tasks.
type SubmitTaskRequest struct {
	task.Document
	// Workers overrides the server's worker budget for this task.
	Workers int `json:"workers,omitempty"`
}

// TaskResponse is returned by POST /v1/tasks and GET /v1/tasks/{taskID}.
type TaskResponse struct {
	TaskID      string    `json:"task_id"`
	ProgramID   string    `json:"program_id"`
	TaskType    string    `json:"task_type"`
	TaskHash    string    `json:"task_hash"`
	ProofHashes []string  `json:"proof_hashes"`
	Proofs      []string  `json:"proofs"` // hex
	ProvedAt    time.Time `json:"proved_at"`
}

// NewTaskResponse renders a proved task. Proofs are hex-encoded in input order.
func NewTaskResponse(t *task.Task, res *prover.Result, at time.Time) (*TaskResponse, error) {
	resp := &TaskResponse{
		TaskID:      t.ID,
		ProgramID:   t.ProgramID,
		TaskType:    t.Type.String(),
		TaskHash:    res.TaskHash,
		ProofHashes: res.ProofHashes,
		Proofs:      make([]string, 0, len(res.Proofs)),
		ProvedAt:    at.UTC(),
	}
	for i, p := range res.Proofs {
		b, err := p.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("serialize proof %d: %w", i, err)
		}
		resp.Proofs = append(resp.Proofs, hex.EncodeToString(b))
	}
	return resp, nil
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	CachedResults int    `json:"cached_results"`
	Environment   string `json:"environment"`
	LastEventID   int64    `json:"last_event_id"`
	DroppedEvents int64    `json:"dropped_events"`
	Programs      []string `json:"programs"`
}

// ReportsResponse is returned by GET /v1/reports.
type ReportsResponse struct {
	Reports []report.Entry `json:"reports"`
}

// EventsResponse is returned by GET /v1/events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}
