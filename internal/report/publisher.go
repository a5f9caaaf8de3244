package report

import (
	"context"
	"time"

	"github.com/wolfishy/nexus-cli/internal/events"
	"github.com/wolfishy/nexus-cli/internal/prover"
)

// EventVerificationFailed is the hub event type carrying a failure report.
const EventVerificationFailed = "report.verification_failed"

// Publisher forwards failure reports to an events hub.
type Publisher struct {
	hub *events.Hub
}

func NewPublisher(hub *events.Hub) *Publisher {
	return &Publisher{hub: hub}
}

type publishedReport struct {
	TaskID      string    `json:"task_id"`
	ProgramID   string    `json:"program_id"`
	TaskType    string    `json:"task_type"`
	InputIndex  int       `json:"input_index"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Environment string    `json:"environment"`
	ClientID    string    `json:"client_id"`
	At          time.Time `json:"at"`
}

// Report implements prover.Reporter.
func (p *Publisher) Report(_ context.Context, r prover.FailureReport) error {
	ev := publishedReport{
		InputIndex:  r.InputIndex,
		Kind:        r.Kind.String(),
		Message:     r.Message,
		Environment: r.Environment.String(),
		ClientID:    r.ClientID,
		At:          r.At,
	}
	if r.Task != nil {
		ev.TaskID = r.Task.ID
		ev.ProgramID = r.Task.ProgramID
		ev.TaskType = r.Task.Type.String()
	}
	p.hub.Publish(EventVerificationFailed, ev)
	return nil
}
