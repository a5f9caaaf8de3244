package protocol

// Version is the only protocol version spoken to prover processes.
const Version = 1

// Request is the envelope written to a prover process on stdin, one per input.
type Request struct {
	Protocol    int    `json:"protocol"`
	TaskID      string `json:"task_id"`
	ProgramID   string `json:"program_id"`
	TaskType    string `json:"task_type"`
	InputIndex  int    `json:"input_index"`
	Input       any    `json:"input"`
	Environment string `json:"environment"`
	ClientID    string `json:"client_id"`
}

// Response is the envelope read from a prover process on stdout.
type Response struct {
	Status    string     `json:"status"` // ok | error
	ErrorKind string     `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
	Proof     []byte     `json:"proof,omitempty"` // base64 in JSON
	Logs      []LogEntry `json:"logs,omitempty"`
}

// Error kinds a prover process may report.
const (
	ErrorKindComputation  = "computation"
	ErrorKindGuestProgram = "guest_program"
)

// LogEntry represents a log message from the prover process.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}
