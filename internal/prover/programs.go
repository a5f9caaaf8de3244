package prover

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// FibProgramID is the Fibonacci guest program the orchestrator hands out.
const FibProgramID = "fib_input_initial"

// ParseFunc turns one raw input into the structured value passed to the Engine.
type ParseFunc func(raw []byte) (any, error)

// Program is the handling strategy for one program ID.
type Program struct {
	ID    string
	Parse ParseFunc
}

// Registry holds supported programs indexed by ID.
type Registry struct {
	programs map[string]Program
}

// NewRegistry creates an empty program registry.
func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]Program)}
}

// DefaultRegistry returns a registry with every built-in program.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Add(Program{ID: FibProgramID, Parse: ParseFibInput})
	return r
}

// Add registers a program.
func (r *Registry) Add(p Program) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("program id is empty")
	}
	if p.Parse == nil {
		return fmt.Errorf("program %q has no parser", p.ID)
	}
	if _, exists := r.programs[p.ID]; exists {
		return fmt.Errorf("program %q already registered", p.ID)
	}
	r.programs[p.ID] = p
	return nil
}

// Get retrieves a program by ID.
func (r *Registry) Get(id string) (Program, bool) {
	p, ok := r.programs[id]
	return p, ok
}

// IDs returns the registered program IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FibInput is the structured input of fib_input_initial.
type FibInput struct {
	N     uint32 `json:"n"`
	InitA uint32 `json:"init_a"`
	InitB uint32 `json:"init_b"`
}

// fibInputSize is three little-endian u32 values.
const fibInputSize = 12

// ParseFibInput reads (n, init_a, init_b) from the first 12 bytes of raw.
// Trailing bytes are ignored.
func ParseFibInput(raw []byte) (any, error) {
	if len(raw) < fibInputSize {
		return nil, NewError(KindParse, "public inputs buffer too small: expected at least %d bytes, got %d", fibInputSize, len(raw))
	}
	return FibInput{
		N:     binary.LittleEndian.Uint32(raw[0:4]),
		InitA: binary.LittleEndian.Uint32(raw[4:8]),
		InitB: binary.LittleEndian.Uint32(raw[8:12]),
	}, nil
}

// EncodeFibInput is the inverse of ParseFibInput.
func EncodeFibInput(in FibInput) []byte {
	b := make([]byte, fibInputSize)
	binary.LittleEndian.PutUint32(b[0:4], in.N)
	binary.LittleEndian.PutUint32(b[4:8], in.InitA)
	binary.LittleEndian.PutUint32(b[8:12], in.InitB)
	return b
}
