package task

import "fmt"

// Type selects how per-input proof hashes collapse into one task hash.
type Type int

const (
	// TypeIndividual tasks report the hash of their first input.
	TypeIndividual Type = iota
	// TypeProofHash tasks report the combination of every input hash.
	TypeProofHash
	// TypeAllProofHashes tasks report the combination of every input hash
	// and ship the full per-input list alongside it.
	TypeAllProofHashes
)

func (t Type) String() string {
	switch t {
	case TypeIndividual:
		return "individual"
	case TypeProofHash:
		return "proof_hash"
	case TypeAllProofHashes:
		return "all_proof_hashes"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType resolves a task type name. An empty name is TypeIndividual.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "individual":
		return TypeIndividual, nil
	case "proof_hash":
		return TypeProofHash, nil
	case "all_proof_hashes":
		return TypeAllProofHashes, nil
	default:
		return 0, fmt.Errorf("unknown task type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	switch t {
	case TypeIndividual, TypeProofHash, TypeAllProofHashes:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("unknown task type %d", int(t))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
