package prover

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"github.com/wolfishy/nexus-cli/internal/task"
)

// ProofHash is the lowercase hex Keccak-256 of the artifact's canonical bytes.
func ProofHash(a Artifact) (string, error) {
	b, err := a.MarshalBinary()
	if err != nil {
		return "", WrapError(KindOther, "serialize proof", err)
	}
	sum := sha3.NewLegacyKeccak256()
	_, _ = sum.Write(b)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// CombineHashes derives the task hash from the ordered per-input hashes.
// Individual tasks use the first hash. An empty list yields "".
func CombineHashes(t task.Type, hashes []string) string {
	switch t {
	case task.TypeProofHash, task.TypeAllProofHashes:
		return task.CombineProofHashes(hashes)
	default:
		if len(hashes) == 0 {
			return ""
		}
		return hashes[0]
	}
}
