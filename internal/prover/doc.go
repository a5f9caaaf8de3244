// Package prover turns a task into one proof per input plus a task hash.
//
// ProveTask looks the task's program up in a Registry, then fans the inputs
// out to an Engine with a bounded number in flight. Each input is parsed,
// proved, and hashed (Keccak-256 over the proof's canonical bytes).
// Completions arrive in any order; results are slotted by input index so the
// returned proofs and hashes always follow the task's input order.
//
// Error handling:
//   - Unknown program or empty task → ErrMalformedTask, engine never called
//   - Parse error → returned as is
//   - Computation / guest program failure → detached report, then returned
//   - Anything else from the engine → returned without a report
//
// The first error wins. No new inputs start after it; inputs already running
// are not cancelled and their results are discarded. Nothing is retried here.
//
// Task hash:
//   - proof_hash, all_proof_hashes → task.CombineProofHashes over all hashes
//   - individual → hash of input 0
package prover
