// Package zkbackend abstracts the proof circuit system. The default
// backend is a hash-commitment scheme with boolean public signals; a
// Groth16 range circuit backend sits behind the same interface for callers
// that need cryptographic soundness on range claims.
package zkbackend

import "context"

// Proof is the circuit output: opaque proof material plus the public
// signals and verification key a verifier needs.
type Proof struct {
	Proof           string
	PublicSignals   []string
	VerificationKey string
}

// Prover produces and checks proofs for one circuit.
type Prover interface {
	CircuitName() string

	// ProveCommitment binds a commitment hash and its public signals into
	// proof material.
	ProveCommitment(ctx context.Context, commitmentHash string, publicSignals []string) (Proof, error)

	// VerifyStructure checks that the proof material is internally
	// consistent with its public signals. It does not consult nullifiers,
	// challenges, or expiry; those belong to the engine.
	VerifyStructure(ctx context.Context, p Proof) error
}

// RangeProver additionally proves set membership of a secret value in a
// closed interval without revealing the value.
type RangeProver interface {
	Prover

	// ProveRange proves min <= value <= max for a value bound to the
	// commitment. Implementations must refuse to produce proof material
	// for an out-of-range value.
	ProveRange(ctx context.Context, commitmentHash string, value, min, max int64) (Proof, error)
}
