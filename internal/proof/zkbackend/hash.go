package zkbackend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashCommitment is the default backend: the proof is a SHA-256 binding of
// the commitment hash and public signals. It makes tampering evident but is
// not a zero-knowledge proof in the cryptographic sense; deployments
// needing soundness plug a circuit backend in instead.
type HashCommitment struct{}

const hashCircuitName = "hash-commitment-v1"

func NewHashCommitment() HashCommitment { return HashCommitment{} }

func (HashCommitment) CircuitName() string { return hashCircuitName }

func (HashCommitment) ProveCommitment(_ context.Context, commitmentHash string, publicSignals []string) (Proof, error) {
	if commitmentHash == "" {
		return Proof{}, fmt.Errorf("commitment hash is required")
	}
	signals := append([]string{commitmentHash}, publicSignals...)
	return Proof{
		Proof:           bindSignals(signals),
		PublicSignals:   signals,
		VerificationKey: hashCircuitName,
	}, nil
}

func (h HashCommitment) ProveRange(ctx context.Context, commitmentHash string, value, min, max int64) (Proof, error) {
	if min > max {
		return Proof{}, fmt.Errorf("invalid range [%d, %d]", min, max)
	}
	if value < min || value > max {
		return Proof{}, fmt.Errorf("value outside range [%d, %d]", min, max)
	}
	signals := []string{
		fmt.Sprintf("min:%d", min),
		fmt.Sprintf("max:%d", max),
		"inRange:true",
	}
	return h.ProveCommitment(ctx, commitmentHash, signals)
}

func (HashCommitment) VerifyStructure(_ context.Context, p Proof) error {
	if p.VerificationKey != hashCircuitName {
		return fmt.Errorf("unexpected verification key %q", p.VerificationKey)
	}
	if len(p.PublicSignals) == 0 {
		return fmt.Errorf("missing public signals")
	}
	if p.Proof != bindSignals(p.PublicSignals) {
		return fmt.Errorf("proof does not bind its public signals")
	}
	return nil
}

// bindSignals hashes the ordered signal list with length framing so no two
// distinct signal lists collide by concatenation.
func bindSignals(signals []string) string {
	h := sha256.New()
	for _, s := range signals {
		fmt.Fprintf(h, "%d:", len(s))
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
