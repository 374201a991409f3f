package proof

import (
	"context"
	"time"

	id "anchorid/pkg/domain"
)

// Store keeps issued proofs until they expire so verifiers (and audits)
// can look them up by ID. Proofs are immutable once saved.
type Store interface {
	SaveProof(ctx context.Context, p ZKProof) error
	GetProof(ctx context.Context, proofID id.ProofID) (ZKProof, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
