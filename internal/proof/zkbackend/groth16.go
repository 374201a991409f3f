package zkbackend

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

const groth16CircuitName = "range-check-groth16-v1"

// rangeCircuit proves Min <= Value <= Max without revealing Value.
type rangeCircuit struct {
	Value frontend.Variable
	Min   frontend.Variable `gnark:",public"`
	Max   frontend.Variable `gnark:",public"`
}

func (c *rangeCircuit) Define(api frontend.API) error {
	api.AssertIsLessOrEqual(c.Min, c.Value)
	api.AssertIsLessOrEqual(c.Value, c.Max)
	return nil
}

// Groth16Prover proves range claims with a Groth16 SNARK over BN254.
// Commitment proofs fall back to the hash binding scheme so one backend
// instance can serve every proof type.
type Groth16Prover struct {
	hash HashCommitment

	cs    constraint.ConstraintSystem
	pk    groth16.ProvingKey
	vk    groth16.VerifyingKey
	vkB64 string
}

// NewGroth16Prover compiles the range circuit and runs the trusted setup.
// The setup is per-process; proofs do not verify across restarts, which is
// acceptable because proofs expire within hours anyway.
func NewGroth16Prover() (*Groth16Prover, error) {
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &rangeCircuit{})
	if err != nil {
		return nil, fmt.Errorf("compile range circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize verifying key: %w", err)
	}
	return &Groth16Prover{
		hash:  NewHashCommitment(),
		cs:    cs,
		pk:    pk,
		vk:    vk,
		vkB64: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (*Groth16Prover) CircuitName() string { return groth16CircuitName }

func (g *Groth16Prover) ProveCommitment(ctx context.Context, commitmentHash string, publicSignals []string) (Proof, error) {
	return g.hash.ProveCommitment(ctx, commitmentHash, publicSignals)
}

func (g *Groth16Prover) ProveRange(_ context.Context, commitmentHash string, value, min, max int64) (Proof, error) {
	if commitmentHash == "" {
		return Proof{}, fmt.Errorf("commitment hash is required")
	}
	if min > max {
		return Proof{}, fmt.Errorf("invalid range [%d, %d]", min, max)
	}
	if value < min || value > max {
		return Proof{}, fmt.Errorf("value outside range [%d, %d]", min, max)
	}

	witness, err := frontend.NewWitness(&rangeCircuit{Value: value, Min: min, Max: max}, ecc.BN254.ScalarField())
	if err != nil {
		return Proof{}, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(g.cs, g.pk, witness)
	if err != nil {
		return Proof{}, fmt.Errorf("groth16 prove: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return Proof{}, fmt.Errorf("serialize proof: %w", err)
	}
	return Proof{
		Proof: base64.StdEncoding.EncodeToString(buf.Bytes()),
		PublicSignals: []string{
			commitmentHash,
			fmt.Sprintf("min:%d", min),
			fmt.Sprintf("max:%d", max),
		},
		VerificationKey: g.vkB64,
	}, nil
}

func (g *Groth16Prover) VerifyStructure(ctx context.Context, p Proof) error {
	if p.VerificationKey == hashCircuitName {
		return g.hash.VerifyStructure(ctx, p)
	}
	min, max, err := rangeBounds(p.PublicSignals)
	if err != nil {
		return err
	}

	proofBytes, err := base64.StdEncoding.DecodeString(p.Proof)
	if err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("parse proof: %w", err)
	}

	vkBytes, err := base64.StdEncoding.DecodeString(p.VerificationKey)
	if err != nil {
		return fmt.Errorf("decode verifying key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return fmt.Errorf("parse verifying key: %w", err)
	}

	publicWitness, err := frontend.NewWitness(&rangeCircuit{Min: min, Max: max}, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("build public witness: %w", err)
	}
	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return fmt.Errorf("groth16 verify: %w", err)
	}
	return nil
}

func rangeBounds(signals []string) (min, max int64, err error) {
	if len(signals) != 3 {
		return 0, 0, fmt.Errorf("expected 3 public signals, got %d", len(signals))
	}
	if _, err := fmt.Sscanf(signals[1], "min:%d", &min); err != nil {
		return 0, 0, fmt.Errorf("malformed min signal %q", signals[1])
	}
	if _, err := fmt.Sscanf(signals[2], "max:%d", &max); err != nil {
		return 0, 0, fmt.Errorf("malformed max signal %q", signals[2])
	}
	return min, max, nil
}
