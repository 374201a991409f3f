// Package anchor records content hashes on the ledger and reports honestly
// when it could not. Every anchoring operation returns a tagged Receipt;
// callers branch on Status instead of trusting a transaction hash that may
// not exist.
package anchor

import "time"

// ReceiptStatus tags whether the content hash actually reached the chain.
type ReceiptStatus string

const (
	StatusAnchored   ReceiptStatus = "anchored"
	StatusUnanchored ReceiptStatus = "unanchored"
)

// Operation names what was anchored. Part of the transaction memo and the
// append-only anchor row.
type Operation string

const (
	OpDIDCreate        Operation = "did_create"
	OpDIDUpdate        Operation = "did_update"
	OpDIDDeactivate    Operation = "did_deactivate"
	OpCredentialIssue  Operation = "credential_issue"
	OpCredentialRevoke Operation = "credential_revoke"
	OpProofCommit      Operation = "proof_commit"
)

// Receipt is the outcome of an anchoring attempt. TxHash and BlockHeight are
// set only when Status is StatusAnchored; Reason only when it is not. A
// receipt never carries a synthesized hash.
type Receipt struct {
	Status      ReceiptStatus `json:"status"`
	TxHash      string        `json:"txHash,omitempty"`
	BlockHeight int64         `json:"blockHeight,omitempty"`
	Network     string        `json:"network"`
	Reason      string        `json:"reason,omitempty"`
}

// Anchored reports whether the hash is on chain.
func (r Receipt) Anchored() bool { return r.Status == StatusAnchored }

// Record is one append-only anchor row. Updates append new rows; nothing
// mutates an existing one.
type Record struct {
	ContentHash string
	Subject     string
	Operation   Operation
	Receipt     Receipt
	CreatedAt   time.Time
}

// ChainStatus is the result of a node status probe.
type ChainStatus struct {
	Available    bool
	ChainID      string
	LatestHeight int64
	Reason       string
}

// BroadcastResult is a successfully accepted transaction.
type BroadcastResult struct {
	TxHash string
	Height int64
}

// TxStatus reports the confirmation state of a previously broadcast
// transaction.
type TxStatus struct {
	TxHash    string `json:"txHash"`
	Confirmed bool   `json:"confirmed"`
	Height    int64  `json:"height"`
}

// Memo is the payload carried in the anchoring transaction. Only the hash
// goes on chain; the encrypted content never leaves the store.
type Memo struct {
	ContentHash string    `json:"contentHash"`
	Subject     string    `json:"subject"`
	Operation   Operation `json:"operation"`
	Timestamp   time.Time `json:"timestamp"`
}
