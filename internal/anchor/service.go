package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"anchorid/internal/anchor/metrics"
	dErrors "anchorid/pkg/domain-errors"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/sentinel"
	"anchorid/pkg/requestcontext"
)

// EventsTopic receives one message per anchoring attempt. Ops telemetry,
// published fail-open: a broker outage never blocks an anchor.
const EventsTopic = "anchorid.anchors"

// ChainRPC is the node capability the service needs. *Client satisfies it;
// tests substitute a fake.
type ChainRPC interface {
	Status(ctx context.Context) (ChainStatus, error)
	BroadcastMemo(ctx context.Context, memo Memo) (BroadcastResult, error)
	TxStatus(ctx context.Context, txHash string) (TxStatus, error)
	Network() string
}

// Publisher is the event sink capability. *kafka.Producer satisfies it.
type Publisher interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Service anchors content hashes and keeps the append-only anchor log. A
// chain failure produces an honest Unanchored receipt, never an error and
// never a fabricated hash; only a failure to append the local log is an
// error.
type Service struct {
	chain     ChainRPC
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher sets the fail-open anchor event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService constructs an anchor Service.
func NewService(chain ChainRPC, store Store, opts ...Option) *Service {
	s := &Service{
		chain:  chain,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnchorDIDCreation anchors the content hash of a newly created DID document.
func (s *Service) AnchorDIDCreation(ctx context.Context, did id.DID, contentHash string) (Receipt, error) {
	return s.anchor(ctx, did.String(), OpDIDCreate, contentHash)
}

// AnchorDIDUpdate anchors an updated document hash as a new log row.
func (s *Service) AnchorDIDUpdate(ctx context.Context, did id.DID, contentHash string) (Receipt, error) {
	return s.anchor(ctx, did.String(), OpDIDUpdate, contentHash)
}

// AnchorDIDDeactivation anchors the tombstoned document hash.
func (s *Service) AnchorDIDDeactivation(ctx context.Context, did id.DID, contentHash string) (Receipt, error) {
	return s.anchor(ctx, did.String(), OpDIDDeactivate, contentHash)
}

// AnchorCredentialIssuance anchors the content hash of an issued credential.
func (s *Service) AnchorCredentialIssuance(ctx context.Context, credentialID id.CredentialID, contentHash string) (Receipt, error) {
	return s.anchor(ctx, credentialID.String(), OpCredentialIssue, contentHash)
}

// AnchorCredentialRevocation anchors a credential status change hash.
func (s *Service) AnchorCredentialRevocation(ctx context.Context, credentialID id.CredentialID, contentHash string) (Receipt, error) {
	return s.anchor(ctx, credentialID.String(), OpCredentialRevoke, contentHash)
}

// AnchorProofCommitment anchors a proof's commitment hash so a verifier can
// later confirm the commitment predates the verification request.
func (s *Service) AnchorProofCommitment(ctx context.Context, proofID id.ProofID, contentHash string) (Receipt, error) {
	return s.anchor(ctx, proofID.String(), OpProofCommit, contentHash)
}

func (s *Service) anchor(ctx context.Context, subject string, op Operation, contentHash string) (Receipt, error) {
	receipt := s.broadcast(ctx, subject, op, contentHash)

	record := Record{
		ContentHash: contentHash,
		Subject:     subject,
		Operation:   op,
		Receipt:     receipt,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.store.AppendAnchor(ctx, record); err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append anchor log")
	}

	s.metrics.IncrementOutcome(string(op), string(receipt.Status))
	s.publishEvent(ctx, record)
	return receipt, nil
}

// broadcast attempts the on-chain write. Every failure path collapses into
// an Unanchored receipt with the reason preserved.
func (s *Service) broadcast(ctx context.Context, subject string, op Operation, contentHash string) Receipt {
	network := s.chain.Network()

	status, err := s.chain.Status(ctx)
	if err != nil || !status.Available {
		reason := "chain unavailable"
		if err != nil {
			reason = err.Error()
		} else if status.Reason != "" {
			reason = status.Reason
		}
		s.logger.WarnContext(ctx, "anchoring skipped, chain unavailable",
			"subject", subject, "operation", string(op), "reason", reason)
		return Receipt{Status: StatusUnanchored, Network: network, Reason: reason}
	}

	memo := Memo{
		ContentHash: contentHash,
		Subject:     subject,
		Operation:   op,
		Timestamp:   requestcontext.Now(ctx).UTC(),
	}
	start := time.Now()
	result, err := s.chain.BroadcastMemo(ctx, memo)
	s.metrics.ObserveBroadcastLatency(time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "anchoring broadcast failed",
			"subject", subject, "operation", string(op), "error", err)
		return Receipt{Status: StatusUnanchored, Network: network, Reason: err.Error()}
	}

	return Receipt{
		Status:      StatusAnchored,
		TxHash:      result.TxHash,
		BlockHeight: result.Height,
		Network:     network,
	}
}

func (s *Service) publishEvent(ctx context.Context, record Record) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode anchor event", "error", err)
		return
	}
	if err := s.publisher.Produce(ctx, EventsTopic, []byte(record.Subject), payload); err != nil {
		s.logger.WarnContext(ctx, "failed to publish anchor event",
			"subject", record.Subject, "error", err)
	}
}

// GetTransactionStatus resolves a previously issued transaction hash.
func (s *Service) GetTransactionStatus(ctx context.Context, txHash string) (TxStatus, error) {
	if txHash == "" {
		return TxStatus{}, dErrors.New(dErrors.CodeValidation, "transaction hash is required")
	}
	status, err := s.chain.TxStatus(ctx, txHash)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return TxStatus{}, dErrors.New(dErrors.CodeNotFound, "transaction not found")
		case errors.Is(err, sentinel.ErrUnavailable):
			return TxStatus{}, dErrors.Wrap(err, dErrors.CodeChainUnavailable, "chain rpc unavailable")
		default:
			return TxStatus{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query transaction")
		}
	}
	return status, nil
}

// CheckChainStatus exposes the node health probe to callers.
func (s *Service) CheckChainStatus(ctx context.Context) (ChainStatus, error) {
	status, err := s.chain.Status(ctx)
	if err != nil {
		return status, dErrors.Wrap(err, dErrors.CodeChainUnavailable, "chain rpc unavailable")
	}
	return status, nil
}

// History returns the anchor log rows for a subject, oldest first.
func (s *Service) History(ctx context.Context, subject string) ([]Record, error) {
	records, err := s.store.ListAnchors(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list anchors")
	}
	return records, nil
}
