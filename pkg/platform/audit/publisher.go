package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CompliancePublisher emits compliance events with fail-closed semantics.
// The caller blocks until the outbox write succeeds; if it fails, the
// calling operation MUST fail.
//
// Use for: did_created, did_updated, did_deactivated, credential_*
type CompliancePublisher struct {
	store  Store
	logger *slog.Logger
}

// PublisherOption configures a publisher.
type PublisherOption func(*CompliancePublisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *CompliancePublisher) { p.logger = logger }
}

// NewCompliancePublisher creates a fail-closed publisher. The store must be
// outbox-backed for guaranteed delivery.
func NewCompliancePublisher(store Store, opts ...PublisherOption) *CompliancePublisher {
	p := &CompliancePublisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the audit store.
// Returns error if persistence fails; the caller MUST fail its operation.
func (p *CompliancePublisher) Emit(ctx context.Context, event Event) error {
	if event.Subject == "" {
		return fmt.Errorf("compliance event requires Subject")
	}
	if event.Action == "" {
		return fmt.Errorf("compliance event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}
	return nil
}

// OpsTracker emits operational and security events fail-open: an audit
// outage degrades observability, never availability. Failures are logged
// and dropped.
type OpsTracker struct {
	store  Store
	logger *slog.Logger
}

// NewOpsTracker creates a fail-open tracker over the same outbox store.
func NewOpsTracker(store Store, logger *slog.Logger) *OpsTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsTracker{store: store, logger: logger}
}

// Emit records an ops or security event, dropping it on store failure.
func (t *OpsTracker) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := t.store.Append(ctx, event); err != nil {
		t.logger.WarnContext(ctx, "dropping audit event",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}
