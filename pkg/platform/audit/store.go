package audit

import (
	"context"

	"github.com/google/uuid"
)

// StoredEvent is an outbox row: the event plus delivery bookkeeping.
type StoredEvent struct {
	ID    uuid.UUID
	Event Event
}

// Store persists audit events. All writes go through the outbox so the
// drain worker can forward them to Kafka without losing events across
// broker outages.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)

	// ListUnpublished returns up to limit undelivered rows, oldest first.
	ListUnpublished(ctx context.Context, limit int) ([]StoredEvent, error)
	// MarkPublished stamps rows as delivered; they are never returned by
	// ListUnpublished again.
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}
