package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCategories(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventDIDCreated.Category())
	assert.Equal(t, CategoryCompliance, EventCredentialRevoked.Category())
	assert.Equal(t, CategorySecurity, EventProofReplayBlocked.Category())
	assert.Equal(t, CategorySecurity, EventIntegrityViolation.Category())
	assert.Equal(t, CategoryOperations, EventProofGenerated.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("unknown_event").Category())
}

func TestCompliancePublisher_FailClosed(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewCompliancePublisher(store)
	ctx := context.Background()

	event := New(EventDIDCreated, "did:anchor:0011223344556677889900112233aabb")
	event.ContentHash = "deadbeef"
	require.NoError(t, publisher.Emit(ctx, event))

	events, err := store.ListBySubject(ctx, event.Subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(EventDIDCreated), events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero())

	// Missing required fields fail before touching the store.
	require.Error(t, publisher.Emit(ctx, Event{Action: "x"}))
	require.Error(t, publisher.Emit(ctx, Event{Subject: "x"}))

	// A store failure fails the emit.
	failing := NewCompliancePublisher(failingStore{})
	require.Error(t, failing.Emit(ctx, event))
}

func TestOpsTracker_FailOpen(t *testing.T) {
	tracker := NewOpsTracker(failingStore{}, nil)
	// Must not panic or block; the event is dropped.
	tracker.Emit(context.Background(), New(EventProofGenerated, "proof-1"))
}

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("disk full") }
func (failingStore) ListBySubject(context.Context, string) ([]Event, error) {
	return nil, errors.New("disk full")
}
func (failingStore) ListUnpublished(context.Context, int) ([]StoredEvent, error) {
	return nil, errors.New("disk full")
}
func (failingStore) MarkPublished(context.Context, []uuid.UUID) error {
	return errors.New("disk full")
}

type captureSink struct {
	produced [][]byte
	err      error
}

func (s *captureSink) Produce(_ context.Context, _ string, _, value []byte) error {
	if s.err != nil {
		return s.err
	}
	s.produced = append(s.produced, value)
	return nil
}

func TestWorkerDrainsOutbox(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, New(EventAnchorSubmitted, "subject")))
	}

	sink := &captureSink{}
	worker := NewWorker(store, sink, "anchorid.audit", time.Minute, nil)
	require.NoError(t, worker.drainOnce(ctx))
	assert.Len(t, sink.produced, 3)

	// Already-published rows are not re-delivered.
	require.NoError(t, worker.drainOnce(ctx))
	assert.Len(t, sink.produced, 3)
}

func TestWorkerKeepsRowsOnSinkFailure(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, New(EventAnchorSubmitted, "subject")))

	sink := &captureSink{err: errors.New("broker down")}
	worker := NewWorker(store, sink, "anchorid.audit", time.Minute, nil)
	require.NoError(t, worker.drainOnce(ctx))

	pending, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Broker recovers; the row drains on the next tick.
	sink.err = nil
	require.NoError(t, worker.drainOnce(ctx))
	pending, err = store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
