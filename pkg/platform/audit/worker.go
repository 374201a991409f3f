package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink is where drained events go. *kafka.Producer satisfies it.
type Sink interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Worker drains the outbox to the sink. Rows stay in the outbox until the
// sink accepts them, so a broker outage delays delivery without losing
// events.
type Worker struct {
	store     Store
	sink      Sink
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewWorker builds an outbox drain worker publishing to topic.
func NewWorker(store Store, sink Sink, topic string, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:     store,
		sink:      sink,
		topic:     topic,
		interval:  interval,
		batchSize: 100,
		logger:    logger,
	}
}

// Run drains until the context ends. Returns ctx.Err() on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) error {
	batch, err := w.store.ListUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}
	var delivered []uuid.UUID
	for _, stored := range batch {
		payload, err := json.Marshal(stored.Event)
		if err != nil {
			w.logger.ErrorContext(ctx, "unencodable audit event, skipping",
				"event_id", stored.ID.String(), "error", err)
			delivered = append(delivered, stored.ID)
			continue
		}
		if err := w.sink.Produce(ctx, w.topic, []byte(stored.Event.Subject), payload); err != nil {
			// Leave the rest for the next tick; ordering per subject is
			// preserved by stopping at the first failure.
			break
		}
		delivered = append(delivered, stored.ID)
	}
	if len(delivered) == 0 {
		return nil
	}
	return w.store.MarkPublished(ctx, delivered)
}
