package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// BatchWriterConfig bounds how long events wait before reaching the store.
type BatchWriterConfig struct {
	MaxBatchSize int
	FlushTimeout time.Duration
}

// BatchWriter accumulates event envelopes and writes them to the event store
// in batches, flushing on size or on a timeout, whichever comes first. Every
// envelope in a batch settles with the batch's outcome: acked when the whole
// batch landed, nacked otherwise so the store's dedup can absorb the replay.
type BatchWriter struct {
	events repository.EventRepository
	cfg    BatchWriterConfig
	log    *zap.Logger
}

func NewBatchWriter(repo repository.EventRepository, cfg BatchWriterConfig, log *zap.Logger) *BatchWriter {
	return &BatchWriter{events: repo, cfg: cfg, log: log}
}

// Start drains the envelope channel until it closes or the context is
// cancelled, flushing any partial batch on the way out.
func (w *BatchWriter) Start(ctx context.Context, in <-chan *Envelope) {
	ticker := time.NewTicker(w.cfg.FlushTimeout)
	defer ticker.Stop()

	pending := make([]*Envelope, 0, w.cfg.MaxBatchSize)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Batch writer stopped", zap.Int("pending", len(pending)))
			w.flush(ctx, pending)
			return

		case env, ok := <-in:
			if !ok {
				w.log.Info("Batch writer input drained", zap.Int("pending", len(pending)))
				w.flush(ctx, pending)
				return
			}

			pending = append(pending, env)
			if len(pending) >= w.cfg.MaxBatchSize {
				w.flush(ctx, pending)
				pending = pending[:0]
				ticker.Reset(w.cfg.FlushTimeout)
			}

		case <-ticker.C:
			if len(pending) > 0 {
				w.flush(ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

func (w *BatchWriter) flush(ctx context.Context, pending []*Envelope) {
	if len(pending) == 0 {
		return
	}

	events := make([]*domain.Event, len(pending))
	for i, env := range pending {
		events[i] = env.Event
	}

	inserted, err := w.events.InsertBatch(ctx, events)
	switch {
	case err != nil:
		w.log.Error("Batch insert failed",
			zap.Int("event_count", len(events)),
			zap.Error(err))
		w.settle(ctx, pending, false)
	case inserted != len(events):
		w.log.Warn("Batch insert incomplete",
			zap.Int("inserted", inserted),
			zap.Int("expected", len(events)))
		w.settle(ctx, pending, false)
	default:
		w.log.Info("Batch written", zap.Int("event_count", inserted))
		w.settle(ctx, pending, true)
	}
}

func (w *BatchWriter) settle(ctx context.Context, pending []*Envelope, written bool) {
	for _, env := range pending {
		var err error
		if written {
			err = env.Ack(ctx)
		} else {
			err = env.Nack(ctx)
		}
		if err != nil {
			w.log.Error("Failed to settle envelope", zap.Error(err))
		}
	}
}
