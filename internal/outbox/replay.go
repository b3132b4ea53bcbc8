package outbox

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wagerSync/internal/metrics"
	"wagerSync/internal/queue"
)

// Replayer republishes outbox entries. Replays reuse the original dedup key,
// so the queue drops ones that did reach it.
type Replayer struct {
	outbox    *Outbox
	publisher queue.Publisher
	batchSize int
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewReplayer(o *Outbox, publisher queue.Publisher, batchSize int, m *metrics.Metrics, log *zap.Logger) *Replayer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Replayer{outbox: o, publisher: publisher, batchSize: batchSize, metrics: m, log: log}
}

// Drain republishes one batch of pending entries and returns how many were
// published and how many failed again.
func (r *Replayer) Drain(ctx context.Context) (published int, failed int, err error) {
	entries, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return published, failed, ctx.Err()
		}
		if pubErr := r.publisher.Publish(ctx, e.Message); pubErr != nil {
			failed++
			r.log.Warn("outbox replay failed",
				zap.String("id", e.Message.ID),
				zap.String("dedup_key", e.Message.DedupKey),
				zap.Int("attempts", e.Attempts+1),
				zap.Error(pubErr),
			)
			if err := r.outbox.MarkFailed(ctx, e.Message.ID, pubErr); err != nil {
				return published, failed, err
			}
			continue
		}
		if err := r.outbox.Delete(ctx, e.Message.ID); err != nil {
			return published, failed, fmt.Errorf("outbox replay %s: %w", e.Message.ID, err)
		}
		r.metrics.Replayed()
		published++
	}
	if published > 0 || failed > 0 {
		r.log.Info("outbox drained", zap.Int("published", published), zap.Int("failed", failed))
	}
	return published, failed, nil
}

// Schedule runs Drain on spec (cron syntax with seconds, or @every) until
// the returned stop func is called.
func (r *Replayer) Schedule(ctx context.Context, spec string) (stop func(), err error) {
	c := cron.New(cron.WithSeconds())
	_, err = c.AddFunc(spec, func() {
		if _, _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("outbox drain", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule outbox replay %q: %w", spec, err)
	}
	c.Start()
	r.log.Info("outbox replay scheduled", zap.String("spec", spec))
	return func() {
		<-c.Stop().Done()
	}, nil
}
