package kafka

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wagerSync/internal/queue"
)

// Deduper claims dedup keys for the dedup window.
type Deduper interface {
	// Claim reports true if key was not claimed within the window.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim whose message was never written.
	Release(ctx context.Context, key string) error
}

// Publisher writes queue messages to a topic.
type Publisher struct {
	writer Writer
	dedup  Deduper
	log    *zap.Logger
}

func NewPublisher(writer Writer, dedup Deduper, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{writer: writer, dedup: dedup, log: log}
}

// Publish writes msg unless its dedup key was already claimed. When the
// dedup store is unreachable the message is still written; the processor's
// ledger drops the duplicate.
func (p *Publisher) Publish(ctx context.Context, msg queue.Message) error {
	claimed := false
	if p.dedup != nil && msg.DedupKey != "" {
		fresh, err := p.dedup.Claim(ctx, msg.DedupKey)
		if err != nil {
			p.log.Warn("dedup claim failed, publishing anyway", zap.String("dedup_key", msg.DedupKey), zap.Error(err))
		} else if !fresh {
			p.log.Debug("duplicate publish suppressed", zap.String("dedup_key", msg.DedupKey))
			return nil
		}
		claimed = err == nil
	}

	if err := p.writer.WriteMessages(ctx, toKafka(msg)); err != nil {
		// The key must not outlive a failed write, or the outbox replay of
		// this message would be suppressed as a duplicate.
		if claimed {
			if relErr := p.dedup.Release(context.WithoutCancel(ctx), msg.DedupKey); relErr != nil {
				p.log.Error("dedup release failed", zap.String("dedup_key", msg.DedupKey), zap.Error(relErr))
				return errors.Join(fmt.Errorf("kafka write %s: %w", msg.DedupKey, err), relErr)
			}
		}
		return fmt.Errorf("kafka write %s: %w", msg.DedupKey, err)
	}
	p.log.Debug("published message", zap.String("dedup_key", msg.DedupKey), zap.String("group", msg.GroupID))
	return nil
}

// Close finalizes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
