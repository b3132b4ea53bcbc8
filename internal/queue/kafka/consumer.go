package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wagerSync/internal/metrics"
	"wagerSync/internal/queue"
)

// ConsumerConfig controls redelivery.
type ConsumerConfig struct {
	MaxDeliveries int
	RetryBackoff  time.Duration
}

// Consumer reads a topic and redelivers a failing message in place, so the
// rest of its partition waits behind it, until it succeeds or is
// dead-lettered.
type Consumer struct {
	reader  Reader
	cfg     ConsumerConfig
	sink    queue.DeadLetterSink
	metrics *metrics.Metrics
	log     *zap.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

func NewConsumer(reader Reader, cfg ConsumerConfig, sink queue.DeadLetterSink, m *metrics.Metrics, log *zap.Logger) *Consumer {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = queue.DefaultMaxDeliveries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: reader, cfg: cfg, sink: sink, metrics: m, log: log, wait: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Consume processes messages until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler queue.Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		msg := fromKafka(m)
		if err := c.deliver(ctx, msg, handler); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg queue.Message, handler queue.Handler) error {
	var lastErr error
	delay := c.cfg.RetryBackoff
	for attempt := msg.Attempt + 1; attempt <= c.cfg.MaxDeliveries; attempt++ {
		msg.Attempt = attempt
		lastErr = handler(ctx, msg)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("delivery failed",
			zap.String("dedup_key", msg.DedupKey),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == c.cfg.MaxDeliveries {
			break
		}

		if err := c.wait(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	c.metrics.DeadLettered()
	c.log.Error("message dead-lettered",
		zap.String("dedup_key", msg.DedupKey),
		zap.String("group", msg.GroupID),
		zap.Int("attempts", msg.Attempt),
		zap.Error(lastErr),
	)
	if c.sink == nil {
		return nil
	}
	if err := c.sink.DeadLetter(ctx, queue.DeadLetter{
		Message:  msg,
		Reason:   errString(lastErr),
		FailedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("dead-letter %s: %w", msg.DedupKey, err)
	}
	return nil
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
