// Package ingest turns provider deliveries into queue messages. Receivers
// never fail a delivery because the queue is down: the message goes to the
// stash and the call still succeeds.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wagerSync/internal/metrics"
	"wagerSync/internal/queue"
)

// ErrBadRequest marks a delivery that cannot be parsed.
var ErrBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Stash keeps messages whose publish failed.
type Stash interface {
	Save(ctx context.Context, msg queue.Message, cause error) error
}

// publishResult counts what happened to a delivery's messages.
type publishResult struct {
	Published int `json:"published"`
	Stashed   int `json:"stashed"`
	Lost      int `json:"lost"`
}

type dispatcher struct {
	publisher queue.Publisher
	stash     Stash
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func (d *dispatcher) send(ctx context.Context, msg queue.Message, res *publishResult) {
	err := d.publisher.Publish(ctx, msg)
	if err == nil {
		d.metrics.Published(msg.GroupID)
		res.Published++
		return
	}

	d.metrics.PublishFailed(msg.GroupID)
	d.log.Error("publish failed",
		zap.String("dedup_key", msg.DedupKey),
		zap.String("group", msg.GroupID),
		zap.Error(err),
	)
	if d.stash == nil {
		res.Lost++
		return
	}
	if stashErr := d.stash.Save(ctx, msg, err); stashErr != nil {
		d.log.Error("outbox save failed, message lost",
			zap.String("dedup_key", msg.DedupKey),
			zap.ByteString("body", msg.Body),
			zap.Error(stashErr),
		)
		res.Lost++
		return
	}
	d.metrics.Outboxed()
	res.Stashed++
}
