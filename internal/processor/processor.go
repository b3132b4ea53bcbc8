// Package processor applies queue messages to the store. Each message is
// handled in one transaction together with its entry in the processed
// ledger, so redelivered or republished messages change nothing.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wagerSync/internal/event"
	"wagerSync/internal/metrics"
	"wagerSync/internal/model"
	"wagerSync/internal/queue"
	"wagerSync/internal/storage"
)

// DefaultPointsPerUnit is the points awarded per whole token (1e9 base
// units) entered into a pool.
var DefaultPointsPerUnit = decimal.NewFromInt(100)

// Notification is published after a message commits.
type Notification struct {
	EventName string `json:"eventName"`
	ID        string `json:"id"`
}

// Notifier delivers notifications. Failures are logged and never retried.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Config struct {
	PointsPerUnit decimal.Decimal
}

// BatchItemFailure names a message that should be redelivered.
type BatchItemFailure struct {
	ItemIdentifier string `json:"itemIdentifier"`
}

type Processor struct {
	store    storage.Store
	cfg      Config
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func New(store storage.Store, cfg Config, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *Processor {
	if cfg.PointsPerUnit.IsZero() {
		cfg.PointsPerUnit = DefaultPointsPerUnit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{store: store, cfg: cfg, notifier: notifier, metrics: m, log: log}
}

// Handle applies one message. A nil error acknowledges it; any other error
// leaves it to the queue for redelivery.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	var env model.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return fmt.Errorf("decode envelope %s: %w", msg.ID, err)
	}

	events, err := event.FromEnvelope(env)
	if errors.Is(err, event.ErrUnknownEvent) {
		p.metrics.UnknownEvent()
		p.log.Warn("ignoring unknown event", zap.String("event", env.EventName), zap.String("dedup_key", msg.DedupKey))
		return nil
	}
	if err != nil {
		p.metrics.HandlerFailed(env.EventName)
		return fmt.Errorf("parse %s: %w", env.EventName, err)
	}

	key := msg.DedupKey
	if key == "" {
		key = msg.ID
	}

	var (
		duplicate bool
		h         *handlers
	)
	err = p.store.WithTx(ctx, func(repo storage.Repository) error {
		fresh, err := repo.MarkProcessed(ctx, key, env.EventName)
		if err != nil {
			return err
		}
		if !fresh {
			duplicate = true
			return nil
		}
		h = newHandlers(repo, p.cfg, p.metrics, p.log)
		for i, ev := range events {
			if err := event.Dispatch(ctx, ev, h); err != nil {
				return fmt.Errorf("%s item %d: %w", ev.Name(), i, err)
			}
		}
		return nil
	})
	if err != nil {
		p.metrics.HandlerFailed(env.EventName)
		p.log.Warn("message failed",
			zap.String("event", env.EventName),
			zap.String("dedup_key", key),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		return err
	}

	if duplicate {
		p.metrics.Duplicate()
		p.log.Debug("duplicate message skipped", zap.String("dedup_key", key))
		return nil
	}

	for range events {
		p.metrics.Processed(env.EventName)
	}
	p.log.Debug("message processed", zap.String("event", env.EventName), zap.String("dedup_key", key), zap.Int("events", len(events)))
	p.notify(ctx, h.notes)
	return nil
}

// HandleBatch handles messages in order and reports the ones to redeliver.
// After a failure the rest of that group is reported without being handled,
// so the redelivered messages keep their group order.
func (p *Processor) HandleBatch(ctx context.Context, msgs []queue.Message) []BatchItemFailure {
	var failures []BatchItemFailure
	blocked := make(map[string]bool)
	for _, msg := range msgs {
		if blocked[msg.GroupID] {
			failures = append(failures, BatchItemFailure{ItemIdentifier: msg.ID})
			continue
		}
		if err := p.Handle(ctx, msg); err != nil {
			blocked[msg.GroupID] = true
			failures = append(failures, BatchItemFailure{ItemIdentifier: msg.ID})
		}
	}
	return failures
}

func (p *Processor) notify(ctx context.Context, notes []Notification) {
	if p.notifier == nil {
		return
	}
	for _, n := range notes {
		if err := p.notifier.Notify(ctx, n); err != nil {
			p.log.Warn("notification failed", zap.String("event", n.EventName), zap.String("id", n.ID), zap.Error(err))
		}
	}
}
