package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"wagerSync/internal/metrics"
)

// MemoryConfig configures a Broker.
type MemoryConfig struct {
	DedupWindow     time.Duration
	MaxDeliveries   int
	RedeliveryDelay time.Duration
	DeadLetters     DeadLetterSink
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
}

type pending struct {
	msg       Message
	visibleAt time.Time
}

// Broker is an in-process queue. At most one message per group is in
// flight, so a group is consumed strictly in publish order.
type Broker struct {
	cfg MemoryConfig

	mu       sync.Mutex
	groups   map[string][]*pending
	order    []string
	inflight map[string]bool
	seen     map[string]time.Time
	dead     []DeadLetter
	wake     chan struct{}
	now      func() time.Time
}

func NewBroker(cfg MemoryConfig) *Broker {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = DefaultMaxDeliveries
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Broker{
		cfg:      cfg,
		groups:   make(map[string][]*pending),
		inflight: make(map[string]bool),
		seen:     make(map[string]time.Time),
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Publish enqueues msg unless its dedup key was published within the dedup
// window, in which case the call succeeds without enqueuing.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	now := b.now()
	for key, at := range b.seen {
		if now.Sub(at) >= b.cfg.DedupWindow {
			delete(b.seen, key)
		}
	}
	if msg.DedupKey != "" {
		if _, dup := b.seen[msg.DedupKey]; dup {
			b.mu.Unlock()
			b.cfg.Logger.Debug("duplicate publish suppressed", zap.String("dedup_key", msg.DedupKey))
			return nil
		}
		b.seen[msg.DedupKey] = now
	}
	if _, ok := b.groups[msg.GroupID]; !ok {
		b.order = append(b.order, msg.GroupID)
	}
	msg.Attempt = 0
	b.groups[msg.GroupID] = append(b.groups[msg.GroupID], &pending{msg: msg})
	b.mu.Unlock()

	b.signal()
	return nil
}

// Deliver hands at most one message to handler and reports whether one was
// available.
func (b *Broker) Deliver(ctx context.Context, handler Handler) (bool, error) {
	msg, ok := b.next()
	if !ok {
		return false, nil
	}
	err := handler(ctx, msg)
	b.settle(ctx, msg, err)
	return true, nil
}

// Drain delivers until no message is currently deliverable.
func (b *Broker) Drain(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivered, err := b.Deliver(ctx, handler)
		if err != nil {
			return err
		}
		if !delivered {
			return nil
		}
	}
}

// Consume delivers messages until ctx is cancelled. It is safe to run
// several Consume loops on one Broker.
func (b *Broker) Consume(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		delivered, err := b.Deliver(ctx, handler)
		if err != nil {
			return err
		}
		if delivered {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.wake:
		case <-ticker.C:
		}
	}
}

// DeadLetters returns the messages that exhausted their deliveries.
func (b *Broker) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeadLetter, len(b.dead))
	copy(out, b.dead)
	return out
}

// Pending returns the number of queued messages, including in-flight ones.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, items := range b.groups {
		n += len(items)
	}
	return n
}

func (b *Broker) next() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for i, group := range b.order {
		items := b.groups[group]
		if len(items) == 0 || b.inflight[group] {
			continue
		}
		head := items[0]
		if now.Before(head.visibleAt) {
			continue
		}
		head.msg.Attempt++
		b.inflight[group] = true
		b.order = append(append(b.order[:i:i], b.order[i+1:]...), group)
		return head.msg, true
	}
	return Message{}, false
}

func (b *Broker) settle(ctx context.Context, msg Message, handlerErr error) {
	b.mu.Lock()
	group := msg.GroupID
	b.inflight[group] = false
	items := b.groups[group]
	if len(items) == 0 || items[0].msg.ID != msg.ID {
		b.mu.Unlock()
		return
	}

	if handlerErr == nil {
		b.groups[group] = items[1:]
		b.mu.Unlock()
		b.signal()
		return
	}

	if msg.Attempt < b.cfg.MaxDeliveries {
		items[0].visibleAt = b.now().Add(b.cfg.RedeliveryDelay)
		b.mu.Unlock()
		b.cfg.Logger.Warn("delivery failed, will redeliver",
			zap.String("message_id", msg.ID),
			zap.String("dedup_key", msg.DedupKey),
			zap.Int("attempt", msg.Attempt),
			zap.Error(handlerErr),
		)
		b.signal()
		return
	}

	letter := newDeadLetter(msg, handlerErr)
	b.groups[group] = items[1:]
	b.dead = append(b.dead, letter)
	b.mu.Unlock()

	b.cfg.Metrics.DeadLettered()
	b.cfg.Logger.Error("message dead-lettered",
		zap.String("message_id", msg.ID),
		zap.String("dedup_key", msg.DedupKey),
		zap.String("group", group),
		zap.Int("attempts", msg.Attempt),
		zap.Error(handlerErr),
	)
	if b.cfg.DeadLetters != nil {
		if err := b.cfg.DeadLetters.DeadLetter(ctx, letter); err != nil {
			b.cfg.Logger.Error("dead-letter sink failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	b.signal()
}

func (b *Broker) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}
