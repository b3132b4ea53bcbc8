package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wagerSync/internal/config"
	"wagerSync/internal/deadletter"
	"wagerSync/internal/httpapi"
	"wagerSync/internal/metrics"
	"wagerSync/internal/notify"
	"wagerSync/internal/outbox"
	"wagerSync/internal/processor"
	"wagerSync/internal/queue"
	"wagerSync/internal/queue/kafka"
	"wagerSync/internal/storage"
	"wagerSync/internal/storage/memory"
	"wagerSync/internal/storage/postgres"
)

// runtime builds the shared dependencies of a command and closes them in
// reverse order.
type runtime struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	checks  map[string]httpapi.Check

	rdb     *redis.Client
	sink    queue.DeadLetterSink
	broker  *queue.Broker
	closers []func()
}

func newRuntime(cfg config.Config, log *zap.Logger) *runtime {
	return &runtime{
		cfg:     cfg,
		log:     log,
		metrics: metrics.Init(),
		checks:  make(map[string]httpapi.Check),
	}
}

func (rt *runtime) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// redis returns the shared client, or nil when no address is configured.
func (rt *runtime) redis(ctx context.Context) (*redis.Client, error) {
	if rt.rdb != nil || rt.cfg.Redis.Addr == "" {
		return rt.rdb, nil
	}
	rdb, err := notify.Connect(ctx, notify.Config{
		Addr:     rt.cfg.Redis.Addr,
		Password: rt.cfg.Redis.Password,
		DB:       rt.cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	rt.rdb = rdb
	rt.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	rt.onClose(func() { _ = rdb.Close() })
	return rdb, nil
}

// store opens the configured persistence backend.
func (rt *runtime) store(ctx context.Context) (storage.Store, storage.StateStore, error) {
	if rt.cfg.Store == "memory" {
		rt.log.Warn("using in-memory store, state is lost on exit")
		st := memory.NewStore()
		return st, st, nil
	}
	pg := rt.cfg.Postgres
	st, err := postgres.NewStore(ctx, pg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres %s: %w", pg.Redacted(), err)
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("ping postgres %s: %w", pg.Redacted(), err)
	}
	rt.checks["postgres"] = st.Ping
	rt.onClose(st.Close)
	return st, st, nil
}

// deadLetters builds the sinks named by dlq-backend.
func (rt *runtime) deadLetters(ctx context.Context) (queue.DeadLetterSink, error) {
	if rt.sink != nil {
		return rt.sink, nil
	}
	var sinks deadletter.Fanout
	for _, name := range strings.Split(rt.cfg.DLQ.Backend, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "", "log":
			sinks = append(sinks, deadletter.LogSink{Logger: rt.log})
		case "kafka":
			if len(rt.cfg.Queue.KafkaBrokers) == 0 {
				return nil, fmt.Errorf("dlq-backend kafka requires kafka-brokers")
			}
			topic := kafka.NewDeadLetterTopic(kafka.NewWriter(rt.cfg.Queue.KafkaBrokers, rt.cfg.DLQ.Topic))
			rt.onClose(func() { _ = topic.Close() })
			sinks = append(sinks, topic)
		case "s3":
			d := rt.cfg.DLQ
			sink, err := deadletter.NewS3Sink(ctx, deadletter.S3Config{
				Endpoint:       d.S3Endpoint,
				Region:         d.S3Region,
				Bucket:         d.S3Bucket,
				Prefix:         d.S3Prefix,
				AccessKey:      d.S3AccessKey,
				SecretKey:      d.S3SecretKey,
				ForcePathStyle: d.S3PathStyle,
			})
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		default:
			return nil, fmt.Errorf("unknown dlq-backend %q", name)
		}
	}
	if len(sinks) == 1 {
		rt.sink = sinks[0]
	} else {
		rt.sink = sinks
	}
	return rt.sink, nil
}

// memoryBroker returns the in-process broker, creating it on first use.
func (rt *runtime) memoryBroker(ctx context.Context) (*queue.Broker, error) {
	if rt.broker == nil {
		sink, err := rt.deadLetters(ctx)
		if err != nil {
			return nil, err
		}
		rt.broker = queue.NewBroker(queue.MemoryConfig{
			DedupWindow:     rt.cfg.Queue.DedupWindow,
			MaxDeliveries:   rt.cfg.Queue.MaxDeliveries,
			RedeliveryDelay: rt.cfg.Queue.RedeliveryDelay,
			DeadLetters:     sink,
			Metrics:         rt.metrics,
			Logger:          rt.log.Named("queue"),
		})
	}
	return rt.broker, nil
}

// publisher returns the producer side of the configured queue.
func (rt *runtime) publisher(ctx context.Context) (queue.Publisher, error) {
	q := rt.cfg.Queue
	if q.Backend == "memory" {
		return rt.memoryBroker(ctx)
	}

	rdb, err := rt.redis(ctx)
	if err != nil {
		return nil, err
	}
	var dedup kafka.Deduper
	if rdb != nil {
		dedup = kafka.NewRedisDeduper(rdb, "", q.DedupWindow)
	} else {
		rt.log.Warn("no redis-addr, publish dedup relies on the processor ledger only")
	}
	pub := kafka.NewPublisher(kafka.NewWriter(q.KafkaBrokers, q.Topic), dedup, rt.log.Named("publisher"))
	rt.checks["kafka"] = func(ctx context.Context) error { return kafka.Ping(ctx, q.KafkaBrokers) }
	rt.onClose(func() { _ = pub.Close() })
	return pub, nil
}

// consumer returns the consumer side of the configured queue.
func (rt *runtime) consumer(ctx context.Context) (queue.Consumer, error) {
	q := rt.cfg.Queue
	if q.Backend == "memory" {
		return rt.memoryBroker(ctx)
	}
	sink, err := rt.deadLetters(ctx)
	if err != nil {
		return nil, err
	}
	c := kafka.NewConsumer(
		kafka.NewReader(q.KafkaBrokers, q.Topic, q.ConsumerGroup),
		kafka.ConsumerConfig{MaxDeliveries: q.MaxDeliveries, RetryBackoff: q.RedeliveryDelay},
		sink, rt.metrics, rt.log.Named("consumer"),
	)
	rt.checks["kafka"] = func(ctx context.Context) error { return kafka.Ping(ctx, q.KafkaBrokers) }
	rt.onClose(func() { _ = c.Close() })
	return c, nil
}

func (rt *runtime) notifier(ctx context.Context) (processor.Notifier, error) {
	rdb, err := rt.redis(ctx)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		return nil, nil
	}
	return notify.NewRedisNotifier(rdb, rt.cfg.Redis.NotifyChannel), nil
}

func (rt *runtime) processor(ctx context.Context, store storage.Store) (*processor.Processor, error) {
	ppu, err := decimal.NewFromString(rt.cfg.PointsPerUnit)
	if err != nil {
		return nil, fmt.Errorf("points-per-unit %q: %w", rt.cfg.PointsPerUnit, err)
	}
	notifier, err := rt.notifier(ctx)
	if err != nil {
		return nil, err
	}
	return processor.New(store, processor.Config{PointsPerUnit: ppu}, notifier, rt.metrics, rt.log.Named("processor")), nil
}

func (rt *runtime) outbox() (*outbox.Outbox, error) {
	ob, err := outbox.Open(rt.cfg.Outbox.Path)
	if err != nil {
		return nil, err
	}
	rt.checks["outbox"] = ob.Ping
	rt.onClose(func() { _ = ob.Close() })
	return ob, nil
}
