package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wagerSync/internal/config"
	"wagerSync/internal/httpapi"
)

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Queue.Backend == "memory" {
		return fmt.Errorf("worker needs a shared queue; use serve --with-worker for the memory backend")
	}
	if err := cfg.Require(config.NeedQueue, config.NeedStore); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rt := newRuntime(cfg, logger)
	defer rt.Close()

	store, _, err := rt.store(ctx)
	if err != nil {
		return err
	}
	proc, err := rt.processor(ctx, store)
	if err != nil {
		return err
	}
	consumer, err := rt.consumer(ctx)
	if err != nil {
		return err
	}

	engine := httpapi.NewEngine(false, logger.Named("http"))
	(&httpapi.HealthHandler{Checks: rt.checks}).Register(engine)
	server := httpapi.NewServer(cfg.HTTP.Listen, engine)

	logger.Info("worker start",
		zap.Strings("brokers", cfg.Queue.KafkaBrokers),
		zap.String("topic", cfg.Queue.Topic),
		zap.String("consumer_group", cfg.Queue.ConsumerGroup),
		zap.Int("max_deliveries", cfg.Queue.MaxDeliveries),
		zap.String("dlq", cfg.DLQ.Backend),
		zap.String("store", cfg.Store),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(consumer.Consume(gctx, proc.Handle))
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("worker stopped")
	return err
}
