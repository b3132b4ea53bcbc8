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
	"wagerSync/internal/evm"
	"wagerSync/internal/httpapi"
	"wagerSync/internal/ingest"
	"wagerSync/internal/outbox"
	"wagerSync/internal/solana"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	withWorker, _ := cmd.Flags().GetBool("with-worker")
	if cfg.Queue.Backend == "memory" && !withWorker {
		logger.Info("memory queue has no external consumer, running the worker in process")
		withWorker = true
	}
	reqs := []config.Requirement{config.NeedQueue, config.NeedChain}
	if withWorker {
		reqs = append(reqs, config.NeedStore)
	}
	if err := cfg.Require(reqs...); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rt := newRuntime(cfg, logger)
	defer rt.Close()

	publisher, err := rt.publisher(ctx)
	if err != nil {
		return err
	}
	ob, err := rt.outbox()
	if err != nil {
		return err
	}

	decoder, err := evm.NewBetDecoder(evm.DecoderConfig{Topic0Map: cfg.Chain.Topic0Map})
	if err != nil {
		return err
	}
	ingress := &httpapi.IngressHandler{
		Webhook: ingest.NewWebhookReceiver(decoder, ingest.WebhookConfig{
			ChainID:   cfg.Chain.ChainID,
			GroupID:   cfg.GroupID,
			Contracts: cfg.Chain.Contracts,
		}, publisher, ob, rt.metrics, logger.Named("webhook")),
		Secret: cfg.HTTP.WebhookSecret,
		Logger: logger,
	}
	if cfg.IDLPath != "" {
		idl, err := solana.LoadIDL(cfg.IDLPath)
		if err != nil {
			return err
		}
		solDecoder, err := solana.NewDecoder(idl)
		if err != nil {
			return err
		}
		ingress.Scan = ingest.NewScanReceiver(solDecoder, ingest.ScanConfig{GroupID: cfg.GroupID},
			publisher, ob, rt.metrics, logger.Named("scan"))
	} else {
		logger.Warn("no idl configured, /scan/solana disabled")
	}
	if cfg.HTTP.WebhookSecret == "" {
		logger.Warn("webhook-secret is empty, ingress endpoints are unauthenticated")
	}

	replayer := outbox.NewReplayer(ob, publisher, cfg.Outbox.BatchSize, rt.metrics, logger.Named("outbox"))
	stopReplay, err := replayer.Schedule(ctx, cfg.Outbox.ReplaySpec)
	if err != nil {
		return err
	}
	defer stopReplay()

	g, gctx := errgroup.WithContext(ctx)

	if withWorker {
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
		g.Go(func() error {
			return ignoreCanceled(consumer.Consume(gctx, proc.Handle))
		})
	}

	engine := httpapi.NewEngine(cfg.HTTP.Debug, logger.Named("http"))
	ingress.Register(engine)
	(&httpapi.HealthHandler{Checks: rt.checks}).Register(engine)
	server := httpapi.NewServer(cfg.HTTP.Listen, engine)

	g.Go(func() error {
		logger.Info("serve start",
			zap.String("listen", cfg.HTTP.Listen),
			zap.String("queue", cfg.Queue.Backend),
			zap.String("group_id", cfg.GroupID),
			zap.Uint64("chain_id", cfg.Chain.ChainID),
			zap.Int("contracts", len(cfg.Chain.Contracts)),
			zap.Bool("scan", ingress.Scan != nil),
			zap.Bool("worker", withWorker),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("serve stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
