package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wagerSync/internal/backfill"
	"wagerSync/internal/chain"
	"wagerSync/internal/config"
	"wagerSync/internal/evm"
	"wagerSync/internal/ingest"
)

const checkpointStateName = "backfill.evm"

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reqs := []config.Requirement{config.NeedQueue, config.NeedChain, config.NeedRPC}
	if cfg.Queue.Backend == "memory" || (cfg.Backfill.CheckpointEnabled && cfg.Backfill.CheckpointBackend == "store") {
		reqs = append(reqs, config.NeedStore)
	}
	if err := cfg.Require(reqs...); err != nil {
		return err
	}

	addresses, err := backfill.ParseAddresses(cfg.Chain.Contracts)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rt := newRuntime(cfg, logger)
	defer rt.Close()

	chainClient, err := chain.NewClient(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	decoder, err := evm.NewBetDecoder(evm.DecoderConfig{Topic0Map: cfg.Chain.Topic0Map})
	if err != nil {
		return err
	}
	publisher, err := rt.publisher(ctx)
	if err != nil {
		return err
	}
	ob, err := rt.outbox()
	if err != nil {
		return err
	}
	receiver := ingest.NewWebhookReceiver(decoder, ingest.WebhookConfig{
		ChainID:   cfg.Chain.ChainID,
		GroupID:   cfg.GroupID,
		Contracts: cfg.Chain.Contracts,
	}, publisher, ob, rt.metrics, logger.Named("webhook"))

	var checkpoint backfill.Checkpointer
	if cfg.Backfill.CheckpointEnabled {
		switch cfg.Backfill.CheckpointBackend {
		case "", "file":
			checkpoint = backfill.NewFileCheckpoint(cfg.Backfill.Checkpoint)
		case "store":
			_, state, err := rt.store(ctx)
			if err != nil {
				return err
			}
			checkpoint = backfill.NewStateCheckpoint(state, checkpointStateName)
		default:
			return fmt.Errorf("unknown checkpoint-backend %q", cfg.Backfill.CheckpointBackend)
		}
	}

	runner := backfill.NewRunner(backfill.RunConfig{
		FromBlock:     cfg.Backfill.FromBlock,
		ToBlock:       cfg.Backfill.ToBlock,
		ExpectChainID: cfg.Chain.ChainID,
		Addresses:     addresses,
		Topic0:        decoder.Topics(),
		BatchSize:     cfg.Backfill.BatchSize,
		MaxRetries:    cfg.Backfill.MaxRetries,
		RetryBackoff:  cfg.Backfill.RetryBackoff,
	}, chainClient, receiver, checkpoint, logger.Named("backfill"))

	logger.Info("backfill start",
		zap.Uint64("from", cfg.Backfill.FromBlock),
		zap.Uint64("to", cfg.Backfill.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Uint64("batch_size", cfg.Backfill.BatchSize),
		zap.String("queue", cfg.Queue.Backend),
		zap.Bool("checkpoint_enabled", cfg.Backfill.CheckpointEnabled),
		zap.String("checkpoint_backend", cfg.Backfill.CheckpointBackend),
	)

	stats, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("backfill complete",
		zap.Uint64("from", stats.From),
		zap.Uint64("to", stats.To),
		zap.Int("blocks", stats.Blocks),
		zap.Int("logs", stats.Logs),
		zap.Int("messages", stats.Messages),
	)

	// With the memory queue nothing else can consume, so apply the
	// messages here before exiting.
	if broker := rt.broker; broker != nil {
		store, _, err := rt.store(ctx)
		if err != nil {
			return err
		}
		proc, err := rt.processor(ctx, store)
		if err != nil {
			return err
		}
		for broker.Pending() > 0 {
			if err := broker.Drain(ctx, proc.Handle); err != nil {
				return err
			}
			if broker.Pending() == 0 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Queue.RedeliveryDelay):
			}
		}
		logger.Info("applied backfilled messages",
			zap.Int("pending", broker.Pending()),
			zap.Int("dead_letters", len(broker.DeadLetters())),
		)
	}
	return nil
}
