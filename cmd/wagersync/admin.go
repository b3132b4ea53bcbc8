package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wagerSync/internal/config"
	"wagerSync/internal/model"
	"wagerSync/internal/odds"
	"wagerSync/internal/outbox"
	"wagerSync/internal/queue"
	"wagerSync/internal/storage"
	"wagerSync/internal/storage/postgres"
)

func runOutboxReplay(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Queue.Backend == "memory" {
		return fmt.Errorf("outbox replay needs a shared queue backend")
	}
	if err := cfg.Require(config.NeedQueue); err != nil {
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

	before, err := ob.Count(ctx)
	if err != nil {
		return err
	}
	replayer := outbox.NewReplayer(ob, publisher, cfg.Outbox.BatchSize, rt.metrics, logger.Named("outbox"))

	var published, failed int
	for {
		p, f, err := replayer.Drain(ctx)
		if err != nil {
			return err
		}
		published += p
		failed += f
		// a batch with failures would be picked up again immediately
		if p == 0 || f > 0 {
			break
		}
	}

	remaining, err := ob.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("outbox replay complete",
		zap.String("path", cfg.Outbox.Path),
		zap.Int("pending_before", before),
		zap.Int("published", published),
		zap.Int("failed", failed),
		zap.Int("remaining", remaining),
	)
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg.Store = "postgres"
	if err := cfg.Require(config.NeedStore); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connect postgres %s: %w", cfg.Postgres.Redacted(), err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema applied", zap.String("database", cfg.Postgres.Redacted()))
	return nil
}

func runOdds(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, _ := cmd.Flags().GetString("pool")
	if pool == "" {
		return fmt.Errorf("pool is required")
	}
	precision, _ := cmd.Flags().GetInt("precision")

	cfg.Store = "postgres"
	if err := cfg.Require(config.NeedStore); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connect postgres %s: %w", cfg.Postgres.Redacted(), err)
	}
	defer store.Close()

	var options []model.PoolOption
	err = store.WithTx(ctx, func(repo storage.Repository) error {
		if _, err := repo.GetPool(ctx, pool); err != nil {
			return fmt.Errorf("pool %s: %w", pool, err)
		}
		options, err = repo.ListOptions(ctx, pool)
		return err
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, o := range odds.PoolOdds(options, precision) {
		marker := ""
		if o.Option.IsWinningOption {
			marker = "\twinner"
		}
		fmt.Fprintf(out, "%s\t%s\t%d%%%s\n", o.Option.Address, o.Option.Title, o.Percent, marker)
	}
	return nil
}

func runApplyDeadLetters(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	in, _ := cmd.Flags().GetString("in")
	if in == "" {
		return fmt.Errorf("in is required")
	}
	if err := cfg.Require(config.NeedStore); err != nil {
		return err
	}

	file, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open dead letters: %w", err)
	}
	defer file.Close()
	msgs, err := readDeadLetters(file)
	if err != nil {
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

	failures := proc.HandleBatch(ctx, msgs)
	out := cmd.OutOrStdout()
	for _, f := range failures {
		fmt.Fprintln(out, f.ItemIdentifier)
	}
	logger.Info("dead letters applied",
		zap.String("in", in),
		zap.Int("messages", len(msgs)),
		zap.Int("failed", len(failures)),
	)
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d messages not applied", len(failures), len(msgs))
	}
	return nil
}

// readDeadLetters reads archived dead letters, one JSON object after another,
// and returns their messages with the delivery count reset.
func readDeadLetters(r io.Reader) ([]queue.Message, error) {
	dec := json.NewDecoder(r)
	var msgs []queue.Message
	for {
		var letter queue.DeadLetter
		err := dec.Decode(&letter)
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("dead letter %d: %w", len(msgs)+1, err)
		}
		msg := letter.Message
		msg.Attempt = 0
		msgs = append(msgs, msg)
	}
}
