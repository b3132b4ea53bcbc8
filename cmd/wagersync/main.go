package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wagerSync/internal/config"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "wagersync",
		Short:        "Bet and pool event ingestion and state sync",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and log-scan receivers",
		RunE:  runServe,
	}
	addChainFlags(serveCmd.Flags())
	addQueueFlags(serveCmd.Flags())
	addRedisFlags(serveCmd.Flags())
	addOutboxFlags(serveCmd.Flags())
	addStoreFlags(serveCmd.Flags())
	addDeadLetterFlags(serveCmd.Flags())
	serveCmd.Flags().String("idl", "", "Anchor IDL for the pool program (enables /scan/solana)")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("webhook-secret", "", "shared secret expected in X-Webhook-Secret")
	serveCmd.Flags().Bool("debug", false, "gin debug mode")
	serveCmd.Flags().Bool("with-worker", false, "also run the processor in this process")
	root.AddCommand(serveCmd)

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the dispatch queue and apply events to the store",
		RunE:  runWorker,
	}
	addQueueFlags(workerCmd.Flags())
	addRedisFlags(workerCmd.Flags())
	addStoreFlags(workerCmd.Flags())
	addDeadLetterFlags(workerCmd.Flags())
	workerCmd.Flags().String("listen", ":9090", "metrics and health listen address")
	root.AddCommand(workerCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-ingest a range of EVM blocks through the webhook receiver",
		RunE:  runBackfill,
	}
	addChainFlags(backfillCmd.Flags())
	addQueueFlags(backfillCmd.Flags())
	addRedisFlags(backfillCmd.Flags())
	addOutboxFlags(backfillCmd.Flags())
	addStoreFlags(backfillCmd.Flags())
	backfillCmd.Flags().String("rpc", "", "EVM RPC URL")
	backfillCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	backfillCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	backfillCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	backfillCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	backfillCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	backfillCmd.Flags().String("checkpoint-backend", "file", "checkpoint backend (file, store)")
	backfillCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	backfillCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(backfillCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode captured logs into canonical events",
		RunE:  runDecode,
	}
	decodeCmd.Flags().String("in", "", "input JSONL (EVM log records or Solana transactions)")
	decodeCmd.Flags().String("out", "./data/events.jsonl", "output canonical events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("source", "evm", "input source (evm, solana)")
	decodeCmd.Flags().String("idl", "", "Anchor IDL path (solana)")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	root.AddCommand(decodeCmd)

	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the local publish outbox",
	}
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish stashed messages once",
		RunE:  runOutboxReplay,
	}
	addQueueFlags(replayCmd.Flags())
	addRedisFlags(replayCmd.Flags())
	addOutboxFlags(replayCmd.Flags())
	outboxCmd.AddCommand(replayCmd)
	root.AddCommand(outboxCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE:  runMigrate,
	}
	addPostgresFlags(migrateCmd.Flags())
	root.AddCommand(migrateCmd)

	deadLettersCmd := &cobra.Command{
		Use:   "deadletters",
		Short: "Work with archived dead letters",
	}
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply archived dead letters in order and print the ids that still fail",
		RunE:  runApplyDeadLetters,
	}
	addRedisFlags(applyCmd.Flags())
	addStoreFlags(applyCmd.Flags())
	applyCmd.Flags().String("in", "", "dead letters as JSON objects, one after another")
	deadLettersCmd.AddCommand(applyCmd)
	root.AddCommand(deadLettersCmd)

	oddsCmd := &cobra.Command{
		Use:   "odds",
		Short: "Print the option percentages of a pool",
		RunE:  runOdds,
	}
	addPostgresFlags(oddsCmd.Flags())
	oddsCmd.Flags().String("pool", "", "pool address")
	oddsCmd.Flags().Int("precision", 2, "extra digits kept before rounding")
	root.AddCommand(oddsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(flags *pflag.FlagSet) {
	flags.Uint64("chain-id", 0, "EVM chain id stamped on decoded bets")
	flags.StringSlice("contract", nil, "bet contract addresses (comma-separated)")
	flags.String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	flags.String("group-id", "", "queue group id prefix")
}

func addQueueFlags(flags *pflag.FlagSet) {
	if flags.Lookup("group-id") == nil {
		flags.String("group-id", "", "queue group id prefix")
	}
	flags.String("queue-backend", "kafka", "dispatch queue backend (kafka, memory)")
	flags.StringSlice("kafka-brokers", nil, "kafka brokers (comma-separated)")
	flags.String("kafka-topic", "wagersync.events", "kafka topic")
	flags.String("kafka-consumer-group", "wagersync-processor", "kafka consumer group")
	flags.Int("max-deliveries", 3, "deliveries before a message is dead-lettered")
	flags.Duration("dedup-window", 5*time.Minute, "publish dedup window")
	flags.Duration("redelivery-delay", 500*time.Millisecond, "initial redelivery delay")
}

func addRedisFlags(flags *pflag.FlagSet) {
	flags.String("redis-addr", "", "redis address for publish dedup and notifications")
	flags.String("redis-password", "", "redis password")
	flags.Int("redis-db", 0, "redis database")
	flags.String("notify-channel", "wagersync.events", "redis pub/sub channel")
}

func addOutboxFlags(flags *pflag.FlagSet) {
	flags.String("outbox-path", "./data/outbox.db", "sqlite outbox path")
	flags.String("outbox-replay-spec", "@every 30s", "outbox replay schedule")
	flags.Int("outbox-batch", 100, "messages per outbox replay")
}

func addStoreFlags(flags *pflag.FlagSet) {
	flags.String("store", "postgres", "persistence backend (postgres, memory)")
	flags.String("points-per-unit", "100", "points per whole token entered")
	addPostgresFlags(flags)
}

func addPostgresFlags(flags *pflag.FlagSet) {
	flags.String("pg-host", "", "postgres host")
	flags.Int("pg-port", 5432, "postgres port")
	flags.String("pg-user", "", "postgres user")
	flags.String("pg-password", "", "postgres password")
	flags.String("pg-database", "", "postgres database")
	flags.String("pg-sslmode", "disable", "postgres sslmode")
}

func addDeadLetterFlags(flags *pflag.FlagSet) {
	flags.String("dlq-backend", "log", "dead-letter sinks (log, kafka, s3; comma-separated)")
	flags.String("dlq-topic", "wagersync.events.dlq", "kafka dead-letter topic")
	flags.String("s3-bucket", "", "S3 dead-letter bucket")
	flags.String("s3-region", "", "S3 region")
	flags.String("s3-endpoint", "", "S3 endpoint (MinIO, R2)")
	flags.String("s3-prefix", "dead-letter", "S3 key prefix")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.Bool("s3-path-style", false, "S3 path-style addressing")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
