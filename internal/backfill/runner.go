// Package backfill replays historical bet contract logs through the webhook
// receiver, so history and live deliveries share dedup keys and handlers.
package backfill

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"wagerSync/internal/ingest"
	"wagerSync/internal/model"
)

// Chain is the RPC surface the runner needs.
type Chain interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	TransactionSender(ctx context.Context, txHash, blockHash common.Hash, txIndex uint) (common.Address, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// BlockReceiver accepts a block of provider-shaped logs.
type BlockReceiver interface {
	ReceiveBlock(ctx context.Context, block model.WebhookBlock) (ingest.Ack, error)
}

type RunConfig struct {
	FromBlock uint64
	// ToBlock 0 means the chain head.
	ToBlock uint64
	// ExpectChainID, when set, must match the RPC endpoint's chain id.
	ExpectChainID uint64
	Addresses     []common.Address
	Topic0        []common.Hash
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Runner walks a block range and feeds each block's logs to a receiver.
type Runner struct {
	cfg        RunConfig
	chain      Chain
	receiver   BlockReceiver
	checkpoint Checkpointer
	logger     *zap.Logger
}

// NewRunner builds a Runner. checkpoint may be nil.
func NewRunner(cfg RunConfig, chain Chain, receiver BlockReceiver, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chain,
		receiver:   receiver,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// Stats summarizes a run.
type Stats struct {
	From     uint64
	To       uint64
	Blocks   int
	Logs     int
	Messages int
}

// Run re-ingests the configured range, saving the checkpoint after each batch.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if r.chain == nil {
		return stats, fmt.Errorf("chain client is nil")
	}
	if r.receiver == nil {
		return stats, fmt.Errorf("receiver is nil")
	}
	if r.cfg.BatchSize == 0 {
		return stats, fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return stats, fmt.Errorf("at least one contract address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return stats, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return stats, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	if r.cfg.ExpectChainID != 0 && chainID.Uint64() != r.cfg.ExpectChainID {
		return stats, fmt.Errorf("rpc chain id %s does not match configured %d", chainID, r.cfg.ExpectChainID)
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return stats, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return stats, err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}
	stats.From, stats.To = from, to

	if from > to {
		r.logger.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("to", to))
		return stats, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return stats, err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return stats, fmt.Errorf("filter logs: %w", err)
		}

		blocks, err := r.buildBlocks(ctx, logs)
		if err != nil {
			return stats, err
		}
		for _, block := range blocks {
			ack, err := r.receiver.ReceiveBlock(ctx, block)
			if err != nil {
				return stats, fmt.Errorf("receive block %s: %w", block.Hash, err)
			}
			stats.Blocks++
			stats.Logs += len(block.Logs)
			stats.Messages += len(ack.Messages)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return stats, err
			}
		}
		r.logger.Info("batch complete",
			zap.Int("logs", len(logs)),
			zap.Int("blocks", len(blocks)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}
	return stats, nil
}

// buildBlocks groups logs by block hash in the order they were returned.
func (r *Runner) buildBlocks(ctx context.Context, logs []types.Log) ([]model.WebhookBlock, error) {
	var blocks []model.WebhookBlock
	index := make(map[common.Hash]int)
	senders := make(map[common.Hash]string)

	for _, log := range logs {
		if log.Removed {
			continue
		}
		i, ok := index[log.BlockHash]
		if !ok {
			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			blocks = append(blocks, model.WebhookBlock{
				Hash:      log.BlockHash.Hex(),
				Number:    log.BlockNumber,
				Timestamp: ts,
			})
			i = len(blocks) - 1
			index[log.BlockHash] = i
		}

		sender, ok := senders[log.TxHash]
		if !ok {
			from, err := r.senderWithRetry(ctx, log)
			if err != nil {
				return nil, fmt.Errorf("sender of %s: %w", log.TxHash.Hex(), err)
			}
			sender = from.Hex()
			senders[log.TxHash] = sender
		}
		blocks[i].Logs = append(blocks[i].Logs, toWebhookLog(log, sender))
	}
	return blocks, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) senderWithRetry(ctx context.Context, log types.Log) (common.Address, error) {
	var from common.Address
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		from, err = r.chain.TransactionSender(ctx, log.TxHash, log.BlockHash, log.TxIndex)
		if err != nil {
			r.logger.Warn("transaction sender fetch failed", zap.Error(err), zap.String("tx", log.TxHash.Hex()))
		}
		return err
	})
	return from, err
}
