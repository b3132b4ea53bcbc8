package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"wagerSync/internal/evm"
	"wagerSync/internal/metrics"
	"wagerSync/internal/model"
	"wagerSync/internal/queue"
)

const sourceEVM = "evm"

type WebhookConfig struct {
	ChainID uint64
	GroupID string
	// Contracts limits decoding to these addresses when non-empty.
	Contracts []string
}

// Ack is the webhook response.
type Ack struct {
	Status    string   `json:"status"`
	Block     string   `json:"block,omitempty"`
	Events    int      `json:"events"`
	Messages  []string `json:"messages,omitempty"`
	Dropped   int      `json:"dropped"`
	Published int      `json:"published"`
	Stashed   int      `json:"stashed"`
}

// WebhookReceiver handles EVM address-activity webhooks.
type WebhookReceiver struct {
	decoder   evm.Decoder
	cfg       WebhookConfig
	contracts map[string]bool
	dispatcher
}

func NewWebhookReceiver(decoder evm.Decoder, cfg WebhookConfig, publisher queue.Publisher, stash Stash, m *metrics.Metrics, log *zap.Logger) *WebhookReceiver {
	if log == nil {
		log = zap.NewNop()
	}
	contracts := make(map[string]bool, len(cfg.Contracts))
	for _, c := range cfg.Contracts {
		contracts[strings.ToLower(c)] = true
	}
	return &WebhookReceiver{
		decoder:    decoder,
		cfg:        cfg,
		contracts:  contracts,
		dispatcher: dispatcher{publisher: publisher, stash: stash, metrics: m, log: log},
	}
}

// Receive parses a provider payload and publishes its decoded events.
func (r *WebhookReceiver) Receive(ctx context.Context, body []byte) (Ack, error) {
	var payload model.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Ack{}, badRequest("invalid json: %v", err)
	}
	block := payload.Event.Data.Block
	if block == nil {
		return Ack{}, badRequest("missing event.data.block")
	}
	if block.Hash == "" {
		return Ack{}, badRequest("missing block hash")
	}
	return r.ReceiveBlock(ctx, *block)
}

// ReceiveBlock decodes a block's logs, groups them by event name and
// publishes one message per name keyed by block hash.
func (r *WebhookReceiver) ReceiveBlock(ctx context.Context, block model.WebhookBlock) (Ack, error) {
	ack := Ack{Status: "ok", Block: block.Hash}

	var order []string
	grouped := make(map[string][]map[string]string)
	for _, wl := range block.Logs {
		if wl.Transaction.Status != 1 {
			continue
		}
		if len(r.contracts) > 0 && !r.contracts[strings.ToLower(wl.Account.Address)] {
			continue
		}
		record := toLogRecord(r.cfg.ChainID, block, wl)
		if !r.decoder.CanDecode(record.Topic0()) {
			continue
		}

		ev, err := r.decoder.Decode(record)
		if err != nil {
			ack.Dropped++
			r.metrics.DecodeFailed(sourceEVM)
			r.log.Warn("decode failed", zap.Any("log", model.DecodeError{
				Source:      sourceEVM,
				ChainID:     record.ChainID,
				BlockNumber: record.BlockNumber,
				TxHash:      record.TxHash,
				LogIndex:    record.LogIndex,
				Address:     record.Address,
				Topic0:      record.Topic0(),
				Error:       err.Error(),
			}))
			continue
		}
		r.metrics.Decoded(sourceEVM)
		if _, ok := grouped[ev.EventName]; !ok {
			order = append(order, ev.EventName)
		}
		grouped[ev.EventName] = append(grouped[ev.EventName], ev.Data)
		ack.Events++
	}

	var res publishResult
	groupID := r.cfg.GroupID + "-bets"
	for _, name := range order {
		body, err := json.Marshal(model.Envelope{EventName: name, Bets: grouped[name]})
		if err != nil {
			r.log.Error("encode envelope", zap.String("event", name), zap.Error(err))
			continue
		}
		msg := queue.NewMessage(block.Hash+":"+name, groupID, body)
		r.send(ctx, msg, &res)
		ack.Messages = append(ack.Messages, msg.DedupKey)
	}
	ack.Published = res.Published
	ack.Stashed = res.Stashed

	if ack.Events > 0 || ack.Dropped > 0 {
		r.log.Info("webhook block processed",
			zap.String("block", block.Hash),
			zap.Uint64("number", block.Number),
			zap.Int("events", ack.Events),
			zap.Int("dropped", ack.Dropped),
			zap.Int("published", res.Published),
			zap.Int("stashed", res.Stashed),
		)
	}
	return ack, nil
}

func toLogRecord(chainID uint64, block model.WebhookBlock, wl model.WebhookLog) model.LogRecord {
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: block.Number,
		BlockHash:   block.Hash,
		TxHash:      wl.Transaction.Hash,
		TxFrom:      wl.Transaction.From.Address,
		TxValue:     wl.Transaction.Value,
		TxStatus:    wl.Transaction.Status,
		LogIndex:    wl.Index,
		Address:     wl.Account.Address,
		Topics:      wl.Topics,
		Data:        wl.Data,
		Timestamp:   block.Timestamp,
	}
}
