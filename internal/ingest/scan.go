package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wagerSync/internal/event"
	"wagerSync/internal/metrics"
	"wagerSync/internal/model"
	"wagerSync/internal/queue"
	"wagerSync/internal/solana"
)

const sourceSolana = "solana"

type ScanConfig struct {
	GroupID string
}

// Summary is the log-scan response.
type Summary struct {
	Message   string `json:"message"`
	Signature string `json:"signature,omitempty"`
	Events    int    `json:"events"`
	Dropped   int    `json:"dropped"`
	Published int    `json:"published"`
	Stashed   int    `json:"stashed"`
}

// ScanReceiver handles Solana transaction log scans.
type ScanReceiver struct {
	decoder *solana.Decoder
	cfg     ScanConfig
	dispatcher
}

func NewScanReceiver(decoder *solana.Decoder, cfg ScanConfig, publisher queue.Publisher, stash Stash, m *metrics.Metrics, log *zap.Logger) *ScanReceiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScanReceiver{
		decoder:    decoder,
		cfg:        cfg,
		dispatcher: dispatcher{publisher: publisher, stash: stash, metrics: m, log: log},
	}
}

// Receive decodes the program data lines of the first transaction in body
// and publishes each event as its own message.
func (r *ScanReceiver) Receive(ctx context.Context, body []byte) (Summary, error) {
	var batch model.ScanBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return Summary{}, badRequest("body must be a JSON array of transactions")
	}
	if len(batch) == 0 {
		return Summary{}, badRequest("empty transaction array")
	}
	tx := batch[0]
	if tx.Meta == nil || tx.Meta.LogMessages == nil {
		return Summary{}, badRequest("missing meta.logMessages")
	}
	if len(tx.Signatures) == 0 {
		return Summary{}, badRequest("missing signatures")
	}

	sig := strings.Join(tx.Signatures, ",")
	if failed(tx.Meta.Err) {
		r.log.Info("skipping failed transaction", zap.String("signature", sig))
		return Summary{Message: "skipped failed transaction", Signature: sig}, nil
	}

	summary := Summary{Signature: sig}
	ordinals := make(map[string]int)
	var res publishResult
	groupID := r.cfg.GroupID + "-pools"

	for _, pd := range solana.ProgramDataLines(tx.Meta.LogMessages) {
		idx := pd.Line
		ev, err := r.decoder.Decode(pd.Payload)
		if errors.Is(err, solana.ErrUnknownEvent) {
			r.log.Debug("skipping foreign program data", zap.Int("line", idx))
			continue
		}
		if err != nil {
			summary.Dropped++
			r.metrics.DecodeFailed(sourceSolana)
			r.log.Warn("decode failed", zap.Any("line", model.DecodeError{
				Source: sourceSolana,
				TxHash: sig,
				Line:   strconv.Itoa(idx),
				Error:  err.Error(),
			}))
			continue
		}
		r.metrics.Decoded(sourceSolana)
		summary.Events++

		ev.Data["signature"] = tx.Signatures[0]
		ev.Data["slot"] = strconv.FormatUint(tx.Slot, 10)
		ev.Data["seq"] = strconv.FormatUint(event.Seq(tx.Slot, idx), 10)
		if tx.BlockTime > 0 {
			ev.Data["blockTime"] = strconv.FormatInt(tx.BlockTime, 10)
		}

		body, err := json.Marshal(model.Envelope{EventName: ev.EventName, Data: ev.Data})
		if err != nil {
			r.log.Error("encode envelope", zap.String("event", ev.EventName), zap.Error(err))
			continue
		}
		ordinal := ordinals[ev.EventName]
		ordinals[ev.EventName]++
		key := fmt.Sprintf("%s:%s:%d", sig, ev.EventName, ordinal)
		r.send(ctx, queue.NewMessage(key, groupID, body), &res)
	}

	summary.Published = res.Published
	summary.Stashed = res.Stashed
	summary.Message = fmt.Sprintf("processed %d events", summary.Events)
	r.log.Info("scan processed",
		zap.String("signature", sig),
		zap.Uint64("slot", tx.Slot),
		zap.Int("events", summary.Events),
		zap.Int("dropped", summary.Dropped),
	)
	return summary, nil
}

func failed(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}
