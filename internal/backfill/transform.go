package backfill

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"wagerSync/internal/model"
)

// toWebhookLog shapes a fetched log like the provider's webhook entry.
// Logs returned by eth_getLogs only come from successful transactions.
func toWebhookLog(log types.Log, sender string) model.WebhookLog {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	wl := model.WebhookLog{
		Data:   hexutil.Encode(log.Data),
		Topics: topics,
		Index:  uint64(log.Index),
	}
	wl.Account.Address = log.Address.Hex()
	wl.Transaction.Hash = log.TxHash.Hex()
	wl.Transaction.From.Address = sender
	wl.Transaction.Status = types.ReceiptStatusSuccessful
	return wl
}
