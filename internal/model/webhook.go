package model

import "encoding/json"

// WebhookPayload is the address-activity notification pushed by the EVM
// provider.
type WebhookPayload struct {
	WebhookID string       `json:"webhookId"`
	ID        string       `json:"id"`
	CreatedAt string       `json:"createdAt"`
	Type      string       `json:"type"`
	Event     WebhookEvent `json:"event"`
}

type WebhookEvent struct {
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	Block *WebhookBlock `json:"block"`
}

// WebhookBlock is one block with the logs matched by the provider filter.
type WebhookBlock struct {
	Hash      string       `json:"hash"`
	Number    uint64       `json:"number"`
	Timestamp uint64       `json:"timestamp"`
	Logs      []WebhookLog `json:"logs"`
}

type WebhookLog struct {
	Data        string             `json:"data"`
	Topics      []string           `json:"topics"`
	Index       uint64             `json:"index"`
	Account     WebhookAccount     `json:"account"`
	Transaction WebhookTransaction `json:"transaction"`
}

type WebhookAccount struct {
	Address string `json:"address"`
}

type WebhookTransaction struct {
	Hash   string         `json:"hash"`
	From   WebhookAccount `json:"from"`
	Value  string         `json:"value"`
	Status uint64         `json:"status"`
}

// ScanBatch is the body of a Solana log-scan delivery: an array of
// transactions, of which the first carries the logs to inspect.
type ScanBatch []ScanTransaction

type ScanTransaction struct {
	Slot       uint64    `json:"slot"`
	BlockTime  int64     `json:"blockTime"`
	Signatures []string  `json:"signatures"`
	Meta       *ScanMeta `json:"meta"`
}

type ScanMeta struct {
	Err         json.RawMessage `json:"err,omitempty"`
	LogMessages []string        `json:"logMessages"`
}
