package model

// DecodeError records a decode failure for a log line or program data line.
type DecodeError struct {
	Source      string `json:"source"`
	ChainID     uint64 `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index,omitempty"`
	Address     string `json:"address,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	Line        string `json:"line,omitempty"`
	Error       string `json:"error"`
}
