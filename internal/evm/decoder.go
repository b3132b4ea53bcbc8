package evm

import "wagerSync/internal/model"

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.CanonicalEvent, error)
}
