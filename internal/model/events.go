package model

// CanonicalEvent is a decoded on-chain event with every field normalized to a
// string: integers in decimal, EVM addresses in checksum hex, Solana keys in
// base58 and booleans as "true"/"false".
type CanonicalEvent struct {
	EventName string            `json:"eventName"`
	Data      map[string]string `json:"data"`
}

// Envelope is the queue message body. EVM messages carry a block's worth of
// same-named events in Bets; Solana messages carry a single event in Data.
type Envelope struct {
	EventName string              `json:"eventName"`
	Bets      []map[string]string `json:"bets,omitempty"`
	Data      map[string]string   `json:"data,omitempty"`
}

// Items returns the field maps carried by the envelope.
func (e Envelope) Items() []map[string]string {
	if len(e.Bets) > 0 {
		return e.Bets
	}
	if e.Data != nil {
		return []map[string]string{e.Data}
	}
	return nil
}
