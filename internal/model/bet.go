package model

import (
	"errors"
	"time"
)

// ErrInvalidTransition reports an event that cannot be applied to the current
// lifecycle state, such as a payout for a bet that never reached a terminal
// state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// BetStatus is the lifecycle stage of a bet.
type BetStatus string

const (
	BetStatusCreated   BetStatus = "created"
	BetStatusAccepted  BetStatus = "accepted"
	BetStatusSettled   BetStatus = "settled"
	BetStatusWithdrawn BetStatus = "withdrawn"
	BetStatusPaid      BetStatus = "paid"
)

// Rank orders statuses; settled and withdrawn are alternative terminal
// branches and share a rank.
func (s BetStatus) Rank() int {
	switch s {
	case BetStatusCreated:
		return 1
	case BetStatusAccepted:
		return 2
	case BetStatusSettled, BetStatusWithdrawn:
		return 3
	case BetStatusPaid:
		return 4
	default:
		return 0
	}
}

// Outcome tells the caller whether a transition changed the bet.
type Outcome int

const (
	Applied Outcome = iota
	Stale
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "stale"
}

// Bet is a peer-to-peer wager tracked from the EVM bet contract.
type Bet struct {
	ID              string     `json:"id"`
	ChainID         uint64     `json:"chain_id"`
	Contract        string     `json:"contract"`
	BetID           string     `json:"bet_id"`
	Creator         string     `json:"creator"`
	Acceptor        string     `json:"acceptor,omitempty"`
	Ticker          string     `json:"ticker"`
	Metric          string     `json:"metric"`
	IsLong          bool       `json:"is_long"`
	Value           string     `json:"value"`
	Currency        string     `json:"currency"`
	CreatorPrice    string     `json:"creator_price"`
	AcceptorPrice   string     `json:"acceptor_price,omitempty"`
	SettlementPrice string     `json:"settlement_price,omitempty"`
	Winner          string     `json:"winner,omitempty"`
	IsWithdrawn     bool       `json:"is_withdrawn"`
	IsPaid          bool       `json:"is_paid"`
	PaidTxHash      string     `json:"paid_tx_hash,omitempty"`
	Status          BetStatus  `json:"status"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
	WithdrawnAt     *time.Time `json:"withdrawn_at,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedTxHash   string     `json:"created_tx_hash"`
}

// Accept records the counterparty. A late acceptance that arrives after the
// bet already settled still fills the acceptor fields without moving the
// status backwards.
func (b *Bet) Accept(acceptor, price string, at time.Time) Outcome {
	if b.Acceptor != "" || b.IsWithdrawn {
		return Stale
	}
	b.Acceptor = acceptor
	b.AcceptorPrice = price
	b.AcceptedAt = TimePtr(at)
	b.advance(BetStatusAccepted)
	return Applied
}

// Withdraw cancels a bet that has not been settled.
func (b *Bet) Withdraw(at time.Time) Outcome {
	if b.IsWithdrawn || b.settled() {
		return Stale
	}
	b.IsWithdrawn = true
	b.WithdrawnAt = TimePtr(at)
	b.advance(BetStatusWithdrawn)
	return Applied
}

// Settle records the winner and settlement price.
func (b *Bet) Settle(winner, price string, at time.Time) Outcome {
	if b.settled() || b.IsWithdrawn {
		return Stale
	}
	b.Winner = winner
	b.SettlementPrice = price
	b.SettledAt = TimePtr(at)
	b.advance(BetStatusSettled)
	return Applied
}

// Pay marks the payout. It requires a prior settlement or withdrawal.
func (b *Bet) Pay(txHash string, at time.Time) (Outcome, error) {
	if b.IsPaid {
		return Stale, nil
	}
	if !b.settled() && !b.IsWithdrawn {
		return Stale, ErrInvalidTransition
	}
	b.IsPaid = true
	b.PaidTxHash = txHash
	b.PaidAt = TimePtr(at)
	b.advance(BetStatusPaid)
	return Applied, nil
}

func (b *Bet) advance(next BetStatus) {
	if next.Rank() > b.Status.Rank() {
		b.Status = next
	}
}

// settled reads the status rather than SettledAt, which stays nil when the
// event carried no block time.
func (b *Bet) settled() bool {
	return b.Status == BetStatusSettled || (b.Status == BetStatusPaid && !b.IsWithdrawn)
}

// TimePtr returns nil for the zero time.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
