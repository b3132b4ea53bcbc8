// Package event defines the closed set of canonical events the processor
// understands. Every kind implements Event and is dispatched through Visitor,
// so adding a kind without a handler method does not compile.
package event

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

const (
	NameBetCreated        = "BetCreated"
	NameBetAccepted       = "BetAccepted"
	NameBetWithdrawn      = "BetWithdrawn"
	NameBetSettled        = "BetSettled"
	NameBetPaid           = "BetPaid"
	NamePoolCreated       = "PoolCreated"
	NameOptionCreated     = "OptionCreated"
	NamePoolEntered       = "PoolEntered"
	NamePoolStatusUpdated = "PoolStatusUpdated"
	NameWinnerSet         = "WinnerSet"
	NameWinClaimed        = "WinClaimed"
)

// Event is one typed canonical event.
type Event interface {
	Name() string
	accept(ctx context.Context, v Visitor) error
}

// Visitor handles every event kind.
type Visitor interface {
	OnBetCreated(ctx context.Context, e BetCreated) error
	OnBetAccepted(ctx context.Context, e BetAccepted) error
	OnBetWithdrawn(ctx context.Context, e BetWithdrawn) error
	OnBetSettled(ctx context.Context, e BetSettled) error
	OnBetPaid(ctx context.Context, e BetPaid) error
	OnPoolCreated(ctx context.Context, e PoolCreated) error
	OnOptionCreated(ctx context.Context, e OptionCreated) error
	OnPoolEntered(ctx context.Context, e PoolEntered) error
	OnPoolStatusUpdated(ctx context.Context, e PoolStatusUpdated) error
	OnWinnerSet(ctx context.Context, e WinnerSet) error
	OnWinClaimed(ctx context.Context, e WinClaimed) error
}

// Dispatch routes e to the matching Visitor method.
func Dispatch(ctx context.Context, e Event, v Visitor) error {
	return e.accept(ctx, v)
}

// BetRef identifies the bet and the log an EVM event came from.
type BetRef struct {
	ChainID     uint64
	Contract    string
	BetID       string
	Sender      string
	TxHash      string
	BlockHash   string
	BlockNumber uint64
	LogIndex    uint64
	Timestamp   time.Time
}

// ID is the stable bet identifier.
func (r BetRef) ID() string {
	return BetKey(r.ChainID, r.Contract, r.BetID)
}

// BetKey builds the bet identifier from its on-chain coordinates.
func BetKey(chainID uint64, contract, betID string) string {
	return fmt.Sprintf("%d:%s:%s", chainID, lower(contract), betID)
}

// Seq orders Solana events by slot and then by log line. The line index is
// only meaningful inside one transaction; use SeqSlot to compare events from
// different transactions.
func Seq(slot uint64, line int) uint64 {
	return slot<<16 | uint64(line&0xffff)
}

// SeqSlot returns the slot a Seq was built from.
func SeqSlot(seq uint64) uint64 {
	return seq >> 16
}

// ScanRef locates a Solana event inside the scanned transaction.
type ScanRef struct {
	Signature string
	Slot      uint64
	Seq       uint64
	BlockTime time.Time
}

type BetCreated struct {
	BetRef
	Creator      string
	Value        *big.Int
	Currency     string
	Ticker       string
	Metric       string
	IsLong       bool
	CreatorPrice string
	ExpiresAt    time.Time
}

type BetAccepted struct {
	BetRef
	Acceptor      string
	AcceptorPrice string
}

type BetWithdrawn struct {
	BetRef
	Creator string
}

type BetSettled struct {
	BetRef
	Winner          string
	SettlementPrice string
}

type BetPaid struct {
	BetRef
	Winner string
	Amount *big.Int
}

type PoolCreated struct {
	ScanRef
	Pool        string
	Title       string
	Description string
	Image       string
	CreatedAt   time.Time
}

type OptionCreated struct {
	ScanRef
	Option string
	Pool   string
	Title  string
}

type PoolEntered struct {
	ScanRef
	Entry   string
	Option  string
	Pool    string
	Entrant string
	Value   *big.Int
}

type PoolStatusUpdated struct {
	ScanRef
	Pool     string
	IsPaused bool
}

type WinnerSet struct {
	ScanRef
	Pool   string
	Option string
}

type WinClaimed struct {
	ScanRef
	Entry   string
	Entrant string
	Amount  *big.Int
}

func (BetCreated) Name() string        { return NameBetCreated }
func (BetAccepted) Name() string       { return NameBetAccepted }
func (BetWithdrawn) Name() string      { return NameBetWithdrawn }
func (BetSettled) Name() string        { return NameBetSettled }
func (BetPaid) Name() string           { return NameBetPaid }
func (PoolCreated) Name() string       { return NamePoolCreated }
func (OptionCreated) Name() string     { return NameOptionCreated }
func (PoolEntered) Name() string       { return NamePoolEntered }
func (PoolStatusUpdated) Name() string { return NamePoolStatusUpdated }
func (WinnerSet) Name() string         { return NameWinnerSet }
func (WinClaimed) Name() string        { return NameWinClaimed }

func (e BetCreated) accept(ctx context.Context, v Visitor) error   { return v.OnBetCreated(ctx, e) }
func (e BetAccepted) accept(ctx context.Context, v Visitor) error  { return v.OnBetAccepted(ctx, e) }
func (e BetWithdrawn) accept(ctx context.Context, v Visitor) error { return v.OnBetWithdrawn(ctx, e) }
func (e BetSettled) accept(ctx context.Context, v Visitor) error   { return v.OnBetSettled(ctx, e) }
func (e BetPaid) accept(ctx context.Context, v Visitor) error      { return v.OnBetPaid(ctx, e) }
func (e PoolCreated) accept(ctx context.Context, v Visitor) error  { return v.OnPoolCreated(ctx, e) }
func (e OptionCreated) accept(ctx context.Context, v Visitor) error {
	return v.OnOptionCreated(ctx, e)
}
func (e PoolEntered) accept(ctx context.Context, v Visitor) error { return v.OnPoolEntered(ctx, e) }
func (e PoolStatusUpdated) accept(ctx context.Context, v Visitor) error {
	return v.OnPoolStatusUpdated(ctx, e)
}
func (e WinnerSet) accept(ctx context.Context, v Visitor) error  { return v.OnWinnerSet(ctx, e) }
func (e WinClaimed) accept(ctx context.Context, v Visitor) error { return v.OnWinClaimed(ctx, e) }
