package storage

import (
	"context"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"wagerSync/internal/model"
)

// ErrNotFound is returned by point lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

// Repository is the set of entity operations available inside a transaction.
// Insert methods report whether a row was created; an existing row is left
// untouched.
type Repository interface {
	// MarkProcessed records a message dedup key and reports whether it was
	// seen for the first time.
	MarkProcessed(ctx context.Context, key, eventName string) (bool, error)

	InsertBet(ctx context.Context, bet model.Bet) (bool, error)
	GetBet(ctx context.Context, id string) (model.Bet, error)
	UpdateBet(ctx context.Context, bet model.Bet) error

	InsertPool(ctx context.Context, pool model.Pool) (bool, error)
	GetPool(ctx context.Context, address string) (model.Pool, error)
	UpdatePoolStatus(ctx context.Context, address string, paused bool, seq uint64) error
	SetPoolWinner(ctx context.Context, address, option string) error
	AddPoolValue(ctx context.Context, address string, delta *big.Int) error

	InsertOption(ctx context.Context, option model.PoolOption) (bool, error)
	GetOption(ctx context.Context, address string) (model.PoolOption, error)
	ListOptions(ctx context.Context, pool string) ([]model.PoolOption, error)
	AddOptionValue(ctx context.Context, address string, delta *big.Int) error
	MarkWinningOption(ctx context.Context, address string) error

	// AddEntryValue inserts the entry or adds delta to its stored value.
	AddEntryValue(ctx context.Context, entry model.PoolEntry, delta *big.Int) error
	GetEntry(ctx context.Context, address string) (model.PoolEntry, error)
	MarkEntryClaimed(ctx context.Context, address string) error

	AddPoints(ctx context.Context, wallet string, points decimal.Decimal) error
	GetPoints(ctx context.Context, wallet string) (decimal.Decimal, error)
}

// Store runs units of work atomically.
type Store interface {
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// StateStore persists named progress markers such as backfill checkpoints.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, value uint64) error
}
