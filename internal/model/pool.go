package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Pool is a prediction market on the Solana program.
type Pool struct {
	Address       string     `json:"address"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Image         string     `json:"image"`
	Value         *big.Int   `json:"value"`
	IsPaused      bool       `json:"is_paused"`
	StatusSeq     uint64     `json:"status_seq"`
	WinningOption string     `json:"winning_option,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// PoolOption is one outcome of a pool.
type PoolOption struct {
	Address         string   `json:"address"`
	Pool            string   `json:"pool"`
	Title           string   `json:"title"`
	Value           *big.Int `json:"value"`
	IsWinningOption bool     `json:"is_winning_option"`
}

// PoolEntry is an entrant's accumulated stake on one option. Its address is
// derived on-chain from the option and entrant.
type PoolEntry struct {
	Address   string   `json:"address"`
	Entrant   string   `json:"entrant"`
	Option    string   `json:"option"`
	Pool      string   `json:"pool"`
	Value     *big.Int `json:"value"`
	IsClaimed bool     `json:"is_claimed"`
}

// UserPoints is the additive reward score of a wallet.
type UserPoints struct {
	Wallet string          `json:"wallet"`
	Points decimal.Decimal `json:"points"`
}
