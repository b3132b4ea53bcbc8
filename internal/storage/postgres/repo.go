package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"wagerSync/internal/model"
	"wagerSync/internal/storage"
)

// repo implements storage.Repository on a transaction. NUMERIC columns are
// exchanged as text to keep full uint256 precision.
type repo struct {
	tx pgx.Tx
}

func (r *repo) MarkProcessed(ctx context.Context, key, eventName string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO processed_messages (dedup_key, event_name, processed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (dedup_key) DO NOTHING
	`, key, eventName)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const betColumns = `
	id, chain_id, contract, bet_id::text, creator, COALESCE(acceptor, ''), ticker, metric, is_long,
	value::text, currency, creator_price::text, COALESCE(acceptor_price::text, ''),
	COALESCE(settlement_price::text, ''), COALESCE(winner, ''), is_withdrawn, is_paid,
	COALESCE(paid_tx_hash, ''), status, created_at, expires_at, accepted_at, settled_at,
	withdrawn_at, paid_at, created_tx_hash`

func (r *repo) InsertBet(ctx context.Context, bet model.Bet) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO bets (
			id, chain_id, contract, bet_id, creator, ticker, metric, is_long, value, currency,
			creator_price, status, created_at, expires_at, created_tx_hash, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9::numeric, $10, $11::numeric, $12, $13, $14, $15, now())
		ON CONFLICT (id) DO NOTHING
	`,
		bet.ID,
		int64(bet.ChainID),
		bet.Contract,
		bet.BetID,
		bet.Creator,
		bet.Ticker,
		bet.Metric,
		bet.IsLong,
		numeric(bet.Value),
		bet.Currency,
		numeric(bet.CreatorPrice),
		string(bet.Status),
		bet.CreatedAt,
		bet.ExpiresAt,
		bet.CreatedTxHash,
	)
	if err != nil {
		return false, fmt.Errorf("insert bet: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetBet locks the row for the rest of the transaction.
func (r *repo) GetBet(ctx context.Context, id string) (model.Bet, error) {
	var (
		bet     model.Bet
		chainID int64
		status  string
	)
	row := r.tx.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1 FOR UPDATE`, id)
	err := row.Scan(
		&bet.ID, &chainID, &bet.Contract, &bet.BetID, &bet.Creator, &bet.Acceptor, &bet.Ticker,
		&bet.Metric, &bet.IsLong, &bet.Value, &bet.Currency, &bet.CreatorPrice, &bet.AcceptorPrice,
		&bet.SettlementPrice, &bet.Winner, &bet.IsWithdrawn, &bet.IsPaid, &bet.PaidTxHash, &status,
		&bet.CreatedAt, &bet.ExpiresAt, &bet.AcceptedAt, &bet.SettledAt, &bet.WithdrawnAt, &bet.PaidAt,
		&bet.CreatedTxHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bet{}, storage.ErrNotFound
		}
		return model.Bet{}, fmt.Errorf("get bet: %w", err)
	}
	bet.ChainID = uint64(chainID)
	bet.Status = model.BetStatus(status)
	return bet, nil
}

func (r *repo) UpdateBet(ctx context.Context, bet model.Bet) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE bets SET
			acceptor = NULLIF($2, ''),
			acceptor_price = NULLIF($3, '')::numeric,
			settlement_price = NULLIF($4, '')::numeric,
			winner = NULLIF($5, ''),
			is_withdrawn = $6,
			is_paid = $7,
			paid_tx_hash = NULLIF($8, ''),
			status = $9,
			accepted_at = $10,
			settled_at = $11,
			withdrawn_at = $12,
			paid_at = $13,
			updated_at = now()
		WHERE id = $1
	`,
		bet.ID,
		bet.Acceptor,
		bet.AcceptorPrice,
		bet.SettlementPrice,
		bet.Winner,
		bet.IsWithdrawn,
		bet.IsPaid,
		bet.PaidTxHash,
		string(bet.Status),
		bet.AcceptedAt,
		bet.SettledAt,
		bet.WithdrawnAt,
		bet.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("update bet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *repo) InsertPool(ctx context.Context, pool model.Pool) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO pools (address, title, description, image, value, is_paused, status_seq, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, now())
		ON CONFLICT (address) DO NOTHING
	`,
		pool.Address,
		pool.Title,
		pool.Description,
		pool.Image,
		intText(pool.Value),
		pool.IsPaused,
		int64(pool.StatusSeq),
		pool.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert pool: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) GetPool(ctx context.Context, address string) (model.Pool, error) {
	var (
		pool  model.Pool
		value string
		seq   int64
	)
	row := r.tx.QueryRow(ctx, `
		SELECT address, title, description, image, value::text, is_paused, status_seq,
			COALESCE(winning_option, ''), created_at
		FROM pools WHERE address=$1 FOR UPDATE
	`, address)
	err := row.Scan(&pool.Address, &pool.Title, &pool.Description, &pool.Image, &value, &pool.IsPaused, &seq,
		&pool.WinningOption, &pool.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, storage.ErrNotFound
		}
		return model.Pool{}, fmt.Errorf("get pool: %w", err)
	}
	pool.StatusSeq = uint64(seq)
	if pool.Value, err = parseInt(value); err != nil {
		return model.Pool{}, err
	}
	return pool, nil
}

func (r *repo) UpdatePoolStatus(ctx context.Context, address string, paused bool, seq uint64) error {
	return r.execOne(ctx, "update pool status", `
		UPDATE pools SET is_paused = $2, status_seq = $3, updated_at = now() WHERE address = $1
	`, address, paused, int64(seq))
}

func (r *repo) SetPoolWinner(ctx context.Context, address, option string) error {
	return r.execOne(ctx, "set pool winner", `
		UPDATE pools SET winning_option = $2, updated_at = now() WHERE address = $1
	`, address, option)
}

func (r *repo) AddPoolValue(ctx context.Context, address string, delta *big.Int) error {
	return r.execOne(ctx, "add pool value", `
		UPDATE pools SET value = value + $2::numeric, updated_at = now() WHERE address = $1
	`, address, intText(delta))
}

func (r *repo) InsertOption(ctx context.Context, option model.PoolOption) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO pool_options (address, pool, title, value, is_winning_option, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, now())
		ON CONFLICT (address) DO NOTHING
	`, option.Address, option.Pool, option.Title, intText(option.Value), option.IsWinningOption)
	if err != nil {
		return false, fmt.Errorf("insert option: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) GetOption(ctx context.Context, address string) (model.PoolOption, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT address, pool, title, value::text, is_winning_option FROM pool_options WHERE address=$1
	`, address)
	option, err := scanOption(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolOption{}, storage.ErrNotFound
		}
		return model.PoolOption{}, fmt.Errorf("get option: %w", err)
	}
	return option, nil
}

func (r *repo) ListOptions(ctx context.Context, pool string) ([]model.PoolOption, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT address, pool, title, value::text, is_winning_option
		FROM pool_options WHERE pool=$1 ORDER BY address
	`, pool)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	out := make([]model.PoolOption, 0)
	for rows.Next() {
		option, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out = append(out, option)
	}
	return out, rows.Err()
}

func (r *repo) AddOptionValue(ctx context.Context, address string, delta *big.Int) error {
	return r.execOne(ctx, "add option value", `
		UPDATE pool_options SET value = value + $2::numeric, updated_at = now() WHERE address = $1
	`, address, intText(delta))
}

func (r *repo) MarkWinningOption(ctx context.Context, address string) error {
	return r.execOne(ctx, "mark winning option", `
		UPDATE pool_options SET is_winning_option = TRUE, updated_at = now() WHERE address = $1
	`, address)
}

func (r *repo) AddEntryValue(ctx context.Context, entry model.PoolEntry, delta *big.Int) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO pool_entries (address, entrant, option, pool, value, is_claimed, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, FALSE, now())
		ON CONFLICT (address) DO UPDATE
		SET value = pool_entries.value + EXCLUDED.value, updated_at = now()
	`, entry.Address, entry.Entrant, entry.Option, entry.Pool, intText(delta))
	if err != nil {
		return fmt.Errorf("add entry value: %w", err)
	}
	return nil
}

func (r *repo) GetEntry(ctx context.Context, address string) (model.PoolEntry, error) {
	var (
		entry model.PoolEntry
		value string
	)
	row := r.tx.QueryRow(ctx, `
		SELECT address, entrant, option, pool, value::text, is_claimed FROM pool_entries WHERE address=$1
	`, address)
	if err := row.Scan(&entry.Address, &entry.Entrant, &entry.Option, &entry.Pool, &value, &entry.IsClaimed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolEntry{}, storage.ErrNotFound
		}
		return model.PoolEntry{}, fmt.Errorf("get entry: %w", err)
	}
	var err error
	if entry.Value, err = parseInt(value); err != nil {
		return model.PoolEntry{}, err
	}
	return entry, nil
}

func (r *repo) MarkEntryClaimed(ctx context.Context, address string) error {
	return r.execOne(ctx, "mark entry claimed", `
		UPDATE pool_entries SET is_claimed = TRUE, updated_at = now() WHERE address = $1
	`, address)
}

func (r *repo) AddPoints(ctx context.Context, wallet string, points decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO user_points (wallet, points, updated_at)
		VALUES ($1, $2::numeric, now())
		ON CONFLICT (wallet) DO UPDATE
		SET points = user_points.points + EXCLUDED.points, updated_at = now()
	`, wallet, points.String())
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

func (r *repo) GetPoints(ctx context.Context, wallet string) (decimal.Decimal, error) {
	var text string
	row := r.tx.QueryRow(ctx, `SELECT points::text FROM user_points WHERE wallet=$1`, wallet)
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get points: %w", err)
	}
	return decimal.NewFromString(text)
}

func (r *repo) execOne(ctx context.Context, op, sql string, args ...interface{}) error {
	tag, err := r.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanOption(row pgx.Row) (model.PoolOption, error) {
	var (
		option model.PoolOption
		value  string
	)
	if err := row.Scan(&option.Address, &option.Pool, &option.Title, &value, &option.IsWinningOption); err != nil {
		return model.PoolOption{}, err
	}
	v, err := parseInt(value)
	if err != nil {
		return model.PoolOption{}, err
	}
	option.Value = v
	return option, nil
}

func parseInt(text string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric %q", text)
	}
	return v, nil
}

func intText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func numeric(text string) string {
	if text == "" {
		return "0"
	}
	return text
}
