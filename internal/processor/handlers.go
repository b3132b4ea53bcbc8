package processor

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wagerSync/internal/event"
	"wagerSync/internal/metrics"
	"wagerSync/internal/model"
	"wagerSync/internal/storage"
)

// handlers applies typed events inside one transaction.
type handlers struct {
	repo    storage.Repository
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger
	notes   []Notification
}

var _ event.Visitor = (*handlers)(nil)

func newHandlers(repo storage.Repository, cfg Config, m *metrics.Metrics, log *zap.Logger) *handlers {
	return &handlers{repo: repo, cfg: cfg, metrics: m, log: log}
}

func (h *handlers) applied(name, id string) {
	h.notes = append(h.notes, Notification{EventName: name, ID: id})
}

func (h *handlers) stale(name, id string, fields ...zap.Field) {
	h.metrics.Stale(name)
	h.log.Debug("stale event skipped", append([]zap.Field{zap.String("event", name), zap.String("id", id)}, fields...)...)
}

func (h *handlers) OnBetCreated(ctx context.Context, e event.BetCreated) error {
	bet := model.Bet{
		ID:            e.ID(),
		ChainID:       e.ChainID,
		Contract:      e.Contract,
		BetID:         e.BetID,
		Creator:       e.Creator,
		Ticker:        e.Ticker,
		Metric:        e.Metric,
		IsLong:        e.IsLong,
		Value:         e.Value.String(),
		Currency:      e.Currency,
		CreatorPrice:  e.CreatorPrice,
		Status:        model.BetStatusCreated,
		CreatedAt:     model.TimePtr(e.Timestamp),
		CreatedTxHash: e.TxHash,
	}
	bet.ExpiresAt = model.TimePtr(e.ExpiresAt)

	created, err := h.repo.InsertBet(ctx, bet)
	if err != nil {
		return err
	}
	if !created {
		h.stale(e.Name(), bet.ID)
		return nil
	}
	h.applied(e.Name(), bet.ID)
	return nil
}

func (h *handlers) OnBetAccepted(ctx context.Context, e event.BetAccepted) error {
	return h.transition(ctx, e.Name(), e.BetRef, func(b *model.Bet) (model.Outcome, error) {
		return b.Accept(e.Acceptor, e.AcceptorPrice, e.Timestamp), nil
	})
}

func (h *handlers) OnBetWithdrawn(ctx context.Context, e event.BetWithdrawn) error {
	return h.transition(ctx, e.Name(), e.BetRef, func(b *model.Bet) (model.Outcome, error) {
		return b.Withdraw(e.Timestamp), nil
	})
}

func (h *handlers) OnBetSettled(ctx context.Context, e event.BetSettled) error {
	return h.transition(ctx, e.Name(), e.BetRef, func(b *model.Bet) (model.Outcome, error) {
		return b.Settle(e.Winner, e.SettlementPrice, e.Timestamp), nil
	})
}

func (h *handlers) OnBetPaid(ctx context.Context, e event.BetPaid) error {
	return h.transition(ctx, e.Name(), e.BetRef, func(b *model.Bet) (model.Outcome, error) {
		return b.Pay(e.TxHash, e.Timestamp)
	})
}

// transition loads a bet, applies fn and stores the result when it changed.
func (h *handlers) transition(ctx context.Context, name string, ref event.BetRef, fn func(*model.Bet) (model.Outcome, error)) error {
	id := ref.ID()
	bet, err := h.repo.GetBet(ctx, id)
	if err != nil {
		return fmt.Errorf("load bet %s: %w", id, err)
	}
	outcome, err := fn(&bet)
	if err != nil {
		return fmt.Errorf("bet %s (%s): %w", id, bet.Status, err)
	}
	if outcome == model.Stale {
		h.stale(name, id, zap.String("status", string(bet.Status)))
		return nil
	}
	if err := h.repo.UpdateBet(ctx, bet); err != nil {
		return err
	}
	h.applied(name, id)
	return nil
}

func (h *handlers) OnPoolCreated(ctx context.Context, e event.PoolCreated) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = e.BlockTime
	}
	ok, err := h.repo.InsertPool(ctx, model.Pool{
		Address:     e.Pool,
		Title:       e.Title,
		Description: e.Description,
		Image:       e.Image,
		Value:       new(big.Int),
		CreatedAt:   model.TimePtr(created),
	})
	if err != nil {
		return err
	}
	if !ok {
		h.stale(e.Name(), e.Pool)
		return nil
	}
	h.applied(e.Name(), e.Pool)
	return nil
}

func (h *handlers) OnOptionCreated(ctx context.Context, e event.OptionCreated) error {
	if _, err := h.repo.GetPool(ctx, e.Pool); err != nil {
		return fmt.Errorf("load pool %s: %w", e.Pool, err)
	}
	ok, err := h.repo.InsertOption(ctx, model.PoolOption{
		Address: e.Option,
		Pool:    e.Pool,
		Title:   e.Title,
		Value:   new(big.Int),
	})
	if err != nil {
		return err
	}
	if !ok {
		h.stale(e.Name(), e.Option)
		return nil
	}
	h.applied(e.Name(), e.Option)
	return nil
}

func (h *handlers) OnPoolEntered(ctx context.Context, e event.PoolEntered) error {
	if err := h.repo.AddPoolValue(ctx, e.Pool, e.Value); err != nil {
		return fmt.Errorf("pool %s: %w", e.Pool, err)
	}
	if err := h.repo.AddOptionValue(ctx, e.Option, e.Value); err != nil {
		return fmt.Errorf("option %s: %w", e.Option, err)
	}
	entry := model.PoolEntry{
		Address: e.Entry,
		Entrant: e.Entrant,
		Option:  e.Option,
		Pool:    e.Pool,
	}
	if err := h.repo.AddEntryValue(ctx, entry, e.Value); err != nil {
		return fmt.Errorf("entry %s: %w", e.Entry, err)
	}

	if points := Points(e.Value, h.cfg.PointsPerUnit); points.IsPositive() {
		if err := h.repo.AddPoints(ctx, e.Entrant, points); err != nil {
			return fmt.Errorf("points for %s: %w", e.Entrant, err)
		}
	}
	h.applied(e.Name(), e.Entry)
	return nil
}

func (h *handlers) OnPoolStatusUpdated(ctx context.Context, e event.PoolStatusUpdated) error {
	pool, err := h.repo.GetPool(ctx, e.Pool)
	if err != nil {
		return fmt.Errorf("load pool %s: %w", e.Pool, err)
	}
	if pool.WinningOption != "" {
		h.stale(e.Name(), e.Pool, zap.String("reason", "winner set"))
		return nil
	}
	// Updates from an earlier slot are stale. Within one slot the line index
	// cannot order separate transactions, so the pools group FIFO decides.
	if e.Seq != 0 && event.SeqSlot(e.Seq) < event.SeqSlot(pool.StatusSeq) {
		h.stale(e.Name(), e.Pool, zap.Uint64("seq", e.Seq), zap.Uint64("stored_seq", pool.StatusSeq))
		return nil
	}
	seq := pool.StatusSeq
	if e.Seq > seq {
		seq = e.Seq
	}
	if err := h.repo.UpdatePoolStatus(ctx, e.Pool, e.IsPaused, seq); err != nil {
		return err
	}
	h.applied(e.Name(), e.Pool)
	return nil
}

func (h *handlers) OnWinnerSet(ctx context.Context, e event.WinnerSet) error {
	pool, err := h.repo.GetPool(ctx, e.Pool)
	if err != nil {
		return fmt.Errorf("load pool %s: %w", e.Pool, err)
	}
	if pool.WinningOption != "" {
		if pool.WinningOption != e.Option {
			h.metrics.Stale(e.Name())
			h.log.Warn("winner already set",
				zap.String("pool", e.Pool),
				zap.String("winner", pool.WinningOption),
				zap.String("incoming", e.Option),
			)
			return nil
		}
		h.stale(e.Name(), e.Pool)
		return nil
	}

	option, err := h.repo.GetOption(ctx, e.Option)
	if err != nil {
		return fmt.Errorf("load option %s: %w", e.Option, err)
	}
	if option.Pool != e.Pool {
		return fmt.Errorf("option %s belongs to pool %s, not %s", e.Option, option.Pool, e.Pool)
	}
	if err := h.repo.SetPoolWinner(ctx, e.Pool, e.Option); err != nil {
		return err
	}
	if err := h.repo.MarkWinningOption(ctx, e.Option); err != nil {
		return err
	}
	h.applied(e.Name(), e.Pool)
	return nil
}

func (h *handlers) OnWinClaimed(ctx context.Context, e event.WinClaimed) error {
	entry, err := h.repo.GetEntry(ctx, e.Entry)
	if err != nil {
		return fmt.Errorf("load entry %s: %w", e.Entry, err)
	}
	if entry.IsClaimed {
		h.stale(e.Name(), e.Entry)
		return nil
	}
	if err := h.repo.MarkEntryClaimed(ctx, e.Entry); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("entry %s: %w", e.Entry, err)
		}
		return err
	}
	h.applied(e.Name(), e.Entry)
	return nil
}

var baseUnit = decimal.New(1, 9)

// Points is floor(value / 1e9 * pointsPerUnit).
func Points(value *big.Int, pointsPerUnit decimal.Decimal) decimal.Decimal {
	if value == nil || value.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, 0).Mul(pointsPerUnit).Div(baseUnit).Floor()
}
