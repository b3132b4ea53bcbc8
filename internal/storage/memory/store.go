// Package memory implements storage.Store with in-process maps. Transactions
// are serialized and copy-on-write, so a failed unit of work leaves no trace.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"wagerSync/internal/model"
	"wagerSync/internal/storage"
)

type state struct {
	processed map[string]string
	bets      map[string]model.Bet
	pools     map[string]model.Pool
	options   map[string]model.PoolOption
	entries   map[string]model.PoolEntry
	points    map[string]decimal.Decimal
	progress  map[string]uint64
}

func newState() *state {
	return &state{
		processed: make(map[string]string),
		bets:      make(map[string]model.Bet),
		pools:     make(map[string]model.Pool),
		options:   make(map[string]model.PoolOption),
		entries:   make(map[string]model.PoolEntry),
		points:    make(map[string]decimal.Decimal),
		progress:  make(map[string]uint64),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.processed {
		out.processed[k] = v
	}
	for k, v := range s.bets {
		out.bets[k] = v
	}
	for k, v := range s.pools {
		v.Value = copyInt(v.Value)
		out.pools[k] = v
	}
	for k, v := range s.options {
		v.Value = copyInt(v.Value)
		out.options[k] = v
	}
	for k, v := range s.entries {
		v.Value = copyInt(v.Value)
		out.entries[k] = v
	}
	for k, v := range s.points {
		out.points[k] = v
	}
	for k, v := range s.progress {
		out.progress[k] = v
	}
	return out
}

// Store is an in-memory storage.Store.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn against a private copy of the state and publishes it only if
// fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&repo{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) LoadState(_ context.Context, name string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.progress[name]
	return v, ok, nil
}

func (s *Store) SaveState(_ context.Context, name string, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.progress[name] = value
	return nil
}

type repo struct {
	st *state
}

func (r *repo) MarkProcessed(_ context.Context, key, eventName string) (bool, error) {
	if _, ok := r.st.processed[key]; ok {
		return false, nil
	}
	r.st.processed[key] = eventName
	return true, nil
}

func (r *repo) InsertBet(_ context.Context, bet model.Bet) (bool, error) {
	if _, ok := r.st.bets[bet.ID]; ok {
		return false, nil
	}
	r.st.bets[bet.ID] = bet
	return true, nil
}

func (r *repo) GetBet(_ context.Context, id string) (model.Bet, error) {
	bet, ok := r.st.bets[id]
	if !ok {
		return model.Bet{}, storage.ErrNotFound
	}
	return bet, nil
}

func (r *repo) UpdateBet(_ context.Context, bet model.Bet) error {
	if _, ok := r.st.bets[bet.ID]; !ok {
		return storage.ErrNotFound
	}
	r.st.bets[bet.ID] = bet
	return nil
}

func (r *repo) InsertPool(_ context.Context, pool model.Pool) (bool, error) {
	if _, ok := r.st.pools[pool.Address]; ok {
		return false, nil
	}
	pool.Value = copyInt(pool.Value)
	r.st.pools[pool.Address] = pool
	return true, nil
}

func (r *repo) GetPool(_ context.Context, address string) (model.Pool, error) {
	pool, ok := r.st.pools[address]
	if !ok {
		return model.Pool{}, storage.ErrNotFound
	}
	pool.Value = copyInt(pool.Value)
	return pool, nil
}

func (r *repo) UpdatePoolStatus(_ context.Context, address string, paused bool, seq uint64) error {
	pool, ok := r.st.pools[address]
	if !ok {
		return storage.ErrNotFound
	}
	pool.IsPaused = paused
	pool.StatusSeq = seq
	r.st.pools[address] = pool
	return nil
}

func (r *repo) SetPoolWinner(_ context.Context, address, option string) error {
	pool, ok := r.st.pools[address]
	if !ok {
		return storage.ErrNotFound
	}
	pool.WinningOption = option
	r.st.pools[address] = pool
	return nil
}

func (r *repo) AddPoolValue(_ context.Context, address string, delta *big.Int) error {
	pool, ok := r.st.pools[address]
	if !ok {
		return storage.ErrNotFound
	}
	pool.Value = new(big.Int).Add(copyInt(pool.Value), delta)
	r.st.pools[address] = pool
	return nil
}

func (r *repo) InsertOption(_ context.Context, option model.PoolOption) (bool, error) {
	if _, ok := r.st.options[option.Address]; ok {
		return false, nil
	}
	option.Value = copyInt(option.Value)
	r.st.options[option.Address] = option
	return true, nil
}

func (r *repo) GetOption(_ context.Context, address string) (model.PoolOption, error) {
	option, ok := r.st.options[address]
	if !ok {
		return model.PoolOption{}, storage.ErrNotFound
	}
	option.Value = copyInt(option.Value)
	return option, nil
}

func (r *repo) ListOptions(_ context.Context, pool string) ([]model.PoolOption, error) {
	out := make([]model.PoolOption, 0)
	for _, option := range r.st.options {
		if option.Pool == pool {
			option.Value = copyInt(option.Value)
			out = append(out, option)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (r *repo) AddOptionValue(_ context.Context, address string, delta *big.Int) error {
	option, ok := r.st.options[address]
	if !ok {
		return storage.ErrNotFound
	}
	option.Value = new(big.Int).Add(copyInt(option.Value), delta)
	r.st.options[address] = option
	return nil
}

func (r *repo) MarkWinningOption(_ context.Context, address string) error {
	option, ok := r.st.options[address]
	if !ok {
		return storage.ErrNotFound
	}
	option.IsWinningOption = true
	r.st.options[address] = option
	return nil
}

func (r *repo) AddEntryValue(_ context.Context, entry model.PoolEntry, delta *big.Int) error {
	existing, ok := r.st.entries[entry.Address]
	if !ok {
		entry.Value = copyInt(delta)
		r.st.entries[entry.Address] = entry
		return nil
	}
	existing.Value = new(big.Int).Add(copyInt(existing.Value), delta)
	r.st.entries[entry.Address] = existing
	return nil
}

func (r *repo) GetEntry(_ context.Context, address string) (model.PoolEntry, error) {
	entry, ok := r.st.entries[address]
	if !ok {
		return model.PoolEntry{}, storage.ErrNotFound
	}
	entry.Value = copyInt(entry.Value)
	return entry, nil
}

func (r *repo) MarkEntryClaimed(_ context.Context, address string) error {
	entry, ok := r.st.entries[address]
	if !ok {
		return storage.ErrNotFound
	}
	entry.IsClaimed = true
	r.st.entries[address] = entry
	return nil
}

func (r *repo) AddPoints(_ context.Context, wallet string, points decimal.Decimal) error {
	r.st.points[wallet] = r.st.points[wallet].Add(points)
	return nil
}

func (r *repo) GetPoints(_ context.Context, wallet string) (decimal.Decimal, error) {
	return r.st.points[wallet], nil
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
