package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"wagerSync/internal/model"
	"wagerSync/internal/storage"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(repo storage.Repository) error {
		if _, err := repo.InsertPool(ctx, model.Pool{Address: "P"}); err != nil {
			return err
		}
		if _, err := repo.MarkProcessed(ctx, "key", "PoolCreated"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.WithTx(ctx, func(repo storage.Repository) error {
		if _, err := repo.GetPool(ctx, "P"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("pool should not exist, got %v", err)
		}
		first, err := repo.MarkProcessed(ctx, "key", "PoolCreated")
		if err != nil {
			return err
		}
		if !first {
			t.Fatalf("dedup key should have been rolled back")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second tx: %v", err)
	}
}

func TestAddEntryValueAccumulates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, v := range []int64{100, 250, 50} {
		err := store.WithTx(ctx, func(repo storage.Repository) error {
			return repo.AddEntryValue(ctx, model.PoolEntry{Address: "E", Option: "O", Pool: "P", Entrant: "W"}, big.NewInt(v))
		})
		if err != nil {
			t.Fatalf("add entry: %v", err)
		}
	}

	_ = store.WithTx(ctx, func(repo storage.Repository) error {
		entry, err := repo.GetEntry(ctx, "E")
		if err != nil {
			t.Fatalf("get entry: %v", err)
		}
		if entry.Value.Int64() != 400 {
			t.Fatalf("entry value mismatch: %s", entry.Value)
		}
		return nil
	})
}

func TestStateStore(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if _, ok, _ := store.LoadState(ctx, "backfill"); ok {
		t.Fatalf("unexpected state")
	}
	if err := store.SaveState(ctx, "backfill", 99); err != nil {
		t.Fatalf("save: %v", err)
	}
	v, ok, err := store.LoadState(ctx, "backfill")
	if err != nil || !ok || v != 99 {
		t.Fatalf("load: %d %v %v", v, ok, err)
	}
}
