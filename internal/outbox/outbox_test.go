package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"wagerSync/internal/queue"
)

func openTemp(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func TestOutboxSavePendingDelete(t *testing.T) {
	ctx := context.Background()
	o := openTemp(t)

	first := queue.Message{ID: "a", DedupKey: "k1", GroupID: "g-bets", Body: []byte(`{"eventName":"BetCreated"}`)}
	second := queue.Message{ID: "b", DedupKey: "k2", GroupID: "g-pools", Body: []byte(`{"eventName":"PoolCreated"}`)}
	if err := o.Save(ctx, first, errors.New("broker down")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := o.Save(ctx, second, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := o.Save(ctx, first, nil); err != nil {
		t.Fatalf("save duplicate: %v", err)
	}

	n, err := o.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 entries, got %d (%v)", n, err)
	}

	pending, err := o.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Message.ID != "a" || pending[1].Message.ID != "b" {
		t.Fatalf("unexpected pending order: %+v", pending)
	}
	if pending[0].LastError != "broker down" || string(pending[0].Message.Body) != `{"eventName":"BetCreated"}` {
		t.Fatalf("entry mismatch: %+v", pending[0])
	}

	if err := o.MarkFailed(ctx, "a", errors.New("still down")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := o.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	pending, _ = o.Pending(ctx, 10)
	if len(pending) != 1 || pending[0].Attempts != 1 || pending[0].LastError != "still down" {
		t.Fatalf("unexpected state after update: %+v", pending)
	}
}

type flakyPublisher struct {
	fail map[string]bool
	got  []string
}

func (f *flakyPublisher) Publish(_ context.Context, msg queue.Message) error {
	if f.fail[msg.ID] {
		return errors.New("publish failed")
	}
	f.got = append(f.got, msg.ID)
	return nil
}

func TestReplayerDrain(t *testing.T) {
	ctx := context.Background()
	o := openTemp(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := o.Save(ctx, queue.Message{ID: id, DedupKey: "k-" + id, GroupID: "g", Body: []byte("{}")}, nil); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	pub := &flakyPublisher{fail: map[string]bool{"b": true}}
	r := NewReplayer(o, pub, 10, nil, nil)

	published, failed, err := r.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if published != 2 || failed != 1 {
		t.Fatalf("expected 2 published / 1 failed, got %d / %d", published, failed)
	}
	if len(pub.got) != 2 || pub.got[0] != "a" || pub.got[1] != "c" {
		t.Fatalf("unexpected publish order: %v", pub.got)
	}

	pending, _ := o.Pending(ctx, 10)
	if len(pending) != 1 || pending[0].Message.ID != "b" || pending[0].Attempts != 1 {
		t.Fatalf("expected only b left: %+v", pending)
	}

	pub.fail = nil
	if published, _, err := r.Drain(ctx); err != nil || published != 1 {
		t.Fatalf("second drain: %d %v", published, err)
	}
	if n, _ := o.Count(ctx); n != 0 {
		t.Fatalf("outbox should be empty, has %d", n)
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	o := openTemp(t)
	r := NewReplayer(o, &flakyPublisher{}, 0, nil, nil)
	if _, err := r.Schedule(context.Background(), "not a cron"); err == nil {
		t.Fatalf("expected error for bad spec")
	}
}
