package kafka

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"wagerSync/internal/queue"
)

type fakeWriter struct {
	fail    error
	written []kafkago.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.fail != nil {
		return w.fail
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeDeduper struct {
	claimed  map[string]bool
	claimErr error
	released []string
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{claimed: make(map[string]bool)}
}

func (d *fakeDeduper) Claim(_ context.Context, key string) (bool, error) {
	if d.claimErr != nil {
		return false, d.claimErr
	}
	if d.claimed[key] {
		return false, nil
	}
	d.claimed[key] = true
	return true, nil
}

func (d *fakeDeduper) Release(_ context.Context, key string) error {
	delete(d.claimed, key)
	d.released = append(d.released, key)
	return nil
}

func TestPublisherSuppressesDuplicates(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, newFakeDeduper(), nil)
	msg := queue.NewMessage("0xblock:BetCreated", "wagers-bets", []byte(`{}`))

	for i := 0; i < 2; i++ {
		if err := p.Publish(context.Background(), msg); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if len(w.written) != 1 {
		t.Fatalf("expected one write, got %d", len(w.written))
	}
}

func TestPublisherReleasesClaimWhenWriteFails(t *testing.T) {
	w := &fakeWriter{fail: errors.New("broker down")}
	dedup := newFakeDeduper()
	p := NewPublisher(w, dedup, nil)
	msg := queue.NewMessage("0xblock:BetCreated", "wagers-bets", []byte(`{}`))

	if err := p.Publish(context.Background(), msg); err == nil {
		t.Fatalf("expected write error")
	}
	if len(dedup.released) != 1 || dedup.released[0] != msg.DedupKey {
		t.Fatalf("claim not released: %v", dedup.released)
	}

	// A later retry of the same message, as the outbox replay does, must
	// reach the broker.
	w.fail = nil
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(w.written) != 1 {
		t.Fatalf("retry was suppressed: %d writes", len(w.written))
	}
}

func TestPublisherWritesWhenDedupUnavailable(t *testing.T) {
	w := &fakeWriter{fail: errors.New("broker down")}
	dedup := newFakeDeduper()
	dedup.claimErr = errors.New("redis down")
	p := NewPublisher(w, dedup, nil)
	msg := queue.NewMessage("k", "g", []byte(`{}`))

	if err := p.Publish(context.Background(), msg); err == nil {
		t.Fatalf("expected write error")
	}
	if len(dedup.released) != 0 {
		t.Fatalf("nothing was claimed, nothing to release: %v", dedup.released)
	}

	w.fail = nil
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.written) != 1 {
		t.Fatalf("expected one write, got %d", len(w.written))
	}
}
