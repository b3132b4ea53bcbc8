package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"wagerSync/internal/processor"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisNotifierPublishesJSON(t *testing.T) {
	fake := &fakePublisher{}
	n := NewRedisNotifier(fake, "")

	if err := n.Notify(context.Background(), processor.Notification{EventName: "BetCreated", ID: "8453:0xabc:1"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if fake.channel != DefaultChannel {
		t.Fatalf("channel mismatch: %s", fake.channel)
	}
	if string(fake.payload) != `{"eventName":"BetCreated","id":"8453:0xabc:1"}` {
		t.Fatalf("payload mismatch: %s", fake.payload)
	}
}

func TestRedisNotifierWrapsError(t *testing.T) {
	boom := errors.New("connection refused")
	n := NewRedisNotifier(&fakePublisher{err: boom}, "custom")
	if err := n.Notify(context.Background(), processor.Notification{EventName: "WinnerSet", ID: "P"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
