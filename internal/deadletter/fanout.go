package deadletter

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"wagerSync/internal/queue"
)

// Fanout hands each dead letter to every sink and joins their errors.
type Fanout []queue.DeadLetterSink

func (f Fanout) DeadLetter(ctx context.Context, letter queue.DeadLetter) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.DeadLetter(ctx, letter); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink records dead letters in the log only.
type LogSink struct {
	Logger *zap.Logger
}

func (l LogSink) DeadLetter(_ context.Context, letter queue.DeadLetter) error {
	if l.Logger == nil {
		return nil
	}
	l.Logger.Error("dead letter",
		zap.String("id", letter.Message.ID),
		zap.String("dedup_key", letter.Message.DedupKey),
		zap.String("group", letter.Message.GroupID),
		zap.Int("attempts", letter.Message.Attempt),
		zap.String("reason", letter.Reason),
		zap.ByteString("body", letter.Message.Body),
	)
	return nil
}
