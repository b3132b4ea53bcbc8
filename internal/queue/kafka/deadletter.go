package kafka

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"wagerSync/internal/queue"
)

// DeadLetterTopic writes exhausted messages to a dead-letter topic with the
// original body and metadata plus the failure reason.
type DeadLetterTopic struct {
	writer Writer
}

func NewDeadLetterTopic(writer Writer) *DeadLetterTopic {
	return &DeadLetterTopic{writer: writer}
}

func (d *DeadLetterTopic) DeadLetter(ctx context.Context, letter queue.DeadLetter) error {
	m := toKafka(letter.Message)
	m.Headers = append(m.Headers, kafkago.Header{Key: headerReason, Value: []byte(letter.Reason)})
	if err := d.writer.WriteMessages(ctx, m); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	return nil
}

func (d *DeadLetterTopic) Close() error {
	return d.writer.Close()
}
