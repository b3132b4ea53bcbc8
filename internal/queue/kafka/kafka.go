// Package kafka implements the dispatch queue on Kafka. Messages are keyed by
// group id so a group maps to one partition and keeps its order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"wagerSync/internal/queue"
)

const (
	headerMessageID = "message-id"
	headerDedupKey  = "dedup-key"
	headerGroupID   = "group-id"
	headerAttempt   = "attempt"
	headerReason    = "dead-letter-reason"
)

// Writer is the producer side of kafka-go used here; *kafkago.Writer
// implements it.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Reader is the consumer-group side of kafka-go used here; *kafkago.Reader
// implements it.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter builds a writer that hashes message keys onto partitions.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
}

// Ping dials the brokers and succeeds when any of them answers.
func Ping(ctx context.Context, brokers []string) error {
	var errs []error
	for _, broker := range brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("dial %s: %w", broker, err))
			continue
		}
		_ = conn.Close()
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	return errors.Join(errs...)
}

func NewReader(brokers []string, topic string, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func toKafka(msg queue.Message) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(msg.GroupID),
		Value: msg.Body,
		Time:  time.Now(),
		Headers: []kafkago.Header{
			{Key: headerMessageID, Value: []byte(msg.ID)},
			{Key: headerDedupKey, Value: []byte(msg.DedupKey)},
			{Key: headerGroupID, Value: []byte(msg.GroupID)},
			{Key: headerAttempt, Value: []byte(strconv.Itoa(msg.Attempt))},
		},
	}
}

func fromKafka(m kafkago.Message) queue.Message {
	msg := queue.Message{
		GroupID: string(m.Key),
		Body:    m.Value,
	}
	for _, h := range m.Headers {
		switch h.Key {
		case headerMessageID:
			msg.ID = string(h.Value)
		case headerDedupKey:
			msg.DedupKey = string(h.Value)
		case headerGroupID:
			msg.GroupID = string(h.Value)
		case headerAttempt:
			msg.Attempt, _ = strconv.Atoi(string(h.Value))
		}
	}
	if msg.ID == "" {
		msg.ID = m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10)
	}
	return msg
}
