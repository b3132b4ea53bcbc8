// Package queue defines the dispatch queue contract: FIFO within a group,
// content deduplication on publish, at-least-once delivery and a dead-letter
// path after a bounded number of deliveries.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxDeliveries is the delivery count after which a failing message
// is dead-lettered.
const DefaultMaxDeliveries = 3

// DefaultDedupWindow is how long a dedup key suppresses republishing.
const DefaultDedupWindow = 5 * time.Minute

// Message is one queue entry. DedupKey and GroupID are queue metadata; Body
// is the JSON envelope.
type Message struct {
	ID       string `json:"id"`
	DedupKey string `json:"dedup_key"`
	GroupID  string `json:"group_id"`
	Body     []byte `json:"body"`
	Attempt  int    `json:"attempt"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(dedupKey, groupID string, body []byte) Message {
	return Message{
		ID:       uuid.NewString(),
		DedupKey: dedupKey,
		GroupID:  groupID,
		Body:     body,
	}
}

// Handler processes one delivery. A non-nil error triggers redelivery.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

// DeadLetterSink receives messages that exhausted their deliveries.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, letter DeadLetter) error
}

// DeadLetter is a message together with the last failure.
type DeadLetter struct {
	Message  Message   `json:"message"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func newDeadLetter(msg Message, cause error) DeadLetter {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return DeadLetter{Message: msg, Reason: reason, FailedAt: time.Now().UTC()}
}
