package main

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"wagerSync/internal/queue"
)

func TestReadDeadLetters(t *testing.T) {
	first := queue.NewMessage("0xblock:BetCreated", "wagers-bets", []byte(`{"eventName":"BetCreated"}`))
	first.Attempt = 3
	second := queue.NewMessage("5sig:PoolEntered:0", "wagers-pools", []byte(`{"eventName":"PoolEntered"}`))
	second.Attempt = 3

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, msg := range []queue.Message{first, second} {
		if err := enc.Encode(queue.DeadLetter{Message: msg, Reason: "not found", FailedAt: time.Unix(1700000000, 0).UTC()}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	got, err := readDeadLetters(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	first.Attempt, second.Attempt = 0, 0
	if !reflect.DeepEqual(got, []queue.Message{first, second}) {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestReadDeadLettersRejectsGarbage(t *testing.T) {
	if _, err := readDeadLetters(strings.NewReader(`{"message":{"id":"a"}} nope`)); err == nil || !strings.Contains(err.Error(), "dead letter 2") {
		t.Fatalf("expected error on the second letter, got %v", err)
	}
	msgs, err := readDeadLetters(strings.NewReader(""))
	if err != nil || len(msgs) != 0 {
		t.Fatalf("empty input: %v %v", msgs, err)
	}
}
