package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"wagerSync/internal/model"
	"wagerSync/internal/solana"
)

func entered(fill byte, value uint64) string {
	var buf bytes.Buffer
	disc := solana.Discriminator("PoolEntered")
	buf.Write(disc[:])
	for i := byte(0); i < 4; i++ {
		buf.Write(bytes.Repeat([]byte{fill + i}, 32))
	}
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], value)
	buf.Write(v[:])
	return solana.ProgramDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newScanReceiver(t *testing.T, pub *recordingPublisher) *ScanReceiver {
	t.Helper()
	idl, err := solana.LoadIDL("")
	if err != nil {
		t.Fatalf("idl: %v", err)
	}
	decoder, err := solana.NewDecoder(idl)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return NewScanReceiver(decoder, ScanConfig{GroupID: "wagers"}, pub, nil, nil, nil)
}

func scanBody(t *testing.T, logs []string) []byte {
	t.Helper()
	body, err := json.Marshal(model.ScanBatch{{
		Slot:       7,
		BlockTime:  1700000000,
		Signatures: []string{"5sig"},
		Meta:       &model.ScanMeta{LogMessages: logs},
	}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestScanPublishesEachEvent(t *testing.T) {
	pub := &recordingPublisher{}
	r := newScanReceiver(t, pub)

	logs := []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		entered(1, 500000000),
		"Program log: Instruction: Enter",
		entered(10, 7),
		solana.ProgramDataPrefix + "!!notbase64",
	}
	summary, err := r.Receive(context.Background(), scanBody(t, logs))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if summary.Message != "processed 2 events" || summary.Dropped != 1 || summary.Published != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if pub.msgs[0].DedupKey != "5sig:PoolEntered:0" || pub.msgs[1].DedupKey != "5sig:PoolEntered:1" {
		t.Fatalf("unexpected keys: %s %s", pub.msgs[0].DedupKey, pub.msgs[1].DedupKey)
	}
	if pub.msgs[0].GroupID != "wagers-pools" {
		t.Fatalf("unexpected group: %s", pub.msgs[0].GroupID)
	}

	var env model.Envelope
	if err := json.Unmarshal(pub.msgs[1].Body, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		"entry":     base58.Encode(bytes.Repeat([]byte{10}, 32)),
		"value":     "7",
		"signature": "5sig",
		"slot":      "7",
		"blockTime": "1700000000",
		"seq":       "458755",
	}
	for k, v := range want {
		if env.Data[k] != v {
			t.Fatalf("field %s: got %q want %q", k, env.Data[k], v)
		}
	}
}

func TestScanRejectsBadBodies(t *testing.T) {
	r := newScanReceiver(t, &recordingPublisher{})
	bodies := []string{
		`{"meta":{}}`,
		`[]`,
		`[{"signatures":["s"]}]`,
		`[{"meta":{"logMessages":[]}}]`,
	}
	for _, body := range bodies {
		if _, err := r.Receive(context.Background(), []byte(body)); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("expected bad request for %s, got %v", body, err)
		}
	}
}

func TestScanSkipsFailedTransaction(t *testing.T) {
	pub := &recordingPublisher{}
	r := newScanReceiver(t, pub)
	body, _ := json.Marshal(model.ScanBatch{{
		Signatures: []string{"s"},
		Meta:       &model.ScanMeta{Err: json.RawMessage(`{"InstructionError":[0,"Custom"]}`), LogMessages: []string{entered(1, 1)}},
	}})
	summary, err := r.Receive(context.Background(), body)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if summary.Events != 0 || len(pub.msgs) != 0 {
		t.Fatalf("failed transaction must not publish: %+v", summary)
	}
}
