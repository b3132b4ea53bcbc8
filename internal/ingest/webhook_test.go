package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"wagerSync/internal/event"
	"wagerSync/internal/evm"
	"wagerSync/internal/model"
	"wagerSync/internal/processor"
	"wagerSync/internal/queue"
	"wagerSync/internal/storage"
	"wagerSync/internal/storage/memory"
)

var (
	contract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	creator  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	acceptor = common.HexToAddress("0x5555555555555555555555555555555555555555")
	currency = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func createdLog(t *testing.T, betID int64, index uint64) model.WebhookLog {
	t.Helper()
	betABI, err := evm.BetABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	ev := betABI.Events["BetCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(1000), currency, "ETH", "price", false, big.NewInt(3000), big.NewInt(1700086400))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return webhookLog(ev.ID, data, index, common.BigToHash(big.NewInt(betID)), common.BytesToHash(creator.Bytes()))
}

func acceptedLog(t *testing.T, betID int64, index uint64) model.WebhookLog {
	t.Helper()
	betABI, err := evm.BetABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	ev := betABI.Events["BetAccepted"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(2900))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return webhookLog(ev.ID, data, index, common.BigToHash(big.NewInt(betID)), common.BytesToHash(acceptor.Bytes()))
}

func webhookLog(topic0 common.Hash, data []byte, index uint64, indexed ...common.Hash) model.WebhookLog {
	topics := []string{topic0.Hex()}
	for _, h := range indexed {
		topics = append(topics, h.Hex())
	}
	wl := model.WebhookLog{
		Data:   hexutil.Encode(data),
		Topics: topics,
		Index:  index,
	}
	wl.Account.Address = contract.Hex()
	wl.Transaction.Hash = "0xtx"
	wl.Transaction.From.Address = creator.Hex()
	wl.Transaction.Status = 1
	return wl
}

func payload(t *testing.T, logs ...model.WebhookLog) []byte {
	t.Helper()
	p := model.WebhookPayload{WebhookID: "wh_1", Type: "GRAPHQL"}
	p.Event.Data.Block = &model.WebhookBlock{Hash: "0xblock", Number: 100, Timestamp: 1700000000, Logs: logs}
	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func newWebhookReceiver(t *testing.T, pub queue.Publisher, stash Stash) *WebhookReceiver {
	t.Helper()
	decoder, err := evm.NewBetDecoder(evm.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return NewWebhookReceiver(decoder, WebhookConfig{ChainID: 8453, GroupID: "wagers"}, pub, stash, nil, nil)
}

type recordingPublisher struct {
	msgs []queue.Message
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, msg queue.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

type recordingStash struct {
	msgs []queue.Message
}

func (r *recordingStash) Save(_ context.Context, msg queue.Message, _ error) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestWebhookGroupsEventsByName(t *testing.T) {
	pub := &recordingPublisher{}
	r := newWebhookReceiver(t, pub, nil)

	failed := createdLog(t, 3, 3)
	failed.Transaction.Status = 0
	body := payload(t, createdLog(t, 1, 0), acceptedLog(t, 1, 1), createdLog(t, 2, 2), failed)

	ack, err := r.Receive(context.Background(), body)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if ack.Events != 3 || ack.Published != 2 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.msgs))
	}

	first := pub.msgs[0]
	if first.DedupKey != "0xblock:BetCreated" || first.GroupID != "wagers-bets" {
		t.Fatalf("unexpected message metadata: %+v", first)
	}
	var env model.Envelope
	if err := json.Unmarshal(first.Body, &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.EventName != "BetCreated" || len(env.Bets) != 2 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Bets[0]["betId"] != "1" || env.Bets[1]["betId"] != "2" || env.Bets[0]["chainId"] != "8453" {
		t.Fatalf("unexpected bets: %+v", env.Bets)
	}
	if pub.msgs[1].DedupKey != "0xblock:BetAccepted" {
		t.Fatalf("unexpected second key: %s", pub.msgs[1].DedupKey)
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	pub := &recordingPublisher{}
	r := newWebhookReceiver(t, pub, nil)

	for _, body := range []string{`not json`, `{"event":{"data":{}}}`, `{"event":{"data":{"block":{"number":1}}}}`} {
		if _, err := r.Receive(context.Background(), []byte(body)); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("expected bad request for %s, got %v", body, err)
		}
	}
	if len(pub.msgs) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestWebhookDropsUndecodableLogs(t *testing.T) {
	pub := &recordingPublisher{}
	r := newWebhookReceiver(t, pub, nil)

	broken := createdLog(t, 1, 0)
	broken.Data = "0x01"
	unknown := createdLog(t, 2, 1)
	unknown.Topics[0] = common.HexToHash("0xdeadbeef").Hex()

	ack, err := r.Receive(context.Background(), payload(t, broken, unknown, acceptedLog(t, 1, 2)))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if ack.Events != 1 || ack.Dropped != 1 || len(pub.msgs) != 1 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestWebhookStashesOnPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue unreachable")}
	stash := &recordingStash{}
	r := newWebhookReceiver(t, pub, stash)

	ack, err := r.Receive(context.Background(), payload(t, createdLog(t, 1, 0)))
	if err != nil {
		t.Fatalf("publish failures must not fail the webhook: %v", err)
	}
	if ack.Status != "ok" || ack.Stashed != 1 || len(stash.msgs) != 1 {
		t.Fatalf("expected message in stash: %+v", ack)
	}
	if stash.msgs[0].DedupKey != "0xblock:BetCreated" {
		t.Fatalf("stashed key mismatch: %s", stash.msgs[0].DedupKey)
	}
}

func TestDuplicateBlockDoesNotDoubleApply(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewBroker(queue.MemoryConfig{})
	store := memory.NewStore()
	proc := processor.New(store, processor.Config{}, nil, nil, nil)
	r := newWebhookReceiver(t, broker, nil)

	body := payload(t, createdLog(t, 1, 0), acceptedLog(t, 1, 1))
	for i := 0; i < 2; i++ {
		if _, err := r.Receive(ctx, body); err != nil {
			t.Fatalf("receive: %v", err)
		}
	}
	if broker.Pending() != 2 {
		t.Fatalf("expected queue dedup to keep 2 messages, got %d", broker.Pending())
	}
	if err := broker.Drain(ctx, proc.Handle); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// republish past the dedup window straight to the processor
	replay, _ := json.Marshal(model.Envelope{EventName: "BetAccepted", Bets: []map[string]string{{
		"betId": "1", "chainId": "8453", "contract": contract.Hex(), "acceptor": "0x9999999999999999999999999999999999999999", "acceptorPrice": "1",
	}}})
	if err := proc.Handle(ctx, queue.NewMessage("0xblock:BetAccepted", "wagers-bets", replay)); err != nil {
		t.Fatalf("handle replay: %v", err)
	}

	err := store.WithTx(ctx, func(repo storage.Repository) error {
		bet, err := repo.GetBet(ctx, event.BetKey(8453, contract.Hex(), "1"))
		if err != nil {
			return err
		}
		if bet.Acceptor != acceptor.Hex() || bet.Status != model.BetStatusAccepted || bet.Value != "1000" {
			t.Fatalf("unexpected bet: %+v", bet)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if len(broker.DeadLetters()) != 0 {
		t.Fatalf("no message should be dead-lettered")
	}
}
