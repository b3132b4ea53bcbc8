package event

import (
	"context"
	"errors"
	"testing"

	"wagerSync/internal/model"
)

type recorder struct {
	names []string
}

func (r *recorder) note(e Event) error {
	r.names = append(r.names, e.Name())
	return nil
}

func (r *recorder) OnBetCreated(_ context.Context, e BetCreated) error       { return r.note(e) }
func (r *recorder) OnBetAccepted(_ context.Context, e BetAccepted) error     { return r.note(e) }
func (r *recorder) OnBetWithdrawn(_ context.Context, e BetWithdrawn) error   { return r.note(e) }
func (r *recorder) OnBetSettled(_ context.Context, e BetSettled) error       { return r.note(e) }
func (r *recorder) OnBetPaid(_ context.Context, e BetPaid) error             { return r.note(e) }
func (r *recorder) OnPoolCreated(_ context.Context, e PoolCreated) error     { return r.note(e) }
func (r *recorder) OnOptionCreated(_ context.Context, e OptionCreated) error { return r.note(e) }
func (r *recorder) OnPoolEntered(_ context.Context, e PoolEntered) error     { return r.note(e) }
func (r *recorder) OnPoolStatusUpdated(_ context.Context, e PoolStatusUpdated) error {
	return r.note(e)
}
func (r *recorder) OnWinnerSet(_ context.Context, e WinnerSet) error   { return r.note(e) }
func (r *recorder) OnWinClaimed(_ context.Context, e WinClaimed) error { return r.note(e) }

func TestFromEnvelopeBets(t *testing.T) {
	env := model.Envelope{
		EventName: NameBetAccepted,
		Bets: []map[string]string{
			{"chainId": "8453", "contract": "0xABC", "betId": "1", "acceptor": "0x1", "acceptorPrice": "10", "timestamp": "1700000000"},
			{"chainId": "8453", "contract": "0xABC", "betId": "2", "acceptor": "0x2", "acceptorPrice": "11"},
		},
	}

	events, err := FromEnvelope(env)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	first, ok := events[0].(BetAccepted)
	if !ok {
		t.Fatalf("type mismatch: %T", events[0])
	}
	if first.ID() != "8453:0xabc:1" || first.Acceptor != "0x1" || first.Timestamp.Unix() != 1700000000 {
		t.Fatalf("unexpected event: %+v", first)
	}
}

func TestFromEnvelopePoolEntered(t *testing.T) {
	env := model.Envelope{
		EventName: NamePoolEntered,
		Data: map[string]string{
			"entry": "E1", "option": "O", "pool": "P", "entrant": "W", "value": "500000000",
			"signature": "sig", "slot": "10", "seq": "655360",
		},
	}
	events, err := FromEnvelope(env)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	entered := events[0].(PoolEntered)
	if entered.Value.String() != "500000000" || entered.Seq != 655360 {
		t.Fatalf("unexpected event: %+v", entered)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := FromEnvelope(model.Envelope{EventName: "Transfer", Data: map[string]string{}}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown event, got %v", err)
	}
	if _, err := Parse(NameWinClaimed, map[string]string{"entry": "E"}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if _, err := Parse(NamePoolEntered, map[string]string{
		"entry": "E", "option": "O", "pool": "P", "entrant": "W", "value": "-5",
	}); err == nil {
		t.Fatalf("expected invalid amount error")
	}
	if _, err := FromEnvelope(model.Envelope{EventName: NameBetPaid}); err == nil {
		t.Fatalf("expected empty envelope error")
	}
}

func TestDispatchCoversEveryKind(t *testing.T) {
	all := []Event{
		BetCreated{}, BetAccepted{}, BetWithdrawn{}, BetSettled{}, BetPaid{},
		PoolCreated{}, OptionCreated{}, PoolEntered{}, PoolStatusUpdated{}, WinnerSet{}, WinClaimed{},
	}
	rec := &recorder{}
	for _, ev := range all {
		if err := Dispatch(context.Background(), ev, rec); err != nil {
			t.Fatalf("dispatch %s: %v", ev.Name(), err)
		}
		if !Known(ev.Name()) {
			t.Fatalf("%s has no parser", ev.Name())
		}
	}
	if len(rec.names) != len(all) {
		t.Fatalf("dispatched %d of %d", len(rec.names), len(all))
	}
}

func TestSeq(t *testing.T) {
	if Seq(7, 3) != 7<<16|3 {
		t.Fatalf("seq mismatch")
	}
	if Seq(1, 0) <= Seq(0, 65535) {
		t.Fatalf("later slot must sort after earlier slot")
	}
	if SeqSlot(Seq(7, 3)) != 7 || SeqSlot(Seq(7, 65535)) != 7 {
		t.Fatalf("slot not recovered")
	}
}
