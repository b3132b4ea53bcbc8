package event

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"wagerSync/internal/model"
)

// ErrUnknownEvent is returned for event names outside the known set.
var ErrUnknownEvent = errors.New("unknown event")

type parseFunc func(f *fields) Event

var parsers = map[string]parseFunc{
	NameBetCreated: func(f *fields) Event {
		return BetCreated{
			BetRef:       f.betRef(),
			Creator:      f.str("creator"),
			Value:        f.amount("value"),
			Currency:     f.str("currency"),
			Ticker:       f.str("ticker"),
			Metric:       f.str("metric"),
			IsLong:       f.boolean("isLong"),
			CreatorPrice: f.str("creatorPrice"),
			ExpiresAt:    f.unix("expiresAt"),
		}
	},
	NameBetAccepted: func(f *fields) Event {
		return BetAccepted{BetRef: f.betRef(), Acceptor: f.str("acceptor"), AcceptorPrice: f.str("acceptorPrice")}
	},
	NameBetWithdrawn: func(f *fields) Event {
		return BetWithdrawn{BetRef: f.betRef(), Creator: f.str("creator")}
	},
	NameBetSettled: func(f *fields) Event {
		return BetSettled{BetRef: f.betRef(), Winner: f.str("winner"), SettlementPrice: f.str("settlementPrice")}
	},
	NameBetPaid: func(f *fields) Event {
		return BetPaid{BetRef: f.betRef(), Winner: f.str("winner"), Amount: f.amount("amount")}
	},
	NamePoolCreated: func(f *fields) Event {
		return PoolCreated{
			ScanRef:     f.scanRef(),
			Pool:        f.str("pool"),
			Title:       f.str("title"),
			Description: f.opt("description"),
			Image:       f.opt("image"),
			CreatedAt:   f.unix("createdAt"),
		}
	},
	NameOptionCreated: func(f *fields) Event {
		return OptionCreated{ScanRef: f.scanRef(), Option: f.str("option"), Pool: f.str("pool"), Title: f.str("title")}
	},
	NamePoolEntered: func(f *fields) Event {
		return PoolEntered{
			ScanRef: f.scanRef(),
			Entry:   f.str("entry"),
			Option:  f.str("option"),
			Pool:    f.str("pool"),
			Entrant: f.str("entrant"),
			Value:   f.amount("value"),
		}
	},
	NamePoolStatusUpdated: func(f *fields) Event {
		return PoolStatusUpdated{ScanRef: f.scanRef(), Pool: f.str("pool"), IsPaused: f.boolean("isPaused")}
	},
	NameWinnerSet: func(f *fields) Event {
		return WinnerSet{ScanRef: f.scanRef(), Pool: f.str("pool"), Option: f.str("option")}
	},
	NameWinClaimed: func(f *fields) Event {
		return WinClaimed{ScanRef: f.scanRef(), Entry: f.str("entry"), Entrant: f.str("entrant"), Amount: f.amount("amount")}
	},
}

// Known reports whether name is a supported event kind.
func Known(name string) bool {
	_, ok := parsers[name]
	return ok
}

// Parse builds a typed event from its name and stringified fields.
func Parse(name string, data map[string]string) (Event, error) {
	parse, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	f := &fields{event: name, data: data}
	ev := parse(f)
	if f.err != nil {
		return nil, f.err
	}
	return ev, nil
}

// FromEnvelope parses every item of a queue envelope.
func FromEnvelope(env model.Envelope) ([]Event, error) {
	if !Known(env.EventName) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.EventName)
	}
	items := env.Items()
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: envelope carries no data", env.EventName)
	}
	out := make([]Event, 0, len(items))
	for i, item := range items {
		ev, err := Parse(env.EventName, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// fields reads typed values out of a string map, keeping the first error.
type fields struct {
	event string
	data  map[string]string
	err   error
}

func (f *fields) fail(key, format string, args ...interface{}) {
	if f.err == nil {
		f.err = fmt.Errorf("%s.%s: %s", f.event, key, fmt.Sprintf(format, args...))
	}
}

func (f *fields) str(key string) string {
	v, ok := f.data[key]
	if !ok || v == "" {
		f.fail(key, "missing")
		return ""
	}
	return v
}

func (f *fields) opt(key string) string {
	return f.data[key]
}

func (f *fields) amount(key string) *big.Int {
	raw := f.str(key)
	if raw == "" {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		f.fail(key, "invalid amount %q", raw)
		return new(big.Int)
	}
	return v
}

func (f *fields) uint(key string) uint64 {
	raw := f.opt(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		f.fail(key, "invalid integer %q", raw)
	}
	return v
}

func (f *fields) boolean(key string) bool {
	raw := f.str(key)
	v, err := strconv.ParseBool(raw)
	if raw != "" && err != nil {
		f.fail(key, "invalid bool %q", raw)
	}
	return v
}

func (f *fields) unix(key string) time.Time {
	raw := f.opt(key)
	if raw == "" {
		return time.Time{}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f.fail(key, "invalid unix time %q", raw)
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func (f *fields) betRef() BetRef {
	chainID, err := strconv.ParseUint(f.str("chainId"), 10, 64)
	if err != nil {
		f.fail("chainId", "invalid chain id")
	}
	return BetRef{
		ChainID:     chainID,
		Contract:    f.str("contract"),
		BetID:       f.str("betId"),
		Sender:      f.opt("sender"),
		TxHash:      f.opt("txHash"),
		BlockHash:   f.opt("blockHash"),
		BlockNumber: f.uint("blockNumber"),
		LogIndex:    f.uint("logIndex"),
		Timestamp:   f.unix("timestamp"),
	}
}

func (f *fields) scanRef() ScanRef {
	return ScanRef{
		Signature: f.opt("signature"),
		Slot:      f.uint("slot"),
		Seq:       f.uint("seq"),
		BlockTime: f.unix("blockTime"),
	}
}

func lower(s string) string {
	return strings.ToLower(s)
}
