package evm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"wagerSync/internal/model"
)

func TestBetDecoderCreated(t *testing.T) {
	betABI, err := BetABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewBetDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	creator := common.HexToAddress("0x2222222222222222222222222222222222222222")
	currency := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := betABI.Events["BetCreated"].Inputs.NonIndexed().Pack(
		big.NewInt(5_000_000),
		currency,
		"BTC",
		"price",
		true,
		big.NewInt(6500000),
		big.NewInt(1700086400),
	)
	if err != nil {
		t.Fatalf("pack created: %v", err)
	}

	logRecord := buildLogRecord(contract, betABI.Events["BetCreated"].ID, data, []common.Hash{
		common.BigToHash(big.NewInt(42)),
		topicFromAddress(creator),
	})

	if !decoder.CanDecode(logRecord.Topics[0]) {
		t.Fatalf("decoder should accept BetCreated topic")
	}

	event, err := decoder.Decode(logRecord)
	if err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if event.EventName != "BetCreated" {
		t.Fatalf("event name mismatch: %s", event.EventName)
	}

	want := map[string]string{
		"betId":        "42",
		"creator":      creator.Hex(),
		"value":        "5000000",
		"currency":     currency.Hex(),
		"ticker":       "BTC",
		"metric":       "price",
		"isLong":       "true",
		"creatorPrice": "6500000",
		"expiresAt":    "1700086400",
		"contract":     contract.Hex(),
		"chainId":      "8453",
		"sender":       "0x4444444444444444444444444444444444444444",
		"timestamp":    "1700000000",
		"txHash":       "0xdef",
		"blockHash":    "0xabc",
		"blockNumber":  "12345",
		"logIndex":     "1",
	}
	for key, value := range want {
		if event.Data[key] != value {
			t.Fatalf("field %s mismatch: %q != %q", key, event.Data[key], value)
		}
	}
}

func TestBetDecoderLifecycleEvents(t *testing.T) {
	betABI, err := BetABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewBetDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	acceptor := common.HexToAddress("0x5555555555555555555555555555555555555555")
	betID := common.BigToHash(big.NewInt(7))

	acceptedData, err := betABI.Events["BetAccepted"].Inputs.NonIndexed().Pack(big.NewInt(6400000))
	if err != nil {
		t.Fatalf("pack accepted: %v", err)
	}
	accepted, err := decoder.Decode(buildLogRecord(contract, betABI.Events["BetAccepted"].ID, acceptedData, []common.Hash{
		betID,
		topicFromAddress(acceptor),
	}))
	if err != nil {
		t.Fatalf("decode accepted: %v", err)
	}
	if accepted.Data["acceptor"] != acceptor.Hex() || accepted.Data["acceptorPrice"] != "6400000" || accepted.Data["betId"] != "7" {
		t.Fatalf("accepted mismatch: %+v", accepted.Data)
	}

	withdrawn, err := decoder.Decode(buildLogRecord(contract, betABI.Events["BetWithdrawn"].ID, nil, []common.Hash{
		betID,
		topicFromAddress(acceptor),
	}))
	if err != nil {
		t.Fatalf("decode withdrawn: %v", err)
	}
	if withdrawn.EventName != "BetWithdrawn" || withdrawn.Data["creator"] != acceptor.Hex() {
		t.Fatalf("withdrawn mismatch: %+v", withdrawn)
	}

	paidData, err := betABI.Events["BetPaid"].Inputs.NonIndexed().Pack(big.NewInt(9_000_000))
	if err != nil {
		t.Fatalf("pack paid: %v", err)
	}
	paid, err := decoder.Decode(buildLogRecord(contract, betABI.Events["BetPaid"].ID, paidData, []common.Hash{
		betID,
		topicFromAddress(acceptor),
	}))
	if err != nil {
		t.Fatalf("decode paid: %v", err)
	}
	if paid.Data["amount"] != "9000000" || paid.Data["winner"] != acceptor.Hex() {
		t.Fatalf("paid mismatch: %+v", paid.Data)
	}
}

func TestBetDecoderRejectsMalformed(t *testing.T) {
	betABI, err := BetABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewBetDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")

	unknown := buildLogRecord(contract, common.HexToHash("0x01"), nil, nil)
	if _, err := decoder.Decode(unknown); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown event error, got %v", err)
	}

	missingTopic := buildLogRecord(contract, betABI.Events["BetSettled"].ID, nil, []common.Hash{
		common.BigToHash(big.NewInt(1)),
	})
	if _, err := decoder.Decode(missingTopic); err == nil {
		t.Fatalf("expected error for missing indexed topic")
	}

	truncated := buildLogRecord(contract, betABI.Events["BetSettled"].ID, []byte{0x01}, []common.Hash{
		common.BigToHash(big.NewInt(1)),
		topicFromAddress(contract),
	})
	if _, err := decoder.Decode(truncated); err == nil {
		t.Fatalf("expected error for truncated data")
	}
}

func TestBetDecoderTopic0Alias(t *testing.T) {
	alias := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	decoder, err := NewBetDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "betwithdrawn"}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(alias) {
		t.Fatalf("alias topic should decode")
	}

	if _, err := NewBetDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "Swap"}}); err == nil {
		t.Fatalf("expected error for unsupported alias")
	}
}

func buildLogRecord(contract common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     8453,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		TxFrom:      "0x4444444444444444444444444444444444444444",
		TxStatus:    1,
		LogIndex:    1,
		Address:     contract.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
