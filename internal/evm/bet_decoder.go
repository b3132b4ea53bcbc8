package evm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"wagerSync/internal/model"
)

// ErrUnknownEvent is returned for logs whose topic0 is not a bet event.
var ErrUnknownEvent = errors.New("unknown event")

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map adds topic0 -> event name aliases, for contracts deployed
	// with renamed but ABI-compatible events.
	Topic0Map map[string]string
}

// BetDecoder decodes bet contract events into canonical events.
type BetDecoder struct {
	betABI      abi.ABI
	topicToName map[string]string
}

// NewBetDecoder builds a bet decoder.
func NewBetDecoder(cfg DecoderConfig) (*BetDecoder, error) {
	betABI, err := BetABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(betABI.Events))
	for name, event := range betABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(betABI, name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &BetDecoder{
		betABI:      betABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *BetDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Topics returns the topic0 hashes of every supported event.
func (d *BetDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

// Decode converts a LogRecord into a CanonicalEvent. The transaction sender
// and block timestamp come from the record's provider metadata.
func (d *BetDecoder) Decode(log model.LogRecord) (*model.CanonicalEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("%w: topic0 %s", ErrUnknownEvent, log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid contract address: %s", log.Address)
	}

	event := d.betABI.Events[name]
	data, err := decodeFields(event, log)
	if err != nil {
		return nil, err
	}

	data["contract"] = common.HexToAddress(log.Address).Hex()
	data["chainId"] = strconv.FormatUint(log.ChainID, 10)
	data["sender"] = log.TxFrom
	data["timestamp"] = strconv.FormatUint(log.Timestamp, 10)
	data["txHash"] = log.TxHash
	data["blockHash"] = log.BlockHash
	data["blockNumber"] = strconv.FormatUint(log.BlockNumber, 10)
	data["logIndex"] = strconv.FormatUint(log.LogIndex, 10)

	return &model.CanonicalEvent{EventName: name, Data: data}, nil
}

func decodeFields(event abi.Event, log model.LogRecord) (map[string]string, error) {
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	nonIndexed := event.Inputs.NonIndexed()
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != len(nonIndexed) {
		return nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}

	out := make(map[string]string, len(event.Inputs)+8)
	for name, value := range indexed {
		text, err := normalize(value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", event.Name, name, err)
		}
		out[name] = text
	}
	for i, arg := range nonIndexed {
		text, err := normalize(values[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", event.Name, arg.Name, err)
		}
		out[arg.Name] = text
	}

	for _, arg := range event.Inputs {
		if _, ok := out[arg.Name]; !ok {
			return nil, fmt.Errorf("%s: missing field %s", event.Name, arg.Name)
		}
	}
	return out, nil
}

func normalizeEventName(betABI abi.ABI, name string) string {
	name = strings.TrimSpace(name)
	for known := range betABI.Events {
		if strings.EqualFold(known, name) {
			return known
		}
	}
	return ""
}
