package solana

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"wagerSync/internal/model"
)

// ProgramDataPrefix marks log lines that carry base64 event data.
const ProgramDataPrefix = "Program data: "

var (
	// ErrUnknownEvent is returned when the discriminator matches no IDL event.
	ErrUnknownEvent = errors.New("unknown event discriminator")
	// ErrSchemaMismatch is returned when the payload does not match the
	// declared field list.
	ErrSchemaMismatch = errors.New("event does not match schema")
)

// Decoder decodes Anchor event payloads using an IDL.
type Decoder struct {
	events map[[8]byte]IDLEvent
}

// NewDecoder indexes the IDL events by discriminator.
func NewDecoder(idl IDL) (*Decoder, error) {
	events := make(map[[8]byte]IDLEvent, len(idl.Events))
	for _, event := range idl.Events {
		if event.Name == "" {
			return nil, fmt.Errorf("idl event without name")
		}
		events[Discriminator(event.Name)] = event
	}
	return &Decoder{events: events}, nil
}

// ProgramData is the payload of one "Program data:" log line and the index
// of that line in the transaction's log messages.
type ProgramData struct {
	Line    int
	Payload string
}

// ProgramDataLines returns the "Program data:" lines of a transaction log.
func ProgramDataLines(logMessages []string) []ProgramData {
	var out []ProgramData
	for i, line := range logMessages {
		if strings.HasPrefix(line, ProgramDataPrefix) {
			out = append(out, ProgramData{Line: i, Payload: strings.TrimSpace(strings.TrimPrefix(line, ProgramDataPrefix))})
		}
	}
	return out
}

// Decode decodes one base64 program data payload.
func (d *Decoder) Decode(payload string) (*model.CanonicalEvent, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: payload shorter than discriminator", ErrSchemaMismatch)
	}

	var disc [8]byte
	copy(disc[:], raw[:8])
	event, ok := d.events[disc]
	if !ok {
		return nil, ErrUnknownEvent
	}

	r := &reader{buf: raw[8:]}
	data := make(map[string]string, len(event.Fields))
	for _, field := range event.Fields {
		value, err := r.value(field.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrSchemaMismatch, event.Name, field.Name, err)
		}
		data[field.Name] = value
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %s has %d trailing bytes", ErrSchemaMismatch, event.Name, r.remaining())
	}

	return &model.CanonicalEvent{EventName: event.Name, Data: data}, nil
}
