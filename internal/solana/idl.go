package solana

import (
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed idl/pools.json
var defaultIDL []byte

// IDL is the subset of an Anchor program interface needed to decode events.
type IDL struct {
	Version string     `json:"version"`
	Name    string     `json:"name"`
	Events  []IDLEvent `json:"events"`
}

type IDLEvent struct {
	Name   string     `json:"name"`
	Fields []IDLField `json:"fields"`
}

type IDLField struct {
	Name string  `json:"name"`
	Type IDLType `json:"type"`
}

// IDLType is either a primitive name ("u64", "publicKey") or a composite of
// option, vec or fixed array.
type IDLType struct {
	Primitive string
	Option    *IDLType
	Vec       *IDLType
	Array     *IDLType
	Len       int
}

func (t *IDLType) UnmarshalJSON(data []byte) error {
	var primitive string
	if err := json.Unmarshal(data, &primitive); err == nil {
		t.Primitive = primitive
		return nil
	}

	var composite struct {
		Option *IDLType          `json:"option"`
		Vec    *IDLType          `json:"vec"`
		Array  []json.RawMessage `json:"array"`
	}
	if err := json.Unmarshal(data, &composite); err != nil {
		return fmt.Errorf("idl type: %w", err)
	}

	switch {
	case composite.Option != nil:
		t.Option = composite.Option
	case composite.Vec != nil:
		t.Vec = composite.Vec
	case len(composite.Array) == 2:
		var elem IDLType
		if err := json.Unmarshal(composite.Array[0], &elem); err != nil {
			return err
		}
		if err := json.Unmarshal(composite.Array[1], &t.Len); err != nil {
			return fmt.Errorf("idl array length: %w", err)
		}
		t.Array = &elem
	default:
		return fmt.Errorf("unsupported idl type: %s", string(data))
	}
	return nil
}

// ParseIDL parses an IDL document.
func ParseIDL(data []byte) (IDL, error) {
	var idl IDL
	if err := json.Unmarshal(data, &idl); err != nil {
		return IDL{}, fmt.Errorf("parse idl: %w", err)
	}
	if len(idl.Events) == 0 {
		return IDL{}, fmt.Errorf("idl %q declares no events", idl.Name)
	}
	return idl, nil
}

// LoadIDL reads an IDL file, or returns the bundled pools program IDL when
// path is empty.
func LoadIDL(path string) (IDL, error) {
	if path == "" {
		return ParseIDL(defaultIDL)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return IDL{}, fmt.Errorf("read idl: %w", err)
	}
	return ParseIDL(data)
}

// Discriminator returns the 8-byte event tag Anchor prefixes to event data.
func Discriminator(eventName string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + eventName))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}
