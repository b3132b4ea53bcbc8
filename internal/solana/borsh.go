package solana

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

var errShortBuffer = errors.New("unexpected end of data")

const maxCollectionLen = 1 << 16

// reader decodes little-endian Borsh values from a byte slice.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errShortBuffer
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// value reads one value of the given type and renders it as a string.
func (r *reader) value(t IDLType) (string, error) {
	switch {
	case t.Option != nil:
		tag, err := r.take(1)
		if err != nil {
			return "", err
		}
		switch tag[0] {
		case 0:
			return "", nil
		case 1:
			return r.value(*t.Option)
		default:
			return "", fmt.Errorf("invalid option tag %d", tag[0])
		}
	case t.Vec != nil:
		n, err := r.u32()
		if err != nil {
			return "", err
		}
		if n > maxCollectionLen {
			return "", fmt.Errorf("vec length %d too large", n)
		}
		return r.list(*t.Vec, int(n))
	case t.Array != nil:
		return r.list(*t.Array, t.Len)
	}
	return r.primitive(t.Primitive)
}

func (r *reader) list(elem IDLType, n int) (string, error) {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item, err := r.value(elem)
		if err != nil {
			return "", err
		}
		items = append(items, item)
	}
	out, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *reader) primitive(name string) (string, error) {
	switch name {
	case "bool":
		b, err := r.take(1)
		if err != nil {
			return "", err
		}
		switch b[0] {
		case 0:
			return "false", nil
		case 1:
			return "true", nil
		default:
			return "", fmt.Errorf("invalid bool byte %d", b[0])
		}
	case "u8":
		b, err := r.take(1)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(b[0]), 10), nil
	case "i8":
		b, err := r.take(1)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int8(b[0])), 10), nil
	case "u16":
		b, err := r.take(2)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(b)), 10), nil
	case "i16":
		b, err := r.take(2)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(b))), 10), nil
	case "u32":
		v, err := r.u32()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(v), 10), nil
	case "i32":
		v, err := r.u32()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int32(v)), 10), nil
	case "u64":
		b, err := r.take(8)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10), nil
	case "i64":
		b, err := r.take(8)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10), nil
	case "u128", "i128":
		b, err := r.take(16)
		if err != nil {
			return "", err
		}
		return int128String(b, name == "i128"), nil
	case "string":
		n, err := r.u32()
		if err != nil {
			return "", err
		}
		b, err := r.take(int(n))
		if err != nil {
			return "", err
		}
		if !utf8.Valid(b) {
			return "", fmt.Errorf("invalid utf-8 string")
		}
		return string(b), nil
	case "bytes":
		n, err := r.u32()
		if err != nil {
			return "", err
		}
		b, err := r.take(int(n))
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	case "publicKey", "pubkey":
		b, err := r.take(32)
		if err != nil {
			return "", err
		}
		return base58.Encode(b), nil
	default:
		return "", fmt.Errorf("unsupported idl type %q", name)
	}
}

func int128String(le []byte, signed bool) string {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	v := new(big.Int).SetBytes(be)
	if signed && be[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return v.String()
}
