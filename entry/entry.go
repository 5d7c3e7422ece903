package entry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// KeyType is the single key type chosen for a whole index.
type KeyType uint8

const (
	Unknown KeyType = iota
	Integer
	String
)

var (
	ErrInvalidKeyType = errors.New("entry: invalid key type")
	ErrCorruptKey     = errors.New("entry: corrupt encoded key")
)

func (t KeyType) String() string {
	switch t {
	case Integer:
		return "integer"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

func (t KeyType) MarshalText() ([]byte, error) {
	if t != Integer && t != String {
		return nil, ErrInvalidKeyType
	}
	return []byte(t.String()), nil
}

func (t *KeyType) UnmarshalText(b []byte) error {
	v, err := ParseKeyType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseKeyType is the inverse of KeyType.String.
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "integer":
		return Integer, nil
	case "string":
		return String, nil
	default:
		return Unknown, fmt.Errorf("%w: %q", ErrInvalidKeyType, s)
	}
}

// Key is a typed lookup key. The zero value is invalid.
type Key struct {
	typ KeyType
	i   int64
	s   string
}

func IntKey(v int64) Key { return Key{typ: Integer, i: v} }

func StringKey(s string) Key { return Key{typ: String, s: s} }

// ParseKey converts a raw extracted key into a Key of type t.
func ParseKey(raw string, t KeyType) (Key, error) {
	switch t {
	case Integer:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("entry: key %q is not an integer: %w", raw, err)
		}
		return IntKey(v), nil
	case String:
		return StringKey(raw), nil
	default:
		return Key{}, ErrInvalidKeyType
	}
}

func (k Key) Type() KeyType { return k.typ }

func (k Key) Int() int64 { return k.i }

// String returns the textual form of the key.
func (k Key) String() string {
	if k.typ == Integer {
		return strconv.FormatInt(k.i, 10)
	}
	return k.s
}

// Append appends the order-preserving encoding of k to dst.
//
// Integers are 8 bytes big-endian with the sign bit flipped. Strings escape 0x00
// as 0x00 0xFF and end with 0x00 0x01, so no encoded string is a prefix of another.
func (k Key) Append(dst []byte) []byte {
	switch k.typ {
	case Integer:
		return binary.BigEndian.AppendUint64(dst, uint64(k.i)^(1<<63))
	case String:
		for i := 0; i < len(k.s); i++ {
			c := k.s[i]
			if c == 0x00 {
				dst = append(dst, 0x00, 0xFF)
				continue
			}
			dst = append(dst, c)
		}
		return append(dst, 0x00, 0x01)
	default:
		return dst
	}
}

// Decode reads one key of type t from the front of b and returns the remainder.
func Decode(b []byte, t KeyType) (Key, []byte, error) {
	switch t {
	case Integer:
		if len(b) < 8 {
			return Key{}, nil, ErrCorruptKey
		}
		return IntKey(int64(binary.BigEndian.Uint64(b) ^ (1 << 63))), b[8:], nil
	case String:
		var buf bytes.Buffer
		for i := 0; i < len(b); i++ {
			if b[i] != 0x00 {
				buf.WriteByte(b[i])
				continue
			}
			if i+1 >= len(b) {
				return Key{}, nil, ErrCorruptKey
			}
			switch b[i+1] {
			case 0xFF:
				buf.WriteByte(0x00)
				i++
			case 0x01:
				return StringKey(buf.String()), b[i+2:], nil
			default:
				return Key{}, nil, ErrCorruptKey
			}
		}
		return Key{}, nil, ErrCorruptKey
	default:
		return Key{}, nil, ErrInvalidKeyType
	}
}

// Staged is one extracted (raw key, virtual offset) pair as held by the staging
// store, before the global key type is known.
type Staged struct {
	Key    string
	Offset uint64
}

// Indexed is one key index element: the encoded key followed by the 8 byte
// big-endian row id, and the catalog offset of that row.
type Indexed struct {
	Key    []byte
	Offset uint64
}

// NewIndexed builds the index element for row id of key k.
func NewIndexed(k Key, row, offset uint64) Indexed {
	b := k.Append(make([]byte, 0, 16+len(k.s)))
	return Indexed{Key: binary.BigEndian.AppendUint64(b, row), Offset: offset}
}

// Row returns the row id suffix of the element.
func (e Indexed) Row() uint64 {
	if len(e.Key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(e.Key[len(e.Key)-8:])
}

// Less orders elements by key, then by row id.
func (e Indexed) Less(o Indexed) bool {
	return bytes.Compare(e.Key, o.Key) < 0
}

// Compare is Less as a three-way comparison.
func Compare(a, b Indexed) int {
	return bytes.Compare(a.Key, b.Key)
}
