package entry_test

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/davidvella/catidx/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		typ     entry.KeyType
		want    entry.Key
		wantErr bool
	}{
		{name: "integer", raw: "438", typ: entry.Integer, want: entry.IntKey(438)},
		{name: "negative integer", raw: "-12", typ: entry.Integer, want: entry.IntKey(-12)},
		{name: "leading zeros", raw: "007", typ: entry.Integer, want: entry.IntKey(7)},
		{name: "not an integer", raw: "abc", typ: entry.Integer, wantErr: true},
		{name: "string", raw: "HGNC:1100", typ: entry.String, want: entry.StringKey("HGNC:1100")},
		{name: "numeric string stays string", raw: "1", typ: entry.String, want: entry.StringKey("1")},
		{name: "unknown type", raw: "1", typ: entry.Unknown, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := entry.ParseKey(tt.raw, tt.typ)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.typ, got.Type())
		})
	}
}

func TestKeyTypeString(t *testing.T) {
	for _, kt := range []entry.KeyType{entry.Integer, entry.String} {
		got, err := entry.ParseKeyType(kt.String())
		require.NoError(t, err)
		assert.Equal(t, kt, got)
	}

	_, err := entry.ParseKeyType("float")
	assert.ErrorIs(t, err, entry.ErrInvalidKeyType)
}

func TestKeyTypeText(t *testing.T) {
	b, err := entry.Integer.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "integer", string(b))

	var kt entry.KeyType
	require.NoError(t, kt.UnmarshalText([]byte("string")))
	assert.Equal(t, entry.String, kt)

	_, err = entry.Unknown.MarshalText()
	assert.ErrorIs(t, err, entry.ErrInvalidKeyType)
	assert.ErrorIs(t, kt.UnmarshalText([]byte("float")), entry.ErrInvalidKeyType)
}

func TestIntegerEncodingPreservesOrder(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 2, 255, 256, 1 << 40, math.MaxInt64}

	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = entry.IntKey(v).Append(nil)
	}

	assert.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}))

	for i, v := range values {
		got, rest, err := entry.Decode(encoded[i], entry.Integer)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, v, got.Int())
	}
}

func TestStringEncoding(t *testing.T) {
	values := []string{"", "a", "a\x00", "a\x00b", "ab", "abc", "b", "\xff"}

	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = entry.StringKey(v).Append(nil)
	}

	assert.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}), "encoding must preserve byte order of the keys")

	for i := range encoded {
		for j := range encoded {
			if i != j {
				assert.False(t, bytes.HasPrefix(encoded[j], encoded[i]),
					"%q encodes to a prefix of %q", values[i], values[j])
			}
		}
	}

	for i, v := range values {
		got, rest, err := entry.Decode(append(encoded[i], 0xAA), entry.String)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xAA}, rest)
		assert.Equal(t, v, got.String())
	}
}

func TestDecodeCorrupt(t *testing.T) {
	_, _, err := entry.Decode([]byte{1, 2, 3}, entry.Integer)
	assert.ErrorIs(t, err, entry.ErrCorruptKey)

	_, _, err = entry.Decode([]byte("abc"), entry.String)
	assert.ErrorIs(t, err, entry.ErrCorruptKey)

	_, _, err = entry.Decode([]byte{'a', 0x00, 0x07}, entry.String)
	assert.ErrorIs(t, err, entry.ErrCorruptKey)
}

func TestIndexedOrdersDuplicatesByRow(t *testing.T) {
	a := entry.NewIndexed(entry.StringKey("715"), 3, 300)
	b := entry.NewIndexed(entry.StringKey("715"), 9, 100)
	c := entry.NewIndexed(entry.StringKey("7150"), 1, 50)

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.Equal(t, uint64(3), a.Row())
	assert.Equal(t, uint64(9), b.Row())
	assert.Equal(t, 0, entry.Compare(a, a))
}
