package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/davidvella/catidx/entry"
	xerrors "github.com/davidvella/catidx/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, kt entry.KeyType, opts Options) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index")
	opts.TempDir = t.TempDir()
	s, err := Create(path, Metadata{
		KeyType: kt,
		Catalog: "catalog.tsv.gz",
		Column:  3,
		Created: time.Now().UTC().Truncate(time.Second),
	}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func stringRows(keys ...string) []Row {
	rows := make([]Row, len(keys))
	for i, k := range keys {
		rows[i] = Row{Key: entry.StringKey(k), Offset: uint64(i+1) << 16}
	}
	return rows
}

func TestCreateRejectsInvalidKeyType(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "index"), Metadata{}, Options{})
	assert.ErrorIs(t, err, entry.ErrInvalidKeyType)
}

func TestCreateRejectsExisting(t *testing.T) {
	s, path := setupTestStore(t, entry.String, Options{})
	require.NoError(t, s.Close())

	_, err := Create(path, Metadata{KeyType: entry.String}, Options{})
	assert.Error(t, err)
}

func TestLookupDuplicatesInRowOrder(t *testing.T) {
	s, _ := setupTestStore(t, entry.String, Options{RunSize: 3, BatchSize: 2})
	ctx := context.Background()

	keys := []string{"b", "a", "c", "a", "b", "a", "d", "a", "a"}
	rows := stringRows(keys...)
	require.NoError(t, s.Append(rows[:4]))
	require.NoError(t, s.Append(rows[4:]))
	require.NoError(t, s.BuildIndex(ctx))

	tests := []struct {
		key  string
		want []uint64
	}{
		{key: "a", want: []uint64{2 << 16, 4 << 16, 6 << 16, 8 << 16, 9 << 16}},
		{key: "b", want: []uint64{1 << 16, 5 << 16}},
		{key: "c", want: []uint64{3 << 16}},
		{key: "d", want: []uint64{7 << 16}},
		{key: "e", want: []uint64{}},
		{key: "", want: []uint64{}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := s.Lookup(ctx, entry.StringKey(tt.key))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupStringPrefixesDoNotLeak(t *testing.T) {
	s, _ := setupTestStore(t, entry.String, Options{})
	ctx := context.Background()

	require.NoError(t, s.Append(stringRows("rs1", "rs12", "rs1\x00", "rs", "rs1")))
	require.NoError(t, s.BuildIndex(ctx))

	got, err := s.Lookup(ctx, entry.StringKey("rs1"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1 << 16, 5 << 16}, got)

	got, err = s.Lookup(ctx, entry.StringKey("rs1\x00"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{3 << 16}, got)
}

func TestLookupTypeMismatch(t *testing.T) {
	s, _ := setupTestStore(t, entry.Integer, Options{})
	require.NoError(t, s.Append([]Row{{Key: entry.IntKey(1), Offset: 7}}))
	require.NoError(t, s.BuildIndex(context.Background()))

	_, err := s.Lookup(context.Background(), entry.StringKey("1"))
	var mismatch *xerrors.TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, entry.Integer, mismatch.Index)
	assert.Equal(t, entry.String, mismatch.Key)
}

func TestAppendRejectsWrongKeyType(t *testing.T) {
	s, _ := setupTestStore(t, entry.Integer, Options{})
	err := s.Append([]Row{{Key: entry.StringKey("x")}})
	assert.ErrorIs(t, err, xerrors.ErrTypeMismatch)
}

func TestEntriesInKeyOrder(t *testing.T) {
	s, _ := setupTestStore(t, entry.Integer, Options{RunSize: 2})
	ctx := context.Background()

	values := []int64{5, -3, 100, -3, 0, 5}
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{Key: entry.IntKey(v), Offset: uint64(i)}
	}
	require.NoError(t, s.Append(rows))
	require.NoError(t, s.BuildIndex(ctx))

	entries, entriesErr := s.Entries(ctx)
	got := slices.Collect(entries)
	require.NoError(t, entriesErr())

	want := []Entry{
		{Key: entry.IntKey(-3), Row: 1, Offset: 1},
		{Key: entry.IntKey(-3), Row: 3, Offset: 3},
		{Key: entry.IntKey(0), Row: 4, Offset: 4},
		{Key: entry.IntKey(5), Row: 0, Offset: 0},
		{Key: entry.IntKey(5), Row: 5, Offset: 5},
		{Key: entry.IntKey(100), Row: 2, Offset: 2},
	}
	assert.Equal(t, want, got)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestRows(t *testing.T) {
	s, _ := setupTestStore(t, entry.String, Options{})
	require.NoError(t, s.Append(stringRows("x", "y")))
	require.NoError(t, s.Append(stringRows("z")))

	rows, rowsErr := s.Rows(context.Background())
	var ids []uint64
	var keys []string
	for id, r := range rows {
		ids = append(ids, id)
		keys = append(keys, r.Key.String())
	}
	require.NoError(t, rowsErr())
	assert.Equal(t, []uint64{0, 1, 2}, ids)
	assert.Equal(t, []string{"x", "y", "z"}, keys)
}

func TestBuildIndexTwice(t *testing.T) {
	s, _ := setupTestStore(t, entry.String, Options{})
	require.NoError(t, s.Append(stringRows("a")))
	require.NoError(t, s.BuildIndex(context.Background()))
	assert.ErrorIs(t, s.BuildIndex(context.Background()), ErrIndexExists)
}

func TestBuildIndexCancelled(t *testing.T) {
	s, _ := setupTestStore(t, entry.String, Options{BatchSize: 1})
	require.NoError(t, s.Append(stringRows("a", "b", "c")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.BuildIndex(ctx), context.Canceled)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent", func(t *testing.T) {
		s, _ := setupTestStore(t, entry.String, Options{RunSize: 2})
		require.NoError(t, s.Append(stringRows("a", "b", "a", "c", "a")))
		require.NoError(t, s.BuildIndex(ctx))
		assert.NoError(t, s.Verify(ctx, 5))
	})

	t.Run("fewer rows than extracted", func(t *testing.T) {
		s, _ := setupTestStore(t, entry.String, Options{})
		require.NoError(t, s.Append(stringRows("a", "b")))
		require.NoError(t, s.BuildIndex(ctx))

		err := s.Verify(ctx, 3)
		var verr *xerrors.VerificationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, int64(3), verr.Expected)
		assert.Equal(t, int64(2), verr.Rows)
	})

	t.Run("rows missing from index", func(t *testing.T) {
		s, _ := setupTestStore(t, entry.String, Options{})
		require.NoError(t, s.Append(stringRows("a", "b")))
		require.NoError(t, s.BuildIndex(ctx))
		require.NoError(t, s.Append(stringRows("c")))

		err := s.Verify(ctx, 3)
		var verr *xerrors.VerificationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, int64(3), verr.Rows)
		assert.Equal(t, int64(2), verr.Indexed)
	})

	t.Run("index not built", func(t *testing.T) {
		s, _ := setupTestStore(t, entry.String, Options{})
		require.NoError(t, s.Append(stringRows("a")))
		assert.ErrorIs(t, s.Verify(ctx, 1), xerrors.ErrVerification)
	})
}

func TestOpenReadOnly(t *testing.T) {
	s, path := setupTestStore(t, entry.String, Options{})
	ctx := context.Background()
	require.NoError(t, s.Append(stringRows("a", "b", "a")))
	require.NoError(t, s.BuildIndex(ctx))
	require.NoError(t, s.MarkComplete(3))
	want := s.Metadata()
	require.NoError(t, s.Close())

	ro, err := Open(path, Options{})
	require.NoError(t, err)
	defer ro.Close()

	got := ro.Metadata()
	assert.True(t, got.Complete)
	assert.Equal(t, int64(3), got.Count)
	assert.Equal(t, FormatVersion, got.FormatVersion)
	assert.Equal(t, entry.String, got.KeyType)
	assert.Equal(t, "catalog.tsv.gz", got.Catalog)
	assert.True(t, want.Created.Equal(got.Created))
	assert.Positive(t, ro.DiskUsage())

	offsets, err := ro.Lookup(ctx, entry.StringKey("a"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1 << 16, 3 << 16}, offsets)

	assert.ErrorIs(t, ro.Append(stringRows("c")), ErrReadOnly)
	assert.ErrorIs(t, ro.BuildIndex(ctx), ErrReadOnly)
	assert.ErrorIs(t, ro.MarkComplete(4), ErrReadOnly)
}

func TestOpenManyReaders(t *testing.T) {
	s, path := setupTestStore(t, entry.String, Options{})
	ctx := context.Background()
	require.NoError(t, s.Append(stringRows("a", "b", "a")))
	require.NoError(t, s.BuildIndex(ctx))
	require.NoError(t, s.MarkComplete(3))
	require.NoError(t, s.Close())

	readers := make([]*Store, 3)
	for i := range readers {
		ro, err := Open(path, Options{})
		require.NoError(t, err, "reader %d", i)
		readers[i] = ro
	}

	for _, ro := range readers {
		offsets, err := ro.Lookup(ctx, entry.StringKey("a"))
		require.NoError(t, err)
		assert.Equal(t, []uint64{1 << 16, 3 << 16}, offsets)
	}

	// Closing one reader leaves the others usable.
	require.NoError(t, readers[0].Close())
	offsets, err := readers[2].Lookup(ctx, entry.StringKey("b"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{2 << 16}, offsets)

	for _, ro := range readers[1:] {
		require.NoError(t, ro.Close())
	}
}

func TestOpenWithoutMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare")
	db, err := pebble.Open(path, &pebble.Options{})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("x"), []byte("y"), pebble.Sync))
	require.NoError(t, db.Close())

	_, err = Open(path, Options{})
	assert.ErrorIs(t, err, xerrors.ErrIndexNotReady)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
	}{
		{in: []byte("k/"), want: []byte("k0")},
		{in: []byte{'k', 0xFF}, want: []byte{'l'}},
		{in: []byte{0xFF, 0xFF}, want: nil},
		{in: []byte{0x00, 0x01}, want: []byte{0x00, 0x02}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, prefixEnd(tt.in))
	}
}
