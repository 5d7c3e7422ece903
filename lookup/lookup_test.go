package lookup_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/davidvella/catidx/bgzf"
	"github.com/davidvella/catidx/entry"
	xerrors "github.com/davidvella/catidx/internal/errors"
	"github.com/davidvella/catidx/lookup"
	"github.com/davidvella/catidx/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	catalog string
	index   string
	offsets map[string][]uint64
}

// buildFixture writes a catalog with one key per line and indexes it.
func buildFixture(t *testing.T, kt entry.KeyType, complete bool, keys ...string) fixture {
	t.Helper()
	dir := t.TempDir()
	fx := fixture{
		catalog: filepath.Join(dir, "catalog.tsv.gz"),
		index:   filepath.Join(dir, "catalog.idx"),
		offsets: map[string][]uint64{},
	}

	f, err := os.Create(fx.catalog)
	require.NoError(t, err)
	w, err := bgzf.NewWriter(f, bgzf.WithBlockSize(32))
	require.NoError(t, err)

	s, err := store.Create(fx.index, store.Metadata{KeyType: kt, Catalog: fx.catalog, Column: 2}, store.Options{RunSize: 4, TempDir: dir})
	require.NoError(t, err)

	rows := make([]store.Row, 0, len(keys))
	for i, k := range keys {
		off := w.Offset()
		_, err := fmt.Fprintf(w, "line%d\t%s\n", i, k)
		require.NoError(t, err)

		key, err := entry.ParseKey(k, kt)
		require.NoError(t, err)
		rows = append(rows, store.Row{Key: key, Offset: off})
		fx.offsets[k] = append(fx.offsets[k], off)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	require.NoError(t, s.Append(rows))
	require.NoError(t, s.BuildIndex(context.Background()))
	if complete {
		require.NoError(t, s.MarkComplete(int64(len(rows))))
	}
	require.NoError(t, s.Close())
	return fx
}

func TestLookupDuplicates(t *testing.T) {
	fx := buildFixture(t, entry.String, true,
		"once", "twice", "five", "five", "twice", "five", "five", "five")

	e, err := lookup.Open(fx.index)
	require.NoError(t, err)
	defer e.Close()

	r, err := lookup.OpenResolver(fx.catalog)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	for _, tt := range []struct {
		key   string
		count int
	}{
		{key: "once", count: 1},
		{key: "twice", count: 2},
		{key: "five", count: 5},
	} {
		t.Run(tt.key, func(t *testing.T) {
			got, err := e.Lookup(ctx, entry.StringKey(tt.key))
			require.NoError(t, err)
			assert.Len(t, got, tt.count)
			assert.Equal(t, fx.offsets[tt.key], got)
			assert.True(t, slices.IsSorted(got), "offsets must follow catalog order")

			lines, err := r.Lines(ctx, got)
			require.NoError(t, err)
			for _, l := range lines {
				assert.Regexp(t, `^line\d+\t`+tt.key+`$`, l)
			}
		})
	}

	got, err := e.Lookup(ctx, entry.StringKey("absent"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLookupIntegerIndex(t *testing.T) {
	fx := buildFixture(t, entry.Integer, true, "672", "-5", "672", "0")

	e, err := lookup.Open(fx.index)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	assert.Equal(t, entry.Integer, e.KeyType())

	got, err := e.Lookup(ctx, entry.IntKey(672))
	require.NoError(t, err)
	assert.Equal(t, fx.offsets["672"], got)

	got, err = e.LookupString(ctx, "-5")
	require.NoError(t, err)
	assert.Equal(t, fx.offsets["-5"], got)

	_, err = e.Lookup(ctx, entry.StringKey("672"))
	assert.ErrorIs(t, err, xerrors.ErrTypeMismatch)

	_, err = e.LookupString(ctx, "BRCA1")
	assert.ErrorIs(t, err, xerrors.ErrTypeMismatch)
}

func TestLookupStringOnStringIndex(t *testing.T) {
	fx := buildFixture(t, entry.String, true, "1", "2", "abc")

	e, err := lookup.Open(fx.index)
	require.NoError(t, err)
	defer e.Close()

	got, err := e.LookupString(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, fx.offsets["1"], got)

	_, err = e.Lookup(context.Background(), entry.IntKey(1))
	assert.ErrorIs(t, err, xerrors.ErrTypeMismatch)
}

func TestOpenRefusesIncompleteIndex(t *testing.T) {
	fx := buildFixture(t, entry.String, false, "a")

	_, err := lookup.Open(fx.index)
	assert.ErrorIs(t, err, xerrors.ErrIndexNotReady)
}

func TestOpenMissingIndex(t *testing.T) {
	_, err := lookup.Open(filepath.Join(t.TempDir(), "nothing.idx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInfoAndAll(t *testing.T) {
	fx := buildFixture(t, entry.String, true, "b", "a", "b")

	e, err := lookup.Open(fx.index)
	require.NoError(t, err)
	defer e.Close()

	info := e.Info()
	assert.Equal(t, fx.index, info.Index)
	assert.Equal(t, fx.catalog, info.Catalog)
	assert.Equal(t, int64(3), info.Count)
	assert.Equal(t, 2, info.Column)
	assert.True(t, info.Complete)
	assert.Positive(t, info.DiskUsage)

	all, allErr := e.All(context.Background())
	var keys []string
	var rows []uint64
	for en := range all {
		keys = append(keys, en.Key.String())
		rows = append(rows, en.Row)
	}
	require.NoError(t, allErr())
	assert.Equal(t, []string{"a", "b", "b"}, keys)
	assert.Equal(t, []uint64{1, 0, 2}, rows)
}

func TestConcurrentLookups(t *testing.T) {
	var keys []string
	for i := 0; i < 200; i++ {
		keys = append(keys, fmt.Sprintf("k%d", i%20))
	}
	fx := buildFixture(t, entry.String, true, keys...)

	e, err := lookup.Open(fx.index)
	require.NoError(t, err)
	defer e.Close()
	r, err := lookup.OpenResolver(fx.catalog)
	require.NoError(t, err)
	defer r.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("k%d", (i+g)%20)
				got, err := e.LookupString(context.Background(), key)
				assert.NoError(t, err)
				assert.Equal(t, fx.offsets[key], got)

				lines, err := r.Lines(context.Background(), got[:1])
				assert.NoError(t, err)
				assert.Contains(t, lines[0], "\t"+key)
			}
		}(g)
	}
	wg.Wait()
}

func TestEnginesShareIndex(t *testing.T) {
	var keys []string
	for i := 0; i < 60; i++ {
		keys = append(keys, fmt.Sprintf("k%d", i%6))
	}
	fx := buildFixture(t, entry.String, true, keys...)

	engines := make([]*lookup.Engine, 4)
	for i := range engines {
		e, err := lookup.Open(fx.index)
		require.NoError(t, err, "engine %d", i)
		engines[i] = e
	}
	defer func() {
		for _, e := range engines[1:] {
			assert.NoError(t, e.Close())
		}
	}()

	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func(e *lookup.Engine) {
			defer wg.Done()
			for i := 0; i < 6; i++ {
				key := fmt.Sprintf("k%d", i)
				got, err := e.LookupString(context.Background(), key)
				assert.NoError(t, err)
				assert.Equal(t, fx.offsets[key], got)
			}
		}(e)
	}
	wg.Wait()

	require.NoError(t, engines[0].Close())
	got, err := engines[1].LookupString(context.Background(), "k3")
	require.NoError(t, err)
	assert.Equal(t, fx.offsets["k3"], got)
}

func TestResolverBadOffset(t *testing.T) {
	fx := buildFixture(t, entry.String, true, "a")

	r, err := lookup.OpenResolver(fx.catalog)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Line(bgzf.MakeOffset(1<<30, 0))
	assert.Error(t, err)
}
