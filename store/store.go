// Package store keeps an index in a Pebble database.
//
// Three namespaces share the keyspace:
//
//	m/meta                      JSON metadata
//	r/<row id>                  offset, encoded key      (row table)
//	k/<encoded key><row id>     offset                   (key index)
//
// Rows are appended in batches during load. The key index is built once, in bulk,
// after the last row is committed, by an external sort over the row table. Key
// encodings are order preserving and prefix free, so a lookup is a prefix scan and
// duplicates come back in row id order.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/davidvella/catidx/entry"
	xerrors "github.com/davidvella/catidx/internal/errors"
	"github.com/davidvella/catidx/sortrun"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrReadOnly    = errors.New("store: store is read-only")
	ErrCorruptRow  = errors.New("store: corrupt row")
	ErrIndexExists = errors.New("store: key index already built")
)

const (
	defaultCacheSize    = 8 << 20
	defaultMaxOpenFiles = 256
	defaultBatchSize    = 10_000
	defaultRunSize      = 1_000_000
	ctxCheckInterval    = 1 << 14
)

var (
	metaKey = []byte(string(MetadataNamespace) + "meta")
	json    = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Options configures a Store
type Options struct {
	// CacheSize is the block cache size in bytes.
	CacheSize int64
	// MaxOpenFiles bounds the table files Pebble keeps open.
	MaxOpenFiles int
	// BatchSize is the number of key index elements per commit while building.
	BatchSize int
	// RunSize is the number of elements sorted in memory per spill run.
	RunSize int
	// TempDir holds spill runs while the key index is built.
	TempDir string
}

func (o Options) withDefaults() Options {
	if o.CacheSize <= 0 {
		o.CacheSize = defaultCacheSize
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = defaultMaxOpenFiles
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.RunSize <= 0 {
		o.RunSize = defaultRunSize
	}
	return o
}

// Store is an index held in a Pebble database
type Store struct {
	db       *pebble.DB
	cache    *pebble.Cache
	opts     Options
	meta     Metadata
	readOnly bool
	closed   bool
	rows     uint64
}

// Create makes a new, empty store at path. The path must not hold a database.
func Create(path string, meta Metadata, opts Options) (*Store, error) {
	if meta.KeyType != entry.Integer && meta.KeyType != entry.String {
		return nil, entry.ErrInvalidKeyType
	}
	opts = opts.withDefaults()
	cache := pebble.NewCache(opts.CacheSize)
	db, err := pebble.Open(path, &pebble.Options{
		Cache:         cache,
		MaxOpenFiles:  opts.MaxOpenFiles,
		ErrorIfExists: true,
	})
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("store: failed to create %s: %w", path, err)
	}

	s := &Store{db: db, cache: cache, opts: opts}
	meta.FormatVersion = FormatVersion
	meta.Complete = false
	if err := s.writeMetadata(meta); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing store read-only.
func Open(path string, opts Options) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store: failed to open %s: %w", path, err)
	}
	opts = opts.withDefaults()
	cache := pebble.NewCache(opts.CacheSize)
	db, err := pebble.Open(path, &pebble.Options{
		Cache:            cache,
		MaxOpenFiles:     opts.MaxOpenFiles,
		ReadOnly:         true,
		ErrorIfNotExists: true,
		FS:               sharedReadFS{FS: vfs.Default},
	})
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("store: failed to open %s: %w", path, err)
	}

	s := &Store{db: db, cache: cache, opts: opts, readOnly: true}
	if err := s.loadMetadata(); err != nil {
		s.Close()
		return nil, fmt.Errorf("store: %s: %w", path, err)
	}
	return s, nil
}

// sharedReadFS skips the directory lock Pebble takes on every open. Readers only
// ever open published stores, which no longer change, so any number of them may
// share one directory, in one process or many.
type sharedReadFS struct {
	vfs.FS
}

func (sharedReadFS) Lock(string) (io.Closer, error) { return nopCloser{}, nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	s.cache.Unref()
	return err
}

// Metadata returns the metadata as last written or loaded.
func (s *Store) Metadata() Metadata { return s.meta }

// KeyType returns the key type of the store.
func (s *Store) KeyType() entry.KeyType { return s.meta.KeyType }

// DiskUsage reports the bytes the database occupies on disk.
func (s *Store) DiskUsage() uint64 {
	return s.db.Metrics().DiskSpaceUsage()
}

func (s *Store) writeMetadata(meta Metadata) error {
	if s.readOnly {
		return ErrReadOnly
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: failed to serialize metadata: %w", err)
	}
	if err := s.db.Set(metaKey, b, pebble.Sync); err != nil {
		return fmt.Errorf("store: failed to write metadata: %w", err)
	}
	s.meta = meta
	return nil
}

func (s *Store) loadMetadata() error {
	b, closer, err := s.db.Get(metaKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%w: metadata missing", xerrors.ErrIndexNotReady)
	}
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	defer closer.Close()

	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return fmt.Errorf("%w: corrupt metadata: %w", xerrors.ErrIndexNotReady, err)
	}
	if meta.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: format version %d, want %d", xerrors.ErrIndexNotReady, meta.FormatVersion, FormatVersion)
	}
	s.meta = meta
	return nil
}

// MarkComplete records the published entry count and flags the index complete.
func (s *Store) MarkComplete(count int64) error {
	meta := s.meta
	meta.Count = count
	meta.Complete = true
	if err := s.writeMetadata(meta); err != nil {
		return err
	}
	if err := s.db.Flush(); err != nil {
		return fmt.Errorf("store: failed to flush: %w", err)
	}
	return nil
}

// Append commits rows as one batch, giving them the next row ids.
func (s *Store) Append(rows []Row) error {
	if s.readOnly {
		return ErrReadOnly
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	key := make([]byte, 0, len(RowNamespace)+8)
	var value []byte
	for i, r := range rows {
		if r.Key.Type() != s.meta.KeyType {
			return &xerrors.TypeMismatchError{Index: s.meta.KeyType, Key: r.Key.Type()}
		}
		key = rowKey(key[:0], s.rows+uint64(i))
		value = binary.BigEndian.AppendUint64(value[:0], r.Offset)
		value = r.Key.Append(value)
		if err := batch.Set(key, value, nil); err != nil {
			return fmt.Errorf("store: failed to stage row: %w", err)
		}
	}

	if err := batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("store: failed to commit rows: %w", err)
	}
	s.rows += uint64(len(rows))
	return nil
}

// Rows yields the row table in row id order. The returned function reports the
// first error met.
func (s *Store) Rows(ctx context.Context) (iter.Seq2[uint64, Row], func() error) {
	var iterErr error
	seq := func(yield func(uint64, Row) bool) {
		it, err := s.prefixIter([]byte(RowNamespace))
		if err != nil {
			iterErr = err
			return
		}
		defer it.Close()

		n := 0
		for it.First(); it.Valid(); it.Next() {
			if n++; n%ctxCheckInterval == 0 {
				if iterErr = ctx.Err(); iterErr != nil {
					return
				}
			}
			id, row, err := s.decodeRow(it.Key(), it.Value())
			if err != nil {
				iterErr = err
				return
			}
			if !yield(id, row) {
				return
			}
		}
		iterErr = it.Error()
	}
	return seq, func() error { return iterErr }
}

func (s *Store) decodeRow(key, value []byte) (uint64, Row, error) {
	if len(key) != len(RowNamespace)+8 || len(value) < 8 {
		return 0, Row{}, ErrCorruptRow
	}
	id := binary.BigEndian.Uint64(key[len(RowNamespace):])
	k, rest, err := entry.Decode(value[8:], s.meta.KeyType)
	if err == nil && len(rest) != 0 {
		err = entry.ErrCorruptKey
	}
	if err != nil {
		return 0, Row{}, fmt.Errorf("%w %d: %w", ErrCorruptRow, id, err)
	}
	return id, Row{Key: k, Offset: binary.BigEndian.Uint64(value)}, nil
}

// BuildIndex sorts the row table into the key index. It runs once, after load.
func (s *Store) BuildIndex(ctx context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if has, err := s.hasPrefix([]byte(KeyNamespace)); err != nil {
		return err
	} else if has {
		return ErrIndexExists
	}

	dir, err := os.MkdirTemp(s.opts.TempDir, "catidx-runs-*")
	if err != nil {
		return fmt.Errorf("store: failed to create run directory: %w", err)
	}
	defer os.RemoveAll(dir)

	sorter, err := sortrun.NewSorter(dir, s.opts.RunSize)
	if err != nil {
		return err
	}
	defer sorter.Close()

	rows, rowsErr := s.Rows(ctx)
	for id, row := range rows {
		if err := sorter.Add(entry.NewIndexed(row.Key, id, row.Offset)); err != nil {
			return err
		}
	}
	if err := rowsErr(); err != nil {
		return err
	}

	merged, err := sorter.Sorted()
	if err != nil {
		return err
	}
	defer merged.Close()

	if err := s.writeIndex(ctx, merged.All()); err != nil {
		return err
	}
	if err := merged.Err(); err != nil {
		return err
	}
	return s.db.Flush()
}

func (s *Store) writeIndex(ctx context.Context, elems iter.Seq[entry.Indexed]) error {
	batch := s.db.NewBatch()
	defer func() { batch.Close() }()

	var value [8]byte
	key := make([]byte, 0, 64)
	for e := range elems {
		key = append(append(key[:0], KeyNamespace...), e.Key...)
		binary.BigEndian.PutUint64(value[:], e.Offset)
		if err := batch.Set(key, value[:], nil); err != nil {
			return fmt.Errorf("store: failed to stage index entry: %w", err)
		}

		if int(batch.Count()) >= s.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := batch.Commit(pebble.NoSync); err != nil {
				return fmt.Errorf("store: failed to commit index batch: %w", err)
			}
			batch.Close()
			batch = s.db.NewBatch()
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("store: failed to commit index batch: %w", err)
	}
	return nil
}

// Lookup returns the offsets of every entry with key, in row id order. A key
// that is not present gives an empty result.
func (s *Store) Lookup(ctx context.Context, key entry.Key) ([]uint64, error) {
	if key.Type() != s.meta.KeyType {
		return nil, &xerrors.TypeMismatchError{Index: s.meta.KeyType, Key: key.Type()}
	}

	prefix := key.Append([]byte(KeyNamespace))
	it, err := s.prefixIter(prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	offsets := []uint64{}
	for it.First(); it.Valid(); it.Next() {
		if len(it.Key()) != len(prefix)+8 || len(it.Value()) != 8 {
			return nil, fmt.Errorf("store: corrupt index entry for key %s", key)
		}
		offsets = append(offsets, binary.BigEndian.Uint64(it.Value()))
		if len(offsets)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("store: lookup failed: %w", err)
	}
	return offsets, nil
}

// Entries yields the key index in key order, duplicates in row id order. The
// returned function reports the first error met.
func (s *Store) Entries(ctx context.Context) (iter.Seq[Entry], func() error) {
	var iterErr error
	seq := func(yield func(Entry) bool) {
		it, err := s.prefixIter([]byte(KeyNamespace))
		if err != nil {
			iterErr = err
			return
		}
		defer it.Close()

		n := 0
		for it.First(); it.Valid(); it.Next() {
			if n++; n%ctxCheckInterval == 0 {
				if iterErr = ctx.Err(); iterErr != nil {
					return
				}
			}
			e, err := s.decodeEntry(it.Key(), it.Value())
			if err != nil {
				iterErr = err
				return
			}
			if !yield(e) {
				return
			}
		}
		iterErr = it.Error()
	}
	return seq, func() error { return iterErr }
}

func (s *Store) decodeEntry(key, value []byte) (Entry, error) {
	body := key[len(KeyNamespace):]
	k, rest, err := entry.Decode(body, s.meta.KeyType)
	if err == nil && (len(rest) != 8 || len(value) != 8) {
		err = entry.ErrCorruptKey
	}
	if err != nil {
		return Entry{}, fmt.Errorf("store: corrupt index entry %x: %w", key, err)
	}
	return Entry{
		Key:    k,
		Row:    binary.BigEndian.Uint64(rest),
		Offset: binary.BigEndian.Uint64(value),
	}, nil
}

func (s *Store) prefixIter(prefix []byte) (*pebble.Iterator, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to create iterator: %w", err)
	}
	return it, nil
}

func (s *Store) hasPrefix(prefix []byte) (bool, error) {
	it, err := s.prefixIter(prefix)
	if err != nil {
		return false, err
	}
	defer it.Close()
	return it.First(), it.Error()
}

func rowKey(dst []byte, id uint64) []byte {
	dst = append(dst, RowNamespace...)
	return binary.BigEndian.AppendUint64(dst, id)
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
