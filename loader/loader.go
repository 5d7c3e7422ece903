// Package loader moves staged entries into an index store in committed batches
// and then triggers the bulk build of the key index.
package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"time"

	"github.com/davidvella/catidx/entry"
	xerrors "github.com/davidvella/catidx/internal/errors"
	"github.com/davidvella/catidx/store"
)

const DefaultBatchSize = 10_000

var ErrInvalidBatchSize = errors.New("loader: batch size must be greater than 0")

// Source is a sequential reader of staged entries, such as a staging file.
type Source interface {
	All() iter.Seq[entry.Staged]
	Err() error
	BytesRead() int64
}

// Sink receives rows. Each Append is one committed batch; BuildIndex is called
// once after the last batch.
type Sink interface {
	Append(rows []store.Row) error
	BuildIndex(ctx context.Context) error
}

// Progress is reported after every committed batch.
type Progress struct {
	Loaded           int64
	AvgBytesPerEntry float64
	BytesRead        int64
	HeapBytes        uint64
}

type Options struct {
	// KeyType converts every staged raw key.
	KeyType entry.KeyType
	// BatchSize is the number of rows per commit. Zero means DefaultBatchSize.
	BatchSize int
	// Progress, if set, is called after every commit.
	Progress func(Progress)
}

// Result summarises a load.
type Result struct {
	Loaded    int64
	Batches   int
	BytesRead int64
	Elapsed   time.Duration
}

// Load reads src to the end, appending rows to dst. Cancellation is honoured at
// batch boundaries. A source without entries is an *EmptyIndexError.
func Load(ctx context.Context, src Source, dst Sink, opts Options) (Result, error) {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 0 {
		return Result{}, ErrInvalidBatchSize
	}

	l := &load{src: src, dst: dst, opts: opts, started: time.Now()}
	if err := ctx.Err(); err != nil {
		return l.result(), err
	}

	batch := make([]store.Row, 0, opts.BatchSize)
	for e := range src.All() {
		key, err := entry.ParseKey(e.Key, opts.KeyType)
		if err != nil {
			return l.result(), fmt.Errorf("loader: row %d: %w", l.loaded+int64(len(batch)), err)
		}
		batch = append(batch, store.Row{Key: key, Offset: e.Offset})

		if len(batch) == opts.BatchSize {
			if err := l.commit(ctx, batch); err != nil {
				return l.result(), err
			}
			batch = batch[:0]
		}
	}
	if err := src.Err(); err != nil {
		return l.result(), fmt.Errorf("loader: failed to read staged entries: %w", err)
	}
	if len(batch) > 0 {
		if err := l.commit(ctx, batch); err != nil {
			return l.result(), err
		}
	}

	if l.loaded == 0 {
		return l.result(), &xerrors.EmptyIndexError{}
	}
	if err := ctx.Err(); err != nil {
		return l.result(), err
	}
	if err := dst.BuildIndex(ctx); err != nil {
		return l.result(), fmt.Errorf("loader: failed to build key index: %w", err)
	}
	return l.result(), nil
}

type load struct {
	src     Source
	dst     Sink
	opts    Options
	started time.Time
	loaded  int64
	batches int
}

func (l *load) commit(ctx context.Context, batch []store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.dst.Append(batch); err != nil {
		return fmt.Errorf("loader: failed to commit batch %d: %w", l.batches, err)
	}
	l.loaded += int64(len(batch))
	l.batches++

	if l.opts.Progress != nil {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		read := l.src.BytesRead()
		l.opts.Progress(Progress{
			Loaded:           l.loaded,
			AvgBytesPerEntry: float64(read) / float64(l.loaded),
			BytesRead:        read,
			HeapBytes:        ms.HeapAlloc,
		})
	}
	return nil
}

func (l *load) result() Result {
	return Result{
		Loaded:    l.loaded,
		Batches:   l.batches,
		BytesRead: l.src.BytesRead(),
		Elapsed:   time.Since(l.started),
	}
}
