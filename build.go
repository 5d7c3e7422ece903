package catidx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davidvella/catidx/catalog"
	"github.com/davidvella/catidx/entry"
	"github.com/davidvella/catidx/internal/lock"
	"github.com/davidvella/catidx/loader"
	"github.com/davidvella/catidx/staging"
	"github.com/davidvella/catidx/store"
	"github.com/davidvella/catidx/workspace"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConfig = errors.New("catidx: invalid build configuration")

// Config names what to index and where to put the index.
type Config struct {
	// Catalog is the BGZF compressed catalog.
	Catalog string
	// Column holds the key, 1-based; negative values count from the last column.
	Column int
	// Path is the dotted JSON path of the key inside Column. Empty means the
	// whole column is the key.
	Path string
	// Dest is the index directory. Anything already there is replaced.
	Dest string
	// Delimiter separates columns. Empty means tab.
	Delimiter string
}

func (c Config) validate() error {
	switch {
	case c.Catalog == "":
		return fmt.Errorf("%w: catalog path is required", ErrInvalidConfig)
	case c.Dest == "":
		return fmt.Errorf("%w: index destination is required", ErrInvalidConfig)
	case c.Column == 0:
		return fmt.Errorf("%w: key column must be non-zero", ErrInvalidConfig)
	}
	return nil
}

// Summary describes a build.
type Summary struct {
	Index       string
	Scanned     int64
	Skipped     int64
	Loaded      int64
	Published   int64
	KeyType     entry.KeyType
	MaxKeyWidth int
	Elapsed     time.Duration
}

// Build indexes cfg.Catalog into cfg.Dest. It either publishes a complete,
// verified index or returns a *BuildError and leaves nothing at cfg.Dest.
// A build already running against cfg.Dest fails with ErrBuildInProgress.
func Build(ctx context.Context, cfg Config, opts ...Option) (Summary, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.validate(); err != nil {
		return Summary{}, err
	}
	// The lock and the workspace must name the same destination.
	cfg.Dest = filepath.Clean(cfg.Dest)

	b := &builder{
		cfg:     cfg,
		opts:    o,
		log:     o.logger.WithIndex(cfg.Dest),
		started: time.Now(),
		summary: Summary{Index: cfg.Dest},
	}
	if o.metrics != nil {
		RegisterMetrics(o.metrics)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Dest), 0o755); err != nil {
		return Summary{}, fmt.Errorf("catidx: failed to create directory for %s: %w", cfg.Dest, err)
	}
	lk, err := lock.TryAcquire(cfg.Dest + ".lock")
	if errors.Is(err, lock.ErrLocked) {
		return Summary{}, fmt.Errorf("catidx: %s: %w", cfg.Dest, ErrBuildInProgress)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("catidx: %w", err)
	}
	defer lk.Release()

	err = b.run(ctx)
	b.summary.Elapsed = time.Since(b.started)
	b.record()
	if err != nil {
		b.transition(ctx, Failed)
		err = &BuildError{
			Stage:   b.failedIn,
			Scanned: b.summary.Scanned,
			Skipped: b.summary.Skipped,
			Loaded:  b.summary.Loaded,
			Err:     err,
		}
		b.log.LogSummary(ctx, b.summary, err)
		return b.summary, err
	}
	b.log.LogSummary(ctx, b.summary, nil)
	return b.summary, nil
}

type builder struct {
	cfg      Config
	opts     options
	log      *Logger
	started  time.Time
	state    State
	failedIn State
	summary  Summary
}

func (b *builder) transition(ctx context.Context, to State) {
	b.log.LogTransition(ctx, b.state, to)
	if to == Failed {
		b.failedIn = b.state
	}
	b.state = to
	b.opts.metrics.RecordGauge(MetricBuildState, float64(to), map[string]string{"index": b.cfg.Dest})
}

// enter moves to the next stage unless ctx is already done.
func (b *builder) enter(ctx context.Context, to State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.transition(ctx, to)
	return nil
}

func (b *builder) run(ctx context.Context) (err error) {
	ws := workspace.New(b.cfg.Dest)
	if err := b.enter(ctx, Scanning); err != nil {
		return err
	}
	if err := ws.Prepare(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ws.Discard())
		}
	}()

	stats, stagingPath, err := b.scan(ctx)
	defer func() {
		if stagingPath != "" {
			if rmErr := staging.Remove(stagingPath); rmErr != nil {
				b.log.WarnContext(ctx, "failed to remove staging file", "path", stagingPath, "error", rmErr)
			}
		}
	}()
	if err != nil {
		return err
	}

	if err := b.enter(ctx, StagingComplete); err != nil {
		return err
	}
	b.summary.KeyType = stats.KeyType()
	b.summary.MaxKeyWidth = stats.MaxKeyWidth
	if stats.MaxKeyWidth == 0 {
		return &EmptyIndexError{Scanned: stats.Records, Skipped: stats.Skipped}
	}

	if err := b.enter(ctx, Loading); err != nil {
		return err
	}
	st, err := store.Create(ws.Pending(), store.Metadata{
		KeyType:     stats.KeyType(),
		MaxKeyWidth: stats.MaxKeyWidth,
		Catalog:     b.cfg.Catalog,
		Column:      b.cfg.Column,
		Path:        b.cfg.Path,
		Created:     b.started.UTC(),
	}, store.Options{
		BatchSize: b.opts.batchSize,
		RunSize:   b.opts.runSize,
		TempDir:   b.opts.stagingDir,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := b.load(ctx, stagingPath, st, stats.KeyType()); err != nil {
		return err
	}

	if err := b.enter(ctx, Verifying); err != nil {
		return err
	}
	if err := st.Verify(ctx, stats.Extracted); err != nil {
		return err
	}
	if err := st.MarkComplete(stats.Extracted); err != nil {
		return err
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("catidx: failed to close index: %w", err)
	}
	if err := ws.Publish(); err != nil {
		return err
	}

	b.summary.Published = stats.Extracted
	b.transition(ctx, Published)
	return nil
}

// scan streams the catalog into a staging file. The scanner and the staging
// writer run concurrently, joined by a bounded channel.
func (b *builder) scan(ctx context.Context) (catalog.Stats, string, error) {
	x, err := catalog.NewExtractor(b.cfg.Column, b.cfg.Path)
	if err != nil {
		return catalog.Stats{}, "", err
	}
	r, err := catalog.Open(b.cfg.Catalog,
		catalog.WithDelimiter(b.cfg.Delimiter),
		catalog.WithRateLimit(b.opts.rateLimit))
	if err != nil {
		return catalog.Stats{}, "", err
	}
	defer r.Close()

	w, err := staging.Create(b.opts.stagingDir)
	if err != nil {
		return catalog.Stats{}, "", err
	}

	scanner := catalog.NewScanner(x)
	queue := make(chan entry.Staged, b.opts.queueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		err := scanner.Scan(gctx, r.Lines(gctx), func(e entry.Staged) error {
			select {
			case queue <- e:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		if err != nil {
			return err
		}
		return r.Err()
	})

	g.Go(func() error {
		for e := range queue {
			if err := w.Append(e); err != nil {
				return err
			}
		}
		return w.Close()
	})

	err = g.Wait()
	if cerr := w.Close(); err == nil {
		err = cerr
	}

	stats := scanner.Stats()
	b.summary.Scanned = stats.Records
	b.summary.Skipped = stats.Skipped
	return stats, w.Path(), err
}

func (b *builder) load(ctx context.Context, stagingPath string, st *store.Store, kt entry.KeyType) error {
	src, err := staging.Open(stagingPath)
	if err != nil {
		return err
	}
	defer src.Close()

	var sink loader.Sink = st
	if b.opts.wrapSink != nil {
		sink = b.opts.wrapSink(sink)
	}

	res, err := loader.Load(ctx, src, sink, loader.Options{
		KeyType:   kt,
		BatchSize: b.opts.batchSize,
		Progress: func(p loader.Progress) {
			b.summary.Loaded = p.Loaded
			b.log.LogProgress(ctx, p)
			if b.opts.progress != nil {
				b.opts.progress(p)
			}
		},
	})
	b.summary.Loaded = res.Loaded
	return err
}

func (b *builder) record() {
	m := b.opts.metrics
	if m == nil {
		return
	}
	labels := map[string]string{"index": b.cfg.Dest}
	m.RecordCounter(MetricRecordsScanned, float64(b.summary.Scanned), labels)
	m.RecordCounter(MetricRecordsSkipped, float64(b.summary.Skipped), labels)
	m.RecordCounter(MetricEntriesLoaded, float64(b.summary.Loaded), labels)
	m.RecordGauge(MetricBuildSeconds, b.summary.Elapsed.Seconds(), labels)
}
