// Package catalog streams records out of a BGZF compressed, delimited catalog and
// extracts one index key per record.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/davidvella/catidx/bgzf"
	"golang.org/x/time/rate"
)

const (
	DefaultDelimiter = "\t"
	commentPrefix    = '#'
	ctxCheckInterval = 4096
)

// Line is one catalog record split into columns, with the virtual offset of
// its first byte.
type Line struct {
	Columns []string
	Offset  uint64
}

type options struct {
	delimiter string
	rateLimit int
}

type Option func(*options)

// WithDelimiter sets the column delimiter. The default is a tab.
func WithDelimiter(d string) Option {
	return func(o *options) {
		if d != "" {
			o.delimiter = d
		}
	}
}

// WithRateLimit caps compressed reads at bytesPerSec. Zero disables throttling.
func WithRateLimit(bytesPerSec int) Option {
	return func(o *options) {
		o.rateLimit = bytesPerSec
	}
}

// Reader iterates the records of one catalog file.
type Reader struct {
	path     string
	f        *os.File
	throttle *throttledReader
	bz       *bgzf.Reader
	opts     options
	err      error
}

// Open opens the catalog at path.
func Open(path string, opts ...Option) (*Reader, error) {
	o := options{delimiter: DefaultDelimiter}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open %s: %w", path, err)
	}

	r := &Reader{path: path, f: f, opts: o}
	var src io.Reader = f
	if o.rateLimit > 0 {
		burst := max(o.rateLimit, 1<<16)
		r.throttle = &throttledReader{
			r:       f,
			limiter: rate.NewLimiter(rate.Limit(o.rateLimit), burst),
			ctx:     context.Background(),
		}
		src = r.throttle
	}
	r.bz = bgzf.NewReader(src)

	return r, nil
}

func (r *Reader) Path() string { return r.path }

// File returns the underlying catalog file for random access reads.
func (r *Reader) File() *os.File { return r.f }

// Lines yields every record in file order. Header lines starting with '#' and
// blank lines are not records. Iteration stops at the first error or when ctx
// is done; check Err afterwards.
func (r *Reader) Lines(ctx context.Context) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		if r.throttle != nil {
			r.throttle.ctx = ctx
		}
		for n := 0; r.err == nil; n++ {
			if n%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					r.err = err
					return
				}
			}

			raw, voff, err := r.bz.ReadLine()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				r.err = fmt.Errorf("catalog: failed to read %s: %w", r.path, err)
				return
			}
			if len(raw) == 0 || raw[0] == commentPrefix {
				continue
			}

			line := Line{
				Columns: strings.Split(string(raw), r.opts.delimiter),
				Offset:  voff,
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Err returns the first error met by Lines.
func (r *Reader) Err() error { return r.err }

func (r *Reader) Close() error {
	return r.f.Close()
}

// throttledReader waits on a token bucket for every byte read.
type throttledReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
