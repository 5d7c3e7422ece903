// Package staging holds the (raw key, offset) pairs produced by a catalog scan
// until the key type is known and they can be loaded.
//
// A staging file is written once, front to back, and read once, front to back.
// Its body is a zstd stream of recordio frames. Staging files are build scratch:
// callers remove them on every exit path, successful or not.
package staging

import (
	"bufio"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/davidvella/catidx/entry"
	"github.com/davidvella/catidx/recordio"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

var ErrWriterClosed = errors.New("staging: writer is closed")

const defaultBufSize = 256 * 1024

// Writer appends staged entries to a new staging file.
type Writer struct {
	path   string
	f      *os.File
	buf    *bufio.Writer
	zw     *zstd.Encoder
	count  int64
	bytes  int64
	closed bool
}

// Create makes a uniquely named staging file in dir. An empty dir means the
// system temporary directory.
func Create(dir string) (*Writer, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "catidx-staging-"+uuid.NewString()+".zst")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("staging: failed to create %s: %w", path, err)
	}

	buf := bufio.NewWriterSize(f, defaultBufSize)
	zw, err := zstd.NewWriter(buf,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("staging: failed to create encoder: %w", err)
	}

	return &Writer{path: path, f: f, buf: buf, zw: zw}, nil
}

func (w *Writer) Path() string { return w.path }

// Append writes one entry.
func (w *Writer) Append(e entry.Staged) error {
	if w.closed {
		return ErrWriterClosed
	}
	n, err := recordio.WriteStaged(w.zw, e)
	if err != nil {
		return fmt.Errorf("staging: failed to append to %s: %w", w.path, err)
	}
	w.count++
	w.bytes += n
	return nil
}

// Count returns the number of entries appended.
func (w *Writer) Count() int64 { return w.count }

// Bytes returns the uncompressed size of the appended frames.
func (w *Writer) Bytes() int64 { return w.bytes }

// Close flushes the stream and closes the file, which stays on disk until Remove.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.zw.Close()
	if err == nil {
		err = w.buf.Flush()
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("staging: failed to close %s: %w", w.path, err)
	}
	return nil
}

// Remove closes the writer if needed and deletes the staging file.
func (w *Writer) Remove() error {
	cerr := w.Close()
	return errors.Join(Remove(w.path), cerr)
}

// Remove deletes the staging file at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("staging: failed to remove %s: %w", path, err)
	}
	return nil
}

// Reader reads a closed staging file sequentially.
type Reader struct {
	f  *os.File
	zr *zstd.Decoder
	rr *recordio.Reader
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("staging: failed to open %s: %w", path, err)
	}

	zr, err := zstd.NewReader(bufio.NewReaderSize(f, defaultBufSize), zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("staging: failed to create decoder for %s: %w", path, err)
	}

	return &Reader{f: f, zr: zr, rr: recordio.NewReader(zr)}, nil
}

// All yields the entries in append order. Check Err afterwards.
func (r *Reader) All() iter.Seq[entry.Staged] {
	return r.rr.Staged()
}

// Err returns the first error met by All.
func (r *Reader) Err() error { return r.rr.Err() }

// BytesRead returns the uncompressed bytes consumed so far.
func (r *Reader) BytesRead() int64 { return r.rr.BytesRead() }

func (r *Reader) Close() error {
	r.zr.Close()
	return r.f.Close()
}
