package sortrun

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/davidvella/catidx/entry"
	"github.com/davidvella/catidx/recordio"
	"github.com/pierrec/lz4/v4"
)

var (
	ErrRunClosed  = errors.New("sortrun: run already closed")
	ErrOutOfOrder = errors.New("sortrun: elements must be written in sorted order")
	ErrCorruptRun = errors.New("sortrun: corrupted run file")
)

// File format constants.
const (
	magicHeader    = int64(0x53525548) // "SRUH"
	magicFooter    = int64(0x53525546) // "SRUF"
	formatVersion  = int64(1)
	headerSize     = 2 * 8
	footerSize     = 2 * 8
	defaultBufSize = 64 * 1024
)

// RunWriter writes one sorted run file.
type RunWriter struct {
	f      *os.File
	buf    *bufio.Writer
	zw     *lz4.Writer
	last   []byte
	count  int64
	closed bool
}

// CreateRun creates a run file at path, truncating any existing file.
func CreateRun(path string) (*RunWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sortrun: failed to create run %s: %w", path, err)
	}

	buf := bufio.NewWriterSize(f, defaultBufSize)
	bw := recordio.NewBinaryWriter(buf)
	if _, err := bw.WriteInt64(magicHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("sortrun: failed to write header: %w", err)
	}
	if _, err := bw.WriteInt64(formatVersion); err != nil {
		f.Close()
		return nil, fmt.Errorf("sortrun: failed to write header: %w", err)
	}

	zw := lz4.NewWriter(buf)
	if err := zw.Apply(lz4.BlockSizeOption(lz4.Block256Kb), lz4.ChecksumOption(true)); err != nil {
		f.Close()
		return nil, fmt.Errorf("sortrun: failed to configure compression: %w", err)
	}

	return &RunWriter{f: f, buf: buf, zw: zw}, nil
}

// Write appends e, which must sort strictly after the previous element.
func (w *RunWriter) Write(e entry.Indexed) error {
	if w.closed {
		return ErrRunClosed
	}
	if w.last != nil && bytes.Compare(e.Key, w.last) <= 0 {
		return ErrOutOfOrder
	}
	if _, err := recordio.WriteIndexed(w.zw, e); err != nil {
		return fmt.Errorf("sortrun: failed to write element: %w", err)
	}
	w.last = append(w.last[:0], e.Key...)
	w.count++
	return nil
}

// Count returns the number of elements written so far.
func (w *RunWriter) Count() int64 { return w.count }

// Close finishes the compressed body, writes the footer and closes the file.
func (w *RunWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finish()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (w *RunWriter) finish() error {
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("sortrun: failed to close compressed body: %w", err)
	}
	bw := recordio.NewBinaryWriter(w.buf)
	if _, err := bw.WriteInt64(w.count); err != nil {
		return fmt.Errorf("sortrun: failed to write footer: %w", err)
	}
	if _, err := bw.WriteInt64(magicFooter); err != nil {
		return fmt.Errorf("sortrun: failed to write footer: %w", err)
	}
	return w.buf.Flush()
}

// RunReader reads back a run file written by RunWriter.
type RunReader struct {
	f     *os.File
	rr    *recordio.Reader
	count int64
	read  int64
	err   error
}

// OpenRun opens the run at path and validates its header and footer.
func OpenRun(path string) (*RunReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sortrun: failed to open run %s: %w", path, err)
	}

	count, size, err := readFrame(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptRun, path, err)
	}

	body := io.NewSectionReader(f, headerSize, size-headerSize-footerSize)
	return &RunReader{
		f:     f,
		rr:    recordio.NewReader(lz4.NewReader(body)),
		count: count,
	}, nil
}

// readFrame checks the header and footer and returns the element count and file size.
func readFrame(f *os.File) (int64, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	size := info.Size()
	if size < headerSize+footerSize {
		return 0, 0, errors.New("file too small")
	}

	br := recordio.NewBinaryReader(io.NewSectionReader(f, 0, headerSize))
	if magic, err := br.ReadInt64(); err != nil || magic != magicHeader {
		return 0, 0, errors.New("bad header magic")
	}
	if version, err := br.ReadInt64(); err != nil || version != formatVersion {
		return 0, 0, errors.New("unsupported format version")
	}

	br = recordio.NewBinaryReader(io.NewSectionReader(f, size-footerSize, footerSize))
	count, err := br.ReadInt64()
	if err != nil {
		return 0, 0, err
	}
	if magic, err := br.ReadInt64(); err != nil || magic != magicFooter {
		return 0, 0, errors.New("bad footer magic")
	}
	return count, size, nil
}

// Count returns the element count recorded in the footer.
func (r *RunReader) Count() int64 { return r.count }

// All yields the elements of the run in order. Check Err afterwards.
func (r *RunReader) All() iter.Seq[entry.Indexed] {
	return func(yield func(entry.Indexed) bool) {
		for e := range r.rr.Indexed() {
			r.read++
			if !yield(e) {
				return
			}
		}
		if err := r.rr.Err(); err != nil {
			r.err = fmt.Errorf("%w: %w", ErrCorruptRun, err)
			return
		}
		if r.read != r.count {
			r.err = fmt.Errorf("%w: footer records %d elements, body holds %d", ErrCorruptRun, r.count, r.read)
		}
	}
}

// Err returns the first error met by All.
func (r *RunReader) Err() error { return r.err }

func (r *RunReader) Close() error {
	return r.f.Close()
}
