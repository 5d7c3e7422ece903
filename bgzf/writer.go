package bgzf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Writer compresses a byte stream into BGZF blocks.
type Writer struct {
	w         io.Writer
	gz        *gzip.Writer
	raw       bytes.Buffer
	buf       []byte
	blockSize int
	level     int
	coff      uint64
	closed    bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBlockSize caps the uncompressed payload of each block. Small sizes are
// mostly useful to exercise lines that span blocks.
func WithBlockSize(n int) WriterOption {
	return func(w *Writer) {
		w.blockSize = n
	}
}

// WithLevel sets the gzip compression level.
func WithLevel(level int) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	bw := &Writer{
		w:         w,
		blockSize: MaxBlockSize,
		level:     gzip.DefaultCompression,
	}
	for _, opt := range opts {
		opt(bw)
	}

	if bw.blockSize <= 0 || bw.blockSize > MaxBlockSize {
		return nil, ErrInvalidBlockSz
	}

	gz, err := gzip.NewWriterLevel(&bw.raw, bw.level)
	if err != nil {
		return nil, fmt.Errorf("bgzf: %w", err)
	}
	bw.gz = gz
	bw.buf = make([]byte, 0, bw.blockSize)

	return bw, nil
}

// Offset returns the virtual offset the next written byte will have.
func (w *Writer) Offset() uint64 {
	return MakeOffset(w.coff, uint16(len(w.buf)))
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}

	var written int
	for len(p) > 0 {
		n := copy(w.buf[len(w.buf):w.blockSize], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		written += n

		// Flushing as soon as a block fills keeps Offset pointing at the
		// block the next byte really lands in.
		if len(w.buf) == w.blockSize {
			if err := w.flushBlock(); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

func (w *Writer) flushBlock() error {
	w.raw.Reset()
	w.gz.Reset(&w.raw)
	w.gz.Header.Extra = []byte{'B', 'C', 2, 0, 0, 0}

	if _, err := w.gz.Write(w.buf); err != nil {
		return fmt.Errorf("bgzf: compress block: %w", err)
	}
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("bgzf: compress block: %w", err)
	}

	block := w.raw.Bytes()
	if len(block) > maxCompressedBlock {
		return ErrBlockTooLarge
	}
	binary.LittleEndian.PutUint16(block[16:18], uint16(len(block)-1))

	if _, err := w.w.Write(block); err != nil {
		return fmt.Errorf("bgzf: write block: %w", err)
	}

	w.coff += uint64(len(block))
	w.buf = w.buf[:0]

	return nil
}

// Close flushes the pending block and writes the EOF marker. It does not close
// the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buf) > 0 {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}

	if _, err := w.w.Write(eofMarker); err != nil {
		return fmt.Errorf("bgzf: write eof marker: %w", err)
	}
	w.coff += uint64(len(eofMarker))

	return nil
}
