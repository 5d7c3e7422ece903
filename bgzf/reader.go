package bgzf

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
)

// Reader decompresses a BGZF stream block by block and tracks virtual offsets.
type Reader struct {
	src  io.Reader
	br   *bufio.Reader
	gz   *gzip.Reader
	raw  []byte
	data bytes.Buffer
	line []byte
	pos  int
	coff uint64
	next uint64
}

func NewReader(r io.Reader) *Reader {
	return newReaderAt(r, 0)
}

func newReaderAt(r io.Reader, base uint64) *Reader {
	return &Reader{
		src:  r,
		br:   bufio.NewReaderSize(r, maxCompressedBlock),
		raw:  make([]byte, maxCompressedBlock),
		coff: base,
		next: base,
	}
}

// Offset returns the virtual offset of the next unread byte.
func (r *Reader) Offset() uint64 {
	return MakeOffset(r.coff, uint16(r.pos))
}

// nextBlock loads the next non-empty block. It returns io.EOF at end of stream.
func (r *Reader) nextBlock() error {
	for {
		n, err := r.readBlock()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
}

func (r *Reader) readBlock() (int, error) {
	hdr := r.raw[:headerSize]
	if n, err := io.ReadFull(r.br, hdr); err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("bgzf: read block header at %d: %w", r.next, err)
	}
	if hdr[0] != 0x1f || hdr[1] != 0x8b || hdr[2] != 8 || hdr[3]&0x04 == 0 {
		return 0, fmt.Errorf("%w at %d", ErrNotBGZF, r.next)
	}

	xlen := int(hdr[10]) | int(hdr[11])<<8
	if headerSize+xlen > len(r.raw) {
		return 0, fmt.Errorf("%w at %d", ErrNotBGZF, r.next)
	}
	extra := r.raw[headerSize : headerSize+xlen]
	if _, err := io.ReadFull(r.br, extra); err != nil {
		return 0, fmt.Errorf("bgzf: read extra field at %d: %w", r.next, err)
	}

	size, err := blockSize(extra)
	if err != nil {
		return 0, fmt.Errorf("%w at %d", err, r.next)
	}
	if size < headerSize+xlen || size > len(r.raw) {
		return 0, fmt.Errorf("%w at %d", ErrNotBGZF, r.next)
	}
	if _, err := io.ReadFull(r.br, r.raw[headerSize+xlen:size]); err != nil {
		return 0, fmt.Errorf("bgzf: read block body at %d: %w", r.next, err)
	}

	if err := r.inflate(r.raw[:size]); err != nil {
		return 0, fmt.Errorf("bgzf: inflate block at %d: %w", r.next, err)
	}

	r.coff = r.next
	r.next += uint64(size)
	r.pos = 0

	return r.data.Len(), nil
}

func (r *Reader) inflate(block []byte) error {
	src := bytes.NewReader(block)
	if r.gz == nil {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return err
		}
		r.gz = gz
	} else if err := r.gz.Reset(src); err != nil {
		return err
	}
	r.gz.Multistream(false)

	r.data.Reset()
	_, err := r.data.ReadFrom(r.gz)
	return err
}

// ReadLine returns the next line without its terminator together with the
// virtual offset of its first byte. The slice is only valid until the next call.
func (r *Reader) ReadLine() ([]byte, uint64, error) {
	if r.pos >= r.data.Len() {
		if err := r.nextBlock(); err != nil {
			return nil, 0, err
		}
	}

	voff := r.Offset()
	r.line = r.line[:0]

	for {
		data := r.data.Bytes()[r.pos:]
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			r.line = append(r.line, data[:i]...)
			r.pos += i + 1
			return trimCR(r.line), voff, nil
		}

		r.line = append(r.line, data...)
		r.pos += len(data)

		if err := r.nextBlock(); err != nil {
			if errors.Is(err, io.EOF) && len(r.line) > 0 {
				return trimCR(r.line), voff, nil
			}
			return nil, 0, err
		}
	}
}

// Seek positions the reader at a virtual offset. The source must implement
// io.Seeker.
func (r *Reader) Seek(voff uint64) error {
	s, ok := r.src.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}

	block, within := SplitOffset(voff)
	if block > math.MaxInt64 {
		return ErrBadOffset
	}
	if _, err := s.Seek(int64(block), io.SeekStart); err != nil {
		return fmt.Errorf("bgzf: seek: %w", err)
	}
	r.br.Reset(r.src)
	r.next = block
	r.data.Reset()
	r.pos = 0

	if _, err := r.readBlock(); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrBadOffset
		}
		return err
	}
	if int(within) > r.data.Len() {
		return ErrBadOffset
	}
	r.pos = int(within)

	return nil
}

// ReadLineAt reads the single line starting at voff. It keeps no state between
// calls, so one io.ReaderAt (an *os.File) can serve concurrent callers.
func ReadLineAt(ra io.ReaderAt, voff uint64) ([]byte, error) {
	block, within := SplitOffset(voff)
	if block > math.MaxInt64 {
		return nil, ErrBadOffset
	}

	r := newReaderAt(io.NewSectionReader(ra, int64(block), math.MaxInt64-int64(block)), block)
	if _, err := r.readBlock(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrBadOffset
		}
		return nil, err
	}
	if int(within) >= r.data.Len() {
		return nil, ErrBadOffset
	}
	r.pos = int(within)

	line, _, err := r.ReadLine()
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), line...), nil
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
