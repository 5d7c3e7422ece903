package recordio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/davidvella/catidx/entry"
)

var (
	Uint64Size = int64(binary.Size(uint64(0)))
	Int64Size  = int64(binary.Size(int64(0)))
	// StagedMagic opens every staged frame (KOF).
	StagedMagic = []byte{0x4B, 0x4F, 0x46}
	// IndexedMagic opens every index frame (IDX).
	IndexedMagic         = []byte{0x49, 0x44, 0x58}
	ErrInvalidMagicBytes = errors.New("invalid magic bytes - not a valid recordio frame")
)

// BinaryWriter handles writing binary data with error handling.
type BinaryWriter struct {
	w io.Writer
}

func NewBinaryWriter(w io.Writer) BinaryWriter {
	return BinaryWriter{w: w}
}

func (bw BinaryWriter) WriteBytes(b []byte) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, uint64(len(b))); err != nil {
		return 0, fmt.Errorf("error writing bytes length: %w", err)
	}

	n, err := bw.w.Write(b)
	if err != nil {
		return Uint64Size, fmt.Errorf("error writing bytes content: %w", err)
	}

	return Uint64Size + int64(n), nil
}

func (bw BinaryWriter) WriteString(s string) (int64, error) {
	return bw.WriteBytes([]byte(s))
}

func (bw BinaryWriter) WriteUint64(v uint64) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, v); err != nil {
		return 0, err
	}
	return Uint64Size, nil
}

func (bw BinaryWriter) WriteInt64(i int64) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, i); err != nil {
		return 0, err
	}
	return Int64Size, nil
}

// BinaryReader handles reading binary data with error handling.
type BinaryReader struct {
	r io.Reader
}

func NewBinaryReader(r io.Reader) BinaryReader {
	return BinaryReader{r: r}
}

func (br BinaryReader) ReadBytes() ([]byte, error) {
	var length uint64
	if err := binary.Read(br.r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("error reading bytes length: %w", noEOF(err))
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(br.r, b); err != nil {
		return nil, fmt.Errorf("error reading bytes content: %w", noEOF(err))
	}
	return b, nil
}

func (br BinaryReader) ReadUint64() (uint64, error) {
	var v uint64
	err := binary.Read(br.r, binary.LittleEndian, &v)
	return v, err
}

func (br BinaryReader) ReadInt64() (int64, error) {
	var v int64
	err := binary.Read(br.r, binary.LittleEndian, &v)
	return v, err
}

// noEOF turns an EOF inside a frame into io.ErrUnexpectedEOF, so only an EOF
// on a frame boundary reads as a clean end of stream.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// WriteStaged writes a single staged frame to the writer.
func WriteStaged(w io.Writer, e entry.Staged) (int64, error) {
	return writeFrame(w, StagedMagic, []byte(e.Key), e.Offset)
}

// WriteIndexed writes a single index frame to the writer.
func WriteIndexed(w io.Writer, e entry.Indexed) (int64, error) {
	return writeFrame(w, IndexedMagic, e.Key, e.Offset)
}

func writeFrame(w io.Writer, magic, key []byte, offset uint64) (int64, error) {
	var totalBytes int64

	mn, err := w.Write(magic)
	if err != nil {
		return int64(mn), fmt.Errorf("failed to write magic bytes: %w", err)
	}
	totalBytes += int64(mn)

	bw := NewBinaryWriter(w)

	n, err := bw.WriteBytes(key)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing key: %w", err)
	}
	totalBytes += n

	n, err = bw.WriteUint64(offset)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing offset: %w", err)
	}
	totalBytes += n

	return totalBytes, nil
}

// ReadStaged reads a single staged frame. It returns io.EOF only when the
// reader is exhausted exactly on a frame boundary.
func ReadStaged(r io.Reader) (entry.Staged, error) {
	key, offset, err := readFrame(r, StagedMagic)
	if err != nil {
		return entry.Staged{}, err
	}
	return entry.Staged{Key: string(key), Offset: offset}, nil
}

// ReadIndexed reads a single index frame.
func ReadIndexed(r io.Reader) (entry.Indexed, error) {
	key, offset, err := readFrame(r, IndexedMagic)
	if err != nil {
		return entry.Indexed{}, err
	}
	return entry.Indexed{Key: key, Offset: offset}, nil
}

func readFrame(r io.Reader, magic []byte) ([]byte, uint64, error) {
	got := make([]byte, len(magic))
	if n, err := io.ReadFull(r, got); err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("failed to read magic bytes: %w", noEOF(err))
	}
	if !bytes.Equal(got, magic) {
		return nil, 0, ErrInvalidMagicBytes
	}

	br := NewBinaryReader(r)

	key, err := br.ReadBytes()
	if err != nil {
		return nil, 0, fmt.Errorf("error reading key: %w", err)
	}

	offset, err := br.ReadUint64()
	if err != nil {
		return nil, 0, fmt.Errorf("error reading offset: %w", noEOF(err))
	}

	return key, offset, nil
}

// Reader iterates frames of one kind and keeps the first error, in the manner
// of bufio.Scanner.
type Reader struct {
	r   *countingReader
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: &countingReader{r: bufio.NewReaderSize(r, 64*1024)}}
}

// Staged returns an iterator over staged frames.
func (r *Reader) Staged() iter.Seq[entry.Staged] {
	return seq(r, ReadStaged)
}

// Indexed returns an iterator over index frames.
func (r *Reader) Indexed() iter.Seq[entry.Indexed] {
	return seq(r, ReadIndexed)
}

func seq[E any](r *Reader, read func(io.Reader) (E, error)) iter.Seq[E] {
	return func(yield func(E) bool) {
		for r.err == nil {
			e, err := read(r.r)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					r.err = err
				}
				return
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Err returns the first non-EOF error met while iterating.
func (r *Reader) Err() error { return r.err }

// BytesRead reports how many bytes of frames have been consumed.
func (r *Reader) BytesRead() int64 { return r.r.n }

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
