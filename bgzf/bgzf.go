// Package bgzf reads and writes BGZF files: concatenated gzip members of at most
// 64 KiB each, every member carrying its own compressed size in a "BC" extra
// subfield. A position in the uncompressed stream is addressed by a virtual
// offset, the compressed offset of the containing block shifted left 16 bits
// OR'ed with the offset inside the uncompressed block.
package bgzf

import (
	"encoding/binary"
	"errors"
)

const (
	// MaxBlockSize is the largest uncompressed payload put in one block.
	MaxBlockSize = 0xff00
	// maxCompressedBlock is the largest legal block on disk.
	maxCompressedBlock = 1 << 16
	headerSize         = 12
)

var (
	ErrNotBGZF        = errors.New("bgzf: not a BGZF block")
	ErrNoBlockSize    = errors.New("bgzf: missing BC block size subfield")
	ErrBlockTooLarge  = errors.New("bgzf: compressed block exceeds 64 KiB")
	ErrBadOffset      = errors.New("bgzf: virtual offset outside block")
	ErrWriterClosed   = errors.New("bgzf: writer closed")
	ErrNotSeekable    = errors.New("bgzf: source is not seekable")
	ErrInvalidBlockSz = errors.New("bgzf: block size must be between 1 and 65280")
)

// eofMarker is the empty block that terminates a well formed BGZF file.
var eofMarker = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00,
	0x00, 0xff, 0x06, 0x00, 0x42, 0x43, 0x02, 0x00,
	0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// MakeOffset composes a virtual offset.
func MakeOffset(block uint64, within uint16) uint64 {
	return block<<16 | uint64(within)
}

// SplitOffset decomposes a virtual offset into the compressed block offset and
// the offset inside the uncompressed block.
func SplitOffset(voff uint64) (block uint64, within uint16) {
	return voff >> 16, uint16(voff & 0xffff)
}

// blockSize parses the BC subfield out of a gzip extra field.
func blockSize(extra []byte) (int, error) {
	for len(extra) >= 4 {
		slen := int(binary.LittleEndian.Uint16(extra[2:4]))
		if len(extra) < 4+slen {
			break
		}
		if extra[0] == 'B' && extra[1] == 'C' && slen == 2 {
			return int(binary.LittleEndian.Uint16(extra[4:6])) + 1, nil
		}
		extra = extra[4+slen:]
	}
	return 0, ErrNoBlockSize
}
