package catalog

import (
	"context"
	"iter"
	"strconv"
	"unicode/utf8"

	"github.com/davidvella/catidx/entry"
)

// Stats are the counters kept by a Scanner.
type Stats struct {
	// Records is the number of catalog records seen.
	Records int64
	// Skipped is the number of records without a key.
	Skipped int64
	// Extracted is the number of keys emitted.
	Extracted int64
	// MaxKeyWidth is the widest key under the final key type: runes for
	// strings, digits of the absolute value for integers.
	MaxKeyWidth int
	// AllIntegers is set when at least one key was extracted and every key
	// parsed as a 64-bit integer.
	AllIntegers bool
}

// KeyType returns the key type the index should use.
func (s Stats) KeyType() entry.KeyType {
	if s.AllIntegers {
		return entry.Integer
	}
	return entry.String
}

// Scanner turns catalog lines into staged entries, one record at a time.
type Scanner struct {
	x         *Extractor
	stats     Stats
	notInt    bool
	maxRunes  int
	maxDigits int
}

func NewScanner(x *Extractor) *Scanner {
	return &Scanner{x: x}
}

// Scan extracts the key of every line and passes it to emit. It stops at the
// first extraction error, emit error or when ctx is done.
func (s *Scanner) Scan(ctx context.Context, lines iter.Seq[Line], emit func(entry.Staged) error) error {
	for line := range lines {
		s.stats.Records++
		if s.stats.Records%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		key, ok, err := s.x.Extract(line.Columns, line.Offset)
		if err != nil {
			return err
		}
		if !ok {
			s.stats.Skipped++
			continue
		}

		s.observe(key)
		if err := emit(entry.Staged{Key: key, Offset: line.Offset}); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Scanner) observe(key string) {
	s.stats.Extracted++
	s.maxRunes = max(s.maxRunes, utf8.RuneCountInString(key))
	if s.notInt {
		return
	}
	v, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		s.notInt = true
		return
	}
	s.maxDigits = max(s.maxDigits, digits(v))
}

// Stats returns the counters so far.
func (s *Scanner) Stats() Stats {
	st := s.stats
	st.AllIntegers = st.Extracted > 0 && !s.notInt
	if st.AllIntegers {
		st.MaxKeyWidth = s.maxDigits
	} else {
		st.MaxKeyWidth = s.maxRunes
	}
	return st
}

func digits(v int64) int {
	u := uint64(v)
	if v < 0 {
		u = uint64(^v) + 1
	}
	n := 1
	for u >= 10 {
		u /= 10
		n++
	}
	return n
}
