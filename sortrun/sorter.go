package sortrun

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/davidvella/catidx/entry"
	"github.com/davidvella/catidx/loser"
	"github.com/google/btree"
)

var (
	ErrInvalidRunSize = errors.New("sortrun: run size must be greater than 0")
	ErrSorterClosed   = errors.New("sortrun: sorter is closed")
)

// Sorter accumulates index elements and spills them to run files in dir.
type Sorter struct {
	dir     string
	runSize int
	tree    *btree.BTreeG[entry.Indexed]
	runs    []string
	total   int64
	closed  bool
}

func NewSorter(dir string, runSize int) (*Sorter, error) {
	if runSize <= 0 {
		return nil, ErrInvalidRunSize
	}
	return &Sorter{
		dir:     dir,
		runSize: runSize,
		tree: btree.NewG[entry.Indexed](32, func(a, b entry.Indexed) bool {
			return a.Less(b)
		}),
	}, nil
}

// Add buffers e, flushing the buffer to a new run when it is full.
func (s *Sorter) Add(e entry.Indexed) error {
	if s.closed {
		return ErrSorterClosed
	}

	s.tree.ReplaceOrInsert(e)
	s.total++

	if s.tree.Len() >= s.runSize {
		return s.flush()
	}
	return nil
}

// Len returns the number of elements added.
func (s *Sorter) Len() int64 { return s.total }

// Runs returns the number of run files spilled so far.
func (s *Sorter) Runs() int { return len(s.runs) }

func (s *Sorter) flush() error {
	path := filepath.Join(s.dir, fmt.Sprintf("run-%06d.lz4", len(s.runs)))
	w, err := CreateRun(path)
	if err != nil {
		return err
	}
	s.runs = append(s.runs, path)

	var writeErr error
	s.tree.Ascend(func(e entry.Indexed) bool {
		if err := w.Write(e); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if err := w.Close(); writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		return writeErr
	}

	s.tree.Clear(false)
	return nil
}

// Sorted returns a merge over everything added. The sorter accepts no more
// elements afterwards; Close the merge, then the sorter.
func (s *Sorter) Sorted() (*Merge, error) {
	if s.closed {
		return nil, ErrSorterClosed
	}
	s.closed = true

	if len(s.runs) == 0 {
		return &Merge{tree: s.tree}, nil
	}
	if s.tree.Len() > 0 {
		if err := s.flush(); err != nil {
			return nil, err
		}
	}

	m := &Merge{}
	for _, path := range s.runs {
		r, err := OpenRun(path)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.readers = append(m.readers, r)
	}
	return m, nil
}

// Close removes the spilled run files.
func (s *Sorter) Close() error {
	s.closed = true
	var errs []error
	for _, path := range s.runs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	s.runs = nil
	return errors.Join(errs...)
}

// Merge yields the sorted elements of a Sorter.
type Merge struct {
	tree    *btree.BTreeG[entry.Indexed]
	readers []*RunReader
}

// All yields every element in ascending order. Check Err afterwards.
func (m *Merge) All() iter.Seq[entry.Indexed] {
	if m.tree != nil {
		return func(yield func(entry.Indexed) bool) {
			m.tree.Ascend(func(e entry.Indexed) bool {
				return yield(e)
			})
		}
	}

	sequences := make([]iter.Seq[entry.Indexed], 0, len(m.readers))
	for _, r := range m.readers {
		sequences = append(sequences, r.All())
	}
	return loser.New(sequences, entry.Compare).All()
}

// Err returns the first error met by any run while merging.
func (m *Merge) Err() error {
	for _, r := range m.readers {
		if err := r.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merge) Close() error {
	var errs []error
	for _, r := range m.readers {
		errs = append(errs, r.Close())
	}
	m.readers = nil
	return errors.Join(errs...)
}
