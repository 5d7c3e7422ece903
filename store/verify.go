package store

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	xerrors "github.com/davidvella/catidx/internal/errors"
)

// Verify checks that the row table and the key index each hold expected
// entries and that the key index references every row id exactly once.
func (s *Store) Verify(ctx context.Context, expected int64) error {
	rowIDs := roaring64.New()
	var rowCount int64
	rows, rowsErr := s.Rows(ctx)
	for id := range rows {
		rowIDs.Add(id)
		rowCount++
	}
	if err := rowsErr(); err != nil {
		return err
	}

	fail := func(indexed int64, reason string) error {
		return &xerrors.VerificationError{
			Expected: expected,
			Rows:     rowCount,
			Indexed:  indexed,
			Reason:   reason,
		}
	}
	if rowCount != expected {
		return fail(0, "row table does not hold every extracted key")
	}

	indexed := roaring64.New()
	var indexCount int64
	entries, entriesErr := s.Entries(ctx)
	for e := range entries {
		indexCount++
		if !indexed.CheckedAdd(e.Row) {
			return fail(indexCount, "row indexed more than once")
		}
	}
	if err := entriesErr(); err != nil {
		return err
	}

	if indexCount != expected {
		return fail(indexCount, "key index does not hold every row")
	}
	if !indexed.Equals(rowIDs) {
		return fail(indexCount, "key index does not cover the row table")
	}
	return nil
}

// Count returns the number of key index entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	entries, entriesErr := s.Entries(ctx)
	for range entries {
		n++
	}
	return n, entriesErr()
}
