package errors

import (
	"errors"
	"fmt"

	"github.com/davidvella/catidx/entry"
)

// Sentinel errors for the index build and lookup failure classes
var (
	// ErrKeyExtraction is returned when a payload column cannot be parsed
	ErrKeyExtraction = errors.New("key extraction failed")

	// ErrEmptyIndex is returned when a build extracted no keys at all
	ErrEmptyIndex = errors.New("no keys were indexed")

	// ErrTypeMismatch is returned when a lookup key type differs from the index key type
	ErrTypeMismatch = errors.New("key type mismatch")

	// ErrVerification is returned when the loaded index disagrees with the scan
	ErrVerification = errors.New("index verification failed")

	// ErrBuildInProgress is returned when another build holds the destination lock
	ErrBuildInProgress = errors.New("index build already in progress")

	// ErrIndexNotReady is returned when opening something that is not a published index
	ErrIndexNotReady = errors.New("index is not a complete published index")
)

// KeyExtractionError reports a payload column that could not be parsed
type KeyExtractionError struct {
	Offset uint64
	Column int
	Path   string
	Reason string
}

func (e *KeyExtractionError) Error() string {
	return fmt.Sprintf("cannot extract key at path '%s' of column %d (offset %d): %s", e.Path, e.Column, e.Offset, e.Reason)
}

func (e *KeyExtractionError) Is(target error) bool {
	return target == ErrKeyExtraction
}

// EmptyIndexError reports a build that produced no keys
type EmptyIndexError struct {
	Scanned int64
	Skipped int64
}

func (e *EmptyIndexError) Error() string {
	return fmt.Sprintf("no keys were indexed from %d records (%d skipped): check the key column and path", e.Scanned, e.Skipped)
}

func (e *EmptyIndexError) Is(target error) bool {
	return target == ErrEmptyIndex
}

// TypeMismatchError reports a lookup with a key of the wrong type
type TypeMismatchError struct {
	Index entry.KeyType
	Key   entry.KeyType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("index has %s keys, lookup used a %s key", e.Index, e.Key)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// VerificationError reports a count or coverage mismatch found after load
type VerificationError struct {
	Expected int64
	Rows     int64
	Indexed  int64
	Reason   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("index verification failed: %s (expected %d entries, %d rows, %d indexed)", e.Reason, e.Expected, e.Rows, e.Indexed)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerification
}
