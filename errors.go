package catidx

import (
	"fmt"

	xerrors "github.com/davidvella/catidx/internal/errors"
)

var (
	ErrKeyExtraction   = xerrors.ErrKeyExtraction
	ErrEmptyIndex      = xerrors.ErrEmptyIndex
	ErrTypeMismatch    = xerrors.ErrTypeMismatch
	ErrVerification    = xerrors.ErrVerification
	ErrBuildInProgress = xerrors.ErrBuildInProgress
	ErrIndexNotReady   = xerrors.ErrIndexNotReady
)

type (
	KeyExtractionError = xerrors.KeyExtractionError
	EmptyIndexError    = xerrors.EmptyIndexError
	TypeMismatchError  = xerrors.TypeMismatchError
	VerificationError  = xerrors.VerificationError
)

// BuildError reports the stage a build failed in and how far it got.
type BuildError struct {
	Stage   State
	Scanned int64
	Skipped int64
	Loaded  int64
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("catidx: build failed while %s (scanned %d, skipped %d, loaded %d): %v",
		e.Stage, e.Scanned, e.Skipped, e.Loaded, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
