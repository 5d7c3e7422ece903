// Package lookup answers key queries against a published index.
//
// An Engine only reads, so one Engine may serve any number of goroutines.
package lookup

import (
	"context"
	"fmt"
	"iter"

	"github.com/davidvella/catidx/entry"
	xerrors "github.com/davidvella/catidx/internal/errors"
	"github.com/davidvella/catidx/store"
)

// Info describes an open index.
type Info struct {
	store.Metadata
	Index     string `json:"index"`
	DiskUsage uint64 `json:"disk_usage"`
}

// Engine looks keys up in one published index.
type Engine struct {
	path string
	s    *store.Store
}

// Open opens the published index at path. Stores that are missing metadata or
// were never marked complete are refused with ErrIndexNotReady.
func Open(path string) (*Engine, error) {
	s, err := store.Open(path, store.Options{})
	if err != nil {
		return nil, err
	}
	if !s.Metadata().Complete {
		s.Close()
		return nil, fmt.Errorf("lookup: %s: %w: build did not finish", path, xerrors.ErrIndexNotReady)
	}
	return &Engine{path: path, s: s}, nil
}

func (e *Engine) Close() error {
	return e.s.Close()
}

// KeyType returns the key type of the index.
func (e *Engine) KeyType() entry.KeyType { return e.s.KeyType() }

// Lookup returns the virtual offsets of every record whose key equals key, in
// catalog order. A key that is not indexed gives an empty slice.
func (e *Engine) Lookup(ctx context.Context, key entry.Key) ([]uint64, error) {
	return e.s.Lookup(ctx, key)
}

// LookupString parses raw as a key of the index type and looks it up. Text that
// is not an integer, used against an integer index, is a type mismatch.
func (e *Engine) LookupString(ctx context.Context, raw string) ([]uint64, error) {
	key, err := e.ParseKey(raw)
	if err != nil {
		return nil, err
	}
	return e.Lookup(ctx, key)
}

// ParseKey converts raw to a key of the index type.
func (e *Engine) ParseKey(raw string) (entry.Key, error) {
	kt := e.KeyType()
	key, err := entry.ParseKey(raw, kt)
	if err != nil {
		return entry.Key{}, &xerrors.TypeMismatchError{Index: kt, Key: entry.String}
	}
	return key, nil
}

// Info returns the index metadata.
func (e *Engine) Info() Info {
	return Info{
		Metadata:  e.s.Metadata(),
		Index:     e.path,
		DiskUsage: e.s.DiskUsage(),
	}
}

// All yields every index entry in key order. The returned function reports the
// first error met.
func (e *Engine) All(ctx context.Context) (iter.Seq[store.Entry], func() error) {
	return e.s.Entries(ctx)
}
