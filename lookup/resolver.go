package lookup

import (
	"context"
	"fmt"
	"os"

	"github.com/davidvella/catidx/bgzf"
)

// Resolver reads catalog records back by virtual offset. ReadAt is positional,
// so a Resolver is safe for concurrent use.
type Resolver struct {
	path string
	f    *os.File
}

func OpenResolver(catalogPath string) (*Resolver, error) {
	f, err := os.Open(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("lookup: failed to open catalog %s: %w", catalogPath, err)
	}
	return &Resolver{path: catalogPath, f: f}, nil
}

// Line returns the record starting at voff.
func (r *Resolver) Line(voff uint64) (string, error) {
	b, err := bgzf.ReadLineAt(r.f, voff)
	if err != nil {
		return "", fmt.Errorf("lookup: failed to read %s at %d: %w", r.path, voff, err)
	}
	return string(b), nil
}

// Lines returns the records at offsets, in the same order.
func (r *Resolver) Lines(ctx context.Context, offsets []uint64) ([]string, error) {
	lines := make([]string, 0, len(offsets))
	for _, off := range offsets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := r.Line(off)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (r *Resolver) Close() error {
	return r.f.Close()
}
