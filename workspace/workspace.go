// Package workspace stages a build in a pending directory next to its
// destination and publishes it with a single rename.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const pendingMarker = ".pending-"

// Workspace pairs a destination path with a pending build directory.
type Workspace struct {
	dest    string
	pending string
}

// New returns a workspace for dest. The pending directory is a hidden sibling
// of dest, so publishing never crosses a filesystem boundary.
func New(dest string) *Workspace {
	dir, base := filepath.Split(filepath.Clean(dest))
	return &Workspace{
		dest:    filepath.Clean(dest),
		pending: filepath.Join(dir, "."+base+pendingMarker+uuid.NewString()),
	}
}

func (w *Workspace) Dest() string { return w.dest }

func (w *Workspace) Pending() string { return w.pending }

// Prepare removes whatever is at dest along with stale pending directories
// from earlier builds, then creates the pending directory. The caller must
// hold the destination lock.
func (w *Workspace) Prepare() error {
	if err := os.MkdirAll(filepath.Dir(w.dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", w.dest, err)
	}
	if err := os.RemoveAll(w.dest); err != nil {
		return fmt.Errorf("failed to delete %s: %w", w.dest, err)
	}
	if err := w.sweep(); err != nil {
		return err
	}
	if err := os.Mkdir(w.pending, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", w.pending, err)
	}
	return nil
}

func (w *Workspace) sweep() error {
	dir, base := filepath.Split(w.dest)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	prefix := "." + base + pendingMarker
	var errs []error
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			errs = append(errs, os.RemoveAll(filepath.Join(dir, e.Name())))
		}
	}
	return errors.Join(errs...)
}

// Publish renames the pending directory onto dest.
func (w *Workspace) Publish() error {
	if err := os.Rename(w.pending, w.dest); err != nil {
		return fmt.Errorf("failed to publish %s: %w", w.dest, err)
	}
	return syncDir(filepath.Dir(w.dest))
}

// Discard removes the pending directory and anything in it.
func (w *Workspace) Discard() error {
	if err := os.RemoveAll(w.pending); err != nil {
		return fmt.Errorf("failed to discard workspace %s: %w", w.pending, err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some platforms cannot fsync a directory; the rename has happened either way.
	_ = d.Sync()
	return nil
}
