//go:build !unix

package lock

import (
	"errors"
	"fmt"
	"os"
)

func tryLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("lock: failed to create %s: %w", path, err)
	}
	return f, nil
}

func unlock(path string, f *os.File) error {
	return errors.Join(f.Close(), os.Remove(path))
}
