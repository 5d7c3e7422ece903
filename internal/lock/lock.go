// Package lock provides a non-blocking, exclusive, advisory lock on a file path.
package lock

import (
	"errors"
	"os"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock: already held")

// Lock is a held lock. Release it exactly once.
type Lock struct {
	path string
	f    *os.File
}

// TryAcquire takes the lock at path without waiting.
func TryAcquire(path string) (*Lock, error) {
	f, err := tryLock(path)
	if err != nil {
		return nil, err
	}
	return &Lock{path: path, f: f}, nil
}

func (l *Lock) Path() string { return l.path }

// Release removes the lock file and drops the lock.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}
	err := unlock(l.path, l.f)
	l.f = nil
	return err
}
