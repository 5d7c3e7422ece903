package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.idx.lock")

	l, err := TryAcquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	_, err = TryAcquire(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	again, err := TryAcquire(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestReleaseTwice(t *testing.T) {
	l, err := TryAcquire(filepath.Join(t.TempDir(), "x.lock"))
	require.NoError(t, err)
	require.NoError(t, l.Release())
	assert.NoError(t, l.Release())
}

func TestTryAcquireMissingDirectory(t *testing.T) {
	_, err := TryAcquire(filepath.Join(t.TempDir(), "missing", "x.lock"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
