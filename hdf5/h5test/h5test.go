// Package h5test provides helpers for tests that need HDF5 files.
package h5test

import (
	"math/rand/v2"
	"testing"

	"github.com/tensorleaf/go-hdf5/hdf5"
)

const alphanum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// FilenameLen is the length of names returned by RandomFilename.
const FilenameLen = 8

// RandomFilename returns a random name of FilenameLen alphanumeric
// characters.
func RandomFilename() string {
	b := make([]byte, FilenameLen)
	for i := range b {
		b[i] = alphanum[rand.IntN(len(alphanum))]
	}
	return string(b)
}

// NewInMemoryFile creates a writable file held in memory under a random
// name. Nothing is written to disk, not even on Close.
func NewInMemoryFile() (*hdf5.File, error) {
	return hdf5.Create(RandomFilename(), hdf5.WithCoreDriver(false))
}

// MustInMemoryFile is NewInMemoryFile for tests: it fails tb on error and
// closes the file when the test ends.
func MustInMemoryFile(tb testing.TB) *hdf5.File {
	tb.Helper()
	f, err := NewInMemoryFile()
	if err != nil {
		tb.Fatalf("creating in-memory file: %v", err)
	}
	tb.Cleanup(func() { f.Close() })
	return f
}
