// Package hdf5 reads and writes HDF5 files in pure Go and exposes chunk
// metadata, object references and the file, group and dataset tree.
//
// Every call into the format layer runs under one process-wide lock.
package hdf5

import "errors"

var (
	ErrNotHDF5       = errors.New("hdf5: not an HDF5 file")
	ErrNotFound      = errors.New("hdf5: object not found")
	ErrNotDataset    = errors.New("hdf5: object is not a dataset")
	ErrNotGroup      = errors.New("hdf5: object is not a group")
	ErrNotChunked    = errors.New("hdf5: dataset is not chunked")
	ErrUnsupported   = errors.New("hdf5: unsupported feature")
	ErrInvalidPath   = errors.New("hdf5: invalid path")
	ErrClosed        = errors.New("hdf5: file is closed")
	ErrReadOnly      = errors.New("hdf5: file is read-only")
	ErrExists        = errors.New("hdf5: already exists")
	ErrTypeMismatch  = errors.New("hdf5: type mismatch")
	ErrInvalidChunk  = errors.New("hdf5: invalid chunk")
	ErrShapeMismatch = errors.New("hdf5: shape mismatch")
	ErrLinkDepth     = errors.New("hdf5: maximum link depth exceeded")
)

// MaxLinkDepth bounds how many soft links one path lookup follows.
const MaxLinkDepth = 100
