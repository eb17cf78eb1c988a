package hdf5

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/tensorleaf/go-hdf5/internal/alloc"
	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/message"
	"github.com/tensorleaf/go-hdf5/internal/object"
	"github.com/tensorleaf/go-hdf5/internal/superblock"
)

// File represents an open HDF5 file.
type File struct {
	name string
	fs   afero.Fs // filesystem holding name; the backing store of core files
	h    afero.File
	rw   *storage
	sb   *superblock.Superblock
	sz   binary.Sizes

	writable bool
	core     bool
	backing  bool
	alloc    *alloc.Allocator
	closed   bool
}

// storage translates file addresses, which are relative to the superblock
// base address, into offsets of the underlying handle.
type storage struct {
	f    afero.File
	base int64
}

func (s *storage) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off+s.base)
}

func (s *storage) WriteAt(p []byte, off int64) (int, error) {
	return s.f.WriteAt(p, off+s.base)
}

// Open opens an HDF5 file for reading.
func Open(name string, opts ...FileOption) (*File, error) {
	defer lock()()
	return openFile(name, false, opts)
}

// OpenReadWrite opens an existing HDF5 file for reading and writing. Only
// files with a version 2 or 3 superblock can be written.
func OpenReadWrite(name string, opts ...FileOption) (*File, error) {
	defer lock()()
	return openFile(name, true, opts)
}

func openFile(name string, writable bool, opts []FileOption) (*File, error) {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(o)
	}
	f := &File{name: name, fs: o.fs, writable: writable, core: o.core, backing: o.backingStore}

	var err error
	if o.core {
		f.h, err = loadCore(o.fs, name)
	} else if writable {
		f.h, err = o.fs.OpenFile(name, os.O_RDWR, 0)
	} else {
		f.h, err = o.fs.Open(name)
	}
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	if err := f.load(); err != nil {
		f.h.Close()
		return nil, err
	}
	log().Debug("opened file",
		zap.String("name", name),
		zap.Uint8("superblock", f.sb.Version),
		zap.Bool("writable", writable),
		zap.Bool("core", o.core))
	return f, nil
}

// loadCore copies the file image into a private in-memory filesystem.
func loadCore(fs afero.Fs, name string) (afero.File, error) {
	image, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, err
	}
	h, err := afero.NewMemMapFs().Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := h.WriteAt(image, 0); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (f *File) load() error {
	sb, err := superblock.Read(f.h)
	if err != nil {
		if errors.Is(err, superblock.ErrNotHDF5) {
			return fmt.Errorf("%w: %s", ErrNotHDF5, f.name)
		}
		return fmt.Errorf("reading superblock: %w", err)
	}
	f.sb = sb
	f.sz = sb.Sizes
	f.rw = &storage{f: f.h, base: int64(sb.BaseAddr)}
	if !f.writable {
		return nil
	}
	if sb.Version < 2 {
		return fmt.Errorf("%w: writing superblock version %d", ErrUnsupported, sb.Version)
	}
	info, err := f.h.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	eof := sb.EOFAddr
	if size := uint64(info.Size()) - sb.BaseAddr; size > eof {
		eof = size
	}
	f.alloc = alloc.New(eof)
	return nil
}

// Create creates a new HDF5 file, truncating any existing file of that name.
// The file is written with a version 2 superblock.
func Create(name string, opts ...FileOption) (*File, error) {
	defer lock()()

	o := defaultFileOptions()
	for _, opt := range opts {
		opt(o)
	}
	sz := binary.Sizes{Offset: o.offsetSize, Length: o.lengthSize}
	if err := sz.Validate(); err != nil {
		return nil, err
	}
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if o.exclusive {
		flags = os.O_RDWR | os.O_CREATE | os.O_EXCL
	}

	var (
		h   afero.File
		err error
	)
	switch {
	case !o.core:
		h, err = o.fs.OpenFile(name, flags, 0o644)
	case o.exclusive && o.backingStore:
		// Claim the backing store now; its contents are written on flush.
		var b afero.File
		if b, err = o.fs.OpenFile(name, flags, 0o644); err == nil {
			b.Close()
			h, err = afero.NewMemMapFs().Create(name)
		}
	default:
		h, err = afero.NewMemMapFs().Create(name)
	}
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	f := &File{
		name:     name,
		fs:       o.fs,
		h:        h,
		rw:       &storage{f: h},
		sb:       superblock.New(sz),
		sz:       sz,
		writable: true,
		core:     o.core,
		backing:  o.backingStore,
		alloc:    alloc.New(uint64(superblock.EncodedSize(sz))),
	}
	root, err := f.writeHeader(groupMsgs(sz))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("writing root group: %w", err)
	}
	f.sb.RootAddr = root
	if err := f.writeSuperblock(); err != nil {
		h.Close()
		return nil, err
	}
	if err := f.flushBacking(); err != nil {
		h.Close()
		return nil, err
	}
	log().Debug("created file", zap.String("name", name), zap.Bool("core", o.core))
	return f, nil
}

// groupMsgs returns the header messages of a new, empty group.
func groupMsgs(sz binary.Sizes) []object.Msg {
	return []object.Msg{
		{Type: message.TypeLinkInfo, Data: (&message.LinkInfo{}).Encode(sz)},
		{Type: message.TypeGroupInfo, Data: message.EncodeGroupInfo()},
	}
}

func (f *File) writeSuperblock() error {
	f.sb.EOFAddr = f.alloc.EOF()
	buf, err := f.sb.Encode()
	if err != nil {
		return fmt.Errorf("encoding superblock: %w", err)
	}
	if _, err := f.h.WriteAt(buf, f.sb.Offset); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}

// flushBacking writes the image of a core file to its backing store.
func (f *File) flushBacking() error {
	if !f.core || !f.backing {
		return nil
	}
	image, err := f.image()
	if err != nil {
		return err
	}
	if err := afero.WriteFile(f.fs, f.name, image, 0o644); err != nil {
		return fmt.Errorf("writing backing store: %w", err)
	}
	return nil
}

func (f *File) image() ([]byte, error) {
	info, err := f.h.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	buf := make([]byte, info.Size())
	if n, err := f.h.ReadAt(buf, 0); n < len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return buf, nil
}

func (f *File) checkOpen() error {
	if f.closed {
		return ErrClosed
	}
	return nil
}

func (f *File) checkWritable() error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable {
		return ErrReadOnly
	}
	return nil
}

// Flush writes the superblock and, for core files with a backing store,
// the file image.
func (f *File) Flush() error {
	defer lock()()
	return f.flush()
}

func (f *File) flush() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if !f.writable {
		return nil
	}
	if err := f.writeSuperblock(); err != nil {
		return err
	}
	if !f.core {
		if err := f.h.Sync(); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	return f.flushBacking()
}

// Close flushes a writable file and releases it. Closing twice is a no-op.
func (f *File) Close() error {
	defer lock()()
	if f.closed {
		return nil
	}
	err := f.flush()
	f.closed = true
	if cerr := f.h.Close(); err == nil {
		err = cerr
	}
	return err
}

// Image returns the current bytes of the file. For core files this is the
// in-memory image.
func (f *File) Image() ([]byte, error) {
	defer lock()()
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if f.writable {
		if err := f.writeSuperblock(); err != nil {
			return nil, err
		}
	}
	return f.image()
}

// Name returns the name the file was opened or created with.
func (f *File) Name() string {
	return f.name
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.sb.Version)
}

// IsWritable reports whether the file was opened for writing.
func (f *File) IsWritable() bool {
	return f.writable
}

// Root returns the root group of the file.
func (f *File) Root() *Group {
	return &Group{file: f, path: "/", addr: f.sb.RootAddr}
}

// OpenGroup opens a group by absolute path.
func (f *File) OpenGroup(path string) (*Group, error) {
	return f.Root().OpenGroup(path)
}

// OpenDataset opens a dataset by absolute path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	return f.Root().OpenDataset(path)
}
