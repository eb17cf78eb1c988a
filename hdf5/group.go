package hdf5

import (
	"fmt"
	"path"

	"github.com/tensorleaf/go-hdf5/internal/message"
)

// Group represents an HDF5 group.
type Group struct {
	file *File
	path string
	addr uint64
}

// Path returns the absolute path of the group.
func (g *Group) Path() string {
	return g.path
}

// Name returns the last component of the group's path.
func (g *Group) Name() string {
	return path.Base(g.path)
}

// File returns the file containing the group.
func (g *Group) File() *File {
	return g.file
}

// Ref returns an object reference to the group.
func (g *Group) Ref() ObjectRef {
	return ObjectRef(g.addr)
}

// Members returns the names of the group's links in name order.
func (g *Group) Members() ([]string, error) {
	defer lock()()
	if err := g.file.checkOpen(); err != nil {
		return nil, err
	}
	links, err := g.file.links(g.addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.path, err)
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names, nil
}

// Open opens the object at path, relative to g unless absolute, and returns
// it as a *Group or *Dataset.
func (g *Group) Open(path string) (any, error) {
	defer lock()()
	return g.open(path)
}

func (g *Group) open(path string) (any, error) {
	if err := g.file.checkOpen(); err != nil {
		return nil, err
	}
	addr, full, err := g.file.resolve(g.addr, g.path, path, 0)
	if err != nil {
		return nil, err
	}
	return g.file.openAt(addr, full)
}

// OpenGroup opens a group by path, relative to g unless absolute.
func (g *Group) OpenGroup(path string) (*Group, error) {
	defer lock()()
	obj, err := g.open(path)
	if err != nil {
		return nil, err
	}
	sub, ok := obj.(*Group)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, path)
	}
	return sub, nil
}

// OpenDataset opens a dataset by path, relative to g unless absolute.
func (g *Group) OpenDataset(path string) (*Dataset, error) {
	defer lock()()
	obj, err := g.open(path)
	if err != nil {
		return nil, err
	}
	ds, ok := obj.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDataset, path)
	}
	return ds, nil
}

// CreateGroup creates a new subgroup with the given name.
func (g *Group) CreateGroup(name string) (*Group, error) {
	defer lock()()
	if err := g.file.checkWritable(); err != nil {
		return nil, err
	}
	if err := checkName(name); err != nil {
		return nil, err
	}

	addr, err := g.file.writeHeader(groupMsgs(g.file.sz))
	if err != nil {
		return nil, fmt.Errorf("writing group header: %w", err)
	}
	link := &message.Link{Kind: message.LinkHard, Name: name, Addr: addr, Order: -1}
	if err := g.file.addLink(g.addr, link); err != nil {
		return nil, fmt.Errorf("adding link to %s: %w", g.path, err)
	}
	return &Group{file: g.file, path: JoinPath(g.path, name), addr: addr}, nil
}

// CreateSoftLink adds a soft link named name pointing at target.
func (g *Group) CreateSoftLink(name, target string) error {
	defer lock()()
	if err := g.file.checkWritable(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	if target == "" {
		return fmt.Errorf("%w: empty soft link target", ErrInvalidPath)
	}
	link := &message.Link{Kind: message.LinkSoft, Name: name, Target: target, Order: -1}
	if err := g.file.addLink(g.addr, link); err != nil {
		return fmt.Errorf("adding link to %s: %w", g.path, err)
	}
	return nil
}
