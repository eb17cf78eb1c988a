package hdf5

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/tensorleaf/go-hdf5/internal/btree"
	"github.com/tensorleaf/go-hdf5/internal/heap"
	"github.com/tensorleaf/go-hdf5/internal/message"
	"github.com/tensorleaf/go-hdf5/internal/object"
)

// All methods in this file expect mu to be held.

func (f *File) readHeader(addr uint64) (*object.Header, error) {
	hdr, err := object.Read(f.rw, addr, f.sz)
	if err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}
	return hdr, nil
}

// writeHeader stores msgs as a new version 2 object header and returns its
// address.
func (f *File) writeHeader(msgs []object.Msg) (uint64, error) {
	capacity := object.Capacity(msgs)
	buf, err := object.Encode(msgs, capacity)
	if err != nil {
		return 0, err
	}
	addr := f.alloc.Alloc(uint64(len(buf)))
	if _, err := f.rw.WriteAt(buf, int64(addr)); err != nil {
		return 0, fmt.Errorf("writing object header: %w", err)
	}
	return addr, nil
}

// rewriteHeader replaces the messages of hdr in place. The first chunk keeps
// its size; messages that no longer fit move to a new continuation chunk.
// Continuation chunks of the old header are released.
func (f *File) rewriteHeader(hdr *object.Header, msgs []object.Msg) error {
	if !hdr.Rewritable() {
		return fmt.Errorf("%w: rewriting version %d object header at %#x", ErrUnsupported, hdr.Version, hdr.Addr)
	}

	first := msgs
	var rest []object.Msg
	var contAddr uint64
	if !object.Fits(msgs, hdr.Chunk0) {
		placeholder := object.ContinuationMsg(0, 0, f.sz)
		k := len(msgs)
		for k >= 0 && !object.Fits(append(slices.Clone(msgs[:k]), placeholder), hdr.Chunk0) {
			k--
		}
		if k < 0 {
			return fmt.Errorf("%w: object header at %#x has no room for a continuation", ErrUnsupported, hdr.Addr)
		}
		rest = msgs[k:]
		buf := object.EncodeContinuation(rest)
		contAddr = f.alloc.Alloc(uint64(len(buf)))
		if _, err := f.rw.WriteAt(buf, int64(contAddr)); err != nil {
			return fmt.Errorf("writing continuation chunk: %w", err)
		}
		first = append(slices.Clone(msgs[:k]), object.ContinuationMsg(contAddr, len(buf), f.sz))
	}

	buf, err := object.Encode(first, hdr.Chunk0)
	if err != nil {
		return err
	}
	if _, err := f.rw.WriteAt(buf, int64(hdr.Addr)); err != nil {
		return fmt.Errorf("writing object header: %w", err)
	}
	for _, c := range hdr.Conts {
		if err := f.alloc.Free(c.Addr, c.Length); err != nil {
			log().Warn("releasing continuation chunk",
				zap.Uint64("addr", c.Addr), zap.Uint64("length", c.Length), zap.Error(err))
		}
	}
	hdr.Msgs = msgs
	hdr.Conts = nil
	if len(rest) > 0 {
		hdr.Conts = []message.Continuation{{Addr: contAddr, Length: uint64(object.ContinuationSize(rest))}}
	}
	return nil
}

// replaceMsg returns a copy of msgs with the first message of type t
// carrying data.
func replaceMsg(msgs []object.Msg, t message.Type, data []byte) ([]object.Msg, error) {
	out := slices.Clone(msgs)
	for i := range out {
		if out[i].Type == t {
			out[i].Data = data
			return out, nil
		}
	}
	return nil, fmt.Errorf("message %#04x not in header", uint16(t))
}

// isGroup reports whether hdr describes a group.
func isGroup(hdr *object.Header) bool {
	return hdr.Has(message.TypeSymbolTable) || hdr.Has(message.TypeLinkInfo) ||
		hdr.Has(message.TypeLink) || hdr.Has(message.TypeGroupInfo)
}

// openAt opens the object at addr as a *Group or *Dataset.
func (f *File) openAt(addr uint64, path string) (any, error) {
	hdr, err := f.readHeader(addr)
	if err != nil {
		return nil, err
	}
	if hdr.Has(message.TypeLayout) {
		meta, err := decodeDataset(hdr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &Dataset{file: f, path: path, addr: addr, meta: meta}, nil
	}
	if isGroup(hdr) || addr == f.sb.RootAddr {
		return &Group{file: f, path: path, addr: addr}, nil
	}
	return nil, fmt.Errorf("%w: object at %#x is neither a group nor a dataset", ErrUnsupported, addr)
}

// links returns the links of the group at addr sorted by name.
func (f *File) links(addr uint64) ([]*message.Link, error) {
	hdr, err := f.readHeader(addr)
	if err != nil {
		return nil, err
	}

	st, err := object.Get[*message.SymbolTable](hdr, message.TypeSymbolTable)
	switch {
	case err == nil:
		return f.symbolLinks(st.BTreeAddr, st.HeapAddr)
	case !errors.Is(err, object.ErrNotFound):
		return nil, err
	}

	if hdr.Has(message.TypeLinkInfo) {
		info, err := object.Get[*message.LinkInfo](hdr, message.TypeLinkInfo)
		if err != nil {
			return nil, err
		}
		if !f.sz.IsUndefined(info.FractalHeap) {
			return nil, fmt.Errorf("%w: dense link storage", ErrUnsupported)
		}
	}

	msgs, err := hdr.FindAll(message.TypeLink)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 && addr == f.sb.RootAddr && f.sb.RootBTree != 0 && !hdr.Has(message.TypeLinkInfo) {
		return f.symbolLinks(f.sb.RootBTree, f.sb.RootHeap)
	}
	out := make([]*message.Link, len(msgs))
	for i, m := range msgs {
		out[i] = m.(*message.Link)
	}
	slices.SortFunc(out, func(a, b *message.Link) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// symbolLinks reads the links of a symbol-table group.
func (f *File) symbolLinks(btreeAddr, heapAddr uint64) ([]*message.Link, error) {
	h, err := heap.ReadLocal(f.rw, heapAddr, f.sz)
	if err != nil {
		return nil, err
	}
	entries, err := btree.ReadGroup(f.rw, btreeAddr, f.sz)
	if err != nil {
		return nil, err
	}
	out := make([]*message.Link, 0, len(entries))
	for _, e := range entries {
		name, err := h.String(e.NameOffset)
		if err != nil {
			return nil, err
		}
		l := &message.Link{Kind: message.LinkHard, Name: name, Addr: e.ObjectAddr, Order: -1}
		if e.CacheType == 2 {
			target, err := h.String(e.LinkOffset)
			if err != nil {
				return nil, err
			}
			l.Kind = message.LinkSoft
			l.Target = target
		}
		out = append(out, l)
	}
	return out, nil
}

func findLink(links []*message.Link, name string) *message.Link {
	for _, l := range links {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// resolve follows path from the group at start (whose path is base) and
// returns the object address and its absolute path. Absolute paths start at
// the root group.
func (f *File) resolve(start uint64, base, path string, depth int) (uint64, string, error) {
	if depth > MaxLinkDepth {
		return 0, "", ErrLinkDepth
	}
	addr, cur := start, base
	if strings.HasPrefix(path, "/") {
		addr, cur = f.sb.RootAddr, "/"
	}
	for _, name := range SplitPath(path) {
		if name == "." {
			continue
		}
		links, err := f.links(addr)
		if err != nil {
			return 0, "", fmt.Errorf("%s: %w", cur, err)
		}
		l := findLink(links, name)
		if l == nil {
			return 0, "", fmt.Errorf("%w: %s", ErrNotFound, JoinPath(cur, name))
		}
		switch l.Kind {
		case message.LinkHard:
			addr = l.Addr
		case message.LinkSoft:
			// Relative targets resolve against the group holding the link.
			a, _, err := f.resolve(addr, cur, l.Target, depth+1)
			if err != nil {
				return 0, "", err
			}
			addr = a
		default:
			return 0, "", fmt.Errorf("%w: external link %s", ErrUnsupported, JoinPath(cur, name))
		}
		cur = JoinPath(cur, name)
	}
	return addr, cur, nil
}

// addLink stores l in the group at parent.
func (f *File) addLink(parent uint64, l *message.Link) error {
	hdr, err := f.readHeader(parent)
	if err != nil {
		return err
	}
	if hdr.Has(message.TypeSymbolTable) || !hdr.Rewritable() {
		return fmt.Errorf("%w: adding links to an old-style group", ErrUnsupported)
	}
	links, err := f.links(parent)
	if err != nil {
		return err
	}
	if findLink(links, l.Name) != nil {
		return fmt.Errorf("%w: %s", ErrExists, l.Name)
	}
	data, err := l.Encode(f.sz)
	if err != nil {
		return err
	}
	msgs := append(slices.Clone(hdr.Msgs), object.Msg{Type: message.TypeLink, Data: data})
	return f.rewriteHeader(hdr, msgs)
}
