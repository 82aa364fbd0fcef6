package eavt

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hupe1980/hamtree"
	"github.com/hupe1980/hamtree/internal/fs"
)

// Forest directories inside an index directory.
const (
	EntityForest    = "eavt.forest"
	AttributeForest = "avt.forest"
	ValueForest     = "vt.forest"
)

// Index is a three-level fact index. It is safe for concurrent lookups;
// pushes must be serialized by the caller.
type Index struct {
	dir  string
	eavt *hamtree.Forest[uint32]
	avt  *hamtree.Forest[uint32]
	vt   *hamtree.Forest[string]
}

// Open opens the index in dir, creating dir and any missing forest.
func Open(dir string, opts ...hamtree.Option) (*Index, error) {
	if err := fs.Default.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	vt, err := hamtree.OpenOrCreate[string](filepath.Join(dir, ValueForest), opts...)
	if err != nil {
		return nil, err
	}
	avt, err := hamtree.OpenOrCreate[uint32](filepath.Join(dir, AttributeForest), opts...)
	if err != nil {
		vt.Close()
		return nil, err
	}
	eavt, err := hamtree.OpenOrCreate[uint32](filepath.Join(dir, EntityForest), opts...)
	if err != nil {
		vt.Close()
		avt.Close()
		return nil, err
	}
	return &Index{dir: dir, eavt: eavt, avt: avt, vt: vt}, nil
}

// Dir returns the index directory.
func (x *Index) Dir() string { return x.dir }

// NewRoot returns the root of an empty index.
func (x *Index) NewRoot() (hamtree.RootIndex, error) { return x.eavt.AddRoot() }

// Find returns the transaction recorded for (e, a, v) in the index version
// named by root.
func (x *Index) Find(root hamtree.RootIndex, e, a uint32, v string) (uint32, bool, error) {
	avtRoot, ok, err := x.eavt.Find(root, e)
	if err != nil || !ok {
		return 0, false, err
	}
	vtRoot, ok, err := x.avt.Find(hamtree.RootIndex(avtRoot), a)
	if err != nil || !ok {
		return 0, false, err
	}
	return x.vt.Find(hamtree.RootIndex(vtRoot), v)
}

// Push records t for (e, a, v) on top of root and returns the new index
// root. If the fact already carries t, root is returned unchanged. A failure
// in any layer leaves root valid; roots pushed into lower layers before the
// failure are unreachable and harmless.
func (x *Index) Push(root hamtree.RootIndex, e, a uint32, v string, t uint32) (hamtree.RootIndex, error) {
	avtRoot, err := x.child(x.eavt, root, e)
	if err != nil {
		return 0, fmt.Errorf("eavt: entity %d: %w", e, err)
	}
	vtRoot, err := x.child(x.avt, avtRoot, a)
	if err != nil {
		return 0, fmt.Errorf("eavt: attribute %d: %w", a, err)
	}

	old, ok, err := x.vt.Find(vtRoot, v)
	if err != nil {
		return 0, fmt.Errorf("eavt: value: %w", err)
	}
	if ok && old == t {
		return root, nil
	}

	newVT, err := x.vt.Push(vtRoot, v, t)
	if err != nil {
		return 0, fmt.Errorf("eavt: value: %w", err)
	}
	newAVT, err := x.avt.Push(avtRoot, a, uint32(newVT))
	if err != nil {
		return 0, fmt.Errorf("eavt: attribute %d: %w", a, err)
	}
	next, err := x.eavt.Push(root, e, uint32(newAVT))
	if err != nil {
		return 0, fmt.Errorf("eavt: entity %d: %w", e, err)
	}
	return next, nil
}

// child returns the lower-layer root stored for key, or the empty root.
func (x *Index) child(f *hamtree.Forest[uint32], root hamtree.RootIndex, key uint32) (hamtree.RootIndex, error) {
	v, ok, err := f.Find(root, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return hamtree.EmptyRoot, nil
	}
	return hamtree.RootIndex(v), nil
}

// Close closes all three forests.
func (x *Index) Close() error {
	return errors.Join(x.eavt.Close(), x.avt.Close(), x.vt.Close())
}
