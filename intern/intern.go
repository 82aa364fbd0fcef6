package intern

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/hamtree"
	"github.com/hupe1980/hamtree/codec"
	"github.com/hupe1980/hamtree/internal/element"
	"github.com/hupe1980/hamtree/internal/fs"
)

const (
	// ForestDir is the integer forest inside a store directory.
	ForestDir = "forest"
	// TableFile is the string table inside a store directory.
	TableFile = "strings"
)

// table is the on-disk form of the string assignments.
type table struct {
	Codec string            `json:"codec"`
	Keys  map[string]uint32 `json:"keys"`
}

// Store is a string-keyed view over an integer forest.
type Store struct {
	fs     fs.FileSystem
	dir    string
	forest *hamtree.Forest[uint32]

	mu  sync.RWMutex
	ids map[string]uint32
}

// Create initializes a new store in dir. It fails with
// hamtree.ErrAlreadyExists if dir exists.
func Create(dir string, opts ...hamtree.Option) error {
	return create(fs.Default, dir, opts...)
}

func create(fsys fs.FileSystem, dir string, opts ...hamtree.Option) error {
	exists, err := fs.Exists(fsys, dir)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", hamtree.ErrAlreadyExists, dir)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := hamtree.Create[uint32](filepath.Join(dir, ForestDir), opts...); err != nil {
		return err
	}
	return writeTable(fsys, dir, map[string]uint32{})
}

// Open opens the store in dir.
func Open(dir string, opts ...hamtree.Option) (*Store, error) {
	return open(fs.Default, dir, opts...)
}

func open(fsys fs.FileSystem, dir string, opts ...hamtree.Option) (*Store, error) {
	ok, err := fs.Exists(fsys, dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", hamtree.ErrNotFound, dir)
	}

	ids, err := readTable(fsys, dir)
	if err != nil {
		return nil, err
	}
	forest, err := hamtree.Open[uint32](filepath.Join(dir, ForestDir), opts...)
	if err != nil {
		return nil, err
	}
	return &Store{fs: fsys, dir: dir, forest: forest, ids: ids}, nil
}

func readTable(fsys fs.FileSystem, dir string) (map[string]uint32, error) {
	path := filepath.Join(dir, TableFile)
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", hamtree.ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var t table
	if err := codec.Default.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", hamtree.ErrCorrupt, path, err)
	}
	if t.Codec != "" && t.Codec != codec.Default.Name() {
		c, err := codec.Lookup(t.Codec)
		if err != nil {
			return nil, err
		}
		t = table{}
		if err := c.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", hamtree.ErrCorrupt, path, err)
		}
	}
	if t.Keys == nil {
		t.Keys = map[string]uint32{}
	}

	// Integers are handed out densely from zero.
	seen := make([]bool, len(t.Keys))
	for key, id := range t.Keys {
		if int(id) >= len(seen) || seen[id] {
			return nil, fmt.Errorf("%w: %s assigns %d to %q", hamtree.ErrCorrupt, path, id, key)
		}
		seen[id] = true
	}
	return t.Keys, nil
}

func writeTable(fsys fs.FileSystem, dir string, ids map[string]uint32) error {
	data, err := codec.Default.Marshal(table{Codec: codec.Default.Name(), Keys: ids})
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(fsys, filepath.Join(dir, TableFile), data, 0600)
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Forest returns the underlying integer forest.
func (s *Store) Forest() *hamtree.Forest[uint32] { return s.forest }

// Strings returns the number of distinct strings assigned so far.
func (s *Store) Strings() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// AddRoot returns the root of an empty trie.
func (s *Store) AddRoot() (hamtree.RootIndex, error) { return s.forest.AddRoot() }

// Push stores value for key on top of root and returns the new version.
// A string seen for the first time is assigned an integer and the table is
// rewritten before the forest is touched.
func (s *Store) Push(root hamtree.RootIndex, key string, value uint32) (hamtree.RootIndex, error) {
	id, err := s.assign(key)
	if err != nil {
		return 0, err
	}
	return s.forest.Push(root, id, value)
}

func (s *Store) assign(key string) (uint32, error) {
	s.mu.RLock()
	id, ok := s.ids[key]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[key]; ok {
		return id, nil
	}
	if s.forest.ReadOnly() {
		return 0, hamtree.ErrReadOnly
	}
	if len(s.ids) > int(element.MaxIndex) {
		return 0, hamtree.ErrFull
	}

	id = uint32(len(s.ids))
	s.ids[key] = id
	if err := writeTable(s.fs, s.dir, s.ids); err != nil {
		delete(s.ids, key)
		return 0, err
	}
	return id, nil
}

// Find returns the value stored for key in the version named by root. A
// string that was never pushed is reported as not found.
func (s *Store) Find(root hamtree.RootIndex, key string) (uint32, bool, error) {
	s.mu.RLock()
	id, ok := s.ids[key]
	s.mu.RUnlock()
	if !ok {
		return 0, false, nil
	}
	return s.forest.Find(root, id)
}

// Size returns the number of keys in the version named by root.
func (s *Store) Size(root hamtree.RootIndex) (int, error) { return s.forest.Size(root) }

// Close closes the underlying forest.
func (s *Store) Close() error { return s.forest.Close() }
