package hamtree

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/hamtree/internal/commit"
	"github.com/hupe1980/hamtree/internal/element"
	"github.com/hupe1980/hamtree/internal/fs"
	"github.com/hupe1980/hamtree/internal/keystore"
	"github.com/hupe1980/hamtree/internal/stash"
	"github.com/hupe1980/hamtree/internal/trie"
)

const (
	// ElementsFile is the element stash inside a forest directory.
	ElementsFile = "elements.stash"
	// KeysFile is the string key store inside a string forest directory.
	KeysFile = "keys.stash"
)

// Key is the set of supported key types. Integer keys must be below 2^31;
// string keys must be valid UTF-8 of at most 65535 bytes.
type Key interface {
	uint32 | string
}

// RootIndex names one saved, immutable version of a trie.
type RootIndex uint32

// EmptyRoot is the sentinel root written at index 0 of every stash.
const EmptyRoot RootIndex = 0

// Forest stores any number of trie versions in one directory.
//
// A Forest may be shared between goroutines. Pushes are serialized and
// exclude concurrent lookups; lookups run in parallel. Only one process may
// write a forest directory at a time.
type Forest[K Key] struct {
	mu     sync.RWMutex
	dir    string
	opts   options
	stash  *stash.Stash
	keys   keystore.Store[K]
	runs   trie.Loader
	closed bool
}

func keyType[K Key]() string {
	var zero K
	if _, ok := any(zero).(string); ok {
		return "string"
	}
	return "uint32"
}

func isStringKey[K Key]() bool { return keyType[K]() == "string" }

// Create initializes a new forest in dir. It fails with ErrAlreadyExists if
// dir exists.
func Create[K Key](dir string, opts ...Option) (err error) {
	o := applyOptions(opts)
	defer func() { o.logger.LogCreate(dir, keyType[K](), err) }()

	exists, err := fs.Exists(o.fs, dir)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, dir)
	}
	if err := o.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, ElementsFile)
	if err := stash.Create(o.fs, path); err != nil {
		return err
	}
	st, err := stash.Open(o.fs, path, stash.Options{Durability: stash.DurabilitySync})
	if err != nil {
		return err
	}
	if _, err := st.Append([]element.Record{element.Empty}); err != nil {
		st.Close()
		return err
	}
	if err := st.Close(); err != nil {
		return err
	}

	if isStringKey[K]() {
		if err := keystore.CreateString(o.fs, filepath.Join(dir, KeysFile)); err != nil {
			return err
		}
	}
	return fs.SyncDir(o.fs, dir)
}

// Open opens the forest in dir. It fails with ErrNotFound if dir or one of
// its files is missing.
func Open[K Key](dir string, opts ...Option) (f *Forest[K], err error) {
	o := applyOptions(opts)
	defer func() {
		var records int64
		if f != nil {
			records = f.stash.Len()
		}
		o.logger.LogOpen(dir, records, o.readOnly, err)
	}()

	keysPath := filepath.Join(dir, KeysFile)
	for _, path := range []string{dir, filepath.Join(dir, ElementsFile)} {
		ok, err := fs.Exists(o.fs, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
	}
	hasKeys, err := fs.Exists(o.fs, keysPath)
	if err != nil {
		return nil, err
	}
	if hasKeys != isStringKey[K]() {
		if !hasKeys {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, keysPath)
		}
		return nil, fmt.Errorf("%w: %s holds string keys", ErrKeyTypeMismatch, dir)
	}

	st, err := openStash(o, filepath.Join(dir, ElementsFile))
	if err != nil {
		return nil, translateError(err)
	}
	if err := checkSentinel(st); err != nil {
		st.Close()
		return nil, err
	}

	keys, err := openKeys[K](o, keysPath)
	if err != nil {
		st.Close()
		return nil, translateError(err)
	}

	runs, err := newRunCache(st, o.cacheSize)
	if err != nil {
		st.Close()
		keys.Close()
		return nil, err
	}

	return &Forest[K]{dir: dir, opts: o, stash: st, keys: keys, runs: runs}, nil
}

// OpenOrCreate opens the forest in dir, creating it first if dir does not
// exist.
func OpenOrCreate[K Key](dir string, opts ...Option) (*Forest[K], error) {
	o := applyOptions(opts)
	exists, err := fs.Exists(o.fs, dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := Create[K](dir, opts...); err != nil {
			return nil, err
		}
	}
	return Open[K](dir, opts...)
}

func openStash(o options, path string) (*stash.Stash, error) {
	so := stash.Options{Mmap: o.mmap}
	if o.durability == DurabilitySync {
		so.Durability = stash.DurabilitySync
	}
	if o.readOnly {
		return stash.OpenReader(o.fs, path, so)
	}
	return stash.Open(o.fs, path, so)
}

func checkSentinel(st *stash.Stash) error {
	if st.Len() == 0 {
		return &CorruptError{Path: st.Path(), cause: errors.New("missing sentinel record")}
	}
	r, err := st.Read(0)
	if err != nil {
		return translateError(err)
	}
	if r != element.Empty {
		return &CorruptError{Path: st.Path(), cause: fmt.Errorf("sentinel record is %s", r)}
	}
	return nil
}

func openKeys[K Key](o options, path string) (keystore.Store[K], error) {
	if !isStringKey[K]() {
		return any(keystore.Uint32Store{}).(keystore.Store[K]), nil
	}
	s, err := keystore.OpenString(o.fs, path, keystore.StringOptions{
		CacheSize: o.keyCacheSize,
		ReadOnly:  o.readOnly,
		Sync:      o.durability == DurabilitySync,
	})
	if err != nil {
		return nil, err
	}
	return any(s).(keystore.Store[K]), nil
}

// Dir returns the forest directory.
func (f *Forest[K]) Dir() string { return f.dir }

// Len returns the number of records in the element stash.
func (f *Forest[K]) Len() int64 { return f.stash.Len() }

// ReadOnly reports whether the forest was opened with WithReadOnly.
func (f *Forest[K]) ReadOnly() bool { return f.opts.readOnly }

// AddRoot returns the root of an empty trie. Nothing is written; every
// forest starts with the empty root at index 0.
func (f *Forest[K]) AddRoot() (RootIndex, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, ErrClosed
	}
	return EmptyRoot, nil
}

// Find returns the value stored for key in the version named by root.
func (f *Forest[K]) Find(root RootIndex, key K) (value uint32, found bool, err error) {
	start := time.Now()
	defer func() {
		f.opts.metricsCollector.RecordFind(time.Since(start), found, err)
		f.opts.logger.LogFind(root, found, err)
	}()

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, false, ErrClosed
	}

	t, err := f.load(root)
	if err != nil {
		return 0, false, err
	}
	value, found, err = trie.Find(t, key, f.keys)
	return value, found, translateError(err)
}

// Push stores value for key on top of root and returns the new version.
// root itself stays valid. If key already maps to value, root is returned
// and nothing is written.
func (f *Forest[K]) Push(root RootIndex, key K, value uint32) (next RootIndex, err error) {
	start := time.Now()
	defer func() {
		f.opts.metricsCollector.RecordPush(time.Since(start), err)
		f.opts.logger.LogPush(root, next, err)
	}()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	if f.opts.readOnly {
		return 0, ErrReadOnly
	}

	t, err := f.load(root)
	if err != nil {
		return 0, err
	}
	updated, err := trie.Push(t, key, value, f.keys)
	if err != nil {
		return 0, translateError(err)
	}
	if updated == t {
		return root, nil
	}

	saveStart := time.Now()
	idx, cs, err := commit.Save(updated, f.stash, commit.Options{Dedup: f.opts.dedup})
	if err != nil {
		return 0, translateError(err)
	}
	stats := SaveStats{Nodes: cs.Nodes, Deduplicated: cs.Deduplicated, Records: cs.Records}
	f.opts.metricsCollector.RecordSave(stats, time.Since(saveStart))
	f.opts.logger.LogSave(stats, time.Since(saveStart))
	return RootIndex(idx), nil
}

// Size returns the number of keys in the version named by root.
func (f *Forest[K]) Size(root RootIndex) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, ErrClosed
	}

	t, err := f.load(root)
	if err != nil {
		return 0, err
	}
	n, err := trie.Size(t)
	return n, translateError(err)
}

// Each calls fn for every key/value pair of the version named by root, in
// ascending key order. Returning an error from fn stops the iteration.
func (f *Forest[K]) Each(root RootIndex, fn func(key K, value uint32) error) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}

	t, err := f.load(root)
	if err != nil {
		return err
	}
	var fnErr error
	err = trie.Each(t, func(field element.KeyField, value uint32) error {
		key, err := f.keys.ReadKey(field)
		if err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			fnErr = err
			return err
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return translateError(err)
}

// Sync flushes both files to stable storage.
func (f *Forest[K]) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := f.stash.Sync(); err != nil {
		return err
	}
	if s, ok := any(f.keys).(*keystore.StringStore); ok {
		return s.Sync()
	}
	return nil
}

// Close releases all file handles. It is idempotent.
func (f *Forest[K]) Close() (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	err = errors.Join(f.stash.Close(), f.keys.Close())
	f.opts.logger.LogClose(f.dir, err)
	return err
}

// load returns the trie saved at root. Callers hold f.mu.
func (f *Forest[K]) load(root RootIndex) (*trie.Trie, error) {
	if int64(root) >= f.stash.Len() && f.stash.ReadOnly() {
		if err := f.stash.Refresh(); err != nil {
			return nil, err
		}
	}
	if int64(root) >= f.stash.Len() {
		return nil, &ErrInvalidRootIndex{Root: root, Len: f.stash.Len()}
	}
	r, err := f.stash.Read(element.Index(root))
	if err != nil {
		return nil, translateError(err)
	}
	t, err := trie.FromRecord(r, f.runs)
	if err != nil {
		return nil, &ErrInvalidRootIndex{Root: root, Len: f.stash.Len(), cause: err}
	}
	return t, nil
}

type runKey struct {
	start element.Index
	n     int
}

// runCache keeps decoded record runs across calls. Saved runs never change,
// so entries never go stale.
type runCache struct {
	st *stash.Stash
	c  *lru.Cache[runKey, []element.Record]
}

func newRunCache(st *stash.Stash, size int) (trie.Loader, error) {
	if size <= 0 {
		return st, nil
	}
	c, err := lru.New[runKey, []element.Record](size)
	if err != nil {
		return nil, err
	}
	return &runCache{st: st, c: c}, nil
}

func (r *runCache) ReadRun(start element.Index, n int) ([]element.Record, error) {
	k := runKey{start: start, n: n}
	if recs, ok := r.c.Get(k); ok {
		return recs, nil
	}
	recs, err := r.st.ReadRun(start, n)
	if err != nil {
		return nil, err
	}
	r.c.Add(k, recs)
	return recs, nil
}
