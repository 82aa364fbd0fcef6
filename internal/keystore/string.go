package keystore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/hamtree/internal/element"
	"github.com/hupe1980/hamtree/internal/fs"
)

// MaxStringLen is the longest key a length prefix can describe.
const MaxStringLen = math.MaxUint16

// EndOfKey is the shard of a string key at every depth past its last nibble.
// Nibbles are shifted up by one so that a key sorts before the keys it
// prefixes.
const EndOfKey uint8 = 0

const lenPrefix = 2

// StringOptions configures a StringStore.
type StringOptions struct {
	// CacheSize is the number of keys memoized in each direction. Zero
	// disables the memo.
	CacheSize int
	// ReadOnly opens the key file without an append handle.
	ReadOnly bool
	// Sync fsyncs the key file after every write.
	Sync bool
}

// DefaultStringOptions returns the options used by forests by default.
func DefaultStringOptions() StringOptions {
	return StringOptions{CacheSize: 4096}
}

// StringStore persists string keys in an append-only file.
type StringStore struct {
	fs   fs.FileSystem
	path string
	opts StringOptions

	mu   sync.Mutex // serializes writes
	w    fs.File
	r    fs.File
	size atomic.Int64

	byKey   *lru.Cache[string, element.KeyField]
	byField *lru.Cache[element.KeyField, string]
}

var _ Store[string] = (*StringStore)(nil)

// CreateString creates an empty key file. It fails if the file exists.
func CreateString(fsys fs.FileSystem, path string) error {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

// OpenString opens an existing key file.
func OpenString(fsys fs.FileSystem, path string, opts StringOptions) (*StringStore, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	s := &StringStore{fs: fsys, path: path, opts: opts}

	if opts.CacheSize > 0 {
		var err error
		if s.byKey, err = lru.New[string, element.KeyField](opts.CacheSize); err != nil {
			return nil, err
		}
		if s.byField, err = lru.New[element.KeyField, string](opts.CacheSize); err != nil {
			return nil, err
		}
	}

	if !opts.ReadOnly {
		w, err := fsys.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		s.w = w
	}

	r, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.r = r

	fi, err := r.Stat()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.size.Store(fi.Size())
	return s, nil
}

// Size returns the length of the key file in bytes.
func (s *StringStore) Size() int64 { return s.size.Load() }

// WriteKey appends key and returns its offset. A key already written
// through this store and still memoized is not written again.
func (s *StringStore) WriteKey(key string) (element.KeyField, error) {
	if len(key) > MaxStringLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	}
	if !utf8.ValidString(key) {
		return 0, ErrInvalidKey
	}
	if s.byKey != nil {
		if f, ok := s.byKey.Get(key); ok {
			return f, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		if s.r == nil {
			return 0, ErrClosed
		}
		return 0, ErrReadOnly
	}

	off := s.size.Load()
	if off > int64(element.MaxIndex) {
		return 0, fmt.Errorf("%w: offset %d", ErrStoreFull, off)
	}
	field := element.KeyField(off)

	buf := make([]byte, lenPrefix, lenPrefix+len(key))
	binary.BigEndian.PutUint16(buf, uint16(len(key)))
	buf = append(buf, key...)

	n, err := s.w.Write(buf)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err == nil && s.opts.Sync {
		err = s.w.Sync()
	}
	if err != nil {
		if terr := s.fs.Truncate(s.path, off); terr != nil {
			return 0, errors.Join(fmt.Errorf("keystore: write: %w", err), fmt.Errorf("keystore: rollback: %w", terr))
		}
		return 0, fmt.Errorf("keystore: write: %w", err)
	}
	s.size.Store(off + int64(len(buf)))

	if s.byKey != nil {
		s.byKey.Add(key, field)
		s.byField.Add(field, key)
	}
	return field, nil
}

// ReadKey reads the key stored at field.
func (s *StringStore) ReadKey(field element.KeyField) (string, error) {
	if s.byField != nil {
		if key, ok := s.byField.Get(field); ok {
			return key, nil
		}
	}

	s.mu.Lock()
	r := s.r
	s.mu.Unlock()
	if r == nil {
		return "", ErrClosed
	}

	off := int64(field)
	var prefix [lenPrefix]byte
	if err := readFull(r, prefix[:], off); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(prefix[:]))
	if err := readFull(r, buf, off+lenPrefix); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: invalid UTF-8 at offset %d", ErrCorrupt, off)
	}

	key := string(buf)
	if s.byField != nil {
		s.byField.Add(field, key)
	}
	return key, nil
}

func readFull(r io.ReaderAt, p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: short record at offset %d", ErrCorrupt, off)
	}
	return err
}

// Shard returns the nibble of key for depth plus one, or EndOfKey past its
// end.
func (s *StringStore) Shard(key string, depth int) uint8 {
	return StringShard(key, depth)
}

// StringShard is the shard function of StringStore.
func StringShard(key string, depth int) uint8 {
	i := depth / 2
	if i >= len(key) {
		return EndOfKey
	}
	if depth%2 == 0 {
		return key[i]>>4 + 1
	}
	return key[i]&0x0f + 1
}

// MaxDepth returns the depth past which every supported key is exhausted.
func (s *StringStore) MaxDepth() int { return 2*MaxStringLen + 1 }

// Sync flushes written keys to stable storage.
func (s *StringStore) Sync() error {
	if s.w == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Sync()
}

// Close releases the file handles.
func (s *StringStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.w != nil {
		errs = append(errs, s.w.Close())
		s.w = nil
	}
	if s.r != nil {
		errs = append(errs, s.r.Close())
		s.r = nil
	}
	return errors.Join(errs...)
}
