package stash

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/hamtree/internal/element"
	"github.com/hupe1980/hamtree/internal/fs"
)

// Durability controls when appended records reach stable storage.
type Durability int

const (
	// DurabilityAsync relies on the OS page cache.
	DurabilityAsync Durability = iota
	// DurabilitySync calls fsync after every append.
	DurabilitySync
)

func (d Durability) String() string {
	switch d {
	case DurabilityAsync:
		return "async"
	case DurabilitySync:
		return "sync"
	default:
		return fmt.Sprintf("Durability(%d)", int(d))
	}
}

var (
	// ErrCorrupt is returned when the file cannot hold whole records.
	ErrCorrupt = errors.New("stash: corrupt file")
	// ErrOutOfRange is returned when reading past the last record.
	ErrOutOfRange = errors.New("stash: index out of range")
	// ErrReadOnly is returned by Append on a stash opened with OpenReader.
	ErrReadOnly = errors.New("stash: read-only")
	// ErrFull is returned when an append would exceed the addressable range.
	ErrFull = errors.New("stash: full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("stash: closed")
)

// Options configures a Stash.
type Options struct {
	Durability Durability
	// Mmap serves reads from a memory mapping instead of pread.
	Mmap bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{Durability: DurabilityAsync}
}

// Stash is an append-only record log. Appends are serialized internally;
// reads take no lock on the file path.
type Stash struct {
	fs   fs.FileSystem
	path string
	opts Options

	mu     sync.Mutex // serializes appends
	w      fs.File    // nil when read-only
	r      readerAt
	length atomic.Int64
	closed atomic.Bool
}

type readerAt interface {
	io.ReaderAt
	io.Closer
}

// Create creates an empty stash file. It fails if the file exists.
func Create(fsys fs.FileSystem, path string) error {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Open opens an existing stash for appending and reading.
func Open(fsys fs.FileSystem, path string, opts Options) (*Stash, error) {
	return open(fsys, path, opts, true)
}

// OpenReader opens an existing stash for reading only.
func OpenReader(fsys fs.FileSystem, path string, opts Options) (*Stash, error) {
	return open(fsys, path, opts, false)
}

func open(fsys fs.FileSystem, path string, opts Options, writable bool) (*Stash, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	s := &Stash{fs: fsys, path: path, opts: opts}

	if writable {
		w, err := fsys.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		s.w = w
	}

	size, err := s.statSize()
	if err != nil {
		s.closeHandles()
		return nil, err
	}
	if size%element.Size != 0 {
		s.closeHandles()
		return nil, fmt.Errorf("%w: %s has size %d, not a multiple of %d", ErrCorrupt, path, size, element.Size)
	}
	s.length.Store(size / element.Size)

	if opts.Mmap {
		r, err := newMmapReader(path)
		if err != nil {
			s.closeHandles()
			return nil, err
		}
		s.r = r
	} else {
		f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			s.closeHandles()
			return nil, err
		}
		s.r = f
	}

	return s, nil
}

func (s *Stash) statSize() (int64, error) {
	fi, err := s.fs.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Path returns the file path of the stash.
func (s *Stash) Path() string { return s.path }

// Len returns the number of records in the stash.
func (s *Stash) Len() int64 { return s.length.Load() }

// ReadOnly reports whether the stash was opened without an append handle.
func (s *Stash) ReadOnly() bool { return s.w == nil }

// Refresh picks up records appended by another handle. Only whole records
// count; a trailing partial record from an in-flight append is ignored.
func (s *Stash) Refresh() error {
	if s.closed.Load() {
		return ErrClosed
	}
	size, err := s.statSize()
	if err != nil {
		return err
	}
	n := size / element.Size
	if n > s.length.Load() {
		s.length.Store(n)
	}
	return nil
}

// Append writes records as one batch and returns the index of the first
// record. On any failure the file is truncated back to its previous length.
func (s *Stash) Append(records []element.Record) (element.Index, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if s.w == nil {
		return 0, ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.length.Load()
	if len(records) == 0 {
		return element.Index(prev), nil
	}
	if prev+int64(len(records)) > int64(element.MaxIndex)+1 {
		return 0, fmt.Errorf("%w: %d + %d records", ErrFull, prev, len(records))
	}

	buf := element.Encode(records)
	n, err := s.w.Write(buf)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err == nil && s.opts.Durability == DurabilitySync {
		err = s.w.Sync()
	}
	if err != nil {
		if terr := s.fs.Truncate(s.path, prev*element.Size); terr != nil {
			return 0, errors.Join(fmt.Errorf("stash: append: %w", err), fmt.Errorf("stash: rollback: %w", terr))
		}
		return 0, fmt.Errorf("stash: append: %w", err)
	}

	s.length.Store(prev + int64(len(records)))
	return element.Index(prev), nil
}

// Read returns the record at index i.
func (s *Stash) Read(i element.Index) (element.Record, error) {
	recs, err := s.ReadRun(i, 1)
	if err != nil {
		return element.Record{}, err
	}
	return recs[0], nil
}

// ReadRun returns n consecutive records starting at start.
func (s *Stash) ReadRun(start element.Index, n int) ([]element.Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if n < 0 || int64(start)+int64(n) > s.length.Load() {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, start, int64(start)+int64(n), s.length.Load())
	}
	if n == 0 {
		return nil, nil
	}

	buf := make([]byte, n*element.Size)
	if _, err := s.r.ReadAt(buf, start.Offset()); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: short read at record %d", ErrCorrupt, start)
		}
		return nil, err
	}
	return element.Decode(buf)
}

// Sync flushes appended records to stable storage.
func (s *Stash) Sync() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.w == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Sync()
}

// Close releases both handles. It is idempotent.
func (s *Stash) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.w != nil && s.opts.Durability == DurabilitySync {
		errs = append(errs, s.w.Sync())
	}
	errs = append(errs, s.closeHandles())
	return errors.Join(errs...)
}

func (s *Stash) closeHandles() error {
	var errs []error
	if s.w != nil {
		errs = append(errs, s.w.Close())
	}
	if s.r != nil {
		errs = append(errs, s.r.Close())
	}
	return errors.Join(errs...)
}
