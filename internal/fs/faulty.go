package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the error returned by a fault that does not name its own.
var ErrInjected = errors.New("fs: injected fault")

// Fault defines the failure behavior of files matching a rule.
type Fault struct {
	// FailAfterBytes fails a write that would take the file past this many
	// written bytes. -1 disables the limit.
	FailAfterBytes int64
	// Torn makes a failing write store the bytes that still fit before
	// returning the error, leaving a partial record behind.
	Torn           bool
	FailOnSync     bool
	FailOnClose    bool
	FailOnTruncate bool
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that injects errors per file name pattern.
type FaultyFS struct {
	FS      FileSystem
	Default Fault

	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS creates a new FaultyFS wrapping fs (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:      fs,
		Default: Fault{FailAfterBytes: -1},
		rules:   make(map[string]Fault),
	}
}

// AddRule applies fault to every file whose name contains pattern. Rules
// only affect files opened after the call.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes all rules.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]Fault)
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	fault := f.Default
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault = rule
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fault: f.faultFor(name)}, nil
}

func (f *FaultyFS) Remove(name string) error {
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) {
	return f.FS.ReadDir(name)
}

func (f *FaultyFS) Truncate(name string, size int64) error {
	if f.faultFor(name).FailOnTruncate {
		return f.faultFor(name).err()
	}
	return f.FS.Truncate(name, size)
}

type faultyFile struct {
	File
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	limit := ff.fault.FailAfterBytes
	if limit < 0 || ff.written+int64(len(p)) <= limit {
		n, err := ff.File.Write(p)
		ff.written += int64(n)
		return n, err
	}
	if !ff.fault.Torn {
		return 0, ff.fault.err()
	}
	room := limit - ff.written
	if room < 0 {
		room = 0
	}
	n, err := ff.File.Write(p[:room])
	ff.written += int64(n)
	if err != nil {
		return n, err
	}
	return n, ff.fault.err()
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if ff.fault.FailOnClose {
		ff.File.Close()
		return ff.fault.err()
	}
	return ff.File.Close()
}
