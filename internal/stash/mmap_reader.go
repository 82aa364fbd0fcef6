package stash

import (
	"io"
	"sync"

	"github.com/hupe1980/hamtree/internal/mmap"
)

// mmapReader serves reads from a mapping and remaps when a read falls past
// the mapped length.
type mmapReader struct {
	mu sync.RWMutex
	m  *mmap.Mapping
}

func newMmapReader(path string) (*mmapReader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.AccessRandom)
	return &mmapReader{m: m}, nil
}

func (r *mmapReader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	if off+int64(len(p)) <= r.m.Size() {
		defer r.mu.RUnlock()
		return r.m.ReadAt(p, off)
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if off+int64(len(p)) > r.m.Size() {
		grown, err := r.m.Remap()
		if err != nil {
			return 0, err
		}
		r.m.Close()
		r.m = grown
		_ = r.m.Advise(mmap.AccessRandom)
	}
	if off+int64(len(p)) > r.m.Size() {
		n, _ := r.m.ReadAt(p, off)
		return n, io.EOF
	}
	return r.m.ReadAt(p, off)
}

func (r *mmapReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m.Close()
}
