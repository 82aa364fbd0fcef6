package trie

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hamtree/internal/bitmap"
	"github.com/hupe1980/hamtree/internal/element"
)

var (
	// ErrCorrupt is returned when saved records do not form a valid node.
	ErrCorrupt = errors.New("trie: corrupt node")
	// ErrNoDivergence is returned when two keys share every shard up to the
	// key store's maximum depth.
	ErrNoDivergence = errors.New("trie: keys do not diverge")
)

// Loader reads runs of saved records.
type Loader interface {
	ReadRun(start element.Index, n int) ([]element.Record, error)
}

// Trie is one immutable node.
type Trie struct {
	m      bitmap.ElementMap
	direct []Element
	saved  *savedList
}

type savedList struct {
	start  element.Index
	loader Loader
	cached []Element
	loaded bool
}

// Empty returns a node without elements.
func Empty() *Trie {
	return &Trie{}
}

// NewDirect returns an in-memory node. The caller hands over elements; they
// must be ordered by ascending shard and match m.
func NewDirect(m bitmap.ElementMap, elements []Element) *Trie {
	return &Trie{m: m, direct: elements}
}

// FromRecord returns the node a node reference record points at. Its
// elements are read through loader on first access.
func FromRecord(r element.Record, loader Loader) (*Trie, error) {
	if r.IsLeaf() {
		return nil, fmt.Errorf("%w: root record %s is a leaf", ErrCorrupt, r)
	}
	if r.Map() == 0 {
		return Empty(), nil
	}
	return &Trie{m: r.Map(), saved: &savedList{start: r.Start(), loader: loader}}, nil
}

// Map returns the element map of t.
func (t *Trie) Map() bitmap.ElementMap { return t.m }

// Len returns the number of elements of t.
func (t *Trie) Len() int { return t.m.Count() }

// IsDirect reports whether t was built in memory and not loaded from a stash.
func (t *Trie) IsDirect() bool { return t.saved == nil }

// Saved returns the stash index of the element run of a saved node.
func (t *Trie) Saved() (element.Index, bool) {
	if t.saved == nil {
		return 0, false
	}
	return t.saved.start, true
}

// Get returns the element at rank i.
func (t *Trie) Get(i int) (Element, error) {
	elems, err := t.Elements()
	if err != nil {
		return Element{}, err
	}
	if i < 0 || i >= len(elems) {
		return Element{}, fmt.Errorf("trie: element %d out of range [0, %d)", i, len(elems))
	}
	return elems[i], nil
}

// Elements returns all elements of t in shard order. The slice must not be
// modified.
func (t *Trie) Elements() ([]Element, error) {
	if t.saved == nil {
		return t.direct, nil
	}
	return t.saved.load(t.m)
}

func (s *savedList) load(m bitmap.ElementMap) ([]Element, error) {
	if s.loaded {
		return s.cached, nil
	}
	n := m.Count()
	recs, err := s.loader.ReadRun(s.start, n)
	if err != nil {
		return nil, err
	}
	if len(recs) != n {
		return nil, fmt.Errorf("%w: run at %d has %d records, want %d", ErrCorrupt, s.start, len(recs), n)
	}

	elems := make([]Element, n)
	for i, r := range recs {
		if r.IsLeaf() {
			elems[i] = KeyValue(r.Key(), r.Value())
			continue
		}
		// Children are appended before their parents, so a child run must
		// end at or before the parent run starts.
		if r.Map() == 0 || int64(r.Start())+int64(r.Map().Count()) > int64(s.start) {
			return nil, fmt.Errorf("%w: record %d references %s", ErrCorrupt, int64(s.start)+int64(i), r)
		}
		elems[i] = SubTrie(&Trie{m: r.Map(), saved: &savedList{start: r.Start(), loader: s.loader}})
	}

	s.cached = elems
	s.loaded = true
	return elems, nil
}

// with returns a direct copy of t with the element at rank i replaced.
func (t *Trie) with(i int, e Element) (*Trie, error) {
	elems, err := t.Elements()
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(elems))
	copy(out, elems)
	out[i] = e
	return NewDirect(t.m, out), nil
}

// insert returns a direct copy of t with e added for shard.
func (t *Trie) insert(shard uint8, e Element) (*Trie, error) {
	elems, err := t.Elements()
	if err != nil {
		return nil, err
	}
	i := t.m.InsertionIndex(shard)
	out := make([]Element, len(elems)+1)
	copy(out, elems[:i])
	out[i] = e
	copy(out[i+1:], elems[i:])
	return NewDirect(t.m.Include(shard), out), nil
}
