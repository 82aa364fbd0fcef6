package commit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/hamtree/internal/element"
	"github.com/hupe1980/hamtree/internal/trie"
)

var (
	// ErrLogFull is returned when the batch would not be addressable.
	ErrLogFull = errors.New("commit: log full")
	// ErrLogMoved is returned when the log grew between planning and append.
	ErrLogMoved = errors.New("commit: log moved during save")
)

// Log is the append side of the element stash.
type Log interface {
	Len() int64
	Append(records []element.Record) (element.Index, error)
}

// Options configures Save.
type Options struct {
	// Dedup reuses the position of a node whose content matches one already
	// planned in the same save.
	Dedup bool
}

// DefaultOptions returns Options with deduplication enabled.
func DefaultOptions() Options {
	return Options{Dedup: true}
}

// Stats describes one save.
type Stats struct {
	Nodes        int // direct nodes reachable from the root
	Deduplicated int // nodes that reused an earlier position
	Records      int // records appended, including the root reference
}

type pending struct {
	node  *trie.Trie
	depth int
}

type planned struct {
	records []element.Record
	index   element.Index
}

// Save appends every direct node reachable from root and returns the index
// of the root reference record.
func Save(root *trie.Trie, log Log, opts Options) (element.Index, Stats, error) {
	var stats Stats

	nodes := collect(root)
	stats.Nodes = len(nodes)

	// Deepest first: a parent can only encode a child's position once the
	// child has one.
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].depth > nodes[j].depth })

	base := log.Len()
	next := base
	positions := make(map[*trie.Trie]element.Index, len(nodes))
	seen := make(map[uint64][]planned)
	var batch []element.Record

	for _, p := range nodes {
		records, err := encode(p.node, positions)
		if err != nil {
			return 0, stats, err
		}
		if len(records) == 0 {
			positions[p.node] = 0
			continue
		}

		var sum uint64
		if opts.Dedup {
			sum = fingerprint(p.node, records)
			if idx, ok := lookup(seen[sum], records); ok {
				positions[p.node] = idx
				stats.Deduplicated++
				continue
			}
		}

		idx := element.Index(next)
		positions[p.node] = idx
		batch = append(batch, records...)
		next += int64(len(records))
		if opts.Dedup {
			seen[sum] = append(seen[sum], planned{records: records, index: idx})
		}
	}

	rootRecord, err := reference(root, positions)
	if err != nil {
		return 0, stats, err
	}
	batch = append(batch, rootRecord)
	if next >= int64(element.MaxIndex)+1 {
		return 0, stats, fmt.Errorf("%w: %d records", ErrLogFull, next+1)
	}
	stats.Records = len(batch)

	got, err := log.Append(batch)
	if err != nil {
		return 0, stats, err
	}
	if int64(got) != base {
		return 0, stats, fmt.Errorf("%w: planned at %d, appended at %d", ErrLogMoved, base, got)
	}
	return element.Index(next), stats, nil
}

// collect returns every direct node reachable from root without crossing a
// saved node, tagged with its depth.
func collect(root *trie.Trie) []pending {
	if !root.IsDirect() {
		return nil
	}
	var out []pending
	visited := make(map[*trie.Trie]struct{})
	stack := []pending{{node: root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[p.node]; ok {
			continue
		}
		visited[p.node] = struct{}{}
		out = append(out, p)

		// Direct nodes never need a load.
		elems, _ := p.node.Elements()
		for _, e := range elems {
			if e.Kind() == trie.KindSubTrie && e.Trie().IsDirect() {
				stack = append(stack, pending{node: e.Trie(), depth: p.depth + 1})
			}
		}
	}
	return out
}

func encode(node *trie.Trie, positions map[*trie.Trie]element.Index) ([]element.Record, error) {
	elems, err := node.Elements()
	if err != nil {
		return nil, err
	}
	records := make([]element.Record, len(elems))
	for i, e := range elems {
		if e.Kind() == trie.KindKeyValue {
			records[i] = element.Leaf(e.Key(), e.Value())
			continue
		}
		if records[i], err = reference(e.Trie(), positions); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// reference returns the node reference record for t.
func reference(t *trie.Trie, positions map[*trie.Trie]element.Index) (element.Record, error) {
	if t.Len() == 0 {
		return element.Empty, nil
	}
	if start, ok := t.Saved(); ok {
		return element.Node(start, t.Map()), nil
	}
	start, ok := positions[t]
	if !ok {
		return element.Record{}, fmt.Errorf("commit: child %s has no position", t.Map())
	}
	return element.Node(start, t.Map()), nil
}

func fingerprint(node *trie.Trie, records []element.Record) uint64 {
	buf := make([]byte, 4, 4+len(records)*element.Size)
	binary.BigEndian.PutUint32(buf, uint32(node.Map()))
	for _, r := range records {
		buf = r.AppendBinary(buf)
	}
	return xxhash.Sum64(buf)
}

func lookup(candidates []planned, records []element.Record) (element.Index, bool) {
	for _, c := range candidates {
		if slices.Equal(c.records, records) {
			return c.index, true
		}
	}
	return 0, false
}
