package hamtree

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/hamtree/internal/trie"
)

// Inspection describes which stash records a set of roots reaches. The log
// is never compacted, so records no root reaches stay on disk.
type Inspection struct {
	// Records is the number of records in the stash.
	Records int64
	// Reachable holds every record index reached from any inspected root,
	// including the root references themselves.
	Reachable *roaring.Bitmap
	// Shared holds record indexes reached from more than one root.
	Shared *roaring.Bitmap
	// Leaves holds the indexes of reachable leaf records.
	Leaves *roaring.Bitmap
	// Nodes holds the start index of every reachable element run.
	Nodes *roaring.Bitmap
	// PerRoot holds the reachable records of each inspected root.
	PerRoot map[RootIndex]*roaring.Bitmap
}

// Unreachable returns the record indexes no inspected root reaches. The
// sentinel record at index 0 is excluded.
func (i Inspection) Unreachable() *roaring.Bitmap {
	dead := roaring.New()
	if i.Records > 1 {
		dead.AddRange(1, uint64(i.Records))
	}
	dead.AndNot(i.Reachable)
	return dead
}

// Inspect walks every given root and reports the records each one reaches.
func (f *Forest[K]) Inspect(roots ...RootIndex) (Inspection, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return Inspection{}, ErrClosed
	}

	ins := Inspection{
		Records:   f.stash.Len(),
		Reachable: roaring.New(),
		Shared:    roaring.New(),
		Leaves:    roaring.New(),
		Nodes:     roaring.New(),
		PerRoot:   make(map[RootIndex]*roaring.Bitmap, len(roots)),
	}

	for _, root := range roots {
		if _, ok := ins.PerRoot[root]; ok {
			continue
		}
		t, err := f.load(root)
		if err != nil {
			return Inspection{}, err
		}

		reach := roaring.New()
		reach.Add(uint32(root))
		err = trie.Walk(t, func(node *trie.Trie, _ int) error {
			start, ok := node.Saved()
			if !ok {
				return nil
			}
			ins.Nodes.Add(uint32(start))
			reach.AddRange(uint64(start), uint64(start)+uint64(node.Len()))

			elems, err := node.Elements()
			if err != nil {
				return err
			}
			for i, e := range elems {
				if e.Kind() == trie.KindKeyValue {
					ins.Leaves.Add(uint32(start) + uint32(i))
				}
			}
			return nil
		})
		if err != nil {
			return Inspection{}, translateError(err)
		}

		ins.Shared.Or(roaring.And(ins.Reachable, reach))
		ins.Reachable.Or(reach)
		ins.PerRoot[root] = reach
	}
	return ins, nil
}
