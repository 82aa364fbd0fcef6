// Package hamtree is an embedded, append-only key-value store built on a
// persistent hash array mapped trie.
//
// A forest directory holds many immutable versions of a trie. Every push
// returns a new [RootIndex]; older roots stay valid and share every subtree
// the push did not touch.
//
// # Quick Start
//
//	if err := hamtree.Create[uint32]("./data"); err != nil { ... }
//	f, _ := hamtree.Open[uint32]("./data")
//	defer f.Close()
//
//	root, _ := f.AddRoot()
//	v1, _ := f.Push(root, 42, 1)
//	v2, _ := f.Push(v1, 42, 2)
//
//	val, ok, _ := f.Find(v1, 42) // 1, true
//	val, ok, _ = f.Find(v2, 42)  // 2, true
//
// String keys work the same way with Create[string] and Open[string].
//
// # On-Disk Layout
//
//	dir/
//	  elements.stash   8-byte records, record i at offset i*8
//	  keys.stash       string forests only: [u16 length][UTF-8 bytes]...
//
// Record 0 of elements.stash is the empty-root sentinel. A record whose first
// field has its top bit set is a leaf (key token, value). Any other record
// references a child node (start index of its element run, element map).
// Integer keys are their own token and therefore must be below 2^31; string
// keys use their offset in keys.stash.
//
// # Durability Model
//
// A push writes all new nodes and the new root reference with a single
// append. A failed append is truncated away, so a crash or I/O error never
// leaves a partial version behind. With [DurabilitySync] every push is
// fsynced before it returns.
//
// Nothing is ever removed from the stash. [Forest.Inspect] reports how many
// records a set of roots still reaches.
//
// # Concurrency
//
// One process writes a forest. Within that process a [Forest] may be used
// from several goroutines: pushes are serialized and lookups run in
// parallel. A forest opened with [WithReadOnly] picks up roots appended by
// the writer as soon as they are named.
package hamtree
