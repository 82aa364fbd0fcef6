// Package trie implements the persistent hash array mapped trie.
//
// A [Trie] is one immutable node: an element map plus the elements for the
// set shards in ascending order. Elements are either a key/value leaf or a
// child node one level deeper. Node content is either direct (built in
// memory by a push and not yet saved) or saved (a run of records in the
// element stash, decoded on first access).
//
// # Updates
//
// [Push] copies only the path from the root to the changed slot. Every
// sibling subtree of the old trie is reused as-is, so both the old and the
// new root stay valid:
//
//	old root ── A ── B ── leaf(k1)
//	              └─ C
//	new root ── A' ─ B' ─ node ── leaf(k1)
//	              └─ C          └─ leaf(k2)
//
// When the slot for a new key already holds a different key, the two leaves
// are zipped: a chain of single-child nodes is built for every depth where
// their shards agree, ending in a two-leaf node at the first depth where
// they differ.
//
// # Concurrency
//
// A saved node decodes its records at most once and caches them without
// synchronization. Tries built from the same stash by different goroutines
// are independent; a single Trie value must not be read concurrently
// before its first access.
package trie
