// Package commit persists the in-memory part of a trie to the element stash.
//
// [Save] walks the new root without entering subtrees that are already
// saved, orders the collected nodes deepest first so every child run is
// written before the parent that references it, drops nodes whose content
// was already planned during the same save, and appends everything as one
// batch. The final record of the batch is a node reference to the root; its
// index names the new version.
//
// Content is matched with an xxhash fingerprint over the element map and the
// encoded records, and confirmed record by record. The table only lives for
// one call.
package commit
