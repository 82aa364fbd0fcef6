// Package keystore maps domain keys to the 31-bit key tokens stored inside
// trie leaves, and derives the shard used at each trie depth.
//
// Two stores exist:
//
//   - [Uint32Store] uses the key itself as its token. Keys must be below
//     2^31 because the top bit of a leaf's first field is the leaf tag.
//   - [StringStore] appends each key to keys.stash as
//     [u16 big-endian length][UTF-8 bytes] and uses the byte offset of the
//     record as its token.
//
// Integer shards take 5 bits at shifts 30, 25, 20, 15, 10, 5 and 0, cycling
// every 7 levels, so two distinct keys always diverge within 7 levels.
// String shards take one nibble per level, high nibble first, shifted up by
// one. Past the end of a string the shard is [EndOfKey] (0), which lets a
// key coexist with the longer keys it prefixes and keeps shard order equal
// to byte-wise key order.
package keystore
