// Package bitmap provides the 32-slot presence map used by every trie node.
//
// An [ElementMap] records which of the 32 possible shard values of a node are
// occupied. Elements of a node are stored densely in ascending shard order,
// so the position of shard k inside the element list is the number of set
// bits below k:
//
//	map   = 0b...0010_0110   (shards 1, 2 and 5 present)
//	rank(5) = popcount(map & (1<<5 - 1)) = 2
//
// All operations are pure and O(1).
package bitmap
