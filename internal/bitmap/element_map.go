package bitmap

import (
	"fmt"

	"github.com/hideo55/go-popcount"
)

// Slots is the number of shard values a single map can address.
const Slots = 32

// ElementMap is a 32-bit presence bitmap. Bit k is set when the node holds an
// element for shard k.
type ElementMap uint32

// FromKey returns a map with exactly bit k set.
func FromKey(k uint8) ElementMap {
	return ElementMap(1) << checkShard(k)
}

// Include returns a copy of m with bit k set.
func (m ElementMap) Include(k uint8) ElementMap {
	return m | FromKey(k)
}

// Has reports whether bit k is set.
func (m ElementMap) Has(k uint8) bool {
	return m&FromKey(k) != 0
}

// InsertionIndex returns the number of set bits below k. It is the position
// an element for shard k occupies in the node's element list.
func (m ElementMap) InsertionIndex(k uint8) int {
	below := m & (FromKey(k) - 1)
	return int(popcount.Count(uint64(below)))
}

// ViewingIndex returns the rank of shard k if it is present.
func (m ElementMap) ViewingIndex(k uint8) (int, bool) {
	if !m.Has(k) {
		return 0, false
	}
	return m.InsertionIndex(k), true
}

// Count returns the number of set bits.
func (m ElementMap) Count() int {
	return int(popcount.Count(uint64(m)))
}

// Shards returns the set shard values in ascending order.
func (m ElementMap) Shards() []uint8 {
	out := make([]uint8, 0, m.Count())
	for k := uint8(0); k < Slots; k++ {
		if m.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (m ElementMap) String() string {
	return fmt.Sprintf("%032b", uint32(m))
}

func checkShard(k uint8) uint8 {
	if k >= Slots {
		panic(fmt.Sprintf("bitmap: shard %d out of range", k))
	}
	return k
}
