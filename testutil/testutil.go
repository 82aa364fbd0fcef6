package testutil

import (
	"cmp"
	"math/rand"
	"slices"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
)

// MaxKey is the largest uint32 key a forest accepts.
const MaxKey = 1<<31 - 1

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand  *rand.Rand
	faker *gofakeit.Faker
	seed  int64
	mu    sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand:  rand.New(rand.NewSource(seed)),
		faker: gofakeit.New(seed),
		seed:  seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
	r.faker = gofakeit.New(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint32 returns a pseudo-random uint32.
func (r *RNG) Uint32() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint32()
}

// Uint32Keys returns n distinct keys in [0, max], in random order.
// It panics if the range cannot hold n keys.
func (r *RNG) Uint32Keys(n int, max uint32) []uint32 {
	if uint64(n) > uint64(max)+1 {
		panic("testutil: key range too small")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uint32]struct{}, n)
	keys := make([]uint32, 0, n)
	for len(keys) < n {
		k := uint32(r.rand.Int63n(int64(max) + 1))
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// StringKeys returns n distinct words. Roughly one in eight carries a
// non-ASCII suffix so multi-byte encodings are exercised.
func (r *RNG) StringKeys(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, n)
	keys := make([]string, 0, n)
	for len(keys) < n {
		k := r.faker.Word()
		if r.rand.Intn(8) == 0 {
			k += "ß"
		}
		if r.rand.Intn(4) == 0 {
			k += r.faker.Numerify("###")
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Shuffle randomizes the order of s in place.
func Shuffle[T any](r *RNG, s []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}

// Entry is a key/value pair.
type Entry[K cmp.Ordered] struct {
	Key   K
	Value uint32
}

// Model is an in-memory reference map that forests are checked against.
type Model[K cmp.Ordered] struct {
	m map[K]uint32
}

// NewModel returns an empty model.
func NewModel[K cmp.Ordered]() *Model[K] {
	return &Model[K]{m: make(map[K]uint32)}
}

// Set stores value under key.
func (m *Model[K]) Set(key K, value uint32) { m.m[key] = value }

// Get returns the value stored under key.
func (m *Model[K]) Get(key K) (uint32, bool) {
	v, ok := m.m[key]
	return v, ok
}

// Len returns the number of keys.
func (m *Model[K]) Len() int { return len(m.m) }

// Clone returns an independent copy, used to snapshot a version.
func (m *Model[K]) Clone() *Model[K] {
	c := NewModel[K]()
	for k, v := range m.m {
		c.m[k] = v
	}
	return c
}

// Entries returns all pairs sorted by key.
func (m *Model[K]) Entries() []Entry[K] {
	out := make([]Entry[K], 0, len(m.m))
	for k, v := range m.m {
		out = append(out, Entry[K]{Key: k, Value: v})
	}
	slices.SortFunc(out, func(a, b Entry[K]) int { return cmp.Compare(a.Key, b.Key) })
	return out
}
