package keystore

import (
	"fmt"

	"github.com/hupe1980/hamtree/internal/element"
)

// uint32Shifts lists the shift for each depth of a 7-level cycle.
var uint32Shifts = [7]uint8{30, 25, 20, 15, 10, 5, 0}

// Uint32Store is the identity store for integer keys.
type Uint32Store struct{}

var _ Store[uint32] = Uint32Store{}

// WriteKey returns key as its own token.
func (Uint32Store) WriteKey(key uint32) (element.KeyField, error) {
	f, err := element.NewKeyField(key)
	if err != nil {
		return 0, fmt.Errorf("%w: %d", ErrKeyOutOfRange, key)
	}
	return f, nil
}

// ReadKey returns the token as the key.
func (Uint32Store) ReadKey(field element.KeyField) (uint32, error) {
	return uint32(field), nil
}

// Shard extracts 5 bits of key for depth.
func (Uint32Store) Shard(key uint32, depth int) uint8 {
	return uint8((key >> uint32Shifts[depth%len(uint32Shifts)]) & 0x1f)
}

// MaxDepth returns the length of one shift cycle.
func (Uint32Store) MaxDepth() int { return len(uint32Shifts) }

// Close is a no-op.
func (Uint32Store) Close() error { return nil }
