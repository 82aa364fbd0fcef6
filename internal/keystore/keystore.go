package keystore

import (
	"errors"

	"github.com/hupe1980/hamtree/internal/element"
)

var (
	// ErrKeyOutOfRange is returned for integer keys that need the tag bit.
	ErrKeyOutOfRange = errors.New("keystore: key out of range")
	// ErrKeyTooLong is returned for string keys longer than MaxStringLen bytes.
	ErrKeyTooLong = errors.New("keystore: key too long")
	// ErrInvalidKey is returned for string keys that are not valid UTF-8.
	ErrInvalidKey = errors.New("keystore: key is not valid UTF-8")
	// ErrCorrupt is returned when a stored key cannot be decoded.
	ErrCorrupt = errors.New("keystore: corrupt key record")
	// ErrStoreFull is returned when a key offset would need the tag bit.
	ErrStoreFull = errors.New("keystore: store full")
	// ErrReadOnly is returned by WriteKey on a read-only store.
	ErrReadOnly = errors.New("keystore: read-only")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("keystore: closed")
)

// Store converts between domain keys and key tokens.
type Store[K comparable] interface {
	// WriteKey returns the token for key, persisting it if needed.
	WriteKey(key K) (element.KeyField, error)
	// ReadKey resolves a token back into the key.
	ReadKey(field element.KeyField) (K, error)
	// Shard returns the shard of key at depth. Shards are below 32.
	Shard(key K, depth int) uint8
	// MaxDepth bounds the depth at which two distinct keys must have
	// diverged.
	MaxDepth() int
	Close() error
}
