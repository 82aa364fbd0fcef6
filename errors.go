package hamtree

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/hamtree/internal/commit"
	"github.com/hupe1980/hamtree/internal/element"
	"github.com/hupe1980/hamtree/internal/keystore"
	"github.com/hupe1980/hamtree/internal/stash"
	"github.com/hupe1980/hamtree/internal/trie"
)

var (
	// ErrNotFound is returned when a forest directory or one of its files is
	// missing.
	ErrNotFound = errors.New("forest not found")
	// ErrAlreadyExists is returned by Create when the directory exists.
	ErrAlreadyExists = errors.New("forest already exists")
	// ErrCorrupt is returned when stored data cannot be decoded.
	ErrCorrupt = errors.New("data corruption detected")
	// ErrReadOnly is returned by Push on a forest opened read-only.
	ErrReadOnly = errors.New("forest is read-only")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("forest is closed")
	// ErrInvalidRoot is returned for a root index that does not name a
	// saved root.
	ErrInvalidRoot = errors.New("invalid root index")
	// ErrKeyOutOfRange is returned for integer keys of 2^31 or more.
	ErrKeyOutOfRange = errors.New("key out of range")
	// ErrKeyTooLong is returned for string keys longer than 65535 bytes.
	ErrKeyTooLong = errors.New("key too long")
	// ErrInvalidKey is returned for string keys that are not valid UTF-8.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyTypeMismatch is returned when a forest is opened with a key type
	// other than the one it was created with.
	ErrKeyTypeMismatch = errors.New("key type mismatch")
	// ErrFull is returned when a file has run out of addressable records.
	ErrFull = errors.New("forest is full")
)

// CorruptError describes a decode or integrity failure.
//
// errors.Is(err, ErrCorrupt) holds for every CorruptError. The underlying
// error can be accessed via errors.Unwrap.
type CorruptError struct {
	Path  string
	cause error
}

func (e *CorruptError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", ErrCorrupt, e.cause)
	}
	return fmt.Sprintf("%s in %s: %v", ErrCorrupt, e.Path, e.cause)
}

func (e *CorruptError) Unwrap() error { return e.cause }

// Is reports whether target is ErrCorrupt.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// ErrInvalidRootIndex reports which root was rejected.
type ErrInvalidRootIndex struct {
	Root  RootIndex
	Len   int64
	cause error
}

func (e *ErrInvalidRootIndex) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %d: %v", ErrInvalidRoot, e.Root, e.cause)
	}
	return fmt.Sprintf("%s: %d (stash holds %d records)", ErrInvalidRoot, e.Root, e.Len)
}

func (e *ErrInvalidRootIndex) Unwrap() error { return e.cause }

// Is reports whether target is ErrInvalidRoot.
func (e *ErrInvalidRootIndex) Is(target error) bool { return target == ErrInvalidRoot }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, stash.ErrCorrupt),
		errors.Is(err, stash.ErrOutOfRange),
		errors.Is(err, trie.ErrCorrupt),
		errors.Is(err, keystore.ErrCorrupt),
		errors.Is(err, element.ErrShortRecord):
		var ce *CorruptError
		if errors.As(err, &ce) {
			return err
		}
		return &CorruptError{cause: err}
	case errors.Is(err, keystore.ErrKeyOutOfRange):
		return fmt.Errorf("%w: %w", ErrKeyOutOfRange, err)
	case errors.Is(err, keystore.ErrKeyTooLong):
		return fmt.Errorf("%w: %w", ErrKeyTooLong, err)
	case errors.Is(err, keystore.ErrInvalidKey):
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	case errors.Is(err, stash.ErrReadOnly), errors.Is(err, keystore.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	case errors.Is(err, stash.ErrClosed), errors.Is(err, keystore.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, stash.ErrFull), errors.Is(err, commit.ErrLogFull), errors.Is(err, keystore.ErrStoreFull):
		return fmt.Errorf("%w: %w", ErrFull, err)
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
