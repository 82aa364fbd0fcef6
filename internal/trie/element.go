package trie

import (
	"fmt"

	"github.com/hupe1980/hamtree/internal/element"
)

// Kind discriminates the variants of Element.
type Kind uint8

const (
	// KindKeyValue is a leaf holding a key token and a value.
	KindKeyValue Kind = iota
	// KindSubTrie is a child node.
	KindSubTrie
)

func (k Kind) String() string {
	switch k {
	case KindKeyValue:
		return "key-value"
	case KindSubTrie:
		return "sub-trie"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Element is one slot of a node.
type Element struct {
	kind  Kind
	key   element.KeyField
	value uint32
	sub   *Trie
}

// KeyValue returns a leaf element.
func KeyValue(key element.KeyField, value uint32) Element {
	return Element{kind: KindKeyValue, key: key, value: value}
}

// SubTrie returns a child element.
func SubTrie(t *Trie) Element {
	return Element{kind: KindSubTrie, sub: t}
}

// Kind returns the variant of e.
func (e Element) Kind() Kind { return e.kind }

// Key returns the key token of a leaf.
func (e Element) Key() element.KeyField { return e.key }

// Value returns the value of a leaf.
func (e Element) Value() uint32 { return e.value }

// Trie returns the child of a sub-trie element.
func (e Element) Trie() *Trie { return e.sub }

func (e Element) String() string {
	if e.kind == KindKeyValue {
		return fmt.Sprintf("%d=%d", e.key, e.value)
	}
	return fmt.Sprintf("sub(%s)", e.sub.Map())
}
