package trie

import (
	"fmt"

	"github.com/hupe1980/hamtree/internal/bitmap"
	"github.com/hupe1980/hamtree/internal/element"
)

// KeyStore is the part of a key store the trie needs.
type KeyStore[K comparable] interface {
	WriteKey(key K) (element.KeyField, error)
	ReadKey(field element.KeyField) (K, error)
	Shard(key K, depth int) uint8
	MaxDepth() int
}

// Find returns the value stored for key.
func Find[K comparable](t *Trie, key K, ks KeyStore[K]) (uint32, bool, error) {
	node := t
	for depth := 0; ; depth++ {
		if depth >= ks.MaxDepth() {
			return 0, false, fmt.Errorf("%w: deeper than %d levels", ErrCorrupt, ks.MaxDepth())
		}
		i, ok := node.m.ViewingIndex(ks.Shard(key, depth))
		if !ok {
			return 0, false, nil
		}
		e, err := node.Get(i)
		if err != nil {
			return 0, false, err
		}
		if e.kind == KindSubTrie {
			node = e.sub
			continue
		}
		stored, err := ks.ReadKey(e.key)
		if err != nil {
			return 0, false, err
		}
		if stored != key {
			return 0, false, nil
		}
		return e.value, true, nil
	}
}

type backTask struct {
	node  *Trie
	index int
}

// Push returns a trie that maps key to value and otherwise equals t. Only
// the nodes from the root to the changed slot are rebuilt. Pushing a value
// the key already has returns t itself.
func Push[K comparable](t *Trie, key K, value uint32, ks KeyStore[K]) (*Trie, error) {
	var (
		back    []backTask
		node    = t
		changed *Trie
	)

	for depth := 0; changed == nil; depth++ {
		if depth >= ks.MaxDepth() {
			return nil, fmt.Errorf("%w: depth %d", ErrNoDivergence, depth)
		}
		shard := ks.Shard(key, depth)
		i, ok := node.m.ViewingIndex(shard)
		if !ok {
			field, err := ks.WriteKey(key)
			if err != nil {
				return nil, err
			}
			if changed, err = node.insert(shard, KeyValue(field, value)); err != nil {
				return nil, err
			}
			break
		}

		e, err := node.Get(i)
		if err != nil {
			return nil, err
		}
		if e.kind == KindSubTrie {
			back = append(back, backTask{node: node, index: i})
			node = e.sub
			continue
		}

		stored, err := ks.ReadKey(e.key)
		if err != nil {
			return nil, err
		}
		if stored == key {
			if e.value == value {
				return t, nil
			}
			if changed, err = node.with(i, KeyValue(e.key, value)); err != nil {
				return nil, err
			}
			break
		}

		field, err := ks.WriteKey(key)
		if err != nil {
			return nil, err
		}
		sub, err := zip(leaf[K]{stored, e}, leaf[K]{key, KeyValue(field, value)}, depth+1, ks)
		if err != nil {
			return nil, err
		}
		if changed, err = node.with(i, SubTrie(sub)); err != nil {
			return nil, err
		}
	}

	for j := len(back) - 1; j >= 0; j-- {
		var err error
		if changed, err = back[j].node.with(back[j].index, SubTrie(changed)); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

type leaf[K comparable] struct {
	key  K
	elem Element
}

// zip builds the subtree holding two leaves whose keys share all shards
// below depth.
func zip[K comparable](a, b leaf[K], depth int, ks KeyStore[K]) (*Trie, error) {
	var chain []uint8
	for d := depth; ; d++ {
		if d >= ks.MaxDepth() {
			return nil, fmt.Errorf("%w: depth %d", ErrNoDivergence, d)
		}
		sa, sb := ks.Shard(a.key, d), ks.Shard(b.key, d)
		if sa == sb {
			chain = append(chain, sa)
			continue
		}

		elems := []Element{a.elem, b.elem}
		if sb < sa {
			elems[0], elems[1] = b.elem, a.elem
		}
		node := NewDirect(bitmap.FromKey(sa).Include(sb), elems)
		for j := len(chain) - 1; j >= 0; j-- {
			node = NewDirect(bitmap.FromKey(chain[j]), []Element{SubTrie(node)})
		}
		return node, nil
	}
}

// Size returns the number of leaves reachable from t.
func Size(t *Trie) (int, error) {
	n := 0
	stack := []*Trie{t}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		elems, err := node.Elements()
		if err != nil {
			return 0, err
		}
		for _, e := range elems {
			if e.kind == KindSubTrie {
				stack = append(stack, e.sub)
			} else {
				n++
			}
		}
	}
	return n, nil
}

// Walk visits every node reachable from t in pre-order, children in shard
// order. Returning a non-nil error from fn stops the walk.
func Walk(t *Trie, fn func(node *Trie, depth int) error) error {
	type frame struct {
		node  *Trie
		depth int
	}
	stack := []frame{{t, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(f.node, f.depth); err != nil {
			return err
		}
		elems, err := f.node.Elements()
		if err != nil {
			return err
		}
		for i := len(elems) - 1; i >= 0; i-- {
			if elems[i].kind == KindSubTrie {
				stack = append(stack, frame{elems[i].sub, f.depth + 1})
			}
		}
	}
	return nil
}

// Each calls fn for every leaf reachable from t in shard order, which is
// ascending key order for both key stores.
func Each(t *Trie, fn func(key element.KeyField, value uint32) error) error {
	type frame struct {
		elems []Element
		next  int
	}
	elems, err := t.Elements()
	if err != nil {
		return err
	}
	stack := []frame{{elems: elems}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.elems) {
			stack = stack[:len(stack)-1]
			continue
		}
		e := top.elems[top.next]
		top.next++
		if e.kind == KindSubTrie {
			sub, err := e.sub.Elements()
			if err != nil {
				return err
			}
			stack = append(stack, frame{elems: sub})
			continue
		}
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}
