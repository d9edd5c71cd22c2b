// Copyright 2025 The lispmap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package radix implements a Patricia trie over IP prefixes of one address
// family.
//
// Besides exact and longest prefix match the trie answers the structural
// queries needed to maintain negative mappings: the stored sibling and parent
// of a prefix, and the widest prefix around an address that holds no stored
// entry.
//
// The trie has a zero-length virtual root. Inner nodes are either stored
// prefixes or virtual branch points; a virtual node always has two children.
// The trie is not safe for concurrent use.
package radix

import (
	"encoding/binary"
	"math/bits"
	"net/netip"
)

// Trie is a radix trie mapping prefixes to values of type T.
type Trie[T any] struct {
	is4  bool
	root *node[T]
	size int
}

type node[T any] struct {
	// bit is the prefix length of the node, which is also the index of the
	// bit that selects the child.
	bit    int
	prefix netip.Prefix
	stored bool
	value  T

	left, right, up *node[T]
}

// New4 returns an empty IPv4 trie.
func New4[T any]() *Trie[T] { return newTrie[T](true) }

// New6 returns an empty IPv6 trie.
func New6[T any]() *Trie[T] { return newTrie[T](false) }

func newTrie[T any](is4 bool) *Trie[T] {
	t := &Trie[T]{is4: is4}
	t.root = t.newRoot()
	return t
}

func (t *Trie[T]) newRoot() *node[T] {
	addr := netip.IPv6Unspecified()
	if t.is4 {
		addr = netip.IPv4Unspecified()
	}
	return &node[T]{prefix: netip.PrefixFrom(addr, 0)}
}

// Len returns the number of stored prefixes.
func (t *Trie[T]) Len() int { return t.size }

func (t *Trie[T]) valid(p netip.Prefix) bool {
	return p.IsValid() && p.Addr().Is4() == t.is4 && !p.Addr().Is4In6()
}

// Insert stores v under p, replacing the value of an existing entry. It
// returns false if p has the wrong address family.
func (t *Trie[T]) Insert(p netip.Prefix, v T) bool {
	if !t.valid(p) {
		return false
	}
	p = p.Masked()
	closest := t.root.findClosest(p, false)
	diff := closest.firstDifferentBit(p)
	t.size += closest.parentWithBitLessThan(diff).insert(p, diff, v)
	return true
}

// Remove deletes p. It returns whether p was stored.
func (t *Trie[T]) Remove(p netip.Prefix) bool {
	n := t.lookupExact(p)
	if n == nil {
		return false
	}
	n.erase()
	t.size--
	return true
}

// Clear removes all entries.
func (t *Trie[T]) Clear() {
	t.root = t.newRoot()
	t.size = 0
}

// Lookup returns the value stored exactly under p.
func (t *Trie[T]) Lookup(p netip.Prefix) (T, bool) {
	n := t.lookupExact(p)
	if n == nil {
		var zero T
		return zero, false
	}
	return n.value, true
}

// LookupBest returns the longest stored prefix that covers p.
func (t *Trie[T]) LookupBest(p netip.Prefix) (netip.Prefix, T, bool) {
	return result(t.lookupBest(p))
}

// LookupCoveringLessSpecific returns the longest stored prefix that covers p
// and is strictly shorter than p.
func (t *Trie[T]) LookupCoveringLessSpecific(p netip.Prefix) (netip.Prefix, T, bool) {
	if !t.valid(p) {
		return result[T](nil)
	}
	p = p.Masked()
	var best *node[T]
	for n := t.root; n != nil && n.bit < p.Bits(); n = n.child(p.Addr()) {
		if n.stored && n.prefix.Contains(p.Addr()) {
			best = n
		}
	}
	return result(best)
}

// LookupParent returns the closest stored ancestor of the longest prefix
// match of p.
func (t *Trie[T]) LookupParent(p netip.Prefix) (netip.Prefix, T, bool) {
	n := t.lookupBest(p)
	if n == nil {
		return result[T](nil)
	}
	return result(n.storedAncestor())
}

// LookupSibling returns the sibling of the longest prefix match of p if the
// sibling is a stored prefix.
func (t *Trie[T]) LookupSibling(p netip.Prefix) (netip.Prefix, T, bool) {
	n := t.lookupBest(p)
	if n == nil {
		return result[T](nil)
	}
	if sib := n.sibling(); sib != nil && sib.stored {
		return result(sib)
	}
	return result[T](nil)
}

// LookupVirtualParentSibling returns the sibling of the parent of the longest
// prefix match of p, if that parent is a virtual node and the sibling is a
// stored prefix.
func (t *Trie[T]) LookupVirtualParentSibling(p netip.Prefix) (netip.Prefix, T, bool) {
	n := t.lookupBest(p)
	if n == nil || n.up == nil || n.up.stored {
		return result[T](nil)
	}
	if sib := n.up.sibling(); sib != nil && sib.stored {
		return result(sib)
	}
	return result[T](nil)
}

// LookupWidestNegative returns the widest prefix containing p that does not
// overlap the closest stored prefix on p's path. It returns false if that
// stored prefix covers p, or if p itself covers it. An empty trie yields the
// zero-length prefix.
func (t *Trie[T]) LookupWidestNegative(p netip.Prefix) (netip.Prefix, bool) {
	if !t.valid(p) {
		return netip.Prefix{}, false
	}
	p = p.Masked()
	if t.size == 0 {
		return t.root.prefix, true
	}
	closest := t.root.findClosest(p, false)
	if closest.stored && closest.bit <= p.Bits() && closest.prefix.Contains(p.Addr()) {
		return netip.Prefix{}, false
	}
	diff := closest.firstDifferentBit(p)
	if diff >= p.Bits() {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(p.Addr(), diff+1).Masked(), true
}

// LookupBranch returns p masked to one bit past the first bit in which p
// differs from the closest stored prefix on its path, capped at the length of
// p. When that prefix covers p, the result is the half of it that holds p.
func (t *Trie[T]) LookupBranch(p netip.Prefix) (netip.Prefix, bool) {
	if !t.valid(p) || t.size == 0 {
		return netip.Prefix{}, false
	}
	p = p.Masked()
	closest := t.root.findClosest(p, false)
	l := closest.firstDifferentBit(p) + 1
	if l > p.Bits() {
		l = p.Bits()
	}
	return netip.PrefixFrom(p.Addr(), l).Masked(), true
}

// LookupSubtree calls fn for every stored prefix that p covers, p included,
// in address order. Iteration stops when fn returns false.
func (t *Trie[T]) LookupSubtree(p netip.Prefix, fn func(netip.Prefix, T) bool) {
	if !t.valid(p) {
		return
	}
	p = p.Masked()
	n := t.root.findClosest(p, true)
	if n.bit < p.Bits() || !p.Contains(n.prefix.Addr()) {
		return
	}
	n.walk(fn)
}

// Walk calls fn for every stored prefix in address order, shorter prefixes
// before the longer prefixes they cover. Iteration stops when fn returns
// false.
func (t *Trie[T]) Walk(fn func(netip.Prefix, T) bool) {
	t.root.walk(fn)
}

func (t *Trie[T]) lookupExact(p netip.Prefix) *node[T] {
	if !t.valid(p) {
		return nil
	}
	p = p.Masked()
	n := t.root.findClosest(p, false)
	if !n.stored || n.prefix != p {
		return nil
	}
	return n
}

func (t *Trie[T]) lookupBest(p netip.Prefix) *node[T] {
	if !t.valid(p) {
		return nil
	}
	p = p.Masked()
	var candidates []*node[T]
	n := t.root
	for n != nil && n.bit < p.Bits() {
		if n.stored {
			candidates = append(candidates, n)
		}
		n = n.child(p.Addr())
	}
	if n != nil && n.stored {
		candidates = append(candidates, n)
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		if c.bit <= p.Bits() && c.prefix.Contains(p.Addr()) {
			return c
		}
	}
	return nil
}

func result[T any](n *node[T]) (netip.Prefix, T, bool) {
	if n == nil {
		var zero T
		return netip.Prefix{}, zero, false
	}
	return n.prefix, n.value, true
}

// findClosest descends along p's bits. Without virtual it does not stop on
// virtual nodes.
func (n *node[T]) findClosest(p netip.Prefix, virtual bool) *node[T] {
	for (!virtual && !n.stored) || n.bit < p.Bits() {
		next := n.child(p.Addr())
		if next == nil {
			break
		}
		n = next
	}
	return n
}

func (n *node[T]) child(addr netip.Addr) *node[T] {
	if bitAt(addr, n.bit) {
		return n.right
	}
	return n.left
}

// firstDifferentBit returns the index of the first bit in which p differs from
// the node prefix, at most min(n.bit, p.Bits()).
func (n *node[T]) firstDifferentBit(p netip.Prefix) int {
	limit := n.bit
	if p.Bits() < limit {
		limit = p.Bits()
	}
	d := commonBits(n.prefix.Addr(), p.Addr())
	if d > limit {
		return limit
	}
	return d
}

func (n *node[T]) parentWithBitLessThan(bit int) *node[T] {
	for n.up != nil && n.up.bit >= bit {
		n = n.up
	}
	return n
}

func (n *node[T]) sibling() *node[T] {
	if n.up == nil {
		return nil
	}
	if n.up.left == n {
		return n.up.right
	}
	return n.up.left
}

func (n *node[T]) storedAncestor() *node[T] {
	a := n.up
	for a != nil && !a.stored {
		a = a.up
	}
	return a
}

func (n *node[T]) replaceChild(old, repl *node[T]) {
	if n.left == old {
		n.left = repl
	} else {
		n.right = repl
	}
}

// insert places p next to n, where diff is the first bit in which p differs
// from the closest node below n. It returns the number of new stored
// prefixes.
func (n *node[T]) insert(p netip.Prefix, diff int, v T) int {
	plen := p.Bits()
	if diff == plen && n.bit == plen {
		n.value = v
		if n.stored {
			return 0
		}
		n.stored = true
		return 1
	}
	nn := &node[T]{bit: plen, prefix: p, stored: true, value: v}
	switch {
	case plen == diff:
		// p covers n, it becomes n's parent.
		if bitAt(n.prefix.Addr(), plen) {
			nn.right = n
		} else {
			nn.left = n
		}
		nn.up = n.up
		n.up.replaceChild(n, nn)
		n.up = nn
	case n.bit == diff:
		// n covers p, p becomes a child of n.
		nn.up = n
		if bitAt(p.Addr(), n.bit) {
			n.right = nn
		} else {
			n.left = nn
		}
	default:
		// p and n branch at diff, they get a virtual common parent.
		parent := &node[T]{
			bit:    diff,
			prefix: netip.PrefixFrom(p.Addr(), diff).Masked(),
			up:     n.up,
		}
		if bitAt(p.Addr(), diff) {
			parent.right, parent.left = nn, n
		} else {
			parent.right, parent.left = n, nn
		}
		nn.up = parent
		n.up.replaceChild(n, parent)
		n.up = parent
	}
	return 1
}

// erase unstores n and splices out virtual nodes left with fewer than two
// children. The root is never removed.
func (n *node[T]) erase() {
	var zero T
	n.stored, n.value = false, zero
	cur := n
	for cur.up != nil && !cur.stored && (cur.left == nil || cur.right == nil) {
		parent := cur.up
		child := cur.left
		if child == nil {
			child = cur.right
		}
		parent.replaceChild(cur, child)
		if child != nil {
			child.up = parent
		}
		cur.up, cur.left, cur.right = nil, nil, nil
		cur = parent
	}
}

// walk visits the stored nodes of the subtree in pre-order.
func (n *node[T]) walk(fn func(netip.Prefix, T) bool) bool {
	if n == nil {
		return true
	}
	if n.stored && !fn(n.prefix, n.value) {
		return false
	}
	return n.left.walk(fn) && n.right.walk(fn)
}

// bitAt returns bit i of addr counted from the most significant bit.
func bitAt(addr netip.Addr, i int) bool {
	b := addr.As16()
	if addr.Is4() {
		i += 96
	}
	return b[i/8]&(0x80>>(i%8)) != 0
}

// commonBits returns the length of the common leading bits of two addresses
// of the same family.
func commonBits(a, b netip.Addr) int {
	a16, b16 := a.As16(), b.As16()
	off := 0
	if a.Is4() {
		off = 96
	}
	hi := binary.BigEndian.Uint64(a16[:8]) ^ binary.BigEndian.Uint64(b16[:8])
	if hi != 0 {
		return bits.LeadingZeros64(hi) - off
	}
	lo := binary.BigEndian.Uint64(a16[8:]) ^ binary.BigEndian.Uint64(b16[8:])
	return 64 + bits.LeadingZeros64(lo) - off
}
