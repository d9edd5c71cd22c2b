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

// Package mapcache implements the origin map-caches of the mapping system.
//
// A Cache stores mapping data per virtual network and answers longest prefix
// match lookups. Each key also carries a small set of typed side channels:
// subscribers, the timeout wheel bucket of a registration and the source
// locators of merged registrations. The RegistrationCache additionally stores
// the per xTR-ID records that are merged into the main record.
//
// Source/dest keys are stored under their destination prefix. The destination
// row owns a nested table keyed by source prefix, so a lookup matches the
// destination first and then narrows by source.
//
// Data passed to and returned from a cache is shared. Callers must not modify
// it after handing it over.
package mapcache

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
)

// Cache is a per VNI longest prefix match store of mapping data. It is safe
// for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	origin mapping.Origin
	vnis   map[uint32]*table
}

// New returns an empty cache for the given origin.
func New(origin mapping.Origin) *Cache {
	return &Cache{origin: origin, vnis: make(map[uint32]*table)}
}

// Origin returns the origin the cache stores.
func (c *Cache) Origin() mapping.Origin { return c.origin }

// slot locates the table and the key under which key is stored. With create
// unset it returns a nil table when the path does not exist.
func (c *Cache) slot(key eid.Eid, create bool) (*table, eid.Eid, func()) {
	t := c.vnis[key.VNI()]
	if t == nil {
		if !create {
			return nil, eid.Eid{}, nil
		}
		t = newTable()
		c.vnis[key.VNI()] = t
	}
	if key.Kind() != eid.KindSourceDest {
		return t, eid.AsPrefix(key), func() {}
	}
	dk := eid.Dst(key)
	de := t.exact(dk)
	if de == nil || de.src == nil {
		if !create {
			return nil, eid.Eid{}, nil
		}
		de = t.getOrCreate(dk, dk)
		if de.src == nil {
			de.src = newTable()
		}
	}
	return de.src, eid.Src(key), func() { t.sync(dk, de) }
}

// update applies fn to the entry of key, creating it if needed, and updates
// the indexes afterwards.
func (c *Cache) update(key eid.Eid, fn func(e *entry)) {
	key = eid.Normalize(key)
	t, slot, done := c.slot(key, true)
	e := t.getOrCreate(slot, fullKey(key))
	fn(e)
	t.sync(slot, e)
	done()
}

// modify is like update but does nothing if the entry does not exist.
func (c *Cache) modify(key eid.Eid, fn func(e *entry)) {
	key = eid.Normalize(key)
	t, slot, done := c.slot(key, false)
	if t == nil {
		return
	}
	e := t.exact(slot)
	if e == nil {
		return
	}
	fn(e)
	t.sync(slot, e)
	done()
}

func (c *Cache) exact(key eid.Eid) *entry {
	key = eid.Normalize(key)
	t, slot, _ := c.slot(key, false)
	if t == nil {
		return nil
	}
	return t.exact(slot)
}

func fullKey(key eid.Eid) eid.Eid {
	if key.Kind() == eid.KindSourceDest {
		return key
	}
	return eid.AsPrefix(key)
}

// lookup returns the entry answering a request from src for dst. The
// destination is matched first. If the destination row has source specific
// rows, the longest source match with data wins and the destination row is
// the fallback.
func (c *Cache) lookup(src, dst eid.Eid) *entry {
	if dst.Kind() == eid.KindSourceDest {
		src, dst = eid.Src(dst), eid.Dst(dst)
	}
	dst = eid.AsPrefix(eid.Normalize(dst))
	t := c.vnis[dst.VNI()]
	if t == nil {
		return nil
	}
	de := t.best(dst)
	if de == nil {
		return nil
	}
	if de.src != nil && eid.IsIP(src) {
		s := eid.AsPrefix(eid.Normalize(src)).WithVNI(dst.VNI())
		if se := de.src.best(s); se != nil && se.data != nil {
			return se
		}
	}
	return de
}

// AddMapping stores data under key, replacing the previous mapping.
func (c *Cache) AddMapping(key eid.Eid, data *mapping.Data) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(key, func(e *entry) { e.data = data })
}

// GetMapping returns the longest prefix match for dst, narrowed by src for
// source/dest entries. src may be the zero Eid.
func (c *Cache) GetMapping(src, dst eid.Eid) *mapping.Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.lookup(src, dst); e != nil {
		return e.data
	}
	return nil
}

// Lookup is like GetMapping but also returns the key the mapping is stored
// under.
func (c *Cache) Lookup(src, dst eid.Eid) (eid.Eid, *mapping.Data) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.lookup(src, dst)
	if e == nil || e.data == nil {
		return eid.Eid{}, nil
	}
	return e.key, e.data
}

// GetExact returns the mapping stored exactly under key.
func (c *Cache) GetExact(key eid.Eid) *mapping.Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.exact(key); e != nil {
		return e.data
	}
	return nil
}

// RemoveMapping removes the mapping stored under key. Side data stays.
func (c *Cache) RemoveMapping(key eid.Eid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modify(key, func(e *entry) { e.data = nil })
}

// RemoveEntry removes the mapping and all side data of key.
func (c *Cache) RemoveEntry(key eid.Eid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modify(key, func(e *entry) {
		src := e.src
		*e = entry{key: e.key, src: src}
	})
}

// prefixQuery runs a trie query for the destination of key.
func (c *Cache) prefixQuery(key eid.Eid,
	q func(t *table, k eid.Eid) (netip.Prefix, bool)) (eid.Eid, bool) {

	k := eid.AsPrefix(eid.Normalize(eid.Dst(key)))
	if !eid.IsMaskable(k) {
		return eid.Eid{}, false
	}
	t := c.vnis[k.VNI()]
	if t == nil {
		t = newTable()
	}
	p, ok := q(t, k)
	if !ok {
		return eid.Eid{}, false
	}
	return eid.NewPrefix(k.VNI(), p), true
}

// GetWidestNegativeMapping returns the widest prefix around key that the
// cache holds no entry for. It returns false if a stored prefix covers key.
// An empty cache yields the zero-length prefix. Source/dest keys are answered
// for their destination.
func (c *Cache) GetWidestNegativeMapping(key eid.Eid) (eid.Eid, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixQuery(key, func(t *table, k eid.Eid) (netip.Prefix, bool) {
		return t.trie(k).LookupWidestNegative(k.Prefix())
	})
}

// GetBranch returns key masked one bit past its first difference from the
// closest stored prefix on its path.
func (c *Cache) GetBranch(key eid.Eid) (eid.Eid, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixQuery(key, func(t *table, k eid.Eid) (netip.Prefix, bool) {
		return t.trie(k).LookupBranch(k.Prefix())
	})
}

func trieResult(p netip.Prefix, _ *entry, ok bool) (netip.Prefix, bool) {
	return p, ok
}

// GetSiblingPrefix returns the stored sibling of the longest match of key.
func (c *Cache) GetSiblingPrefix(key eid.Eid) (eid.Eid, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixQuery(key, func(t *table, k eid.Eid) (netip.Prefix, bool) {
		return trieResult(t.trie(k).LookupSibling(k.Prefix()))
	})
}

// GetVirtualParentSiblingPrefix returns the stored sibling of the parent of
// the longest match of key, if that parent is only a branch point.
func (c *Cache) GetVirtualParentSiblingPrefix(key eid.Eid) (eid.Eid, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixQuery(key, func(t *table, k eid.Eid) (netip.Prefix, bool) {
		return trieResult(t.trie(k).LookupVirtualParentSibling(k.Prefix()))
	})
}

// GetParentPrefix returns the closest stored prefix covering the longest
// match of key.
func (c *Cache) GetParentPrefix(key eid.Eid) (eid.Eid, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixQuery(key, func(t *table, k eid.Eid) (netip.Prefix, bool) {
		return trieResult(t.trie(k).LookupParent(k.Prefix()))
	})
}

// GetCoveringLessSpecific returns the longest stored prefix strictly covering
// key.
func (c *Cache) GetCoveringLessSpecific(key eid.Eid) (eid.Eid, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixQuery(key, func(t *table, k eid.Eid) (netip.Prefix, bool) {
		return trieResult(t.trie(k).LookupCoveringLessSpecific(k.Prefix()))
	})
}

// GetSubtree returns the stored prefixes covered by key, key included, in
// address order.
func (c *Cache) GetSubtree(key eid.Eid) []eid.Eid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k := eid.AsPrefix(eid.Normalize(eid.Dst(key)))
	t := c.vnis[k.VNI()]
	if t == nil || !eid.IsMaskable(k) {
		return nil
	}
	var out []eid.Eid
	t.trie(k).LookupSubtree(k.Prefix(), func(p netip.Prefix, _ *entry) bool {
		out = append(out, eid.NewPrefix(k.VNI(), p))
		return true
	})
	return out
}

// AddSubscriber adds or refreshes a subscriber of key.
func (c *Cache) AddSubscriber(key eid.Eid, sub mapping.Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(key, func(e *entry) {
		if e.subscribers == nil {
			e.subscribers = make(map[mapping.SubscriberKey]mapping.Subscriber)
		}
		e.subscribers[sub.Key()] = sub
	})
}

// Subscribers returns the subscribers of key ordered by identity.
func (c *Cache) Subscribers(key eid.Eid) []mapping.Subscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.exact(key)
	if e == nil || len(e.subscribers) == 0 {
		return nil
	}
	subs := make([]mapping.Subscriber, 0, len(e.subscribers))
	for _, s := range e.subscribers {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool {
		if d := subs[i].SrcRloc.Compare(subs[j].SrcRloc); d != 0 {
			return d < 0
		}
		return eid.Compare(subs[i].SrcEid, subs[j].SrcEid) < 0
	})
	return subs
}

// SubscriptionsWithin returns the keys covered by key, key excluded, that
// hold subscribers but no mapping. Such keys are left behind by replies that
// were narrowed below the stored prefixes.
func (c *Cache) SubscriptionsWithin(key eid.Eid) []eid.Eid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k := eid.AsPrefix(eid.Normalize(eid.Dst(key)))
	t := c.vnis[k.VNI()]
	if t == nil || !eid.IsIP(k) {
		return nil
	}
	var out []eid.Eid
	for slot, e := range t.entries {
		if slot == k || e.routable() || len(e.subscribers) == 0 {
			continue
		}
		if eid.IsIP(slot) && eid.Covers(k, slot) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return eid.Compare(out[i], out[j]) < 0 })
	return out
}

// RemoveSubscriber removes one subscriber of key.
func (c *Cache) RemoveSubscriber(key eid.Eid, sub mapping.SubscriberKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modify(key, func(e *entry) { delete(e.subscribers, sub) })
}

// RemoveSubscribers removes all subscribers of key.
func (c *Cache) RemoveSubscribers(key eid.Eid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modify(key, func(e *entry) { e.subscribers = nil })
}

// BucketID returns the timeout wheel bucket of key.
func (c *Cache) BucketID(key eid.Eid) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.exact(key)
	if e == nil || !e.hasBucket {
		return 0, false
	}
	return e.bucketID, true
}

// SetBucketID records the timeout wheel bucket of key.
func (c *Cache) SetBucketID(key eid.Eid, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(key, func(e *entry) { e.bucketID, e.hasBucket = id, true })
}

// ClearBucketID forgets the timeout wheel bucket of key.
func (c *Cache) ClearBucketID(key eid.Eid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modify(key, func(e *entry) { e.bucketID, e.hasBucket = 0, false })
}

// SourceRlocs returns the source locators recorded for key.
func (c *Cache) SourceRlocs(key eid.Eid) []netip.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.exact(key)
	if e == nil {
		return nil
	}
	return append([]netip.Addr(nil), e.sourceRlocs...)
}

// SetSourceRlocs replaces the source locators of key. They are kept sorted
// and unique.
func (c *Cache) SetSourceRlocs(key eid.Eid, rlocs []netip.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sorted := append([]netip.Addr(nil), rlocs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	uniq := sorted[:0]
	for i, a := range sorted {
		if i == 0 || a != sorted[i-1] {
			uniq = append(uniq, a)
		}
	}
	c.update(key, func(e *entry) { e.sourceRlocs = uniq })
}

// Walk calls fn for every stored mapping in key order, VNI by VNI. A
// source/dest row is visited right after its destination row. fn must not
// call back into the cache.
func (c *Cache) Walk(fn func(key eid.Eid, data *mapping.Data) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.walk(func(e *entry) bool {
		if e.data == nil {
			return true
		}
		return fn(e.key, e.data)
	})
}

func (c *Cache) walk(fn func(e *entry) bool) {
	vnis := make([]uint32, 0, len(c.vnis))
	for v := range c.vnis {
		vnis = append(vnis, v)
	}
	sort.Slice(vnis, func(i, j int) bool { return vnis[i] < vnis[j] })
	for _, v := range vnis {
		cont := c.vnis[v].walk(func(e *entry) bool {
			if !fn(e) {
				return false
			}
			if e.src != nil {
				return e.src.walk(fn)
			}
			return true
		})
		if !cont {
			return
		}
	}
}

// Len returns the number of stored mappings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	c.walk(func(e *entry) bool {
		if e.data != nil {
			n++
		}
		return true
	})
	return n
}

// Clear removes everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vnis = make(map[uint32]*table)
}

// RegistrationCache is the cache of the registration origin. Next to the
// reconciled record of a key it keeps the record of every registering xTR.
type RegistrationCache struct {
	*Cache
}

// NewRegistration returns an empty registration cache.
func NewRegistration() *RegistrationCache {
	return &RegistrationCache{Cache: New(mapping.Registration)}
}

// AddXtrMapping stores the record of one xTR for key.
func (c *RegistrationCache) AddXtrMapping(key eid.Eid, xtrID mapping.XtrID,
	data *mapping.Data) {

	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(key, func(e *entry) {
		if e.xtr == nil {
			e.xtr = make(map[mapping.XtrID]*mapping.Data)
		}
		e.xtr[xtrID] = data
	})
}

// GetXtrMapping returns the record of one xTR for the longest match of dst.
func (c *RegistrationCache) GetXtrMapping(src, dst eid.Eid,
	xtrID mapping.XtrID) *mapping.Data {

	c.mu.RLock()
	defer c.mu.RUnlock()
	if dst.Kind() == eid.KindSourceDest {
		src, dst = eid.Src(dst), eid.Dst(dst)
	}
	dst = eid.AsPrefix(eid.Normalize(dst))
	t := c.vnis[dst.VNI()]
	if t == nil {
		return nil
	}
	de := t.best(dst)
	if de == nil {
		return nil
	}
	if de.src != nil && eid.IsIP(src) {
		s := eid.AsPrefix(eid.Normalize(src)).WithVNI(dst.VNI())
		if se := de.src.best(s); se != nil {
			if d := se.xtrRecord(xtrID); d != nil {
				return d
			}
		}
	}
	return de.xtrRecord(xtrID)
}

// xtrRecord returns the record of xtrID. Without per xTR records, the
// mapping itself answers when it was registered by xtrID.
func (e *entry) xtrRecord(xtrID mapping.XtrID) *mapping.Data {
	if d, ok := e.xtr[xtrID]; ok {
		return d
	}
	if len(e.xtr) == 0 && !xtrID.IsZero() && e.data != nil && e.data.XtrID == xtrID {
		return e.data
	}
	return nil
}

// AllXtrMappings returns the xTR records of key ordered by xTR-ID.
func (c *RegistrationCache) AllXtrMappings(key eid.Eid) []*mapping.Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.exact(key)
	if e == nil || len(e.xtr) == 0 {
		return nil
	}
	ids := make([]mapping.XtrID, 0, len(e.xtr))
	for id := range e.xtr {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	out := make([]*mapping.Data, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.xtr[id])
	}
	return out
}

// RemoveXtrMapping removes the record of one xTR for key.
func (c *RegistrationCache) RemoveXtrMapping(key eid.Eid, xtrID mapping.XtrID) {
	c.RemoveXtrMappings(key, []mapping.XtrID{xtrID})
}

// RemoveXtrMappings removes the records of the given xTRs for key.
func (c *RegistrationCache) RemoveXtrMappings(key eid.Eid, ids []mapping.XtrID) {
	if len(ids) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modify(key, func(e *entry) {
		for _, id := range ids {
			delete(e.xtr, id)
		}
	})
}

// ClearXtrMappings removes all xTR records of key.
func (c *RegistrationCache) ClearXtrMappings(key eid.Eid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modify(key, func(e *entry) { e.xtr = nil })
}

// RefreshTimestamp sets the timestamp of the reconciled record of key, or of
// the record of xtrID if it is set. It reports whether the record exists.
func (c *RegistrationCache) RefreshTimestamp(key eid.Eid, xtrID mapping.XtrID,
	ts time.Time) bool {

	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	c.modify(key, func(e *entry) {
		if xtrID.IsZero() {
			if e.data != nil {
				e.data = e.data.WithTimestamp(ts)
				found = true
			}
			return
		}
		if d, ok := e.xtr[xtrID]; ok {
			e.xtr[xtrID] = d.WithTimestamp(ts)
			found = true
		}
	})
	return found
}
