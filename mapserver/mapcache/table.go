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

package mapcache

import (
	"net/netip"
	"sort"

	"github.com/lispmap/lispmap/mapserver/mapcache/radix"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
)

// entry is one row of a table. Besides the mapping it holds the typed side
// channels of the key.
type entry struct {
	key  eid.Eid
	data *mapping.Data
	// xtr holds the per xTR-ID records of registrations.
	xtr         map[mapping.XtrID]*mapping.Data
	subscribers map[mapping.SubscriberKey]mapping.Subscriber
	bucketID    int
	hasBucket   bool
	sourceRlocs []netip.Addr
	// src holds the source specific rows of a source/dest key, keyed by the
	// source prefix. Only destination rows have it.
	src *table
}

// routable entries are visible to prefix lookups.
func (e *entry) routable() bool {
	return e.data != nil || len(e.xtr) > 0 || (e.src != nil && len(e.src.entries) > 0)
}

func (e *entry) empty() bool {
	return !e.routable() && len(e.subscribers) == 0 && !e.hasBucket && len(e.sourceRlocs) == 0
}

// table is the store of one VNI. IP keys are indexed by a trie per address
// family, other kinds are exact match only.
type table struct {
	v4      *radix.Trie[*entry]
	v6      *radix.Trie[*entry]
	entries map[eid.Eid]*entry
}

func newTable() *table {
	return &table{
		v4:      radix.New4[*entry](),
		v6:      radix.New6[*entry](),
		entries: make(map[eid.Eid]*entry),
	}
}

// trie returns the trie for an IP key and nil for other kinds.
func (t *table) trie(k eid.Eid) *radix.Trie[*entry] {
	if !eid.IsIP(k) {
		return nil
	}
	if k.Addr().Is4() {
		return t.v4
	}
	return t.v6
}

func (t *table) exact(k eid.Eid) *entry {
	return t.entries[k]
}

// best returns the longest prefix match of k. Non-IP keys match exactly.
func (t *table) best(k eid.Eid) *entry {
	tr := t.trie(k)
	if tr == nil {
		e := t.entries[k]
		if e == nil || !e.routable() {
			return nil
		}
		return e
	}
	_, e, ok := tr.LookupBest(k.Prefix())
	if !ok {
		return nil
	}
	return e
}

func (t *table) getOrCreate(slot, full eid.Eid) *entry {
	e, ok := t.entries[slot]
	if !ok {
		e = &entry{key: full}
		t.entries[slot] = e
	}
	return e
}

// sync brings the indexes in line with the state of the entry stored under
// slot.
func (t *table) sync(slot eid.Eid, e *entry) {
	if tr := t.trie(slot); tr != nil {
		if e.routable() {
			tr.Insert(slot.Prefix(), e)
		} else {
			tr.Remove(slot.Prefix())
		}
	}
	if e.empty() {
		delete(t.entries, slot)
	}
}

// walk visits the entries in key order: IPv4, IPv6, then the other kinds.
func (t *table) walk(fn func(*entry) bool) bool {
	cont := true
	visit := func(_ netip.Prefix, e *entry) bool {
		cont = fn(e)
		return cont
	}
	t.v4.Walk(visit)
	if cont {
		t.v6.Walk(visit)
	}
	if !cont {
		return false
	}
	var others []*entry
	for k, e := range t.entries {
		if !eid.IsIP(k) && e.routable() {
			others = append(others, e)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return eid.Compare(others[i].key, others[j].key) < 0
	})
	for _, e := range others {
		if !fn(e) {
			return false
		}
	}
	return true
}
