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

// Package authkey stores the authentication keys of EID prefixes.
//
// Keys are looked up by longest prefix: the lookup masks the query from its
// own length down to zero and the first stored prefix wins. Source/dest keys
// match the source inside the destination entry first and fall back to the
// destination-only key.
package authkey

import (
	"sort"
	"sync"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
)

type row struct {
	key eid.Eid
	// set is false for destination rows that only carry source keys.
	set bool
	val mapping.AuthKey
	src map[eid.Eid]mapping.AuthKey
}

// Store maps EID prefixes to authentication keys. It is safe for concurrent
// use.
type Store struct {
	mu   sync.RWMutex
	vnis map[uint32]map[eid.Eid]*row
}

// New returns an empty store.
func New() *Store {
	return &Store{vnis: make(map[uint32]map[eid.Eid]*row)}
}

func split(key eid.Eid) (eid.Eid, eid.Eid, bool) {
	key = eid.Normalize(key)
	if key.Kind() == eid.KindSourceDest {
		return eid.Dst(key), eid.Src(key), true
	}
	if eid.IsIP(key) {
		key = eid.AsPrefix(key)
	}
	return key, eid.Eid{}, false
}

// Add sets the key of the given prefix.
func (s *Store) Add(key eid.Eid, k mapping.AuthKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst, src, sd := split(key)
	t := s.vnis[dst.VNI()]
	if t == nil {
		t = make(map[eid.Eid]*row)
		s.vnis[dst.VNI()] = t
	}
	r := t[dst]
	if r == nil {
		r = &row{key: dst}
		t[dst] = r
	}
	if !sd {
		r.set, r.val = true, k
		return
	}
	if r.src == nil {
		r.src = make(map[eid.Eid]mapping.AuthKey)
	}
	r.src[src] = k
}

// Get returns the key of the longest stored prefix covering key.
func (s *Store) Get(key eid.Eid) (mapping.AuthKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dst, src, sd := split(key)
	t := s.vnis[dst.VNI()]
	if t == nil {
		return mapping.AuthKey{}, false
	}
	var res mapping.AuthKey
	found := longest(dst, func(k eid.Eid) bool {
		r := t[k]
		if r == nil {
			return false
		}
		if sd && len(r.src) > 0 {
			if v, ok := lookupSrc(r.src, src); ok {
				res = v
				return true
			}
		}
		res = r.val
		return r.set
	})
	return res, found
}

func lookupSrc(m map[eid.Eid]mapping.AuthKey, src eid.Eid) (mapping.AuthKey, bool) {
	var v mapping.AuthKey
	found := longest(src, func(k eid.Eid) bool {
		var ok bool
		v, ok = m[k]
		return ok
	})
	return v, found
}

// longest calls hit with key masked from its length down to zero until it
// returns true. Non-maskable keys are tried once as they are.
func longest(key eid.Eid, hit func(eid.Eid) bool) bool {
	if !eid.IsMaskable(key) {
		return hit(key)
	}
	for bits := eid.MaskLen(key); bits >= 0; bits-- {
		if hit(eid.WithMask(key, bits)) {
			return true
		}
	}
	return false
}

// Remove deletes the key stored exactly for the given prefix.
func (s *Store) Remove(key eid.Eid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst, src, sd := split(key)
	t := s.vnis[dst.VNI()]
	r := t[dst]
	if r == nil {
		return
	}
	if sd {
		delete(r.src, src)
	} else {
		r.set, r.val = false, mapping.AuthKey{}
	}
	if !r.set && len(r.src) == 0 {
		delete(t, dst)
	}
	if len(t) == 0 {
		delete(s.vnis, dst.VNI())
	}
}

// Walk calls fn for every stored key ordered by EID. It stops when fn returns
// false.
func (s *Store) Walk(fn func(key eid.Eid, k mapping.AuthKey) bool) {
	s.mu.RLock()
	type item struct {
		key eid.Eid
		val mapping.AuthKey
	}
	var items []item
	for _, t := range s.vnis {
		for _, r := range t {
			if r.set {
				items = append(items, item{r.key, r.val})
			}
			for src, v := range r.src {
				items = append(items, item{
					eid.NewSourceDest(r.key.VNI(), src.Prefix(), r.key.Prefix()), v,
				})
			}
		}
	}
	s.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return eid.Compare(items[i].key, items[j].key) < 0 })
	for _, it := range items {
		if !fn(it.key, it.val) {
			return
		}
	}
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	n := 0
	s.Walk(func(eid.Eid, mapping.AuthKey) bool { n++; return true })
	return n
}

// Clear removes all keys.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vnis = make(map[uint32]map[eid.Eid]*row)
}
