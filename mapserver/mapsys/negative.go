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

package mapsys

import (
	"context"

	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
)

// GetWidestNegativePrefix returns the widest prefix around the destination
// of key that neither cache has an entry for. It returns false for keys that
// are not IP keys and when a stored prefix of either cache covers key.
func (s *System) GetWidestNegativePrefix(key eid.Eid) (eid.Eid, bool) {
	k := eid.AsPrefix(eid.Normalize(eid.Dst(key)))
	if !eid.IsMaskable(k) {
		return eid.Eid{}, false
	}
	nb, ok := s.nb.GetWidestNegativeMapping(k)
	if !ok {
		return eid.Eid{}, false
	}
	sb, ok := s.sb.GetWidestNegativeMapping(k)
	if !ok {
		return eid.Eid{}, false
	}
	if eid.MaskLen(sb) > eid.MaskLen(nb) {
		return sb, true
	}
	return nb, true
}

// AddNegativeMapping installs a negative mapping for the widest negative
// prefix around key, or for key itself if there is none, in the registration
// cache.
func (s *System) AddNegativeMapping(ctx context.Context, key eid.Eid) *mapping.Data {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	data := s.addNegativeLocked(ctx, key)
	s.metrics.negative("synthesized")
	return data
}

func (s *System) addNegativeLocked(ctx context.Context, key eid.Eid) *mapping.Data {
	neg, ok := s.GetWidestNegativePrefix(key)
	if !ok {
		neg = eid.AsPrefix(eid.Normalize(key))
		// A negative stored below a positive registration would shadow it.
		if cov, ok := s.sb.GetCoveringLessSpecific(neg); ok && s.sb.GetExact(cov).IsPositive() {
			return s.negativeReply(neg)
		}
	}
	return s.installNegativeLocked(ctx, neg)
}

func (s *System) negativeReply(neg eid.Eid) *mapping.Data {
	ttl := s.cfg.NegativeTTL
	if _, ok := s.keys.Get(neg); ok {
		ttl = s.cfg.AuthNegativeTTL
	}
	return &mapping.Data{Record: &mapping.Record{
		Eid:           neg,
		TTL:           ttl,
		Action:        s.cfg.NegativeAction,
		Authoritative: true,
	}}
}

// installNegativeLocked stores a negative mapping for neg unless a positive
// registration is stored at neg. In that case the negative reply is returned
// without being stored.
func (s *System) installNegativeLocked(ctx context.Context, neg eid.Eid) *mapping.Data {
	data := s.negativeReply(neg)
	if s.sb.GetExact(neg).IsPositive() {
		log.FromCtx(ctx).Debug("Positive registration shadows negative reply", "eid", neg)
		return data
	}
	// Negative fragments inside the new prefix are superseded by it.
	for _, sub := range s.sb.GetSubtree(neg) {
		if sub != neg {
			s.removeNegativeLocked(ctx, sub)
		}
	}
	existed := s.sb.GetExact(neg) != nil
	s.storeRegistrationLocked(neg, data)
	s.notifyChange(ctx, kindOf(existed), mapping.Registration, neg, data)
	log.FromCtx(ctx).Debug("Added negative mapping", "eid", neg, "ttl", data.Record.TTL)
	return data
}

// mergeNegativePrefixesLocked removes the positive registration of key. If
// its sibling prefix is negative, the sibling and the chain of negative
// siblings of its virtual parents are removed as well, and one negative
// mapping covering all of them is installed.
func (s *System) mergeNegativePrefixesLocked(ctx context.Context, key eid.Eid,
	data *mapping.Data) {

	sib, ok := s.sb.GetSiblingPrefix(key)
	if !ok || !s.sb.GetExact(sib).IsNegative() {
		s.dropRegistrationLocked(ctx, key, data)
		return
	}
	fragments := []eid.Eid{sib}
	for cur := key; ; {
		vps, ok := s.sb.GetVirtualParentSiblingPrefix(cur)
		if !ok || !s.sb.GetExact(vps).IsNegative() {
			break
		}
		fragments = append(fragments, vps)
		cur = vps
	}
	base := eid.AsPrefix(eid.Normalize(eid.Dst(key)))
	merged := base
	for _, f := range fragments {
		for !eid.Covers(merged, f) {
			p, ok := eid.ParentPrefix(merged)
			if !ok {
				break
			}
			merged = p
		}
	}
	if s.positiveWithin(merged, base) {
		s.dropRegistrationLocked(ctx, key, data)
		return
	}
	for _, f := range fragments {
		s.removeNegativeLocked(ctx, f)
	}
	s.dropRegistrationLocked(ctx, key, data)
	neg := merged
	if w, ok := s.GetWidestNegativePrefix(merged); ok && eid.MaskLen(w) <= eid.MaskLen(merged) {
		neg = w
	}
	s.installNegativeLocked(ctx, neg)
	s.metrics.negative("consolidated")
}

// positiveWithin reports whether either cache holds a positive mapping
// covered by prefix, other than the registration at except.
func (s *System) positiveWithin(prefix, except eid.Eid) bool {
	for _, sub := range s.nb.GetSubtree(prefix) {
		if s.nb.GetExact(sub).IsPositive() {
			return true
		}
	}
	for _, sub := range s.sb.GetSubtree(prefix) {
		if sub != except && s.sb.GetExact(sub).IsPositive() {
			return true
		}
	}
	return false
}

// removeOverlappingNegativesLocked removes the negative registration mappings
// covered by key and the one covering it.
func (s *System) removeOverlappingNegativesLocked(ctx context.Context, key eid.Eid) {
	if !eid.IsIP(key) {
		return
	}
	for _, sub := range s.sb.GetSubtree(key) {
		s.removeNegativeLocked(ctx, sub)
	}
	if cov, ok := s.sb.GetCoveringLessSpecific(key); ok {
		s.removeNegativeLocked(ctx, cov)
	}
}

// removeNegativeLocked removes key if it holds a negative mapping.
func (s *System) removeNegativeLocked(ctx context.Context, key eid.Eid) {
	data := s.sb.GetExact(key)
	if !data.IsNegative() {
		return
	}
	s.notifyChange(ctx, notify.Removed, mapping.Registration, key, data)
	s.sb.RemoveEntry(key)
	s.observeRemoval(mapping.Registration, key, mapping.XtrID{})
}
