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

// Package merge reconciles mapping records: the registrations of several xTRs
// for one Eid, and the policy and registration answers for one lookup.
package merge

import (
	"net/netip"
	"sort"
	"time"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
)

// IsExpired reports whether a registration is older than validity at now.
// Data without a timestamp never expires.
func IsExpired(d *mapping.Data, validity time.Duration, now time.Time) bool {
	if d == nil || d.Timestamp.IsZero() {
		return false
	}
	return now.Sub(d.Timestamp) > validity
}

// XtrMappings merges the per xTR registrations of one Eid. Expired records are
// skipped and their xTR-IDs returned. The merged record has the smallest TTL,
// the union of all locators ordered by Rloc, the oldest timestamp and the
// xTR-ID that registered it. srcRlocs holds the sorted source addresses of
// the merged registrations. merged is nil if no record survives.
func XtrMappings(records []*mapping.Data, validity time.Duration,
	now time.Time) (merged *mapping.Data, expired []mapping.XtrID, srcRlocs []netip.Addr) {

	sorted := append([]*mapping.Data(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].XtrID.Compare(sorted[j].XtrID) < 0
	})
	for _, d := range sorted {
		if d == nil || d.Record == nil {
			continue
		}
		if IsExpired(d, validity, now) {
			expired = append(expired, d.XtrID)
			continue
		}
		if d.SourceRloc.IsValid() {
			srcRlocs = append(srcRlocs, d.SourceRloc)
		}
		if merged == nil {
			merged = d.Clone()
			merged.MergeEnabled = true
			merged.Record.Locators = mergeLocators(nil, merged.Record.Locators)
			continue
		}
		if d.Record.TTL < merged.Record.TTL {
			merged.Record.TTL = d.Record.TTL
		}
		merged.Record.Locators = mergeLocators(merged.Record.Locators,
			d.Record.Clone().Locators)
		if d.Timestamp.Before(merged.Timestamp) {
			merged.Timestamp = d.Timestamp
			merged.XtrID = d.XtrID
			merged.SourceRloc = d.SourceRloc
		}
	}
	return merged, expired, uniqueAddrs(srcRlocs)
}

// mergeLocators adds the locators of add to have. For an Rloc present in
// both, the existing locator is kept if it is local, the new one otherwise.
func mergeLocators(have, add []mapping.Locator) []mapping.Locator {
	out := append([]mapping.Locator(nil), have...)
	for _, l := range add {
		i := indexOf(out, l.Rloc)
		switch {
		case i < 0:
			out = append(out, l)
		case !out[i].Local:
			out[i] = l
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rloc.Compare(out[j].Rloc) < 0
	})
	return out
}

func indexOf(locs []mapping.Locator, r mapping.Rloc) int {
	for i, l := range locs {
		if l.Rloc.Equal(r) {
			return i
		}
	}
	return -1
}

func uniqueAddrs(addrs []netip.Addr) []netip.Addr {
	if len(addrs) == 0 {
		return nil
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	out := addrs[:1]
	for _, a := range addrs[1:] {
		if a != out[len(out)-1] {
			out = append(out, a)
		}
	}
	return out
}

// NbSbIntersection combines the policy answer nb with the registration
// answer sb of a lookup. The result keeps the fields of nb. Its Eid is the
// more specific destination of the two. Its locators are the policy locators
// that are also registered, in policy order, unreachable if the registration
// says so. A negative policy answer or an empty intersection keeps the policy
// locators.
func NbSbIntersection(nb, sb *mapping.Record) *mapping.Record {
	out := nb.Clone()
	if sb == nil {
		return out
	}
	out.Eid = moreSpecific(nb.Eid, sb.Eid)
	if nb.IsNegative() {
		return out
	}
	var common []mapping.Locator
	for _, l := range out.Locators {
		i := indexOf(sb.Locators, l.Rloc)
		if i < 0 {
			continue
		}
		if sb.Locators[i].Priority == mapping.UnreachablePriority {
			l.Priority = mapping.UnreachablePriority
		}
		common = append(common, l)
	}
	if len(common) > 0 {
		out.Locators = common
	}
	return out
}

// moreSpecific returns nb with its destination replaced by the destination of
// sb if that is longer. Non-maskable keys are returned as is.
func moreSpecific(nb, sb eid.Eid) eid.Eid {
	nbKey, sbKey := eid.AsPrefix(nb), eid.AsPrefix(sb)
	if !eid.IsMaskable(nbKey) || !eid.IsMaskable(sbKey) {
		return nb
	}
	if eid.MaskLen(eid.Dst(sbKey)) <= eid.MaskLen(eid.Dst(nbKey)) {
		return nb
	}
	return withDst(nb, eid.Dst(sbKey).Prefix())
}

func withDst(e eid.Eid, dst netip.Prefix) eid.Eid {
	if e.Kind() == eid.KindSourceDest {
		return eid.NewSourceDest(e.VNI(), e.SrcPrefix(), dst)
	}
	return eid.NewPrefix(e.VNI(), dst)
}

// NarrowReply narrows the destination of reply to the most specific of the
// candidates that is more specific than reply. Candidates that are zero or
// not IP keys are ignored.
func NarrowReply(reply eid.Eid, candidates ...eid.Eid) eid.Eid {
	if !eid.IsIP(reply) {
		return reply
	}
	best := eid.Dst(eid.AsPrefix(reply)).Prefix()
	for _, c := range candidates {
		if !eid.IsIP(c) {
			continue
		}
		p := eid.Dst(eid.AsPrefix(c)).Prefix()
		if p.Bits() > best.Bits() && p.Addr().BitLen() == best.Addr().BitLen() {
			best = p
		}
	}
	if best == eid.Dst(eid.AsPrefix(reply)).Prefix() {
		return reply
	}
	return withDst(reply, best)
}
