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

	"github.com/lispmap/lispmap/mapserver/merge"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/prom"
	"github.com/lispmap/lispmap/private/tracing"
)

const (
	resultHit  = prom.Success
	resultNeg  = prom.Negative
	resultMiss = prom.ErrNotFound
)

// GetMapping returns the mapping of dst as requested by src, according to the
// lookup policy. src may be the zero Eid. It returns nil if neither cache has
// an answer.
//
// With NBFirst the policy cache answers and the registration cache is the
// fallback. With NBAndSB a registration answer is intersected with the
// policy answer, and without a policy answer only a negative registration
// mapping covering dst is returned.
func (s *System) GetMapping(ctx context.Context, src, dst eid.Eid) *mapping.Data {
	span, ctx := tracing.CtxWith(ctx, "mapsys.get_mapping")
	defer span.Finish()
	s.maybeSweep(ctx)

	policy := s.LookupPolicy()
	var data *mapping.Data
	switch policy {
	case NBAndSB:
		data = s.lookupIntersection(ctx, src, dst)
	default:
		data = s.lookupNBFirst(ctx, src, dst)
	}
	result := resultMiss
	switch {
	case data.IsPositive():
		result = resultHit
	case data != nil:
		result = resultNeg
	}
	s.metrics.lookup(policy, result)
	tracing.ResultLabel(span, result)
	return data
}

func (s *System) lookupNBFirst(ctx context.Context, src, dst eid.Eid) *mapping.Data {
	if _, nb := s.nb.Lookup(src, dst); nb != nil {
		return s.rewriteServicePath(ctx, dst, nb)
	}
	_, sb := s.sbLookup(ctx, src, dst)
	return s.rewriteServicePath(ctx, dst, sb)
}

func (s *System) lookupIntersection(ctx context.Context, src, dst eid.Eid) *mapping.Data {
	_, nb := s.nb.Lookup(src, dst)
	if nb == nil {
		if _, sb := s.sbLookup(ctx, src, dst); sb.IsNegative() {
			return sb
		}
		return nil
	}
	if dst.Kind() == eid.KindServicePath {
		return s.rewriteServicePath(ctx, dst, nb)
	}
	_, sb := s.sbLookup(ctx, src, dst)
	if sb == nil {
		return nb
	}
	out := nb.Clone()
	out.Record = merge.NbSbIntersection(nb.Record, sb.Record)
	if nb.IsPositive() && sb.IsPositive() && nb.Record.Eid != sb.Record.Eid {
		var branches []eid.Eid
		if b, ok := s.nb.GetBranch(dst); ok {
			branches = append(branches, b)
		}
		if b, ok := s.sb.GetBranch(dst); ok {
			branches = append(branches, b)
		}
		out.Record.Eid = merge.NarrowReply(out.Record.Eid, branches...)
	}
	return out
}

// sbLookup is the expiry aware registration lookup. An expired answer is
// re-merged or removed and the lookup misses.
func (s *System) sbLookup(ctx context.Context, src, dst eid.Eid) (eid.Eid, *mapping.Data) {
	key, data := s.sb.Lookup(src, dst)
	if data == nil {
		return eid.Eid{}, nil
	}
	if merge.IsExpired(data, s.cfg.RegistrationValidity, s.now()) {
		s.handleExpired(ctx, key)
		return eid.Eid{}, nil
	}
	return key, data
}

// rewriteServicePath resolves a service path answer to the hop selected by
// the service index of dst. The answer must have exactly one locator. An
// explicit locator path is replaced by the address of hop 255-SI. A plain
// locator only answers index 0. Answers that do not fit are returned as is.
func (s *System) rewriteServicePath(ctx context.Context, dst eid.Eid,
	data *mapping.Data) *mapping.Data {

	if dst.Kind() != eid.KindServicePath || !data.IsPositive() {
		return data
	}
	logger := log.FromCtx(ctx)
	_, si := dst.ServicePath()
	index := int(255 - si)
	locs := data.Record.Locators
	if len(locs) != 1 {
		logger.Info("Service path mapping must have exactly one locator", "eid", dst,
			"locators", len(locs))
		return data
	}
	rloc := locs[0].Rloc
	switch rloc.Kind() {
	case mapping.RlocIP:
		if index != 0 {
			logger.Info("Service index out of range for a plain locator", "eid", dst,
				"index", index)
		}
		return data
	case mapping.RlocELP:
		hops := rloc.Hops()
		if index >= len(hops) {
			logger.Info("Service index out of range for the locator path", "eid", dst,
				"index", index, "hops", len(hops))
			return data
		}
		out := data.Clone()
		out.Record.Locators[0].Rloc = mapping.NewIPRloc(hops[index].Addr)
		return out
	}
	return data
}

// GetXtrMapping returns the record one xTR registered for the longest match
// of dst. Expired records are not returned.
func (s *System) GetXtrMapping(ctx context.Context, src, dst eid.Eid,
	xtrID mapping.XtrID) *mapping.Data {

	s.maybeSweep(ctx)
	data := s.sb.GetXtrMapping(src, dst, xtrID)
	if merge.IsExpired(data, s.cfg.RegistrationValidity, s.now()) {
		return nil
	}
	return data
}

// GetOriginMapping returns the mapping stored exactly under key in the cache
// of origin.
func (s *System) GetOriginMapping(ctx context.Context, origin mapping.Origin,
	key eid.Eid) *mapping.Data {

	s.maybeSweep(ctx)
	return s.cache(origin).GetExact(eid.Normalize(key))
}

// Resolve answers a map request. On a miss it installs and returns a negative
// mapping for the widest unmapped prefix around dst.
func (s *System) Resolve(ctx context.Context, src, dst eid.Eid) *mapping.Data {
	if data := s.GetMapping(ctx, src, dst); data != nil {
		return data
	}
	return s.AddNegativeMapping(ctx, dst)
}
