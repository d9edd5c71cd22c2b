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
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
)

// sweepLocked rotates the timeout wheel up to now.
func (s *System) sweepLocked(ctx context.Context) {
	now := s.now()
	if !s.wheel.RotationDue(now) {
		return
	}
	s.sweepCtx = ctx
	n := s.wheel.ExpireAndRotate(now)
	s.sweepCtx = context.Background()
	s.nextRotation.Store(s.wheel.NextRotation().UnixNano())
	if n > 0 {
		log.FromCtx(ctx).Debug("Timeout wheel expired registrations", "count", n)
		s.updateGauges()
	}
}

// maybeSweep sweeps the wheel if a rotation is due. It takes regMu only in
// that case.
func (s *System) maybeSweep(ctx context.Context) {
	if s.now().UnixNano() < s.nextRotation.Load() {
		return
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.sweepLocked(ctx)
}

// expire is called by the wheel, with regMu held, for every key of an
// emptied bucket.
func (s *System) expire(key eid.Eid, _ *mapping.Data) {
	ctx := s.sweepCtx
	s.sb.ClearBucketID(key)
	cur := s.sb.GetExact(key)
	if cur == nil || cur.Timestamp.IsZero() {
		return
	}
	s.expireLocked(ctx, key, cur)
}

// expireLocked re-merges an expired merged registration or removes it.
func (s *System) expireLocked(ctx context.Context, key eid.Eid, cur *mapping.Data) {
	if s.MappingMerge() && cur.MergeEnabled {
		merged := s.mergeLocked(ctx, key, s.now())
		if merged != nil {
			s.storeRegistrationLocked(key, merged)
			s.notifyChange(ctx, notify.Updated, mapping.Registration, key, merged)
			s.metrics.expiration("merge")
			return
		}
	}
	log.FromCtx(ctx).Debug("Registration expired", "eid", key)
	s.removeRegistrationLocked(ctx, key, true)
	s.metrics.expiration("remove")
}

// handleExpired deals with an expired registration met by a lookup.
func (s *System) handleExpired(ctx context.Context, key eid.Eid) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	cur := s.sb.GetExact(key)
	if !merge.IsExpired(cur, s.cfg.RegistrationValidity, s.now()) {
		return
	}
	s.expireLocked(ctx, key, cur)
}

// RemoveExpired sweeps the timeout wheel and then removes or re-merges every
// registration that is expired, independent of its bucket. It returns the
// number of registrations handled by the second step.
func (s *System) RemoveExpired(ctx context.Context) (int, error) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.sweepLocked(ctx)
	now := s.now()
	var expired []eid.Eid
	s.sb.Walk(func(key eid.Eid, d *mapping.Data) bool {
		if merge.IsExpired(d, s.cfg.RegistrationValidity, now) {
			expired = append(expired, key)
		}
		return true
	})
	for _, key := range expired {
		if cur := s.sb.GetExact(key); cur != nil {
			s.expireLocked(ctx, key, cur)
		}
	}
	s.updateGauges()
	return len(expired), ctx.Err()
}
