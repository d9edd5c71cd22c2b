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
	"time"

	"github.com/lispmap/lispmap/mapserver/merge"
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/prom"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// AddMapping stores data under key in the cache of origin.
//
// Registrations are timestamped if they carry no timestamp and enter the
// timeout wheel. With mapping merge on, merge-enabled registrations are
// stored per xTR-ID and merged into the record of key. A positive mapping
// removes the negative registration mappings it overlaps.
func (s *System) AddMapping(ctx context.Context, origin mapping.Origin, key eid.Eid,
	data *mapping.Data) error {

	if data == nil || data.Record == nil {
		return serrors.JoinNoStack(ErrInvalidMapping, nil, "eid", key)
	}
	key = eid.Normalize(key)
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if origin == mapping.Policy {
		existed := s.nb.GetExact(key) != nil
		s.nb.AddMapping(key, data)
		s.notifyChange(ctx, kindOf(existed), origin, key, data)
		if data.IsPositive() {
			s.removeOverlappingNegativesLocked(ctx, key)
		}
		return nil
	}

	s.sweepLocked(ctx)
	if err := s.addRegistrationLocked(ctx, key, data); err != nil {
		s.metrics.registration(prom.ErrInvalidReq)
		return err
	}
	s.metrics.registration(prom.Success)
	return nil
}

func kindOf(existed bool) notify.Kind {
	if existed {
		return notify.Updated
	}
	return notify.Created
}

func (s *System) addRegistrationLocked(ctx context.Context, key eid.Eid,
	data *mapping.Data) error {

	logger := log.FromCtx(ctx)
	now := s.now()
	if data.IsPositive() && data.Timestamp.IsZero() {
		data = data.WithTimestamp(now)
	}
	mergeOn := s.MappingMerge()
	stored := data
	switch {
	case mergeOn && data.MergeEnabled:
		if data.XtrID.IsZero() {
			logger.Info("Ignoring merge-enabled registration without xTR-ID", "eid", key)
			return serrors.JoinNoStack(ErrNoXtrID, nil, "eid", key)
		}
		s.sb.AddXtrMapping(key, data.XtrID, data)
		merged := s.mergeLocked(ctx, key, now)
		if merged == nil {
			// The registration itself is already expired.
			s.removeRegistrationLocked(ctx, key, true)
			return nil
		}
		stored = merged
	case mergeOn && !data.XtrID.IsZero():
		s.sb.ClearXtrMappings(key)
		s.sb.AddXtrMapping(key, data.XtrID, data)
	}
	existed := s.sb.GetExact(key) != nil
	s.storeRegistrationLocked(key, stored)
	s.notifyChange(ctx, kindOf(existed), mapping.Registration, key, stored)
	if stored.IsPositive() {
		s.removeOverlappingNegativesLocked(ctx, key)
	}
	return nil
}

// mergeLocked merges the xTR records of key, drops the expired ones and
// records the source Rlocs of the merge. It returns nil if no record
// survived.
func (s *System) mergeLocked(ctx context.Context, key eid.Eid,
	now time.Time) *mapping.Data {

	merged, expired, srcRlocs := merge.XtrMappings(s.sb.AllXtrMappings(key),
		s.cfg.RegistrationValidity, now)
	if len(expired) > 0 {
		s.sb.RemoveXtrMappings(key, expired)
		for _, id := range expired {
			log.FromCtx(ctx).Debug("Dropped expired xTR registration", "eid", key,
				"xtr_id", id)
			s.observeRemoval(mapping.Registration, key, id)
		}
	}
	s.sb.SetSourceRlocs(key, srcRlocs)
	return merged
}

// storeRegistrationLocked stores data under key and places timestamped data in
// the timeout wheel.
func (s *System) storeRegistrationLocked(key eid.Eid, data *mapping.Data) {
	old, hadBucket := s.sb.BucketID(key)
	switch {
	case data.Timestamp.IsZero():
		if hadBucket {
			s.wheel.Remove(key, old)
			s.sb.ClearBucketID(key)
		}
	case hadBucket:
		s.sb.SetBucketID(key, s.wheel.Refresh(key, data, data.Timestamp, old))
	default:
		s.sb.SetBucketID(key, s.wheel.Add(key, data, data.Timestamp))
	}
	s.sb.AddMapping(key, data)
}

// RefreshMappingRegistration sets the timestamp of the registration of key,
// and of the record of xtrID when mapping merge is on. It reports whether a
// registration was found.
func (s *System) RefreshMappingRegistration(ctx context.Context, key eid.Eid,
	xtrID mapping.XtrID, ts time.Time) bool {

	key = eid.Normalize(key)
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.sweepLocked(ctx)
	if !s.sb.RefreshTimestamp(key, mapping.XtrID{}, ts) {
		return false
	}
	if s.MappingMerge() && !xtrID.IsZero() {
		s.sb.RefreshTimestamp(key, xtrID, ts)
	}
	cur := s.sb.GetExact(key)
	if old, ok := s.sb.BucketID(key); ok {
		s.sb.SetBucketID(key, s.wheel.Refresh(key, cur, ts, old))
	} else {
		s.sb.SetBucketID(key, s.wheel.Add(key, cur, ts))
	}
	log.FromCtx(ctx).Debug("Refreshed registration", "eid", key, "xtr_id", xtrID)
	return true
}

// RemoveMapping removes the mapping of key from the cache of origin.
// Removing a positive registration consolidates the negative mappings around
// it.
func (s *System) RemoveMapping(ctx context.Context, origin mapping.Origin, key eid.Eid) {
	key = eid.Normalize(key)
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if origin == mapping.Policy {
		data := s.nb.GetExact(key)
		s.nb.RemoveEntry(key)
		if data != nil {
			s.notifyChange(ctx, notify.Removed, origin, key, data)
		}
		return
	}
	s.removeRegistrationLocked(ctx, key, false)
}

// removeRegistrationLocked removes the registration of key with all of its
// side data. A positive registration is replaced by consolidated negative
// coverage. observe tells whether the removal is reported to the observer.
func (s *System) removeRegistrationLocked(ctx context.Context, key eid.Eid, observe bool) {
	data := s.sb.GetExact(key)
	if id, ok := s.sb.BucketID(key); ok {
		s.wheel.Remove(key, id)
	}
	if data.IsPositive() && eid.IsMaskable(eid.AsPrefix(key)) &&
		key.Kind() != eid.KindSourceDest {

		s.mergeNegativePrefixesLocked(ctx, key, data)
	} else {
		s.dropRegistrationLocked(ctx, key, data)
	}
	if observe && data != nil {
		s.observeRemoval(mapping.Registration, key, mapping.XtrID{})
	}
}

// dropRegistrationLocked removes key and notifies the removal.
func (s *System) dropRegistrationLocked(ctx context.Context, key eid.Eid,
	data *mapping.Data) {

	if data != nil {
		s.notifyChange(ctx, notify.Removed, mapping.Registration, key, data)
	}
	s.sb.RemoveEntry(key)
}
