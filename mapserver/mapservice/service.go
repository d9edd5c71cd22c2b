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

// Package mapservice binds the in-memory mapping system to its persistent
// store.
//
// Every mutating call is mirrored into the store. Registrations are applied
// to the mapping system first and only persisted once accepted. Policy
// mappings and authentication keys are persisted first so that a failing
// store leaves the mapping system unchanged. Removals the mapping system
// decides on its own, such as expirations, reach the store through the
// mapsys.Observer hook.
//
// Negative replies the mapping system synthesizes or consolidates while
// resolving requests are not persisted. They are derived from the stored
// positive mappings, so after Restore they are computed again on demand.
package mapservice

import (
	"context"
	"net/netip"
	"time"

	"github.com/lispmap/lispmap/mapserver/mapsys"
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
	mapdb "github.com/lispmap/lispmap/private/storage/mapping"
)

// DefaultStoreTimeout bounds store writes that have no caller context.
const DefaultStoreTimeout = 5 * time.Second

// Acker is told when a subscriber asks for a mapping again. The SMR notifier
// implements it.
type Acker interface {
	Ack(sub mapping.SubscriberKey, e eid.Eid)
}

// Config configures a Service.
type Config struct {
	Core mapsys.Config
	// DB is the persistent store. Required.
	DB mapdb.DB
	// Notifier receives the change events of the mapping system. Optional.
	Notifier notify.Notifier
	// Acker is optional.
	Acker   Acker
	Metrics *mapsys.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
	// StoreTimeout defaults to DefaultStoreTimeout.
	StoreTimeout time.Duration
}

// Service is the mapping system with a persistent store.
type Service struct {
	core         *mapsys.System
	db           mapdb.DB
	acker        Acker
	now          func() time.Time
	storeTimeout time.Duration
}

// New creates a service. The mapping system starts empty; call Restore to
// load the stored state.
func New(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, serrors.New("mapping store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	s := &Service{
		db:           cfg.DB,
		acker:        cfg.Acker,
		now:          cfg.Now,
		storeTimeout: cfg.StoreTimeout,
	}
	opts := []mapsys.Option{
		mapsys.WithClock(cfg.Now),
		mapsys.WithObserver(mapsys.ObserverFunc(s.mappingRemoved)),
	}
	if cfg.Notifier != nil {
		opts = append(opts, mapsys.WithNotifier(cfg.Notifier))
	}
	if cfg.Metrics != nil {
		opts = append(opts, mapsys.WithMetrics(cfg.Metrics))
	}
	core, err := mapsys.New(cfg.Core, opts...)
	if err != nil {
		return nil, err
	}
	s.core = core
	return s, nil
}

// Core returns the mapping system for queries.
func (s *Service) Core() *mapsys.System {
	return s.core
}

// Restore loads the stored state into the mapping system.
func (s *Service) Restore(ctx context.Context) error {
	snap, err := s.db.Snapshot(ctx)
	if err != nil {
		return serrors.Wrap("reading mapping store", err)
	}
	return s.core.Restore(ctx, snap)
}

// AddMapping stores data under key in the cache of origin and persists it.
func (s *Service) AddMapping(ctx context.Context, origin mapping.Origin, key eid.Eid,
	data *mapping.Data) error {

	if data == nil || data.Record == nil {
		return serrors.JoinNoStack(mapsys.ErrInvalidMapping, nil, "eid", key)
	}
	if origin == mapping.Policy {
		if err := s.db.InsertMapping(ctx, origin, key, data); err != nil {
			return serrors.Wrap("persisting policy mapping", err, "eid", key)
		}
		return s.core.AddMapping(ctx, origin, key, data)
	}

	// The record is stamped here so that the stored copy carries the same
	// timestamp as the cached one.
	if data.IsPositive() && data.Timestamp.IsZero() {
		data = data.WithTimestamp(s.now())
	}
	if err := s.core.AddMapping(ctx, origin, key, data); err != nil {
		return err
	}
	if !s.core.MappingMerge() || !data.MergeEnabled {
		if _, err := s.db.DeleteMapping(ctx, origin, key, mapping.XtrID{}); err != nil {
			return serrors.Wrap("replacing stored registration", err, "eid", key)
		}
	}
	if err := s.db.InsertMapping(ctx, origin, key, data); err != nil {
		return serrors.Wrap("persisting registration", err, "eid", key)
	}
	return nil
}

// RemoveMapping removes the mapping of key from the cache of origin and from
// the store.
func (s *Service) RemoveMapping(ctx context.Context, origin mapping.Origin,
	key eid.Eid) error {

	if origin == mapping.Policy {
		if _, err := s.db.DeleteMapping(ctx, origin, key, mapping.XtrID{}); err != nil {
			return serrors.Wrap("deleting policy mapping", err, "eid", key)
		}
		s.core.RemoveMapping(ctx, origin, key)
		return nil
	}
	s.core.RemoveMapping(ctx, origin, key)
	if _, err := s.db.DeleteMapping(ctx, origin, key, mapping.XtrID{}); err != nil {
		return serrors.Wrap("deleting registration", err, "eid", key)
	}
	return nil
}

// RefreshMappingRegistration refreshes the registration of key and persists
// the new timestamp. It reports whether a registration was found.
func (s *Service) RefreshMappingRegistration(ctx context.Context, key eid.Eid,
	xtrID mapping.XtrID, ts time.Time) (bool, error) {

	if !s.core.RefreshMappingRegistration(ctx, key, xtrID, ts) {
		return false, nil
	}
	var data *mapping.Data
	if s.core.MappingMerge() && !xtrID.IsZero() {
		data = s.core.GetXtrMapping(ctx, eid.Eid{}, key, xtrID)
	}
	if data == nil {
		data = s.core.GetOriginMapping(ctx, mapping.Registration, key)
	}
	if data == nil {
		return true, nil
	}
	if err := s.db.InsertMapping(ctx, mapping.Registration, key, data); err != nil {
		return true, serrors.Wrap("persisting refreshed registration", err, "eid", key)
	}
	return true, nil
}

// AddAuthenticationKey persists and sets the key of a prefix.
func (s *Service) AddAuthenticationKey(ctx context.Context, key eid.Eid,
	k mapping.AuthKey) error {

	if err := s.db.InsertAuthKey(ctx, key, k); err != nil {
		return serrors.Wrap("persisting authentication key", err, "eid", key)
	}
	s.core.AddAuthenticationKey(key, k)
	return nil
}

// RemoveAuthenticationKey deletes the key of a prefix.
func (s *Service) RemoveAuthenticationKey(ctx context.Context, key eid.Eid) error {
	if _, err := s.db.DeleteAuthKey(ctx, key); err != nil {
		return serrors.Wrap("deleting authentication key", err, "eid", key)
	}
	s.core.RemoveAuthenticationKey(key)
	return nil
}

// MapRequest is a request for the mapping of Dst.
type MapRequest struct {
	Src eid.Eid
	Dst eid.Eid
	// SrcRloc is where SMRs for the answer are sent.
	SrcRloc netip.Addr
	// Subscribe asks to be notified about changes of the answer.
	Subscribe bool
}

// HandleMapRequest resolves the request. The requester counts as having
// acknowledged any pending SMR for the answer, and is subscribed to it if
// asked to.
func (s *Service) HandleMapRequest(ctx context.Context, req MapRequest) *mapping.Data {
	data := s.core.Resolve(ctx, req.Src, req.Dst)
	if data == nil || data.Record == nil {
		return data
	}
	key := data.Record.Eid
	sub := mapping.Subscriber{
		SrcRloc:     req.SrcRloc,
		SrcEid:      req.Src,
		TTL:         mapping.SubscriberTTL(data.Record.TTL),
		LastRequest: s.now(),
	}
	if s.acker != nil && req.SrcRloc.IsValid() {
		s.acker.Ack(sub.Key(), key)
	}
	if req.Subscribe && req.SrcRloc.IsValid() {
		s.core.Subscribe(key, sub)
		log.FromCtx(ctx).Debug("Added subscriber", "eid", key, "subscriber", sub)
	}
	return data
}

// Close closes the store.
func (s *Service) Close() error {
	return s.db.Close()
}

func (s *Service) mappingRemoved(origin mapping.Origin, key eid.Eid, xtrID mapping.XtrID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()
	if _, err := s.db.DeleteMapping(ctx, origin, key, xtrID); err != nil {
		log.Error("Failed to delete removed mapping from store", "eid", key,
			"origin", origin, "xtr_id", xtrID, "err", err)
	}
}
