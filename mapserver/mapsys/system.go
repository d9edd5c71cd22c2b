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

// Package mapsys implements the mapping system: it resolves EIDs to locators
// from a policy cache and a registration cache, expires registrations,
// merges the registrations of several xTRs, synthesizes and consolidates
// negative mappings, and notifies the subscribers of changed mappings.
//
// A System is created explicitly and owns all of its state. Each cache and
// the key store are locked independently. Mutations of the registration cache
// and the timeout wheel share one critical section, so the bucket id of a key
// is read and written atomically with the wheel sweep.
package mapsys

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lispmap/lispmap/mapserver/authkey"
	"github.com/lispmap/lispmap/mapserver/mapcache"
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/mapserver/timebucket"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

var (
	// ErrNoXtrID is returned for merge-enabled registrations without an
	// xTR-ID while mapping merge is on.
	ErrNoXtrID = errors.New("registration without xTR-ID")
	// ErrInvalidMapping is returned for mappings without a record.
	ErrInvalidMapping = errors.New("invalid mapping")
)

// Observer is told about removals the mapping system decides on its own, so
// that they can be mirrored into a persistent store. It is called
// synchronously and must not call back into the System. A zero xtrID stands
// for every record stored under key.
type Observer interface {
	MappingRemoved(origin mapping.Origin, key eid.Eid, xtrID mapping.XtrID)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(origin mapping.Origin, key eid.Eid, xtrID mapping.XtrID)

// MappingRemoved calls f.
func (f ObserverFunc) MappingRemoved(origin mapping.Origin, key eid.Eid,
	xtrID mapping.XtrID) {

	f(origin, key, xtrID)
}

// Option configures a System.
type Option func(*System)

// WithNotifier sets the receiver of change events.
func WithNotifier(n notify.Notifier) Option {
	return func(s *System) { s.notifier = n }
}

// WithObserver sets the observer of autonomous removals.
func WithObserver(o Observer) Option {
	return func(s *System) { s.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *System) { s.now = now }
}

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *System) { s.metrics = m }
}

// System is the mapping system. It is safe for concurrent use.
type System struct {
	cfg      Config
	nb       *mapcache.Cache
	sb       *mapcache.RegistrationCache
	keys     *authkey.Store
	notifier notify.Notifier
	observer Observer
	metrics  *Metrics
	now      func() time.Time

	policy atomic.Uint32
	merge  atomic.Bool

	// regMu serializes mapping mutations of both caches and the timeout wheel.
	regMu sync.Mutex
	wheel *timebucket.Wheel
	// nextRotation caches the wheel's next rotation time in unix nanoseconds
	// so that lookups can check it without regMu.
	nextRotation atomic.Int64
	// sweepCtx is the context of the sweep in progress. Guarded by regMu.
	sweepCtx context.Context
}

// New creates a mapping system.
func New(cfg Config, opts ...Option) (*System, error) {
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &System{
		cfg:      cfg,
		nb:       mapcache.New(mapping.Policy),
		sb:       mapcache.NewRegistration(),
		keys:     authkey.New(),
		notifier: notify.Discard,
		now:      time.Now,
		sweepCtx: context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	s.policy.Store(uint32(cfg.LookupPolicy))
	s.merge.Store(cfg.MappingMerge)
	if err := s.resetWheel(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *System) resetWheel() error {
	w, err := timebucket.NewWheel(s.cfg.Buckets, s.cfg.RegistrationValidity,
		s.expire, s.now)
	if err != nil {
		return serrors.Wrap("creating timeout wheel", err)
	}
	s.wheel = w
	s.nextRotation.Store(w.NextRotation().UnixNano())
	return nil
}

// LookupPolicy returns the current lookup policy.
func (s *System) LookupPolicy() LookupPolicy {
	return LookupPolicy(s.policy.Load())
}

// SetLookupPolicy changes the lookup policy.
func (s *System) SetLookupPolicy(p LookupPolicy) {
	s.policy.Store(uint32(p))
}

// MappingMerge reports whether registrations of several xTRs are merged.
func (s *System) MappingMerge() bool {
	return s.merge.Load()
}

// SetMappingMerge turns registration merging on or off.
func (s *System) SetMappingMerge(on bool) {
	s.merge.Store(on)
}

// Validity returns the registration validity.
func (s *System) Validity() time.Duration {
	return s.cfg.RegistrationValidity
}

// Now returns the time of the system clock.
func (s *System) Now() time.Time {
	return s.now()
}

func (s *System) cache(origin mapping.Origin) *mapcache.Cache {
	if origin == mapping.Policy {
		return s.nb
	}
	return s.sb.Cache
}

// AddAuthenticationKey sets the authentication key of a prefix.
func (s *System) AddAuthenticationKey(key eid.Eid, k mapping.AuthKey) {
	s.keys.Add(key, k)
}

// GetAuthenticationKey returns the key of the longest prefix covering key.
func (s *System) GetAuthenticationKey(key eid.Eid) (mapping.AuthKey, bool) {
	return s.keys.Get(key)
}

// RemoveAuthenticationKey removes the key of a prefix.
func (s *System) RemoveAuthenticationKey(key eid.Eid) {
	s.keys.Remove(key)
}

// Subscribe adds or refreshes a subscriber of key.
func (s *System) Subscribe(key eid.Eid, sub mapping.Subscriber) {
	s.sb.AddSubscriber(key, sub)
}

// Subscribers returns the live subscribers of key. Timed out subscribers are
// dropped.
func (s *System) Subscribers(key eid.Eid) []mapping.Subscriber {
	now := s.now()
	subs := s.sb.Subscribers(key)
	live := subs[:0]
	for _, sub := range subs {
		if sub.TimedOut(now) {
			s.sb.RemoveSubscriber(key, sub.Key())
			continue
		}
		live = append(live, sub)
	}
	if len(live) == 0 {
		return nil
	}
	return live
}

// RemoveSubscribers removes all subscribers of key.
func (s *System) RemoveSubscribers(key eid.Eid) {
	s.sb.RemoveSubscribers(key)
}

// notifyChange hands one change event carrying all live subscribers of key
// to the notifier. Subscribers of narrowed replies inside key are included.
func (s *System) notifyChange(ctx context.Context, kind notify.Kind,
	origin mapping.Origin, key eid.Eid, data *mapping.Data) {

	ev := notify.NewEvent(kind, origin, key, data, s.now())
	ev.Subscribers = s.Subscribers(key)
	if eid.IsIP(key) {
		seen := make(map[mapping.SubscriberKey]struct{}, len(ev.Subscribers))
		for _, sub := range ev.Subscribers {
			seen[sub.Key()] = struct{}{}
		}
		for _, k := range s.sb.SubscriptionsWithin(key) {
			for _, sub := range s.Subscribers(k) {
				if _, ok := seen[sub.Key()]; ok {
					continue
				}
				seen[sub.Key()] = struct{}{}
				ev.Subscribers = append(ev.Subscribers, sub)
			}
		}
	}
	if key.Kind() == eid.KindSourceDest {
		ev.DstSubscribers = s.Subscribers(eid.Dst(key))
	}
	log.FromCtx(ctx).Debug("Mapping changed", "event", kind, "origin", origin,
		"eid", key, "subscribers", len(ev.Subscribers)+len(ev.DstSubscribers))
	s.notifier.Notify(ctx, ev)
}

func (s *System) observeRemoval(origin mapping.Origin, key eid.Eid, xtrID mapping.XtrID) {
	if s.observer != nil {
		s.observer.MappingRemoved(origin, key, xtrID)
	}
}

func (s *System) updateGauges() {
	s.metrics.mappings(mapping.Policy.String(), s.nb.Len())
	s.metrics.mappings(mapping.Registration.String(), s.sb.Len())
}
