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

package mgmtapi

import (
	"time"

	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
	"github.com/lispmap/lispmap/pkg/private/util"
)

// Locator is the API representation of a locator.
type Locator struct {
	ID                string `json:"id,omitempty"`
	Rloc              string `json:"rloc"`
	Priority          uint8  `json:"priority"`
	Weight            uint8  `json:"weight"`
	MulticastPriority uint8  `json:"multicast_priority,omitempty"`
	MulticastWeight   uint8  `json:"multicast_weight,omitempty"`
	Local             bool   `json:"local,omitempty"`
	Probed            bool   `json:"probed,omitempty"`
	Routed            bool   `json:"routed,omitempty"`
}

// Mapping is the API representation of a stored mapping.
type Mapping struct {
	Origin        string     `json:"origin"`
	Eid           string     `json:"eid"`
	RecordEid     string     `json:"record_eid,omitempty"`
	Locators      []Locator  `json:"locators"`
	TTL           string     `json:"ttl,omitempty"`
	Action        string     `json:"action,omitempty"`
	Authoritative bool       `json:"authoritative,omitempty"`
	MapVersion    uint16     `json:"map_version,omitempty"`
	XtrID         string     `json:"xtr_id,omitempty"`
	MergeEnabled  bool       `json:"merge_enabled,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	SourceRloc    string     `json:"source_rloc,omitempty"`
}

// AuthKey is the API representation of an authentication key.
type AuthKey struct {
	Eid  string `json:"eid"`
	Type string `json:"type"`
	Key  string `json:"key"`
}

// Settings are the runtime toggles of the mapping system.
type Settings struct {
	LookupPolicy *string `json:"lookup_policy,omitempty"`
	MappingMerge *bool   `json:"mapping_merge,omitempty"`
}

// Refresh asks to refresh a registration.
type Refresh struct {
	Eid   string `json:"eid"`
	XtrID string `json:"xtr_id,omitempty"`
}

// Subscriber is the API representation of a subscriber.
type Subscriber struct {
	SrcRloc     string    `json:"src_rloc"`
	SrcEid      string    `json:"src_eid"`
	TTL         string    `json:"ttl"`
	LastRequest time.Time `json:"last_request"`
}

// Event is the API representation of a mapping change.
type Event struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Origin      string    `json:"origin"`
	Eid         string    `json:"eid"`
	Mapping     *Mapping  `json:"mapping,omitempty"`
	Subscribers int       `json:"subscribers"`
	Time        time.Time `json:"time"`
}

func newMapping(origin mapping.Origin, key eid.Eid, d *mapping.Data) Mapping {
	m := Mapping{
		Origin:   origin.String(),
		Eid:      key.String(),
		Locators: []Locator{},
	}
	if d == nil {
		return m
	}
	if !d.XtrID.IsZero() {
		m.XtrID = d.XtrID.String()
	}
	m.MergeEnabled = d.MergeEnabled
	if !d.Timestamp.IsZero() {
		ts := d.Timestamp
		m.Timestamp = &ts
	}
	if d.SourceRloc.IsValid() {
		m.SourceRloc = d.SourceRloc.String()
	}
	r := d.Record
	if r == nil {
		return m
	}
	if r.Eid != key {
		m.RecordEid = r.Eid.String()
	}
	m.TTL = util.FmtDuration(r.TTL)
	m.Action = r.Action.String()
	m.Authoritative = r.Authoritative
	m.MapVersion = r.MapVersion
	for _, l := range r.Locators {
		m.Locators = append(m.Locators, Locator{
			ID:                l.ID,
			Rloc:              l.Rloc.String(),
			Priority:          l.Priority,
			Weight:            l.Weight,
			MulticastPriority: l.MulticastPriority,
			MulticastWeight:   l.MulticastWeight,
			Local:             l.Local,
			Probed:            l.Probed,
			Routed:            l.Routed,
		})
	}
	return m
}

// parse converts m to the key and data to store.
func (m Mapping) parse() (mapping.Origin, eid.Eid, *mapping.Data, error) {
	origin, err := mapping.ParseOrigin(m.Origin)
	if err != nil {
		return 0, eid.Eid{}, nil, err
	}
	key, err := eid.Parse(m.Eid)
	if err != nil {
		return 0, eid.Eid{}, nil, err
	}
	rec := &mapping.Record{Eid: key, MapVersion: m.MapVersion, Authoritative: m.Authoritative}
	if m.TTL != "" {
		if rec.TTL, err = util.ParseDuration(m.TTL); err != nil {
			return 0, eid.Eid{}, nil, serrors.Wrap("parsing ttl", err, "ttl", m.TTL)
		}
	}
	if rec.Action, err = mapping.ParseAction(m.Action); err != nil {
		return 0, eid.Eid{}, nil, err
	}
	for _, l := range m.Locators {
		rloc, err := mapping.ParseRloc(l.Rloc)
		if err != nil {
			return 0, eid.Eid{}, nil, err
		}
		rec.Locators = append(rec.Locators, mapping.Locator{
			ID:                l.ID,
			Rloc:              rloc,
			Priority:          l.Priority,
			Weight:            l.Weight,
			MulticastPriority: l.MulticastPriority,
			MulticastWeight:   l.MulticastWeight,
			Local:             l.Local,
			Probed:            l.Probed,
			Routed:            l.Routed,
		})
	}
	d := &mapping.Data{Record: rec, MergeEnabled: m.MergeEnabled}
	if m.XtrID != "" {
		if d.XtrID, err = mapping.ParseXtrID(m.XtrID); err != nil {
			return 0, eid.Eid{}, nil, err
		}
	}
	if m.Timestamp != nil {
		d.Timestamp = *m.Timestamp
	}
	return origin, key, d, nil
}

func newSubscriber(s mapping.Subscriber) Subscriber {
	return Subscriber{
		SrcRloc:     s.SrcRloc.String(),
		SrcEid:      s.SrcEid.String(),
		TTL:         util.FmtDuration(s.TTL),
		LastRequest: s.LastRequest,
	}
}

func newEvent(ev notify.Event) Event {
	out := Event{
		ID:          ev.ID.String(),
		Kind:        ev.Kind.String(),
		Origin:      ev.Origin.String(),
		Eid:         ev.Eid.String(),
		Subscribers: len(ev.AllSubscribers()),
		Time:        ev.Time,
	}
	if ev.Data != nil {
		m := newMapping(ev.Origin, ev.Eid, ev.Data)
		out.Mapping = &m
	}
	return out
}
