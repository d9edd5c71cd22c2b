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

// Package mapping contains the values stored in the mapping system: mapping
// records with their locators, registration metadata, subscribers and
// authentication keys.
package mapping

import (
	"fmt"
	"strings"
	"time"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// Origin identifies which side populated a mapping.
type Origin uint8

const (
	// Policy is the northbound, administrative origin.
	Policy Origin = iota
	// Registration is the southbound origin, populated by xTR registrations.
	Registration
)

func (o Origin) String() string {
	switch o {
	case Policy:
		return "policy"
	case Registration:
		return "registration"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// ParseOrigin parses the String form of an origin.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(s) {
	case "policy", "nb", "northbound":
		return Policy, nil
	case "registration", "sb", "southbound":
		return Registration, nil
	default:
		return 0, serrors.New("unknown origin", "origin", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Origin) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Origin) UnmarshalText(text []byte) error {
	v, err := ParseOrigin(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Action is the action a requester should take for a mapping without
// locators.
type Action uint8

const (
	NoAction Action = iota
	NativelyForward
	SendMapRequest
	Drop
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "no-action"
	case NativelyForward:
		return "natively-forward"
	case SendMapRequest:
		return "send-map-request"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAction parses the String form of an action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "no-action", "":
		return NoAction, nil
	case "natively-forward":
		return NativelyForward, nil
	case "send-map-request":
		return SendMapRequest, nil
	case "drop":
		return Drop, nil
	default:
		return 0, serrors.New("unknown action", "action", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	v, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Locator is one candidate locator of a mapping record.
type Locator struct {
	// ID optionally names the locator.
	ID                string
	Rloc              Rloc
	Priority          uint8
	Weight            uint8
	MulticastPriority uint8
	MulticastWeight   uint8
	Local             bool
	Probed            bool
	Routed            bool
}

// Equal reports whether two locators are equal in every field.
func (l Locator) Equal(o Locator) bool {
	return l.ID == o.ID && l.Rloc.Equal(o.Rloc) &&
		l.Priority == o.Priority && l.Weight == o.Weight &&
		l.MulticastPriority == o.MulticastPriority &&
		l.MulticastWeight == o.MulticastWeight &&
		l.Local == o.Local && l.Probed == o.Probed && l.Routed == o.Routed
}

// UnreachablePriority marks a locator that must not be used for unicast.
const UnreachablePriority = 255

// Record is a mapping record: an Eid and its ordered locators.
type Record struct {
	Eid           eid.Eid
	Locators      []Locator
	TTL           time.Duration
	Action        Action
	Authoritative bool
	MapVersion    uint16
	SiteID        uint64
}

// IsNegative reports whether the record has no locators.
func (r *Record) IsNegative() bool {
	return len(r.Locators) == 0
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Locators = make([]Locator, len(r.Locators))
	for i, l := range r.Locators {
		l.Rloc = cloneRloc(l.Rloc)
		c.Locators[i] = l
	}
	return &c
}

func cloneRloc(r Rloc) Rloc {
	if r.kind == RlocELP {
		r.hops = append([]Hop(nil), r.hops...)
	}
	return r
}

// Rlocs returns the locators' Rlocs in order.
func (r *Record) Rlocs() []Rloc {
	rlocs := make([]Rloc, 0, len(r.Locators))
	for _, l := range r.Locators {
		rlocs = append(rlocs, l.Rloc)
	}
	return rlocs
}

func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.IsNegative() {
		return fmt.Sprintf("%s negative ttl=%s action=%s", r.Eid, r.TTL, r.Action)
	}
	return fmt.Sprintf("%s -> [%s] ttl=%s", r.Eid, strings.Join(rlocStrings(r), ", "), r.TTL)
}

func rlocStrings(r *Record) []string {
	s := make([]string, 0, len(r.Locators))
	for _, l := range r.Locators {
		s = append(s, l.Rloc.String())
	}
	return s
}
