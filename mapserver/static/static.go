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

// Package static loads the policy mappings and authentication keys an
// operator provisions in a YAML file. They are installed into the mapping
// service at start.
//
// Example:
//
//	mappings:
//	  - eid: 192.0.2.0/24
//	    ttl: 1h
//	    locators:
//	      - rloc: 203.0.113.1
//	        priority: 1
//	        weight: 100
//	  - eid: 198.51.100.0/24
//	    action: drop
//	auth_keys:
//	  - eid: 10.0.0.0/8
//	    type: hmac-sha256-128
//	    key: password
package static

import (
	"context"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
	"github.com/lispmap/lispmap/pkg/private/util"
)

// DefaultTTL is the record TTL of mappings that set none.
const DefaultTTL = 24 * time.Hour

// Locator is one locator of a static mapping.
type Locator struct {
	ID                string       `yaml:"id"`
	Rloc              mapping.Rloc `yaml:"rloc"`
	Priority          uint8        `yaml:"priority"`
	Weight            uint8        `yaml:"weight"`
	MulticastPriority uint8        `yaml:"multicast_priority"`
	MulticastWeight   uint8        `yaml:"multicast_weight"`
	Local             bool         `yaml:"local"`
}

// Mapping is one static policy mapping.
type Mapping struct {
	Eid           eid.Eid        `yaml:"eid"`
	Locators      []Locator      `yaml:"locators"`
	TTL           util.DurWrap   `yaml:"ttl"`
	Action        mapping.Action `yaml:"action"`
	Authoritative bool           `yaml:"authoritative"`
	MapVersion    uint16         `yaml:"map_version"`
}

// AuthKey is one static authentication key.
type AuthKey struct {
	Eid  eid.Eid         `yaml:"eid"`
	Type mapping.KeyType `yaml:"type"`
	Key  string          `yaml:"key"`
}

// File is the content of a static mapping file.
type File struct {
	Mappings []Mapping `yaml:"mappings"`
	AuthKeys []AuthKey `yaml:"auth_keys"`
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Wrap("reading static mappings", err, "file", path)
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, serrors.Wrap("parsing static mappings", err, "file", path)
	}
	return f, nil
}

// Parse parses a static mapping file and validates it. Unknown fields are
// rejected.
func Parse(raw []byte) (*File, error) {
	f := &File{}
	if err := yaml.UnmarshalStrict(raw, f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that every entry names an Eid and every locator an Rloc.
func (f *File) Validate() error {
	for i, m := range f.Mappings {
		if m.Eid.IsZero() {
			return serrors.New("mapping without eid", "index", i)
		}
		for j, l := range m.Locators {
			if l.Rloc.IsZero() {
				return serrors.New("locator without rloc", "eid", m.Eid, "locator", j)
			}
		}
		if m.TTL.Duration < 0 {
			return serrors.New("negative ttl", "eid", m.Eid, "ttl", m.TTL)
		}
	}
	for i, k := range f.AuthKeys {
		if k.Eid.IsZero() {
			return serrors.New("authentication key without eid", "index", i)
		}
		if k.Key == "" {
			return serrors.New("empty authentication key", "eid", k.Eid)
		}
	}
	return nil
}

// Data returns the mapping data of m.
func (m Mapping) Data() *mapping.Data {
	ttl := m.TTL.Duration
	if ttl == 0 {
		ttl = DefaultTTL
	}
	rec := &mapping.Record{
		Eid:           m.Eid,
		TTL:           ttl,
		Action:        m.Action,
		Authoritative: m.Authoritative,
		MapVersion:    m.MapVersion,
	}
	for _, l := range m.Locators {
		rec.Locators = append(rec.Locators, mapping.Locator{
			ID:                l.ID,
			Rloc:              l.Rloc,
			Priority:          l.Priority,
			Weight:            l.Weight,
			MulticastPriority: l.MulticastPriority,
			MulticastWeight:   l.MulticastWeight,
			Local:             l.Local,
		})
	}
	return &mapping.Data{Record: rec}
}

// Target is where static entries are installed.
type Target interface {
	AddMapping(ctx context.Context, origin mapping.Origin, key eid.Eid,
		data *mapping.Data) error
	AddAuthenticationKey(ctx context.Context, key eid.Eid, k mapping.AuthKey) error
}

// Apply installs the keys and then the mappings of f as policy entries.
func (f *File) Apply(ctx context.Context, t Target) error {
	for _, k := range f.AuthKeys {
		err := t.AddAuthenticationKey(ctx, k.Eid, mapping.AuthKey{Type: k.Type, Key: k.Key})
		if err != nil {
			return serrors.Wrap("installing static authentication key", err, "eid", k.Eid)
		}
	}
	for _, m := range f.Mappings {
		if err := t.AddMapping(ctx, mapping.Policy, m.Eid, m.Data()); err != nil {
			return serrors.Wrap("installing static mapping", err, "eid", m.Eid)
		}
	}
	log.FromCtx(ctx).Info("Installed static mappings", "mappings", len(f.Mappings),
		"keys", len(f.AuthKeys))
	return nil
}
