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
	"errors"
	"strings"
	"time"

	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// LookupPolicy selects how the policy and registration caches answer a
// lookup.
type LookupPolicy uint8

const (
	// NBFirst answers from the policy cache and falls back to the
	// registration cache.
	NBFirst LookupPolicy = iota
	// NBAndSB intersects the answers of both caches.
	NBAndSB
)

// ErrInvalidPolicy is returned for unknown lookup policy names.
var ErrInvalidPolicy = errors.New("invalid lookup policy")

func (p LookupPolicy) String() string {
	switch p {
	case NBFirst:
		return "nb_first"
	case NBAndSB:
		return "nb_and_sb"
	default:
		return "unknown"
	}
}

// ParseLookupPolicy parses a policy name, case insensitive.
func ParseLookupPolicy(s string) (LookupPolicy, error) {
	switch strings.ToLower(s) {
	case "nb_first", "northbound_first":
		return NBFirst, nil
	case "nb_and_sb", "northbound_and_southbound":
		return NBAndSB, nil
	}
	return 0, serrors.JoinNoStack(ErrInvalidPolicy, nil, "policy", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p LookupPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *LookupPolicy) UnmarshalText(text []byte) error {
	v, err := ParseLookupPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

const (
	DefaultRegistrationValidity = 200 * time.Second
	DefaultNegativeTTL          = 15 * time.Minute
	DefaultAuthNegativeTTL      = time.Minute
	DefaultNegativeAction       = mapping.NativelyForward
)

// DefaultBuckets returns the number of wheel buckets for a validity: one per
// started minute plus one, at least two.
func DefaultBuckets(validity time.Duration) int {
	n := int((validity+time.Minute-1)/time.Minute) + 1
	if n < 2 {
		n = 2
	}
	return n
}

// Config is the runtime configuration of a System.
type Config struct {
	LookupPolicy LookupPolicy
	// MappingMerge merges the registrations of several xTRs for one Eid.
	MappingMerge bool
	// RegistrationValidity is the time a registration stays valid without a
	// refresh.
	RegistrationValidity time.Duration
	// Buckets is the number of timeout wheel buckets.
	Buckets int
	// NegativeTTL is the TTL of synthesized negative mappings.
	NegativeTTL time.Duration
	// AuthNegativeTTL is the TTL of negative mappings for prefixes that have
	// an authentication key.
	AuthNegativeTTL time.Duration
	NegativeAction  mapping.Action
}

// InitDefaults fills unset values.
func (c *Config) InitDefaults() {
	if c.RegistrationValidity <= 0 {
		c.RegistrationValidity = DefaultRegistrationValidity
	}
	if c.Buckets <= 0 {
		c.Buckets = DefaultBuckets(c.RegistrationValidity)
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = DefaultNegativeTTL
	}
	if c.AuthNegativeTTL <= 0 {
		c.AuthNegativeTTL = DefaultAuthNegativeTTL
	}
	if c.NegativeAction == mapping.NoAction {
		c.NegativeAction = DefaultNegativeAction
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Buckets < 2 {
		return serrors.New("at least two timeout buckets required", "buckets", c.Buckets)
	}
	if c.LookupPolicy != NBFirst && c.LookupPolicy != NBAndSB {
		return serrors.JoinNoStack(ErrInvalidPolicy, nil, "policy", c.LookupPolicy)
	}
	return nil
}
