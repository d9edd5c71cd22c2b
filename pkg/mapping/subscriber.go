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

package mapping

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

const (
	// DefaultSubscriberTTL is used when the record TTL is unknown.
	DefaultSubscriberTTL = 24 * time.Hour
	// subscriberTTLSlack is added to the record TTL, so that a subscriber
	// outlives the mapping it received.
	subscriberTTLSlack = 10 * time.Minute
)

// SubscriberTTL derives the subscription lifetime from a record TTL. A zero
// TTL means unknown.
func SubscriberTTL(recordTTL time.Duration) time.Duration {
	if recordTTL <= 0 {
		return DefaultSubscriberTTL
	}
	return recordTTL + subscriberTTLSlack
}

// SubscriberKey identifies a subscriber. Two subscribers with the same key
// are the same party.
type SubscriberKey struct {
	Rloc netip.Addr
	Eid  eid.Eid
}

func (k SubscriberKey) String() string {
	return fmt.Sprintf("%s@%s", k.Eid, k.Rloc)
}

// Subscriber is a party that queried an Eid and wants to hear about changes
// of the answer.
type Subscriber struct {
	// SrcRloc is the locator SMRs are sent to.
	SrcRloc netip.Addr
	// SrcEid is the Eid the request was sent from.
	SrcEid      eid.Eid
	TTL         time.Duration
	LastRequest time.Time
}

// Key returns the identity of the subscriber.
func (s Subscriber) Key() SubscriberKey {
	return SubscriberKey{Rloc: s.SrcRloc, Eid: s.SrcEid}
}

// TimedOut reports whether the subscription lapsed at now.
func (s Subscriber) TimedOut(now time.Time) bool {
	return now.Sub(s.LastRequest) > s.TTL
}

func (s Subscriber) String() string {
	return s.Key().String()
}

// KeyType is the algorithm of an authentication key.
type KeyType uint8

const (
	KeyNone KeyType = iota
	KeyHMACSHA1_96
	KeyHMACSHA256_128
)

func (t KeyType) String() string {
	switch t {
	case KeyNone:
		return "none"
	case KeyHMACSHA1_96:
		return "hmac-sha1-96"
	case KeyHMACSHA256_128:
		return "hmac-sha256-128"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseKeyType parses the String form of a key type.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return KeyNone, nil
	case "hmac-sha1-96":
		return KeyHMACSHA1_96, nil
	case "hmac-sha256-128":
		return KeyHMACSHA256_128, nil
	default:
		return 0, serrors.New("unknown key type", "type", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t KeyType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *KeyType) UnmarshalText(text []byte) error {
	v, err := ParseKeyType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// AuthKey is a shared secret used to authenticate registrations.
type AuthKey struct {
	Type KeyType
	Key  string
}

// String hides the secret.
func (k AuthKey) String() string {
	return fmt.Sprintf("%s(len=%d)", k.Type, len(k.Key))
}
