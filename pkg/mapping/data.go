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
	"bytes"
	"encoding/hex"
	"net/netip"
	"time"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// XtrID identifies a registering xTR. The zero value means none.
type XtrID [16]byte

// ParseXtrID parses the hexadecimal form of an xTR-ID.
func ParseXtrID(s string) (XtrID, error) {
	var id XtrID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, serrors.Wrap("parsing xtr id", err, "xtr_id", s)
	}
	if len(b) != len(id) {
		return id, serrors.New("invalid xtr id length", "xtr_id", s, "len", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// MustParseXtrID is like ParseXtrID but panics on error.
func MustParseXtrID(s string) XtrID {
	id, err := ParseXtrID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether the id is unset.
func (x XtrID) IsZero() bool { return x == XtrID{} }

// Compare orders xTR-IDs bytewise.
func (x XtrID) Compare(o XtrID) int { return bytes.Compare(x[:], o[:]) }

func (x XtrID) String() string { return hex.EncodeToString(x[:]) }

// MarshalText implements encoding.TextMarshaler.
func (x XtrID) MarshalText() ([]byte, error) {
	if x.IsZero() {
		return []byte{}, nil
	}
	return []byte(x.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (x *XtrID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*x = XtrID{}
		return nil
	}
	id, err := ParseXtrID(string(text))
	if err != nil {
		return err
	}
	*x = id
	return nil
}

// Data is a mapping record together with its registration metadata.
type Data struct {
	Record *Record
	// XtrID identifies the registering xTR. Zero for policy mappings.
	XtrID XtrID
	// MergeEnabled is set when the registration opts into merging the
	// locators of all xTRs registering the same Eid.
	MergeEnabled bool
	// Timestamp is the registration or refresh time. It is zero for policy
	// and negative mappings, which never expire.
	Timestamp time.Time
	// SourceRloc is the address the registration was received from.
	SourceRloc netip.Addr
}

// IsPositive reports whether the data holds a record with locators.
func (d *Data) IsPositive() bool {
	return d != nil && d.Record != nil && !d.Record.IsNegative()
}

// IsNegative reports whether the data holds a record without locators.
func (d *Data) IsNegative() bool {
	return d != nil && d.Record != nil && d.Record.IsNegative()
}

// Clone returns a deep copy.
func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	c := *d
	c.Record = d.Record.Clone()
	return &c
}

// WithTimestamp returns a copy with the timestamp replaced.
func (d *Data) WithTimestamp(ts time.Time) *Data {
	c := d.Clone()
	c.Timestamp = ts
	return c
}
