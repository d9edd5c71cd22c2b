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
	"fmt"
	"net/netip"
	"strings"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// RlocKind is the kind of a routing locator.
type RlocKind uint8

const (
	// RlocIP is a plain IPv4 or IPv6 locator.
	RlocIP RlocKind = iota + 1
	// RlocELP is an explicit locator path.
	RlocELP
)

// Hop is one hop of an explicit locator path.
type Hop struct {
	Addr   netip.Addr
	Lookup bool
	Probe  bool
	Strict bool
}

func (h Hop) String() string {
	var flags string
	if h.Lookup {
		flags += "l"
	}
	if h.Probe {
		flags += "p"
	}
	if h.Strict {
		flags += "s"
	}
	if flags == "" {
		return h.Addr.String()
	}
	return h.Addr.String() + "|" + flags
}

// Rloc is a routing locator. The zero value is invalid.
type Rloc struct {
	kind RlocKind
	addr netip.Addr
	hops []Hop
}

// NewIPRloc returns a plain address locator.
func NewIPRloc(addr netip.Addr) Rloc {
	return Rloc{kind: RlocIP, addr: addr.Unmap()}
}

// NewELP returns an explicit locator path locator. The hops are copied.
func NewELP(hops ...Hop) Rloc {
	return Rloc{kind: RlocELP, hops: append([]Hop(nil), hops...)}
}

// MustParseRloc is like ParseRloc but panics on error.
func MustParseRloc(s string) Rloc {
	r, err := ParseRloc(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseRloc parses an address or an explicit locator path of the form
// "elp:1.1.1.1,2.2.2.2|lps". The optional letters after '|' set the lookup,
// probe and strict flags of a hop.
func ParseRloc(s string) (Rloc, error) {
	if !strings.HasPrefix(s, "elp:") {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return Rloc{}, serrors.Wrap("parsing rloc", err, "rloc", s)
		}
		return NewIPRloc(a), nil
	}
	var hops []Hop
	for _, h := range strings.Split(s[len("elp:"):], ",") {
		addr, flags, _ := strings.Cut(h, "|")
		a, err := netip.ParseAddr(addr)
		if err != nil {
			return Rloc{}, serrors.Wrap("parsing elp hop", err, "rloc", s)
		}
		hop := Hop{Addr: a.Unmap()}
		for _, f := range flags {
			switch f {
			case 'l':
				hop.Lookup = true
			case 'p':
				hop.Probe = true
			case 's':
				hop.Strict = true
			default:
				return Rloc{}, serrors.New("unknown hop flag", "rloc", s, "flag", string(f))
			}
		}
		hops = append(hops, hop)
	}
	return NewELP(hops...), nil
}

// Kind returns the locator kind.
func (r Rloc) Kind() RlocKind { return r.kind }

// Addr returns the address of a plain locator.
func (r Rloc) Addr() netip.Addr { return r.addr }

// Hops returns a copy of the hops of an explicit locator path.
func (r Rloc) Hops() []Hop { return append([]Hop(nil), r.hops...) }

// IsZero reports whether r is the zero Rloc.
func (r Rloc) IsZero() bool { return r.kind == 0 }

// Equal reports whether two locators are structurally equal.
func (r Rloc) Equal(o Rloc) bool {
	return r.Compare(o) == 0
}

// Compare orders locators by kind, then address bytes, then hops.
func (r Rloc) Compare(o Rloc) int {
	switch {
	case r.kind < o.kind:
		return -1
	case r.kind > o.kind:
		return 1
	}
	if c := bytes.Compare(r.addr.AsSlice(), o.addr.AsSlice()); c != 0 {
		return c
	}
	n := len(r.hops)
	if len(o.hops) < n {
		n = len(o.hops)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(r.hops[i].Addr.AsSlice(), o.hops[i].Addr.AsSlice()); c != 0 {
			return c
		}
		if c := strings.Compare(r.hops[i].String(), o.hops[i].String()); c != 0 {
			return c
		}
	}
	switch {
	case len(r.hops) < len(o.hops):
		return -1
	case len(r.hops) > len(o.hops):
		return 1
	}
	return 0
}

func (r Rloc) String() string {
	switch r.kind {
	case RlocIP:
		return r.addr.String()
	case RlocELP:
		hops := make([]string, 0, len(r.hops))
		for _, h := range r.hops {
			hops = append(hops, h.String())
		}
		return "elp:" + strings.Join(hops, ",")
	default:
		return fmt.Sprintf("<invalid rloc kind %d>", r.kind)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Rloc) MarshalText() ([]byte, error) {
	if r.IsZero() {
		return []byte{}, nil
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rloc) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Rloc{}
		return nil
	}
	parsed, err := ParseRloc(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
