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

package eid

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// Parse parses the text form of an Eid:
//
//	[vni]10.1.0.0/16          prefix
//	10.1.2.3                  point address
//	10.0.0.0/8|20.0.0.0/8     source/dest
//	mac:00:11:22:33:44:55
//	kv:key=value
//	sp:42:255                 service path id and index
//	dn:name
//
// The optional [vni] prefix applies to every kind.
func Parse(s string) (Eid, error) {
	orig := s
	var vni uint32
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return Eid{}, serrors.New("unterminated vni", "eid", orig)
		}
		v, err := strconv.ParseUint(s[1:end], 10, 32)
		if err != nil {
			return Eid{}, serrors.Wrap("parsing vni", err, "eid", orig)
		}
		vni = uint32(v)
		s = s[end+1:]
	}
	switch {
	case strings.HasPrefix(s, "mac:"):
		hw, err := net.ParseMAC(s[len("mac:"):])
		if err != nil || len(hw) != 6 {
			return Eid{}, serrors.New("invalid mac", "eid", orig)
		}
		var mac [6]byte
		copy(mac[:], hw)
		return NewMAC(vni, mac), nil
	case strings.HasPrefix(s, "kv:"):
		k, v, ok := strings.Cut(s[len("kv:"):], "=")
		if !ok {
			return Eid{}, serrors.New("key value without '='", "eid", orig)
		}
		return NewKeyValue(vni, k, v), nil
	case strings.HasPrefix(s, "sp:"):
		spiStr, siStr, ok := strings.Cut(s[len("sp:"):], ":")
		if !ok {
			return Eid{}, serrors.New("service path without index", "eid", orig)
		}
		spi, err := strconv.ParseUint(spiStr, 10, 24)
		if err != nil {
			return Eid{}, serrors.Wrap("parsing service path id", err, "eid", orig)
		}
		si, err := strconv.ParseUint(siStr, 10, 8)
		if err != nil {
			return Eid{}, serrors.Wrap("parsing service index", err, "eid", orig)
		}
		return NewServicePath(vni, uint32(spi), uint8(si)), nil
	case strings.HasPrefix(s, "dn:"):
		return NewDistinguishedName(vni, s[len("dn:"):]), nil
	}
	if src, dst, ok := strings.Cut(s, "|"); ok {
		sp, err := netip.ParsePrefix(src)
		if err != nil {
			return Eid{}, serrors.Wrap("parsing source prefix", err, "eid", orig)
		}
		dp, err := netip.ParsePrefix(dst)
		if err != nil {
			return Eid{}, serrors.Wrap("parsing destination prefix", err, "eid", orig)
		}
		if sp.Addr().Is4() != dp.Addr().Is4() {
			return Eid{}, serrors.New("mixed address families", "eid", orig)
		}
		return NewSourceDest(vni, sp, dp), nil
	}
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return Eid{}, serrors.Wrap("parsing prefix", err, "eid", orig)
		}
		return NewPrefix(vni, p), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Eid{}, serrors.Wrap("parsing address", err, "eid", orig)
	}
	return NewIP(vni, a), nil
}

// MustParse is like Parse but panics on error. It is intended for tests and
// static initialization.
func MustParse(s string) Eid {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}
