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
	"net/netip"

	"go4.org/netipx"
)

// Normalize zeroes the host bits of prefix kinds. For source/dest keys both
// halves are normalized. Service paths lose their service index, the mapping
// of a path covers all of its hops. Other kinds are returned unchanged.
func Normalize(e Eid) Eid {
	switch e.kind {
	case KindServicePath:
		e.si = 0
	case KindIPPrefix:
		e.dst = e.dst.Masked()
	case KindSourceDest:
		e.dst = e.dst.Masked()
		e.src = e.src.Masked()
	}
	return e
}

// IsMaskable reports whether e supports longest prefix matching.
func IsMaskable(e Eid) bool {
	switch e.kind {
	case KindIPPrefix, KindSourceDest:
		return true
	default:
		return false
	}
}

// IsIP reports whether e is addressed by an IP address or prefix. Only those
// kinds are stored in a trie.
func IsIP(e Eid) bool {
	switch e.kind {
	case KindIP, KindIPPrefix, KindSourceDest:
		return true
	default:
		return false
	}
}

// MaskLen returns the mask length of e. Point addresses have the full length,
// source/dest keys the destination mask and non-IP kinds zero.
func MaskLen(e Eid) int {
	if !IsIP(e) {
		return 0
	}
	return e.dst.Bits()
}

// Bits returns the address width of e: 32, 128 or 0 for non-IP kinds.
func Bits(e Eid) int {
	if !IsIP(e) {
		return 0
	}
	return e.dst.Addr().BitLen()
}

// AsPrefix turns a point address into its full-length prefix. Other kinds are
// returned as is.
func AsPrefix(e Eid) Eid {
	if e.kind != KindIP {
		return e
	}
	e.kind = KindIPPrefix
	return e
}

// Dst projects a source/dest key to its destination prefix. Other kinds are
// returned as is.
func Dst(e Eid) Eid {
	if e.kind != KindSourceDest {
		return e
	}
	return Eid{kind: KindIPPrefix, vni: e.vni, dst: e.dst}
}

// Src projects a source/dest key to its source prefix. Other kinds are
// returned as is.
func Src(e Eid) Eid {
	if e.kind != KindSourceDest {
		return e
	}
	return Eid{kind: KindIPPrefix, vni: e.vni, dst: e.src}
}

// WithMask returns the address of e masked to bits. A point address becomes a
// prefix. For source/dest keys the destination mask is changed. Non-IP kinds
// and out of range lengths return e unchanged.
func WithMask(e Eid, bits int) Eid {
	if !IsIP(e) || bits < 0 || bits > e.dst.Addr().BitLen() {
		return e
	}
	p := netip.PrefixFrom(e.dst.Addr(), bits).Masked()
	if e.kind == KindSourceDest {
		e.dst = p
		return e
	}
	return Eid{kind: KindIPPrefix, vni: e.vni, dst: p}
}

// Covers reports whether a is equal to or less specific than b and contains
// it. Both must be in the same VNI and address family. Non-IP kinds only
// cover themselves.
func Covers(a, b Eid) bool {
	if a.vni != b.vni {
		return false
	}
	if !IsIP(a) || !IsIP(b) {
		return a == b
	}
	pa, pb := a.dst, b.dst
	if pa.Addr().BitLen() != pb.Addr().BitLen() {
		return false
	}
	return pa.Bits() <= pb.Bits() && pa.Contains(pb.Addr())
}

// ParentPrefix returns the prefix one bit shorter than e. It returns false for
// zero-length prefixes and non-IP kinds.
func ParentPrefix(e Eid) (Eid, bool) {
	if !IsIP(e) || e.dst.Bits() == 0 {
		return Eid{}, false
	}
	return WithMask(e, e.dst.Bits()-1), true
}

// SiblingPrefix returns the prefix of the same length as e that differs only
// in the last mask bit. It returns false for zero-length prefixes and non-IP
// kinds.
func SiblingPrefix(e Eid) (Eid, bool) {
	if !IsIP(e) || e.dst.Bits() == 0 {
		return Eid{}, false
	}
	bits := e.dst.Bits()
	sib := netip.PrefixFrom(flipBit(e.dst.Addr(), bits-1), bits)
	if e.kind == KindSourceDest {
		e.dst = sib
		return e, true
	}
	return Eid{kind: KindIPPrefix, vni: e.vni, dst: sib}, true
}

// Range returns the address range covered by the destination of e.
func Range(e Eid) netipx.IPRange {
	if !IsIP(e) {
		return netipx.IPRange{}
	}
	return netipx.RangeOfPrefix(e.dst)
}

// LastAddr returns the last address covered by the destination of e.
func LastAddr(e Eid) netip.Addr {
	if !IsIP(e) {
		return netip.Addr{}
	}
	return netipx.PrefixLastIP(e.dst)
}

// Bit returns bit i of addr, counted from the most significant bit.
func Bit(addr netip.Addr, i int) bool {
	b := addr.AsSlice()
	return b[i/8]&(0x80>>(i%8)) != 0
}

func flipBit(addr netip.Addr, i int) netip.Addr {
	b := addr.AsSlice()
	b[i/8] ^= 0x80 >> (i % 8)
	r, _ := netip.AddrFromSlice(b)
	return r
}
