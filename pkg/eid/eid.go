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

// Package eid defines the endpoint identifier (EID), the key type of the
// mapping system.
//
// An Eid is an immutable, comparable value that can be used as a map key. It
// is a tagged variant over a closed set of kinds. Code that needs per-kind
// behavior switches over Kind:
//
//	switch e.Kind() {
//	case eid.KindIPPrefix:
//		...
//	}
//
// Every Eid belongs to a virtual network identified by its VNI. VNI 0 is the
// default namespace. Prefix kinds are always normalized: host bits beyond the
// mask are zero.
package eid

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Kind is the address kind of an Eid.
type Kind uint8

// The supported kinds. The zero Kind marks the zero Eid.
const (
	KindNone Kind = iota
	// KindIP is a single IPv4 or IPv6 address.
	KindIP
	// KindIPPrefix is an IPv4 or IPv6 prefix.
	KindIPPrefix
	// KindMAC is a 48-bit MAC address.
	KindMAC
	// KindSourceDest is a pair of a source and a destination prefix.
	KindSourceDest
	// KindKeyValue is an opaque key/value pair.
	KindKeyValue
	// KindServicePath is a service function chain position, a 24-bit service
	// path identifier and an 8-bit service index.
	KindServicePath
	// KindDistinguishedName is an opaque name.
	KindDistinguishedName
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindIP:
		return "ip"
	case KindIPPrefix:
		return "ip_prefix"
	case KindMAC:
		return "mac"
	case KindSourceDest:
		return "source_dest"
	case KindKeyValue:
		return "key_value"
	case KindServicePath:
		return "service_path"
	case KindDistinguishedName:
		return "distinguished_name"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// MaxServicePathID is the largest service path identifier.
const MaxServicePathID = 1<<24 - 1

// Eid is an endpoint identifier. The zero value is not a valid Eid.
type Eid struct {
	kind Kind
	vni  uint32
	// dst holds the address of KindIP (full length), the prefix of
	// KindIPPrefix and the destination of KindSourceDest.
	dst netip.Prefix
	src netip.Prefix
	mac [6]byte
	// key holds the key of KindKeyValue and the name of
	// KindDistinguishedName.
	key   string
	value string
	spi   uint32
	si    uint8
}

// NewIP creates a point Eid for a single address.
func NewIP(vni uint32, addr netip.Addr) Eid {
	addr = addr.Unmap()
	return Eid{kind: KindIP, vni: vni, dst: netip.PrefixFrom(addr, addr.BitLen())}
}

// NewPrefix creates a prefix Eid. Host bits are zeroed.
func NewPrefix(vni uint32, p netip.Prefix) Eid {
	return Eid{kind: KindIPPrefix, vni: vni, dst: unmapPrefix(p).Masked()}
}

// NewMAC creates a MAC Eid.
func NewMAC(vni uint32, mac [6]byte) Eid {
	return Eid{kind: KindMAC, vni: vni, mac: mac}
}

// NewSourceDest creates a source/destination Eid. Host bits of both halves
// are zeroed.
func NewSourceDest(vni uint32, src, dst netip.Prefix) Eid {
	return Eid{
		kind: KindSourceDest,
		vni:  vni,
		src:  unmapPrefix(src).Masked(),
		dst:  unmapPrefix(dst).Masked(),
	}
}

// NewKeyValue creates a key/value Eid.
func NewKeyValue(vni uint32, key, value string) Eid {
	return Eid{kind: KindKeyValue, vni: vni, key: key, value: value}
}

// NewServicePath creates a service path Eid. Only the lower 24 bits of spi
// are used.
func NewServicePath(vni uint32, spi uint32, si uint8) Eid {
	return Eid{kind: KindServicePath, vni: vni, spi: spi & MaxServicePathID, si: si}
}

// NewDistinguishedName creates a distinguished name Eid.
func NewDistinguishedName(vni uint32, name string) Eid {
	return Eid{kind: KindDistinguishedName, vni: vni, key: name}
}

func unmapPrefix(p netip.Prefix) netip.Prefix {
	if !p.Addr().Is4In6() {
		return p
	}
	bits := p.Bits() - 96
	if bits < 0 {
		bits = 0
	}
	return netip.PrefixFrom(p.Addr().Unmap(), bits)
}

// Kind returns the kind of the Eid.
func (e Eid) Kind() Kind { return e.kind }

// VNI returns the virtual network identifier.
func (e Eid) VNI() uint32 { return e.vni }

// IsZero reports whether e is the zero Eid.
func (e Eid) IsZero() bool { return e.kind == KindNone }

// Prefix returns the prefix of IP kinds. A KindIP Eid returns its full-length
// prefix and a KindSourceDest Eid its destination. Other kinds return the
// zero prefix.
func (e Eid) Prefix() netip.Prefix { return e.dst }

// Addr returns the address of IP kinds.
func (e Eid) Addr() netip.Addr { return e.dst.Addr() }

// SrcPrefix returns the source prefix of a KindSourceDest Eid.
func (e Eid) SrcPrefix() netip.Prefix { return e.src }

// MAC returns the MAC address of a KindMAC Eid.
func (e Eid) MAC() net.HardwareAddr {
	if e.kind != KindMAC {
		return nil
	}
	return net.HardwareAddr(append([]byte(nil), e.mac[:]...))
}

// KeyValue returns the key and value of a KindKeyValue Eid.
func (e Eid) KeyValue() (string, string) { return e.key, e.value }

// ServicePath returns the service path identifier and service index of a
// KindServicePath Eid.
func (e Eid) ServicePath() (uint32, uint8) { return e.spi, e.si }

// Name returns the name of a KindDistinguishedName Eid.
func (e Eid) Name() string {
	if e.kind != KindDistinguishedName {
		return ""
	}
	return e.key
}

// WithVNI returns a copy of e in another virtual network.
func (e Eid) WithVNI(vni uint32) Eid {
	e.vni = vni
	return e
}

// String returns the text form understood by Parse.
func (e Eid) String() string {
	var b strings.Builder
	if e.vni != 0 {
		fmt.Fprintf(&b, "[%d]", e.vni)
	}
	switch e.kind {
	case KindNone:
		return "<none>"
	case KindIP:
		b.WriteString(e.dst.Addr().String())
	case KindIPPrefix:
		b.WriteString(e.dst.String())
	case KindMAC:
		b.WriteString("mac:")
		b.WriteString(net.HardwareAddr(e.mac[:]).String())
	case KindSourceDest:
		b.WriteString(e.src.String())
		b.WriteString("|")
		b.WriteString(e.dst.String())
	case KindKeyValue:
		fmt.Fprintf(&b, "kv:%s=%s", e.key, e.value)
	case KindServicePath:
		fmt.Fprintf(&b, "sp:%d:%d", e.spi, e.si)
	case KindDistinguishedName:
		b.WriteString("dn:")
		b.WriteString(e.key)
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (e Eid) MarshalText() ([]byte, error) {
	if e.IsZero() {
		return []byte{}, nil
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Eid) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*e = Eid{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Compare returns an integer comparing two Eids. The order is by VNI, kind,
// then by the kind specific payload. For prefixes shorter masks sort first
// among equal addresses.
func Compare(a, b Eid) int {
	if c := cmpInt(int64(a.vni), int64(b.vni)); c != 0 {
		return c
	}
	if c := cmpInt(int64(a.kind), int64(b.kind)); c != 0 {
		return c
	}
	switch a.kind {
	case KindIP, KindIPPrefix:
		return comparePrefix(a.dst, b.dst)
	case KindSourceDest:
		if c := comparePrefix(a.dst, b.dst); c != 0 {
			return c
		}
		return comparePrefix(a.src, b.src)
	case KindMAC:
		return strings.Compare(string(a.mac[:]), string(b.mac[:]))
	case KindKeyValue:
		if c := strings.Compare(a.key, b.key); c != 0 {
			return c
		}
		return strings.Compare(a.value, b.value)
	case KindServicePath:
		if c := cmpInt(int64(a.spi), int64(b.spi)); c != 0 {
			return c
		}
		return cmpInt(int64(a.si), int64(b.si))
	case KindDistinguishedName:
		return strings.Compare(a.key, b.key)
	}
	return 0
}

func comparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return cmpInt(int64(a.Bits()), int64(b.Bits()))
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
