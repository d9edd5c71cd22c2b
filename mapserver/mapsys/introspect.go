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
	"context"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"go4.org/netipx"

	"github.com/lispmap/lispmap/mapserver/merge"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// GetParentPrefix returns the closest stored registration prefix covering
// key.
func (s *System) GetParentPrefix(key eid.Eid) (eid.Eid, bool) {
	return s.sb.GetParentPrefix(key)
}

// GetSubtree returns the prefixes stored in the cache of origin that key
// covers.
func (s *System) GetSubtree(origin mapping.Origin, key eid.Eid) []eid.Eid {
	return s.cache(origin).GetSubtree(key)
}

// SourceRlocs returns the source locators of the registrations merged into
// the record of key.
func (s *System) SourceRlocs(key eid.Eid) []netip.Addr {
	return s.sb.SourceRlocs(eid.Normalize(key))
}

// Entries returns the mappings of one origin in key order.
func (s *System) Entries(origin mapping.Origin) []mapping.Entry {
	var out []mapping.Entry
	s.cache(origin).Walk(func(key eid.Eid, data *mapping.Data) bool {
		out = append(out, mapping.Entry{Origin: origin, Key: key, Data: data})
		return true
	})
	return out
}

// AuthKeys returns the stored authentication keys in key order.
func (s *System) AuthKeys() []mapping.KeyEntry {
	var out []mapping.KeyEntry
	s.keys.Walk(func(key eid.Eid, k mapping.AuthKey) bool {
		out = append(out, mapping.KeyEntry{Key: key, AuthKey: k})
		return true
	})
	return out
}

// Gaps returns the address space of a virtual network that no positive
// mapping of either cache covers, as a minimal list of prefixes.
func (s *System) Gaps(vni uint32) ([]netip.Prefix, error) {
	var b netipx.IPSetBuilder
	b.AddPrefix(netip.MustParsePrefix("0.0.0.0/0"))
	b.AddPrefix(netip.MustParsePrefix("::/0"))
	remove := func(key eid.Eid, data *mapping.Data) bool {
		if key.VNI() == vni && eid.IsIP(key) && data.IsPositive() {
			b.RemovePrefix(eid.Dst(eid.AsPrefix(key)).Prefix())
		}
		return true
	}
	s.nb.Walk(remove)
	s.sb.Walk(remove)
	set, err := b.IPSet()
	if err != nil {
		return nil, serrors.Wrap("computing gaps", err, "vni", vni)
	}
	return set.Prefixes(), nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

// PrintMappings writes a table of all mappings of both caches.
func (s *System) PrintMappings(w io.Writer) {
	now := s.now()
	var rows [][]string
	for _, origin := range []mapping.Origin{mapping.Policy, mapping.Registration} {
		for _, e := range s.Entries(origin) {
			rec := e.Data.Record
			locs := "negative"
			if !rec.IsNegative() {
				l := make([]string, 0, len(rec.Locators))
				for _, loc := range rec.Locators {
					l = append(l, fmt.Sprintf("%s(%d/%d)", loc.Rloc, loc.Priority, loc.Weight))
				}
				locs = strings.Join(l, " ")
			}
			age := "-"
			if !e.Data.Timestamp.IsZero() {
				age = now.Sub(e.Data.Timestamp).Truncate(time.Second).String()
				if merge.IsExpired(e.Data, s.cfg.RegistrationValidity, now) {
					age += " (expired)"
				}
			}
			xtr := "-"
			if !e.Data.XtrID.IsZero() {
				xtr = e.Data.XtrID.String()
			}
			rows = append(rows, []string{origin.String(), e.Key.String(), locs,
				rec.TTL.String(), rec.Action.String(), xtr, age})
		}
	}
	table := newTable(w, "ORIGIN", "EID", "LOCATORS", "TTL", "ACTION", "XTR-ID", "AGE")
	table.AppendBulk(rows)
	table.Render()
}

// PrintKeys writes a table of the authentication keys. Secrets are not
// printed.
func (s *System) PrintKeys(w io.Writer) {
	var rows [][]string
	for _, e := range s.AuthKeys() {
		rows = append(rows, []string{e.Key.String(), e.AuthKey.String()})
	}
	table := newTable(w, "EID", "KEY")
	table.AppendBulk(rows)
	table.Render()
}

// CleanCaches removes all mappings, side data and keys and resets the
// timeout wheel. No change events are emitted.
func (s *System) CleanCaches() error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.nb.Clear()
	s.sb.Clear()
	s.keys.Clear()
	s.updateGauges()
	return s.resetWheel()
}

// Restore seeds the system from a snapshot. Policy mappings are stored as
// they are. Registrations go through the registration path so that they
// enter the timeout wheel, registrations that expired in the meantime are
// skipped.
func (s *System) Restore(ctx context.Context, snap mapping.Snapshot) error {
	logger := log.FromCtx(ctx)
	for _, k := range snap.AuthKeys {
		s.keys.Add(k.Key, k.AuthKey)
	}
	now := s.now()
	var restored, skipped int
	for _, e := range snap.Mappings {
		if e.Data == nil || e.Data.Record == nil {
			return serrors.JoinNoStack(ErrInvalidMapping, nil, "eid", e.Key,
				"origin", e.Origin)
		}
		if e.Origin == mapping.Policy {
			s.nb.AddMapping(eid.Normalize(e.Key), e.Data)
			restored++
			continue
		}
		if merge.IsExpired(e.Data, s.cfg.RegistrationValidity, now) {
			skipped++
			continue
		}
		if err := s.AddMapping(ctx, mapping.Registration, e.Key, e.Data); err != nil {
			return serrors.Wrap("restoring registration", err, "eid", e.Key)
		}
		restored++
	}
	s.updateGauges()
	logger.Info("Restored mapping system", "mappings", restored, "expired", skipped,
		"keys", len(snap.AuthKeys))
	return nil
}
