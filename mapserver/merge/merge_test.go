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

package merge_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/mapserver/merge"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
)

var (
	t0 = time.Unix(1_700_000_000, 0)

	cmpOpts = cmp.Options{
		cmp.Comparer(func(a, b eid.Eid) bool { return a == b }),
		cmp.Comparer(func(a, b mapping.Rloc) bool { return a.Equal(b) }),
		cmp.Comparer(func(a, b netip.Addr) bool { return a == b }),
		cmpopts.EquateEmpty(),
	}

	xtr1 = mapping.MustParseXtrID("01010101010101010101010101010101")
	xtr2 = mapping.MustParseXtrID("02020202020202020202020202020202")
	xtr3 = mapping.MustParseXtrID("03030303030303030303030303030303")
)

func loc(rloc string, prio uint8) mapping.Locator {
	return mapping.Locator{Rloc: mapping.MustParseRloc(rloc), Priority: prio, Weight: 1}
}

func registration(xtr mapping.XtrID, ttl time.Duration, ts time.Time, src string,
	locs ...mapping.Locator) *mapping.Data {

	return &mapping.Data{
		Record: &mapping.Record{
			Eid:      eid.MustParse("10.0.0.0/8"),
			Locators: locs,
			TTL:      ttl,
		},
		XtrID:        xtr,
		MergeEnabled: true,
		Timestamp:    ts,
		SourceRloc:   netip.MustParseAddr(src),
	}
}

func TestIsExpired(t *testing.T) {
	d := &mapping.Data{Timestamp: t0}
	assert.False(t, merge.IsExpired(d, time.Minute, t0.Add(time.Minute)))
	assert.True(t, merge.IsExpired(d, time.Minute, t0.Add(time.Minute+1)))
	assert.False(t, merge.IsExpired(&mapping.Data{}, time.Minute, t0), "no timestamp")
	assert.False(t, merge.IsExpired(nil, time.Minute, t0))
}

func TestXtrMappings(t *testing.T) {
	local := loc("2.2.2.2", 1)
	local.Local = true
	r1 := registration(xtr1, 10*time.Minute, t0.Add(5*time.Second), "9.9.9.1",
		loc("3.3.3.3", 1), loc("2.2.2.2", 7))
	r2 := registration(xtr2, 5*time.Minute, t0, "9.9.9.2", local, loc("1.1.1.1", 2))
	r3 := registration(xtr3, time.Minute, t0.Add(-time.Hour), "9.9.9.3", loc("4.4.4.4", 1))

	merged, expired, srcs := merge.XtrMappings(
		[]*mapping.Data{r3, r2, r1}, 200*time.Second, t0.Add(10*time.Second))

	want := &mapping.Data{
		Record: &mapping.Record{
			Eid:      eid.MustParse("10.0.0.0/8"),
			Locators: []mapping.Locator{loc("1.1.1.1", 2), local, loc("3.3.3.3", 1)},
			TTL:      5 * time.Minute,
		},
		XtrID:        xtr2,
		MergeEnabled: true,
		Timestamp:    t0,
		SourceRloc:   netip.MustParseAddr("9.9.9.2"),
	}
	if diff := cmp.Diff(want, merged, cmpOpts); diff != "" {
		t.Errorf("merged mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []mapping.XtrID{xtr3}, expired)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("9.9.9.1"), netip.MustParseAddr("9.9.9.2"),
	}, srcs)
	assert.Len(t, r1.Record.Locators, 2, "inputs are not modified")

	t.Run("idempotent", func(t *testing.T) {
		again, expired, _ := merge.XtrMappings([]*mapping.Data{merged},
			200*time.Second, t0.Add(10*time.Second))
		assert.Empty(t, expired)
		if diff := cmp.Diff(merged, again, cmpOpts); diff != "" {
			t.Errorf("merge is not idempotent (-first +second):\n%s", diff)
		}
	})

	t.Run("local locator is kept", func(t *testing.T) {
		m, _, _ := merge.XtrMappings([]*mapping.Data{r2, r1}, time.Hour, t0)
		require.NotNil(t, m)
		assert.True(t, m.Record.Locators[1].Local)
		assert.Equal(t, uint8(1), m.Record.Locators[1].Priority)
	})

	t.Run("nothing survives", func(t *testing.T) {
		m, expired, srcs := merge.XtrMappings([]*mapping.Data{r3}, time.Second, t0)
		assert.Nil(t, m)
		assert.Equal(t, []mapping.XtrID{xtr3}, expired)
		assert.Empty(t, srcs)
	})
}

func TestNbSbIntersection(t *testing.T) {
	record := func(key string, locs ...mapping.Locator) *mapping.Record {
		return &mapping.Record{Eid: eid.MustParse(key), Locators: locs, TTL: time.Hour,
			Authoritative: true}
	}
	testCases := map[string]struct {
		NB   *mapping.Record
		SB   *mapping.Record
		Want *mapping.Record
	}{
		"common locators in policy order": {
			NB:   record("1.1.0.0/17", loc("3.3.3.3", 1), loc("1.1.1.1", 2), loc("2.2.2.2", 3)),
			SB:   record("1.1.64.0/18", loc("1.1.1.1", 9), loc("3.3.3.3", 9)),
			Want: record("1.1.64.0/18", loc("3.3.3.3", 1), loc("1.1.1.1", 2)),
		},
		"policy eid is more specific": {
			NB:   record("1.1.0.0/17", loc("1.1.1.1", 1)),
			SB:   record("1.0.0.0/8", loc("1.1.1.1", 1)),
			Want: record("1.1.0.0/17", loc("1.1.1.1", 1)),
		},
		"unreachable registration": {
			NB:   record("1.1.0.0/17", loc("1.1.1.1", 1)),
			SB:   record("1.1.0.0/17", loc("1.1.1.1", 255)),
			Want: record("1.1.0.0/17", loc("1.1.1.1", 255)),
		},
		"empty intersection keeps policy": {
			NB:   record("1.1.0.0/17", loc("1.1.1.1", 1)),
			SB:   record("1.1.0.0/17", loc("2.2.2.2", 1)),
			Want: record("1.1.0.0/17", loc("1.1.1.1", 1)),
		},
		"negative policy": {
			NB:   record("1.1.0.0/17"),
			SB:   record("1.1.0.0/24", loc("2.2.2.2", 1)),
			Want: record("1.1.0.0/24"),
		},
		"source dest keeps the source": {
			NB:   record("2.0.0.0/8|1.1.0.0/16", loc("1.1.1.1", 1)),
			SB:   record("1.1.64.0/18", loc("1.1.1.1", 1)),
			Want: record("2.0.0.0/8|1.1.64.0/18", loc("1.1.1.1", 1)),
		},
		"non ip": {
			NB:   record("kv:a=b", loc("1.1.1.1", 1)),
			SB:   record("kv:a=b", loc("1.1.1.1", 1)),
			Want: record("kv:a=b", loc("1.1.1.1", 1)),
		},
		"no registration": {
			NB:   record("1.1.0.0/17", loc("1.1.1.1", 1)),
			Want: record("1.1.0.0/17", loc("1.1.1.1", 1)),
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := merge.NbSbIntersection(tc.NB, tc.SB)
			if diff := cmp.Diff(tc.Want, got, cmpOpts); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNarrowReply(t *testing.T) {
	testCases := map[string]struct {
		Reply      string
		Candidates []string
		Want       string
	}{
		"branch is more specific": {
			Reply:      "1.1.128.0/17",
			Candidates: []string{"1.1.192.0/18", "1.1.128.0/17"},
			Want:       "1.1.192.0/18",
		},
		"reply is most specific": {
			Reply:      "1.1.64.0/18",
			Candidates: []string{"1.1.0.0/17", "1.1.64.0/18"},
			Want:       "1.1.64.0/18",
		},
		"other family ignored": {
			Reply:      "1.1.0.0/16",
			Candidates: []string{"2001:db8::/32"},
			Want:       "1.1.0.0/16",
		},
		"source dest": {
			Reply:      "2.0.0.0/8|1.1.0.0/16",
			Candidates: []string{"1.1.128.0/17"},
			Want:       "2.0.0.0/8|1.1.128.0/17",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var cands []eid.Eid
			for _, c := range tc.Candidates {
				cands = append(cands, eid.MustParse(c))
			}
			cands = append(cands, eid.Eid{})
			got := merge.NarrowReply(eid.MustParse(tc.Reply), cands...)
			assert.Equal(t, tc.Want, got.String())
		})
	}
}
