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

package mapsys_test

import (
	"bytes"
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/mapserver/mapsys"
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/mapserver/notify/mock_notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
)

func TestLongestPrefixMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	f.add(t, mapping.Policy, "10.0.0.0/8", positive("10.0.0.0/8", "1.1.1.1"))
	f.add(t, mapping.Policy, "10.1.0.0/16", positive("10.1.0.0/16", "2.2.2.2"))
	f.add(t, mapping.Registration, "10.1.2.0/24", positive("10.1.2.0/24", "3.3.3.3"))
	f.add(t, mapping.Registration, "20.0.0.0/8", positive("20.0.0.0/8", "4.4.4.4"))
	f.add(t, mapping.Policy, "[7]10.0.0.0/8", positive("[7]10.0.0.0/8", "7.7.7.7"))

	testCases := map[string]struct {
		Dst   string
		Rlocs []string
	}{
		"policy first":          {Dst: "10.1.2.3", Rlocs: []string{"2.2.2.2"}},
		"less specific":         {Dst: "10.2.0.1", Rlocs: []string{"1.1.1.1"}},
		"registration fallback": {Dst: "20.1.1.1", Rlocs: []string{"4.4.4.4"}},
		"other vni":             {Dst: "[7]10.1.2.3", Rlocs: []string{"7.7.7.7"}},
		"miss":                  {Dst: "30.0.0.1"},
		"unknown vni":           {Dst: "[8]10.1.2.3"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := f.sys.GetMapping(ctx, eid.Eid{}, mustEid(tc.Dst))
			if tc.Rlocs == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.Rlocs, rlocs(got))
		})
	}
}

// TestNegativeSynthesis resolves addresses in the gaps between policy
// entries for 1.2.0.0/16 and 1.1.128.0/17 and registrations for 1.1.32.0/19
// and 1.0.0.0/8.
func TestNegativeSynthesis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{LookupPolicy: mapsys.NBAndSB})
	f.add(t, mapping.Registration, "1.1.32.0/19", positive("1.1.32.0/19", "10.0.0.1"))
	f.add(t, mapping.Registration, "1.0.0.0/8", positive("1.0.0.0/8", "10.0.0.2"))
	f.add(t, mapping.Policy, "1.2.0.0/16", positive("1.2.0.0/16", "10.0.0.3"))
	f.add(t, mapping.Policy, "1.1.128.0/17", positive("1.1.128.0/17", "10.0.0.4"))

	got := f.sys.Resolve(ctx, eid.Eid{}, mustEid("1.1.127.10"))
	require.NotNil(t, got)
	assert.True(t, got.IsNegative())
	assert.Equal(t, mustEid("1.1.64.0/18"), got.Record.Eid)
	assert.Equal(t, mapping.NativelyForward, got.Record.Action)
	assert.Equal(t, mapsys.DefaultNegativeTTL, got.Record.TTL)

	// The synthesized negative now answers directly.
	again := f.sys.GetMapping(ctx, eid.Eid{}, mustEid("1.1.100.1"))
	require.NotNil(t, again)
	assert.Equal(t, mustEid("1.1.64.0/18"), again.Record.Eid)

	got = f.sys.Resolve(ctx, eid.Eid{}, mustEid("1.1.200.255"))
	require.NotNil(t, got)
	assert.True(t, got.IsPositive())
	assert.Equal(t, mustEid("1.1.192.0/18"), got.Record.Eid)
	assert.Equal(t, []string{"10.0.0.4"}, rlocs(got))

	got = f.sys.Resolve(ctx, eid.Eid{}, mustEid("1.3.255.255"))
	require.NotNil(t, got)
	assert.True(t, got.IsNegative())
	assert.Equal(t, mustEid("1.3.0.0/16"), got.Record.Eid)
}

func TestWidestNegativePrefix(t *testing.T) {
	f := newFixture(t, mapsys.Config{})
	neg, ok := f.sys.GetWidestNegativePrefix(mustEid("10.0.0.1"))
	assert.True(t, ok)
	assert.Equal(t, mustEid("0.0.0.0/0"), neg)

	f.add(t, mapping.Policy, "11.0.0.0/8", positive("11.0.0.0/8", "1.1.1.1"))
	neg, ok = f.sys.GetWidestNegativePrefix(mustEid("10.0.0.1"))
	assert.True(t, ok)
	assert.Equal(t, mustEid("10.0.0.0/8"), neg)

	_, ok = f.sys.GetWidestNegativePrefix(mustEid("11.2.3.4"))
	assert.False(t, ok)
	_, ok = f.sys.GetWidestNegativePrefix(mustEid("kv:a=b"))
	assert.False(t, ok)
}

func TestAuthenticatedNegativeTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	f.add(t, mapping.Policy, "31.0.0.0/8", positive("31.0.0.0/8", "1.1.1.1"))
	f.sys.AddAuthenticationKey(mustEid("30.0.0.0/8"),
		mapping.AuthKey{Type: mapping.KeyHMACSHA1_96, Key: "k"})

	neg := f.sys.AddNegativeMapping(ctx, mustEid("30.1.1.1"))
	assert.Equal(t, mustEid("30.0.0.0/8"), neg.Record.Eid)
	assert.Equal(t, mapsys.DefaultAuthNegativeTTL, neg.Record.TTL)

	neg = f.sys.AddNegativeMapping(ctx, mustEid("64.0.0.1"))
	assert.Equal(t, mapsys.DefaultNegativeTTL, neg.Record.TTL)
}

func TestNegativeSupersedesFragments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	f.add(t, mapping.Policy, "11.0.0.0/8", positive("11.0.0.0/8", "1.1.1.1"))
	f.add(t, mapping.Registration, "10.1.0.0/16", negative("10.1.0.0/16"))
	f.add(t, mapping.Registration, "10.2.0.0/16", negative("10.2.0.0/16"))

	// The stored fragments leave no negative prefix around 10.0.0.0/8, so the
	// key itself is installed and replaces them.
	neg := f.sys.AddNegativeMapping(ctx, mustEid("10.0.0.0/8"))
	assert.Equal(t, mustEid("10.0.0.0/8"), neg.Record.Eid)
	var got []string
	for _, e := range f.sys.Entries(mapping.Registration) {
		got = append(got, e.Key.String())
	}
	assert.Equal(t, []string{"10.0.0.0/8"}, got)
}

func TestResolveKeepsRegistrations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{LookupPolicy: mapsys.NBAndSB})
	f.add(t, mapping.Registration, "153.16.254.1/32",
		positive("153.16.254.1/32", "4.3.2.1"))
	f.add(t, mapping.Registration, "30.0.0.0/8", positive("30.0.0.0/8", "3.3.3.3"))

	got := f.sys.Resolve(ctx, eid.Eid{}, mustEid("153.16.254.1"))
	require.NotNil(t, got)
	assert.True(t, got.IsNegative())
	assert.Equal(t, mustEid("153.16.254.1/32"), got.Record.Eid)

	got = f.sys.Resolve(ctx, eid.Eid{}, mustEid("30.1.1.1"))
	require.NotNil(t, got)
	assert.True(t, got.IsNegative())

	stored := f.sys.GetOriginMapping(ctx, mapping.Registration, mustEid("153.16.254.1/32"))
	require.NotNil(t, stored)
	assert.Equal(t, []string{"4.3.2.1"}, rlocs(stored))
	var keys []string
	for _, e := range f.sys.Entries(mapping.Registration) {
		keys = append(keys, e.Key.String())
	}
	assert.Equal(t, []string{"30.0.0.0/8", "153.16.254.1/32"}, keys)

	f.sys.SetLookupPolicy(mapsys.NBFirst)
	got = f.sys.GetMapping(ctx, eid.Eid{}, mustEid("30.1.1.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"3.3.3.3"}, rlocs(got))
}

func TestIntersection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{LookupPolicy: mapsys.NBAndSB})
	f.add(t, mapping.Policy, "10.0.0.0/8", positive("10.0.0.0/8", "1.1.1.1", "2.2.2.2"))
	sb := positive("10.0.0.0/8", "3.3.3.3", "2.2.2.2")
	sb.Record.Locators[1].Priority = mapping.UnreachablePriority
	f.add(t, mapping.Registration, "10.0.0.0/8", sb)
	f.add(t, mapping.Policy, "20.0.0.0/8", positive("20.0.0.0/8", "1.1.1.1"))
	f.add(t, mapping.Registration, "20.0.0.0/8", positive("20.0.0.0/8", "9.9.9.9"))
	f.add(t, mapping.Policy, "50.0.0.0/8", positive("50.0.0.0/8", "5.5.5.5"))
	f.add(t, mapping.Registration, "30.0.0.0/8", positive("30.0.0.0/8", "3.3.3.3"))
	f.add(t, mapping.Registration, "40.0.0.0/8", negative("40.0.0.0/8"))

	got := f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"2.2.2.2"}, rlocs(got))
	assert.EqualValues(t, mapping.UnreachablePriority, got.Record.Locators[0].Priority)

	got = f.sys.GetMapping(ctx, eid.Eid{}, mustEid("20.1.1.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"1.1.1.1"}, rlocs(got))

	got = f.sys.GetMapping(ctx, eid.Eid{}, mustEid("50.1.1.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"5.5.5.5"}, rlocs(got))

	assert.Nil(t, f.sys.GetMapping(ctx, eid.Eid{}, mustEid("30.1.1.1")))
	got = f.sys.GetMapping(ctx, eid.Eid{}, mustEid("40.1.1.1"))
	require.NotNil(t, got)
	assert.True(t, got.IsNegative())

	// The cached records are not modified by intersecting.
	nb := f.sys.GetOriginMapping(ctx, mapping.Policy, mustEid("10.0.0.0/8"))
	assert.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, rlocs(nb))
}

func TestServicePath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	f.add(t, mapping.Policy, "sp:7:0",
		positive("sp:7:0", "elp:1.1.1.1,2.2.2.2|l,3.3.3.3"))
	f.add(t, mapping.Policy, "sp:8:3", positive("sp:8:0", "5.5.5.5"))
	f.add(t, mapping.Policy, "sp:9:0", positive("sp:9:0", "6.6.6.6", "7.7.7.7"))

	testCases := map[string]struct {
		Dst  eid.Eid
		Rloc string
	}{
		"first hop":        {Dst: eid.NewServicePath(0, 7, 255), Rloc: "1.1.1.1"},
		"second hop":       {Dst: eid.NewServicePath(0, 7, 254), Rloc: "2.2.2.2"},
		"last hop":         {Dst: eid.NewServicePath(0, 7, 253), Rloc: "3.3.3.3"},
		"past the path":    {Dst: eid.NewServicePath(0, 7, 200), Rloc: "elp:1.1.1.1,2.2.2.2|l,3.3.3.3"},
		"plain locator":    {Dst: eid.NewServicePath(0, 8, 255), Rloc: "5.5.5.5"},
		"plain with index": {Dst: eid.NewServicePath(0, 8, 250), Rloc: "5.5.5.5"},
		"two locators":     {Dst: eid.NewServicePath(0, 9, 254), Rloc: "6.6.6.6"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := f.sys.GetMapping(ctx, eid.Eid{}, tc.Dst)
			require.NotNil(t, got)
			assert.Equal(t, tc.Rloc, got.Record.Locators[0].Rloc.String())
		})
	}
	assert.Nil(t, f.sys.GetMapping(ctx, eid.Eid{}, eid.NewServicePath(0, 10, 255)))
}

func TestMergeRegistrations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{MappingMerge: true})
	x1 := mapping.MustParseXtrID("00000000000000000000000000000001")
	x2 := mapping.MustParseXtrID("00000000000000000000000000000002")
	reg := func(xtr mapping.XtrID, src, rloc string) *mapping.Data {
		d := positive("10.0.0.0/8", rloc)
		d.XtrID, d.MergeEnabled, d.SourceRloc = xtr, true, netip.MustParseAddr(src)
		return d
	}
	key := mustEid("10.0.0.0/8")

	err := f.sys.AddMapping(ctx, mapping.Registration, key,
		&mapping.Data{Record: positive("10.0.0.0/8", "9.9.9.9").Record, MergeEnabled: true})
	assert.ErrorIs(t, err, mapsys.ErrNoXtrID)
	assert.Nil(t, f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.1.1.1")))

	f.add(t, mapping.Registration, "10.0.0.0/8", reg(x2, "192.0.2.2", "2.2.2.2"))
	f.add(t, mapping.Registration, "10.0.0.0/8", reg(x1, "192.0.2.1", "1.1.1.1"))
	got := f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, rlocs(got))
	assert.True(t, got.MergeEnabled)
	assert.Equal(t, []netip.Addr{mustAddr("192.0.2.1"), mustAddr("192.0.2.2")},
		f.sys.SourceRlocs(key))

	// Registering the same record again does not change the merge.
	f.add(t, mapping.Registration, "10.0.0.0/8", reg(x1, "192.0.2.1", "1.1.1.1"))
	again := f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"))
	assert.Equal(t, rlocs(got), rlocs(again))

	own := f.sys.GetXtrMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"), x2)
	require.NotNil(t, own)
	assert.Equal(t, []string{"2.2.2.2"}, rlocs(own))

	// Only x2 refreshes, x1 expires and is merged out.
	f.clock.Advance(150 * time.Second)
	f.add(t, mapping.Registration, "10.0.0.0/8", reg(x2, "192.0.2.2", "2.2.2.2"))
	f.clock.Advance(100 * time.Second)
	_, err = f.sys.RemoveExpired(ctx)
	require.NoError(t, err)
	got = f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"2.2.2.2"}, rlocs(got))
	assert.Equal(t, []netip.Addr{mustAddr("192.0.2.2")}, f.sys.SourceRlocs(key))
	assert.Nil(t, f.sys.GetXtrMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"), x1))
}

func TestMergeDisabledRecordReplacesOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{MappingMerge: true})
	x1 := mapping.MustParseXtrID("00000000000000000000000000000001")
	x3 := mapping.MustParseXtrID("00000000000000000000000000000003")
	d1 := positive("10.0.0.0/8", "1.1.1.1")
	d1.XtrID, d1.MergeEnabled = x1, true
	f.add(t, mapping.Registration, "10.0.0.0/8", d1)
	d3 := positive("10.0.0.0/8", "3.3.3.3")
	d3.XtrID = x3
	f.add(t, mapping.Registration, "10.0.0.0/8", d3)

	got := f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"3.3.3.3"}, rlocs(got))
	assert.Nil(t, f.sys.GetXtrMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"), x1))
}

func TestXtrMappingWithoutMerge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	x1 := mapping.MustParseXtrID("00000000000000000000000000000001")
	x2 := mapping.MustParseXtrID("00000000000000000000000000000002")
	d := positive("10.0.0.0/8", "1.1.1.1")
	d.XtrID = x1
	f.add(t, mapping.Registration, "10.0.0.0/8", d)

	own := f.sys.GetXtrMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"), x1)
	require.NotNil(t, own)
	assert.Equal(t, []string{"1.1.1.1"}, rlocs(own))
	assert.Nil(t, f.sys.GetXtrMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"), x2))
	assert.Nil(t, f.sys.GetXtrMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"), mapping.XtrID{}))
}

func TestRegistrationLifecycle(t *testing.T) {
	ctx := context.Background()
	var observed []eid.Eid
	f := newFixture(t, mapsys.Config{}, mapsys.WithObserver(mapsys.ObserverFunc(
		func(_ mapping.Origin, key eid.Eid, _ mapping.XtrID) {
			observed = append(observed, key)
		})))
	key := mustEid("153.16.254.1/32")
	f.add(t, mapping.Registration, "153.16.254.1/32",
		positive("153.16.254.1/32", "4.3.2.1"))

	got := f.sys.Resolve(ctx, eid.Eid{}, mustEid("153.16.254.1"))
	require.NotNil(t, got)
	assert.Equal(t, []string{"4.3.2.1"}, rlocs(got))

	f.clock.Advance(150 * time.Second)
	assert.True(t, f.sys.RefreshMappingRegistration(ctx, key, mapping.XtrID{},
		f.clock.Now()))
	assert.False(t, f.sys.RefreshMappingRegistration(ctx, mustEid("9.9.9.9/32"),
		mapping.XtrID{}, f.clock.Now()))
	f.clock.Advance(150 * time.Second)
	assert.NotNil(t, f.sys.GetMapping(ctx, eid.Eid{}, mustEid("153.16.254.1")))

	f.clock.Advance(300 * time.Second)
	assert.Nil(t, f.sys.GetMapping(ctx, eid.Eid{}, mustEid("153.16.254.1")))
	assert.Equal(t, []eid.Eid{key}, observed)
	assert.Equal(t, []notify.Kind{notify.Created, notify.Removed},
		f.events.kinds("153.16.254.1/32"))

	neg := f.sys.Resolve(ctx, eid.Eid{}, mustEid("153.16.254.1"))
	require.NotNil(t, neg)
	assert.True(t, neg.IsNegative())
	assert.Equal(t, mustEid("0.0.0.0/0"), neg.Record.Eid)
}

func TestRemoveExpiredCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	f.add(t, mapping.Registration, "10.0.0.0/8", positive("10.0.0.0/8", "1.1.1.1"))
	f.add(t, mapping.Policy, "20.0.0.0/8", positive("20.0.0.0/8", "2.2.2.2"))
	n, err := f.sys.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Hour)
	_, err = f.sys.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.sys.Entries(mapping.Registration))
	assert.Len(t, f.sys.Entries(mapping.Policy), 1)
}

func TestChangeEvents(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := mock_notify.NewMockNotifier(ctrl)
	sys, err := mapsys.New(mapsys.Config{}, mapsys.WithNotifier(notifier))
	require.NoError(t, err)
	key := mustEid("10.0.0.0/8")

	var kinds []notify.Kind
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(3).Do(
		func(_ context.Context, ev notify.Event) {
			assert.Equal(t, key, ev.Eid)
			assert.Equal(t, mapping.Registration, ev.Origin)
			assert.NotEqual(t, [16]byte{}, [16]byte(ev.ID))
			kinds = append(kinds, ev.Kind)
		})
	require.NoError(t, sys.AddMapping(ctx, mapping.Registration, key,
		positive("10.0.0.0/8", "1.1.1.1")))
	require.NoError(t, sys.AddMapping(ctx, mapping.Registration, key,
		positive("10.0.0.0/8", "2.2.2.2")))
	sys.RemoveMapping(ctx, mapping.Registration, key)
	// Removing an absent mapping is silent.
	sys.RemoveMapping(ctx, mapping.Registration, key)
	assert.Equal(t, []notify.Kind{notify.Created, notify.Updated, notify.Removed}, kinds)
}

func TestLookupMetrics(t *testing.T) {
	ctx := context.Background()
	lookups := metrics.NewTestCounter()
	f := newFixture(t, mapsys.Config{}, mapsys.WithMetrics(&mapsys.Metrics{Lookups: lookups}))
	f.add(t, mapping.Policy, "10.0.0.0/8", positive("10.0.0.0/8", "1.1.1.1"))
	f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.1.1.1"))
	f.sys.GetMapping(ctx, eid.Eid{}, mustEid("20.1.1.1"))
	f.sys.Resolve(ctx, eid.Eid{}, mustEid("20.1.1.1"))
	f.sys.GetMapping(ctx, eid.Eid{}, mustEid("20.1.1.1"))

	value := func(result string) float64 {
		return metrics.CounterValue(lookups.With(prom.LabelPolicy, "nb_first",
			prom.LabelResult, result))
	}
	assert.Equal(t, float64(1), value(prom.Success))
	assert.Equal(t, float64(2), value(prom.ErrNotFound))
	assert.Equal(t, float64(1), value(prom.Negative))
}

func TestIntrospection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	f.add(t, mapping.Policy, "0.0.0.0/1", positive("0.0.0.0/1", "1.1.1.1"))
	f.add(t, mapping.Registration, "128.0.0.0/2", positive("128.0.0.0/2", "2.2.2.2"))
	f.add(t, mapping.Registration, "128.1.0.0/16", positive("128.1.0.0/16", "3.3.3.3"))
	f.sys.AddAuthenticationKey(mustEid("128.0.0.0/2"),
		mapping.AuthKey{Type: mapping.KeyHMACSHA256_128, Key: "topsecret"})

	parent, ok := f.sys.GetParentPrefix(mustEid("128.1.0.0/16"))
	assert.True(t, ok)
	assert.Equal(t, mustEid("128.0.0.0/2"), parent)
	assert.Equal(t, []eid.Eid{mustEid("128.0.0.0/2"), mustEid("128.1.0.0/16")},
		f.sys.GetSubtree(mapping.Registration, mustEid("128.0.0.0/1")))
	assert.Empty(t, f.sys.GetSubtree(mapping.Policy, mustEid("128.0.0.0/1")))

	gaps, err := f.sys.Gaps(0)
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("192.0.0.0/2"),
		netip.MustParsePrefix("::/0"),
	}, gaps)

	var buf bytes.Buffer
	f.sys.PrintMappings(&buf)
	assert.Contains(t, buf.String(), "128.1.0.0/16")
	assert.Contains(t, buf.String(), "registration")
	buf.Reset()
	f.sys.PrintKeys(&buf)
	assert.Contains(t, buf.String(), "128.0.0.0/2")
	assert.NotContains(t, buf.String(), "topsecret")

	require.NoError(t, f.sys.CleanCaches())
	assert.Empty(t, f.sys.Entries(mapping.Policy))
	assert.Empty(t, f.sys.Entries(mapping.Registration))
	assert.Empty(t, f.sys.AuthKeys())
	assert.Nil(t, f.sys.GetMapping(ctx, eid.Eid{}, mustEid("10.0.0.1")))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mapsys.Config{})
	fresh := positive("20.0.0.0/8", "2.2.2.2")
	fresh.Timestamp = f.clock.Now().Add(-time.Minute)
	stale := positive("30.0.0.0/8", "3.3.3.3")
	stale.Timestamp = f.clock.Now().Add(-time.Hour)
	snap := mapping.Snapshot{
		Mappings: []mapping.Entry{
			{Origin: mapping.Policy, Key: mustEid("10.0.0.0/8"),
				Data: positive("10.0.0.0/8", "1.1.1.1")},
			{Origin: mapping.Registration, Key: mustEid("20.0.0.0/8"), Data: fresh},
			{Origin: mapping.Registration, Key: mustEid("30.0.0.0/8"), Data: stale},
		},
		AuthKeys: []mapping.KeyEntry{{Key: mustEid("10.0.0.0/8"),
			AuthKey: mapping.AuthKey{Type: mapping.KeyHMACSHA1_96, Key: "k"}}},
	}
	require.NoError(t, f.sys.Restore(ctx, snap))
	assert.Len(t, f.sys.Entries(mapping.Policy), 1)
	regs := f.sys.Entries(mapping.Registration)
	require.Len(t, regs, 1)
	assert.Equal(t, mustEid("20.0.0.0/8"), regs[0].Key)
	assert.Equal(t, fresh.Timestamp, regs[0].Data.Timestamp)
	assert.Len(t, f.sys.AuthKeys(), 1)

	// The restored registration keeps its age and expires on time.
	f.clock.Advance(200 * time.Second)
	_, err := f.sys.RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.sys.Entries(mapping.Registration))

	err = f.sys.Restore(ctx, mapping.Snapshot{Mappings: []mapping.Entry{
		{Origin: mapping.Policy, Key: mustEid("1.0.0.0/8")}}})
	assert.ErrorIs(t, err, mapsys.ErrInvalidMapping)
}
