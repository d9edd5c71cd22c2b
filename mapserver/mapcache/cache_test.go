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

package mapcache_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/mapserver/mapcache"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
)

var mustEid = eid.MustParse

func positive(key string, rlocs ...string) *mapping.Data {
	r := &mapping.Record{Eid: mustEid(key), TTL: time.Hour}
	for _, s := range rlocs {
		r.Locators = append(r.Locators, mapping.Locator{Rloc: mapping.MustParseRloc(s)})
	}
	return &mapping.Data{Record: r}
}

func negative(key string) *mapping.Data {
	return &mapping.Data{Record: &mapping.Record{Eid: mustEid(key), Action: mapping.NativelyForward}}
}

func keys(c *mapcache.Cache) []string {
	var out []string
	c.Walk(func(k eid.Eid, _ *mapping.Data) bool {
		out = append(out, k.String())
		return true
	})
	return out
}

func TestLongestPrefixMatch(t *testing.T) {
	c := mapcache.New(mapping.Policy)
	c.AddMapping(mustEid("10.0.0.0/8"), positive("10.0.0.0/8", "1.1.1.1"))
	c.AddMapping(mustEid("10.1.0.0/16"), positive("10.1.0.0/16", "2.2.2.2"))
	c.AddMapping(mustEid("[5]10.1.0.0/16"), positive("[5]10.1.0.0/16", "5.5.5.5"))

	testCases := map[string]struct {
		Dst  string
		Want string
	}{
		"more specific":      {Dst: "10.1.2.3", Want: "10.1.0.0/16"},
		"less specific":      {Dst: "10.2.2.3", Want: "10.0.0.0/8"},
		"prefix query":       {Dst: "10.1.128.0/17", Want: "10.1.0.0/16"},
		"vni":                {Dst: "[5]10.1.2.3", Want: "[5]10.1.0.0/16"},
		"vni miss":           {Dst: "[5]10.2.2.3"},
		"unknown vni":        {Dst: "[6]10.1.2.3"},
		"miss":               {Dst: "11.0.0.1"},
		"source dest query":  {Dst: "1.0.0.0/8|10.1.2.0/24", Want: "10.1.0.0/16"},
		"unnormalized query": {Dst: "10.1.2.3/16", Want: "10.1.0.0/16"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			d := c.GetMapping(eid.Eid{}, mustEid(tc.Dst))
			if tc.Want == "" {
				assert.Nil(t, d)
				return
			}
			require.NotNil(t, d)
			assert.Equal(t, tc.Want, d.Record.Eid.String())
		})
	}
	assert.Equal(t, 3, c.Len())

	key, d := c.Lookup(eid.Eid{}, mustEid("10.1.2.3"))
	require.NotNil(t, d)
	assert.Equal(t, "10.1.0.0/16", key.String())
	_, d = c.Lookup(eid.Eid{}, mustEid("11.1.2.3"))
	assert.Nil(t, d)
}

func TestNonIPKeysMatchExactly(t *testing.T) {
	c := mapcache.New(mapping.Policy)
	c.AddMapping(mustEid("kv:a=b"), positive("kv:a=b", "1.1.1.1"))
	c.AddMapping(mustEid("mac:00:00:00:00:00:01"), positive("mac:00:00:00:00:00:01", "2.2.2.2"))
	assert.NotNil(t, c.GetMapping(eid.Eid{}, mustEid("kv:a=b")))
	assert.Nil(t, c.GetMapping(eid.Eid{}, mustEid("kv:a=c")))
	assert.NotNil(t, c.GetExact(mustEid("mac:00:00:00:00:00:01")))
	_, ok := c.GetWidestNegativeMapping(mustEid("kv:a=c"))
	assert.False(t, ok)
	assert.Equal(t, []string{"mac:00:00:00:00:00:01", "kv:a=b"}, keys(c))
}

func TestSourceDest(t *testing.T) {
	c := mapcache.New(mapping.Policy)
	c.AddMapping(mustEid("20.0.0.0/8"), positive("20.0.0.0/8", "1.1.1.1"))
	c.AddMapping(mustEid("1.0.0.0/8|20.0.0.0/8"), positive("1.0.0.0/8|20.0.0.0/8", "2.2.2.2"))
	c.AddMapping(mustEid("1.1.0.0/16|20.0.0.0/8"), positive("1.1.0.0/16|20.0.0.0/8", "3.3.3.3"))

	get := func(src, dst string) string {
		var s eid.Eid
		if src != "" {
			s = mustEid(src)
		}
		d := c.GetMapping(s, mustEid(dst))
		if d == nil {
			return ""
		}
		return d.Record.Eid.String()
	}
	assert.Equal(t, "1.1.0.0/16|20.0.0.0/8", get("1.1.1.1", "20.1.1.1"))
	assert.Equal(t, "1.0.0.0/8|20.0.0.0/8", get("1.2.1.1", "20.1.1.1"))
	assert.Equal(t, "20.0.0.0/8", get("9.9.9.9", "20.1.1.1"), "falls back to the destination")
	assert.Equal(t, "20.0.0.0/8", get("", "20.1.1.1"))
	assert.Equal(t, "1.1.0.0/16|20.0.0.0/8", get("", "1.1.2.0/24|20.1.1.1/32"))

	assert.Equal(t, []string{
		"20.0.0.0/8", "1.0.0.0/8|20.0.0.0/8", "1.1.0.0/16|20.0.0.0/8",
	}, keys(c))

	// Without the destination-only mapping the row stays reachable.
	c.RemoveMapping(mustEid("20.0.0.0/8"))
	assert.Equal(t, "1.0.0.0/8|20.0.0.0/8", get("1.2.1.1", "20.1.1.1"))
	assert.Equal(t, "", get("9.9.9.9", "20.1.1.1"))

	c.RemoveMapping(mustEid("1.0.0.0/8|20.0.0.0/8"))
	c.RemoveMapping(mustEid("1.1.0.0/16|20.0.0.0/8"))
	assert.Equal(t, 0, c.Len())
	_, ok := c.GetWidestNegativeMapping(mustEid("20.1.1.1/32"))
	assert.True(t, ok, "destination row is gone from the trie")
}

func TestRemoveKeepsSideData(t *testing.T) {
	c := mapcache.New(mapping.Registration)
	key := mustEid("10.0.0.0/8")
	c.AddMapping(key, positive("10.0.0.0/8", "1.1.1.1"))
	c.SetBucketID(key, 3)
	c.RemoveMapping(key)

	assert.Nil(t, c.GetExact(key))
	assert.Nil(t, c.GetMapping(eid.Eid{}, mustEid("10.1.1.1")), "not routable without data")
	id, ok := c.BucketID(key)
	assert.True(t, ok)
	assert.Equal(t, 3, id)

	c.ClearBucketID(key)
	_, ok = c.BucketID(key)
	assert.False(t, ok)

	c.AddMapping(key, positive("10.0.0.0/8", "1.1.1.1"))
	c.SetBucketID(key, 1)
	c.RemoveEntry(key)
	assert.Nil(t, c.GetExact(key))
	_, ok = c.BucketID(key)
	assert.False(t, ok)
}

func TestPrefixQueries(t *testing.T) {
	c := mapcache.New(mapping.Registration)
	for _, k := range []string{"1.1.128.0/17", "1.1.0.0/18", "1.1.64.0/18", "1.0.0.0/8"} {
		c.AddMapping(mustEid(k), negative(k))
	}

	sib, ok := c.GetSiblingPrefix(mustEid("1.1.0.0/18"))
	require.True(t, ok)
	assert.Equal(t, "1.1.64.0/18", sib.String())

	vps, ok := c.GetVirtualParentSiblingPrefix(mustEid("1.1.0.0/18"))
	require.True(t, ok)
	assert.Equal(t, "1.1.128.0/17", vps.String())

	parent, ok := c.GetParentPrefix(mustEid("1.1.0.0/18"))
	require.True(t, ok)
	assert.Equal(t, "1.0.0.0/8", parent.String())

	cover, ok := c.GetCoveringLessSpecific(mustEid("1.1.64.0/18"))
	require.True(t, ok)
	assert.Equal(t, "1.0.0.0/8", cover.String())

	var sub []string
	for _, e := range c.GetSubtree(mustEid("1.1.0.0/16")) {
		sub = append(sub, e.String())
	}
	assert.Equal(t, []string{"1.1.0.0/18", "1.1.64.0/18", "1.1.128.0/17"}, sub)

	_, ok = c.GetWidestNegativeMapping(mustEid("1.1.1.1"))
	assert.False(t, ok)
	wn, ok := c.GetWidestNegativeMapping(mustEid("[9]1.1.1.1"))
	require.True(t, ok, "empty vni")
	assert.Equal(t, "[9]0.0.0.0/0", wn.String())

	_, ok = c.GetSiblingPrefix(mustEid("[9]1.1.1.1"))
	assert.False(t, ok)
}

func TestSubscribers(t *testing.T) {
	c := mapcache.New(mapping.Policy)
	key := mustEid("10.0.0.0/8")
	now := time.Now()
	s1 := mapping.Subscriber{SrcRloc: netip.MustParseAddr("4.4.4.4"),
		SrcEid: mustEid("1.1.1.1"), TTL: time.Hour, LastRequest: now}
	s2 := mapping.Subscriber{SrcRloc: netip.MustParseAddr("3.3.3.3"),
		SrcEid: mustEid("1.1.1.2"), TTL: time.Hour, LastRequest: now}
	c.AddSubscriber(key, s1)
	c.AddSubscriber(key, s2)
	refreshed := s1
	refreshed.LastRequest = now.Add(time.Minute)
	c.AddSubscriber(key, refreshed)

	subs := c.Subscribers(key)
	require.Len(t, subs, 2)
	assert.Equal(t, s2, subs[0])
	assert.Equal(t, refreshed, subs[1])
	assert.Equal(t, 0, c.Len(), "subscribers alone are no mapping")

	c.RemoveSubscriber(key, s2.Key())
	assert.Len(t, c.Subscribers(key), 1)
	c.RemoveSubscribers(key)
	assert.Empty(t, c.Subscribers(key))

	sd := mustEid("1.0.0.0/8|20.0.0.0/8")
	c.AddSubscriber(sd, s1)
	assert.Len(t, c.Subscribers(sd), 1)
	assert.Empty(t, c.Subscribers(mustEid("20.0.0.0/8")))
}

func TestSourceRlocs(t *testing.T) {
	c := mapcache.New(mapping.Registration)
	key := mustEid("10.0.0.0/8")
	c.SetSourceRlocs(key, []netip.Addr{
		netip.MustParseAddr("9.9.9.9"),
		netip.MustParseAddr("1.1.1.1"),
		netip.MustParseAddr("9.9.9.9"),
	})
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("1.1.1.1"), netip.MustParseAddr("9.9.9.9"),
	}, c.SourceRlocs(key))
	assert.Nil(t, c.SourceRlocs(mustEid("11.0.0.0/8")))
}

func TestClear(t *testing.T) {
	c := mapcache.New(mapping.Policy)
	c.AddMapping(mustEid("10.0.0.0/8"), positive("10.0.0.0/8", "1.1.1.1"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.GetMapping(eid.Eid{}, mustEid("10.1.1.1")))
}

func TestXtrMappings(t *testing.T) {
	c := mapcache.NewRegistration()
	key := mustEid("10.0.0.0/8")
	x1 := mapping.MustParseXtrID("01000000000000000000000000000000")
	x2 := mapping.MustParseXtrID("02000000000000000000000000000000")
	d1 := positive("10.0.0.0/8", "1.1.1.1")
	d2 := positive("10.0.0.0/8", "2.2.2.2")
	c.AddXtrMapping(key, x2, d2)
	c.AddXtrMapping(key, x1, d1)

	assert.Equal(t, []*mapping.Data{d1, d2}, c.AllXtrMappings(key))
	assert.Same(t, d2, c.GetXtrMapping(eid.Eid{}, mustEid("10.2.3.4"), x2))
	assert.Nil(t, c.GetMapping(eid.Eid{}, mustEid("10.2.3.4")), "no reconciled record yet")
	assert.Nil(t, c.GetXtrMapping(eid.Eid{}, mustEid("10.2.3.4"), mapping.XtrID{}))

	ts := time.Unix(5000, 0)
	assert.True(t, c.RefreshTimestamp(key, x1, ts))
	assert.Equal(t, ts, c.GetXtrMapping(eid.Eid{}, key, x1).Timestamp)
	assert.True(t, d1.Timestamp.IsZero(), "stored data is replaced, not modified")
	assert.False(t, c.RefreshTimestamp(key, mapping.XtrID{}, ts))
	c.AddMapping(key, d1)
	assert.True(t, c.RefreshTimestamp(key, mapping.XtrID{}, ts))
	assert.Equal(t, ts, c.GetExact(key).Timestamp)

	c.RemoveXtrMapping(key, x1)
	assert.Equal(t, []*mapping.Data{d2}, c.AllXtrMappings(key))
	c.RemoveXtrMappings(key, []mapping.XtrID{x2})
	assert.Empty(t, c.AllXtrMappings(key))

	c.AddXtrMapping(key, x1, d1)
	c.ClearXtrMappings(key)
	assert.Empty(t, c.AllXtrMappings(key))
	assert.False(t, c.RefreshTimestamp(mustEid("11.0.0.0/8"), x1, ts))
}
