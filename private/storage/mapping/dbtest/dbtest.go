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

// Package dbtest contains a test suite for implementations of the mapping
// store.
package dbtest

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	mapdb "github.com/lispmap/lispmap/private/storage/mapping"
)

const timeout = 3 * time.Second

var (
	now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	xtrA = mapping.MustParseXtrID("000102030405060708090a0b0c0d0e0f")
	xtrB = mapping.MustParseXtrID("0f0e0d0c0b0a09080706050403020100")
)

type TestableDB interface {
	mapdb.DB
	Prepare(t *testing.T, ctx context.Context)
}

// TestDB should be used to test any implementation of the mapping store. An
// implementation should at least have one test method that calls this
// test-suite.
func TestDB(t *testing.T, db TestableDB) {
	tests := map[string]func(*testing.T, mapdb.DB){
		"mappings":     testMappings,
		"auth keys":    testAuthKeys,
		"delete by id": testDeleteByXtrID,
		"expiry":       testExpiry,
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			prepareCtx, cancelF := context.WithTimeout(context.Background(), 2*timeout)
			db.Prepare(t, prepareCtx)
			cancelF()
			defer db.Close()
			test(t, db)
		})
	}
}

func registration(key string, xtr mapping.XtrID, ts time.Time, rloc string) *mapping.Data {
	return &mapping.Data{
		Record: &mapping.Record{
			Eid: eid.MustParse(key),
			Locators: []mapping.Locator{{
				Rloc:     mapping.NewIPRloc(netip.MustParseAddr(rloc)),
				Priority: 1,
				Weight:   100,
			}},
			TTL: time.Hour,
		},
		XtrID:      xtr,
		Timestamp:  ts,
		SourceRloc: netip.MustParseAddr(rloc),
	}
}

func policy(key string) *mapping.Data {
	return &mapping.Data{Record: &mapping.Record{
		Eid:           eid.MustParse(key),
		TTL:           15 * time.Minute,
		Action:        mapping.NativelyForward,
		Authoritative: true,
	}}
}

func testMappings(t *testing.T, db mapdb.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	reg := registration("[7]10.0.0.0/8", xtrA, now, "192.0.2.1")
	pol := policy("1.1.0.0/16")
	require.NoError(t, db.InsertMapping(ctx, mapping.Registration, reg.Record.Eid, reg))
	require.NoError(t, db.InsertMapping(ctx, mapping.Policy, pol.Record.Eid, pol))
	// same mapping again. It should be okay.
	require.NoError(t, db.InsertMapping(ctx, mapping.Policy, pol.Record.Eid, pol))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.AuthKeys)
	require.Len(t, snap.Mappings, 2)
	assert.Equal(t, mapping.Entry{Origin: mapping.Policy, Key: pol.Record.Eid, Data: pol},
		snap.Mappings[0])
	assert.Equal(t, mapping.Entry{Origin: mapping.Registration, Key: reg.Record.Eid, Data: reg},
		snap.Mappings[1])

	n, err := db.DeleteMapping(ctx, mapping.Policy, pol.Record.Eid, mapping.XtrID{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = db.DeleteMapping(ctx, mapping.Policy, pol.Record.Eid, mapping.XtrID{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	err = db.InsertMapping(ctx, mapping.Policy, pol.Record.Eid, &mapping.Data{})
	assert.Error(t, err)
}

func testAuthKeys(t *testing.T, db mapdb.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	key := eid.MustParse("10.0.0.0/8")
	require.NoError(t, db.InsertAuthKey(ctx, key,
		mapping.AuthKey{Type: mapping.KeyHMACSHA1_96, Key: "old"}))
	require.NoError(t, db.InsertAuthKey(ctx, key,
		mapping.AuthKey{Type: mapping.KeyHMACSHA256_128, Key: "password"}))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []mapping.KeyEntry{{
		Key:     key,
		AuthKey: mapping.AuthKey{Type: mapping.KeyHMACSHA256_128, Key: "password"},
	}}, snap.AuthKeys)

	n, err := db.DeleteAuthKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	snap, err = db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.AuthKeys)
}

func testDeleteByXtrID(t *testing.T, db mapdb.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	key := eid.MustParse("10.0.0.0/8")
	require.NoError(t, db.InsertMapping(ctx, mapping.Registration, key,
		registration("10.0.0.0/8", xtrA, now, "192.0.2.1")))
	require.NoError(t, db.InsertMapping(ctx, mapping.Registration, key,
		registration("10.0.0.0/8", xtrB, now, "192.0.2.2")))

	n, err := db.DeleteMapping(ctx, mapping.Registration, key, xtrB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Mappings, 1)
	assert.Equal(t, xtrA, snap.Mappings[0].Data.XtrID)

	require.NoError(t, db.InsertMapping(ctx, mapping.Registration, key,
		registration("10.0.0.0/8", xtrB, now, "192.0.2.2")))
	n, err = db.DeleteMapping(ctx, mapping.Registration, key, mapping.XtrID{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testExpiry(t *testing.T, db mapdb.DB) {
	ctx, cancelF := context.WithTimeout(context.Background(), timeout)
	defer cancelF()

	old := registration("10.0.0.0/8", xtrA, now.Add(-time.Hour), "192.0.2.1")
	fresh := registration("11.0.0.0/8", xtrA, now, "192.0.2.1")
	static := registration("12.0.0.0/8", xtrA, time.Time{}, "192.0.2.1")
	for _, d := range []*mapping.Data{old, fresh, static} {
		require.NoError(t, db.InsertMapping(ctx, mapping.Registration, d.Record.Eid, d))
	}
	require.NoError(t, db.InsertMapping(ctx, mapping.Policy, eid.MustParse("1.0.0.0/8"),
		policy("1.0.0.0/8")))

	n, err := db.DeleteExpiredRegistrations(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = db.DeleteExpiredRegistrations(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	var keys []string
	for _, e := range snap.Mappings {
		keys = append(keys, e.Key.String())
	}
	assert.Equal(t, []string{"1.0.0.0/8", "11.0.0.0/8", "12.0.0.0/8"}, keys)
}
