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

package mapservice_test

import (
	"context"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/mapserver/mapservice"
	"github.com/lispmap/lispmap/mapserver/mapsys"
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/mapserver/smr"
	"github.com/lispmap/lispmap/mapserver/smr/mock_smr"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
	mapdb "github.com/lispmap/lispmap/private/storage/mapping"
	"github.com/lispmap/lispmap/private/storage/mapping/sqlite"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func positive(key string, rloc string) *mapping.Data {
	return &mapping.Data{
		Record: &mapping.Record{
			Eid: eid.MustParse(key),
			Locators: []mapping.Locator{{
				Rloc:     mapping.MustParseRloc(rloc),
				Priority: 1,
				Weight:   100,
			}},
			TTL: time.Hour,
		},
		XtrID: mapping.MustParseXtrID("000102030405060708090a0b0c0d0e0f"),
	}
}

func negative(key string) *mapping.Data {
	return &mapping.Data{Record: &mapping.Record{
		Eid:    eid.MustParse(key),
		TTL:    15 * time.Minute,
		Action: mapping.Drop,
	}}
}

func openDB(t *testing.T, path string) mapdb.DB {
	t.Helper()
	db, err := sqlite.NewBackend(path)
	require.NoError(t, err)
	return db
}

func newService(t *testing.T, db mapdb.DB, c *clock,
	mod func(*mapservice.Config)) *mapservice.Service {

	t.Helper()
	cfg := mapservice.Config{DB: db, Now: c.Now}
	if mod != nil {
		mod(&cfg)
	}
	s, err := mapservice.New(cfg)
	require.NoError(t, err)
	return s
}

func snapshotKeys(t *testing.T, db mapdb.DB) []string {
	t.Helper()
	snap, err := db.Snapshot(context.Background())
	require.NoError(t, err)
	var keys []string
	for _, e := range snap.Mappings {
		keys = append(keys, e.Origin.String()+" "+e.Key.String())
	}
	return keys
}

func TestNewRequiresStore(t *testing.T) {
	_, err := mapservice.New(mapservice.Config{})
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mappings.db")
	c := newClock()

	s := newService(t, openDB(t, path), c, nil)
	require.NoError(t, s.AddMapping(ctx, mapping.Registration,
		eid.MustParse("10.0.0.0/8"), positive("10.0.0.0/8", "192.0.2.1")))
	require.NoError(t, s.AddMapping(ctx, mapping.Policy,
		eid.MustParse("1.0.0.0/8"), negative("1.0.0.0/8")))
	require.NoError(t, s.AddAuthenticationKey(ctx, eid.MustParse("10.0.0.0/8"),
		mapping.AuthKey{Type: mapping.KeyHMACSHA256_128, Key: "password"}))
	require.NoError(t, s.Close())

	c.Advance(time.Minute)
	s = newService(t, openDB(t, path), c, nil)
	defer s.Close()
	require.NoError(t, s.Restore(ctx))

	core := s.Core()
	reg := core.GetOriginMapping(ctx, mapping.Registration, eid.MustParse("10.0.0.0/8"))
	require.NotNil(t, reg)
	assert.Equal(t, c.Now().Add(-time.Minute), reg.Timestamp)
	assert.NotNil(t, core.GetOriginMapping(ctx, mapping.Policy, eid.MustParse("1.0.0.0/8")))
	k, ok := core.GetAuthenticationKey(eid.MustParse("10.1.0.0/16"))
	assert.True(t, ok)
	assert.Equal(t, "password", k.Key)
}

func TestRestoreSkipsExpired(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mappings.db")
	c := newClock()

	s := newService(t, openDB(t, path), c, nil)
	require.NoError(t, s.AddMapping(ctx, mapping.Registration,
		eid.MustParse("10.0.0.0/8"), positive("10.0.0.0/8", "192.0.2.1")))
	require.NoError(t, s.Close())

	c.Advance(time.Hour)
	s = newService(t, openDB(t, path), c, nil)
	defer s.Close()
	require.NoError(t, s.Restore(ctx))
	assert.Nil(t, s.Core().GetOriginMapping(ctx, mapping.Registration,
		eid.MustParse("10.0.0.0/8")))
}

func TestRegistrationReplacesStoredRows(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, filepath.Join(t.TempDir(), "mappings.db"))
	s := newService(t, db, newClock(), nil)
	defer s.Close()

	key := eid.MustParse("10.0.0.0/8")
	require.NoError(t, s.AddMapping(ctx, mapping.Registration, key,
		positive("10.0.0.0/8", "192.0.2.1")))
	other := positive("10.0.0.0/8", "192.0.2.2")
	other.XtrID = mapping.MustParseXtrID("0f0e0d0c0b0a09080706050403020100")
	require.NoError(t, s.AddMapping(ctx, mapping.Registration, key, other))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Mappings, 1)
	assert.Equal(t, other.XtrID, snap.Mappings[0].Data.XtrID)
}

func TestMergedRegistrationsKeepRows(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, filepath.Join(t.TempDir(), "mappings.db"))
	s := newService(t, db, newClock(), func(cfg *mapservice.Config) {
		cfg.Core.MappingMerge = true
	})
	defer s.Close()

	key := eid.MustParse("10.0.0.0/8")
	a := positive("10.0.0.0/8", "192.0.2.1")
	a.MergeEnabled = true
	b := positive("10.0.0.0/8", "192.0.2.2")
	b.MergeEnabled = true
	b.XtrID = mapping.MustParseXtrID("0f0e0d0c0b0a09080706050403020100")
	require.NoError(t, s.AddMapping(ctx, mapping.Registration, key, a))
	require.NoError(t, s.AddMapping(ctx, mapping.Registration, key, b))

	assert.Equal(t, []string{"registration 10.0.0.0/8", "registration 10.0.0.0/8"},
		snapshotKeys(t, db))
	merged := s.Core().GetOriginMapping(ctx, mapping.Registration, key)
	require.NotNil(t, merged)
	assert.Len(t, merged.Record.Locators, 2)

	// Without an xTR-ID the registration is rejected and not persisted.
	c := positive("11.0.0.0/8", "192.0.2.3")
	c.MergeEnabled = true
	c.XtrID = mapping.XtrID{}
	err := s.AddMapping(ctx, mapping.Registration, eid.MustParse("11.0.0.0/8"), c)
	assert.ErrorIs(t, err, mapsys.ErrNoXtrID)
	assert.Len(t, snapshotKeys(t, db), 2)
}

func TestExpiryDeletesStoredRegistration(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, filepath.Join(t.TempDir(), "mappings.db"))
	c := newClock()
	s := newService(t, db, c, nil)
	defer s.Close()

	require.NoError(t, s.AddMapping(ctx, mapping.Registration,
		eid.MustParse("10.0.0.0/8"), positive("10.0.0.0/8", "192.0.2.1")))
	require.NoError(t, s.AddMapping(ctx, mapping.Policy,
		eid.MustParse("1.0.0.0/8"), negative("1.0.0.0/8")))

	c.Advance(100 * time.Second)
	ok, err := s.RefreshMappingRegistration(ctx, eid.MustParse("10.0.0.0/8"),
		mapping.XtrID{}, c.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Mappings, 2)
	assert.Equal(t, c.Now(), snap.Mappings[1].Data.Timestamp)

	c.Advance(10 * time.Minute)
	_, err = s.Core().RemoveExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"policy 1.0.0.0/8"}, snapshotKeys(t, db))

	ok, err = s.RefreshMappingRegistration(ctx, eid.MustParse("10.0.0.0/8"),
		mapping.XtrID{}, c.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveMapping(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, filepath.Join(t.TempDir(), "mappings.db"))
	s := newService(t, db, newClock(), nil)
	defer s.Close()

	require.NoError(t, s.AddMapping(ctx, mapping.Registration,
		eid.MustParse("10.0.0.0/8"), positive("10.0.0.0/8", "192.0.2.1")))
	require.NoError(t, s.AddMapping(ctx, mapping.Policy,
		eid.MustParse("1.0.0.0/8"), negative("1.0.0.0/8")))
	require.NoError(t, s.RemoveMapping(ctx, mapping.Registration, eid.MustParse("10.0.0.0/8")))
	require.NoError(t, s.RemoveMapping(ctx, mapping.Policy, eid.MustParse("1.0.0.0/8")))
	assert.Empty(t, snapshotKeys(t, db))
	assert.Nil(t, s.Core().GetOriginMapping(ctx, mapping.Policy, eid.MustParse("1.0.0.0/8")))

	require.NoError(t, s.AddAuthenticationKey(ctx, eid.MustParse("10.0.0.0/8"),
		mapping.AuthKey{Type: mapping.KeyHMACSHA1_96, Key: "k"}))
	require.NoError(t, s.RemoveAuthenticationKey(ctx, eid.MustParse("10.0.0.0/8")))
	_, ok := s.Core().GetAuthenticationKey(eid.MustParse("10.0.0.0/8"))
	assert.False(t, ok)
	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.AuthKeys)
}

// failingDB fails every write.
type failingDB struct {
	mapdb.DB
}

func (failingDB) InsertMapping(context.Context, mapping.Origin, eid.Eid, *mapping.Data) error {
	return serrors.New("disk full")
}

func (failingDB) InsertAuthKey(context.Context, eid.Eid, mapping.AuthKey) error {
	return serrors.New("disk full")
}

func TestStoreFailure(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, filepath.Join(t.TempDir(), "mappings.db"))
	s := newService(t, failingDB{DB: db}, newClock(), nil)
	defer s.Close()

	key := eid.MustParse("1.0.0.0/8")
	assert.Error(t, s.AddMapping(ctx, mapping.Policy, key, negative("1.0.0.0/8")))
	assert.Nil(t, s.Core().GetOriginMapping(ctx, mapping.Policy, key))

	assert.Error(t, s.AddAuthenticationKey(ctx, key, mapping.AuthKey{Key: "k"}))
	_, ok := s.Core().GetAuthenticationKey(key)
	assert.False(t, ok)

	// Registrations are accepted by the mapping system even if the store
	// fails.
	key = eid.MustParse("10.0.0.0/8")
	assert.Error(t, s.AddMapping(ctx, mapping.Registration, key,
		positive("10.0.0.0/8", "192.0.2.1")))
	assert.NotNil(t, s.Core().GetOriginMapping(ctx, mapping.Registration, key))
}

func TestHandleMapRequest(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	c := newClock()

	sender := mock_smr.NewMockSender(ctrl)
	smrs, err := smr.New(sender, smr.Config{Now: c.Now})
	require.NoError(t, err)

	db := openDB(t, filepath.Join(t.TempDir(), "mappings.db"))
	s := newService(t, db, c, func(cfg *mapservice.Config) {
		cfg.Acker = smrs
		cfg.Notifier = notify.NotifierFunc(func(ctx context.Context, ev notify.Event) {
			_ = smrs.Publish(ctx, ev)
		})
	})
	defer s.Close()

	key := eid.MustParse("10.0.0.0/8")
	require.NoError(t, s.AddMapping(ctx, mapping.Registration, key,
		positive("10.0.0.0/8", "192.0.2.1")))

	req := mapservice.MapRequest{
		Src:       eid.MustParse("20.0.0.1"),
		Dst:       eid.MustParse("10.1.2.3"),
		SrcRloc:   netip.MustParseAddr("198.51.100.7"),
		Subscribe: true,
	}
	data := s.HandleMapRequest(ctx, req)
	require.NotNil(t, data)
	assert.Equal(t, key, data.Record.Eid)
	subs := s.Core().Subscribers(key)
	require.Len(t, subs, 1)
	assert.Equal(t, 70*time.Minute, subs[0].TTL)

	sender.EXPECT().SendSMR(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r smr.Request) error {
			assert.Equal(t, key, r.Eid)
			assert.Equal(t, req.SrcRloc, r.Subscriber.SrcRloc)
			return nil
		},
	)
	require.NoError(t, s.AddMapping(ctx, mapping.Registration, key,
		positive("10.0.0.0/8", "192.0.2.2")))
	assert.Equal(t, 1, smrs.Pending())

	req.Subscribe = false
	s.HandleMapRequest(ctx, req)
	assert.Equal(t, 0, smrs.Pending())

	data = s.HandleMapRequest(ctx, mapservice.MapRequest{Dst: eid.MustParse("11.0.0.1")})
	require.NotNil(t, data)
	assert.True(t, data.IsNegative())
}

func TestNegativesNotStored(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mappings.db")
	c := newClock()

	negatives := func(s *mapservice.Service) []string {
		var keys []string
		for _, o := range []mapping.Origin{mapping.Policy, mapping.Registration} {
			for _, e := range s.Core().Entries(o) {
				if e.Data.IsNegative() {
					keys = append(keys, e.Key.String())
				}
			}
		}
		return keys
	}

	db := openDB(t, path)
	s := newService(t, db, c, nil)
	require.NoError(t, s.AddMapping(ctx, mapping.Registration,
		eid.MustParse("10.0.0.0/8"), positive("10.0.0.0/8", "192.0.2.1")))
	first := s.HandleMapRequest(ctx, mapservice.MapRequest{Dst: eid.MustParse("11.0.0.1")})
	require.NotNil(t, first)
	require.True(t, first.IsNegative())
	assert.NotEmpty(t, negatives(s))
	assert.Equal(t, []string{"registration 10.0.0.0/8"}, snapshotKeys(t, db))
	require.NoError(t, s.Close())

	s = newService(t, openDB(t, path), c, nil)
	defer s.Close()
	require.NoError(t, s.Restore(ctx))
	assert.Empty(t, negatives(s))

	// The same reply is computed again on demand.
	again := s.HandleMapRequest(ctx, mapservice.MapRequest{Dst: eid.MustParse("11.0.0.1")})
	require.NotNil(t, again)
	assert.True(t, again.IsNegative())
	assert.Equal(t, first.Record.Eid, again.Record.Eid)
}
