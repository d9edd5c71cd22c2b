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

// Package timebucket implements the timeout wheel that expires registrations.
//
// The wheel has a fixed number of buckets, each covering one bucket width of
// registration time. Fresh registrations go into the current bucket. Every
// rotation empties the oldest bucket, hands its keys to the expirer and makes
// it the new current bucket. A key that is never refreshed expires no earlier
// than the validity and no later than the validity plus one bucket width.
package timebucket

import (
	"sort"
	"time"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// Expirer is called for every key of a bucket that is emptied by a rotation.
// It may add keys to the wheel again.
type Expirer func(key eid.Eid, data *mapping.Data)

// Wheel is a registration timeout wheel. It is not safe for concurrent use,
// callers serialize access.
type Wheel struct {
	buckets      []map[eid.Eid]*mapping.Data
	current      int
	width        time.Duration
	lastRotation time.Time
	expire       Expirer
}

// NewWheel creates a wheel of n buckets for registrations valid for
// validity. The first rotation is due one bucket width after clock().
func NewWheel(n int, validity time.Duration, expire Expirer,
	clock func() time.Time) (*Wheel, error) {

	if n < 2 {
		return nil, serrors.New("timeout wheel needs at least two buckets", "buckets", n)
	}
	if validity <= 0 {
		return nil, serrors.New("registration validity must be positive",
			"validity", validity)
	}
	if expire == nil {
		return nil, serrors.New("no expirer")
	}
	if clock == nil {
		clock = time.Now
	}
	w := &Wheel{
		buckets:      make([]map[eid.Eid]*mapping.Data, n),
		width:        (validity + time.Duration(n-2)) / time.Duration(n-1),
		lastRotation: clock(),
		expire:       expire,
	}
	for i := range w.buckets {
		w.buckets[i] = make(map[eid.Eid]*mapping.Data)
	}
	return w, nil
}

// Width returns the time span covered by one bucket.
func (w *Wheel) Width() time.Duration { return w.width }

// Buckets returns the number of buckets.
func (w *Wheel) Buckets() int { return len(w.buckets) }

// bucket returns the bucket for a registration made at ts. A registration
// older than the last rotation goes as many buckets toward the oldest as it
// has started bucket widths of age.
func (w *Wheel) bucket(ts time.Time) int {
	if ts.After(w.lastRotation) {
		return w.current
	}
	age := w.lastRotation.Sub(ts)
	ahead := int((age + w.width - 1) / w.width)
	if ahead > len(w.buckets)-1 {
		ahead = len(w.buckets) - 1
	}
	return (w.current + ahead) % len(w.buckets)
}

// Add puts key into the bucket matching ts and returns the bucket id. Callers
// rotate the wheel up to the current time first.
func (w *Wheel) Add(key eid.Eid, data *mapping.Data, ts time.Time) int {
	id := w.bucket(ts)
	w.buckets[id][key] = data
	return id
}

// Refresh moves key from bucket old, if valid, to the bucket matching ts.
func (w *Wheel) Refresh(key eid.Eid, data *mapping.Data, ts time.Time, old int) int {
	w.Remove(key, old)
	return w.Add(key, data, ts)
}

// Remove deletes key from bucket id. Invalid ids are ignored.
func (w *Wheel) Remove(key eid.Eid, id int) {
	if id < 0 || id >= len(w.buckets) {
		return
	}
	delete(w.buckets[id], key)
}

// NextRotation returns the time the next rotation is due.
func (w *Wheel) NextRotation() time.Time {
	return w.lastRotation.Add(w.width)
}

// RotationDue reports whether at least one rotation is due at now.
func (w *Wheel) RotationDue(now time.Time) bool {
	return now.Sub(w.lastRotation) >= w.width
}

// ExpireAndRotate performs the rotations due at now and returns the number of
// keys handed to the expirer. At most one full turn of the wheel is done, a
// longer gap only advances the rotation time.
func (w *Wheel) ExpireAndRotate(now time.Time) int {
	due := int(now.Sub(w.lastRotation) / w.width)
	if due <= 0 {
		return 0
	}
	rotations := due
	if rotations > len(w.buckets) {
		rotations = len(w.buckets)
	}
	expired := 0
	for i := 0; i < rotations; i++ {
		id := (w.current - 1 + len(w.buckets)) % len(w.buckets)
		old := w.buckets[id]
		w.buckets[id] = make(map[eid.Eid]*mapping.Data)
		w.current = id
		w.lastRotation = w.lastRotation.Add(w.width)
		if i == rotations-1 {
			w.lastRotation = w.lastRotation.Add(time.Duration(due-rotations) * w.width)
		}
		expired += w.drain(old)
	}
	return expired
}

func (w *Wheel) drain(b map[eid.Eid]*mapping.Data) int {
	keys := make([]eid.Eid, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return eid.Compare(keys[i], keys[j]) < 0 })
	for _, k := range keys {
		w.expire(k, b[k])
	}
	return len(keys)
}

// Len returns the number of keys in the wheel.
func (w *Wheel) Len() int {
	n := 0
	for _, b := range w.buckets {
		n += len(b)
	}
	return n
}
