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

package smr_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/mapserver/smr"
	"github.com/lispmap/lispmap/mapserver/smr/mock_smr"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }
func attempt(n int) gomock.Matcher       { return attemptMatcher(n) }

type attemptMatcher int

func (m attemptMatcher) Matches(x interface{}) bool {
	r, ok := x.(smr.Request)
	return ok && r.Attempt == int(m)
}

func (m attemptMatcher) String() string { return "attempt" }

func subscriber(rloc string, now time.Time) mapping.Subscriber {
	return mapping.Subscriber{
		SrcRloc:     netip.MustParseAddr(rloc),
		SrcEid:      eid.MustParse("192.168.0.1"),
		TTL:         time.Hour,
		LastRequest: now,
	}
}

func newNotifier(t *testing.T, cfg smr.Config) (*smr.Notifier, *mock_smr.MockSender, *clock) {
	ctrl := gomock.NewController(t)
	sender := mock_smr.NewMockSender(ctrl)
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	cfg.Now = c.Now
	n, err := smr.New(sender, cfg)
	require.NoError(t, err)
	return n, sender, c
}

func changed(key string, subs ...mapping.Subscriber) notify.Event {
	ev := notify.NewEvent(notify.Updated, mapping.Registration, eid.MustParse(key), nil,
		time.Now())
	ev.Subscribers = subs
	return ev
}

func TestPublishSendsToLiveSubscribers(t *testing.T) {
	m := &smr.Metrics{Sent: metrics.NewTestCounter(), Pending: metrics.NewTestGauge()}
	n, sender, c := newNotifier(t, smr.Config{Metrics: m})
	live := subscriber("1.1.1.1", c.now)
	stale := subscriber("2.2.2.2", c.now.Add(-2*time.Hour))
	dst := subscriber("3.3.3.3", c.now)
	ev := changed("10.0.0.0/8", live, stale)
	ev.DstSubscribers = []mapping.Subscriber{dst}

	sender.EXPECT().SendSMR(gomock.Any(), smr.Request{
		Eid: ev.Eid, Subscriber: live, Attempt: 1,
	})
	sender.EXPECT().SendSMR(gomock.Any(), smr.Request{
		Eid: ev.Eid, Subscriber: dst, Attempt: 1,
	})
	require.NoError(t, n.Publish(context.Background(), ev))
	assert.Equal(t, 2, n.Pending())
	assert.Equal(t, 2.0, metrics.CounterValue(m.Sent.With(prom.LabelResult, "sent")))
	assert.Equal(t, 2.0, metrics.GaugeValue(m.Pending))

	t.Run("identical SMR within timeout is suppressed", func(t *testing.T) {
		c.advance(time.Second)
		require.NoError(t, n.Publish(context.Background(), changed("10.0.0.0/8", live)))
		assert.Equal(t, 1.0,
			metrics.CounterValue(m.Sent.With(prom.LabelResult, "suppressed")))
	})
}

func TestRetryUntilAck(t *testing.T) {
	n, sender, c := newNotifier(t, smr.Config{RetryCount: 2, Timeout: time.Second})
	a := subscriber("1.1.1.1", c.now)
	b := subscriber("2.2.2.2", c.now)
	sender.EXPECT().SendSMR(gomock.Any(), attempt(1)).Times(2)
	require.NoError(t, n.Publish(context.Background(), changed("10.0.0.0/8", a, b)))

	// Not due yet.
	c.advance(500 * time.Millisecond)
	n.Retry(context.Background())

	c.advance(500 * time.Millisecond)
	sender.EXPECT().SendSMR(gomock.Any(), attempt(2)).Times(2)
	n.Retry(context.Background())

	n.Ack(a.Key(), eid.MustParse("10.0.0.0/8"))
	assert.Equal(t, 1, n.Pending())

	c.advance(time.Second)
	sender.EXPECT().SendSMR(gomock.Any(), gomock.All(attempt(3),
		gomock.AssignableToTypeOf(smr.Request{})))
	n.Retry(context.Background())

	// Retries are used up.
	c.advance(time.Second)
	n.Retry(context.Background())
	assert.Equal(t, 0, n.Pending())
}

func TestSendErrors(t *testing.T) {
	n, sender, c := newNotifier(t, smr.Config{})
	sender.EXPECT().SendSMR(gomock.Any(), gomock.Any()).Return(errors.New("no route"))
	err := n.Publish(context.Background(), changed("10.0.0.0/8", subscriber("1.1.1.1", c.now)))
	assert.Error(t, err)
	assert.Equal(t, 1, n.Pending(), "failed SMRs are retried")
}

func TestDisabled(t *testing.T) {
	n, _, c := newNotifier(t, smr.Config{Disabled: true})
	require.NoError(t, n.Publish(context.Background(),
		changed("10.0.0.0/8", subscriber("1.1.1.1", c.now))))
	assert.Equal(t, 0, n.Pending())
	assert.Equal(t, "smr_retrier", n.Retrier().Name())
}
