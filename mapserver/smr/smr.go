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

// Package smr sends solicit map requests (SMRs) to the subscribers of changed
// mappings.
//
// An SMR asks a subscriber to request the mapping again. Until the subscriber
// does so, the SMR is resent every timeout up to the configured retry count.
// The wire encoding and transport are provided by a Sender.
package smr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/patrickmn/go-cache"

	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
	"github.com/lispmap/lispmap/pkg/private/serrors"
	"github.com/lispmap/lispmap/private/periodic"
)

const (
	DefaultRetryCount = 5
	DefaultTimeout    = 3 * time.Second
	// recentSize bounds the number of SMRs remembered for suppression.
	recentSize = 4096
)

// Request is one SMR to send.
type Request struct {
	// Eid is the changed mapping the subscriber should request again.
	Eid eid.Eid
	// Subscriber receives the SMR at its source Rloc.
	Subscriber mapping.Subscriber
	// Attempt counts from 1 for the first transmission.
	Attempt int
}

func (r Request) String() string {
	return fmt.Sprintf("smr %s to %s attempt %d", r.Eid, r.Subscriber, r.Attempt)
}

// Sender transmits SMRs.
type Sender interface {
	SendSMR(ctx context.Context, req Request) error
}

// Metrics are the SMR metrics. All fields are optional.
type Metrics struct {
	// Sent counts transmissions by result: sent, retried, suppressed, acked,
	// exhausted or an error label.
	Sent    metrics.Counter
	Pending metrics.Gauge
}

// NewMetrics returns SMR metrics registered with the default prometheus
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Sent: metrics.NewPromCounter(prom.NewCounterVec("smr", "messages_total",
			"Solicit map requests by result.", []string{prom.LabelResult})),
		Pending: metrics.NewPromGauge(prom.NewGaugeVec("smr", "pending",
			"Solicit map requests waiting for the subscriber to ask again.", nil)),
	}
}

func (m *Metrics) inc(result string) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Sent, prom.LabelResult, result))
}

func (m *Metrics) pending(n int) {
	if m == nil {
		return
	}
	metrics.GaugeSet(m.Pending, float64(n))
}

// Config configures a Notifier.
type Config struct {
	// Disabled turns the notifier into a no-op.
	Disabled bool
	// RetryCount is the number of retransmissions. Defaults to
	// DefaultRetryCount.
	RetryCount int
	// Timeout is the time between transmissions. Defaults to DefaultTimeout.
	Timeout time.Duration
	Metrics *Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

type pending struct {
	req      Request
	lastSent time.Time
}

// Notifier is a notify.Sink that sends SMRs to the subscribers of every
// event.
type Notifier struct {
	sender  Sender
	cfg     Config
	mu      sync.Mutex
	pending *cache.Cache
	recent  *arc.ARCCache[string, time.Time]
}

// New creates a notifier. Retries are only sent while the task returned by
// Retrier runs.
func New(sender Sender, cfg Config) (*Notifier, error) {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	recent, err := arc.NewARC[string, time.Time](recentSize)
	if err != nil {
		return nil, serrors.Wrap("creating recent SMR cache", err)
	}
	lifetime := time.Duration(cfg.RetryCount+2) * cfg.Timeout
	return &Notifier{
		sender:  sender,
		cfg:     cfg,
		pending: cache.New(lifetime, lifetime),
		recent:  recent,
	}, nil
}

func key(sub mapping.SubscriberKey, e eid.Eid) string {
	return sub.Rloc.String() + "|" + sub.Eid.String() + "|" + e.String()
}

// Publish implements notify.Sink.
func (n *Notifier) Publish(ctx context.Context, ev notify.Event) error {
	if n.cfg.Disabled {
		return nil
	}
	var errs serrors.List
	now := n.cfg.Now()
	for _, sub := range ev.AllSubscribers() {
		if sub.TimedOut(now) {
			continue
		}
		k := key(sub.Key(), ev.Eid)
		if last, ok := n.recent.Get(k); ok && now.Sub(last) < n.cfg.Timeout {
			n.cfg.Metrics.inc("suppressed")
			continue
		}
		req := Request{Eid: ev.Eid, Subscriber: sub, Attempt: 1}
		n.recent.Add(k, now)
		n.mu.Lock()
		n.pending.SetDefault(k, &pending{req: req, lastSent: now})
		n.mu.Unlock()
		if err := n.send(ctx, req, "sent"); err != nil {
			errs = append(errs, err)
		}
	}
	n.cfg.Metrics.pending(n.pending.ItemCount())
	return errs.ToError()
}

func (n *Notifier) send(ctx context.Context, req Request, result string) error {
	if err := n.sender.SendSMR(ctx, req); err != nil {
		n.cfg.Metrics.inc(prom.ErrNotClassified)
		return serrors.Wrap("sending SMR", err, "eid", req.Eid,
			"subscriber", req.Subscriber.SrcRloc, "attempt", req.Attempt)
	}
	n.cfg.Metrics.inc(result)
	return nil
}

// Ack stops retransmissions of the SMR for e to sub. It is called when the
// subscriber requests the mapping again.
func (n *Notifier) Ack(sub mapping.SubscriberKey, e eid.Eid) {
	k := key(sub, e)
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.pending.Get(k); !ok {
		return
	}
	n.pending.Delete(k)
	n.cfg.Metrics.inc("acked")
	n.cfg.Metrics.pending(n.pending.ItemCount())
}

// Pending returns the number of SMRs waiting for an acknowledgment.
func (n *Notifier) Pending() int {
	return n.pending.ItemCount()
}

// Retry resends every pending SMR whose timeout elapsed. SMRs that used up
// their retries are dropped.
func (n *Notifier) Retry(ctx context.Context) {
	now := n.cfg.Now()
	var due []Request
	n.mu.Lock()
	for k, item := range n.pending.Items() {
		p := item.Object.(*pending)
		if now.Sub(p.lastSent) < n.cfg.Timeout {
			continue
		}
		if p.req.Attempt > n.cfg.RetryCount {
			n.pending.Delete(k)
			n.cfg.Metrics.inc("exhausted")
			continue
		}
		p.req.Attempt++
		p.lastSent = now
		due = append(due, p.req)
	}
	n.mu.Unlock()
	logger := log.FromCtx(ctx)
	for _, req := range due {
		if err := n.send(ctx, req, "retried"); err != nil {
			logger.Debug("Retrying SMR failed", "err", err)
		}
	}
	n.cfg.Metrics.pending(n.pending.ItemCount())
}

// Retrier returns the periodic task that drives retransmissions. It should run
// with a period of the configured timeout or less.
func (n *Notifier) Retrier() periodic.Task {
	return periodic.Func{TaskName: "smr_retrier", Task: n.Retry}
}
