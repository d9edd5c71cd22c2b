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

package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// OverflowPolicy decides what happens to an event when the queue is full.
type OverflowPolicy string

const (
	// DropOldest discards the oldest queued event to make room.
	DropOldest OverflowPolicy = "drop_oldest"
	// DropNewest discards the event being queued.
	DropNewest OverflowPolicy = "drop_newest"
	// Block waits for room up to the configured block timeout and then
	// discards the event being queued.
	Block OverflowPolicy = "block"
)

// ErrInvalidPolicy is returned for unknown overflow policies.
var ErrInvalidPolicy = errors.New("invalid overflow policy")

// ParseOverflowPolicy parses a policy name, case insensitive.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(strings.ToLower(s)); p {
	case DropOldest, DropNewest, Block:
		return p, nil
	}
	return "", serrors.JoinNoStack(ErrInvalidPolicy, nil, "policy", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OverflowPolicy) UnmarshalText(text []byte) error {
	v, err := ParseOverflowPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

const (
	DefaultQueueSize    = 1024
	DefaultBlockTimeout = 100 * time.Millisecond
)

// Metrics are the dispatcher metrics. All fields are optional.
type Metrics struct {
	// Events counts events by result: queued, dropped or failed. An event
	// evicted by DropOldest is counted as queued and later as dropped.
	Events      metrics.Counter
	QueueLength metrics.Gauge
}

// NewMetrics returns dispatcher metrics registered with the default
// prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Events: metrics.NewPromCounter(prom.NewCounterVec("notify", "events_total",
			"Mapping change events by result.", []string{prom.LabelEvent, prom.LabelResult})),
		QueueLength: metrics.NewPromGauge(prom.NewGaugeVec("notify", "queue_length",
			"Number of events waiting for dispatch.", nil)),
	}
}

func (m *Metrics) event(ev Event, result string) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Events,
		prom.LabelEvent, ev.Kind.String(), prom.LabelResult, result))
}

func (m *Metrics) queueLength(n int) {
	if m == nil {
		return
	}
	metrics.GaugeSet(m.QueueLength, float64(n))
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the number of queued events. Defaults to
	// DefaultQueueSize.
	QueueSize int
	// Overflow defaults to DropOldest.
	Overflow OverflowPolicy
	// BlockTimeout bounds the wait of the Block policy. Defaults to
	// DefaultBlockTimeout.
	BlockTimeout time.Duration
	Metrics      *Metrics
}

// Dispatcher is a Notifier that queues events and publishes them to a sink
// from its own goroutine. Sink errors are logged and counted, they never
// reach the mapping system.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	policy  OverflowPolicy
	timeout time.Duration
	metrics *Metrics
}

// NewDispatcher creates a dispatcher. Run must be called to publish queued
// events.
func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Overflow == "" {
		cfg.Overflow = DropOldest
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, cfg.QueueSize),
		policy:  cfg.Overflow,
		timeout: cfg.BlockTimeout,
		metrics: cfg.Metrics,
	}
}

// Notify queues ev according to the overflow policy.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	defer func() { d.metrics.queueLength(len(d.queue)) }()
	switch d.policy {
	case DropNewest:
		select {
		case d.queue <- ev:
			d.metrics.event(ev, "queued")
		default:
			d.drop(ctx, ev)
		}
	case Block:
		timer := time.NewTimer(d.timeout)
		defer timer.Stop()
		select {
		case d.queue <- ev:
			d.metrics.event(ev, "queued")
		case <-timer.C:
			d.drop(ctx, ev)
		case <-ctx.Done():
			d.drop(ctx, ev)
		}
	default:
		for {
			select {
			case d.queue <- ev:
				d.metrics.event(ev, "queued")
				return
			default:
			}
			select {
			case old := <-d.queue:
				d.drop(ctx, old)
			default:
			}
		}
	}
}

func (d *Dispatcher) drop(ctx context.Context, ev Event) {
	d.metrics.event(ev, prom.ErrDropped)
	log.FromCtx(ctx).Debug("Dropped mapping change event", "policy", d.policy,
		"event", ev.Kind, "eid", ev.Eid)
}

// Run publishes queued events until ctx is canceled. Events still queued at
// that point are published before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer log.HandlePanic()
	logger := log.FromCtx(ctx)
	for {
		select {
		case <-ctx.Done():
			d.drain(logger)
			return nil
		case ev := <-d.queue:
			d.publish(ctx, logger, ev)
		}
	}
}

func (d *Dispatcher) drain(logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.publish(ctx, logger, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, logger log.Logger, ev Event) {
	d.metrics.queueLength(len(d.queue))
	if err := d.sink.Publish(ctx, ev); err != nil {
		d.metrics.event(ev, prom.ErrNotClassified)
		logger.Info("Publishing mapping change event failed", "event", ev.Kind,
			"eid", ev.Eid, "err", err)
		return
	}
	d.metrics.event(ev, prom.Success)
}
