// Copyright 2018 Anapaya Systems
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

package periodic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/xtest"
	"github.com/lispmap/lispmap/private/periodic"
)

func testMetrics() *periodic.Metrics {
	events := metrics.NewTestCounter()
	return &periodic.Metrics{
		Events:    func(e string) metrics.Counter { return events.With("event_type", e) },
		Period:    metrics.NewTestGauge(),
		Runtime:   metrics.NewTestGauge(),
		StartTime: metrics.NewTestGauge(),
	}
}

func eventCount(m *periodic.Metrics, e string) float64 {
	return metrics.CounterValue(m.Events(e))
}

// ticks returns a task that signals every run on the returned channel.
func ticks(size int) (periodic.Task, chan struct{}) {
	ran := make(chan struct{}, size)
	return periodic.Func{
		TaskName: "sweep",
		Task: func(context.Context) {
			select {
			case ran <- struct{}{}:
			default:
			}
		},
	}, ran
}

func TestRunsEveryPeriod(t *testing.T) {
	m := testMetrics()
	task, ran := ticks(16)
	p := 20 * time.Millisecond
	start := time.Now()
	r := periodic.StartWithMetrics(task, m, p, time.Hour)

	for i := 0; i < 5; i++ {
		xtest.AssertReadReturnsBefore(t, ran, 10*p)
	}
	assert.WithinDuration(t, start, time.Now(), 10*p)
	xtest.AssertReturnsBefore(t, r.Stop, time.Second)

	assert.Equal(t, float64(1), eventCount(m, periodic.EventStop))
	assert.Zero(t, eventCount(m, periodic.EventKill))
	assert.Equal(t, p.Seconds(), metrics.GaugeValue(m.Period))
	assert.LessOrEqual(t, float64(start.Unix()), metrics.GaugeValue(m.StartTime))
}

func TestKillCancelsRun(t *testing.T) {
	m := testMetrics()
	started := make(chan struct{})
	result := make(chan error, 1)
	task := periodic.Func{
		TaskName: "slow",
		Task: func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			result <- ctx.Err()
		},
	}
	r := periodic.StartWithMetrics(task, m, 10*time.Millisecond, time.Hour)
	xtest.AssertReadReturnsBefore(t, started, time.Second)
	xtest.AssertReturnsBefore(t, r.Kill, time.Second)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("task did not return")
	}
	assert.Equal(t, float64(1), eventCount(m, periodic.EventKill))
	assert.Zero(t, eventCount(m, periodic.EventStop))
}

func TestNoRunAfterKill(t *testing.T) {
	task, ran := ticks(16)
	p := 10 * time.Millisecond
	r := periodic.StartWithMetrics(task, testMetrics(), p, time.Hour)
	xtest.AssertReadReturnsBefore(t, ran, time.Second)
	xtest.AssertReturnsBefore(t, r.Kill, time.Second)
	// Drain the runs that raced with Kill.
	for len(ran) > 0 {
		<-ran
	}
	time.Sleep(3 * p)
	assert.Empty(t, ran)
}

func TestTriggerRun(t *testing.T) {
	m := testMetrics()
	task, ran := ticks(32)
	r := periodic.StartWithMetrics(task, m, time.Hour, time.Second)
	defer r.Kill()

	for i := 0; i < 3; i++ {
		xtest.AssertReturnsBefore(t, r.TriggerRun, time.Second)
		xtest.AssertReadReturnsBefore(t, ran, time.Second)
	}
	assert.Equal(t, float64(3), eventCount(m, periodic.EventTrigger))
}

func TestTaskContextHasTimeout(t *testing.T) {
	deadline := make(chan time.Duration, 1)
	task := periodic.Func{
		TaskName: "registration_sweep",
		Task: func(ctx context.Context) {
			d, ok := ctx.Deadline()
			require.True(t, ok)
			select {
			case deadline <- time.Until(d):
			default:
			}
		},
	}
	r := periodic.Start(task, 5*time.Millisecond, time.Second)
	defer r.Stop()
	select {
	case d := <-deadline:
		assert.LessOrEqual(t, d, time.Second)
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}
