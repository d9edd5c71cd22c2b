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

// Package periodic runs tasks at a fixed period, for example the storage
// cleaners and the registration expiry sweep.
package periodic

import (
	"context"
	"time"

	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
)

// Event types reported to Metrics.Events.
const (
	EventStop    = "stop"
	EventKill    = "kill"
	EventTrigger = "triggered"
)

// A Task that has to be periodically executed.
type Task interface {
	// Run executes the task once, it should return within the context's timeout.
	Run(context.Context)
	// Name returns the task's name for use in metrics and tracing.
	Name() string
}

// Func implements the Task interface for a plain function.
type Func struct {
	Task     func(context.Context)
	TaskName string
}

// Run runs the function.
func (f Func) Run(ctx context.Context) {
	f.Task(ctx)
}

// Name returns the task name.
func (f Func) Name() string {
	return f.TaskName
}

// Metrics contains the metrics reported by a Runner. All fields are optional.
type Metrics struct {
	Events    func(string) metrics.Counter
	Period    metrics.Gauge
	Runtime   metrics.Gauge
	StartTime metrics.Gauge
}

func (m *Metrics) event(e string) {
	if m == nil || m.Events == nil {
		return
	}
	metrics.CounterInc(m.Events(e))
}

func (m *Metrics) period(p time.Duration) {
	if m == nil {
		return
	}
	metrics.GaugeSet(m.Period, p.Seconds())
}

func (m *Metrics) runtime(d time.Duration) {
	if m == nil {
		return
	}
	metrics.GaugeSet(m.Runtime, d.Seconds())
}

func (m *Metrics) startTime(t time.Time) {
	if m == nil {
		return
	}
	metrics.GaugeSet(m.StartTime, float64(t.UnixNano()/1e9))
}

// Runner runs a task periodically.
type Runner struct {
	task         Task
	ticker       *time.Ticker
	timeout      time.Duration
	stop         chan struct{}
	loopFinished chan struct{}
	ctx          context.Context
	cancelF      context.CancelFunc
	trigger      chan struct{}
	metric       *Metrics
}

// Start creates and starts a new Runner to run the given task periodically.
// The timeout is used for the context timeout of the task. The timeout can be
// larger than the period. That means if a task takes a long time it will be
// immediately retriggered. The runner exports prometheus metrics labelled
// with the task name.
func Start(task Task, period, timeout time.Duration) *Runner {
	return StartWithMetrics(task, promMetrics(task.Name()), period, timeout)
}

// StartWithMetrics is like Start but reports to the given metrics.
func StartWithMetrics(task Task, m *Metrics, period, timeout time.Duration) *Runner {
	ctx, cancelF := context.WithCancel(context.Background())
	logger := log.New("debug_id", task.Name())
	ctx = log.CtxWith(ctx, logger)
	r := &Runner{
		task:         task,
		ticker:       time.NewTicker(period),
		timeout:      timeout,
		stop:         make(chan struct{}),
		loopFinished: make(chan struct{}),
		ctx:          ctx,
		cancelF:      cancelF,
		trigger:      make(chan struct{}),
		metric:       m,
	}
	logger.Debug("Starting periodic task", "period", period, "timeout", timeout)
	m.period(period)
	m.startTime(time.Now())
	go func() {
		defer log.HandlePanic()
		r.runLoop()
	}()
	return r
}

// Stop stops the periodic execution of the Runner. If the task is currently
// running this method will block until it is done.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	<-r.loopFinished
	r.metric.event(EventStop)
}

// Kill is like stop but it also cancels the context of the current running
// method.
func (r *Runner) Kill() {
	if r == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.cancelF()
	<-r.loopFinished
	r.metric.event(EventKill)
}

// TriggerRun triggers the periodic task to run now. This does not impact the
// normal periodicity of this task. That means if the period is 5m and you
// call TriggerRun after 2 minutes, the next execution will be in 3 minutes.
//
// The method blocks until either the triggered run was started or the runner
// was stopped, in which case the triggered run will not be executed.
func (r *Runner) TriggerRun() {
	select {
	// Either we were stopped or we can put something in the trigger channel.
	case <-r.stop:
	case r.trigger <- struct{}{}:
		r.metric.event(EventTrigger)
	}
}

func (r *Runner) runLoop() {
	defer close(r.loopFinished)
	defer r.cancelF()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C:
			r.onTick()
		case <-r.trigger:
			r.onTick()
		}
	}
}

func (r *Runner) onTick() {
	select {
	// Make sure that stop case is evaluated first, so that when we kill and
	// both channels are ready we always go into stop first.
	case <-r.stop:
		return
	default:
		ctx, cancelF := context.WithTimeout(r.ctx, r.timeout)
		start := time.Now()
		r.task.Run(ctx)
		r.metric.runtime(time.Since(start))
		cancelF()
	}
}

var (
	promEvents = prom.NewCounterVec("periodic", "events_total",
		"Total number of events of periodic tasks.", []string{"task", "event_type"})
	promPeriod = prom.NewGaugeVec("periodic", "period_seconds",
		"Period of the periodic task.", []string{"task"})
	promRuntime = prom.NewGaugeVec("periodic", "runtime_seconds",
		"Duration of the last run of the periodic task.", []string{"task"})
	promStart = prom.NewGaugeVec("periodic", "start_timestamp_seconds",
		"Start time of the periodic task as unix timestamp.", []string{"task"})
)

func promMetrics(name string) *Metrics {
	events := metrics.NewPromCounter(promEvents).With("task", name)
	return &Metrics{
		Events: func(e string) metrics.Counter {
			return events.With("event_type", e)
		},
		Period:    metrics.NewPromGauge(promPeriod).With("task", name),
		Runtime:   metrics.NewPromGauge(promRuntime).With("task", name),
		StartTime: metrics.NewPromGauge(promStart).With("task", name),
	}
}
