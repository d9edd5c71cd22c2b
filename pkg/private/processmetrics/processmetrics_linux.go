// Copyright 2023 SCION Association
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

//go:build linux

// Package processmetrics exports scheduling statistics of the process
// threads that the default process collector lacks.
package processmetrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

var (
	runningDesc = prometheus.NewDesc(
		"lispmap_process_running_seconds_total",
		"CPU time the threads of the process spent running.",
		nil, nil,
	)
	runnableDesc = prometheus.NewDesc(
		"lispmap_process_runnable_seconds_total",
		"Time the threads of the process were runnable but waited for a CPU.",
		nil, nil,
	)
	threadsDesc = prometheus.NewDesc(
		"lispmap_process_threads",
		"Number of threads of the process.",
		nil, nil,
	)
	maxProcsDesc = prometheus.NewDesc(
		"lispmap_go_maxprocs",
		"The current GOMAXPROCS setting.",
		nil, nil,
	)
)

type schedStats struct {
	running  uint64
	runnable uint64
	threads  int
}

// collector sums /proc/<pid>/task/*/schedstat on every scrape.
type collector struct {
	mu   sync.Mutex
	self procfs.Proc
	last schedStats
}

func (c *collector) update() error {
	threads, err := procfs.AllThreads(c.self.PID)
	if err != nil {
		return err
	}
	stats := schedStats{threads: len(threads)}
	for _, t := range threads {
		s, err := t.Schedstat()
		if err != nil {
			// The thread exited in between.
			continue
		}
		stats.running += s.RunningNanoseconds
		stats.runnable += s.WaitingNanoseconds
	}
	c.last = stats
	return nil
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	// Keep the previous values if the update fails.
	_ = c.update()
	s := c.last
	c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(runningDesc, prometheus.CounterValue,
		float64(s.running)/1e9)
	ch <- prometheus.MustNewConstMetric(runnableDesc, prometheus.CounterValue,
		float64(s.runnable)/1e9)
	ch <- prometheus.MustNewConstMetric(threadsDesc, prometheus.GaugeValue,
		float64(s.threads))
	ch <- prometheus.MustNewConstMetric(maxProcsDesc, prometheus.GaugeValue,
		float64(runtime.GOMAXPROCS(-1)))
}

// Init registers the collector with the default prometheus registry. It must
// be called at most once. Errors only mean the metrics are missing.
func Init() error {
	self, err := procfs.Self()
	if err != nil {
		return serrors.Wrap("opening /proc/self", err)
	}
	c := &collector{self: self}
	if err := c.update(); err != nil {
		return serrors.Wrap("reading thread statistics", err)
	}
	if err := prometheus.Register(c); err != nil {
		return serrors.Wrap("registering process collector", err)
	}
	return nil
}
