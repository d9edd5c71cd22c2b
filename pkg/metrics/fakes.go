// Copyright 2020 Anapaya Systems
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

package metrics

import (
	"sort"
	"strings"
	"sync"
)

// family holds all label combinations created from one test metric. Calling
// With twice with the same labels yields the same node, so tests can read
// back the value through a fresh With call.
type family struct {
	mtx   sync.Mutex
	nodes map[string]*node
}

func newFamily() *family {
	return &family{nodes: make(map[string]*node)}
}

func (f *family) get(lvs labelPairs) *node {
	key := lvs.key()
	f.mtx.Lock()
	defer f.mtx.Unlock()
	n, ok := f.nodes[key]
	if !ok {
		n = &node{}
		f.nodes[key] = n
	}
	return n
}

func (lvs labelPairs) key() string {
	pairs := make([]string, 0, len(lvs)/2)
	for i := 0; i+1 < len(lvs); i += 2 {
		pairs = append(pairs, lvs[i]+"="+lvs[i+1])
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// node represents the shared implementation of gauges and counters.
type node struct {
	mtx sync.Mutex
	v   float64
}

func (b *node) add(delta float64, canBeNegative bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if !canBeNegative && delta < 0 {
		panic("counter increment value is < 0")
	}
	b.v += delta
}

func (b *node) set(v float64) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.v = v
}

func (b *node) value() float64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.v
}

// TestCounter implements a counter for use in tests.
type TestCounter struct {
	*node
	fam *family
	lvs labelPairs
}

// NewTestCounter creates a new counter for use in tests.
func NewTestCounter() *TestCounter {
	fam := newFamily()
	return &TestCounter{node: fam.get(nil), fam: fam}
}

// With returns the counter for the accumulated label values.
func (c *TestCounter) With(labelValues ...string) Counter {
	lvs := c.lvs.with(labelValues)
	return &TestCounter{node: c.fam.get(lvs), fam: c.fam, lvs: lvs}
}

// Add increases the internal value of the counter by the specified delta.
// Negative deltas panic.
func (c *TestCounter) Add(delta float64) {
	c.add(delta, false)
}

// CounterValue extracts the value out of a TestCounter. If the argument is
// not a *TestCounter, CounterValue will panic.
func CounterValue(c Counter) float64 {
	return c.(*TestCounter).value()
}

// TestGauge implements a gauge for use in tests.
type TestGauge struct {
	*node
	fam *family
	lvs labelPairs
}

// NewTestGauge creates a new gauge for use in tests.
func NewTestGauge() *TestGauge {
	fam := newFamily()
	return &TestGauge{node: fam.get(nil), fam: fam}
}

// With returns the gauge for the accumulated label values.
func (g *TestGauge) With(labelValues ...string) Gauge {
	lvs := g.lvs.with(labelValues)
	return &TestGauge{node: g.fam.get(lvs), fam: g.fam, lvs: lvs}
}

// Set sets the internal value of the gauge to the specified value.
func (g *TestGauge) Set(v float64) {
	g.set(v)
}

// Add increases the internal value of the gauge by the specified delta.
func (g *TestGauge) Add(delta float64) {
	g.add(delta, true)
}

// GaugeValue extracts the value out of a TestGauge. If the argument is not a
// *TestGauge, GaugeValue will panic.
func GaugeValue(g Gauge) float64 {
	return g.(*TestGauge).value()
}

// TestHistogram records observations for use in tests.
type TestHistogram struct {
	*node
	fam *family
	lvs labelPairs
}

// NewTestHistogram creates a new histogram for use in tests. The recorded
// value is the number of observations.
func NewTestHistogram() *TestHistogram {
	fam := newFamily()
	return &TestHistogram{node: fam.get(nil), fam: fam}
}

// With returns the histogram for the accumulated label values.
func (h *TestHistogram) With(labelValues ...string) Histogram {
	lvs := h.lvs.with(labelValues)
	return &TestHistogram{node: h.fam.get(lvs), fam: h.fam, lvs: lvs}
}

// Observe counts the observation.
func (h *TestHistogram) Observe(float64) {
	h.add(1, false)
}

// ObservationCount extracts the number of observations out of a
// TestHistogram.
func ObservationCount(h Histogram) float64 {
	return h.(*TestHistogram).value()
}
