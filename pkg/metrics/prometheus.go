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
	"github.com/prometheus/client_golang/prometheus"
)

// NewPromGauge wraps a prometheus gauge vector as a gauge.
// Returns nil, if gv is nil.
func NewPromGauge(gv *prometheus.GaugeVec) Gauge {
	if gv == nil {
		return nil
	}
	return promGauge{vec: gv}
}

// NewPromCounter wraps a prometheus counter vector as a counter.
// Returns nil if cv is nil.
func NewPromCounter(cv *prometheus.CounterVec) Counter {
	if cv == nil {
		return nil
	}
	return promCounter{vec: cv}
}

// NewPromHistogram wraps a prometheus histogram vector as a histogram.
// Returns nil if hv is nil.
func NewPromHistogram(hv *prometheus.HistogramVec) Histogram {
	if hv == nil {
		return nil
	}
	return promHistogram{vec: hv}
}

// labelPairs accumulates the label name/value pairs passed to With. A
// dangling name gets the value "unknown".
type labelPairs []string

func (p labelPairs) with(kv []string) labelPairs {
	out := make(labelPairs, 0, len(p)+len(kv)+1)
	out = append(out, p...)
	out = append(out, kv...)
	if len(kv)%2 != 0 {
		out = append(out, "unknown")
	}
	return out
}

func (p labelPairs) labels() prometheus.Labels {
	l := make(prometheus.Labels, len(p)/2)
	for i := 0; i+1 < len(p); i += 2 {
		l[p[i]] = p[i+1]
	}
	return l
}

type promGauge struct {
	vec    *prometheus.GaugeVec
	labels labelPairs
}

func (g promGauge) With(labelValues ...string) Gauge {
	return promGauge{vec: g.vec, labels: g.labels.with(labelValues)}
}

func (g promGauge) Set(v float64) { g.vec.With(g.labels.labels()).Set(v) }

func (g promGauge) Add(delta float64) { g.vec.With(g.labels.labels()).Add(delta) }

type promCounter struct {
	vec    *prometheus.CounterVec
	labels labelPairs
}

func (c promCounter) With(labelValues ...string) Counter {
	return promCounter{vec: c.vec, labels: c.labels.with(labelValues)}
}

func (c promCounter) Add(delta float64) { c.vec.With(c.labels.labels()).Add(delta) }

type promHistogram struct {
	vec    *prometheus.HistogramVec
	labels labelPairs
}

func (h promHistogram) With(labelValues ...string) Histogram {
	return promHistogram{vec: h.vec, labels: h.labels.with(labelValues)}
}

func (h promHistogram) Observe(v float64) { h.vec.With(h.labels.labels()).Observe(v) }
