// Copyright 2026 Anapaya Systems
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

// Option configures a Factory.
type Option func(*Options)

// Options configures the metrics Factory, construct it using the ApplyOptions
// function.
type Options struct {
	registry prometheus.Registerer
}

func (o Options) registerer() prometheus.Registerer {
	if o.registry != nil {
		return o.registry
	}
	return prometheus.DefaultRegisterer
}

// WithRegistry registers all collectors created by the factory with registry
// instead of the default registerer. Tests use a fresh registry per test
// case so that metrics can be created repeatedly.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(o *Options) {
		o.registry = registry
	}
}

// ApplyOptions collects the options.
func ApplyOptions(options ...Option) Options {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}
	return opts
}

// Auto creates a Factory that uses the provided Options as registry. If no
// explicit registry is set the default registry is used.
func (o Options) Auto() Factory {
	return Factory{opts: o}
}

// Factory registers metrics using the provided Options. Construct it using
// the Options.Auto function.
type Factory struct {
	opts Options
}

func (f Factory) register(c prometheus.Collector) {
	f.opts.registerer().MustRegister(c)
}

func (f Factory) NewCounterVec(
	opts prometheus.CounterOpts,
	labelNames []string,
) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labelNames)
	f.register(c)
	return c
}

func (f Factory) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labelNames)
	f.register(g)
	return g
}

func (f Factory) NewGaugeFunc(
	opts prometheus.GaugeOpts,
	function func() float64,
) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(opts, function)
	f.register(g)
	return g
}

func (f Factory) NewHistogramVec(
	opts prometheus.HistogramOpts,
	labelNames []string,
) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labelNames)
	f.register(h)
	return h
}

// Counter creates, registers and wraps a counter vector.
func (f Factory) Counter(opts prometheus.CounterOpts, labelNames ...string) Counter {
	return NewPromCounter(f.NewCounterVec(opts, labelNames))
}

// Gauge creates, registers and wraps a gauge vector.
func (f Factory) Gauge(opts prometheus.GaugeOpts, labelNames ...string) Gauge {
	return NewPromGauge(f.NewGaugeVec(opts, labelNames))
}

// Histogram creates, registers and wraps a histogram vector.
func (f Factory) Histogram(opts prometheus.HistogramOpts, labelNames ...string) Histogram {
	return NewPromHistogram(f.NewHistogramVec(opts, labelNames))
}
