// Copyright 2019 Anapaya Systems
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

// Package prom contains some utility functions for dealing with prometheus
// metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the prometheus namespace of all lispmap metrics.
const Namespace = "lispmap"

// Common label names.
const (
	// LabelResult is the label for result classifications.
	LabelResult = "result"
	// LabelOperation is the label for the name of an executed operation.
	LabelOperation = "op"
	// LabelOrigin is the label for the cache a mapping belongs to.
	LabelOrigin = "origin"
	// LabelEvent is the label for the kind of a mapping change event.
	LabelEvent = "event"
	// LabelPolicy is the label for the lookup policy.
	LabelPolicy = "policy"
)

// Common result values.
const (
	// Success is no error.
	Success = "ok_success"
	// Negative is a lookup answered with a synthesized negative mapping.
	Negative = "ok_negative"
	// ErrDB is used for db related errors.
	ErrDB = "err_db"
	// ErrInternal is an internal error.
	ErrInternal = "err_internal"
	// ErrInvalidReq is an invalid request.
	ErrInvalidReq = "err_invalid_request"
	// ErrNotClassified is an error that is not further classified.
	ErrNotClassified = "err_not_classified"
	// ErrNotFound is used for errors where a resource is not found.
	ErrNotFound = "err_not_found"
	// ErrTimeout is a timeout error.
	ErrTimeout = "err_timeout"
	// ErrDropped is used when an item is discarded because a queue is full.
	ErrDropped = "err_dropped"
)

var (
	// DefaultLatencyBuckets 10ms, 20ms, 40ms, ... 5.12s, 10.24s.
	DefaultLatencyBuckets = []float64{0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64,
		1.28, 2.56, 5.12, 10.24}
	// DefaultFastLatencyBuckets covers in-memory operations: 10µs up to ~80ms.
	DefaultFastLatencyBuckets = prometheus.ExponentialBuckets(0.00001, 2, 14)
)

// ExportElementID exports the element ID as configured in the config file.
func ExportElementID(id string) {
	g := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "elem_id",
			Help:      "The element ID from the config file",
		},
		[]string{"cfg"},
	)
	SafeRegister(g).(*prometheus.GaugeVec).WithLabelValues(id).Set(1)
}

// SafeRegister registers c and returns the registered collector. If c was
// already registered the already registered collector is returned. In case of
// any other error this method panics (as MustRegister).
func SafeRegister(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// NewCounterVec creates a new prometheus counter vec that is registered with
// the default registry.
func NewCounterVec(subsystem, name, help string, labelNames []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labelNames)
	return SafeRegister(c).(*prometheus.CounterVec)
}

// NewGaugeVec creates a new prometheus gauge vec that is registered with the
// default registry.
func NewGaugeVec(subsystem, name, help string, labelNames []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labelNames)
	return SafeRegister(g).(*prometheus.GaugeVec)
}

// NewHistogramVec creates a new prometheus histogram vec that is registered
// with the default registry.
func NewHistogramVec(subsystem, name, help string, labelNames []string,
	buckets []float64) *prometheus.HistogramVec {

	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labelNames)
	return SafeRegister(h).(*prometheus.HistogramVec)
}
