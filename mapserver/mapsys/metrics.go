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

package mapsys

import (
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
)

// Metrics are the mapping system metrics. All fields are optional.
type Metrics struct {
	// Lookups counts lookups by policy and result.
	Lookups metrics.Counter
	// Registrations counts registration adds by result.
	Registrations metrics.Counter
	// Expirations counts registrations removed or re-merged by expiry.
	Expirations metrics.Counter
	// NegativeMappings counts installed negative mappings by operation:
	// synthesized or consolidated.
	NegativeMappings metrics.Counter
	// Mappings is the number of stored mappings per origin.
	Mappings metrics.Gauge
}

// NewMetrics returns metrics registered with the default prometheus
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Lookups: metrics.NewPromCounter(prom.NewCounterVec("mapsys", "lookups_total",
			"Mapping lookups by lookup policy and result.",
			[]string{prom.LabelPolicy, prom.LabelResult})),
		Registrations: metrics.NewPromCounter(prom.NewCounterVec("mapsys",
			"registrations_total", "Registration adds by result.",
			[]string{prom.LabelResult})),
		Expirations: metrics.NewPromCounter(prom.NewCounterVec("mapsys",
			"expirations_total", "Registrations handled by expiry, by operation.",
			[]string{prom.LabelOperation})),
		NegativeMappings: metrics.NewPromCounter(prom.NewCounterVec("mapsys",
			"negative_mappings_total", "Installed negative mappings by operation.",
			[]string{prom.LabelOperation})),
		Mappings: metrics.NewPromGauge(prom.NewGaugeVec("mapsys", "mappings",
			"Stored mappings per origin.", []string{prom.LabelOrigin})),
	}
}

func (m *Metrics) lookup(policy LookupPolicy, result string) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Lookups,
		prom.LabelPolicy, policy.String(), prom.LabelResult, result))
}

func (m *Metrics) registration(result string) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Registrations, prom.LabelResult, result))
}

func (m *Metrics) expiration(op string) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.Expirations, prom.LabelOperation, op))
}

func (m *Metrics) negative(op string) {
	if m == nil {
		return
	}
	metrics.CounterInc(metrics.CounterWith(m.NegativeMappings, prom.LabelOperation, op))
}

func (m *Metrics) mappings(origin string, n int) {
	if m == nil {
		return
	}
	metrics.GaugeSet(metrics.GaugeWith(m.Mappings, prom.LabelOrigin, origin), float64(n))
}
