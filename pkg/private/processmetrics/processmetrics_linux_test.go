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

package processmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	require.NoError(t, Init())

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				names[f.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				names[f.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Contains(t, names, "lispmap_process_running_seconds_total")
	assert.Contains(t, names, "lispmap_process_runnable_seconds_total")
	assert.GreaterOrEqual(t, names["lispmap_process_threads"], float64(1))
	assert.GreaterOrEqual(t, names["lispmap_go_maxprocs"], float64(1))

	assert.Error(t, Init(), "second registration")
}
