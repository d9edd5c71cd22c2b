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

package cleaner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/private/storage/cleaner"
)

func TestCleanerRun(t *testing.T) {
	m := cleaner.Metrics{
		ErrorsTotal:  metrics.NewTestCounter(),
		RunsTotal:    metrics.NewTestCounter(),
		DeletedTotal: metrics.NewTestCounter(),
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	results := []struct {
		n   int
		err error
	}{
		{n: 3}, {n: 0}, {err: errors.New("db locked")},
	}
	var cutoffs []time.Time
	i := 0
	c := cleaner.New(func(_ context.Context, cutoff time.Time) (int, error) {
		cutoffs = append(cutoffs, cutoff)
		r := results[i]
		i++
		return r.n, r.err
	}, cleaner.Config{
		Subsystem: "mappingdb",
		MaxAge:    200 * time.Second,
		Now:       func() time.Time { return now },
		Metrics:   m,
	})
	assert.Equal(t, "mappingdb_cleaner", c.Name())

	for range results {
		c.Run(context.Background())
	}
	assert.Equal(t, float64(2), metrics.CounterValue(m.RunsTotal))
	assert.Equal(t, float64(3), metrics.CounterValue(m.DeletedTotal))
	assert.Equal(t, float64(1), metrics.CounterValue(m.ErrorsTotal))
	for _, cutoff := range cutoffs {
		assert.Equal(t, now.Add(-200*time.Second), cutoff)
	}
}

func TestCleanerNoMetrics(t *testing.T) {
	c := cleaner.New(func(context.Context, time.Time) (int, error) {
		return 1, nil
	}, cleaner.Config{Subsystem: "x"})
	assert.NotPanics(t, func() { c.Run(context.Background()) })
}
