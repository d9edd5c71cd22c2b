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

// Package cleaner provides the periodic task that purges aged entries from a
// database.
package cleaner

import (
	"context"
	"time"

	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/private/periodic"
)

// Deleter deletes the entries last updated before cutoff and returns how
// many it deleted.
type Deleter func(ctx context.Context, cutoff time.Time) (int, error)

// Metrics of a cleaner. All fields are optional.
type Metrics struct {
	ErrorsTotal  metrics.Counter
	RunsTotal    metrics.Counter
	DeletedTotal metrics.Counter
}

// Config configures a cleaner.
type Config struct {
	// Subsystem names the cleaned database in the task name and logs.
	Subsystem string
	// MaxAge is the age after which entries are deleted.
	MaxAge time.Duration
	// Now defaults to time.Now.
	Now     func() time.Time
	Metrics Metrics
}

var _ periodic.Task = (*Cleaner)(nil)

// Cleaner is a periodic.Task that deletes entries older than MaxAge.
type Cleaner struct {
	deleter Deleter
	cfg     Config
}

func New(deleter Deleter, cfg Config) *Cleaner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cleaner{deleter: deleter, cfg: cfg}
}

func (c *Cleaner) Name() string {
	return c.cfg.Subsystem + "_cleaner"
}

func (c *Cleaner) Run(ctx context.Context) {
	logger := log.FromCtx(ctx)
	cutoff := c.cfg.Now().Add(-c.cfg.MaxAge)
	n, err := c.deleter(ctx, cutoff)
	if err != nil {
		logger.Error("Deleting aged entries failed", "subsystem", c.cfg.Subsystem, "err", err)
		metrics.CounterInc(c.cfg.Metrics.ErrorsTotal)
		return
	}
	metrics.CounterInc(c.cfg.Metrics.RunsTotal)
	if n == 0 {
		return
	}
	logger.Debug("Deleted aged entries", "subsystem", c.cfg.Subsystem, "count", n,
		"cutoff", cutoff)
	metrics.CounterAdd(c.cfg.Metrics.DeletedTotal, float64(n))
}
