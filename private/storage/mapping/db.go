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

// Package mapping defines the persistent store of the mapping system.
//
// The store mirrors the policy mappings, the per xTR registrations and the
// authentication keys so that a restarted map server can restore its state.
// Registrations are stored with their timestamp and are purged once they are
// older than the registration validity.
package mapping

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
	dblib "github.com/lispmap/lispmap/private/storage/db"
	"github.com/lispmap/lispmap/private/tracing"
)

const (
	promOpInsertMapping    = "insert_mapping"
	promOpDeleteMapping    = "delete_mapping"
	promOpInsertAuthKey    = "insert_auth_key"
	promOpDeleteAuthKey    = "delete_auth_key"
	promOpSnapshot         = "snapshot"
	promOpDeleteExpiredReg = "delete_expired_registrations"
)

// DB is the persistent mapping store.
type DB interface {
	// InsertMapping stores data under key, replacing the row with the same
	// origin, key and xTR-ID.
	InsertMapping(ctx context.Context, origin mapping.Origin, key eid.Eid,
		data *mapping.Data) error
	// DeleteMapping deletes the row of one xTR, or all rows of key if xtrID
	// is zero. It returns the number of deleted rows.
	DeleteMapping(ctx context.Context, origin mapping.Origin, key eid.Eid,
		xtrID mapping.XtrID) (int, error)
	InsertAuthKey(ctx context.Context, key eid.Eid, k mapping.AuthKey) error
	DeleteAuthKey(ctx context.Context, key eid.Eid) (int, error)
	// Snapshot returns all stored mappings and keys.
	Snapshot(ctx context.Context) (mapping.Snapshot, error)
	// DeleteExpiredRegistrations deletes the registrations with a timestamp
	// before cutoff.
	DeleteExpiredRegistrations(ctx context.Context, cutoff time.Time) (int, error)
	dblib.LimitSetter
	io.Closer
}

// Metrics are the store metrics.
type Metrics struct {
	QueriesTotal metrics.Counter
	ResultsTotal metrics.Counter
}

// NewMetrics returns store metrics registered with the default prometheus
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: metrics.NewPromCounter(prom.NewCounterVec("mappingdb",
			"queries_total", "Total queries to the mapping store.",
			[]string{prom.LabelOperation})),
		ResultsTotal: metrics.NewPromCounter(prom.NewCounterVec("mappingdb",
			"results_total", "The results of the mapping store operations.",
			[]string{prom.LabelOperation, prom.LabelResult})),
	}
}

// Observe runs action inside a span and counts it.
func (m *Metrics) Observe(ctx context.Context, op string, action func(context.Context) error) {
	if m == nil {
		_ = action(ctx)
		return
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, fmt.Sprintf("mappingDB.%s", op))
	defer span.Finish()

	metrics.CounterInc(metrics.CounterWith(m.QueriesTotal, prom.LabelOperation, op))
	err := action(ctx)

	label := dblib.ErrToMetricLabel(err)
	tracing.Error(span, err)
	tracing.ResultLabel(span, label)

	metrics.CounterInc(metrics.CounterWith(m.ResultsTotal,
		prom.LabelOperation, op, prom.LabelResult, label))
}

var _ DB = (*Database)(nil)

// Database wraps a backend with metrics and tracing.
type Database struct {
	Backend DB
	Metrics *Metrics
}

func (db *Database) SetMaxOpenConns(maxOpenConns int) {
	db.Backend.SetMaxOpenConns(maxOpenConns)
}

func (db *Database) SetMaxIdleConns(maxIdleConns int) {
	db.Backend.SetMaxIdleConns(maxIdleConns)
}

func (db *Database) Close() error {
	return db.Backend.Close()
}

func (db *Database) InsertMapping(ctx context.Context, origin mapping.Origin,
	key eid.Eid, data *mapping.Data) error {

	var err error
	db.Metrics.Observe(ctx, promOpInsertMapping, func(ctx context.Context) error {
		err = db.Backend.InsertMapping(ctx, origin, key, data)
		return err
	})
	return err
}

func (db *Database) DeleteMapping(ctx context.Context, origin mapping.Origin,
	key eid.Eid, xtrID mapping.XtrID) (int, error) {

	var ret int
	var err error
	db.Metrics.Observe(ctx, promOpDeleteMapping, func(ctx context.Context) error {
		ret, err = db.Backend.DeleteMapping(ctx, origin, key, xtrID)
		return err
	})
	return ret, err
}

func (db *Database) InsertAuthKey(ctx context.Context, key eid.Eid,
	k mapping.AuthKey) error {

	var err error
	db.Metrics.Observe(ctx, promOpInsertAuthKey, func(ctx context.Context) error {
		err = db.Backend.InsertAuthKey(ctx, key, k)
		return err
	})
	return err
}

func (db *Database) DeleteAuthKey(ctx context.Context, key eid.Eid) (int, error) {
	var ret int
	var err error
	db.Metrics.Observe(ctx, promOpDeleteAuthKey, func(ctx context.Context) error {
		ret, err = db.Backend.DeleteAuthKey(ctx, key)
		return err
	})
	return ret, err
}

func (db *Database) Snapshot(ctx context.Context) (mapping.Snapshot, error) {
	var ret mapping.Snapshot
	var err error
	db.Metrics.Observe(ctx, promOpSnapshot, func(ctx context.Context) error {
		ret, err = db.Backend.Snapshot(ctx)
		return err
	})
	return ret, err
}

func (db *Database) DeleteExpiredRegistrations(ctx context.Context,
	cutoff time.Time) (int, error) {

	var ret int
	var err error
	db.Metrics.Observe(ctx, promOpDeleteExpiredReg, func(ctx context.Context) error {
		ret, err = db.Backend.DeleteExpiredRegistrations(ctx, cutoff)
		return err
	})
	return ret, err
}
