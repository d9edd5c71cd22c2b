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

// Package storage provides factories for the application storage backends.
package storage

import (
	"fmt"
	"io"
	"time"

	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/metrics"
	"github.com/lispmap/lispmap/pkg/private/prom"
	"github.com/lispmap/lispmap/private/config"
	"github.com/lispmap/lispmap/private/periodic"
	"github.com/lispmap/lispmap/private/storage/cleaner"
	"github.com/lispmap/lispmap/private/storage/db"
	mapdb "github.com/lispmap/lispmap/private/storage/mapping"
	sqlitemapdb "github.com/lispmap/lispmap/private/storage/mapping/sqlite"
)

// Backend indicates the database backend type.
type Backend string

const (
	// BackendSqlite indicates an sqlite backend.
	BackendSqlite Backend = "sqlite"
	// DefaultPath indicates the default connection string for a generic database.
	DefaultPath = "/share/lispmap.db"
	// DefaultMappingDBPath is the default connection string of the mapping
	// database. %s is replaced by the instance ID.
	DefaultMappingDBPath = "/share/data/%s.mappings.db"
	// DefaultCleanInterval is the default period of the expired registration
	// cleaner.
	DefaultCleanInterval = 30 * time.Second
)

// SampleMappingDB is the sample configuration of the mapping database.
var SampleMappingDB = DBConfig{
	Connection: DefaultMappingDBPath,
}

// SetID returns a clone of the configuration that has the ID set on the connection string.
func SetID(cfg DBConfig, id string) *DBConfig {
	cfg.Connection = fmt.Sprintf(cfg.Connection, id)
	return &cfg
}

// MappingDB is the persistent mapping store.
type MappingDB interface {
	io.Closer
	mapdb.DB
}

var _ (config.Config) = (*DBConfig)(nil)

// DBConfig is the configuration for the connection to a database.
type DBConfig struct {
	Connection   string `toml:"connection,omitempty"`
	MaxOpenConns int    `toml:"max_open_conns,omitempty"`
	MaxIdleConns int    `toml:"max_idle_conns,omitempty"`
}

type writeDefault struct {
	*DBConfig
	defaultPath string
}

func (w writeDefault) InitDefaults() {
	if w.Connection == "" {
		w.Connection = w.defaultPath
	}
}

func (cfg *DBConfig) WithDefault(path string) config.Defaulter {
	return writeDefault{DBConfig: cfg, defaultPath: path}
}

// SetConnLimits sets the maximum number of open and idle connections based on the configuration.
// Limits of 0 mean the Go default will be used.
func SetConnLimits(d db.LimitSetter, c DBConfig) {
	if c.MaxOpenConns != 0 {
		d.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns != 0 {
		d.SetMaxIdleConns(c.MaxIdleConns)
	}
}

func (cfg *DBConfig) InitDefaults() {
	if cfg.Connection == "" {
		cfg.Connection = DefaultPath
	}
}

func (cfg *DBConfig) Validate() error {
	return nil
}

// Sample writes a config sample to the writer.
func (cfg *DBConfig) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, sample)
}

// ConfigName is the key in the toml file.
func (cfg *DBConfig) ConfigName() string {
	return "db"
}

const sample = `# The connection string of the database. The sqlite backend accepts a file
# path. (default "/share/lispmap.db")
connection = "%s"

# The maximum number of open connections to the database. 0 means the Go
# default. (default 0)
max_open_conns = 0

# The maximum number of idle connections to the database. 0 means the Go
# default. (default 0)
max_idle_conns = 0
`

// CleanerConfig configures the expired registration cleaner of the mapping
// storage.
type CleanerConfig struct {
	// Validity is the lifetime of a stored registration.
	Validity time.Duration
	// Interval is the period of the cleaner. Zero means DefaultCleanInterval.
	Interval time.Duration
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// NewMappingStorage opens the mapping database. If clean.Validity is set, a
// periodic task deletes the registrations older than that.
func NewMappingStorage(c DBConfig, clean CleanerConfig) (MappingDB, error) {
	log.Info("Connecting MappingDB", "backend", BackendSqlite, "connection", c.Connection)
	backend, err := sqlitemapdb.NewBackend(c.Connection)
	if err != nil {
		return nil, err
	}
	SetConnLimits(backend, c)
	db := &mapdb.Database{
		Backend: backend,
		Metrics: mapdb.NewMetrics(),
	}
	if clean.Validity <= 0 {
		return db, nil
	}
	interval := clean.Interval
	if interval == 0 {
		interval = DefaultCleanInterval
	}
	task := cleaner.New(db.DeleteExpiredRegistrations, cleaner.Config{
		Subsystem: "mappingdb",
		MaxAge:    clean.Validity,
		Now:       clean.Now,
		Metrics:   cleanerMetrics("mappingdb"),
	})
	runner := periodic.Start(task, interval, interval)
	return mappingDBWithCleaner{
		MappingDB: db,
		cleaner:   runner,
	}, nil
}

// mappingDBWithCleaner implements the MappingDB interface and stops both the
// database and the cleanup task on Close.
type mappingDBWithCleaner struct {
	MappingDB
	cleaner *periodic.Runner
}

func (b mappingDBWithCleaner) Close() error {
	b.cleaner.Kill()
	return b.MappingDB.Close()
}

var (
	cleanerRuns = prom.NewCounterVec("storage", "cleaner_runs_total",
		"Successful cleaner runs.", []string{"subsystem"})
	cleanerErrors = prom.NewCounterVec("storage", "cleaner_errors_total",
		"Failed cleaner runs.", []string{"subsystem"})
	cleanerDeleted = prom.NewCounterVec("storage", "cleaner_deleted_total",
		"Entries deleted by cleaners.", []string{"subsystem"})
)

func cleanerMetrics(subsystem string) cleaner.Metrics {
	return cleaner.Metrics{
		RunsTotal:    metrics.NewPromCounter(cleanerRuns).With("subsystem", subsystem),
		ErrorsTotal:  metrics.NewPromCounter(cleanerErrors).With("subsystem", subsystem),
		DeletedTotal: metrics.NewPromCounter(cleanerDeleted).With("subsystem", subsystem),
	}
}
