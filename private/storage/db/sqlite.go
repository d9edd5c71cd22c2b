// Copyright 2025 ETH Zurich, Anapaya Systems
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

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// Reader is the read-only part of a connection pool.
type Reader interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryRow(query string, args ...any) *sql.Row
	Stats() sql.DBStats
}

// SqliteConfig configures NewSqlite. The zero value opens a file database.
type SqliteConfig struct {
	// MaxOpenReadConns defaults to the number of CPUs, at least 4.
	MaxOpenReadConns int
	MaxIdleReadConns int
	// InMemory opens a named shared-cache memory database. The name must be
	// unique in the process.
	InMemory bool
}

// Sqlite is a sqlite database opened twice: Full has a single connection and
// serializes all writes, ReadOnly is a pool for concurrent queries.
type Sqlite struct {
	Full     *sql.DB
	ReadOnly Reader
	read     *sql.DB
}

// NewSqlite opens the database at path. A "file:" prefix is optional.
func NewSqlite(path string, cfg *SqliteConfig) (*Sqlite, error) {
	var c SqliteConfig
	if cfg != nil {
		c = *cfg
	}
	// An anonymous memory database would be private to each connection.
	if strings.Contains(path, ":memory:") {
		return nil, serrors.New("in-memory databases must be named", "path", path)
	}
	name, hasScheme := strings.CutPrefix(path, "file:")
	params := make(url.Values)
	addPragmas(params)
	if c.InMemory {
		if err := registerMemoryDB(name); err != nil {
			return nil, err
		}
		params.Add("mode", "memory")
		params.Add("cache", "shared")
	}
	dsn := path + "?" + params.Encode()
	if !hasScheme {
		dsn = "file:" + dsn
	}

	write, err := sql.Open(driverName(), dsn)
	if err != nil {
		return nil, serrors.Wrap("opening write pool", err, "path", path)
	}
	write.SetMaxOpenConns(1)
	read, err := sql.Open(driverName(), dsn)
	if err != nil {
		write.Close()
		return nil, serrors.Wrap("opening read pool", err, "path", path)
	}
	if c.MaxOpenReadConns == 0 {
		c.MaxOpenReadConns = max(4, runtime.NumCPU())
	}
	read.SetMaxOpenConns(c.MaxOpenReadConns)
	if c.MaxIdleReadConns != 0 {
		read.SetMaxIdleConns(c.MaxIdleReadConns)
	}
	db := &Sqlite{Full: write, ReadOnly: read, read: read}
	if c.InMemory {
		runtime.AddCleanup(db, unregisterMemoryDB, name)
	}
	return db, nil
}

// SetMaxOpenConns limits the read pool. The write pool keeps one connection.
func (db *Sqlite) SetMaxOpenConns(n int) { db.read.SetMaxOpenConns(n) }

// SetMaxIdleConns limits the idle connections of the read pool.
func (db *Sqlite) SetMaxIdleConns(n int) { db.read.SetMaxIdleConns(n) }

// Setup applies schema to a new database, identified by a zero user_version,
// and records version. An existing database must already be at version.
func (db *Sqlite) Setup(schema string, version int) error {
	var have int
	if err := db.Full.QueryRow("PRAGMA user_version;").Scan(&have); err != nil {
		return serrors.Wrap("reading schema version", err)
	}
	if have == version {
		return nil
	}
	if have != 0 {
		return serrors.New("schema version mismatch", "expected", version, "actual", have)
	}
	if _, err := db.Full.Exec(schema); err != nil {
		return serrors.Wrap("applying schema", err)
	}
	if _, err := db.Full.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return serrors.Wrap("writing schema version", err)
	}
	return nil
}

func (db *Sqlite) Close() error {
	var errs []error
	if err := db.Full.Close(); err != nil {
		errs = append(errs, serrors.Wrap("closing write pool", err))
	}
	if err := db.read.Close(); err != nil {
		errs = append(errs, serrors.Wrap("closing read pool", err))
	}
	return errors.Join(errs...)
}

// memoryDBs holds the names of open memory databases. Two databases with the
// same name would silently share their tables.
var memoryDBs = struct {
	sync.Mutex
	names map[string]struct{}
}{names: make(map[string]struct{})}

func registerMemoryDB(name string) error {
	memoryDBs.Lock()
	defer memoryDBs.Unlock()
	if _, ok := memoryDBs.names[name]; ok {
		return serrors.New("memory database already open", "name", name)
	}
	memoryDBs.names[name] = struct{}{}
	return nil
}

func unregisterMemoryDB(name string) {
	memoryDBs.Lock()
	defer memoryDBs.Unlock()
	delete(memoryDBs.names, name)
}
