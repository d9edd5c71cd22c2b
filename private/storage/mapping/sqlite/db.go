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

// Package sqlite implements the mapping store on sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/private/storage/db"
	mapdb "github.com/lispmap/lispmap/private/storage/mapping"
)

const (
	// SchemaVersion is the version of the SQLite schema understood by this
	// backend. Whenever changes to the schema are made, this version number
	// should be increased to prevent data corruption between incompatible
	// database schemas.
	SchemaVersion = 1
	// Schema is the SQLite database layout.
	Schema = `CREATE TABLE Mappings(
		Origin INTEGER NOT NULL,
		Eid TEXT NOT NULL,
		XtrID TEXT NOT NULL,
		Timestamp INTEGER NOT NULL,
		Data TEXT NOT NULL,
		PRIMARY KEY (Origin, Eid, XtrID)
	);
	CREATE INDEX MappingsTimestamp ON Mappings(Origin, Timestamp);
	CREATE TABLE AuthKeys(
		Eid TEXT NOT NULL PRIMARY KEY,
		KeyType INTEGER NOT NULL,
		Key TEXT NOT NULL
	);`
)

var _ mapdb.DB = (*Backend)(nil)

// Backend is the sqlite mapping store.
type Backend struct {
	db *db.Sqlite
}

// NewBackend opens the database at path and sets it up if it is new.
func NewBackend(path string) (*Backend, error) {
	return newBackend(path, nil)
}

// NewInMemoryBackend opens a named in-memory database.
func NewInMemoryBackend(name string) (*Backend, error) {
	return newBackend("file:"+name, &db.SqliteConfig{InMemory: true})
}

func newBackend(path string, cfg *db.SqliteConfig) (*Backend, error) {
	d, err := db.NewSqlite(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.Setup(Schema, SchemaVersion); err != nil {
		d.Close()
		return nil, err
	}
	return &Backend{db: d}, nil
}

// SetMaxOpenConns limits the read connections.
func (b *Backend) SetMaxOpenConns(maxOpenConns int) {
	b.db.SetMaxOpenConns(maxOpenConns)
}

// SetMaxIdleConns limits the idle read connections.
func (b *Backend) SetMaxIdleConns(maxIdleConns int) {
	b.db.SetMaxIdleConns(maxIdleConns)
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// InsertMapping stores data under key.
func (b *Backend) InsertMapping(ctx context.Context, origin mapping.Origin,
	key eid.Eid, data *mapping.Data) error {

	if data == nil || data.Record == nil {
		return db.NewInputDataError("mapping without record", nil, "eid", key)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return db.NewInputDataError("encoding mapping", err, "eid", key)
	}
	query := `INSERT OR REPLACE INTO Mappings (Origin, Eid, XtrID, Timestamp, Data)
		VALUES (?, ?, ?, ?, ?)`
	_, err = b.db.Full.ExecContext(ctx, query, int(origin), eid.Normalize(key).String(),
		data.XtrID.String(), unixNano(data.Timestamp), string(raw))
	if err != nil {
		return db.NewWriteError("inserting mapping", err, "eid", key)
	}
	return nil
}

// DeleteMapping deletes the row of one xTR or all rows of key.
func (b *Backend) DeleteMapping(ctx context.Context, origin mapping.Origin,
	key eid.Eid, xtrID mapping.XtrID) (int, error) {

	query := `DELETE FROM Mappings WHERE Origin = ? AND Eid = ?`
	args := []any{int(origin), eid.Normalize(key).String()}
	if !xtrID.IsZero() {
		query += ` AND XtrID = ?`
		args = append(args, xtrID.String())
	}
	return b.exec(ctx, "deleting mapping", query, args...)
}

// InsertAuthKey stores the authentication key of a prefix.
func (b *Backend) InsertAuthKey(ctx context.Context, key eid.Eid, k mapping.AuthKey) error {
	query := `INSERT OR REPLACE INTO AuthKeys (Eid, KeyType, Key) VALUES (?, ?, ?)`
	_, err := b.db.Full.ExecContext(ctx, query, eid.Normalize(key).String(),
		int(k.Type), k.Key)
	if err != nil {
		return db.NewWriteError("inserting authentication key", err, "eid", key)
	}
	return nil
}

// DeleteAuthKey deletes the authentication key of a prefix.
func (b *Backend) DeleteAuthKey(ctx context.Context, key eid.Eid) (int, error) {
	return b.exec(ctx, "deleting authentication key",
		`DELETE FROM AuthKeys WHERE Eid = ?`, eid.Normalize(key).String())
}

// DeleteExpiredRegistrations deletes registrations older than cutoff.
// Registrations without a timestamp are kept.
func (b *Backend) DeleteExpiredRegistrations(ctx context.Context,
	cutoff time.Time) (int, error) {

	query := `DELETE FROM Mappings WHERE Origin = ? AND Timestamp > 0 AND Timestamp < ?`
	return b.exec(ctx, "deleting expired registrations", query,
		int(mapping.Registration), cutoff.UnixNano())
}

func (b *Backend) exec(ctx context.Context, msg, query string, args ...any) (int, error) {
	res, err := b.db.Full.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, db.NewWriteError(msg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, db.NewReadError("counting affected rows", err)
	}
	return int(n), nil
}

// Snapshot reads all mappings and keys.
func (b *Backend) Snapshot(ctx context.Context) (mapping.Snapshot, error) {
	var snap mapping.Snapshot
	rows, err := b.db.ReadOnly.QueryContext(ctx,
		`SELECT Origin, Eid, Data FROM Mappings ORDER BY Origin, Eid, XtrID`)
	if err != nil {
		return snap, db.NewReadError("reading mappings", err)
	}
	if snap.Mappings, err = scanMappings(rows); err != nil {
		return snap, err
	}
	rows, err = b.db.ReadOnly.QueryContext(ctx,
		`SELECT Eid, KeyType, Key FROM AuthKeys ORDER BY Eid`)
	if err != nil {
		return snap, db.NewReadError("reading authentication keys", err)
	}
	if snap.AuthKeys, err = scanKeys(rows); err != nil {
		return snap, err
	}
	return snap, nil
}

func scanMappings(rows *sql.Rows) ([]mapping.Entry, error) {
	defer rows.Close()
	var out []mapping.Entry
	for rows.Next() {
		var origin int
		var key, raw string
		if err := rows.Scan(&origin, &key, &raw); err != nil {
			return nil, db.NewReadError("scanning mapping", err)
		}
		e, err := eid.Parse(key)
		if err != nil {
			return nil, db.NewDataError("parsing eid", err, "eid", key)
		}
		var data mapping.Data
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, db.NewDataError("decoding mapping", err, "eid", key)
		}
		out = append(out, mapping.Entry{Origin: mapping.Origin(origin), Key: e, Data: &data})
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating mappings", err)
	}
	return out, nil
}

func scanKeys(rows *sql.Rows) ([]mapping.KeyEntry, error) {
	defer rows.Close()
	var out []mapping.KeyEntry
	for rows.Next() {
		var key, secret string
		var keyType int
		if err := rows.Scan(&key, &keyType, &secret); err != nil {
			return nil, db.NewReadError("scanning authentication key", err)
		}
		e, err := eid.Parse(key)
		if err != nil {
			return nil, db.NewDataError("parsing eid", err, "eid", key)
		}
		out = append(out, mapping.KeyEntry{
			Key:     e,
			AuthKey: mapping.AuthKey{Type: mapping.KeyType(keyType), Key: secret},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating authentication keys", err)
	}
	return out, nil
}
