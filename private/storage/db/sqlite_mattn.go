// Copyright 2023 SCION Association
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

//go:build sqlite_mattn

package db

import (
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

func driverName() string { return "sqlite3" }

// addPragmas configures mattn/go-sqlite3 through its DSN parameters. See
// sqlite_modernc.go for the rationale of each setting.
func addPragmas(q url.Values) {
	for k, v := range map[string]string{
		"_txlock":       "immediate",
		"_journal_mode": "WAL",
		"_busy_timeout": "1000",
		"_synchronous":  "NORMAL",
		"_foreign_keys": "1",
	} {
		q.Set(k, v)
	}
}
