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

package mapping

import "github.com/lispmap/lispmap/pkg/eid"

// Entry is one stored mapping of a snapshot.
type Entry struct {
	Origin Origin
	Key    eid.Eid
	Data   *Data
}

// KeyEntry is one stored authentication key of a snapshot.
type KeyEntry struct {
	Key     eid.Eid
	AuthKey AuthKey
}

// Snapshot is the full persisted state of the mapping system.
type Snapshot struct {
	Mappings []Entry
	AuthKeys []KeyEntry
}
