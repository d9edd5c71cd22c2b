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

package config

const idSample = "ms-1"

const mapServerSample = `
# Which caches answer a lookup. nb_first answers from the policy cache and
# falls back to registrations. nb_and_sb consults both and narrows the reply
# to the more specific of the two. (default nb_first)
lookup_policy = "nb_first"

# Merge the locators of all xTRs that register the same EID with the merge
# flag set. (default false)
mapping_merge = false

# The time a registration stays valid without being refreshed. (default 200s)
registration_validity = "200s"

# The number of buckets of the registration timeout wheel. 0 derives one
# bucket per started minute of the validity plus one. (default 0)
buckets = 0

# The TTL of synthesized negative mappings. (default 15m)
negative_ttl = "15m"

# The TTL of negative mappings for prefixes protected by an authentication
# key. (default 1m)
auth_negative_ttl = "1m"

# The action of synthesized negative mappings
# (no-action|natively-forward|send-map-request|drop). (default natively-forward)
negative_action = "natively-forward"

# The period of the expired registration cleaner of the mapping database.
# (default 30s)
clean_interval = "30s"

# The timeout of a single mapping database write. (default 5s)
store_timeout = "5s"
`

const smrSample = `
# Disable solicit map requests to the subscribers of changed mappings.
# (default false)
disabled = false

# The number of retransmissions of an unacknowledged SMR. (default 5)
retry_count = 5

# The time between retransmissions. (default 3s)
timeout = "3s"
`

const notifySample = `
# The capacity of the mapping change event queue. (default 1024)
queue_size = 1024

# What to do with an event when the queue is full
# (drop_oldest|drop_newest|block). (default drop_oldest)
overflow = "drop_oldest"

# How long the block policy waits for room. (default 100ms)
block_timeout = "100ms"
`
