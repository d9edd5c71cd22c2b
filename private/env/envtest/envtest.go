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

// Package envtest contains helpers to check that the sample blocks of the
// env package decode to the expected values. Services embed these checks in
// their own config sample tests.
package envtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lispmap/lispmap/private/env"
)

// InitTestGeneral sets values that differ from the sample.
func InitTestGeneral(cfg *env.General) {
	cfg.ConfigDir = "/nonexistent"
}

// CheckTestGeneral checks that the sample values overwrote the test values.
func CheckTestGeneral(t *testing.T, cfg *env.General, id string) {
	t.Helper()
	assert.Equal(t, id, cfg.ID)
	assert.Equal(t, "/etc/lispmap", cfg.ConfigDir)
}

// InitTestMetrics sets values that differ from the sample.
func InitTestMetrics(cfg *env.Metrics) {
	cfg.Prometheus = "127.0.0.1:9999"
}

// CheckTestMetrics checks that the sample values overwrote the test values.
func CheckTestMetrics(t *testing.T, cfg *env.Metrics) {
	t.Helper()
	assert.Empty(t, cfg.Prometheus)
}

// InitTestTracing sets values that differ from the sample.
func InitTestTracing(cfg *env.Tracing) {
	cfg.Enabled = true
	cfg.Debug = true
}

// CheckTestTracing checks that the sample values overwrote the test values.
func CheckTestTracing(t *testing.T, cfg *env.Tracing) {
	t.Helper()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "localhost:6831", cfg.Agent)
}
