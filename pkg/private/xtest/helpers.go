// Copyright 2018 ETH Zurich
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

package xtest

import (
	"flag"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// UpdateGoldenFiles registers the '-update' flag for the test.
//
// This flag should be checked by golden file tests to see whether the golden
// files should be updated or not. The flag should be registered as a package
// global variable:
//
//	var update = xtest.UpdateGoldenFiles()
func UpdateGoldenFiles() *bool {
	return flag.Bool("update", false, "set to regenerate the golden files")
}

// SanitizedName sanitizes the test name such that it can be used as a file
// name.
func SanitizedName(t testing.TB) string {
	return regexp.MustCompile(`[^a-zA-Z0-9_-]`).ReplaceAllString(t.Name(), "_")
}

// TempFileName returns a path in the test's temporary directory that does not
// exist yet. It is useful for databases that must create the file themselves.
func TempFileName(t testing.TB, name string) string {
	return filepath.Join(t.TempDir(), name)
}

// MustWriteToFile writes b to baseName inside testdata.
func MustWriteToFile(t testing.TB, b []byte, baseName string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join("testdata", baseName), b, 0644))
}

// MustReadFromFile reads baseName from testdata.
func MustReadFromFile(t testing.TB, baseName string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", baseName))
	require.NoError(t, err)
	return b
}

// MustParsePrefix parses a prefix and fails the test on error.
func MustParsePrefix(t testing.TB, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	require.NoError(t, err)
	return p
}

// MustParseAddr parses an address and fails the test on error.
func MustParseAddr(t testing.TB, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	require.NoError(t, err)
	return a
}

// AssertReadReturnsBefore will call t.Fatalf if the first read from the
// channel doesn't happen before timeout.
func AssertReadReturnsBefore(t testing.TB, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("goroutine took too long to finish")
	}
}

// AssertReturnsBefore calls t.Fatalf if f does not return within timeout.
func AssertReturnsBefore(t testing.TB, f func(), timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	AssertReadReturnsBefore(t, done, timeout)
}

// AssertReadDoesNotReturnBefore will call t.Fatalf if the first read from the
// channel happens before timeout.
func AssertReadDoesNotReturnBefore(t testing.TB, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("goroutine finished too quickly")
	case <-time.After(timeout):
	}
}

// AssertError checks that err is not nil if expectError is true and that is it
// nil otherwise.
func AssertError(t *testing.T, err error, expectError bool) {
	t.Helper()
	if expectError {
		assert.Error(t, err)
	} else {
		assert.NoError(t, err)
	}
}
