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

package util

import (
	"encoding"
	"flag"
	"regexp"
	"strconv"
	"time"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 365 * day
)

var durationRegex = regexp.MustCompile(`^(-?[0-9]+)(y|w|d|h|m|s|ms|us|µs|ns)$`)

var durationUnits = map[string]time.Duration{
	"y":  year,
	"w":  week,
	"d":  day,
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
	"ms": time.Millisecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ns": time.Nanosecond,
}

// ParseDuration parses a duration consisting of a single integer and a unit
// out of y, w, d, h, m, s, ms, us and ns. Combined units like "1h30m" are
// rejected.
func ParseDuration(durationStr string) (time.Duration, error) {
	matches := durationRegex.FindStringSubmatch(durationStr)
	if len(matches) != 3 {
		return 0, serrors.New("invalid duration", "duration", durationStr)
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, serrors.Wrap("invalid duration value", err, "duration", durationStr)
	}
	return time.Duration(n) * durationUnits[matches[2]], nil
}

// FmtDuration formats d with the largest unit that represents it exactly, so
// that ParseDuration(FmtDuration(d)) == d.
func FmtDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	for _, u := range []struct {
		unit string
		dur  time.Duration
	}{
		{"y", year}, {"w", week}, {"d", day}, {"h", time.Hour}, {"m", time.Minute},
		{"s", time.Second}, {"ms", time.Millisecond}, {"us", time.Microsecond},
	} {
		if d%u.dur == 0 {
			return strconv.FormatInt(int64(d/u.dur), 10) + u.unit
		}
	}
	return strconv.FormatInt(int64(d), 10) + "ns"
}

var (
	_ encoding.TextUnmarshaler = (*DurWrap)(nil)
	_ encoding.TextMarshaler   = DurWrap{}
	_ flag.Value               = (*DurWrap)(nil)
)

// DurWrap is a duration in the ParseDuration format for TOML, YAML and flags.
// The empty string decodes to zero.
type DurWrap struct {
	time.Duration
}

func (d *DurWrap) UnmarshalText(text []byte) error { return d.Set(string(text)) }

// Set implements flag.Value.
func (d *DurWrap) Set(s string) error {
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d DurWrap) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d DurWrap) String() string { return FmtDuration(d.Duration) }
