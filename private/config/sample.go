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

package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// CtxMap holds values samples are formatted with, for example ID.
type CtxMap map[string]string

// WriteSample writes the samples in order. The sample of a TableSampler is
// indented below its table header.
func WriteSample(dst io.Writer, path Path, ctx CtxMap, samplers ...Sampler) {
	var buf bytes.Buffer
	for _, s := range samplers {
		buf.Reset()
		ts, ok := s.(TableSampler)
		if !ok {
			s.Sample(&buf, path, ctx)
			mustCopy(dst, &buf)
			continue
		}
		p := path.Extend(ts.ConfigName())
		WriteString(dst, "\n["+strings.Join(p, ".")+"]")
		ts.Sample(&buf, p, ctx)
		indent(dst, &buf)
	}
}

// WriteString writes s to dst and panics on error.
func WriteString(dst io.Writer, s string) {
	if _, err := io.WriteString(dst, s); err != nil {
		panic(fmt.Sprintf("writing sample: %s", err))
	}
}

func mustCopy(dst io.Writer, src io.Reader) {
	if _, err := io.Copy(dst, src); err != nil {
		panic(fmt.Sprintf("writing sample: %s", err))
	}
}

func indent(dst io.Writer, src io.Reader) {
	lines := bufio.NewScanner(src)
	for lines.Scan() {
		if l := lines.Text(); l != "" {
			WriteString(dst, "    "+l+"\n")
			continue
		}
		WriteString(dst, "\n")
	}
}

// OverrideName returns s with its table name replaced by name.
func OverrideName(s Sampler, name string) Sampler {
	return renamed{Sampler: s, name: name}
}

type renamed struct {
	Sampler
	name string
}

func (r renamed) ConfigName() string { return r.name }

// FormatData returns s with its sample passed through fmt.Sprintf with a.
func FormatData(s Sampler, a ...any) Sampler {
	return formatted{Sampler: s, args: a}
}

type formatted struct {
	Sampler
	args []any
}

func (f formatted) Sample(dst io.Writer, path Path, ctx CtxMap) {
	var buf bytes.Buffer
	f.Sampler.Sample(&buf, path, ctx)
	WriteString(dst, fmt.Sprintf(buf.String(), f.args...))
}
