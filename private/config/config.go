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

// Package config defines how configuration blocks are defaulted, validated
// and turned into commented TOML samples.
//
// A block implements Config. InitDefaults fills the fields that were not set
// by the decoded file, Validate checks the result and Sample writes a
// commented sample that decodes back to the defaults. Blocks compose: a
// parent calls InitAll, ValidateAll and WriteSample on its children. Every
// block ships a test that decodes its sample, see private/env/envtest.
//
// Sample may panic on write errors.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// ID is the sample context key of the element ID.
const ID = "id"

// Config is a configuration block.
type Config interface {
	Sampler
	Validator
	Defaulter
}

type Validator interface {
	Validate() error
}

type Defaulter interface {
	InitDefaults()
}

// Sampler writes a commented sample of a block to dst.
type Sampler interface {
	Sample(dst io.Writer, path Path, ctx CtxMap)
}

// TableSampler is a Sampler whose sample is a TOML table named ConfigName.
type TableSampler interface {
	Sampler
	ConfigName() string
}

// Path is the dotted table name of a block.
type Path []string

// Extend returns a copy of p with s appended.
func (p Path) Extend(s string) Path {
	return append(append(make(Path, 0, len(p)+1), p...), s)
}

// NoValidator can be embedded by blocks without validation.
type NoValidator struct{}

func (NoValidator) Validate() error { return nil }

// NoDefaulter can be embedded by blocks without defaults.
type NoDefaulter struct{}

func (NoDefaulter) InitDefaults() {}

// InitAll initializes all defaulters in order.
func InitAll(defaulters ...Defaulter) {
	for _, d := range defaulters {
		d.InitDefaults()
	}
}

// ValidateAll returns the first validation error, annotated with the block
// name if the validator has one.
func ValidateAll(validators ...Validator) error {
	for _, v := range validators {
		err := v.Validate()
		if err == nil {
			continue
		}
		if ts, ok := v.(TableSampler); ok {
			return serrors.Wrap("invalid config", err, "block", ts.ConfigName())
		}
		return serrors.Wrap("invalid config", err, "type", fmt.Sprintf("%T", v))
	}
	return nil
}

// Decode decodes TOML into cfg. Unknown keys are an error.
func Decode(raw []byte, cfg any) error {
	return toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(cfg)
}

// LoadFile decodes the TOML file into cfg.
func LoadFile(file string, cfg any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return Decode(raw, cfg)
}
