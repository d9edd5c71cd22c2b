// Copyright 2020 Anapaya Systems
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

// Package command contains subcommands shared by the lispmap binaries.
package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lispmap/lispmap/private/config"
	"github.com/lispmap/lispmap/private/env"
)

// Pather returns the command path of the parent command, so that help and
// examples print the full invocation.
type Pather interface {
	CommandPath() string
}

// NewSample creates a command that prints a sample configuration for the
// given config, using name as element ID.
func NewSample(pather Pather, cfg config.Sampler, name string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Display sample configuration",
		Example: fmt.Sprintf("  %[1]s sample > %[2]s.toml\n  %[1]s --config %[2]s.toml",
			pather.CommandPath(), name),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.WriteSample(cmd.OutOrStdout(), nil, config.CtxMap{config.ID: name}, cfg)
			return nil
		},
	}
	return cmd
}

// NewVersion creates a command that prints the build version.
func NewVersion(pather Pather) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show the version information",
		Example: fmt.Sprintf("  %s version", pather.CommandPath()),
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), env.VersionInfo())
		},
	}
}

// Exit prints err to stderr and exits with a non-zero exit code.
func Exit(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}
