// Copyright 2023 Anapaya Systems
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

package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// NewGendocs returns the hidden command that writes one markdown page per
// command of the tree into a directory.
func NewGendocs(_ Pather) *cobra.Command {
	return &cobra.Command{
		Use:    "gendocs <directory>",
		Short:  "Generate documentation",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			root.DisableAutoGenTag = true
			dir := args[0]
			if err := os.MkdirAll(dir, 0755); err != nil {
				return serrors.Wrap("creating directory", err, "dir", dir)
			}
			err := doc.GenMarkdownTreeCustom(root, dir, frontMatter, relativeLink)
			if err != nil {
				return serrors.Wrap("generating documentation", err, "dir", dir)
			}
			return nil
		},
	}
}

func frontMatter(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return fmt.Sprintf("---\ntitle: %s\n---\n\n", strings.ReplaceAll(name, "_", " "))
}

func relativeLink(name string) string {
	return "./" + name
}
