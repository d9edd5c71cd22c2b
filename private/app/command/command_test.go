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

package command_test

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lispmap/lispmap/private/app/command"
	"github.com/lispmap/lispmap/private/env"
)

func TestSample(t *testing.T) {
	root := &cobra.Command{Use: "mapserver"}
	root.AddCommand(command.NewSample(root, &env.General{}, "ms-1"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"sample"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `id = "ms-1"`)
}

func TestGendocs(t *testing.T) {
	root := &cobra.Command{Use: "mapserver"}
	root.AddCommand(command.NewVersion(root))
	root.AddCommand(command.NewGendocs(root))
	dir := t.TempDir()
	root.SetArgs([]string{"gendocs", dir})
	require.NoError(t, root.Execute())
	assert.FileExists(t, dir+"/mapserver.md")
	assert.FileExists(t, dir+"/mapserver_version.md")
}
