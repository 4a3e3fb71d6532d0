// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package template

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/flowctl/internal/cli/shared"
)

func TestNewCommandHasResolveSubcommand(t *testing.T) {
	cmd := NewCommand()
	assert.Equal(t, "template", cmd.Use)
	found := false
	for _, c := range cmd.Commands() {
		if c.Name() == "resolve" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResolveCommandProducesDefinitionYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
metadata:
  id: base
parameters:
  - name: region
    type: string
    required: true
template:
  name: base-workflow
  steps:
    - id: build
      type: script
      config:
        command: echo
`), 0o644))

	instancePath := filepath.Join(dir, "instance.yaml")
	require.NoError(t, os.WriteFile(instancePath, []byte(`
templateId: base
parameters:
  region: us-east-1
`), 0o644))

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"resolve", instancePath, "--templates", dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "base-workflow")
}

func TestResolveCommandMissingInstanceFileReturnsExitError(t *testing.T) {
	dir := t.TempDir()
	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"resolve", filepath.Join(dir, "missing.yaml"), "--templates", dir})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitMissingInput, exitErr.Code)
}

func TestResolveCommandMissingTemplateDirReturnsExitError(t *testing.T) {
	dir := t.TempDir()
	instancePath := filepath.Join(dir, "instance.yaml")
	require.NoError(t, os.WriteFile(instancePath, []byte("templateId: base\n"), 0o644))

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"resolve", instancePath, "--templates", filepath.Join(dir, "does-not-exist")})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
}

func TestResolveCommandUnknownTemplateReturnsExitError(t *testing.T) {
	dir := t.TempDir()
	instancePath := filepath.Join(dir, "instance.yaml")
	require.NoError(t, os.WriteFile(instancePath, []byte("templateId: missing\n"), 0o644))

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"resolve", instancePath, "--templates", dir})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
}
