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

package workflow

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flowctl/flowctl/internal/cli/shared"
	workflowpkg "github.com/flowctl/flowctl/pkg/workflow"
)

func TestNewCommandHasInitSubcommand(t *testing.T) {
	cmd := NewCommand()
	assert.Equal(t, "workflow", cmd.Use)
	found := false
	for _, c := range cmd.Commands() {
		if c.Name() == "init" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestInitCommandRequiresNameNonInteractively(t *testing.T) {
	t.Setenv("FLOWCTL_NON_INTERACTIVE", "true")
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.yaml")

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"init", "--output", out})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitMissingInput, exitErr.Code)
}

func TestInitCommandWritesScriptStepWorkflow(t *testing.T) {
	t.Setenv("FLOWCTL_NON_INTERACTIVE", "true")
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.yaml")

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"init", "--name", "deploy", "--output", out})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "wrote")

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var def workflowpkg.Definition
	require.NoError(t, yaml.Unmarshal(data, &def))
	assert.Equal(t, "deploy", def.Name)
	require.Len(t, def.Steps, 1)
	assert.Equal(t, "script", def.Steps[0].Type)
}

func TestInitCommandWritesAgentStepWorkflow(t *testing.T) {
	t.Setenv("FLOWCTL_NON_INTERACTIVE", "true")
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.yaml")

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"init", "--name", "summarize", "--output", out, "--step-type", "agent"})

	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var def workflowpkg.Definition
	require.NoError(t, yaml.Unmarshal(data, &def))
	require.Len(t, def.Steps, 1)
	assert.Equal(t, "agent", def.Steps[0].Type)
}
