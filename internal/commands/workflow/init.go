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

// Package workflow implements flowctl's "workflow" command group: scaffolding
// a new workflow definition file, interactively or from flags.
package workflow

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flowctl/flowctl/internal/cli/shared"
	workflowpkg "github.com/flowctl/flowctl/pkg/workflow"
)

// NewCommand creates the workflow command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Create and inspect workflow definitions",
	}
	cmd.AddCommand(newInitCommand())
	return cmd
}

func newInitCommand() *cobra.Command {
	var (
		name       string
		output     string
		stepType   string
		scriptStep bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new workflow definition file",
		Long: `Init writes a starter workflow file with one example step.
Run interactively in a terminal, or pass --name and --output to skip the
prompts in a script.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, &name, &output, &stepType, scriptStep)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name")
	cmd.Flags().StringVar(&output, "output", "workflow.yaml", "Path to write the new workflow file")
	cmd.Flags().StringVar(&stepType, "step-type", "script", "Type of the example step: script or agent")

	return cmd
}

func runInit(cmd *cobra.Command, name, output, stepType *string, _ bool) error {
	if *name == "" {
		if shared.IsNonInteractive() {
			return &shared.ExitError{Code: shared.ExitMissingInput, Message: "--name is required in non-interactive mode"}
		}
		if err := promptInit(name, output, stepType); err != nil {
			if err == huh.ErrUserAborted {
				os.Exit(130)
			}
			return err
		}
	}

	def := scaffoldDefinition(*name, *stepType)

	data, err := yaml.Marshal(def)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("writing %s", *output), Cause: err}
	}

	cmd.Println(shared.RenderOK(fmt.Sprintf("wrote %s", *output)))
	cmd.Printf("  %s\n", shared.Muted.Render(fmt.Sprintf("flowctl validate %s", *output)))
	return nil
}

func promptInit(name, output, stepType *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workflow name").
				Value(name).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Output path").
				Value(output),
			huh.NewSelect[string]().
				Title("Example step type").
				Options(
					huh.NewOption("Script", "script"),
					huh.NewOption("LLM agent", "agent"),
				).
				Value(stepType),
		),
	)
	return form.Run()
}

func scaffoldDefinition(name, stepType string) *workflowpkg.Definition {
	def := &workflowpkg.Definition{
		Name:    name,
		Version: "1.0",
		Env:     map[string]string{},
	}

	switch stepType {
	case "agent":
		def.Steps = []workflowpkg.Step{{
			ID:   "ask",
			Type: "agent",
			Config: map[string]any{
				"tier":   "balanced",
				"prompt": "Summarize {{env.INPUT_FILE}} in three bullet points.",
			},
		}}
	default:
		def.Steps = []workflowpkg.Step{{
			ID:   "hello",
			Type: "script",
			Config: map[string]any{
				"command": "echo",
				"args":    []string{"hello from {{workflow.id}}"},
			},
		}}
	}

	return def
}
