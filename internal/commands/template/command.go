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

// Package template implements flowctl's "template" command group:
// resolving a TemplateInstance against a library of Templates into a
// concrete Definition, without running anything.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flowctl/flowctl/internal/cli/shared"
	"github.com/flowctl/flowctl/pkg/workflow"
)

// NewCommand creates the template command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Work with reusable workflow templates",
	}
	cmd.AddCommand(newResolveCommand())
	return cmd
}

func newResolveCommand() *cobra.Command {
	var templateDir string
	cmd := &cobra.Command{
		Use:   "resolve <instance-file>",
		Short: "Resolve a template instance into a concrete workflow definition",
		Long: `Resolve loads every *.yaml/*.yml/*.json file in --templates as a
Template, flattens the instance's extends chain, substitutes its
parameters, and prints the resulting Definition. Nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveInstance(cmd, templateDir, args[0])
		},
	}
	cmd.Flags().StringVar(&templateDir, "templates", "./templates", "Directory of template files to load")
	return cmd
}

func resolveInstance(cmd *cobra.Command, templateDir, instancePath string) error {
	registry := workflow.NewTemplateRegistry()
	loader := workflow.NewLoader()

	entries, err := os.ReadDir(templateDir)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("reading template directory %s", templateDir), Cause: err}
	}
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		tmpl, err := loader.LoadTemplate(filepath.Join(templateDir, entry.Name()), registry)
		if err != nil {
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("loading template %s", entry.Name()), Cause: err}
		}
		if err := registry.Register(tmpl); err != nil {
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("registering template %s", entry.Name()), Cause: err}
		}
	}

	data, err := os.ReadFile(instancePath)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitMissingInput, Message: fmt.Sprintf("reading %s", instancePath), Cause: err}
	}
	var inst workflow.TemplateInstance
	if err := yaml.Unmarshal(data, &inst); err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("parsing %s", instancePath), Cause: err}
	}

	resolved, err := workflow.NewTemplateResolver(registry).Resolve(inst)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: "resolving template instance", Cause: err}
	}

	for _, c := range resolved.Conflicts {
		cmd.PrintErrln(shared.RenderWarn(fmt.Sprintf("%s: %s overrode %s", c.Field, c.Child, c.Parent)))
	}

	out, err := yaml.Marshal(resolved.Definition)
	if err != nil {
		return err
	}
	cmd.Print(string(out))
	return nil
}

func isTemplateFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}
