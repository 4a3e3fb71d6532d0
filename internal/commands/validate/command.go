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

package validate

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowctl/flowctl/internal/cli/shared"
	"github.com/flowctl/flowctl/pkg/workflow"
)

// NewCommand creates the validate command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Check a workflow definition without running it",
		Long: `Validate loads a workflow file, checks every step id, dependsOn
reference, and condition expression, and reports a DAG cycle if the
dependency graph isn't acyclic. Nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateWorkflow(cmd, args[0])
		},
	}
	return cmd
}

type validationResult struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name,omitempty"`
	Steps int    `json:"steps,omitempty"`
	Error string `json:"error,omitempty"`
}

func validateWorkflow(cmd *cobra.Command, path string) error {
	// LoadDefinition validates fields and checks the dependency graph for
	// cycles before returning, so a non-nil def here is already valid.
	def, err := workflow.NewLoader().LoadDefinition(path)
	if err != nil {
		return reportResult(cmd, validationResult{Valid: false, Error: err.Error()})
	}

	return reportResult(cmd, validationResult{Valid: true, Name: def.Name, Steps: len(def.Steps)})
}

func reportResult(cmd *cobra.Command, res validationResult) error {
	if shared.GetJSON() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if res.Valid {
		cmd.Println(shared.RenderOK(fmt.Sprintf("%s is valid (%d steps)", res.Name, res.Steps)))
	} else {
		cmd.Println(shared.RenderError(res.Error))
	}

	if !res.Valid {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow}
	}
	return nil
}
