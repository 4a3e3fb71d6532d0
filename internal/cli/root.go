// Package cli wires flowctl's cobra command tree: a root command carrying
// global flags, and one subcommand per operation (run, validate, template,
// workflow).
package cli

import (
	"github.com/spf13/cobra"

	"github.com/flowctl/flowctl/internal/cli/shared"
)

// SetVersion sets build-time version information (called from main).
func SetVersion(v, c string) {
	shared.SetVersion(v, c)
}

// NewRootCommand creates flowctl's root cobra command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowctl",
		Short: "flowctl - declarative workflow execution engine",
		Long: `flowctl runs declarative, dependency-ordered workflows: steps that call
scripts or LLM agents, scheduled in parallel where their
dependencies allow and bounded by named resource pools.

Run 'flowctl workflow init' to scaffold a new workflow file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/flowctl/config.yaml)")

	return cmd
}

// HandleExitError handles a command's returned error with the proper exit code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
