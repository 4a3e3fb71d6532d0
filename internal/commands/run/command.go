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

package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flowctl/flowctl/internal/cli/engine"
	"github.com/flowctl/flowctl/internal/cli/shared"
	"github.com/flowctl/flowctl/internal/config"
	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/tracing"
	"github.com/flowctl/flowctl/pkg/workflow"
)

// NewCommand creates the run command.
func NewCommand() *cobra.Command {
	var (
		inputs      []string
		metricsAddr string
		traceStdout bool
		otlpAddr    string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow",
		Long: `Run loads a workflow definition, resolves its dependency graph into
parallel groups, and executes it to completion, respecting each step's
condition, retry policy, and resource requirements.

Ctrl+C (or SIGTERM) cancels the run's context: running script steps are
sent SIGTERM and killed if still running 5s later, no further groups are
started, and the run is reported cancelled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], inputs, metricsAddr, traceStdout, otlpAddr)
		},
	}

	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "Workflow env override in key=value format")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090) while running; only takes effect together with --trace or --otlp-endpoint")
	cmd.Flags().BoolVar(&traceStdout, "trace", false, "Print spans to stdout as the run progresses")
	cmd.Flags().StringVar(&otlpAddr, "otlp-endpoint", "", "Export spans to this OTLP/HTTP collector instead of stdout")

	return cmd
}

func runWorkflow(cmd *cobra.Command, path string, inputs []string, metricsAddr string, traceStdout bool, otlpAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: "loading config", Cause: err}
	}
	logger := log.New(&log.Config{Level: cfg.Log.Level, Format: log.Format(cfg.Log.Format), AddSource: cfg.Log.AddSource, Output: os.Stderr})

	def, err := workflow.NewLoader().LoadDefinition(path)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("loading %s", path), Cause: err}
	}
	applyInputOverrides(def, inputs)

	if traceStdout || otlpAddr != "" {
		tp, err := tracing.NewProvider(ctx, tracing.Config{ServiceName: "flowctl", ServiceVersion: "dev", OTLPEndpoint: otlpAddr, Insecure: otlpAddr != ""})
		if err != nil {
			return &shared.ExitError{Code: shared.ExitProviderError, Message: "setting up tracing", Cause: err}
		}
		defer tp.Shutdown(context.Background())

		if metricsAddr != "" {
			mp, err := tracing.NewMetricsProvider(tp.Resource())
			if err != nil {
				return &shared.ExitError{Code: shared.ExitProviderError, Message: "setting up metrics", Cause: err}
			}
			defer mp.Shutdown(context.Background())
			serveMetrics(logger, metricsAddr, mp)
		}
	}

	registry, err := engine.BuildRegistry(ctx, cfg, filepath.Dir(path))
	if err != nil {
		return &shared.ExitError{Code: shared.ExitProviderError, Message: "building step executor registry", Cause: err}
	}

	runID := uuid.NewString()
	runner, err := workflow.NewWorkflowRunner(runID, def, registry)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: "constructing workflow runner", Cause: err}
	}

	shutdown := workflow.NewShutdownManager()
	shutdown.Register(runID, runner)
	defer shutdown.Unregister(runID)

	done := make(chan struct{})
	defer close(done)
	if !shared.GetQuiet() {
		go streamEvents(cmd, runner.Monitor(), done)
	}

	logger.Info("starting run", "run_id", runID, "workflow", def.Name)
	result, err := runner.Execute(ctx)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitWorkflowFailed, Message: "workflow execution", Cause: err}
	}

	if err := printResult(cmd, result, shared.GetJSON()); err != nil {
		return err
	}
	if !result.Success {
		return &shared.ExitError{Code: shared.ExitWorkflowFailed, Message: ""}
	}
	return nil
}

// applyInputOverrides merges --input key=value pairs into def.Env, CLI
// flags winning over whatever the file itself declared.
func applyInputOverrides(def *workflow.Definition, inputs []string) {
	if len(inputs) == 0 {
		return
	}
	if def.Env == nil {
		def.Env = make(map[string]string)
	}
	for _, kv := range inputs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		def.Env[k] = v
	}
}

func streamEvents(cmd *cobra.Command, monitor *workflow.ExecutionMonitor, done <-chan struct{}) {
	offset := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			events, next := monitor.Events(offset)
			for _, e := range events {
				printEvent(cmd, e)
			}
			offset = next
		}
	}
}

func printEvent(cmd *cobra.Command, e workflow.Event) {
	switch e.Type {
	case workflow.EventStepStarted:
		cmd.Println(shared.RenderLabel(fmt.Sprintf("→ %s", e.StepID)))
	case workflow.EventStepCompleted:
		cmd.Println(shared.RenderOK(e.StepID))
	case workflow.EventStepFailed:
		cmd.Println(shared.RenderError(e.StepID))
	case workflow.EventStepRetried:
		cmd.Println(shared.RenderWarn(fmt.Sprintf("%s: retry %v", e.StepID, e.Data["attempt"])))
	}
}

func serveMetrics(logger *slog.Logger, addr string, mp *tracing.MetricsProvider) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

func printResult(cmd *cobra.Command, result *workflow.WorkflowResult, useJSON bool) error {
	if useJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Success {
		cmd.Println(shared.RenderOK(fmt.Sprintf("workflow completed in %s", result.ExecutionTime)))
	} else {
		cmd.Println(shared.RenderError(fmt.Sprintf("workflow failed: %s", result.Error)))
	}
	for id, step := range result.StepResults {
		if step.Outcome == workflow.OutcomeFailed {
			cmd.Printf("  %s %s: %s\n", shared.RenderError(""), id, step.Error)
		}
	}
	return nil
}
