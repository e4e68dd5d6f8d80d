// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Veridex/pkg/telemetry"
	"github.com/AleutianAI/Veridex/pkg/ux"
	"github.com/AleutianAI/Veridex/services/audit/engine"
	"github.com/AleutianAI/Veridex/services/audit/gates"
	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runClaims      string
	runIssues      string
	runGates       string
	runLedger      string
	runWorkers     int
	runGateTimeout time.Duration
	runShuffle     bool
	runJSON        bool
	runQuiet       bool
	runReportFile  string
	runMetricsFile string
	runTrace       string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every gate over the corpus and record the outcome",
	Long: `Run loads the claim store and issue registry, validates references,
builds the dependency graph, replays the audit trail, and executes the
configured gates in dependency order.

The verdict, any status movements, and the full gate report are appended
to the trail before the command returns.

Examples:
  veridex run --claims claims.txt --issues issues.txt --gates gates.yaml
  veridex run --json > report.json
  veridex run --shuffle --workers 8
  veridex run --trace spans.jsonl --report-file report.json

Exit Codes:
  0 = All gates passed
  1 = At least one gate failed
  2 = Structural, parse, configuration, or IO error`,
	Args: cobra.NoArgs,
	Run:  runAudit,
}

func init() {
	runCmd.Flags().StringVar(&runClaims, "claims", "",
		"Claim store file (default: from config)")
	runCmd.Flags().StringVar(&runIssues, "issues", "",
		"Issue registry file (default: from config)")
	runCmd.Flags().StringVar(&runGates, "gates", "",
		"Gate config file (default: from config)")
	runCmd.Flags().StringVar(&runLedger, "ledger", "",
		"Trail directory (default: from config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0,
		"Parallel gate workers (0 = gate config value)")
	runCmd.Flags().DurationVar(&runGateTimeout, "gate-timeout", 0,
		"Per-gate timeout override (0 = gate config value)")
	runCmd.Flags().BoolVar(&runShuffle, "shuffle", false,
		"Randomize start order of independent gates")
	runCmd.Flags().BoolVar(&runJSON, "json", false,
		"Output as JSON")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false,
		"Only exit code, no output")
	runCmd.Flags().StringVar(&runReportFile, "report-file", "",
		"Also write the report JSON to this file")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "",
		"Write a Prometheus textfile snapshot of the run")
	runCmd.Flags().StringVar(&runTrace, "trace", "",
		"Write OpenTelemetry spans to this file")

	rootCmd.AddCommand(runCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runResult is the JSON shape of a completed run.
type runResult struct {
	Report          *gates.Report                    `json:"report"`
	Transitions     []ledger.StatusTransitionPayload `json:"transitions,omitempty"`
	EntriesAppended int                              `json:"entries_appended"`
	ExitCode        int                              `json:"exit_code"`
}

func runAudit(cmd *cobra.Command, args []string) {
	// Telemetry shutdown must flush before the process exits, so the
	// exit happens outside the deferring function.
	os.Exit(auditOnce())
}

func auditOnce() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if runTrace != "" {
		tcfg := telemetry.DefaultConfig()
		tcfg.Exporter = "file"
		tcfg.TracePath = runTrace
		shutdown, err := telemetry.Init(ctx, tcfg)
		if err != nil {
			OutputError(runJSON, "Failed to start tracing", err)
			return CLIExitError
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			shutdown(flushCtx)
		}()
	}

	opts := engine.Options{
		ClaimsPath:  pick(runClaims, cfg.Claims),
		IssuesPath:  pick(runIssues, cfg.Issues),
		GatesPath:   pick(runGates, cfg.Gates),
		LedgerPath:  pick(runLedger, cfg.Ledger),
		Workers:     runWorkers,
		GateTimeout: runGateTimeout,
		Shuffle:     runShuffle,
		MetricsPath: runMetricsFile,
		Logger:      appLogger.Slog(),
	}
	if opts.Workers == 0 {
		opts.Workers = cfg.Workers
	}
	if opts.GateTimeout == 0 {
		opts.GateTimeout = cfg.GateTimeout.Std()
	}

	showSpinner := ux.ShouldShowProgress() && !runJSON && !runQuiet
	var spin *ux.Spinner
	if showSpinner {
		spin = ux.NewSpinner("Running gates...")
		spin.Start()
	}

	outcome, err := engine.Run(ctx, opts)

	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		if !runQuiet {
			OutputError(runJSON, "Audit failed", err)
		}
		return CLIExitError
	}

	if runReportFile != "" {
		if err := writeReportFile(runReportFile, outcome.Report); err != nil {
			OutputError(runJSON, "Failed to write report file", err)
			return CLIExitError
		}
	}

	if !runQuiet {
		if runJSON {
			result := runResult{
				Report:          outcome.Report,
				Transitions:     outcome.Transitions,
				EntriesAppended: outcome.EntriesAppended,
				ExitCode:        outcome.ExitCode,
			}
			if err := OutputJSON(result, false); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
				return CLIExitError
			}
		} else {
			renderReport(outcome.Report)
			for _, tr := range outcome.Transitions {
				ux.Info(fmt.Sprintf("%s: %s %s %s", tr.IssueID, tr.From, ux.IconArrow, tr.To))
			}
			ux.Muted(fmt.Sprintf("%d trail entries appended", outcome.EntriesAppended))
		}
	}

	// Engine exit classification matches the CLI codes.
	return outcome.ExitCode
}

func writeReportFile(path string, report *gates.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
