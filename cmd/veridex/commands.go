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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Veridex/pkg/logging"
	"github.com/AleutianAI/Veridex/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath       string
	verbose          bool
	logJSON          bool
	quietLogs        bool
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	reportFormat string
	reportLedger string

	reopenIssue    string
	reopenReason   string
	reopenEvidence []string
	reopenYes      bool
	reopenLedger   string

	watchClaims   string
	watchIssues   string
	watchGates    string
	watchLedger   string
	watchDebounce time.Duration

	ledgerDir string
	statsJSON bool
	tailCount int

	cfg       Config
	appLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "veridex",
		Short: "Audit the provenance and dependency health of a claim corpus",
		Long: `Veridex runs consistency and closure gates over a corpus of tagged
claims and open-problem issues, records every verdict in an append-only
trail, and reports which results still rest on unproven ground.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}

			loaded, err := resolveConfig(configPath)
			if err != nil {
				ux.Error(err.Error())
				os.Exit(CLIExitError)
			}
			cfg = loaded

			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				ux.Error(err.Error())
				os.Exit(CLIExitError)
			}
			if verbose {
				level = logging.LevelDebug
			}
			appLogger = logging.New(logging.Config{
				Level:   level,
				LogDir:  cfg.Log.Dir,
				Service: "veridex",
				JSON:    logJSON || cfg.Log.JSON,
				Quiet:   quietLogs,
			})
		},
	}

	// --- Reporting ---
	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Print the last recorded gate report without re-running gates",
		Run:   runReport, // Defined in cmd_report.go
	}

	// --- Reopen ---
	reopenCmd = &cobra.Command{
		Use:   "reopen",
		Short: "Reopen a closed issue with a recorded reason",
		Long: `Reopen records a downgrade in the audit trail. The registry file is
not modified; the issue's effective status becomes Open on the next run,
and the report shows the drift until the registry catches up.`,
		Run: runReopen, // Defined in cmd_reopen.go
	}

	// --- Watch ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-run the audit whenever the corpus changes",
		Run:   runWatch, // Defined in cmd_watch.go
	}

	// --- Trail inspection ---
	ledgerCmd = &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the append-only audit trail",
	}
	ledgerStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Summarize the trail: entry counts by kind, sequence range, age",
		Run:   runLedgerStats, // Defined in cmd_ledger.go
	}
	ledgerTailCmd = &cobra.Command{
		Use:   "tail",
		Short: "Print the newest trail entries",
		Run:   runLedgerTail, // Defined in cmd_ledger.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to veridex.yaml (default: ./veridex.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log at debug level")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write stderr logs as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&quietLogs, "quiet", false,
		"Suppress stderr logging (the dated log file still receives entries)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportFormat, "format", "text",
		"Output format: text or json")
	reportCmd.Flags().StringVar(&reportLedger, "ledger", "",
		"Trail directory (default: from config)")

	rootCmd.AddCommand(reopenCmd)
	reopenCmd.Flags().StringVar(&reopenIssue, "issue", "",
		"Issue id to reopen (required)")
	reopenCmd.Flags().StringVar(&reopenReason, "reason", "",
		"Why the closure no longer stands (required)")
	reopenCmd.Flags().StringSliceVar(&reopenEvidence, "evidence", nil,
		"Claim ids or references backing the reason")
	reopenCmd.Flags().BoolVar(&reopenYes, "yes", false,
		"Skip the confirmation prompt")
	reopenCmd.Flags().StringVar(&reopenLedger, "ledger", "",
		"Trail directory (default: from config)")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchClaims, "claims", "",
		"Claim store file (default: from config)")
	watchCmd.Flags().StringVar(&watchIssues, "issues", "",
		"Issue registry file (default: from config)")
	watchCmd.Flags().StringVar(&watchGates, "gates", "",
		"Gate config file (default: from config)")
	watchCmd.Flags().StringVar(&watchLedger, "ledger", "",
		"Trail directory (default: from config)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 250*time.Millisecond,
		"Quiet period before a re-run")

	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerStatsCmd)
	ledgerStatsCmd.Flags().StringVar(&ledgerDir, "ledger", "",
		"Trail directory (default: from config)")
	ledgerStatsCmd.Flags().BoolVar(&statsJSON, "json", false,
		"Output as JSON")
	ledgerCmd.AddCommand(ledgerTailCmd)
	ledgerTailCmd.Flags().StringVar(&ledgerDir, "ledger", "",
		"Trail directory (default: from config)")
	ledgerTailCmd.Flags().IntVarP(&tailCount, "count", "n", 10,
		"Number of entries to print")
}
