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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Veridex/pkg/ux"
	"github.com/AleutianAI/Veridex/services/audit/engine"
)

func runWatch(cmd *cobra.Command, args []string) {
	os.Exit(watchLoop())
}

func watchLoop() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := engine.WatchOptions{
		Run: engine.Options{
			ClaimsPath:  pick(watchClaims, cfg.Claims),
			IssuesPath:  pick(watchIssues, cfg.Issues),
			GatesPath:   pick(watchGates, cfg.Gates),
			LedgerPath:  pick(watchLedger, cfg.Ledger),
			Workers:     cfg.Workers,
			GateTimeout: cfg.GateTimeout.Std(),
			Logger:      appLogger.Slog(),
		},
		Debounce: watchDebounce,
		OnRun:    printWatchRun,
	}

	ux.Info(fmt.Sprintf("watching %s, %s, %s",
		opts.Run.ClaimsPath, opts.Run.IssuesPath, opts.Run.GatesPath))
	ux.Muted("Press ctrl-c to stop.")

	if err := engine.Watch(ctx, opts); err != nil {
		OutputError(false, "Watch failed", err)
		return CLIExitError
	}
	ux.Muted("Watch stopped.")
	return CLIExitSuccess
}

// printWatchRun summarizes one watch-triggered run: failing gates in
// full, passing runs as a single line.
func printWatchRun(outcome *engine.Outcome, err error) {
	if err != nil {
		ux.Error(fmt.Sprintf("audit failed: %v", err))
		return
	}
	passed := 0
	for _, r := range outcome.Report.Body.Gates {
		if r.Pass {
			passed++
		} else {
			ux.GateLine(r.Name, false, r.Detail)
		}
	}
	total := len(outcome.Report.Body.Gates)
	ux.Summary(passed, total-passed, total)
}
