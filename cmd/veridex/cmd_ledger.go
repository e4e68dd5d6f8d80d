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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Veridex/pkg/ux"
	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

// kindDisplayOrder fixes the stats listing order.
var kindDisplayOrder = []ledger.Kind{
	ledger.KindGateRun,
	ledger.KindCheckerVerdict,
	ledger.KindStatusTransition,
	ledger.KindDowngrade,
}

// openTrail opens the configured trail for inspection commands.
func openTrail(jsonMode bool) (*ledger.Ledger, int) {
	lcfg := ledger.DefaultConfig(pick(ledgerDir, cfg.Ledger))
	lcfg.Logger = appLogger.Slog()
	led, err := ledger.Open(lcfg)
	if err != nil {
		OutputError(jsonMode, "Cannot open trail", err)
		return nil, CLIExitError
	}
	return led, CLIExitSuccess
}

func runLedgerStats(cmd *cobra.Command, args []string) {
	os.Exit(ledgerStatsOnce())
}

func ledgerStatsOnce() int {
	led, code := openTrail(statsJSON)
	if led == nil {
		return code
	}
	defer led.Close()

	stats, err := led.Stats(context.Background())
	if err != nil {
		OutputError(statsJSON, "Cannot read trail", err)
		return CLIExitError
	}

	if statsJSON {
		if err := OutputJSON(stats, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return CLIExitError
		}
		return CLIExitSuccess
	}

	if stats.Entries == 0 {
		ux.Muted("The trail is empty.")
		return CLIExitSuccess
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d entries, seq %d to %d\n", stats.Entries, stats.FirstSeq, stats.LastSeq)
	fmt.Fprintf(&b, "oldest %s\nnewest %s\n",
		stats.OldestAt.UTC().Format("2006-01-02 15:04:05"),
		stats.NewestAt.UTC().Format("2006-01-02 15:04:05"))
	for _, kind := range kindDisplayOrder {
		if n := stats.ByKind[kind]; n > 0 {
			fmt.Fprintf(&b, "  %-16s %d\n", kind, n)
		}
	}
	ux.Box("Audit Trail", strings.TrimRight(b.String(), "\n"))
	return CLIExitSuccess
}

func runLedgerTail(cmd *cobra.Command, args []string) {
	os.Exit(ledgerTailOnce())
}

func ledgerTailOnce() int {
	if tailCount <= 0 {
		OutputError(false, "Invalid count", errors.New("-n must be positive"))
		return CLIExitError
	}

	led, code := openTrail(false)
	if led == nil {
		return code
	}
	defer led.Close()

	entries, err := led.Replay(context.Background())
	if err != nil {
		OutputError(false, "Cannot read trail", err)
		return CLIExitError
	}
	if len(entries) == 0 {
		ux.Muted("The trail is empty.")
		return CLIExitSuccess
	}

	start := len(entries) - tailCount
	if start < 0 {
		start = 0
	}
	for _, e := range entries[start:] {
		fmt.Println(summarizeEntry(e))
	}
	return CLIExitSuccess
}
