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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

func runReport(cmd *cobra.Command, args []string) {
	os.Exit(reportOnce())
}

func reportOnce() int {
	jsonMode := reportFormat == "json"
	if reportFormat != "text" && !jsonMode {
		OutputError(false, "Invalid format", fmt.Errorf("%q is not text or json", reportFormat))
		return CLIExitError
	}

	lcfg := ledger.DefaultConfig(pick(reportLedger, cfg.Ledger))
	lcfg.Logger = appLogger.Slog()
	led, err := ledger.Open(lcfg)
	if err != nil {
		OutputError(jsonMode, "Cannot open trail", err)
		return CLIExitError
	}
	defer led.Close()

	report, err := led.LastReport(context.Background())
	if err != nil {
		if errors.Is(err, ledger.ErrNoReport) {
			OutputError(jsonMode, "Nothing to report", errors.New("the trail has no recorded gate run; run `veridex run` first"))
		} else {
			OutputError(jsonMode, "Cannot read trail", err)
		}
		return CLIExitError
	}

	if jsonMode {
		if err := OutputJSON(report, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return CLIExitError
		}
		return CLIExitSuccess
	}

	renderReport(report)
	return CLIExitSuccess
}
