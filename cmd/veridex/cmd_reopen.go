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

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/Veridex/pkg/ux"
	"github.com/AleutianAI/Veridex/services/audit/engine"
)

func runReopen(cmd *cobra.Command, args []string) {
	os.Exit(reopenOnce())
}

func reopenOnce() int {
	if reopenIssue == "" {
		OutputError(false, "Missing flag", errors.New("--issue is required"))
		return CLIExitError
	}
	if reopenReason == "" {
		OutputError(false, "Missing flag", errors.New("--reason is required; a downgrade without a reason is not auditable"))
		return CLIExitError
	}

	if !reopenYes && ux.IsInteractive() {
		confirmed, err := confirmReopen(reopenIssue, reopenReason)
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				ux.Muted("Reopen cancelled.")
				return CLIExitSuccess
			}
			OutputError(false, "Confirmation failed", err)
			return CLIExitError
		}
		if !confirmed {
			ux.Muted("Reopen cancelled.")
			return CLIExitSuccess
		}
	}

	seq, err := engine.Reopen(context.Background(), engine.ReopenOptions{
		LedgerPath: pick(reopenLedger, cfg.Ledger),
		IssueID:    reopenIssue,
		Reason:     reopenReason,
		Evidence:   reopenEvidence,
		Logger:     appLogger.Slog(),
	})
	if err != nil {
		OutputError(false, "Reopen failed", err)
		return CLIExitError
	}

	ux.Success(fmt.Sprintf("%s reopened, downgrade recorded at seq %d", reopenIssue, seq))
	ux.Muted("The issue returns to Open on the next run; update the registry file to match.")
	return CLIExitSuccess
}

func confirmReopen(issueID, reason string) (bool, error) {
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Reopen %s?", issueID)).
				Description(fmt.Sprintf("Reason: %s\n\nThis appends a permanent downgrade to the audit trail.", reason)).
				Affirmative("Reopen").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
