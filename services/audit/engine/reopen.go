// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

// ReopenOptions configures a downgrade.
type ReopenOptions struct {
	// LedgerPath and Ledger behave as in Options.
	LedgerPath string
	Ledger     *ledger.Ledger

	// IssueID names the issue to reopen. Required.
	IssueID string

	// Reason is the mandatory justification recorded in the trail.
	Reason string

	// Evidence lists claim ids or free-form references backing the reason.
	Evidence []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Reopen records the sole legal backward status move: a closure taken
// back with a logged reason. The registry file is not touched; the
// issue's effective status becomes Open on the next run, and the drift
// between file and trail is reported until the file catches up.
//
// Outputs:
//
//	uint64 - Sequence number of the recorded downgrade.
//	error - Non-nil if the issue has no recorded closure, is already
//	        pending a downgrade, or the trail cannot be written.
func Reopen(ctx context.Context, opts ReopenOptions) (uint64, error) {
	if opts.IssueID == "" {
		return 0, errors.New("issue id is required")
	}
	if opts.Reason == "" {
		return 0, errors.New("a reopen reason is required")
	}

	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := base.With(slog.String("component", "engine"))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.Reopen")
	defer span.End()
	span.SetAttributes(attribute.String("issue.id", opts.IssueID))

	led, ownLedger, err := openLedger(Options{Ledger: opts.Ledger, LedgerPath: opts.LedgerPath}, base)
	if err != nil {
		return 0, fail(span, err)
	}
	if ownLedger {
		defer led.Close()
	}

	prior, pending, err := led.IssueHistory(ctx)
	if err != nil {
		return 0, fail(span, err)
	}

	if reason, ok := pending[opts.IssueID]; ok {
		return 0, fail(span, fmt.Errorf("issue %s is already reopened (%s)", opts.IssueID, reason))
	}
	last, ok := prior[opts.IssueID]
	if !ok {
		return 0, fail(span, fmt.Errorf("issue %s has no recorded status; only a recorded closure can be reopened", opts.IssueID))
	}
	if last != corpus.StatusClosed && last != corpus.StatusConditionalClosed {
		return 0, fail(span, fmt.Errorf("issue %s is %s; only Closed or ConditionalClosed issues can be reopened", opts.IssueID, last))
	}

	seq, err := led.Append(ctx, ledger.Entry{
		RunID: uuid.NewString(),
		Kind:  ledger.KindDowngrade,
		Payload: ledger.DowngradePayload{
			IssueID:  opts.IssueID,
			Reason:   opts.Reason,
			Evidence: opts.Evidence,
		},
	})
	if err != nil {
		return 0, fail(span, fmt.Errorf("recording downgrade: %w", err))
	}

	logger.Info("issue reopened",
		slog.String("issue_id", opts.IssueID),
		slog.String("was", string(last)),
		slog.Uint64("seq", seq))

	return seq, nil
}
