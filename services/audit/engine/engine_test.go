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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

const healthyClaims = `# corpus under audit
id: A
tag: Baseline

id: B
tag: Derived
depends_on: A

id: C
tag: DerivedConditional
depends_on: B, OPR-1
`

const healthyIssues = `id: OPR-1
category: Numerics
status: Open
title: remainder bound missing
blocks: C
closure_test: derive the remainder bound
`

const partialIssues = `id: OPR-1
category: Numerics
status: Partial
title: remainder bound missing
blocks: C
closure_test: derive the remainder bound
progress: upper bound derived for the generic case
`

const consistencyOnlyGates = `version: v1
workers: 2
gates:
  - name: consistency
    kind: builtin
`

const withClosureGates = `version: v1
workers: 2
gates:
  - name: consistency
    kind: builtin
  - name: closure
    kind: builtin
    depends_on: [consistency]
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixtures(t *testing.T, claims, issues, gatesYAML string) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	claimsPath := filepath.Join(dir, "claims.txt")
	issuesPath := filepath.Join(dir, "issues.txt")
	gatesPath := filepath.Join(dir, "gates.yaml")
	require.NoError(t, os.WriteFile(claimsPath, []byte(claims), 0o644))
	require.NoError(t, os.WriteFile(issuesPath, []byte(issues), 0o644))
	require.NoError(t, os.WriteFile(gatesPath, []byte(gatesYAML), 0o644))
	return claimsPath, issuesPath, gatesPath
}

func openTestTrail(t *testing.T) *ledger.Ledger {
	t.Helper()
	cfg := ledger.InMemoryConfig()
	cfg.Logger = quietLogger()
	led, err := ledger.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	return led
}

func TestRunHealthyCorpus(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, healthyClaims, healthyIssues, consistencyOnlyGates)
	led := openTestTrail(t)
	ctx := context.Background()

	outcome, err := Run(ctx, Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		Ledger:     led,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, ExitPass, outcome.ExitCode)
	assert.True(t, outcome.Report.Body.OverallPass)
	require.NotNil(t, outcome.Verdict)
	assert.True(t, outcome.Verdict.Clean())
	assert.Empty(t, outcome.Transitions)
	assert.Equal(t, 2, outcome.EntriesAppended)

	entries, err := led.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindCheckerVerdict, entries[0].Kind)
	assert.Equal(t, ledger.KindGateRun, entries[1].Kind)
	assert.Equal(t, outcome.Report.Meta.RunID, entries[1].RunID)

	last, err := led.LastReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcome.Report.Meta.RunID, last.Meta.RunID)
}

func TestRunRecordsTransitionsOnce(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, healthyClaims, partialIssues, consistencyOnlyGates)
	led := openTestTrail(t)
	ctx := context.Background()

	opts := Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		Ledger:     led,
		Logger:     quietLogger(),
	}

	first, err := Run(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first.Transitions, 1)
	assert.Equal(t, "OPR-1", first.Transitions[0].IssueID)
	assert.Equal(t, corpus.StatusOpen, first.Transitions[0].From)
	assert.Equal(t, corpus.StatusPartial, first.Transitions[0].To)
	assert.Equal(t, 3, first.EntriesAppended)

	// An unchanged corpus appends no further transitions and produces a
	// byte-identical canonical body under a fresh run id.
	second, err := Run(ctx, opts)
	require.NoError(t, err)
	assert.Empty(t, second.Transitions)
	assert.Equal(t, 2, second.EntriesAppended)
	assert.NotEqual(t, first.Report.Meta.RunID, second.Report.Meta.RunID)

	firstDigest, err := first.Report.Body.Digest()
	require.NoError(t, err)
	secondDigest, err := second.Report.Body.Digest()
	require.NoError(t, err)
	assert.Equal(t, firstDigest, secondDigest)

	// Shuffled gate order must not change the body either.
	shuffled := opts
	shuffled.Shuffle = true
	third, err := Run(ctx, shuffled)
	require.NoError(t, err)
	thirdDigest, err := third.Report.Body.Digest()
	require.NoError(t, err)
	assert.Equal(t, firstDigest, thirdDigest)
}

func TestRunClosureGateFailsOnOpenIssue(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, healthyClaims, healthyIssues, withClosureGates)
	led := openTestTrail(t)

	outcome, err := Run(context.Background(), Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		Ledger:     led,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, ExitGateFailure, outcome.ExitCode)
	assert.False(t, outcome.Report.Body.OverallPass)
	require.NotNil(t, outcome.Verdict)
	assert.True(t, outcome.Verdict.Clean(), "consistency must still pass")
}

func TestRunRejectsBrokenInputs(t *testing.T) {
	led := openTestTrail(t)
	ctx := context.Background()

	t.Run("malformed claims", func(t *testing.T) {
		claims, issues, gateCfg := writeFixtures(t,
			"id: A\nseverity: high\n", healthyIssues, consistencyOnlyGates)
		_, err := Run(ctx, Options{ClaimsPath: claims, IssuesPath: issues, GatesPath: gateCfg, Ledger: led, Logger: quietLogger()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown field")
	})

	t.Run("dangling reference", func(t *testing.T) {
		claims, issues, gateCfg := writeFixtures(t,
			"id: A\ntag: Derived\ndepends_on: GHOST\n", healthyIssues, consistencyOnlyGates)
		_, err := Run(ctx, Options{ClaimsPath: claims, IssuesPath: issues, GatesPath: gateCfg, Ledger: led, Logger: quietLogger()})
		require.Error(t, err)
		assert.ErrorIs(t, err, corpus.ErrDanglingReference)
	})

	t.Run("bad gate config", func(t *testing.T) {
		claims, issues, gateCfg := writeFixtures(t,
			healthyClaims, healthyIssues, "version: v1\ngates:\n  - name: consistency\n    kind: rocket\n")
		_, err := Run(ctx, Options{ClaimsPath: claims, IssuesPath: issues, GatesPath: gateCfg, Ledger: led, Logger: quietLogger()})
		require.Error(t, err)
	})

	t.Run("missing claims file", func(t *testing.T) {
		_, issues, gateCfg := writeFixtures(t, healthyClaims, healthyIssues, consistencyOnlyGates)
		_, err := Run(ctx, Options{ClaimsPath: filepath.Join(t.TempDir(), "absent.txt"), IssuesPath: issues, GatesPath: gateCfg, Ledger: led, Logger: quietLogger()})
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRunWritesMetricsTextfile(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, healthyClaims, healthyIssues, consistencyOnlyGates)
	led := openTestTrail(t)
	metricsPath := filepath.Join(t.TempDir(), "veridex.prom")

	_, err := Run(context.Background(), Options{
		ClaimsPath:  claims,
		IssuesPath:  issues,
		GatesPath:   gateCfg,
		Ledger:      led,
		MetricsPath: metricsPath,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "# HELP veridex_audit_overall_pass")
	assert.Contains(t, text, "veridex_audit_overall_pass 1")
	assert.Contains(t, text, `veridex_audit_claims{tag="Baseline"} 1`)
	assert.Contains(t, text, `veridex_audit_issues{category="Numerics",status="Open"} 1`)
	assert.Contains(t, text, `veridex_audit_violations{kind="CycleDetected"} 0`)
	assert.Contains(t, text, "veridex_audit_ledger_entries_appended 2")
}

const closableClaims = `id: A
tag: Baseline

id: B
tag: Derived
depends_on: A
`

const closedIssues = `id: OPR-1
category: Numerics
status: Closed
closure_test: bound established
satisfied_by: A
`

func TestReopenThenRunReportsDrift(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, closableClaims, closedIssues, consistencyOnlyGates)
	led := openTestTrail(t)
	ctx := context.Background()

	opts := Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		Ledger:     led,
		Logger:     quietLogger(),
	}

	first, err := Run(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first.Transitions, 1)
	assert.Equal(t, corpus.StatusClosed, first.Transitions[0].To)
	assert.Equal(t, ExitPass, first.ExitCode)

	seq, err := Reopen(ctx, ReopenOptions{
		Ledger:   led,
		IssueID:  "OPR-1",
		Reason:   "numeric drift in the remainder bound",
		Evidence: []string{"B"},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)

	// The registry file still says Closed, so the next run reports drift,
	// does not consume the downgrade, and shows the issue as Open.
	second, err := Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, ExitGateFailure, second.ExitCode)
	assert.Empty(t, second.Transitions)
	require.NotNil(t, second.Verdict)
	assert.True(t, second.Verdict.HasKind(checker.KindRegistryDrift))
	assert.Equal(t, corpus.StatusOpen, second.Report.Body.Statuses["OPR-1"])
}

func TestReopenValidation(t *testing.T) {
	led := openTestTrail(t)
	ctx := context.Background()

	_, err := Reopen(ctx, ReopenOptions{Ledger: led, IssueID: "OPR-9", Reason: "r", Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recorded status")

	_, err = Reopen(ctx, ReopenOptions{Ledger: led, Reason: "r", Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue id is required")

	_, err = Reopen(ctx, ReopenOptions{Ledger: led, IssueID: "OPR-9", Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reason is required")

	// A recorded Partial status is not a closure.
	_, err = led.Append(ctx, ledger.Entry{
		RunID: "run-seed",
		Kind:  ledger.KindStatusTransition,
		Payload: ledger.StatusTransitionPayload{
			IssueID: "OPR-9",
			From:    corpus.StatusOpen,
			To:      corpus.StatusPartial,
		},
	})
	require.NoError(t, err)
	_, err = Reopen(ctx, ReopenOptions{Ledger: led, IssueID: "OPR-9", Reason: "r", Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only Closed or ConditionalClosed")

	// And a pending downgrade cannot be stacked.
	_, err = led.Append(ctx, ledger.Entry{
		RunID: "run-seed",
		Kind:  ledger.KindStatusTransition,
		Payload: ledger.StatusTransitionPayload{
			IssueID: "OPR-9",
			From:    corpus.StatusPartial,
			To:      corpus.StatusClosed,
		},
	})
	require.NoError(t, err)
	_, err = Reopen(ctx, ReopenOptions{Ledger: led, IssueID: "OPR-9", Reason: "first", Logger: quietLogger()})
	require.NoError(t, err)
	_, err = Reopen(ctx, ReopenOptions{Ledger: led, IssueID: "OPR-9", Reason: "second", Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already reopened")
}

func TestObservedTransitionRules(t *testing.T) {
	cs, err := corpus.NewClaimSet([]corpus.Claim{{ID: "A", Tag: corpus.TagBaseline}})
	require.NoError(t, err)
	is, err := corpus.NewIssueSet([]corpus.Issue{
		{ID: "OPR-1", Category: corpus.CategoryNumerics, Status: corpus.StatusPartial},
		{ID: "OPR-2", Category: corpus.CategoryNumerics, Status: corpus.StatusOpen},
		{ID: "OPR-3", Category: corpus.CategoryNumerics, Status: corpus.StatusPartial},
		{ID: "OPR-4", Category: corpus.CategoryNumerics, Status: corpus.StatusClosed},
		{ID: "OPR-5", Category: corpus.CategoryNumerics, Status: corpus.StatusPartial},
		{ID: "OPR-6", Category: corpus.CategoryNumerics, Status: corpus.StatusClosed},
	})
	require.NoError(t, err)

	prior := map[string]corpus.Status{
		"OPR-3": corpus.StatusClosed,
		"OPR-4": corpus.StatusClosed,
		"OPR-5": corpus.StatusClosed,
		"OPR-6": corpus.StatusPartial,
	}
	pending := map[string]string{
		"OPR-4": "drift",
		"OPR-5": "drift",
	}
	snap := corpus.NewSnapshot(cs, is).WithHistory(prior, pending)

	got := observedTransitions(snap)
	require.Len(t, got, 3)

	// OPR-1: first observation of a non-Open status.
	assert.Equal(t, "OPR-1", got[0].IssueID)
	assert.Equal(t, corpus.StatusOpen, got[0].From)
	assert.Equal(t, corpus.StatusPartial, got[0].To)

	// OPR-2 unchanged, OPR-3 backward without downgrade, OPR-4 drift:
	// none of them recorded.

	// OPR-5: downgrade consumed by the file catching up.
	assert.Equal(t, "OPR-5", got[1].IssueID)
	assert.Equal(t, corpus.StatusOpen, got[1].From)
	assert.Contains(t, got[1].Reason, "downgrade consumed")

	// OPR-6: ordinary forward movement.
	assert.Equal(t, "OPR-6", got[2].IssueID)
	assert.Equal(t, corpus.StatusPartial, got[2].From)
	assert.Equal(t, corpus.StatusClosed, got[2].To)
}
