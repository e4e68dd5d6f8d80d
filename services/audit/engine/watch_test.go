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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

type watchResult struct {
	outcome *Outcome
	err     error
}

// startWatch runs Watch in the background with fast debounce settings
// and returns the run results channel and the Watch error channel.
func startWatch(t *testing.T, ctx context.Context, run Options) (<-chan watchResult, <-chan error) {
	t.Helper()
	results := make(chan watchResult, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(ctx, WatchOptions{
			Run:         run,
			Debounce:    50 * time.Millisecond,
			MinInterval: time.Millisecond,
			OnRun: func(outcome *Outcome, err error) {
				results <- watchResult{outcome: outcome, err: err}
			},
		})
	}()
	return results, errCh
}

func waitResult(t *testing.T, results <-chan watchResult) watchResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a watch run")
		return watchResult{}
	}
}

func waitStop(t *testing.T, cancel context.CancelFunc, errCh <-chan error) error {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch shutdown")
		return nil
	}
}

func TestWatchRunsInitialAudit(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, healthyClaims, healthyIssues, consistencyOnlyGates)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, errCh := startWatch(t, ctx, Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		Logger:     quietLogger(),
	})

	first := waitResult(t, results)
	require.NoError(t, first.err)
	require.NotNil(t, first.outcome)
	assert.Equal(t, ExitPass, first.outcome.ExitCode)

	require.NoError(t, waitStop(t, cancel, errCh))
}

func TestWatchRerunsOnCorpusChange(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, healthyClaims, healthyIssues, consistencyOnlyGates)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, errCh := startWatch(t, ctx, Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		Logger:     quietLogger(),
	})

	first := waitResult(t, results)
	require.NoError(t, first.err)

	require.NoError(t, os.WriteFile(issues, []byte(partialIssues), 0o644))

	second := waitResult(t, results)
	require.NoError(t, second.err)
	require.NotNil(t, second.outcome)
	assert.Equal(t, ExitPass, second.outcome.ExitCode)
	assert.NotEqual(t, first.outcome.Report.Meta.RunID, second.outcome.Report.Meta.RunID)

	// The shared trail means the second run sees the first run's record
	// and only logs the Open to Partial movement once.
	require.Len(t, second.outcome.Transitions, 1)
	assert.Equal(t, "OPR-1", second.outcome.Transitions[0].IssueID)

	require.NoError(t, waitStop(t, cancel, errCh))
}

func TestWatchSurvivesRunFailures(t *testing.T) {
	const brokenClaims = `id: A
tag: Baseline

id: B
tag: Derived
depends_on: A, GHOST
`
	claims, issues, gateCfg := writeFixtures(t, brokenClaims, healthyIssues, consistencyOnlyGates)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, errCh := startWatch(t, ctx, Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		Logger:     quietLogger(),
	})

	first := waitResult(t, results)
	require.Error(t, first.err)
	assert.Nil(t, first.outcome)

	// Repairing the corpus triggers a clean run; the watch never died.
	require.NoError(t, os.WriteFile(claims, []byte(healthyClaims), 0o644))

	second := waitResult(t, results)
	require.NoError(t, second.err)
	require.NotNil(t, second.outcome)
	assert.Equal(t, ExitPass, second.outcome.ExitCode)

	require.NoError(t, waitStop(t, cancel, errCh))
}

func TestWatchMissingDirectoryFailsSetup(t *testing.T) {
	dir := t.TempDir()
	err := Watch(context.Background(), WatchOptions{
		Run: Options{
			ClaimsPath: filepath.Join(dir, "nope", "claims.txt"),
			IssuesPath: filepath.Join(dir, "nope", "issues.txt"),
			GatesPath:  filepath.Join(dir, "nope", "gates.yaml"),
			Logger:     quietLogger(),
		},
	})
	require.Error(t, err)
}

func TestWatchPersistsTrailAcrossRuns(t *testing.T) {
	claims, issues, gateCfg := writeFixtures(t, healthyClaims, healthyIssues, consistencyOnlyGates)
	trailDir := filepath.Join(t.TempDir(), "trail")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, errCh := startWatch(t, ctx, Options{
		ClaimsPath: claims,
		IssuesPath: issues,
		GatesPath:  gateCfg,
		LedgerPath: trailDir,
		Logger:     quietLogger(),
	})

	first := waitResult(t, results)
	require.NoError(t, first.err)

	require.NoError(t, os.WriteFile(issues, []byte(partialIssues), 0o644))
	second := waitResult(t, results)
	require.NoError(t, second.err)

	require.NoError(t, waitStop(t, cancel, errCh))

	// Both runs landed in the same on-disk trail.
	cfg := ledger.DefaultConfig(trailDir)
	cfg.Logger = quietLogger()
	led, err := ledger.Open(cfg)
	require.NoError(t, err)
	defer led.Close()

	stats, err := led.Stats(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.ByKind[ledger.KindGateRun], 2)
}
