// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine wires one audit run end to end: load the corpus,
// validate references, build the dependency graph, overlay ledger
// history, run the gates, and record the outcome in the trail.
//
// The engine never decides policy. What counts as a violation lives in
// the checker; what counts as a failing run lives in the gate results.
// The engine's own contract is narrow: a run either completes with a
// report and an exit classification, or fails with an error before any
// result is published.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/gates"
	"github.com/AleutianAI/Veridex/services/audit/graph"
	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

const tracerName = "veridex/engine"

// Exit classification for a completed run. Errors returned by Run map to
// ExitFatal at the CLI boundary.
const (
	ExitPass        = 0
	ExitGateFailure = 1
	ExitFatal       = 2
)

// Options configures one audit run.
type Options struct {
	// ClaimsPath and IssuesPath locate the corpus record files.
	ClaimsPath string
	IssuesPath string

	// GatesPath locates the YAML gate configuration.
	GatesPath string

	// LedgerPath is the trail directory. Empty with a nil Ledger opens an
	// ephemeral in-memory trail; the run still records into it so the
	// pipeline semantics do not change.
	LedgerPath string

	// Ledger, when set, is used instead of opening one and stays open
	// after the run. Watch mode reuses a single ledger across runs.
	Ledger *ledger.Ledger

	// Workers, GateTimeout, and Shuffle override the gate config when
	// non-zero or true.
	Workers     int
	GateTimeout time.Duration
	Shuffle     bool

	// MetricsPath, when set, receives a Prometheus textfile snapshot of
	// the run.
	MetricsPath string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Outcome is the result of a completed run.
type Outcome struct {
	// Report is the full gate run report, already recorded in the trail.
	Report *gates.Report

	// Verdict is the consistency gate's checker output, nil if no
	// consistency gate was configured.
	Verdict *checker.Verdict

	// Transitions lists the status movements recorded this run.
	Transitions []ledger.StatusTransitionPayload

	// EntriesAppended counts the trail entries this run wrote.
	EntriesAppended int

	// ExitCode is ExitPass or ExitGateFailure. Fatal conditions surface
	// as errors from Run instead.
	ExitCode int
}

// Run executes the audit pipeline.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	opts - Run configuration. Claims, issues, and gates paths are required.
//
// Outputs:
//
//	*Outcome - The completed run. Nil when error is non-nil.
//	error - Structural, configuration, or IO failure. The trail is never
//	        left with a partial run recorded ahead of its gate report
//	        except when the report append itself fails, which is fatal.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := base.With(slog.String("component", "engine"))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.Run")
	defer span.End()

	startedAt := time.Now().UTC()

	claims, err := corpus.LoadClaims(opts.ClaimsPath)
	if err != nil {
		return nil, fail(span, err)
	}
	issues, err := corpus.LoadIssues(opts.IssuesPath)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := corpus.ValidateReferences(claims, issues); err != nil {
		return nil, fail(span, err)
	}

	g, err := graph.Build(claims, issues)
	if err != nil {
		return nil, fail(span, err)
	}

	led, ownLedger, err := openLedger(opts, base)
	if err != nil {
		return nil, fail(span, err)
	}
	if ownLedger {
		defer led.Close()
	}

	prior, pending, err := led.IssueHistory(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	snap := corpus.NewSnapshot(claims, issues).WithHistory(prior, pending)

	cfg, err := gates.LoadConfig(opts.GatesPath)
	if err != nil {
		return nil, fail(span, err)
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if opts.GateTimeout > 0 {
		cfg.Timeout = gates.Duration(opts.GateTimeout)
	}
	if opts.Shuffle {
		cfg.Shuffle = true
	}

	runner, err := gates.FromConfig(cfg, g)
	if err != nil {
		return nil, fail(span, err)
	}

	results, err := runner.Run(ctx, snap)
	if err != nil {
		return nil, fail(span, err)
	}

	report := gates.NewReport(snap, results, startedAt, time.Now().UTC())
	verdict := report.ConsistencyVerdict()
	transitions := observedTransitions(snap)

	appended, err := recordRun(ctx, led, report, verdict, transitions)
	if err != nil {
		return nil, fail(span, err)
	}

	if opts.MetricsPath != "" {
		if err := writeMetrics(opts.MetricsPath, snap, report, verdict, appended); err != nil {
			return nil, fail(span, err)
		}
	}

	exit := ExitPass
	if !report.Body.OverallPass {
		exit = ExitGateFailure
	}

	span.SetAttributes(
		attribute.String("run.id", report.Meta.RunID),
		attribute.Bool("run.overall_pass", report.Body.OverallPass),
		attribute.Int("run.exit_code", exit),
		attribute.Int("run.entries_appended", appended),
	)

	logger.Info("audit run completed",
		slog.String("run_id", report.Meta.RunID),
		slog.Bool("overall_pass", report.Body.OverallPass),
		slog.Int("gates", len(results)),
		slog.Int("transitions", len(transitions)),
		slog.Int("exit_code", exit))

	return &Outcome{
		Report:          report,
		Verdict:         verdict,
		Transitions:     transitions,
		EntriesAppended: appended,
		ExitCode:        exit,
	}, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// openLedger returns the trail to record into and whether this run owns
// its lifetime.
func openLedger(opts Options, logger *slog.Logger) (*ledger.Ledger, bool, error) {
	if opts.Ledger != nil {
		return opts.Ledger, false, nil
	}
	cfg := ledger.InMemoryConfig()
	if opts.LedgerPath != "" {
		cfg = ledger.DefaultConfig(opts.LedgerPath)
	}
	cfg.Logger = logger
	led, err := ledger.Open(cfg)
	if err != nil {
		return nil, false, err
	}
	return led, true, nil
}

// observedTransitions lists the legal status movements the registry files
// show relative to the trail. Illegal movements are not recorded; the
// checker reports them and the baseline stays where it was. A Closed
// status on a downgraded issue is registry drift, also reported by the
// checker, and recording it would silently undo the reopen.
func observedTransitions(snap *corpus.Snapshot) []ledger.StatusTransitionPayload {
	var out []ledger.StatusTransitionPayload
	for _, is := range snap.Issues.All() {
		baseline := corpus.StatusOpen
		if last, ok := snap.LastRecorded(is.ID); ok {
			baseline = last
		}
		reason, pending := snap.Downgraded(is.ID)
		if pending {
			baseline = corpus.StatusOpen
		}

		if is.Status == baseline {
			continue
		}
		if pending && is.Status == corpus.StatusClosed {
			continue
		}
		if !baseline.CanTransitionTo(is.Status) {
			continue
		}

		note := "registry status recorded"
		if pending {
			note = "downgrade consumed: " + reason
		}
		out = append(out, ledger.StatusTransitionPayload{
			IssueID: is.ID,
			From:    baseline,
			To:      is.Status,
			Reason:  note,
		})
	}
	return out
}

// recordRun appends this run's entries: the checker verdict, one entry
// per observed status movement, and finally the gate report. The report
// is last so a trail that contains it is known to contain the whole run.
func recordRun(ctx context.Context, led *ledger.Ledger, report *gates.Report, verdict *checker.Verdict, transitions []ledger.StatusTransitionPayload) (int, error) {
	runID := report.Meta.RunID
	appended := 0

	if verdict != nil {
		_, err := led.Append(ctx, ledger.Entry{
			RunID: runID,
			Kind:  ledger.KindCheckerVerdict,
			Payload: ledger.CheckerVerdictPayload{
				Counts:     checker.CountByKind(verdict.Violations),
				Violations: verdict.Violations,
				Advisories: verdict.Advisories,
			},
		})
		if err != nil {
			return appended, fmt.Errorf("recording checker verdict: %w", err)
		}
		appended++
	}

	for _, tr := range transitions {
		_, err := led.Append(ctx, ledger.Entry{
			RunID:   runID,
			Kind:    ledger.KindStatusTransition,
			Payload: tr,
		})
		if err != nil {
			return appended, fmt.Errorf("recording status transition for %s: %w", tr.IssueID, err)
		}
		appended++
	}

	_, err := led.Append(ctx, ledger.Entry{
		RunID:   runID,
		Kind:    ledger.KindGateRun,
		Payload: ledger.GateRunPayload{Report: *report},
	})
	if err != nil {
		return appended, fmt.Errorf("recording gate run: %w", err)
	}
	appended++

	return appended, nil
}
