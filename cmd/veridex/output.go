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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/Veridex/pkg/ux"
	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/gates"
	"github.com/AleutianAI/Veridex/services/audit/ledger"
)

// Exit codes shared by every command.
const (
	CLIExitSuccess     = 0 // All gates passed / operation completed
	CLIExitGateFailure = 1 // Run completed but a gate failed
	CLIExitError       = 2 // Structural, parse, configuration, or IO failure
)

// timePrecision rounds gate durations for display.
const timePrecision = time.Millisecond

// OutputJSON writes structured data as indented JSON to stdout.
func OutputJSON(data any, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := map[string]any{
			"success": false,
			"error":   fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		ux.Error(fmt.Sprintf("%s: %v", msg, err))
	}
}

// renderReport prints a gate report in terminal form.
func renderReport(report *gates.Report) {
	ux.Title("Audit Report")
	ux.Muted(fmt.Sprintf("run %s, %d claims, %d issues",
		report.Meta.RunID, report.Body.Claims, report.Body.Issues))

	passed := 0
	for _, r := range report.Body.Gates {
		if r.Pass {
			passed++
		}
		detail := r.Detail
		if d, ok := report.Meta.GateDurations[r.Name]; ok && d > 0 {
			if detail != "" {
				detail += ", "
			}
			detail += d.Round(timePrecision).String()
		}
		ux.GateLine(r.Name, r.Pass, detail)
	}
	ux.Summary(passed, len(report.Body.Gates)-passed, len(report.Body.Gates))

	for _, r := range report.Body.Gates {
		if r.Verdict != nil && !r.Verdict.Clean() {
			renderVerdict(r.Verdict)
			break
		}
	}
}

// renderVerdict lists violations grouped by kind, then advisories.
func renderVerdict(verdict *checker.Verdict) {
	if len(verdict.Violations) > 0 {
		fmt.Println()
		ux.Warning(fmt.Sprintf("%d violation(s)", len(verdict.Violations)))
		for _, v := range verdict.Violations {
			ux.Info(v.String())
		}
	}
	for _, a := range verdict.Advisories {
		ux.Muted(fmt.Sprintf("advisory %s: %s", a.IssueID, a.Detail))
	}
}

// summarizeEntry renders one trail entry as a single line for tailing.
func summarizeEntry(e ledger.Entry) string {
	stamp := e.Timestamp.UTC().Format("2006-01-02 15:04:05")
	switch p := e.Payload.(type) {
	case ledger.StatusTransitionPayload:
		return fmt.Sprintf("%6d  %s  %-16s  %s: %s %s %s (%s)",
			e.Seq, stamp, e.Kind, p.IssueID, p.From, ux.IconArrow, p.To, p.Reason)
	case ledger.DowngradePayload:
		line := fmt.Sprintf("%6d  %s  %-16s  %s reopened: %s",
			e.Seq, stamp, e.Kind, p.IssueID, p.Reason)
		if len(p.Evidence) > 0 {
			line += " [" + strings.Join(p.Evidence, ", ") + "]"
		}
		return line
	case ledger.CheckerVerdictPayload:
		return fmt.Sprintf("%6d  %s  %-16s  %d violation(s), %d advisory(ies)",
			e.Seq, stamp, e.Kind, len(p.Violations), len(p.Advisories))
	case ledger.GateRunPayload:
		verdict := "pass"
		if !p.Report.Body.OverallPass {
			verdict = "fail"
		}
		return fmt.Sprintf("%6d  %s  %-16s  run %s, %d gate(s), %s",
			e.Seq, stamp, e.Kind, p.Report.Meta.RunID, len(p.Report.Body.Gates), verdict)
	default:
		return fmt.Sprintf("%6d  %s  %-16s", e.Seq, stamp, e.Kind)
	}
}
