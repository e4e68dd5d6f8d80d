// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gates runs named validation gates over a corpus snapshot.
//
// A gate is a pass/fail check with a name and optional dependencies on
// other gates. The runner schedules gates in topological waves, runs each
// wave concurrently on a bounded errgroup, and wraps every gate in its
// own timeout. Gates never abort each other: a failed or timed-out gate
// is a recorded result, and every configured gate always runs.
//
// Three gate families exist:
//   - builtin: the consistency gate (wraps the checker) and the closure
//     gate (every issue effectively Closed)
//   - exec: an external command, pass iff exit 0
//   - artifact: a small JSON artifact compared against expectations
//
// # Thread Safety
//
// Gates receive a read-only snapshot and results of their dependencies.
// They must not retain or mutate either.
package gates

import (
	"context"
	"time"

	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/corpus"
)

// Gate is one named validation check.
type Gate interface {
	// Name identifies the gate; unique within a run.
	Name() string

	// DependsOn lists gates that must complete before this one runs.
	// Dependency results are delivered through the prior map.
	DependsOn() []string

	// Run executes the check. The context carries the per-gate deadline;
	// implementations must return promptly once it expires.
	Run(ctx context.Context, snap *corpus.Snapshot, prior map[string]Result) Result
}

// Result is the outcome of one gate.
//
// Duration is informational; report comparison across runs ignores it.
// Verdict is populated only by the consistency gate.
type Result struct {
	Name     string           `json:"name"`
	Pass     bool             `json:"pass"`
	Detail   string           `json:"detail,omitempty"`
	Duration time.Duration    `json:"duration,omitempty"`
	Verdict  *checker.Verdict `json:"verdict,omitempty"`
}

// OverallPass reports whether every gate passed. An empty result set
// passes vacuously; config validation rejects empty gate lists before a
// run starts.
func OverallPass(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// Failed returns the names of failing gates in result order.
func Failed(results []Result) []string {
	var names []string
	for _, r := range results {
		if !r.Pass {
			names = append(names, r.Name)
		}
	}
	return names
}
