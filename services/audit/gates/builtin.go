// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gates

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/graph"
)

// Builtin gate names a config may reference with kind "builtin".
const (
	GateConsistency = "consistency"
	GateClosure     = "closure"
)

// ConsistencyGate wraps the checker. It passes iff the checker finds
// zero violations; its Result carries the full verdict so the report can
// show every finding without a second checker run.
type ConsistencyGate struct {
	graph *graph.Graph
	deps  []string
}

// NewConsistencyGate builds the builtin consistency gate. The graph must
// come from the same snapshot the runner receives.
func NewConsistencyGate(g *graph.Graph, deps ...string) *ConsistencyGate {
	return &ConsistencyGate{graph: g, deps: deps}
}

func (g *ConsistencyGate) Name() string        { return GateConsistency }
func (g *ConsistencyGate) DependsOn() []string { return g.deps }

func (g *ConsistencyGate) Run(ctx context.Context, snap *corpus.Snapshot, _ map[string]Result) Result {
	verdict := checker.Check(ctx, snap, g.graph)
	return Result{
		Name:    GateConsistency,
		Pass:    verdict.Clean(),
		Detail:  verdict.Summary(),
		Verdict: verdict,
	}
}

// ClosureGate passes iff every issue's effective status is Closed. A
// corpus with open problems is healthy, so this gate belongs only in
// release configs that demand a fully closed registry.
type ClosureGate struct {
	deps []string
}

// NewClosureGate builds the builtin closure gate.
func NewClosureGate(deps ...string) *ClosureGate {
	return &ClosureGate{deps: deps}
}

func (g *ClosureGate) Name() string        { return GateClosure }
func (g *ClosureGate) DependsOn() []string { return g.deps }

func (g *ClosureGate) Run(_ context.Context, snap *corpus.Snapshot, _ map[string]Result) Result {
	var open []string
	for _, is := range snap.Issues.All() {
		status, _ := snap.EffectiveStatus(is.ID)
		if status != corpus.StatusClosed {
			open = append(open, fmt.Sprintf("%s (%s)", is.ID, status))
		}
	}

	if len(open) == 0 {
		return Result{
			Name:   GateClosure,
			Pass:   true,
			Detail: fmt.Sprintf("all %d issues closed", snap.Issues.Len()),
		}
	}
	return Result{
		Name: GateClosure,
		Pass: false,
		Detail: fmt.Sprintf("%d of %d issues not closed: %s",
			len(open), snap.Issues.Len(), strings.Join(open, ", ")),
	}
}
