// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checker enforces the corpus invariants: acyclic dependencies,
// the no-smuggling rule, grounded derivations, anchored conditionals, and
// the issue status machine.
//
// All checks are independent and every violation is collected; the
// checker never stops at the first finding, so a single run reports the
// complete picture. Output is canonically ordered: two runs over the same
// snapshot produce identical verdicts.
package checker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/graph"
)

const tracerName = "veridex/checker"

// Check runs every consistency check over one snapshot.
//
// Description:
//
//	Pure over its inputs: reads the snapshot and graph, writes nothing.
//	The context is used for span creation only; checks are not
//	cancellable mid-flight (they are cheap relative to gate execution).
//
// Outputs:
//
//	*Verdict - canonically ordered violations and advisories.
func Check(ctx context.Context, snap *corpus.Snapshot, g *graph.Graph) *Verdict {
	_, span := otel.Tracer(tracerName).Start(ctx, "checker.Check")
	defer span.End()

	r := &run{
		snap:        snap,
		g:           g,
		smuggled:    make(map[string]bool),
		groundsMemo: make(map[string]groundState),
	}

	r.detectCycles()
	r.detectSmuggling()
	r.detectUndersupport()
	r.checkConditionals()
	r.checkStatuses()

	Sort(r.violations)
	sort.Slice(r.advisories, func(i, j int) bool {
		return r.advisories[i].IssueID < r.advisories[j].IssueID
	})

	span.SetAttributes(
		attribute.Int("checker.violations", len(r.violations)),
		attribute.Int("checker.advisories", len(r.advisories)),
	)

	return &Verdict{Violations: r.violations, Advisories: r.advisories}
}

type run struct {
	snap *corpus.Snapshot
	g    *graph.Graph

	violations []Violation
	advisories []Advisory

	// smuggled marks issues with at least one smuggling finding; closure
	// legality consults it.
	smuggled map[string]bool

	groundsMemo map[string]groundState
}

func (r *run) add(v Violation) {
	r.violations = append(r.violations, v)
}

// -----------------------------------------------------------------------
// Cycle detection
// -----------------------------------------------------------------------

type color int

const (
	white color = iota
	gray
	black
)

// detectCycles walks depends_on edges only. Blocks edges are gating, not
// derivation; including them would flag every claim that conditions on
// its own blocker, which is the normal corpus shape.
func (r *run) detectCycles() {
	colors := make(map[string]color, r.g.NodeCount())
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		colors[id] = gray
		stack = append(stack, id)

		for _, dep := range r.g.DependenciesOf(id) {
			switch colors[dep] {
			case white:
				visit(dep)
			case gray:
				r.reportCycle(stack, dep)
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	for _, id := range r.g.Nodes() {
		if colors[id] == white {
			visit(id)
		}
	}
}

// reportCycle extracts the cycle from the DFS stack, starting at the back
// edge target, and rotates it so the smallest id leads. Rotation makes
// repeated runs report byte-identical paths no matter where the walk
// entered the cycle.
func (r *run) reportCycle(stack []string, target string) {
	start := 0
	for i, id := range stack {
		if id == target {
			start = i
			break
		}
	}
	cycle := append([]string(nil), stack[start:]...)

	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	rotated := append(append([]string(nil), cycle[minIdx:]...), cycle[:minIdx]...)

	r.add(Violation{
		Kind: KindCycleDetected,
		Path: rotated,
		Detail: fmt.Sprintf("dependency cycle: %s -> %s",
			strings.Join(rotated, " -> "), rotated[0]),
	})
}

// -----------------------------------------------------------------------
// Smuggling detection
// -----------------------------------------------------------------------

// detectSmuggling computes, per issue, the set of claims that rest
// (directly or transitively) on the issue's blocked set, and intersects
// it with the issue's declared no-smuggling evidence. The blocked claims
// themselves count as resting on the set.
func (r *run) detectSmuggling() {
	for _, is := range r.snap.Issues.All() {
		if len(is.Blocks) == 0 || len(is.NoSmuggling) == 0 {
			continue
		}

		resting := make(map[string]bool, len(is.Blocks))
		queue := make([]string, 0, len(is.Blocks))
		for _, blocked := range is.Blocks {
			if !resting[blocked] {
				resting[blocked] = true
				queue = append(queue, blocked)
			}
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, dependent := range r.g.DependentsOf(id) {
				if !resting[dependent] {
					resting[dependent] = true
					queue = append(queue, dependent)
				}
			}
		}

		evidence := append([]string(nil), is.NoSmuggling...)
		sort.Strings(evidence)
		for _, claimID := range evidence {
			if resting[claimID] {
				r.smuggled[is.ID] = true
				r.add(Violation{
					Kind:    KindSmugglingSuspected,
					IssueID: is.ID,
					ClaimID: claimID,
					Detail: fmt.Sprintf(
						"claim %s is declared no-smuggling evidence for %s but rests on its blocked set",
						claimID, is.ID),
				})
			}
		}
	}
}

// -----------------------------------------------------------------------
// Undersupport detection
// -----------------------------------------------------------------------

// detectUndersupport verifies every Derived claim rests transitively on
// the grounded tag set only. Each weak ancestor in the closure is its own
// finding; a chain hiding two weak links produces two violations.
func (r *run) detectUndersupport() {
	for _, c := range r.snap.Claims.All() {
		if c.Tag != corpus.TagDerived {
			continue
		}
		for _, weakID := range r.weakAncestors(c.ID) {
			r.add(Violation{
				Kind:       KindUnsupportedDerivation,
				ClaimID:    c.ID,
				AncestorID: weakID,
				Detail:     r.describeWeakAncestor(c.ID, weakID),
			})
		}
	}
}

// weakAncestors returns the sorted ids in the transitive depends_on
// closure of root that fall outside the grounded set, issues included.
// The visited set makes the walk cycle-safe; cycles are reported
// separately.
func (r *run) weakAncestors(root string) []string {
	visited := map[string]bool{root: true}
	var weak []string

	queue := []string{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, dep := range r.g.DependenciesOf(id) {
			if visited[dep] {
				continue
			}
			visited[dep] = true

			if kind, ok := r.g.Kind(dep); ok && kind == graph.NodeIssue {
				weak = append(weak, dep)
				continue
			}
			claim, ok := r.snap.Claims.Get(dep)
			if !ok {
				continue
			}
			if !claim.Tag.Grounded() {
				weak = append(weak, dep)
			}
			queue = append(queue, dep)
		}
	}

	sort.Strings(weak)
	return weak
}

func (r *run) describeWeakAncestor(claimID, weakID string) string {
	if kind, ok := r.g.Kind(weakID); ok && kind == graph.NodeIssue {
		return fmt.Sprintf("claim %s is tagged Derived but rests on issue %s", claimID, weakID)
	}
	ancestor, _ := r.snap.Claims.Get(weakID)
	return fmt.Sprintf("claim %s is tagged Derived but ancestor %s is tagged %s",
		claimID, weakID, ancestor.Tag)
}

// -----------------------------------------------------------------------
// Conditional anchoring
// -----------------------------------------------------------------------

// checkConditionals verifies every DerivedConditional claim names at
// least one issue with effective status other than Closed. A conditional
// with nothing blocking it should have been retagged.
func (r *run) checkConditionals() {
	for _, c := range r.snap.Claims.All() {
		if c.Tag != corpus.TagDerivedConditional {
			continue
		}

		hasIssueRef := false
		anchored := false
		for _, dep := range c.DependsOn {
			kind, ok := r.g.Kind(dep)
			if !ok || kind != graph.NodeIssue {
				continue
			}
			hasIssueRef = true
			if status, ok := r.snap.EffectiveStatus(dep); ok && status != corpus.StatusClosed {
				anchored = true
				break
			}
		}
		if anchored {
			continue
		}

		reason := "every issue it references is Closed"
		if !hasIssueRef {
			reason = "it references no issue at all"
		}
		r.add(Violation{
			Kind:    KindUnanchoredConditional,
			ClaimID: c.ID,
			Detail:  fmt.Sprintf("claim %s is tagged DerivedConditional but %s", c.ID, reason),
		})
	}
}

// -----------------------------------------------------------------------
// Status machine
// -----------------------------------------------------------------------

type groundState int

const (
	groundUnknown groundState = iota
	groundInProgress
	groundTrue
	groundFalse
)

// groundedTransitively reports whether a claim and its entire depends_on
// closure sit inside the grounded tag set. Memoized across the run; a
// cycle member resolves false, which is correct and already reported by
// the cycle check.
func (r *run) groundedTransitively(id string) bool {
	switch r.groundsMemo[id] {
	case groundTrue:
		return true
	case groundFalse, groundInProgress:
		return false
	}
	r.groundsMemo[id] = groundInProgress

	grounded := false
	if kind, ok := r.g.Kind(id); ok && kind == graph.NodeClaim {
		claim, _ := r.snap.Claims.Get(id)
		if claim.Tag.Grounded() {
			grounded = true
			for _, dep := range r.g.DependenciesOf(id) {
				if !r.groundedTransitively(dep) {
					grounded = false
					break
				}
			}
		}
	}

	if grounded {
		r.groundsMemo[id] = groundTrue
	} else {
		r.groundsMemo[id] = groundFalse
	}
	return grounded
}

// checkStatuses enforces cross-run monotonicity against the ledger and
// the evidence rules behind each declared status. Closure must bottom out
// in the grounded set; a calibration-anchored closure never reaches
// Closed, only ConditionalClosed.
func (r *run) checkStatuses() {
	for _, is := range r.snap.Issues.All() {
		downReason, pending := r.snap.Downgraded(is.ID)

		baseline, known := r.snap.LastRecorded(is.ID)
		if pending {
			baseline, known = corpus.StatusOpen, true
		}
		if known && is.Status != baseline && !baseline.CanTransitionTo(is.Status) {
			r.add(Violation{
				Kind:    KindIllegalTransition,
				IssueID: is.ID,
				From:    baseline,
				To:      is.Status,
				Detail: fmt.Sprintf("issue %s moved %s -> %s without a recorded downgrade",
					is.ID, baseline, is.Status),
			})
		}

		if pending && is.Status == corpus.StatusClosed {
			r.add(Violation{
				Kind:    KindRegistryDrift,
				IssueID: is.ID,
				Detail: fmt.Sprintf("issue %s was reopened (%s) but the registry still records Closed",
					is.ID, downReason),
			})
		}

		r.checkDeclaredEvidence(is)
	}
}

func (r *run) checkDeclaredEvidence(is corpus.Issue) {
	premature := func(detail string) {
		r.add(Violation{Kind: KindPrematureClosure, IssueID: is.ID, Detail: detail})
	}

	switch is.Status {
	case corpus.StatusPartial:
		if is.Progress == "" && len(is.SatisfiedBy) == 0 {
			premature(fmt.Sprintf("issue %s is Partial with no recorded derivation step", is.ID))
		}

	case corpus.StatusConditionalClosed:
		if len(is.SatisfiedBy) == 0 {
			premature(fmt.Sprintf("issue %s is ConditionalClosed with no satisfying claims recorded", is.ID))
			return
		}
		if r.allSatisfiersGrounded(is) {
			r.advisories = append(r.advisories, Advisory{
				IssueID: is.ID,
				Detail:  "every conditioning claim is fully derived; eligible for closure",
			})
		}

	case corpus.StatusClosed:
		if len(is.SatisfiedBy) == 0 {
			premature(fmt.Sprintf("issue %s is Closed with no satisfying claims recorded", is.ID))
			return
		}
		satisfiers := append([]string(nil), is.SatisfiedBy...)
		sort.Strings(satisfiers)
		for _, claimID := range satisfiers {
			if !r.groundedTransitively(claimID) {
				premature(fmt.Sprintf("closure of %s rests on %s, which is not fully derived",
					is.ID, claimID))
			}
		}
		if r.smuggled[is.ID] {
			premature(fmt.Sprintf("issue %s is Closed while its no-smuggling rule is violated", is.ID))
		}
	}
}

func (r *run) allSatisfiersGrounded(is corpus.Issue) bool {
	for _, claimID := range is.SatisfiedBy {
		if !r.groundedTransitively(claimID) {
			return false
		}
	}
	return true
}
