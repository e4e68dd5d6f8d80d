// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
)

// Kind names one class of invariant violation. The enumeration is closed;
// reports group and count by it.
type Kind string

const (
	// KindCycleDetected is a cycle in the depends_on relation. A cyclic
	// dependency is indistinguishable from an unfalsifiable claim, so
	// this fails the consistency gate outright.
	KindCycleDetected Kind = "CycleDetected"

	// KindSmugglingSuspected is a claim declared as no-smuggling
	// evidence for an issue while resting on a claim that issue blocks.
	KindSmugglingSuspected Kind = "SmugglingSuspected"

	// KindUnsupportedDerivation is a Derived claim with a transitive
	// ancestor outside the grounded tag set.
	KindUnsupportedDerivation Kind = "UnsupportedDerivation"

	// KindUnanchoredConditional is a DerivedConditional claim with no
	// open issue anywhere in its dependency set.
	KindUnanchoredConditional Kind = "UnanchoredConditional"

	// KindPrematureClosure is an issue whose declared status is ahead of
	// its recorded evidence.
	KindPrematureClosure Kind = "PrematureClosure"

	// KindIllegalTransition is a registry status that moved backward
	// relative to the ledger without a downgrade.
	KindIllegalTransition Kind = "IllegalTransition"

	// KindRegistryDrift is a downgraded issue whose registry file still
	// declares Closed.
	KindRegistryDrift Kind = "RegistryDrift"
)

// kindList fixes the grouping order in reports.
var kindList = []Kind{
	KindCycleDetected,
	KindSmugglingSuspected,
	KindUnsupportedDerivation,
	KindUnanchoredConditional,
	KindPrematureClosure,
	KindIllegalTransition,
	KindRegistryDrift,
}

var kindOrder = func() map[Kind]int {
	m := make(map[Kind]int, len(kindList))
	for i, k := range kindList {
		m[k] = i
	}
	return m
}()

// Kinds returns every violation kind in report order.
func Kinds() []Kind {
	out := make([]Kind, len(kindList))
	copy(out, kindList)
	return out
}

// Violation is one finding. The populated id fields depend on the kind;
// Detail is always set and human-readable.
type Violation struct {
	Kind Kind `json:"kind"`

	// ClaimID is the claim at fault, when the kind concerns a claim.
	ClaimID string `json:"claim_id,omitempty"`

	// IssueID is the issue at fault, when the kind concerns an issue.
	IssueID string `json:"issue_id,omitempty"`

	// AncestorID is the weak ancestor for UnsupportedDerivation.
	AncestorID string `json:"ancestor_id,omitempty"`

	// Path is the cycle, rotated to start at the smallest id.
	Path []string `json:"path,omitempty"`

	// From and To describe an illegal status movement.
	From corpus.Status `json:"from,omitempty"`
	To   corpus.Status `json:"to,omitempty"`

	Detail string `json:"detail"`
}

// String renders "Kind: detail" for logs and text reports.
func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// sortKey gives violations a total, content-derived order so repeated
// runs emit byte-identical lists.
func (v Violation) sortKey() string {
	return fmt.Sprintf("%02d|%s|%s|%s|%s|%s",
		kindOrder[v.Kind], v.IssueID, v.ClaimID, v.AncestorID,
		strings.Join(v.Path, ">"), v.Detail)
}

// Sort orders violations canonically in place.
func Sort(violations []Violation) {
	sort.Slice(violations, func(i, j int) bool {
		return violations[i].sortKey() < violations[j].sortKey()
	})
}

// CountByKind tallies violations per kind.
func CountByKind(violations []Violation) map[Kind]int {
	counts := make(map[Kind]int)
	for _, v := range violations {
		counts[v.Kind]++
	}
	return counts
}

// Advisory is a non-failing observation, e.g. an issue whose conditioning
// claims have all advanced and which is eligible for closure.
type Advisory struct {
	IssueID string `json:"issue_id"`
	Detail  string `json:"detail"`
}

// Verdict is the complete checker output for one run. All checks run to
// completion; nothing stops at the first finding.
type Verdict struct {
	Violations []Violation `json:"violations"`
	Advisories []Advisory  `json:"advisories,omitempty"`
}

// Clean reports whether the run found no violations.
func (v *Verdict) Clean() bool {
	return len(v.Violations) == 0
}

// HasKind reports whether any violation of the given kind was found.
func (v *Verdict) HasKind(kind Kind) bool {
	for _, violation := range v.Violations {
		if violation.Kind == kind {
			return true
		}
	}
	return false
}

// OfKind returns the violations of one kind, preserving canonical order.
func (v *Verdict) OfKind(kind Kind) []Violation {
	var out []Violation
	for _, violation := range v.Violations {
		if violation.Kind == kind {
			out = append(out, violation)
		}
	}
	return out
}

// Summary renders a one-line deterministic account of the verdict,
// suitable as a gate detail.
func (v *Verdict) Summary() string {
	if v.Clean() {
		return "no violations"
	}
	counts := CountByKind(v.Violations)
	var parts []string
	for _, kind := range kindList {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", kind, n))
		}
	}
	noun := "violations"
	if len(v.Violations) == 1 {
		noun = "violation"
	}
	return fmt.Sprintf("%d %s (%s)", len(v.Violations), noun, strings.Join(parts, ", "))
}
