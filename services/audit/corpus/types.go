// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Tag is the epistemic strength label on a claim. The enumeration is
// closed; parsers reject anything outside it.
type Tag string

const (
	// TagBaseline marks an accepted empirical baseline.
	TagBaseline Tag = "Baseline"

	// TagMathTheorem marks an established mathematical theorem.
	TagMathTheorem Tag = "MathTheorem"

	// TagDefinition marks a definition; true by construction.
	TagDefinition Tag = "Definition"

	// TagDerivedConditional marks a derivation that is complete only
	// conditional on one or more open issues.
	TagDerivedConditional Tag = "DerivedConditional"

	// TagDerived marks a fully derived claim.
	TagDerived Tag = "Derived"

	// TagIdentified marks a structure identified but not derived.
	TagIdentified Tag = "Identified"

	// TagCalibrated marks a value fixed by fitting, not derivation.
	TagCalibrated Tag = "Calibrated"

	// TagPostulated marks an assumed claim.
	TagPostulated Tag = "Postulated"

	// TagOpen marks a claim with no supporting chain yet.
	TagOpen Tag = "Open"

	// TagNoGo marks a negative result ruling something out.
	TagNoGo Tag = "NoGo"
)

// tagStrength orders tags for reporting. Graph logic never consults this;
// the undersupport rule uses the grounded set, not the ordering.
var tagStrength = map[Tag]int{
	TagMathTheorem:        90,
	TagDefinition:         85,
	TagBaseline:           80,
	TagDerived:            70,
	TagDerivedConditional: 60,
	TagIdentified:         50,
	TagCalibrated:         40,
	TagPostulated:         30,
	TagNoGo:               20,
	TagOpen:               10,
}

// IsValid reports whether the tag is a member of the closed enumeration.
func (t Tag) IsValid() bool {
	_, ok := tagStrength[t]
	return ok
}

// String returns the tag as it appears in record files.
func (t Tag) String() string {
	return string(t)
}

// Strength returns the reporting-only ordering value. Unknown tags rank
// below everything.
func (t Tag) Strength() int {
	return tagStrength[t]
}

// Axiomatic reports whether the tag forbids a dependency set. Baseline,
// MathTheorem, and Definition claims stand on their own.
func (t Tag) Axiomatic() bool {
	switch t {
	case TagBaseline, TagMathTheorem, TagDefinition:
		return true
	default:
		return false
	}
}

// Grounded reports whether the tag is in the set a fully derived claim may
// transitively rest on: Baseline, MathTheorem, Definition, or Derived.
func (t Tag) Grounded() bool {
	switch t {
	case TagBaseline, TagMathTheorem, TagDefinition, TagDerived:
		return true
	default:
		return false
	}
}

// ParseTag converts a record-file value into a Tag.
func ParseTag(s string) (Tag, error) {
	t := Tag(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown tag %q", ErrMalformedRecord, s)
	}
	return t, nil
}

// Status is the lifecycle state of an issue.
//
// The machine moves forward only: Open -> Partial -> ConditionalClosed ->
// Closed. The sole backward edge, Closed -> Open, is a downgrade and is
// never taken by this package; it requires an explicit reopen carrying a
// reason, recorded in the audit ledger.
type Status string

const (
	// StatusOpen is the initial state.
	StatusOpen Status = "Open"

	// StatusPartial means at least one derivation step toward the closure
	// test has been recorded.
	StatusPartial Status = "Partial"

	// StatusConditionalClosed means the closure test is satisfied
	// conditional on claims that are not yet fully derived.
	StatusConditionalClosed Status = "ConditionalClosed"

	// StatusClosed is terminal under normal operation.
	StatusClosed Status = "Closed"
)

var statusRank = map[Status]int{
	StatusOpen:              0,
	StatusPartial:           1,
	StatusConditionalClosed: 2,
	StatusClosed:            3,
}

// IsValid reports whether the status is a member of the closed enumeration.
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// String returns the status as it appears in record files.
func (s Status) String() string {
	return string(s)
}

// Rank returns the forward position of the status in the lifecycle.
// Monotonicity checks compare ranks; anything else should not.
func (s Status) Rank() int {
	return statusRank[s]
}

// CanTransitionTo reports whether the forward machine allows moving from s
// to target. Staying put is always allowed. The downgrade edge
// Closed -> Open is intentionally NOT covered here.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	switch s {
	case StatusOpen:
		return target == StatusPartial || target == StatusConditionalClosed || target == StatusClosed
	case StatusPartial:
		return target == StatusConditionalClosed || target == StatusClosed
	case StatusConditionalClosed:
		return target == StatusClosed
	case StatusClosed:
		return false
	default:
		return false
	}
}

// ParseStatus converts a record-file value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrMalformedRecord, s)
	}
	return st, nil
}

// Category classifies what kind of gap an issue describes.
type Category string

const (
	CategoryActionEOM         Category = "ActionEOM"
	CategoryBoundaryCondition Category = "BoundaryCondition"
	CategoryConstantAnchor    Category = "ConstantAnchor"
	CategoryNumerics          Category = "Numerics"
	CategoryTopology          Category = "Topology"
	CategoryCrossChapter      Category = "CrossChapter"
)

var validCategories = map[Category]struct{}{
	CategoryActionEOM:         {},
	CategoryBoundaryCondition: {},
	CategoryConstantAnchor:    {},
	CategoryNumerics:          {},
	CategoryTopology:          {},
	CategoryCrossChapter:      {},
}

// IsValid reports whether the category is a member of the closed enumeration.
func (c Category) IsValid() bool {
	_, ok := validCategories[c]
	return ok
}

// String returns the category as it appears in record files.
func (c Category) String() string {
	return string(c)
}

// ParseCategory converts a record-file value into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrMalformedRecord, s)
	}
	return c, nil
}

// Claim is one tagged statement extracted from the manuscript.
//
// Claims are immutable. The anchor is an opaque document location and is
// never parsed here. DependsOn may name claims and issues; membership in
// the paired stores decides which is which, not the id shape.
type Claim struct {
	// ID is the stable claim identifier, e.g. "E-CH11-Dc-005".
	ID string `json:"id"`

	// Anchor is the document location (chapter, line range). Opaque.
	Anchor string `json:"anchor,omitempty"`

	// Tag is the epistemic strength label.
	Tag Tag `json:"tag"`

	// DependsOn lists the claim and issue ids this derivation rests on,
	// in record order. Empty for axiomatic tags.
	DependsOn []string `json:"depends_on,omitempty"`

	// Summary is free text carried through to reports.
	Summary string `json:"summary,omitempty"`
}

// Issue is one open problem report (OPR).
type Issue struct {
	// ID is the stable issue identifier, e.g. "OPR-21".
	ID string `json:"id"`

	// Category classifies the gap.
	Category Category `json:"category"`

	// Status is the declared lifecycle state from the registry file. The
	// engine may overlay a ledger downgrade on top of it; see Snapshot.
	Status Status `json:"status"`

	// Title is free text.
	Title string `json:"title,omitempty"`

	// Blocks lists claim ids that cannot advance past DerivedConditional
	// while this issue is not Closed.
	Blocks []string `json:"blocks,omitempty"`

	// ClosureTest describes the predicate that must hold for Closed.
	ClosureTest string `json:"closure_test,omitempty"`

	// NoSmuggling lists claim ids declared NOT used as derivation inputs.
	NoSmuggling []string `json:"no_smuggling,omitempty"`

	// SatisfiedBy lists claim ids recorded as satisfying the closure test.
	SatisfiedBy []string `json:"satisfied_by,omitempty"`

	// Progress is a free-text note of recorded derivation steps.
	Progress string `json:"progress,omitempty"`
}

// ClaimSet is an immutable, id-indexed collection of claims from one
// snapshot.
type ClaimSet struct {
	byID   map[string]Claim
	ids    []string
	digest string
}

// NewClaimSet builds a set from parsed claims, rejecting duplicate ids.
func NewClaimSet(claims []Claim) (*ClaimSet, error) {
	byID := make(map[string]Claim, len(claims))
	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		if _, dup := byID[c.ID]; dup {
			return nil, &DuplicateIDError{ID: c.ID}
		}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	cs := &ClaimSet{byID: byID, ids: ids}
	cs.digest = cs.computeDigest()
	return cs, nil
}

// Get returns the claim with the given id. O(1).
func (cs *ClaimSet) Get(id string) (Claim, bool) {
	c, ok := cs.byID[id]
	return c, ok
}

// Has reports whether the id names a claim in this set.
func (cs *ClaimSet) Has(id string) bool {
	_, ok := cs.byID[id]
	return ok
}

// Len returns the number of claims.
func (cs *ClaimSet) Len() int {
	return len(cs.ids)
}

// IDs returns all claim ids in sorted order.
func (cs *ClaimSet) IDs() []string {
	out := make([]string, len(cs.ids))
	copy(out, cs.ids)
	return out
}

// All returns every claim, sorted by id.
func (cs *ClaimSet) All() []Claim {
	out := make([]Claim, 0, len(cs.ids))
	for _, id := range cs.ids {
		out = append(out, cs.byID[id])
	}
	return out
}

// Digest returns a hex SHA-256 over the canonical serialization of the
// set. Two snapshots with identical records have identical digests.
func (cs *ClaimSet) Digest() string {
	return cs.digest
}

func (cs *ClaimSet) computeDigest() string {
	h := sha256.New()
	for _, id := range cs.ids {
		c := cs.byID[id]
		fmt.Fprintf(h, "claim|%s|%s|%s|%s|%s\n",
			c.ID, c.Tag, c.Anchor, strings.Join(c.DependsOn, ","), c.Summary)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IssueSet is an immutable, id-indexed collection of issues from one
// snapshot.
type IssueSet struct {
	byID   map[string]Issue
	ids    []string
	digest string
}

// NewIssueSet builds a set from parsed issues, rejecting duplicate ids.
func NewIssueSet(issues []Issue) (*IssueSet, error) {
	byID := make(map[string]Issue, len(issues))
	ids := make([]string, 0, len(issues))
	for _, is := range issues {
		if _, dup := byID[is.ID]; dup {
			return nil, &DuplicateIDError{ID: is.ID}
		}
		byID[is.ID] = is
		ids = append(ids, is.ID)
	}
	sort.Strings(ids)
	s := &IssueSet{byID: byID, ids: ids}
	s.digest = s.computeDigest()
	return s, nil
}

// Get returns the issue with the given id. O(1).
func (s *IssueSet) Get(id string) (Issue, bool) {
	is, ok := s.byID[id]
	return is, ok
}

// Has reports whether the id names an issue in this set.
func (s *IssueSet) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of issues.
func (s *IssueSet) Len() int {
	return len(s.ids)
}

// IDs returns all issue ids in sorted order.
func (s *IssueSet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// All returns every issue, sorted by id.
func (s *IssueSet) All() []Issue {
	out := make([]Issue, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id])
	}
	return out
}

// Digest returns a hex SHA-256 over the canonical serialization of the set.
func (s *IssueSet) Digest() string {
	return s.digest
}

func (s *IssueSet) computeDigest() string {
	h := sha256.New()
	for _, id := range s.ids {
		is := s.byID[id]
		fmt.Fprintf(h, "issue|%s|%s|%s|%s|%s|%s|%s|%s|%s\n",
			is.ID, is.Category, is.Status, is.Title,
			strings.Join(is.Blocks, ","), is.ClosureTest,
			strings.Join(is.NoSmuggling, ","), strings.Join(is.SatisfiedBy, ","),
			is.Progress)
	}
	return hex.EncodeToString(h.Sum(nil))
}
