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
	"errors"
	"testing"
)

func TestTagValidity(t *testing.T) {
	valid := []Tag{
		TagBaseline, TagMathTheorem, TagDefinition, TagDerivedConditional,
		TagDerived, TagIdentified, TagCalibrated, TagPostulated, TagOpen, TagNoGo,
	}
	for _, tag := range valid {
		if !tag.IsValid() {
			t.Errorf("tag %q should be valid", tag)
		}
	}

	for _, bad := range []string{"", "derived", "Proven", "BL", "[P]"} {
		if Tag(bad).IsValid() {
			t.Errorf("tag %q should be invalid", bad)
		}
		if _, err := ParseTag(bad); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("ParseTag(%q) error = %v, want ErrMalformedRecord", bad, err)
		}
	}
}

func TestTagGroundedSet(t *testing.T) {
	grounded := map[Tag]bool{
		TagBaseline:    true,
		TagMathTheorem: true,
		TagDefinition:  true,
		TagDerived:     true,
	}
	for tag := range tagStrength {
		if got := tag.Grounded(); got != grounded[tag] {
			t.Errorf("%s.Grounded() = %v, want %v", tag, got, grounded[tag])
		}
	}
}

func TestTagAxiomatic(t *testing.T) {
	axiomatic := map[Tag]bool{
		TagBaseline:    true,
		TagMathTheorem: true,
		TagDefinition:  true,
	}
	for tag := range tagStrength {
		if got := tag.Axiomatic(); got != axiomatic[tag] {
			t.Errorf("%s.Axiomatic() = %v, want %v", tag, got, axiomatic[tag])
		}
	}
}

func TestTagStrengthOrdering(t *testing.T) {
	// Reporting order only; the checker never compares strengths.
	if TagDerived.Strength() <= TagDerivedConditional.Strength() {
		t.Error("Derived should rank above DerivedConditional")
	}
	if TagCalibrated.Strength() >= TagDerived.Strength() {
		t.Error("Calibrated should rank below Derived")
	}
	if TagOpen.Strength() >= TagNoGo.Strength() {
		t.Error("Open should rank lowest")
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusOpen, StatusPartial, true},
		{StatusOpen, StatusConditionalClosed, true},
		{StatusOpen, StatusClosed, true},
		{StatusPartial, StatusConditionalClosed, true},
		{StatusPartial, StatusClosed, true},
		{StatusConditionalClosed, StatusClosed, true},
		{StatusOpen, StatusOpen, true},
		{StatusClosed, StatusClosed, true},

		// Backward movement is never allowed by the forward machine;
		// the downgrade path lives in the ledger, not here.
		{StatusClosed, StatusOpen, false},
		{StatusClosed, StatusPartial, false},
		{StatusClosed, StatusConditionalClosed, false},
		{StatusConditionalClosed, StatusPartial, false},
		{StatusConditionalClosed, StatusOpen, false},
		{StatusPartial, StatusOpen, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatusRankMonotone(t *testing.T) {
	order := []Status{StatusOpen, StatusPartial, StatusConditionalClosed, StatusClosed}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("rank(%s) should exceed rank(%s)", order[i], order[i-1])
		}
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	for _, bad := range []string{"", "open", "CLOSED", "Done", "Reopened"} {
		if _, err := ParseStatus(bad); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("ParseStatus(%q) error = %v, want ErrMalformedRecord", bad, err)
		}
	}
}

func TestParseCategoryRejectsUnknown(t *testing.T) {
	if _, err := ParseCategory("Gravity"); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("error = %v, want ErrMalformedRecord", err)
	}
	if _, err := ParseCategory("ActionEOM"); err != nil {
		t.Errorf("ActionEOM should parse, got %v", err)
	}
}

func TestClaimSetDuplicate(t *testing.T) {
	_, err := NewClaimSet([]Claim{
		{ID: "E-1", Tag: TagBaseline},
		{ID: "E-1", Tag: TagDerived},
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("error = %v, want ErrDuplicateID", err)
	}
	var dup *DuplicateIDError
	if !errors.As(err, &dup) || dup.ID != "E-1" {
		t.Fatalf("expected DuplicateIDError for E-1, got %v", err)
	}
}

func TestClaimSetLookup(t *testing.T) {
	cs, err := NewClaimSet([]Claim{
		{ID: "E-2", Tag: TagDerived, DependsOn: []string{"E-1"}},
		{ID: "E-1", Tag: TagBaseline},
	})
	if err != nil {
		t.Fatal(err)
	}

	c, ok := cs.Get("E-2")
	if !ok || c.Tag != TagDerived {
		t.Fatalf("Get(E-2) = %+v, %v", c, ok)
	}
	if _, ok := cs.Get("E-9"); ok {
		t.Error("Get(E-9) should miss")
	}

	ids := cs.IDs()
	if len(ids) != 2 || ids[0] != "E-1" || ids[1] != "E-2" {
		t.Errorf("IDs() = %v, want sorted [E-1 E-2]", ids)
	}
}

func TestDigestStableAcrossInputOrder(t *testing.T) {
	a := []Claim{
		{ID: "E-1", Tag: TagBaseline, Summary: "speed of light"},
		{ID: "E-2", Tag: TagDerived, DependsOn: []string{"E-1"}},
	}
	b := []Claim{a[1], a[0]}

	csA, err := NewClaimSet(a)
	if err != nil {
		t.Fatal(err)
	}
	csB, err := NewClaimSet(b)
	if err != nil {
		t.Fatal(err)
	}
	if csA.Digest() != csB.Digest() {
		t.Error("digest should not depend on record order")
	}

	csC, err := NewClaimSet([]Claim{a[0], {ID: "E-2", Tag: TagDerived, DependsOn: []string{"E-1"}, Summary: "changed"}})
	if err != nil {
		t.Fatal(err)
	}
	if csA.Digest() == csC.Digest() {
		t.Error("digest should change with record content")
	}
}

func TestSnapshotEffectiveStatus(t *testing.T) {
	claims, _ := NewClaimSet(nil)
	issues, err := NewIssueSet([]Issue{
		{ID: "OPR-1", Category: CategoryNumerics, Status: StatusClosed},
		{ID: "OPR-2", Category: CategoryTopology, Status: StatusPartial},
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := NewSnapshot(claims, issues).WithHistory(
		map[string]Status{"OPR-1": StatusClosed, "OPR-2": StatusOpen},
		map[string]string{"OPR-1": "closure used calibrated constant"},
	)

	// Pending downgrade on a file that still says Closed reads as Open.
	if st, ok := snap.EffectiveStatus("OPR-1"); !ok || st != StatusOpen {
		t.Errorf("OPR-1 effective = %v, %v; want Open", st, ok)
	}
	// No downgrade: the file wins.
	if st, ok := snap.EffectiveStatus("OPR-2"); !ok || st != StatusPartial {
		t.Errorf("OPR-2 effective = %v, %v; want Partial", st, ok)
	}
	if _, ok := snap.EffectiveStatus("OPR-9"); ok {
		t.Error("unknown issue should not resolve")
	}

	if reason, ok := snap.Downgraded("OPR-1"); !ok || reason == "" {
		t.Error("OPR-1 should carry its downgrade reason")
	}
	if st, ok := snap.LastRecorded("OPR-2"); !ok || st != StatusOpen {
		t.Errorf("OPR-2 last recorded = %v, %v; want Open", st, ok)
	}
}
