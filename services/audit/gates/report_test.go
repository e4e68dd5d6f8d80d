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
	"reflect"
	"testing"
	"time"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
)

func TestReportBodyIsCanonical(t *testing.T) {
	claims := []corpus.Claim{{ID: "A", Tag: corpus.TagBaseline}}
	issues := []corpus.Issue{
		{ID: "OPR-1", Category: corpus.CategoryNumerics, Status: corpus.StatusOpen},
	}
	snap, _ := testSnapshot(t, claims, issues)

	first := NewReport(snap, []Result{
		{Name: "notation", Pass: true, Detail: "exit 0", Duration: 120 * time.Millisecond},
		{Name: "consistency", Pass: true, Detail: "no violations", Duration: 3 * time.Millisecond},
	}, time.Now(), time.Now())

	second := NewReport(snap, []Result{
		{Name: "notation", Pass: true, Detail: "exit 0", Duration: 480 * time.Millisecond},
		{Name: "consistency", Pass: true, Detail: "no violations", Duration: 9 * time.Millisecond},
	}, time.Now().Add(time.Hour), time.Now().Add(time.Hour))

	if !reflect.DeepEqual(first.Body, second.Body) {
		t.Fatalf("bodies differ across identical runs:\n%+v\n%+v", first.Body, second.Body)
	}

	d1, err := first.Body.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := second.Body.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("digests differ: %s vs %s", d1, d2)
	}

	if first.Meta.RunID == second.Meta.RunID {
		t.Error("run ids must be unique per run")
	}
	if first.Meta.GateDurations["notation"] != 120*time.Millisecond {
		t.Errorf("durations belong in Meta: %+v", first.Meta)
	}
}

func TestReportSortsGatesAndZeroesDurations(t *testing.T) {
	snap := emptySnapshot(t)
	report := NewReport(snap, []Result{
		{Name: "zz-last", Pass: false, Duration: time.Second},
		{Name: "aa-first", Pass: true, Duration: time.Second},
	}, time.Now(), time.Now())

	if report.Body.Gates[0].Name != "aa-first" || report.Body.Gates[1].Name != "zz-last" {
		t.Fatalf("gates not sorted: %+v", report.Body.Gates)
	}
	for _, res := range report.Body.Gates {
		if res.Duration != 0 {
			t.Errorf("body gate %s kept its duration", res.Name)
		}
	}
	if report.Body.OverallPass {
		t.Error("a failing gate must fail the report")
	}
	if report.ConsistencyVerdict() != nil {
		t.Error("no consistency gate ran, verdict must be nil")
	}
}
