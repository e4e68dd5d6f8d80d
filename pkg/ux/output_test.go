// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// usePersonality switches the level for one test and restores it after.
func usePersonality(t *testing.T, level PersonalityLevel) {
	t.Helper()
	orig := GetPersonality()
	t.Cleanup(func() { SetPersonality(orig) })
	SetPersonalityLevel(level)
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Styled(t *testing.T) {
	for _, icon := range []Icon{IconPass, IconWarn, IconFail, IconOpen} {
		if icon.Render() == "" {
			t.Errorf("expected non-empty result for %q", icon)
		}
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Icons without specific styling render as themselves
	for _, icon := range []Icon{IconArrow, IconBullet} {
		if got := icon.Render(); got != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, got)
		}
	}
}

// =============================================================================
// Print Helper Tests
// =============================================================================

func TestTitle_MachineMode(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	out := captureStdout(func() { Title("Audit Report") })
	if out != "" {
		t.Errorf("machine mode should suppress titles, got %q", out)
	}
}

func TestTitle_FullMode(t *testing.T) {
	usePersonality(t, PersonalityFull)

	out := captureStdout(func() { Title("Audit Report") })
	if !strings.Contains(out, "Audit Report") {
		t.Errorf("expected title text in output, got %q", out)
	}
}

func TestSuccess_MachineMode(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	out := captureStdout(func() { Success("gates passed") })
	if !strings.Contains(out, "OK: gates passed") {
		t.Errorf("expected OK prefix in machine mode, got %q", out)
	}
}

func TestWarning_MachineModeGoesToStderr(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	errOut := captureStderr(func() { Warning("advisory present") })
	if !strings.Contains(errOut, "WARN: advisory present") {
		t.Errorf("expected WARN prefix on stderr, got %q", errOut)
	}
}

func TestError_MachineModeGoesToStderr(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	errOut := captureStderr(func() { Error("gate failed") })
	if !strings.Contains(errOut, "ERROR: gate failed") {
		t.Errorf("expected ERROR prefix on stderr, got %q", errOut)
	}
}

func TestInfo_MachineMode(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	out := captureStdout(func() { Info("3 claims loaded") })
	if !strings.Contains(out, "3 claims loaded") {
		t.Errorf("expected plain text in machine mode, got %q", out)
	}
}

func TestMuted_MachineMode(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	out := captureStdout(func() { Muted("run r-1") })
	if out != "" {
		t.Errorf("machine mode should suppress muted text, got %q", out)
	}
}

func TestBox_MachineMode(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	out := captureStdout(func() { Box("Ledger", "42 entries") })
	if !strings.Contains(out, "Ledger: 42 entries") {
		t.Errorf("expected flat key-value in machine mode, got %q", out)
	}
}

func TestBox_FullMode(t *testing.T) {
	usePersonality(t, PersonalityFull)

	out := captureStdout(func() { Box("Ledger", "42 entries") })
	if !strings.Contains(out, "Ledger") || !strings.Contains(out, "42 entries") {
		t.Errorf("expected box content in output, got %q", out)
	}
}

// =============================================================================
// GateLine / Summary Tests
// =============================================================================

func TestGateLine_MachineMode(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	out := captureStdout(func() { GateLine("consistency", true, "") })
	if !strings.Contains(out, "GATE\tconsistency\tpass") {
		t.Errorf("expected tab-separated gate line, got %q", out)
	}

	out = captureStdout(func() { GateLine("closure", false, "timeout") })
	if !strings.Contains(out, "GATE\tclosure\tfail\ttimeout") {
		t.Errorf("expected failing gate line with detail, got %q", out)
	}
}

func TestGateLine_FullModeIncludesDetail(t *testing.T) {
	usePersonality(t, PersonalityFull)

	out := captureStdout(func() { GateLine("closure", false, "2 violations") })
	if !strings.Contains(out, "closure") || !strings.Contains(out, "2 violations") {
		t.Errorf("expected gate name and detail, got %q", out)
	}
}

func TestSummary_MachineMode(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	out := captureStdout(func() { Summary(2, 1, 3) })
	if !strings.Contains(out, "SUMMARY: passed=2 failed=1 total=3") {
		t.Errorf("expected machine summary, got %q", out)
	}
}

func TestSummary_FullMode(t *testing.T) {
	usePersonality(t, PersonalityFull)

	out := captureStdout(func() { Summary(2, 1, 3) })
	for _, want := range []string{"2", "1", "3", "passed", "failed", "total"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in summary, got %q", want, out)
		}
	}
}
