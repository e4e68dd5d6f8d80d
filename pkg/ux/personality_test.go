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
	"sync"
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		input string
		want  PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"standard", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"", PersonalityStandard},
		{"bogus", PersonalityStandard},
	}

	for _, tt := range tests {
		if got := ParsePersonalityLevel(tt.input); got != tt.want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSetAndGetPersonality(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityMinimal})
	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("expected minimal, got %q", got)
	}

	SetPersonalityLevel(PersonalityMachine)
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("expected machine, got %q", got)
	}
}

func TestInitPersonality_EnvOverride(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("VERIDEX_PERSONALITY", "minimal")
	InitPersonality()
	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("expected env override to minimal, got %q", got)
	}
}

func TestInitPersonality_NonTerminalDefaultsToMachine(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("VERIDEX_PERSONALITY", "")

	// Test binaries run with stdout piped, so the non-TTY branch applies.
	if isTerminal() {
		t.Skip("stdout is a terminal")
	}
	InitPersonality()
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("expected machine without a TTY, got %q", got)
	}
}

func TestIsInteractive(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if IsInteractive() {
		t.Error("machine mode should not be interactive")
	}

	// Outside machine mode interactivity tracks the TTY check.
	SetPersonalityLevel(PersonalityFull)
	if got := IsInteractive(); got != isTerminal() {
		t.Errorf("expected IsInteractive=%v to match terminal detection", got)
	}
}

func TestShouldShowProgress(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowProgress() {
		t.Error("machine mode should not show progress")
	}

	SetPersonalityLevel(PersonalityStandard)
	if !ShouldShowProgress() {
		t.Error("standard mode should show progress")
	}
}

func TestDefaultPersonality(t *testing.T) {
	if DefaultPersonality().Level != PersonalityFull {
		t.Error("default personality should be full")
	}
}

func TestPersonality_ConcurrentAccess(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetPersonalityLevel(PersonalityFull)
		}()
		go func() {
			defer wg.Done()
			_ = GetPersonality()
		}()
	}
	wg.Wait()
}
