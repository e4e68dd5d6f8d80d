// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// NewSpinner Tests
// =============================================================================

func TestNewSpinner_ReturnsNonNil(t *testing.T) {
	spin := NewSpinner("Running gates...")
	if spin == nil {
		t.Fatal("NewSpinner returned nil")
	}
}

func TestNewSpinner_SetsMessage(t *testing.T) {
	spin := NewSpinner("Loading claims")
	if spin.message != "Loading claims" {
		t.Errorf("expected message 'Loading claims', got %q", spin.message)
	}
}

func TestNewSpinner_DefaultsToDotsType(t *testing.T) {
	spin := NewSpinner("Running gates...")
	if spin.spinType != SpinnerDots {
		t.Errorf("expected SpinnerDots, got %v", spin.spinType)
	}
}

func TestNewSpinner_InitializesChannels(t *testing.T) {
	spin := NewSpinner("Running gates...")
	if spin.stop == nil {
		t.Error("stop channel should be initialized")
	}
	if spin.done == nil {
		t.Error("done channel should be initialized")
	}
}

// =============================================================================
// WithType Tests
// =============================================================================

func TestSpinner_WithType(t *testing.T) {
	spin := NewSpinner("Running gates...").WithType(SpinnerPulse)
	if spin.spinType != SpinnerPulse {
		t.Errorf("expected SpinnerPulse, got %v", spin.spinType)
	}

	spin = NewSpinner("Running gates...").WithType(SpinnerClock)
	if spin.spinType != SpinnerClock {
		t.Errorf("expected SpinnerClock, got %v", spin.spinType)
	}
}

func TestSpinnerFrames_AllTypesNonEmpty(t *testing.T) {
	for _, st := range []SpinnerType{SpinnerDots, SpinnerPulse, SpinnerClock} {
		if len(spinnerFrames[st]) == 0 {
			t.Errorf("spinner type %v has no frames", st)
		}
	}
}

// =============================================================================
// Start / Stop Tests
// =============================================================================

func TestSpinner_MachineMode_PrintsOnce(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	spin := NewSpinner("Replaying ledger")
	errOut := captureStderr(func() {
		spin.Start()
		spin.Stop()
	})
	if !strings.Contains(errOut, "PROGRESS: Replaying ledger") {
		t.Errorf("expected PROGRESS line, got %q", errOut)
	}
	if strings.Count(errOut, "PROGRESS:") != 1 {
		t.Errorf("expected exactly one PROGRESS line, got %q", errOut)
	}
}

func TestSpinner_Animated_StartAndStop(t *testing.T) {
	usePersonality(t, PersonalityFull)

	spin := NewSpinner("Running gates...")
	errOut := captureStderr(func() {
		spin.Start()
		time.Sleep(120 * time.Millisecond)
		spin.Stop()
	})
	// Stop always erases the spinner line.
	if !strings.Contains(errOut, "\r\033[K") {
		t.Errorf("expected line-clear sequence in output, got %q", errOut)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	spin := NewSpinner("Running gates...")
	spin.Stop() // must not panic or hang
}

func TestSpinner_DoubleStop(t *testing.T) {
	usePersonality(t, PersonalityFull)

	spin := NewSpinner("Running gates...")
	captureStderr(func() {
		spin.Start()
		spin.Stop()
		spin.Stop() // second stop is a no-op
	})
}

func TestSpinner_DoubleStart(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	spin := NewSpinner("Running gates...")
	errOut := captureStderr(func() {
		spin.Start()
		spin.Start() // second start is a no-op
		spin.Stop()
	})
	if strings.Count(errOut, "PROGRESS:") != 1 {
		t.Errorf("expected one PROGRESS line after double start, got %q", errOut)
	}
}

func TestSpinner_UpdateMessage(t *testing.T) {
	spin := NewSpinner("Loading claims")
	spin.UpdateMessage("Loading issues")
	if spin.message != "Loading issues" {
		t.Errorf("expected updated message, got %q", spin.message)
	}
}

// =============================================================================
// StopWith / WithSpinner Tests
// =============================================================================

func TestSpinner_StopWithSuccess(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	spin := NewSpinner("Running gates...")
	var out string
	captureStderr(func() {
		spin.Start()
		out = captureStdout(func() {
			spin.StopWithSuccess("all gates passed")
		})
	})
	if !strings.Contains(out, "OK: all gates passed") {
		t.Errorf("expected success line, got %q", out)
	}
}

func TestSpinner_StopWithError(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	spin := NewSpinner("Running gates...")
	errOut := captureStderr(func() {
		spin.Start()
		spin.StopWithError("gate runner failed")
	})
	if !strings.Contains(errOut, "ERROR: gate runner failed") {
		t.Errorf("expected error line, got %q", errOut)
	}
}

func TestWithSpinner_Success(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	var ran bool
	captureStderr(func() {
		captureStdout(func() {
			if err := WithSpinner("auditing", func() error {
				ran = true
				return nil
			}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	})
	if !ran {
		t.Error("expected the wrapped function to run")
	}
}

func TestWithSpinner_PropagatesError(t *testing.T) {
	usePersonality(t, PersonalityMachine)

	wantErr := errors.New("ledger unavailable")
	captureStderr(func() {
		if err := WithSpinner("auditing", func() error {
			return wantErr
		}); !errors.Is(err, wantErr) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
}
