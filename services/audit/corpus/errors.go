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
	"fmt"
)

// Sentinel errors for the record stores. Callers match with errors.Is;
// the typed wrappers below carry location context for errors.As.
var (
	// ErrMalformedRecord indicates a record that violates the block
	// format: unknown keys, unknown enum values, missing required fields,
	// or an axiomatic claim carrying dependencies.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDuplicateID indicates two records sharing an id within one
	// snapshot.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrDanglingReference indicates an id reference into a store that
	// does not contain it.
	ErrDanglingReference = errors.New("dangling reference")
)

// MalformedRecordError reports a format violation with its location.
type MalformedRecordError struct {
	// Path is the input file.
	Path string

	// Line is the 1-based line the violation was detected on.
	Line int

	// Reason describes what was wrong.
	Reason string
}

// Error returns "path:line: malformed record: reason".
func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s:%d: %v: %s", e.Path, e.Line, ErrMalformedRecord, e.Reason)
}

// Unwrap returns ErrMalformedRecord so errors.Is matching works.
func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// DuplicateIDError reports an id collision within one snapshot.
type DuplicateIDError struct {
	// ID is the colliding identifier.
	ID string

	// Path and Line locate the second occurrence when known.
	Path string
	Line int
}

func (e *DuplicateIDError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: %v: %q", e.Path, e.Line, ErrDuplicateID, e.ID)
	}
	return fmt.Sprintf("%v: %q", ErrDuplicateID, e.ID)
}

func (e *DuplicateIDError) Unwrap() error {
	return ErrDuplicateID
}

// DanglingReferenceError reports a reference to an id that exists in
// neither store. OwnerID is the record holding the reference, Field the
// record field it appeared in, and Ref the missing id.
type DanglingReferenceError struct {
	OwnerID string
	Field   string
	Ref     string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%v: %s.%s -> %q", ErrDanglingReference, e.OwnerID, e.Field, e.Ref)
}

func (e *DanglingReferenceError) Unwrap() error {
	return ErrDanglingReference
}
