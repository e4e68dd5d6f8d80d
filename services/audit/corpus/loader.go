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
	"os"
)

// LoadClaims parses the claim store file at path.
//
// Description:
//
//	Reads the record file, enforces the block format and the closed tag
//	enumeration, and returns an immutable ClaimSet. Pure function of the
//	file contents; no side effects beyond reading.
//
// Outputs:
//
//	*ClaimSet - the parsed store.
//	error - MalformedRecordError or DuplicateIDError with file:line
//	context, or the underlying read error.
func LoadClaims(path string) (*ClaimSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open claims %s: %w", path, err)
	}
	defer f.Close()

	claims, err := ParseClaims(path, f)
	if err != nil {
		return nil, err
	}
	return NewClaimSet(claims)
}

// LoadIssues parses the issue registry file at path.
func LoadIssues(path string) (*IssueSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open issues %s: %w", path, err)
	}
	defer f.Close()

	issues, err := ParseIssues(path, f)
	if err != nil {
		return nil, err
	}
	return NewIssueSet(issues)
}

// ValidateReferences cross-checks every id reference between the two
// stores.
//
// Description:
//
//	Claim depends_on entries must name an existing claim or issue. Issue
//	blocks, no_smuggling, and satisfied_by entries must name existing
//	claims specifically. The claim and issue id namespaces must be
//	disjoint. Every failure is collected; the joined error lists all of
//	them so one run surfaces the complete set.
//
// Outputs:
//
//	error - nil when fully consistent, otherwise errors.Join of
//	DuplicateIDError and DanglingReferenceError values.
func ValidateReferences(claims *ClaimSet, issues *IssueSet) error {
	var errs []error

	for _, id := range claims.IDs() {
		if issues.Has(id) {
			errs = append(errs, &DuplicateIDError{ID: id})
		}
	}

	for _, c := range claims.All() {
		for _, ref := range c.DependsOn {
			if !claims.Has(ref) && !issues.Has(ref) {
				errs = append(errs, &DanglingReferenceError{
					OwnerID: c.ID, Field: "depends_on", Ref: ref,
				})
			}
		}
	}

	claimOnly := func(owner string, field string, refs []string) {
		for _, ref := range refs {
			if !claims.Has(ref) {
				errs = append(errs, &DanglingReferenceError{
					OwnerID: owner, Field: field, Ref: ref,
				})
			}
		}
	}
	for _, is := range issues.All() {
		claimOnly(is.ID, "blocks", is.Blocks)
		claimOnly(is.ID, "no_smuggling", is.NoSmuggling)
		claimOnly(is.ID, "satisfied_by", is.SatisfiedBy)
	}

	return errors.Join(errs...)
}
