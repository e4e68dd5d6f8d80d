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
)

// Snapshot is the read-only view of one corpus generation handed to the
// checker and every gate. It pairs the two stores with the issue history
// folded out of the audit ledger, so status questions have one answer per
// run.
//
// Prior holds the last ledger-recorded registry status per issue (absent
// for issues never seen before). Pending holds downgrade reasons for
// issues whose most recent ledger event is a Downgrade, meaning the
// registry file has not acknowledged the reopen yet.
//
// Thread Safety: immutable after construction; safe for concurrent use.
type Snapshot struct {
	Claims *ClaimSet
	Issues *IssueSet

	prior   map[string]Status
	pending map[string]string
}

// NewSnapshot pairs the two stores with no run history (first run).
func NewSnapshot(claims *ClaimSet, issues *IssueSet) *Snapshot {
	return &Snapshot{Claims: claims, Issues: issues}
}

// WithHistory returns a copy of the snapshot carrying ledger history.
// The maps are used as provided and must not be mutated afterwards.
func (s *Snapshot) WithHistory(prior map[string]Status, pending map[string]string) *Snapshot {
	return &Snapshot{
		Claims:  s.Claims,
		Issues:  s.Issues,
		prior:   prior,
		pending: pending,
	}
}

// EffectiveStatus resolves the status the engine treats an issue as
// having. A pending downgrade overrides a registry file that still says
// Closed; once the file moves off Closed the file wins again.
func (s *Snapshot) EffectiveStatus(id string) (Status, bool) {
	is, ok := s.Issues.Get(id)
	if !ok {
		return "", false
	}
	if _, down := s.pending[id]; down && is.Status == StatusClosed {
		return StatusOpen, true
	}
	return is.Status, true
}

// Downgraded returns the pending downgrade reason for an issue, if any.
func (s *Snapshot) Downgraded(id string) (string, bool) {
	reason, ok := s.pending[id]
	return reason, ok
}

// LastRecorded returns the registry status the ledger last saw for an
// issue. The monotonicity check compares the current file against this,
// after applying any pending downgrade (which resets the baseline to
// Open).
func (s *Snapshot) LastRecorded(id string) (Status, bool) {
	st, ok := s.prior[id]
	return st, ok
}

// Digest is a hex SHA-256 over both store digests; identical corpus
// generations have identical snapshot digests.
func (s *Snapshot) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "claims:%s\nissues:%s\n", s.Claims.Digest(), s.Issues.Digest())
	return hex.EncodeToString(h.Sum(nil))
}
