// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus holds the Claim Store and the Issue Registry: the two
// record stores an audit run is built from.
//
// Claims carry an epistemic tag from a closed enumeration and a declared
// dependency set. Issues (open problem reports, "OPRs") carry a lifecycle
// status, the set of claims they block, and the evidence bookkeeping used
// by the consistency checker. Both are parsed from a line-oriented block
// format with strict enum and reference validation; nothing is ever
// defaulted or silently dropped.
//
// Records are immutable within a snapshot. A new corpus snapshot produces a
// new generation of records; the only mutation that survives across runs is
// an issue downgrade, and that lives in the audit ledger, not here.
//
// # Thread Safety
//
// ClaimSet, IssueSet, and Snapshot are immutable after construction and
// safe for concurrent readers.
package corpus
