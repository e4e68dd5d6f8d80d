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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/corpus"
)

// Report is the aggregated outcome of one audit run.
//
// The split matters: Body is canonical and fully determined by the
// corpus and the gate outcomes, so two runs over an unchanged snapshot
// produce byte-identical bodies and equal digests. Meta carries the
// per-run incidentals (run id, wall-clock times, gate durations) that
// legitimately differ between runs.
type Report struct {
	Meta Meta `json:"meta"`
	Body Body `json:"body"`
}

// Meta identifies one run. Nothing in Meta participates in report
// comparison.
type Meta struct {
	RunID         string                   `json:"run_id"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    time.Time                `json:"finished_at"`
	GateDurations map[string]time.Duration `json:"gate_durations,omitempty"`
}

// Body is the canonical run outcome: corpus identity, effective issue
// statuses, and per-gate results sorted by name with durations zeroed.
type Body struct {
	ClaimsDigest string                   `json:"claims_digest"`
	IssuesDigest string                   `json:"issues_digest"`
	Claims       int                      `json:"claims"`
	Issues       int                      `json:"issues"`
	Statuses     map[string]corpus.Status `json:"statuses,omitempty"`
	Gates        []Result                 `json:"gates"`
	OverallPass  bool                     `json:"overall_pass"`
}

// NewReport assembles a report from a snapshot and the runner's results.
func NewReport(snap *corpus.Snapshot, results []Result, startedAt, finishedAt time.Time) *Report {
	durations := make(map[string]time.Duration, len(results))
	bodyGates := make([]Result, len(results))
	copy(bodyGates, results)
	sort.Slice(bodyGates, func(i, j int) bool { return bodyGates[i].Name < bodyGates[j].Name })
	for i := range bodyGates {
		durations[bodyGates[i].Name] = bodyGates[i].Duration
		bodyGates[i].Duration = 0
	}

	statuses := make(map[string]corpus.Status, snap.Issues.Len())
	for _, is := range snap.Issues.All() {
		if status, ok := snap.EffectiveStatus(is.ID); ok {
			statuses[is.ID] = status
		}
	}

	return &Report{
		Meta: Meta{
			RunID:         uuid.NewString(),
			StartedAt:     startedAt,
			FinishedAt:    finishedAt,
			GateDurations: durations,
		},
		Body: Body{
			ClaimsDigest: snap.Claims.Digest(),
			IssuesDigest: snap.Issues.Digest(),
			Claims:       snap.Claims.Len(),
			Issues:       snap.Issues.Len(),
			Statuses:     statuses,
			Gates:        bodyGates,
			OverallPass:  OverallPass(results),
		},
	}
}

// Canonical renders the body as canonical JSON. encoding/json emits
// struct fields in declaration order and map keys sorted, which is the
// determinism the digest relies on. A nil gate list renders the same as
// an empty one so a body decoded from the ledger digests like a fresh
// one.
func (b *Body) Canonical() ([]byte, error) {
	c := *b
	if c.Gates == nil {
		c.Gates = []Result{}
	}
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("encoding report body: %w", err)
	}
	return data, nil
}

// Digest is the hex SHA-256 of the canonical body.
func (b *Body) Digest() (string, error) {
	data, err := b.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ConsistencyVerdict pulls the checker verdict out of the consistency
// gate's result, or nil if that gate did not run.
func (r *Report) ConsistencyVerdict() *checker.Verdict {
	for _, res := range r.Body.Gates {
		if res.Name == GateConsistency {
			return res.Verdict
		}
	}
	return nil
}
