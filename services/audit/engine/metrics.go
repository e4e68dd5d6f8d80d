// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/gates"
)

// =============================================================================
// Prometheus Metrics for Audit Runs
// =============================================================================

// metricSet is one run's metrics on a private registry. Runs are batch
// processes snapshotting to a textfile, so nothing registers globally
// and repeated runs in one process (watch mode, tests) never collide.
type metricSet struct {
	registry *prometheus.Registry

	// claims gauges corpus claims by epistemic tag.
	// Labels: tag
	claims *prometheus.GaugeVec

	// issues gauges issues by effective status and category.
	// Labels: status, category
	issues *prometheus.GaugeVec

	// violations gauges consistency findings by kind. Every kind is
	// published, zero-filled, so dashboards see stable series.
	// Labels: kind
	violations *prometheus.GaugeVec

	// gateFailures gauges how many gates failed this run.
	gateFailures prometheus.Gauge

	// gateDuration records per-gate wall time.
	// Labels: gate
	gateDuration *prometheus.HistogramVec

	// overallPass is 1 when every gate passed, else 0.
	overallPass prometheus.Gauge

	// entriesAppended gauges ledger entries written by this run.
	entriesAppended prometheus.Gauge
}

func newMetricSet() *metricSet {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &metricSet{
		registry: registry,

		claims: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "veridex",
			Subsystem: "audit",
			Name:      "claims",
			Help:      "Corpus claims by epistemic tag",
		}, []string{"tag"}),

		issues: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "veridex",
			Subsystem: "audit",
			Name:      "issues",
			Help:      "Issues by effective status and category",
		}, []string{"status", "category"}),

		violations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "veridex",
			Subsystem: "audit",
			Name:      "violations",
			Help:      "Consistency violations by kind",
		}, []string{"kind"}),

		gateFailures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "veridex",
			Subsystem: "audit",
			Name:      "gate_failures",
			Help:      "Gates that failed in this run",
		}),

		gateDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "veridex",
			Subsystem: "audit",
			Name:      "gate_duration_seconds",
			Help:      "Per-gate execution time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"gate"}),

		overallPass: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "veridex",
			Subsystem: "audit",
			Name:      "overall_pass",
			Help:      "1 when every gate passed, else 0",
		}),

		entriesAppended: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "veridex",
			Subsystem: "audit",
			Name:      "ledger_entries_appended",
			Help:      "Ledger entries written by this run",
		}),
	}
}

// observe fills the set from one completed run.
func (m *metricSet) observe(snap *corpus.Snapshot, report *gates.Report, verdict *checker.Verdict, appended int) {
	tagCounts := make(map[corpus.Tag]int)
	for _, c := range snap.Claims.All() {
		tagCounts[c.Tag]++
	}
	for tag, n := range tagCounts {
		m.claims.WithLabelValues(string(tag)).Set(float64(n))
	}

	type issueKey struct {
		status   corpus.Status
		category corpus.Category
	}
	issueCounts := make(map[issueKey]int)
	for _, is := range snap.Issues.All() {
		status := is.Status
		if eff, ok := snap.EffectiveStatus(is.ID); ok {
			status = eff
		}
		issueCounts[issueKey{status, is.Category}]++
	}
	for k, n := range issueCounts {
		m.issues.WithLabelValues(string(k.status), string(k.category)).Set(float64(n))
	}

	for _, kind := range checker.Kinds() {
		m.violations.WithLabelValues(string(kind)).Set(0)
	}
	if verdict != nil {
		for kind, n := range checker.CountByKind(verdict.Violations) {
			m.violations.WithLabelValues(string(kind)).Set(float64(n))
		}
	}

	m.gateFailures.Set(float64(len(gates.Failed(report.Body.Gates))))
	for gate, d := range report.Meta.GateDurations {
		m.gateDuration.WithLabelValues(gate).Observe(d.Seconds())
	}

	if report.Body.OverallPass {
		m.overallPass.Set(1)
	} else {
		m.overallPass.Set(0)
	}
	m.entriesAppended.Set(float64(appended))
}

// writeTextfile renders the registry in the node-exporter textfile
// format. The snapshot lands in a temp file first and is renamed into
// place so a collector never reads a half-written file.
func (m *metricSet) writeTextfile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encoding metrics: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing metrics file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing metrics file: %w", err)
	}
	return nil
}

// writeMetrics snapshots one run to a Prometheus textfile.
func writeMetrics(path string, snap *corpus.Snapshot, report *gates.Report, verdict *checker.Verdict, appended int) error {
	m := newMetricSet()
	m.observe(snap, report, verdict, appended)
	return m.writeTextfile(path)
}
