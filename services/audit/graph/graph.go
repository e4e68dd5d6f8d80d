// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds the dependency graph over one corpus snapshot.
//
// Nodes are the union of claim ids and issue ids. Edges carry a kind:
// EdgeDependsOn for every claim depends_on entry (claim to claim, claim to
// issue) and EdgeBlocks for every issue blocks entry (issue to claim). The
// builder is a pure data transformation; every business rule lives in the
// checker so graph algorithms stay testable independent of file formats.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
)

// Structural errors. These indicate the caller skipped reference
// validation, not a corpus inconsistency.
var (
	ErrNilStore        = errors.New("nil claim or issue store")
	ErrNodeCollision   = errors.New("id present as both claim and issue")
	ErrUnknownEndpoint = errors.New("edge endpoint not in node set")
)

// NodeKind distinguishes claim nodes from issue nodes.
type NodeKind int

const (
	// NodeClaim is a claim-backed node.
	NodeClaim NodeKind = iota

	// NodeIssue is an issue-backed node.
	NodeIssue
)

// String returns "claim" or "issue".
func (k NodeKind) String() string {
	switch k {
	case NodeClaim:
		return "claim"
	case NodeIssue:
		return "issue"
	default:
		return "unknown"
	}
}

// EdgeKind distinguishes derivation edges from gating edges.
type EdgeKind int

const (
	// EdgeDependsOn is a derivation edge: From rests on To.
	EdgeDependsOn EdgeKind = iota

	// EdgeBlocks is a gating edge: issue From gates claim To. Gating
	// edges never participate in cycle detection; a blocked claim that
	// conditions on its blocker is the normal shape.
	EdgeBlocks
)

// String returns "depends_on" or "blocks".
func (k EdgeKind) String() string {
	switch k {
	case EdgeDependsOn:
		return "depends_on"
	case EdgeBlocks:
		return "blocks"
	default:
		return "unknown"
	}
}

// Edge is one directed, kinded edge.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Graph is the immutable dependency graph for one snapshot.
//
// Thread Safety: immutable after Build; safe for concurrent readers.
type Graph struct {
	kinds map[string]NodeKind
	out   map[string][]Edge
	in    map[string][]Edge

	nodeCount int
	edgeCount int
}

// Build constructs the graph from the two stores.
//
// Description:
//
//	Adds one node per claim and per issue, one EdgeDependsOn per claim
//	depends_on entry, and one EdgeBlocks per issue blocks entry. Assumes
//	reference validation already ran; unknown endpoints or id collisions
//	come back as structural errors, never silently dropped edges.
func Build(claims *corpus.ClaimSet, issues *corpus.IssueSet) (*Graph, error) {
	if claims == nil || issues == nil {
		return nil, ErrNilStore
	}

	g := &Graph{
		kinds: make(map[string]NodeKind, claims.Len()+issues.Len()),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}

	for _, id := range claims.IDs() {
		g.kinds[id] = NodeClaim
	}
	for _, id := range issues.IDs() {
		if _, exists := g.kinds[id]; exists {
			return nil, fmt.Errorf("%w: %q", ErrNodeCollision, id)
		}
		g.kinds[id] = NodeIssue
	}
	g.nodeCount = len(g.kinds)

	addEdge := func(from, to string, kind EdgeKind) error {
		if _, ok := g.kinds[from]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEndpoint, from)
		}
		if _, ok := g.kinds[to]; !ok {
			return fmt.Errorf("%w: %q (edge from %q)", ErrUnknownEndpoint, to, from)
		}
		e := Edge{From: from, To: to, Kind: kind}
		g.out[from] = append(g.out[from], e)
		g.in[to] = append(g.in[to], e)
		g.edgeCount++
		return nil
	}

	for _, c := range claims.All() {
		for _, dep := range c.DependsOn {
			if err := addEdge(c.ID, dep, EdgeDependsOn); err != nil {
				return nil, err
			}
		}
	}
	for _, is := range issues.All() {
		for _, blocked := range is.Blocks {
			if err := addEdge(is.ID, blocked, EdgeBlocks); err != nil {
				return nil, err
			}
		}
	}

	// Deterministic neighbor order regardless of record order.
	for id := range g.out {
		sort.Slice(g.out[id], func(i, j int) bool {
			a, b := g.out[id][i], g.out[id][j]
			if a.Kind != b.Kind {
				return a.Kind < b.Kind
			}
			return a.To < b.To
		})
	}
	for id := range g.in {
		sort.Slice(g.in[id], func(i, j int) bool {
			a, b := g.in[id][i], g.in[id][j]
			if a.Kind != b.Kind {
				return a.Kind < b.Kind
			}
			return a.From < b.From
		})
	}

	return g, nil
}

// Kind returns the node kind for an id.
func (g *Graph) Kind(id string) (NodeKind, bool) {
	k, ok := g.kinds[id]
	return k, ok
}

// Has reports whether the id is a node.
func (g *Graph) Has(id string) bool {
	_, ok := g.kinds[id]
	return ok
}

// Nodes returns every node id in sorted order.
func (g *Graph) Nodes() []string {
	ids := make([]string, 0, len(g.kinds))
	for id := range g.kinds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return g.nodeCount
}

// EdgeCount returns the number of edges across both kinds.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// Out returns a copy of the outgoing edges of id, sorted.
func (g *Graph) Out(id string) []Edge {
	return append([]Edge(nil), g.out[id]...)
}

// In returns a copy of the incoming edges of id, sorted.
func (g *Graph) In(id string) []Edge {
	return append([]Edge(nil), g.in[id]...)
}

// DependenciesOf returns the ids this node rests on: targets of its
// outgoing EdgeDependsOn edges, sorted.
func (g *Graph) DependenciesOf(id string) []string {
	var out []string
	for _, e := range g.out[id] {
		if e.Kind == EdgeDependsOn {
			out = append(out, e.To)
		}
	}
	return out
}

// DependentsOf returns the ids that rest on this node: sources of its
// incoming EdgeDependsOn edges, sorted. This is the traversal the
// smuggling check fans out over.
func (g *Graph) DependentsOf(id string) []string {
	var out []string
	for _, e := range g.in[id] {
		if e.Kind == EdgeDependsOn {
			out = append(out, e.From)
		}
	}
	return out
}

// BlockedBy returns the claim ids gated by an issue: targets of its
// outgoing EdgeBlocks edges, sorted.
func (g *Graph) BlockedBy(id string) []string {
	var out []string
	for _, e := range g.out[id] {
		if e.Kind == EdgeBlocks {
			out = append(out, e.To)
		}
	}
	return out
}
