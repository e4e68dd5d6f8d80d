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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
)

// BuildArtifact is the JSON shape an artifact gate reads, as emitted by
// the document build:
//
//	{"pages": 612, "checksum": "sha256:ab12..."}
type BuildArtifact struct {
	Pages    int    `json:"pages"`
	Checksum string `json:"checksum"`
}

// ArtifactGate compares a build artifact against configured
// expectations. It models the build-stability check: the page count must
// not drift past a ceiling and the content checksum must match the
// pinned one.
type ArtifactGate struct {
	name   string
	path   string
	expect ArtifactExpect
	deps   []string
}

// NewArtifactGate builds an artifact gate reading the JSON file at path.
func NewArtifactGate(name, path string, expect ArtifactExpect, deps ...string) *ArtifactGate {
	return &ArtifactGate{name: name, path: path, expect: expect, deps: deps}
}

func (g *ArtifactGate) Name() string        { return g.name }
func (g *ArtifactGate) DependsOn() []string { return g.deps }

func (g *ArtifactGate) Run(_ context.Context, _ *corpus.Snapshot, _ map[string]Result) Result {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return Result{Name: g.name, Pass: false, Detail: fmt.Sprintf("reading artifact: %v", err)}
	}

	var artifact BuildArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return Result{Name: g.name, Pass: false, Detail: fmt.Sprintf("decoding artifact: %v", err)}
	}

	var failures []string
	if g.expect.MaxPages > 0 && artifact.Pages > g.expect.MaxPages {
		failures = append(failures,
			fmt.Sprintf("pages %d exceed limit %d", artifact.Pages, g.expect.MaxPages))
	}
	if g.expect.Checksum != "" && artifact.Checksum != g.expect.Checksum {
		failures = append(failures,
			fmt.Sprintf("checksum %s does not match pinned %s", artifact.Checksum, g.expect.Checksum))
	}

	if len(failures) > 0 {
		return Result{Name: g.name, Pass: false, Detail: strings.Join(failures, "; ")}
	}
	return Result{
		Name:   g.name,
		Pass:   true,
		Detail: fmt.Sprintf("pages %d within limit, checksum stable", artifact.Pages),
	}
}
