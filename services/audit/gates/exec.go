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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
)

// maxDetailBytes bounds the command output kept in a Result. Reports are
// stored in the ledger; a chatty script must not bloat every entry.
const maxDetailBytes = 2048

// ExecGate runs an external command and passes iff it exits zero. It
// models checks maintained outside the audit engine (notation scripts,
// canon checkers) consumed as black boxes.
type ExecGate struct {
	name string
	argv []string
	deps []string
	dir  string
}

// NewExecGate builds an exec gate from a non-empty argv.
func NewExecGate(name string, argv []string, deps ...string) (*ExecGate, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: gate %q: exec gates need a command", ErrInvalidConfig, name)
	}
	return &ExecGate{name: name, argv: argv, deps: deps}, nil
}

// WithDir sets the command's working directory.
func (g *ExecGate) WithDir(dir string) *ExecGate {
	g.dir = dir
	return g
}

func (g *ExecGate) Name() string        { return g.name }
func (g *ExecGate) DependsOn() []string { return g.deps }

func (g *ExecGate) Run(ctx context.Context, _ *corpus.Snapshot, _ map[string]Result) Result {
	cmd := exec.CommandContext(ctx, g.argv[0], g.argv[1:]...)
	if g.dir != "" {
		cmd.Dir = g.dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return Result{Name: g.name, Pass: false, Detail: "timeout"}
	}

	detail := tailOf(stdout.String(), stderr.String())
	if err != nil {
		if detail == "" {
			detail = err.Error()
		}
		return Result{Name: g.name, Pass: false, Detail: detail}
	}
	if detail == "" {
		detail = "exit 0"
	}
	return Result{Name: g.name, Pass: true, Detail: detail}
}

// tailOf joins and trims the captured streams, keeping the final
// maxDetailBytes. The tail carries the verdict for most checkers; the
// head is preamble.
func tailOf(stdout, stderr string) string {
	combined := strings.TrimSpace(stdout)
	if s := strings.TrimSpace(stderr); s != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += s
	}
	if len(combined) > maxDetailBytes {
		combined = "..." + combined[len(combined)-maxDetailBytes:]
	}
	return combined
}
