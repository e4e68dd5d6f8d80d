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
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/graph"
)

const tracerName = "veridex/gates"

// Runner schedules gates in topological waves and executes each wave on
// a bounded errgroup. Construction validates the gate set; Run never
// returns an error for a failing gate, only for a canceled context
// upstream of all gates.
//
// Thread Safety: a Runner is immutable after construction and safe for
// concurrent Run calls; every call works on its own result state.
type Runner struct {
	gates          map[string]Gate
	waves          [][]string
	timeouts       map[string]time.Duration
	defaultTimeout time.Duration
	workers        int
	shuffle        bool
}

// Option adjusts runner construction.
type Option func(*Runner)

// WithWorkers bounds intra-wave parallelism. Values outside [1, 8] are
// clamped.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithDefaultTimeout sets the per-gate timeout applied when a gate has
// no specific one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) { r.defaultTimeout = d }
}

// WithGateTimeout overrides the timeout for one gate.
func WithGateTimeout(name string, d time.Duration) Option {
	return func(r *Runner) { r.timeouts[name] = d }
}

// WithShuffle randomizes intra-wave start order. Results must not
// depend on it; shuffle exists to prove that.
func WithShuffle(enabled bool) Option {
	return func(r *Runner) { r.shuffle = enabled }
}

// NewRunner validates the gate set (unique names, known dependencies,
// acyclic) and precomputes the wave schedule.
func NewRunner(list []Gate, opts ...Option) (*Runner, error) {
	r := &Runner{
		gates:          make(map[string]Gate, len(list)),
		timeouts:       make(map[string]time.Duration),
		defaultTimeout: DefaultTimeout,
		workers:        runtime.NumCPU(),
	}
	for _, g := range list {
		if _, dup := r.gates[g.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate gate name %q", ErrInvalidConfig, g.Name())
		}
		r.gates[g.Name()] = g
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.workers > maxWorkers {
		r.workers = maxWorkers
	}

	for name, g := range r.gates {
		for _, dep := range g.DependsOn() {
			if _, known := r.gates[dep]; !known {
				return nil, fmt.Errorf("%w: gate %q depends on unknown gate %q",
					ErrInvalidConfig, name, dep)
			}
		}
	}

	waves, err := planWaves(r.gates)
	if err != nil {
		return nil, err
	}
	r.waves = waves
	return r, nil
}

// FromConfig instantiates gates from a validated config and builds the
// runner. The graph must come from the snapshot Run will receive; the
// consistency gate closes over it.
func FromConfig(cfg *Config, g *graph.Graph) (*Runner, error) {
	list := make([]Gate, 0, len(cfg.Gates))
	opts := []Option{
		WithWorkers(cfg.Workers),
		WithDefaultTimeout(cfg.Timeout.Std()),
		WithShuffle(cfg.Shuffle),
	}

	for _, spec := range cfg.Gates {
		var gate Gate
		switch spec.Kind {
		case KindBuiltin:
			switch spec.Name {
			case GateConsistency:
				gate = NewConsistencyGate(g, spec.DependsOn...)
			case GateClosure:
				gate = NewClosureGate(spec.DependsOn...)
			default:
				return nil, fmt.Errorf("%w: no builtin gate named %q", ErrInvalidConfig, spec.Name)
			}
		case KindExec:
			eg, err := NewExecGate(spec.Name, spec.Command, spec.DependsOn...)
			if err != nil {
				return nil, err
			}
			gate = eg
		case KindArtifact:
			var expect ArtifactExpect
			if spec.Expect != nil {
				expect = *spec.Expect
			}
			gate = NewArtifactGate(spec.Name, spec.Path, expect, spec.DependsOn...)
		default:
			return nil, fmt.Errorf("%w: unknown gate kind %q", ErrInvalidConfig, spec.Kind)
		}
		list = append(list, gate)

		if spec.Timeout > 0 {
			opts = append(opts, WithGateTimeout(spec.Name, spec.Timeout.Std()))
		}
	}

	return NewRunner(list, opts...)
}

// planWaves layers the gates with Kahn's algorithm. Gates whose
// dependencies all sit in earlier waves share a wave; names within a
// wave are sorted so the schedule is reproducible.
func planWaves(gates map[string]Gate) ([][]string, error) {
	indegree := make(map[string]int, len(gates))
	dependents := make(map[string][]string, len(gates))
	for name, g := range gates {
		indegree[name] = len(g.DependsOn())
		for _, dep := range g.DependsOn() {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	var waves [][]string
	scheduled := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		wave := ready
		ready = nil
		scheduled += len(wave)
		for _, name := range wave {
			for _, next := range dependents[name] {
				indegree[next]--
				if indegree[next] == 0 {
					ready = append(ready, next)
				}
			}
		}
		waves = append(waves, wave)
	}

	if scheduled != len(gates) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: gate dependency cycle among %v", ErrInvalidConfig, stuck)
	}
	return waves, nil
}

// Run executes every gate and returns all results sorted by gate name.
//
// A gate failure is a Result, not an error. The only error Run returns
// is upstream context cancellation before or between waves; gates left
// unexecuted at that point are reported as canceled results alongside
// the error-free return path, so callers always see one Result per
// configured gate.
func (r *Runner) Run(ctx context.Context, snap *corpus.Snapshot) ([]Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gates.Run")
	defer span.End()

	done := make(map[string]Result, len(r.gates))

	for w, wave := range r.waves {
		if ctx.Err() != nil {
			r.cancelRemaining(done, r.waves[w:])
			break
		}

		names := wave
		if r.shuffle {
			names = append([]string(nil), wave...)
			rand.Shuffle(len(names), func(i, j int) {
				names[i], names[j] = names[j], names[i]
			})
		}

		// Dependency results visible to this wave; gates within a wave
		// are independent and never see each other.
		prior := make(map[string]Result, len(done))
		for name, res := range done {
			prior[name] = res
		}

		results := make([]Result, len(names))
		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(r.workers)
		for i, name := range names {
			i, gate := i, r.gates[name]
			grp.Go(func() error {
				results[i] = r.runOne(gctx, gate, snap, prior)
				return nil
			})
		}
		_ = grp.Wait()

		for _, res := range results {
			done[res.Name] = res
		}
	}

	out := make([]Result, 0, len(done))
	for _, res := range done {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	span.SetAttributes(
		attribute.Int("gates.count", len(out)),
		attribute.Int("gates.failed", len(Failed(out))),
		attribute.Bool("gates.overall_pass", OverallPass(out)),
	)
	return out, nil
}

// runOne wraps a single gate in its timeout. The gate runs on its own
// goroutine so a check that ignores its context still cannot stall the
// wave past the deadline.
func (r *Runner) runOne(ctx context.Context, gate Gate, snap *corpus.Snapshot, prior map[string]Result) Result {
	timeout := r.defaultTimeout
	if d, ok := r.timeouts[gate.Name()]; ok {
		timeout = d
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resCh := make(chan Result, 1)
	go func() {
		resCh <- gate.Run(gctx, snap, prior)
	}()

	var res Result
	select {
	case res = <-resCh:
	case <-gctx.Done():
		detail := "timeout"
		if !errors.Is(gctx.Err(), context.DeadlineExceeded) {
			detail = "canceled"
		}
		res = Result{Pass: false, Detail: detail}
	}

	res.Name = gate.Name()
	res.Duration = time.Since(start)
	return res
}

// cancelRemaining records a canceled result for every gate in the waves
// that never started.
func (r *Runner) cancelRemaining(done map[string]Result, waves [][]string) {
	for _, wave := range waves {
		for _, name := range wave {
			if _, ran := done[name]; !ran {
				done[name] = Result{Name: name, Pass: false, Detail: "canceled"}
			}
		}
	}
}
