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
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WatchOptions configures continuous auditing.
type WatchOptions struct {
	// Run is the per-run configuration. Claims, issues, and gates paths
	// are required; the watcher covers their parent directories because
	// most editors replace files on save instead of writing in place.
	Run Options

	// Debounce is how long the corpus must stay quiet before a re-run.
	// Default: 250ms.
	Debounce time.Duration

	// MinInterval bounds re-run frequency regardless of event volume.
	// Default: 2s.
	MinInterval time.Duration

	// OnRun, when set, receives every completed run, including runs that
	// failed to complete. Called from a single goroutine.
	OnRun func(*Outcome, error)
}

const (
	defaultDebounce    = 250 * time.Millisecond
	defaultMinInterval = 2 * time.Second

	// Value log space reclaimed between runs when at least half a file
	// is garbage.
	watchGCRatio = 0.5
)

// Watch runs the audit pipeline once, then re-runs it whenever a corpus
// or gate-config file changes.
//
// Inputs:
//
//	ctx - Context for shutdown. Cancellation stops watching cleanly.
//	opts - Watch configuration.
//
// Outputs:
//
//	error - Non-nil only for setup failures (watcher creation, missing
//	        directories, ledger open). Run failures are reported through
//	        OnRun and never stop the watch; cancellation returns nil.
//
// One ledger stays open across all runs so downgrades and prior statuses
// recorded by an earlier run are visible to later ones.
func Watch(ctx context.Context, opts WatchOptions) error {
	base := opts.Run.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := base.With(slog.String("component", "watch"))

	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaultMinInterval
	}

	runOpts := opts.Run
	led, ownLedger, err := openLedger(runOpts, base)
	if err != nil {
		return err
	}
	if ownLedger {
		defer led.Close()
	}
	runOpts.Ledger = led

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := watchSet(runOpts.ClaimsPath, runOpts.IssuesPath, runOpts.GatesPath)
	for _, dir := range watchDirs(watched) {
		if err := watcher.Add(dir); err != nil {
			return err
		}
		logger.Debug("watching directory", slog.String("dir", dir))
	}

	changes := make(chan string, 64)
	limiter := rate.NewLimiter(rate.Every(opts.MinInterval), 1)

	g, ctx := errgroup.WithContext(ctx)

	// Event pump: forward events on the audited files, drop the rest.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if _, hit := watched[filepath.Clean(event.Name)]; !hit {
					continue
				}
				select {
				case changes <- event.Name:
				default:
					// Buffer full; the pending re-run covers this change.
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	})

	// Run loop: initial run, then debounced re-runs.
	g.Go(func() error {
		runOnce := func(trigger string) {
			if err := limiter.Wait(ctx); err != nil {
				return // Canceled while waiting.
			}
			outcome, err := Run(ctx, runOpts)
			if err != nil {
				logger.Error("audit run failed",
					slog.String("trigger", trigger),
					slog.String("error", err.Error()))
			}
			if opts.OnRun != nil {
				opts.OnRun(outcome, err)
			}
			if gcErr := led.GC(watchGCRatio); gcErr != nil {
				logger.Debug("ledger gc skipped", slog.String("reason", gcErr.Error()))
			}
		}

		runOnce("initial")

		var timer *time.Timer
		var timerC <-chan time.Time
		var pending string

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return nil
			case path := <-changes:
				pending = path
				if timer == nil {
					timer = time.NewTimer(opts.Debounce)
					timerC = timer.C
				} else {
					timer.Reset(opts.Debounce)
				}
			case <-timerC:
				timer = nil
				timerC = nil
				logger.Info("corpus changed, re-running audit",
					slog.String("path", pending))
				runOnce(pending)
			}
		}
	})

	return g.Wait()
}

// watchSet maps each cleaned input path to itself for event filtering.
func watchSet(paths ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		set[filepath.Clean(p)] = struct{}{}
	}
	return set
}

// watchDirs returns the deduplicated parent directories of the watched
// files.
func watchDirs(watched map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(watched))
	var dirs []string
	for p := range watched {
		dir := filepath.Dir(p)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}
