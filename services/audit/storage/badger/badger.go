// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages the BadgerDB instance backing the
// audit ledger.
//
// The ledger is append-only run history; losing it is losing the audit
// trail, so persistent stores default to synchronous writes. In-memory
// mode exists for tests only.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Config holds the settings for one ledger store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is set; created if absent.
	Path string

	// InMemory keeps everything in RAM. Test use only; an in-memory
	// ledger is not an audit trail.
	InMemory bool

	// SyncWrites forces every write to disk before the append returns.
	// Must stay true for real ledgers; the engine refuses to report
	// success on an unflushed write.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns the production configuration: durable writes,
// single version per key.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns the test configuration.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// storeLogger adapts slog.Logger to BadgerDB's Logger interface.
type storeLogger struct {
	logger *slog.Logger
}

func (l *storeLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *storeLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store wraps the BadgerDB handle with transaction helpers.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	*badger.DB
	path     string
	inMemory bool
}

// Open opens the store, creating the directory for persistent
// configurations.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent ledger store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&storeLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}

	return &Store{DB: db, path: cfg.Path, inMemory: cfg.InMemory}, nil
}

// Path returns the store directory, empty for in-memory stores.
func (s *Store) Path() string { return s.path }

// InMemory reports whether the store lives in RAM.
func (s *Store) InMemory() bool { return s.inMemory }

// Sync flushes pending writes. No-op in memory.
func (s *Store) Sync() error {
	if s.inMemory {
		return nil
	}
	return s.DB.Sync()
}

// WithTxn runs fn inside a read-write transaction and commits when fn
// returns nil. The transaction is discarded on error.
func (s *Store) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn inside a read-only transaction.
func (s *Store) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// RunGC triggers one value-log garbage collection pass. Long-lived
// processes (watch mode) call this between runs; a no-rewrite outcome
// is normal and not an error.
func (s *Store) RunGC(ratio float64) error {
	if s.inMemory {
		return nil
	}
	err := s.DB.RunValueLogGC(ratio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("ledger store gc: %w", err)
	}
	return nil
}
