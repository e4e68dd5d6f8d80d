// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger persists the append-only audit trail for a claim corpus.
//
// Description:
//
//	Every status transition, downgrade, checker verdict, and gate run is
//	written as a sequenced entry to BadgerDB with a CRC32 checksum. Entries
//	are never updated or deleted. Replaying the ledger reconstructs the
//	status history that the corpus layer needs to validate transitions, and
//	the most recent gate report can be recovered without re-running gates.
//
// Key format: "entry:{seq_num:016d}"
// Value format: [4-byte CRC32][gob-encoded entry]
package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/Veridex/services/audit/checker"
	"github.com/AleutianAI/Veridex/services/audit/corpus"
	"github.com/AleutianAI/Veridex/services/audit/gates"
	"github.com/AleutianAI/Veridex/services/audit/storage/badger"
	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/mod/semver"
)

const tracerName = "veridex/ledger"

// SchemaVersion is stamped into a fresh ledger and checked on every reopen.
// A major version bump means existing entries can no longer be decoded by
// this build.
const SchemaVersion = "v1"

const (
	entryKeyPrefix = "entry:"
	metaSchemaKey  = "meta:schema"
)

// -----------------------------------------------------------------------------
// Ledger Errors
// -----------------------------------------------------------------------------

var (
	// ErrClosed is returned when operations are called on a closed ledger.
	ErrClosed = errors.New("ledger is closed")

	// ErrCorruptEntry is returned when an entry fails its integrity check.
	ErrCorruptEntry = errors.New("ledger entry corrupted (CRC mismatch)")

	// ErrSequenceGap is returned when replay detects missing sequence numbers.
	ErrSequenceGap = errors.New("ledger sequence gap detected")

	// ErrNoReport is returned by LastReport when no gate run has been recorded.
	ErrNoReport = errors.New("no gate run recorded")

	// ErrSchemaMismatch is returned when an existing ledger was written by an
	// incompatible schema version.
	ErrSchemaMismatch = errors.New("ledger schema version mismatch")

	// ErrNilPayload is returned when attempting to append an entry without a
	// payload.
	ErrNilPayload = errors.New("entry payload must not be nil")
)

// -----------------------------------------------------------------------------
// Entries
// -----------------------------------------------------------------------------

// Kind discriminates the payload carried by a ledger entry.
type Kind string

const (
	// KindStatusTransition records an issue moving to a new status.
	KindStatusTransition Kind = "StatusTransition"

	// KindDowngrade records the sole legal backward move: a closed issue
	// reopened with a logged reason.
	KindDowngrade Kind = "Downgrade"

	// KindCheckerVerdict records the violations and advisories found by a
	// consistency check.
	KindCheckerVerdict Kind = "CheckerVerdict"

	// KindGateRun records a full gate run report.
	KindGateRun Kind = "GateRun"
)

// Entry is one immutable record in the audit trail.
type Entry struct {
	// Seq is assigned by Append. Strictly increasing with no gaps.
	Seq uint64

	// Timestamp is assigned by Append unless the caller sets it.
	Timestamp time.Time

	// RunID ties the entry to the engine run that produced it.
	RunID string

	// Kind names the concrete payload type.
	Kind Kind

	// Payload holds one of the payload structs below.
	Payload any
}

// StatusTransitionPayload records an issue status change. From is the
// transition baseline the change was validated against, which is Open when
// the issue carried an unconsumed downgrade.
type StatusTransitionPayload struct {
	IssueID string        `json:"issue_id"`
	From    corpus.Status `json:"from"`
	To      corpus.Status `json:"to"`
	Reason  string        `json:"reason,omitempty"`
}

// DowngradePayload records a closed issue being reopened. The downgrade
// stays pending until a later status transition for the same issue
// consumes it.
type DowngradePayload struct {
	IssueID  string   `json:"issue_id"`
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence,omitempty"`
}

// CheckerVerdictPayload records the outcome of a consistency check.
type CheckerVerdictPayload struct {
	Counts     map[checker.Kind]int
	Violations []checker.Violation
	Advisories []checker.Advisory
}

// GateRunPayload records the full report of a gate run.
type GateRunPayload struct {
	Report gates.Report
}

var payloadTypesRegistered sync.Once

func registerPayloadTypes() {
	payloadTypesRegistered.Do(func() {
		gob.Register(StatusTransitionPayload{})
		gob.Register(DowngradePayload{})
		gob.Register(CheckerVerdictPayload{})
		gob.Register(GateRunPayload{})
	})
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures ledger behavior.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent mode.
	Path string

	// InMemory uses in-memory BadgerDB (for testing).
	// Default: false.
	InMemory bool

	// SkipCorrupt continues replay past corrupted entries and sequence gaps.
	// Skipped entries are logged. Default: false (fail fast).
	SkipCorrupt bool

	// Logger for ledger operations.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the production configuration for a ledger rooted
// at path. Writes are synchronous; an audit trail that can lose its tail
// on a crash is not an audit trail.
func DefaultConfig(path string) Config {
	return Config{
		Path:   path,
		Logger: slog.Default(),
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		Logger:   slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent ledger")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Ledger
// -----------------------------------------------------------------------------

// Ledger is the append-only audit trail backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use. Appends are serialized so that
// sequence numbers are assigned without gaps even when a write fails.
type Ledger struct {
	store  *badger.Store
	logger *slog.Logger

	skipCorrupt bool

	// mu serializes Append and Close. seq holds the last durably written
	// sequence number and is only advanced after a successful write.
	mu     sync.Mutex
	seq    atomic.Uint64
	closed atomic.Bool
}

// Open opens or creates a ledger.
//
// Inputs:
//
//	cfg - Ledger configuration. Must pass Validate().
//
// Outputs:
//
//	*Ledger - Ready-to-use ledger, positioned after the last existing entry.
//	error - Non-nil if the store cannot be opened, the schema version is
//	        incompatible, or sequence recovery fails.
func Open(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	storeCfg := badger.Config{
		Path:       cfg.Path,
		InMemory:   cfg.InMemory,
		SyncWrites: !cfg.InMemory,
		Logger:     cfg.Logger,
	}
	store, err := badger.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}

	l := &Ledger{
		store:       store,
		logger:      cfg.Logger.With(slog.String("component", "ledger")),
		skipCorrupt: cfg.SkipCorrupt,
	}

	if err := l.initSchema(); err != nil {
		store.Close()
		return nil, err
	}
	if err := l.initSeq(); err != nil {
		store.Close()
		return nil, fmt.Errorf("recover sequence number: %w", err)
	}

	l.logger.Info("ledger opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Uint64("last_seq", l.seq.Load()))

	return l, nil
}

// initSchema stamps a fresh ledger with the current schema version, or
// verifies that an existing ledger is compatible with this build.
func (l *Ledger) initSchema() error {
	return l.store.WithTxn(context.Background(), func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(metaSchemaKey))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return txn.Set([]byte(metaSchemaKey), []byte(SchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		return item.Value(func(val []byte) error {
			if semver.Major(string(val)) != semver.Major(SchemaVersion) {
				return fmt.Errorf("%w: ledger has %s, this build writes %s",
					ErrSchemaMismatch, val, SchemaVersion)
			}
			return nil
		})
	})
}

// initSeq scans for the highest existing sequence number.
func (l *Ledger) initSeq() error {
	var maxSeq uint64

	err := l.store.WithReadTxn(context.Background(), func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last key with the entry prefix.
		seekKey := append([]byte(entryKeyPrefix), 0xFF)
		it.Seek(seekKey)

		if it.ValidForPrefix([]byte(entryKeyPrefix)) {
			key := it.Item().Key()
			seqStr := string(key[len(entryKeyPrefix):])
			var seq uint64
			if _, err := fmt.Sscanf(seqStr, "%016d", &seq); err == nil {
				maxSeq = seq
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.seq.Store(maxSeq)
	return nil
}

func entryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", entryKeyPrefix, seq))
}

// encodeEntry encodes an entry with a CRC32 checksum prefix.
func encodeEntry(e Entry) ([]byte, error) {
	registerPayloadTypes()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&e); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())

	result := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(result[:4], crc)
	copy(result[4:], buf.Bytes())

	return result, nil
}

// decodeEntry decodes an entry and validates its CRC32 checksum.
func decodeEntry(data []byte) (Entry, error) {
	if len(data) < 5 {
		return Entry{}, fmt.Errorf("%w: entry too short", ErrCorruptEntry)
	}

	storedCRC := binary.BigEndian.Uint32(data[:4])
	gobData := data[4:]
	computedCRC := crc32.ChecksumIEEE(gobData)

	if storedCRC != computedCRC {
		return Entry{}, fmt.Errorf("%w: stored=%08x computed=%08x",
			ErrCorruptEntry, storedCRC, computedCRC)
	}

	registerPayloadTypes()
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(gobData)).Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("gob decode: %w", err)
	}

	return e, nil
}

// Append writes an entry to the trail and returns its sequence number.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	e - Entry to persist. Seq is assigned here; Timestamp is assigned
//	    unless the caller set it. Kind and Payload are required.
//
// Outputs:
//
//	uint64 - The assigned sequence number.
//	error - Non-nil if encoding or the synchronous write fails. On error
//	        the sequence number is not consumed.
func (l *Ledger) Append(ctx context.Context, e Entry) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if e.Kind == "" {
		return 0, errors.New("entry kind must not be empty")
	}
	if e.Payload == nil {
		return 0, ErrNilPayload
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ledger.Append",
		trace.WithAttributes(
			attribute.String("entry.kind", string(e.Kind)),
			attribute.String("entry.run_id", e.RunID),
		),
	)
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.seq.Load() + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := encodeEntry(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return 0, fmt.Errorf("encode entry: %w", err)
	}

	err = l.store.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(entryKey(e.Seq), data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return 0, fmt.Errorf("write entry: %w", err)
	}

	l.seq.Store(e.Seq)

	span.SetAttributes(
		attribute.Int64("entry.seq", int64(e.Seq)),
		attribute.Int("entry.bytes", len(data)),
	)

	l.logger.Debug("entry appended",
		slog.Uint64("seq", e.Seq),
		slog.String("kind", string(e.Kind)),
		slog.Int("bytes", len(data)))

	return e.Seq, nil
}

// scan walks all entries in sequence order, validating continuity, and
// hands each decoded entry to fn. An error from fn aborts the walk.
func (l *Ledger) scan(ctx context.Context, fn func(Entry) error) error {
	if l.closed.Load() {
		return ErrClosed
	}

	prefix := []byte(entryKeyPrefix)
	var lastSeq uint64

	return l.store.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			key := item.Key()

			seqStr := string(key[len(prefix):])
			var seqNum uint64
			if _, err := fmt.Sscanf(seqStr, "%016d", &seqNum); err != nil {
				continue // skip malformed keys
			}

			if lastSeq > 0 && seqNum != lastSeq+1 {
				if !l.skipCorrupt {
					return fmt.Errorf("%w: expected %d, got %d",
						ErrSequenceGap, lastSeq+1, seqNum)
				}
				l.logger.Warn("sequence gap detected",
					slog.Uint64("expected", lastSeq+1),
					slog.Uint64("got", seqNum))
			}
			lastSeq = seqNum

			err := item.Value(func(val []byte) error {
				e, err := decodeEntry(val)
				if err != nil {
					if errors.Is(err, ErrCorruptEntry) && l.skipCorrupt {
						l.logger.Warn("skipping corrupted entry",
							slog.Uint64("seq", seqNum),
							slog.String("error", err.Error()))
						return nil
					}
					return fmt.Errorf("entry %d: %w", seqNum, err)
				}
				return fn(e)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Replay returns all entries in sequence order.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//
// Outputs:
//
//	[]Entry - Entries in order. Empty if the ledger is fresh.
//	error - Non-nil on read failure, corruption, or a sequence gap
//	        (unless SkipCorrupt).
func (l *Ledger) Replay(ctx context.Context) ([]Entry, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ledger.Replay")
	defer span.End()

	var entries []Entry
	err := l.scan(ctx, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
		return nil, fmt.Errorf("replay: %w", err)
	}

	span.SetAttributes(attribute.Int("entry_count", len(entries)))
	l.logger.Debug("replay completed", slog.Int("entry_count", len(entries)))
	return entries, nil
}

// IssueHistory folds the trail into the status history consumed by the
// corpus layer.
//
// Outputs:
//
//	prior - Last recorded status per issue.
//	pending - Downgrade reason per issue whose downgrade has not yet been
//	          consumed by a later status transition.
//	error - Non-nil on read failure, corruption, or a sequence gap.
func (l *Ledger) IssueHistory(ctx context.Context) (prior map[string]corpus.Status, pending map[string]string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ledger.IssueHistory")
	defer span.End()

	prior = make(map[string]corpus.Status)
	pending = make(map[string]string)

	err = l.scan(ctx, func(e Entry) error {
		switch p := e.Payload.(type) {
		case StatusTransitionPayload:
			prior[p.IssueID] = p.To
			delete(pending, p.IssueID)
		case DowngradePayload:
			pending[p.IssueID] = p.Reason
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fold failed")
		return nil, nil, fmt.Errorf("issue history: %w", err)
	}

	span.SetAttributes(
		attribute.Int("issues.recorded", len(prior)),
		attribute.Int("issues.pending_downgrade", len(pending)),
	)
	return prior, pending, nil
}

// LastReport returns the report of the most recent gate run.
//
// Outputs:
//
//	*gates.Report - The newest recorded report.
//	error - ErrNoReport if no gate run exists, otherwise a read or
//	        corruption error.
func (l *Ledger) LastReport(ctx context.Context) (*gates.Report, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ledger.LastReport")
	defer span.End()

	prefix := []byte(entryKeyPrefix)
	var report *gates.Report

	err := l.store.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append([]byte(entryKeyPrefix), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var found bool
			err := it.Item().Value(func(val []byte) error {
				e, err := decodeEntry(val)
				if err != nil {
					if errors.Is(err, ErrCorruptEntry) && l.skipCorrupt {
						return nil
					}
					return err
				}
				if e.Kind != KindGateRun {
					return nil
				}
				p, ok := e.Payload.(GateRunPayload)
				if !ok {
					return fmt.Errorf("entry %d: gate run payload has type %T", e.Seq, e.Payload)
				}
				report = &p.Report
				found = true
				return nil
			})
			if err != nil || found {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, fmt.Errorf("last report: %w", err)
	}
	if report == nil {
		return nil, ErrNoReport
	}

	span.SetAttributes(attribute.String("report.run_id", report.Meta.RunID))
	return report, nil
}

// Stats summarizes the trail without materializing it.
type Stats struct {
	// Entries is the total entry count.
	Entries int `json:"entries"`

	// FirstSeq and LastSeq bound the recorded sequence numbers.
	// Both are zero for a fresh ledger.
	FirstSeq uint64 `json:"first_seq"`
	LastSeq  uint64 `json:"last_seq"`

	// ByKind counts entries per kind.
	ByKind map[Kind]int `json:"by_kind"`

	// OldestAt and NewestAt bound the recorded timestamps.
	OldestAt time.Time `json:"oldest_at"`
	NewestAt time.Time `json:"newest_at"`
}

// Stats walks the trail and returns summary counts.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ledger.Stats")
	defer span.End()

	s := Stats{ByKind: make(map[Kind]int)}
	err := l.scan(ctx, func(e Entry) error {
		if s.Entries == 0 {
			s.FirstSeq = e.Seq
			s.OldestAt = e.Timestamp
		}
		s.Entries++
		s.LastSeq = e.Seq
		s.NewestAt = e.Timestamp
		s.ByKind[e.Kind]++
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}

	span.SetAttributes(attribute.Int("entry_count", s.Entries))
	return s, nil
}

// LastSeq returns the sequence number of the newest durable entry.
func (l *Ledger) LastSeq() uint64 {
	return l.seq.Load()
}

// Path returns the ledger directory, or "" for in-memory ledgers.
func (l *Ledger) Path() string {
	return l.store.Path()
}

// GC runs one round of value log garbage collection. Safe to call between
// runs in watch mode; a no-op for in-memory ledgers.
func (l *Ledger) GC(ratio float64) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.store.RunGC(ratio)
}

// Sync flushes pending writes to disk.
func (l *Ledger) Sync() error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.store.Sync()
}

// Close syncs and releases the underlying store. Idempotent.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Swap(true) {
		return nil
	}

	l.logger.Info("ledger closed", slog.Uint64("last_seq", l.seq.Load()))
	return l.store.Close()
}
