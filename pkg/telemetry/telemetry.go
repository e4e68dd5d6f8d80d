// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry bootstraps OpenTelemetry tracing for Veridex.
//
// Be opinionated about the API, flexible about the backend: OpenTelemetry
// IS the abstraction layer. Components create spans through otel.Tracer()
// directly and never see this package; Init only installs the provider.
// When Init is never called, or the exporter is "none", those spans are
// no-ops with negligible overhead, so an audit run without --trace pays
// nothing for the instrumentation.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Exporter = "file"
//	cfg.TracePath = tracePath
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
//	// Now otel.Tracer() is configured
//	tracer := otel.Tracer("veridex/engine")
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: stdout, file, or none (default: none)
//   - VERIDEX_ENV: environment name (default: development)
//
// # Thread Safety
//
// Call Init once at process startup, before any goroutine creates spans.
// The installed provider is safe for concurrent use.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext is returned when Init is called with a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter is returned for an unrecognized exporter name.
	ErrUnknownExporter = errors.New("unknown trace exporter")
)

// Config controls tracing behavior.
//
// All fields have sensible defaults via DefaultConfig().
type Config struct {
	// ServiceName identifies this process in exported spans.
	ServiceName string `json:"service_name"`

	// ServiceVersion is the version string for this service.
	ServiceVersion string `json:"service_version"`

	// Environment identifies the deployment environment (development, ci).
	Environment string `json:"environment"`

	// Exporter selects the span exporter: "stdout", "file", or "none".
	Exporter string `json:"exporter"`

	// TracePath is the destination file for the "file" exporter.
	// Each Init truncates the file so one file holds one process's spans.
	TracePath string `json:"trace_path"`
}

// DefaultConfig returns opinionated defaults for CLI usage: tracing is
// off until a flag or environment variable turns it on.
//
// Environment variables override defaults where applicable:
//   - VERIDEX_ENV: environment name
//   - OTEL_TRACES_EXPORTER: exporter type
func DefaultConfig() Config {
	return Config{
		ServiceName:    "veridex",
		ServiceVersion: "1.0.0",
		Environment:    getEnvOr("VERIDEX_ENV", "development"),
		Exporter:       getEnvOr("OTEL_TRACES_EXPORTER", "none"),
	}
}

// Init installs a TracerProvider built from the configuration.
//
// Description:
//
//	Sets up the OpenTelemetry TracerProvider based on cfg. After Init
//	returns successfully, otel.Tracer() hands out recording tracers
//	everywhere in the process. With Exporter "none", Init installs
//	nothing and the returned shutdown is a no-op.
//
// Inputs:
//
//	ctx - Context for initialization.
//	cfg - Tracing configuration. Use DefaultConfig() for sensible defaults.
//
// Outputs:
//
//	shutdown - Function to call on exit; flushes buffered spans. Must be called.
//	error - Non-nil if the exporter cannot be constructed.
//
// Example:
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// Thread Safety: Call once at process startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	if cfg.Exporter == "none" || cfg.Exporter == "" {
		return func(context.Context) error { return nil }, nil
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %v", errs)
		}
		return nil
	}

	// Service identity attached to every exported span
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	exporter, cleanup, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Batcher flushes on Shutdown, so short CLI runs lose nothing.
	// Audit runs are rare and cheap to trace; sample everything.
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	if cleanup != nil {
		// File close must run after the provider has flushed into it
		shutdownFuncs = append(shutdownFuncs, cleanup)
	}

	return shutdown, nil
}

// newExporter constructs the span exporter named by cfg.Exporter.
// The second return value closes resources the exporter writes to and
// may be nil.
func newExporter(cfg Config) (trace.SpanExporter, func(context.Context) error, error) {
	switch cfg.Exporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exporter, nil, nil

	case "file":
		if cfg.TracePath == "" {
			return nil, nil, errors.New("trace path is required for the file exporter")
		}
		file, err := os.OpenFile(cfg.TracePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		// JSON lines without pretty print; the file is for tooling
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("create file exporter: %w", err)
		}
		return exporter, func(context.Context) error { return file.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
}

// getEnvOr returns the environment variable value or the fallback.
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
