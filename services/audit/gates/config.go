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
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the gate-config major version this build understands.
const SchemaVersion = "v1"

// DefaultTimeout applies to gates without their own timeout when the
// config does not set one.
const DefaultTimeout = 30 * time.Second

// maxWorkers caps parallelism regardless of configuration or CPU count.
const maxWorkers = 8

// ErrInvalidConfig tags every gate-configuration error. Callers classify
// these as configuration failures, not gate failures.
var ErrInvalidConfig = errors.New("invalid gate config")

// Kind names the gate families a config may declare.
type Kind string

const (
	KindBuiltin  Kind = "builtin"
	KindExec     Kind = "exec"
	KindArtifact Kind = "artifact"
)

// configValidate validates config structs; tags only, no custom rules.
var configValidate = validator.New()

// Duration decodes YAML durations written as strings ("30s", "2m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ArtifactExpect is the expectation block of an artifact gate. Zero
// fields are not checked.
type ArtifactExpect struct {
	MaxPages int    `yaml:"max_pages" validate:"gte=0"`
	Checksum string `yaml:"checksum"`
}

// GateSpec is one gate declaration.
type GateSpec struct {
	Name      string          `yaml:"name" validate:"required"`
	Kind      Kind            `yaml:"kind" validate:"required,oneof=builtin exec artifact"`
	Command   []string        `yaml:"command"`
	DependsOn []string        `yaml:"depends_on"`
	Timeout   Duration        `yaml:"timeout"`
	Path      string          `yaml:"path"`
	Expect    *ArtifactExpect `yaml:"expect"`
}

// Config is the gate-runner configuration file.
type Config struct {
	Version string     `yaml:"version" validate:"required"`
	Workers int        `yaml:"workers" validate:"gte=0,lte=64"`
	Timeout Duration   `yaml:"timeout"`
	Shuffle bool       `yaml:"shuffle"`
	Gates   []GateSpec `yaml:"gates" validate:"required,min=1,dive"`
}

// LoadConfig reads, decodes, and validates a gate config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gate config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates gate config bytes. Unknown keys are
// rejected; a misspelled field must not silently disable a gate.
func ParseConfig(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decoding yaml: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks structure and per-kind field requirements. Graph-level
// checks (unique names, resolvable dependencies, acyclicity) happen when
// the runner is built.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !semver.IsValid(c.Version) || semver.Major(c.Version) != SchemaVersion {
		return fmt.Errorf("%w: version %q, this build understands %s",
			ErrInvalidConfig, c.Version, SchemaVersion)
	}

	for i, spec := range c.Gates {
		switch spec.Kind {
		case KindBuiltin:
			if spec.Name != GateConsistency && spec.Name != GateClosure {
				return fmt.Errorf("%w: gate %d: no builtin gate named %q",
					ErrInvalidConfig, i, spec.Name)
			}
			if len(spec.Command) > 0 || spec.Path != "" || spec.Expect != nil {
				return fmt.Errorf("%w: gate %q: builtin gates take no command, path, or expect",
					ErrInvalidConfig, spec.Name)
			}
		case KindExec:
			if len(spec.Command) == 0 {
				return fmt.Errorf("%w: gate %q: exec gates need a command",
					ErrInvalidConfig, spec.Name)
			}
		case KindArtifact:
			if spec.Path == "" {
				return fmt.Errorf("%w: gate %q: artifact gates need a path",
					ErrInvalidConfig, spec.Name)
			}
			if spec.Expect == nil {
				return fmt.Errorf("%w: gate %q: artifact gates need an expect block",
					ErrInvalidConfig, spec.Name)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers > maxWorkers {
		c.Workers = maxWorkers
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
}
