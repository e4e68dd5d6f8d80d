// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/Veridex/services/audit/gates"
)

// DefaultConfigFile is probed when --config is not given.
const DefaultConfigFile = "veridex.yaml"

// configValidate validates the root config; tags only.
var configValidate = validator.New()

// LogSettings configures the structured logger from the config file.
type LogSettings struct {
	// Level is debug, info, warn, or error. Empty means info.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// Dir enables an always-JSON dated log file when set.
	Dir string `yaml:"dir"`

	// JSON switches the stderr handler to JSON lines.
	JSON bool `yaml:"json"`
}

// Config is the root veridex.yaml file. Every field has a working
// default; flags override file values.
type Config struct {
	// Claims, Issues, and Gates locate the corpus and gate config.
	Claims string `yaml:"claims"`
	Issues string `yaml:"issues"`
	Gates  string `yaml:"gates"`

	// Ledger is the audit trail directory.
	Ledger string `yaml:"ledger"`

	// Workers and GateTimeout override the gate config when set.
	Workers     int            `yaml:"workers" validate:"gte=0,lte=64"`
	GateTimeout gates.Duration `yaml:"gate_timeout"`

	Log LogSettings `yaml:"log"`
}

// DefaultConfig returns the configuration used when no veridex.yaml
// exists.
func DefaultConfig() Config {
	return Config{
		Claims: "claims.txt",
		Issues: "issues.txt",
		Gates:  "gates.yaml",
		Ledger: ".veridex/ledger",
		Log:    LogSettings{Level: "info"},
	}
}

// LoadConfig reads and validates a root config file. Missing keys keep
// their defaults; unknown keys are rejected so a typo cannot silently
// drop a setting.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := configValidate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig loads the file named by --config, or the default file
// when present, or falls back to defaults.
func resolveConfig(explicitPath string) (Config, error) {
	if explicitPath != "" {
		return LoadConfig(explicitPath)
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return LoadConfig(DefaultConfigFile)
	}
	return DefaultConfig(), nil
}

// pick returns the flag value when set, else the config value.
func pick(flag, fromConfig string) string {
	if flag != "" {
		return flag
	}
	return fromConfig
}
