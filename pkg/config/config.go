// Lumino Core
// Copyright (c) 2026 The Lumino Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Lumino Core.
//
// Lumino Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Lumino Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Lumino Core.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads, validates and persists the service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LuminoProject/lumino-core/pkg/ddc"
	"github.com/LuminoProject/lumino-core/pkg/helpers/syncutil"
	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "LUMINO_CFG"
	CfgFile       = "config.toml"
	SettingsFile  = "displays.toml"
	appDirName    = "lumino"
)

// Values is the on-disk configuration shape.
type Values struct {
	DDC          DDC         `toml:"ddc,omitempty"`
	Coordinator  Coordinator `toml:"coordinator,omitempty"`
	ConfigSchema int         `toml:"config_schema"`
	DebugLogging bool        `toml:"debug_logging"`
}

// DDC configures the protocol retry policy. The defaults are hardware
// minimums; lowering them below the defaults tends to produce displays
// that answer with garbage.
type DDC struct {
	Retries           int `toml:"retries" validate:"gte=0,lte=10"`
	WriteCycles       int `toml:"write_cycles" validate:"gte=1,lte=5"`
	InterWriteDelayMS int `toml:"inter_write_delay_ms" validate:"gte=0,lte=1000"`
	SettleDelayMS     int `toml:"settle_delay_ms" validate:"gte=0,lte=1000"`
	BackoffBaseMS     int `toml:"backoff_base_ms" validate:"gte=0,lte=5000"`
	AttemptTimeoutMS  int `toml:"attempt_timeout_ms" validate:"gte=0,lte=10000"`
}

// Coordinator configures per-display command pacing and failure policy.
type Coordinator struct {
	MinSpacingMS     int `toml:"min_spacing_ms" validate:"gte=0,lte=5000"`
	FailureThreshold int `toml:"failure_threshold" validate:"gte=1,lte=100"`
	DebounceMS       int `toml:"save_debounce_ms" validate:"gte=0,lte=60000"`
}

// Defaults returns the stock configuration.
func Defaults() Values {
	return Values{
		ConfigSchema: SchemaVersion,
		DDC: DDC{
			Retries:           3,
			WriteCycles:       2,
			InterWriteDelayMS: 10,
			SettleDelayMS:     50,
			BackoffBaseMS:     40,
			AttemptTimeoutMS:  200,
		},
		Coordinator: Coordinator{
			MinSpacingMS:     50,
			FailureThreshold: 3,
			DebounceMS:       500,
		},
	}
}

// Instance is a live configuration with guarded accessors.
type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// DataDir returns the per-user data directory for settings and logs.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appDirName)
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appDirName)
}

// NewConfig loads the config file from configDir, creating it with
// defaults on first run. The LUMINO_CFG env var overrides the path.
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		if err := os.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewInstance creates an in-memory Instance with no backing file, for
// embedding contexts and tests. Load and Save return errors on it.
func NewInstance(vals Values) *Instance {
	return &Instance{vals: vals, defaults: vals}
}

// Load reads and validates the config file.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return fmt.Errorf("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	vals := c.defaults
	if err := toml.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := validator.New().Struct(&vals); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.vals = vals
	return nil
}

// Save writes the current values to the config file.
func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return fmt.Errorf("config path not set")
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DebugLogging reports whether debug logging is enabled.
func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

// SetDebugLogging toggles debug logging.
func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

// RetryPolicy converts the DDC section to the protocol retry policy.
func (c *Instance) RetryPolicy() ddc.RetryPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := ddc.DefaultRetryPolicy()
	p.Retries = c.vals.DDC.Retries
	p.WriteCycles = c.vals.DDC.WriteCycles
	p.InterWriteDelay = time.Duration(c.vals.DDC.InterWriteDelayMS) * time.Millisecond
	p.SettleDelay = time.Duration(c.vals.DDC.SettleDelayMS) * time.Millisecond
	p.BackoffBase = time.Duration(c.vals.DDC.BackoffBaseMS) * time.Millisecond
	p.AttemptTimeout = time.Duration(c.vals.DDC.AttemptTimeoutMS) * time.Millisecond
	return p
}

// MinSpacing returns the per-display minimum inter-command spacing.
func (c *Instance) MinSpacing() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Coordinator.MinSpacingMS) * time.Millisecond
}

// FailureThreshold returns how many consecutive failures disable a display.
func (c *Instance) FailureThreshold() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Coordinator.FailureThreshold
}

// SaveDebounce returns the debounce delay for persisting written values.
func (c *Instance) SaveDebounce() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Coordinator.DebounceMS) * time.Millisecond
}
