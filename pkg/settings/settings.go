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

// Package settings persists last-known display control values keyed by a
// stable device key. The command coordinator calls Save* asynchronously
// and debounced; nothing here may block a DDC command.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LuminoProject/lumino-core/pkg/helpers/syncutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Store persists per-display control values.
type Store interface {
	SaveBrightness(deviceKey string, value float64) error
	SaveContrast(deviceKey string, value float64) error
	LoadBrightness(deviceKey string) (float64, bool)
	LoadContrast(deviceKey string) (float64, bool)
}

// DisplayValues is the stored record for one display.
type DisplayValues struct {
	Brightness *float64 `toml:"brightness,omitempty"`
	Contrast   *float64 `toml:"contrast,omitempty"`
}

// FileStore is a toml-file-backed Store. The filesystem is abstracted
// behind afero so tests run against an in-memory fs.
type FileStore struct {
	fs   afero.Fs
	vals map[string]DisplayValues
	path string
	mu   syncutil.Mutex
}

// NewFileStore opens (or creates) the store file at path on fsys.
func NewFileStore(fsys afero.Fs, path string) (*FileStore, error) {
	s := &FileStore{
		fs:   fsys,
		path: path,
		vals: make(map[string]DisplayValues),
	}

	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run.
	case err != nil:
		return nil, fmt.Errorf("read settings file: %w", err)
	default:
		if err := toml.Unmarshal(data, &s.vals); err != nil {
			return nil, fmt.Errorf("parse settings file: %w", err)
		}
	}
	return s, nil
}

func (s *FileStore) SaveBrightness(deviceKey string, value float64) error {
	return s.save(deviceKey, func(v *DisplayValues) { v.Brightness = &value })
}

func (s *FileStore) SaveContrast(deviceKey string, value float64) error {
	return s.save(deviceKey, func(v *DisplayValues) { v.Contrast = &value })
}

func (s *FileStore) LoadBrightness(deviceKey string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.vals[deviceKey].Brightness; v != nil {
		return *v, true
	}
	return 0, false
}

func (s *FileStore) LoadContrast(deviceKey string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.vals[deviceKey].Contrast; v != nil {
		return *v, true
	}
	return 0, false
}

func (s *FileStore) save(deviceKey string, set func(*DisplayValues)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.vals[deviceKey]
	set(&v)
	s.vals[deviceKey] = v

	data, err := toml.Marshal(s.vals)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}
