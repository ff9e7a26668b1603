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

// Package caps discovers what a display can actually do over DDC/CI:
// declared capabilities from the capability string, plus live probing,
// because declared and actual support diverge on real hardware.
package caps

import "github.com/LuminoProject/lumino-core/pkg/ddc"

// Record is the per-display capability fact sheet. Declared holds what
// the capability string claims; the *Supported flags are authoritative
// and come from live probing where the two disagree.
type Record struct {
	// Declared maps each feature code the capability string lists to its
	// parenthesized sub-values (used for color-preset enumeration); a nil
	// slice means the feature was listed without sub-values.
	Declared map[ddc.Feature][]byte
	// Raw is the capability string as received, kept for diagnostics.
	Raw string
	// Model is the model(...) group, when present.
	Model string
	// Protocol is the prot(...) group, when present.
	Protocol string
	// Type is the type(...) group, when present.
	Type string

	// MaxBrightness and MaxContrast are the device-reported maximums
	// learned during probing; zero when the feature was not probed.
	MaxBrightness uint16
	MaxContrast   uint16

	// DDCSupported is false when the display gave no usable capability
	// string at all.
	DDCSupported bool
	// BrightnessSupported is the probed, authoritative brightness flag.
	BrightnessSupported bool
	// ContrastSupported is the probed, authoritative contrast flag.
	ContrastSupported bool
	// PresetSupported reports a declared color-preset feature.
	PresetSupported bool
}

// Unsupported returns the all-false record used for displays with no
// usable DDC support.
func Unsupported() *Record {
	return &Record{Declared: map[ddc.Feature][]byte{}}
}

// Declares reports whether the capability string listed the feature.
func (r *Record) Declares(f ddc.Feature) bool {
	_, ok := r.Declared[f]
	return ok
}

// Presets returns the declared color-preset sub-values, if any.
func (r *Record) Presets() []byte {
	return r.Declared[ddc.FeatureColorPreset]
}
