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

package ddc

// Feature is a VCP (Virtual Control Panel) feature code. The numeric code
// is both the wire value and the lookup key for capability records.
type Feature byte

// VCP feature codes addressable by this engine.
const (
	FeatureRestoreDefaults Feature = 0x04
	FeatureBrightness      Feature = 0x10
	FeatureContrast        Feature = 0x12
	FeatureColorPreset     Feature = 0x14
	FeatureInputSource     Feature = 0x60
	FeatureAudioVolume     Feature = 0x62
	FeaturePowerMode       Feature = 0xD6
)

// DDC/CI sub-protocol opcodes.
const (
	opGetVCP       = 0x01
	opGetVCPReply  = 0x02
	opSetVCP       = 0x03
	opCapsReply    = 0xE3
	opCapsRequest  = 0xF3
	replyFrameByte = 0x88
)

func (f Feature) String() string {
	switch f {
	case FeatureRestoreDefaults:
		return "restore defaults"
	case FeatureBrightness:
		return "brightness"
	case FeatureContrast:
		return "contrast"
	case FeatureColorPreset:
		return "color preset"
	case FeatureInputSource:
		return "input source"
	case FeatureAudioVolume:
		return "audio volume"
	case FeaturePowerMode:
		return "power mode"
	default:
		return "unknown"
	}
}
