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

package display

import (
	"bytes"
	"errors"
	"strings"
)

// edidBlockLength is the size of the EDID base block.
const edidBlockLength = 128

var edidHeader = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

var (
	// ErrInvalidEDID means the block is too short or the fixed header is
	// wrong.
	ErrInvalidEDID = errors.New("display: invalid EDID block")
	// ErrEDIDChecksum means the base block's byte sum is non-zero.
	ErrEDIDChecksum = errors.New("display: EDID checksum mismatch")
)

// ParseEDID parses the 128-byte EDID base block into an Identity.
// Extension blocks are ignored; nothing the engine needs lives there.
func ParseEDID(data []byte) (*Identity, error) {
	if len(data) < edidBlockLength {
		return nil, ErrInvalidEDID
	}
	data = data[:edidBlockLength]
	if !bytes.Equal(data[:8], edidHeader) {
		return nil, ErrInvalidEDID
	}

	var sum byte
	for _, b := range data {
		sum += b
	}
	if sum != 0 {
		return nil, ErrEDIDChecksum
	}

	id := &Identity{
		Manufacturer: decodePNPID(data[8], data[9]),
		ProductCode:  uint16(data[10]) | uint16(data[11])<<8,
		Serial: uint32(data[12]) | uint32(data[13])<<8 |
			uint32(data[14])<<16 | uint32(data[15])<<24,
		Week: int(data[16]),
		Year: 1990 + int(data[17]),
	}
	id.Name = monitorName(data)
	return id, nil
}

// decodePNPID unpacks the two-byte compressed three-letter vendor ID.
func decodePNPID(hi, lo byte) string {
	v := uint16(hi)<<8 | uint16(lo)
	return string([]byte{
		'A' - 1 + byte(v>>10&0x1F),
		'A' - 1 + byte(v>>5&0x1F),
		'A' - 1 + byte(v&0x1F),
	})
}

// monitorName scans the four 18-byte descriptor blocks for the monitor
// name descriptor (tag 0xFC).
func monitorName(block []byte) string {
	for i := 0; i < 4; i++ {
		d := block[54+18*i : 54+18*(i+1)]
		if d[0] != 0 || d[1] != 0 || d[3] != 0xFC {
			continue
		}
		name := string(d[5:18])
		if idx := strings.IndexByte(name, '\n'); idx >= 0 {
			name = name[:idx]
		}
		return strings.TrimSpace(name)
	}
	return ""
}
