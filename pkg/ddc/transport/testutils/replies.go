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

package testutils

import "github.com/LuminoProject/lumino-core/pkg/ddc"

// replySeed matches the seed displays fold their reply checksums against.
const replySeed byte = 0x50

// BuildVCPReply assembles a checksum-valid 11-byte VCP feature reply as a
// display would send it.
func BuildVCPReply(feature byte, result byte, typ byte, maxVal, current uint16) []byte {
	buf := []byte{
		0x6E, 0x88, result, 0x02, typ, feature,
		byte(maxVal >> 8), byte(maxVal),
		byte(current >> 8), byte(current),
		0,
	}
	buf[len(buf)-1] = ddc.Checksum(replySeed, buf, 0, len(buf)-2)
	return buf
}

// BuildCapsFragment assembles one checksum-valid capability-string reply
// fragment carrying data at the given offset. Empty data marks the end of
// the string.
func BuildCapsFragment(offset uint16, data []byte) []byte {
	buf := make([]byte, 0, len(data)+6)
	buf = append(buf, 0x6E, 0x80|byte(len(data)+3), 0xE3, byte(offset>>8), byte(offset))
	buf = append(buf, data...)
	buf = append(buf, 0)
	buf[len(buf)-1] = ddc.Checksum(replySeed, buf, 0, len(buf)-2)
	// Pad to the fixed fragment read size the engine requests.
	for len(buf) < 38 {
		buf = append(buf, 0)
	}
	return buf
}
