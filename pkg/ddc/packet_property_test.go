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

package ddc_test

import (
	"testing"

	"github.com/LuminoProject/lumino-core/pkg/ddc"
	"github.com/LuminoProject/lumino-core/pkg/ddc/transport/testutils"
	"pgregory.net/rapid"
)

func TestChecksumMatchesIterativeFold(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Byte().Draw(t, "seed")
		data := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "data")
		first := rapid.IntRange(0, len(data)-1).Draw(t, "first")
		last := rapid.IntRange(first, len(data)-1).Draw(t, "last")

		want := seed
		for i := first; i <= last; i++ {
			want ^= data[i]
		}

		if got := ddc.Checksum(seed, data, first, last); got != want {
			t.Fatalf("Checksum(%#x, %v, %d, %d) = %#x, want %#x",
				seed, data, first, last, got, want)
		}
	})
}

func TestBuildWritePacketChecksumAlwaysValid(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(t, "payload")

		pkt := ddc.BuildWritePacket(payload)

		if len(pkt) != len(payload)+3 {
			t.Fatalf("packet length %d, want %d", len(pkt), len(payload)+3)
		}
		if pkt[0] != 0x80|byte(len(payload)+1) {
			t.Fatalf("length byte %#x", pkt[0])
		}
		if pkt[1] != byte(len(payload)) {
			t.Fatalf("payload count byte %#x", pkt[1])
		}
		want := ddc.Checksum(0x6E, pkt, 0, len(pkt)-2)
		if pkt[len(pkt)-1] != want {
			t.Fatalf("checksum %#x, want %#x", pkt[len(pkt)-1], want)
		}
	})
}

func TestVCPReplyFramingRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		feature := rapid.Byte().Draw(t, "feature")
		typ := rapid.Byte().Draw(t, "type")
		maxVal := rapid.Uint16().Draw(t, "max")
		current := rapid.Uint16().Draw(t, "current")

		reply, err := ddc.ParseVCPReply(testutils.BuildVCPReply(feature, 0, typ, maxVal, current))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if byte(reply.Feature) != feature || reply.Type != typ ||
			reply.Max != maxVal || reply.Current != current {
			t.Fatalf("round trip mismatch: %+v", reply)
		}
	})
}
