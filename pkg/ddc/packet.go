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

// Package ddc implements the DDC/CI byte protocol: packet framing, XOR
// checksums, VCP reply parsing and the retrying get/set interface used to
// talk to external displays over an I2C transport.
package ddc

import "fmt"

// Checksum seeds. Host-originated packets are folded against the display's
// write address (0x37<<1 = 0x6E); display replies against 0x50.
const (
	hostAddressSeed byte = 0x6E
	replySeed       byte = 0x50
)

// ReplyLength is the fixed size of a VCP feature reply on the wire.
const ReplyLength = 11

// VCPReply is a parsed, checksum-validated VCP feature reply.
//
// Max and Current are device-reported and untrusted: the protocol does not
// guarantee Current <= Max and callers must range-check before deriving
// ratios from these values.
type VCPReply struct {
	Feature Feature
	Type    byte
	Max     uint16
	Current uint16
}

// Checksum XOR-folds seed with every byte of data in the inclusive range
// [first, last]. An empty or invalid range returns the seed unchanged so
// the function is total; production callers always pass a valid range.
func Checksum(seed byte, data []byte, first, last int) byte {
	ck := seed
	if first < 0 || last >= len(data) || first > last {
		return ck
	}
	for i := first; i <= last; i++ {
		ck ^= data[i]
	}
	return ck
}

// BuildWritePacket frames a command payload as a DDC/CI host packet:
// [0x80|(n+1), n, payload..., checksum]. An empty payload is legal and
// produces the minimal packet.
func BuildWritePacket(payload []byte) []byte {
	n := len(payload)
	pkt := make([]byte, 0, n+3)
	pkt = append(pkt, 0x80|byte(n+1), byte(n))
	pkt = append(pkt, payload...)
	pkt = append(pkt, 0)
	pkt[len(pkt)-1] = Checksum(hostAddressSeed, pkt, 0, len(pkt)-2)
	return pkt
}

// getVCPPayload frames a Get VCP Feature request for code.
func getVCPPayload(code Feature) []byte {
	return []byte{opGetVCP, byte(code)}
}

// setVCPPayload frames a Set VCP Feature request for code with a 16-bit
// big-endian value.
func setVCPPayload(code Feature, value uint16) []byte {
	return []byte{opSetVCP, byte(code), byte(value >> 8), byte(value)}
}

// capsRequestPayload frames a Capabilities Request at a byte offset into
// the capability string.
func capsRequestPayload(offset uint16) []byte {
	return []byte{opCapsRequest, byte(offset >> 8), byte(offset)}
}

// ParseVCPReply validates and parses an 11-byte VCP feature reply. The
// checksum is verified before any field is trusted; a non-zero embedded
// result code yields UnsupportedFeatureError, which is an expected outcome
// when probing features a display does not implement.
func ParseVCPReply(data []byte) (VCPReply, error) {
	if len(data) < ReplyLength {
		return VCPReply{}, &InvalidReplyError{
			Reason: fmt.Sprintf("got %d bytes, need %d", len(data), ReplyLength),
		}
	}
	data = data[:ReplyLength]

	expected := Checksum(replySeed, data, 0, ReplyLength-2)
	if actual := data[ReplyLength-1]; actual != expected {
		return VCPReply{}, &ChecksumError{Expected: expected, Actual: actual}
	}

	if data[1] != replyFrameByte || data[3] != opGetVCPReply {
		return VCPReply{}, &InvalidReplyError{
			Reason: fmt.Sprintf("unexpected reply framing 0x%02X/0x%02X", data[1], data[3]),
		}
	}

	if rc := data[2]; rc != 0 {
		return VCPReply{}, &UnsupportedFeatureError{Feature: Feature(data[5]), Result: rc}
	}

	return VCPReply{
		Feature: Feature(data[5]),
		Type:    data[4],
		Max:     uint16(data[6])<<8 | uint16(data[7]),
		Current: uint16(data[8])<<8 | uint16(data[9]),
	}, nil
}
