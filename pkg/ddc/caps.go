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

import (
	"context"
	"fmt"
	"strings"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/rs/zerolog/log"
)

const (
	// capsFragmentRead is the fixed read size for one capability fragment:
	// 2 header bytes, up to 35 payload bytes, 1 checksum byte.
	capsFragmentRead = 38
	// capsMaxLength caps the assembled string so a device that echoes
	// fragments forever cannot run the loop unbounded.
	capsMaxLength = 4096
)

// ReadCapabilityString fetches the display's capability string fragment by
// fragment. Each fragment is retried on the escalating CapsBackoff
// schedule rather than the generic retry loop; capability queries are not
// time-critical and some displays only answer them when given generous
// spacing. The assembled string may legitimately be empty.
func (c *Conn) ReadCapabilityString(ctx context.Context, h transport.Handle) (string, error) {
	var sb strings.Builder
	offset := uint16(0)
	for {
		data, err := c.readCapsFragment(ctx, h, offset)
		if err != nil {
			return "", err
		}
		if len(data) == 0 {
			break
		}
		sb.Write(data)
		offset += uint16(len(data))
		if sb.Len() > capsMaxLength {
			log.Warn().Str("handle", string(h)).
				Msg("capability string exceeds maximum length, truncating")
			break
		}
	}
	return sb.String(), nil
}

// readCapsFragment requests and parses one capability fragment at offset,
// retrying on the caps backoff schedule.
func (c *Conn) readCapsFragment(ctx context.Context, h transport.Handle, offset uint16) ([]byte, error) {
	schedule := c.policy.CapsBackoff
	if len(schedule) == 0 {
		schedule = DefaultRetryPolicy().CapsBackoff
	}

	var lastErr error
	for _, delay := range schedule {
		data, err := c.attemptCapsFragment(ctx, h, offset)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, &ExhaustedError{Attempts: len(schedule), LastErr: lastErr}
}

func (c *Conn) attemptCapsFragment(ctx context.Context, h transport.Handle, offset uint16) ([]byte, error) {
	if err := c.writeCycles(ctx, h, BuildWritePacket(capsRequestPayload(offset))); err != nil {
		return nil, err
	}
	if err := c.sleep(ctx, c.policy.SettleDelay); err != nil {
		return nil, err
	}
	buf, err := c.read(ctx, h, capsFragmentRead)
	if err != nil {
		return nil, err
	}
	return parseCapsFragment(buf, offset)
}

// parseCapsFragment validates one capability reply fragment and returns
// its data bytes. An empty data section marks the end of the string.
func parseCapsFragment(buf []byte, offset uint16) ([]byte, error) {
	if len(buf) < 6 {
		return nil, &InvalidReplyError{
			Reason: fmt.Sprintf("capability fragment too short: %d bytes", len(buf)),
		}
	}

	payloadLen := int(buf[1] & 0x7F)
	if payloadLen < 3 || 2+payloadLen >= len(buf) {
		return nil, &InvalidReplyError{
			Reason: fmt.Sprintf("capability fragment length %d out of range", payloadLen),
		}
	}

	end := 2 + payloadLen
	expected := Checksum(replySeed, buf, 0, end-1)
	if actual := buf[end]; actual != expected {
		return nil, &ChecksumError{Expected: expected, Actual: actual}
	}

	if buf[2] != opCapsReply {
		return nil, &InvalidReplyError{
			Reason: fmt.Sprintf("unexpected capability reply opcode 0x%02X", buf[2]),
		}
	}
	if echo := uint16(buf[3])<<8 | uint16(buf[4]); echo != offset {
		return nil, &InvalidReplyError{
			Reason: fmt.Sprintf("fragment offset echo %d, requested %d", echo, offset),
		}
	}

	return buf[5:end], nil
}
