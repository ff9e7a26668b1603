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
	"errors"
	"fmt"
)

// ErrTimeout is returned when a single transport attempt exceeds the
// configured attempt timeout. It is counted like any other transport
// error by the retry loop.
var ErrTimeout = errors.New("ddc: attempt timed out")

// InvalidReplyError is returned when a reply is too short or otherwise
// structurally unusable before its checksum can even be validated.
type InvalidReplyError struct {
	Reason string
}

func (e *InvalidReplyError) Error() string {
	return "ddc: invalid reply: " + e.Reason
}

// ChecksumError is returned when a reply's checksum byte does not match
// the checksum computed over the reply body. Data carrying a bad checksum
// is never parsed into a VCPReply.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("ddc: checksum mismatch: expected 0x%02X, got 0x%02X",
		e.Expected, e.Actual)
}

// UnsupportedFeatureError is returned when the device itself reports a
// non-zero result code for a feature. This is an expected outcome during
// capability probing, not a transport failure, and is not retried.
type UnsupportedFeatureError struct {
	Feature Feature
	Result  byte
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("ddc: feature 0x%02X not supported by device (result code %d)",
		byte(e.Feature), e.Result)
}

// ExhaustedError is returned when every retry attempt of a VCP operation
// has failed. LastErr is the error from the final attempt.
type ExhaustedError struct {
	LastErr  error
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("ddc: retries exhausted after %d attempts: %v",
		e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
