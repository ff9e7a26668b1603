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

// Package transport abstracts raw I2C access to a display: write N bytes
// to a slave address, read N bytes back, against an opaque hardware handle.
// Implementations live in subpackages; all of them report ErrUnsupported
// when the underlying OS mechanism is unavailable so callers can disable
// the feature permanently instead of retrying.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Handle is an opaque hardware handle identifying one display's DDC
// channel. Its contents are implementation-defined (e.g. an I2C device
// node path); callers treat it as an identity only.
type Handle string

// DDCAddr is the 7-bit I2C slave address displays listen on for DDC/CI.
const DDCAddr uint16 = 0x37

// Transport performs raw I2C transfers for a display handle.
//
// Implementations must cache expensive per-handle setup keyed by handle
// and release it on Invalidate so a disconnected display never leaves a
// stale descriptor behind.
type Transport interface {
	// Write sends data to the device at addr behind handle h.
	Write(ctx context.Context, h Handle, addr uint16, data []byte) error
	// Read reads n bytes from the device at addr behind handle h.
	Read(ctx context.Context, h Handle, addr uint16, n int) ([]byte, error)
	// Invalidate releases any cached per-handle state for h.
	Invalidate(h Handle)
	// Close releases all cached state.
	Close() error
}

// Sentinel errors distinguishing permanent from transient conditions.
var (
	// ErrUnsupported means the I2C mechanism is unavailable on this
	// system. It is a permanent, cacheable fact, never a reason to retry.
	ErrUnsupported = errors.New("i2c transport unsupported on this system")
	// ErrInvalidHandle means the handle does not refer to a usable device.
	ErrInvalidHandle = errors.New("invalid display handle")
	// ErrInvalidLength means a zero or out-of-range transfer was requested.
	ErrInvalidLength = errors.New("invalid transfer length")
)

// WriteError is a raw I2C write failure with the OS error code.
type WriteError struct {
	Err  error
	Code int
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("i2c write failed (code %d): %v", e.Code, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError is a raw I2C read failure with the OS error code.
type ReadError struct {
	Err  error
	Code int
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("i2c read failed (code %d): %v", e.Code, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
