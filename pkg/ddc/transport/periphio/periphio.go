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

// Package periphio implements the I2C transport on top of periph.io bus
// drivers. A handle is a periph bus name or device path as accepted by
// i2creg ("/dev/i2c-4", "4", or a registered bus alias).
package periphio

import (
	"context"
	"fmt"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Transport is the periph.io-backed I2C transport. Opened buses are
// cached per handle and released on Invalidate.
type Transport struct {
	buses *transport.HandleCache[i2c.BusCloser]
}

// New constructs the periph transport. It fails with ErrUnsupported when
// periph host drivers cannot initialize or the system registers no I2C
// buses; both are permanent conditions on a given system.
func New() (*Transport, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %v: %w", err, transport.ErrUnsupported)
	}
	if len(i2creg.All()) == 0 {
		return nil, fmt.Errorf("no i2c buses registered: %w", transport.ErrUnsupported)
	}
	log.Debug().Int("drivers", len(state.Loaded)).Msg("periph host initialized")

	return &Transport{
		buses: transport.NewHandleCache(openBus, func(b i2c.BusCloser) error {
			return b.Close()
		}),
	}, nil
}

func openBus(h transport.Handle) (i2c.BusCloser, error) {
	bus, err := i2creg.Open(string(h))
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %v: %w", string(h), err, transport.ErrInvalidHandle)
	}
	return bus, nil
}

// Write sends data to the device at addr behind h.
func (t *Transport) Write(ctx context.Context, h transport.Handle, addr uint16, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return transport.ErrInvalidLength
	}

	bus, err := t.buses.Get(h)
	if err != nil {
		return err
	}
	if err := bus.Tx(addr, data, nil); err != nil {
		return &transport.WriteError{Code: -1, Err: err}
	}
	return nil
}

// Read reads n bytes from the device at addr behind h.
func (t *Transport) Read(ctx context.Context, h transport.Handle, addr uint16, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, transport.ErrInvalidLength
	}

	bus, err := t.buses.Get(h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := bus.Tx(addr, nil, buf); err != nil {
		return nil, &transport.ReadError{Code: -1, Err: err}
	}
	return buf, nil
}

// Invalidate closes and forgets the cached bus for h.
func (t *Transport) Invalidate(h transport.Handle) {
	t.buses.Invalidate(h)
}

// Close releases every cached bus.
func (t *Transport) Close() error {
	return t.buses.Close()
}
