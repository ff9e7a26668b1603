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

// Package testutils provides a scriptable in-memory transport for tests.
package testutils

import (
	"context"
	"sync"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
)

// MockTransport implements transport.Transport with scriptable behavior
// and full call recording. The zero value succeeds every write and returns
// zeroed buffers for every read.
type MockTransport struct {
	// WriteFunc, if set, decides the outcome of each Write.
	WriteFunc func(h transport.Handle, addr uint16, data []byte) error
	// ReadFunc, if set, supplies the bytes returned by each Read.
	ReadFunc func(h transport.Handle, addr uint16, n int) ([]byte, error)

	mu          sync.Mutex
	writes      []MockWrite
	reads       int
	invalidated []transport.Handle
	closed      bool
}

// MockWrite records one Write call.
type MockWrite struct {
	Handle transport.Handle
	Data   []byte
	Addr   uint16
}

// Write records the call and delegates to WriteFunc.
func (m *MockTransport) Write(ctx context.Context, h transport.Handle, addr uint16, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.writes = append(m.writes, MockWrite{Handle: h, Addr: addr, Data: cp})
	m.mu.Unlock()

	if m.WriteFunc != nil {
		return m.WriteFunc(h, addr, data)
	}
	return nil
}

// Read records the call and delegates to ReadFunc.
func (m *MockTransport) Read(ctx context.Context, h transport.Handle, addr uint16, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()

	if m.ReadFunc != nil {
		return m.ReadFunc(h, addr, n)
	}
	return make([]byte, n), nil
}

// Invalidate records the invalidated handle.
func (m *MockTransport) Invalidate(h transport.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, h)
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns a copy of all recorded writes.
func (m *MockTransport) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// WriteCount returns how many Write calls were made.
func (m *MockTransport) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// ReadCount returns how many Read calls were made.
func (m *MockTransport) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// CallCount returns the total number of transport I/O calls.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes) + m.reads
}

// Invalidated returns the handles passed to Invalidate, in order.
func (m *MockTransport) Invalidated() []transport.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transport.Handle, len(m.invalidated))
	copy(out, m.invalidated)
	return out
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
