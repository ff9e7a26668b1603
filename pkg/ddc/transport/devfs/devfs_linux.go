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

//go:build linux

// Package devfs implements the I2C transport over Linux /dev/i2c-* device
// nodes using the I2C_RDWR ioctl. A handle is the device node path, e.g.
// "/dev/i2c-4".
package devfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	i2cRdwr = 0x0707
	i2cMRd  = 0x0001

	// maxTransfer is the largest single transfer the engine ever needs;
	// anything larger indicates a caller bug.
	maxTransfer = 256
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Transport is the devfs-backed I2C transport. Opened device nodes are
// cached per handle and released on Invalidate.
type Transport struct {
	files *transport.HandleCache[*os.File]
}

// New constructs the devfs transport. It fails with ErrUnsupported when
// the system exposes no /dev/i2c-* nodes at all, which callers should
// treat as a permanent fact rather than retry.
func New() (*Transport, error) {
	nodes, err := filepath.Glob("/dev/i2c-*")
	if err != nil || len(nodes) == 0 {
		return nil, fmt.Errorf("no /dev/i2c nodes: %w", transport.ErrUnsupported)
	}

	return &Transport{
		files: transport.NewHandleCache(openNode, func(f *os.File) error {
			return f.Close()
		}),
	}, nil
}

func openNode(h transport.Handle) (*os.File, error) {
	path := string(h)
	if !strings.HasPrefix(path, "/dev/i2c-") {
		return nil, fmt.Errorf("%q is not an i2c device node: %w", path, transport.ErrInvalidHandle)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %q: %w", path, transport.ErrInvalidHandle)
		}
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	log.Debug().Str("node", path).Msg("opened i2c device node")
	return f, nil
}

// Write sends data to the device at addr behind h.
func (t *Transport) Write(ctx context.Context, h transport.Handle, addr uint16, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 || len(data) > maxTransfer {
		return transport.ErrInvalidLength
	}

	f, err := t.files.Get(h)
	if err != nil {
		return err
	}

	msg := i2cMsg{
		addr: addr,
		len:  uint16(len(data)),
		buf:  uintptr(unsafe.Pointer(&data[0])),
	}
	if err := t.rdwr(f, &msg); err != nil {
		return &transport.WriteError{Code: errnoCode(err), Err: err}
	}
	return nil
}

// Read reads n bytes from the device at addr behind h.
func (t *Transport) Read(ctx context.Context, h transport.Handle, addr uint16, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 || n > maxTransfer {
		return nil, transport.ErrInvalidLength
	}

	f, err := t.files.Get(h)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	msg := i2cMsg{
		addr:  addr,
		flags: i2cMRd,
		len:   uint16(n),
		buf:   uintptr(unsafe.Pointer(&buf[0])),
	}
	if err := t.rdwr(f, &msg); err != nil {
		return nil, &transport.ReadError{Code: errnoCode(err), Err: err}
	}
	return buf, nil
}

func (*Transport) rdwr(f *os.File, msg *i2cMsg) error {
	data := i2cRdwrData{
		msgs:  uintptr(unsafe.Pointer(msg)),
		nmsgs: 1,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), i2cRdwr, uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return errno
	}
	return nil
}

func errnoCode(err error) int {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return -1
}

// Invalidate closes and forgets the cached device node for h.
func (t *Transport) Invalidate(h transport.Handle) {
	t.files.Invalidate(h)
}

// Close releases every cached device node.
func (t *Transport) Close() error {
	return t.files.Close()
}
