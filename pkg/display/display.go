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

// Package display models connected displays: the DDC target used to route
// transport calls, EDID-derived identity, and enumeration of attached
// displays.
package display

import (
	"fmt"
	"strings"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
)

// Target addresses one display's DDC channel: the opaque transport handle
// plus the 7-bit slave address. The command coordinator owns a Target for
// the lifetime of a connected display and releases it on disconnect.
type Target struct {
	Identity  *Identity
	Handle    transport.Handle
	Connector string
	Addr      uint16
	BuiltIn   bool
}

// NewTarget creates a Target with the standard DDC slave address.
func NewTarget(h transport.Handle, connector string) Target {
	return Target{
		Handle:    h,
		Connector: connector,
		Addr:      transport.DDCAddr,
	}
}

// Key returns a stable identifier for this display, preferred for
// settings persistence and capability caching. EDID identity is used when
// available; otherwise the connector name is the best stable fact we have.
func (t Target) Key() string {
	if t.Identity != nil {
		return t.Identity.Key()
	}
	if t.Connector != "" {
		return "connector-" + strings.ToLower(t.Connector)
	}
	return "handle-" + strings.ToLower(string(t.Handle))
}

// Name returns a human-readable identity for logs and UIs.
func (t Target) Name() string {
	if t.Identity != nil && t.Identity.Name != "" {
		return t.Identity.Name
	}
	if t.Connector != "" {
		return t.Connector
	}
	return "unknown display"
}

// Identity is the EDID-derived identification of a display.
type Identity struct {
	// Manufacturer is the three-letter PNP vendor ID, e.g. "DEL".
	Manufacturer string
	// Name is the monitor name descriptor text, if present.
	Name string
	// ProductCode is the vendor-assigned product code.
	ProductCode uint16
	// Serial is the 32-bit serial number; zero when not reported.
	Serial uint32
	// Week and Year are the week and year of manufacture.
	Week int
	Year int
}

// Key returns a deterministic settings/caching key for this identity.
func (id *Identity) Key() string {
	return strings.ToLower(fmt.Sprintf("%s-%04x-%08x", id.Manufacturer, id.ProductCode, id.Serial))
}

// Enumerator lists the displays currently attached to the system. It is
// the display-detection collaborator consumed by the command coordinator;
// implementations are platform-specific.
type Enumerator interface {
	List() ([]Target, error)
}
