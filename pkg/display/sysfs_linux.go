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

package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/rs/zerolog/log"
)

// SysfsEnumerator lists displays from the DRM subsystem under
// /sys/class/drm, resolving each connected connector's DDC bus to a
// /dev/i2c-N handle via the connector's "ddc" symlink.
type SysfsEnumerator struct {
	// Root overrides the sysfs DRM directory, for tests.
	Root string
}

// builtinPrefixes are connector types that are integrated panels; DDC/CI
// is meaningless there.
var builtinPrefixes = []string{"eDP", "LVDS", "DSI"}

// List returns a Target for every connected DRM connector. Connectors
// without a resolvable DDC bus are still listed (with an empty handle) so
// callers can report them as unsupported rather than invisible.
func (e *SysfsEnumerator) List() ([]Target, error) {
	root := e.Root
	if root == "" {
		root = "/sys/class/drm"
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	var targets []Target
	for _, entry := range entries {
		name := entry.Name()
		// Connector directories look like "card0-HDMI-A-1".
		idx := strings.Index(name, "-")
		if !strings.HasPrefix(name, "card") || idx < 0 {
			continue
		}
		connector := name[idx+1:]

		dir := filepath.Join(root, name)
		status, err := os.ReadFile(filepath.Join(dir, "status"))
		if err != nil || strings.TrimSpace(string(status)) != "connected" {
			continue
		}

		target := NewTarget("", connector)
		for _, prefix := range builtinPrefixes {
			if strings.HasPrefix(connector, prefix) {
				target.BuiltIn = true
				break
			}
		}

		if h, err := resolveDDCBus(dir); err == nil {
			target.Handle = h
		} else if !target.BuiltIn {
			log.Debug().Err(err).Str("connector", connector).
				Msg("connected display has no resolvable ddc bus")
		}

		if raw, err := os.ReadFile(filepath.Join(dir, "edid")); err == nil && len(raw) > 0 {
			id, err := ParseEDID(raw)
			if err != nil {
				log.Warn().Err(err).Str("connector", connector).
					Msg("failed to parse EDID block")
			} else {
				target.Identity = id
			}
		}

		targets = append(targets, target)
	}
	return targets, nil
}

// resolveDDCBus follows the connector's "ddc" symlink to an i2c bus
// directory and maps it to the matching /dev node.
func resolveDDCBus(connectorDir string) (transport.Handle, error) {
	link, err := os.Readlink(filepath.Join(connectorDir, "ddc"))
	if err != nil {
		return "", fmt.Errorf("no ddc link: %w", err)
	}
	bus := filepath.Base(link)
	if !strings.HasPrefix(bus, "i2c-") {
		return "", fmt.Errorf("unexpected ddc link target %q", link)
	}
	return transport.Handle("/dev/" + bus), nil
}
