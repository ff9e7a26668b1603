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

package display

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
)

// writeConnector lays out one fake DRM connector directory.
func writeConnector(t *testing.T, root, name, status string, i2cBus string, edid []byte) {
	t.Helper()

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644))

	if i2cBus != "" {
		busDir := filepath.Join(root, "buses", i2cBus)
		require.NoError(t, os.MkdirAll(busDir, 0o755))
		require.NoError(t, os.Symlink(busDir, filepath.Join(dir, "ddc")))
	}
	if edid != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "edid"), edid, 0o644))
	}
}

func TestSysfsEnumeratorList(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeConnector(t, root, "card0-HDMI-A-1", "connected", "i2c-4", buildEDID(t))
	writeConnector(t, root, "card0-DP-1", "disconnected", "i2c-5", nil)
	writeConnector(t, root, "card0-eDP-1", "connected", "", nil)
	// No DDC bus resolvable, still listed.
	writeConnector(t, root, "card1-DP-2", "connected", "", nil)
	// Not a connector directory.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "version"), 0o755))

	targets, err := (&SysfsEnumerator{Root: root}).List()
	require.NoError(t, err)
	require.Len(t, targets, 3)

	byConnector := map[string]Target{}
	for _, target := range targets {
		byConnector[target.Connector] = target
	}

	hdmi, ok := byConnector["HDMI-A-1"]
	require.True(t, ok)
	assert.Equal(t, transport.Handle("/dev/i2c-4"), hdmi.Handle)
	assert.False(t, hdmi.BuiltIn)
	require.NotNil(t, hdmi.Identity)
	assert.Equal(t, "LUM", hdmi.Identity.Manufacturer)
	assert.Equal(t, transport.DDCAddr, hdmi.Addr)

	edp, ok := byConnector["eDP-1"]
	require.True(t, ok)
	assert.True(t, edp.BuiltIn)
	assert.Empty(t, edp.Handle)

	dp2, ok := byConnector["DP-2"]
	require.True(t, ok)
	assert.False(t, dp2.BuiltIn)
	assert.Empty(t, dp2.Handle)

	_, ok = byConnector["DP-1"]
	assert.False(t, ok, "disconnected connector must not be listed")
}

func TestSysfsEnumeratorCorruptEDID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeConnector(t, root, "card0-DP-1", "connected", "i2c-6", []byte{0x01, 0x02})

	targets, err := (&SysfsEnumerator{Root: root}).List()
	require.NoError(t, err)
	require.Len(t, targets, 1)

	// The display is still usable, just unidentified.
	assert.Nil(t, targets[0].Identity)
	assert.Equal(t, transport.Handle("/dev/i2c-6"), targets[0].Handle)
}

func TestSysfsEnumeratorMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := (&SysfsEnumerator{Root: "/nonexistent/drm"}).List()
	assert.Error(t, err)
}
