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

package caps

import (
	"context"
	"errors"

	"github.com/LuminoProject/lumino-core/pkg/ddc"
	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/LuminoProject/lumino-core/pkg/display"
	"github.com/rs/zerolog/log"
)

// minUsableCapString is the threshold below which a capability response
// is treated as "no DDC support" rather than parsed.
const minUsableCapString = 11

var (
	// ErrNotExternalDisplay means the target is a built-in panel, where
	// DDC/CI is meaningless.
	ErrNotExternalDisplay = errors.New("caps: not an external display")
	// ErrDisplayNotFound means the display is absent entirely, as opposed
	// to present but silent.
	ErrDisplayNotFound = errors.New("caps: display not found")
)

// VCPConn is the slice of the DDC connection the detector needs.
type VCPConn interface {
	ReadVCP(ctx context.Context, h transport.Handle, code ddc.Feature) (ddc.VCPReply, error)
	WriteVCP(ctx context.Context, h transport.Handle, code ddc.Feature, value uint16) error
	ReadCapabilityString(ctx context.Context, h transport.Handle) (string, error)
}

// Detector derives a capability Record for a display by combining its
// declared capability string with live probing. The detector itself is
// stateless; the command coordinator caches records per display.
type Detector struct {
	conn VCPConn
}

// NewDetector creates a Detector over conn.
func NewDetector(conn VCPConn) *Detector {
	return &Detector{conn: conn}
}

// Detect runs the full discovery sequence for target.
//
// A display that answers nothing yields an all-unsupported record, not an
// error; errors are reserved for targets that cannot be meaningfully
// queried at all (built-in panels, absent devices).
func (d *Detector) Detect(ctx context.Context, target display.Target) (*Record, error) {
	if target.BuiltIn {
		return nil, ErrNotExternalDisplay
	}
	if target.Handle == "" {
		return nil, ErrDisplayNotFound
	}
	if target.Identity == nil {
		log.Debug().Str("connector", target.Connector).
			Msg("no identification data, treating as unknown device")
	}

	raw, err := d.conn.ReadCapabilityString(ctx, target.Handle)
	if err != nil {
		if errors.Is(err, transport.ErrInvalidHandle) || errors.Is(err, transport.ErrUnsupported) {
			return nil, errors.Join(ErrDisplayNotFound, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Info().Err(err).Str("display", target.Name()).
			Msg("capability query failed, display has no usable ddc support")
		return Unsupported(), nil
	}

	if len(raw) < minUsableCapString {
		log.Info().Str("display", target.Name()).Int("length", len(raw)).
			Msg("capability string too short, display has no usable ddc support")
		return Unsupported(), nil
	}

	record := parseCapabilityString(raw)
	record.DDCSupported = true

	d.probe(ctx, target, record)
	return record, nil
}

// probe verifies brightness with a real write/read round-trip and reads
// back contrast. The probe result, not the declared string, decides what
// is surfaced to users; a mismatch is logged for diagnostics.
func (d *Detector) probe(ctx context.Context, target display.Target, record *Record) {
	reply, err := d.conn.ReadVCP(ctx, target.Handle, ddc.FeatureBrightness)
	if err == nil {
		// Writing the current value back confirms write support without
		// visibly changing the display.
		err = d.conn.WriteVCP(ctx, target.Handle, ddc.FeatureBrightness, reply.Current)
	}
	if err == nil {
		record.BrightnessSupported = true
		record.MaxBrightness = reply.Max
	}
	if record.BrightnessSupported != record.Declares(ddc.FeatureBrightness) {
		log.Warn().Str("display", target.Name()).
			Bool("declared", record.Declares(ddc.FeatureBrightness)).
			Bool("probed", record.BrightnessSupported).
			Msg("declared brightness support contradicts probe, trusting probe")
	}

	if reply, err := d.conn.ReadVCP(ctx, target.Handle, ddc.FeatureContrast); err == nil {
		record.ContrastSupported = true
		record.MaxContrast = reply.Max
	}
}
