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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LuminoProject/lumino-core/pkg/config"
	"github.com/LuminoProject/lumino-core/pkg/ddc"
	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/LuminoProject/lumino-core/pkg/ddc/transport/devfs"
	"github.com/LuminoProject/lumino-core/pkg/ddc/transport/periphio"
	"github.com/LuminoProject/lumino-core/pkg/display"
	"github.com/LuminoProject/lumino-core/pkg/display/caps"
	"github.com/LuminoProject/lumino-core/pkg/helpers"
	"github.com/LuminoProject/lumino-core/pkg/service"
	"github.com/LuminoProject/lumino-core/pkg/settings"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	doList := flag.Bool("list", false, "list connected displays")
	doCaps := flag.Bool("caps", false, "show display capabilities")
	doReset := flag.Bool("reset", false, "reset a disabled display")
	connector := flag.String("display", "", "connector name, e.g. HDMI-A-1 (default: first external)")
	get := flag.String("get", "", "read a control: brightness or contrast")
	set := flag.String("set", "", "write a control: brightness or contrast")
	value := flag.Float64("value", -1, "value for -set, in [0.0, 1.0]")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if err := helpers.InitLogging(filepath.Join(config.DataDir(), "logs")); err != nil {
		return err
	}

	cfg, err := config.NewConfig(config.ConfigDir(), config.Defaults())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *debug || cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	tr, err := openTransport()
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close transport")
		}
	}()

	store, err := settings.NewFileStore(
		afero.NewOsFs(), filepath.Join(config.DataDir(), config.SettingsFile))
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}

	conn := ddc.NewConn(tr, ddc.WithRetryPolicy(cfg.RetryPolicy()))
	coord := service.NewCoordinator(conn, caps.NewDetector(conn), tr, store, cfg)
	defer coord.Stop()

	enum := &display.SysfsEnumerator{}
	targets, err := enum.List()
	if err != nil {
		return fmt.Errorf("enumerate displays: %w", err)
	}
	for _, t := range targets {
		if t.Handle != "" {
			coord.HandleConnect(t)
		}
	}

	if *doList {
		return listDisplays(targets)
	}

	target, err := pickTarget(targets, *connector)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case *doCaps:
		return showCaps(ctx, coord, target)
	case *doReset:
		coord.ResetFailures(target.Handle)
		fmt.Printf("%s: failures reset\n", target.Name())
		return nil
	case *get != "":
		return readControl(ctx, coord, target, *get)
	case *set != "":
		return writeControl(ctx, coord, target, *set, *value)
	default:
		flag.Usage()
		return nil
	}
}

// openTransport prefers the direct devfs path and falls back to periph.io
// bus drivers; both failing with ErrUnsupported means the system has no
// usable I2C mechanism at all.
func openTransport() (transport.Transport, error) {
	tr, err := devfs.New()
	if err == nil {
		return tr, nil
	}
	if !errors.Is(err, transport.ErrUnsupported) {
		return nil, err
	}
	log.Debug().Err(err).Msg("devfs transport unavailable, trying periph")
	return periphio.New()
}

func listDisplays(targets []display.Target) error {
	if len(targets) == 0 {
		fmt.Println("no connected displays found")
		return nil
	}
	for _, t := range targets {
		kind := "external"
		if t.BuiltIn {
			kind = "built-in"
		}
		ddcState := "ddc bus: " + string(t.Handle)
		if t.Handle == "" {
			ddcState = "no ddc bus"
		}
		fmt.Printf("%-12s %-24s %-9s %s\n", t.Connector, t.Name(), kind, ddcState)
	}
	return nil
}

func pickTarget(targets []display.Target, connector string) (display.Target, error) {
	for _, t := range targets {
		if connector != "" {
			if t.Connector == connector {
				return t, nil
			}
			continue
		}
		if !t.BuiltIn && t.Handle != "" {
			return t, nil
		}
	}
	if connector != "" {
		return display.Target{}, fmt.Errorf("display %q not found", connector)
	}
	return display.Target{}, errors.New("no external display with a ddc bus found")
}

func showCaps(ctx context.Context, coord *service.Coordinator, target display.Target) error {
	record := coord.DetectCapabilities(ctx, target.Handle)
	fmt.Printf("%s (%s)\n", target.Name(), target.Connector)
	fmt.Printf("  ddc supported:  %v\n", record.DDCSupported)
	fmt.Printf("  brightness:     %v (max %d)\n", record.BrightnessSupported, record.MaxBrightness)
	fmt.Printf("  contrast:       %v (max %d)\n", record.ContrastSupported, record.MaxContrast)
	fmt.Printf("  color presets:  %v %v\n", record.PresetSupported, record.Presets())
	if record.Model != "" {
		fmt.Printf("  model:          %s\n", record.Model)
	}
	if record.Protocol != "" {
		fmt.Printf("  protocol:       %s\n", record.Protocol)
	}
	return nil
}

func readControl(ctx context.Context, coord *service.Coordinator, target display.Target, control string) error {
	var v float64
	var err error
	switch control {
	case "brightness":
		v, err = coord.ReadBrightness(ctx, target.Handle)
	case "contrast":
		v, err = coord.ReadContrast(ctx, target.Handle)
	default:
		return fmt.Errorf("unknown control %q", control)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%.2f\n", v)
	return nil
}

func writeControl(ctx context.Context, coord *service.Coordinator, target display.Target, control string, value float64) error {
	switch control {
	case "brightness":
		return coord.SetBrightness(ctx, target.Handle, value)
	case "contrast":
		return coord.SetContrast(ctx, target.Handle, value)
	default:
		return fmt.Errorf("unknown control %q", control)
	}
}
