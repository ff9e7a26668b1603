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

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/LuminoProject/lumino-core/pkg/config"
	"github.com/LuminoProject/lumino-core/pkg/ddc"
	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/LuminoProject/lumino-core/pkg/display"
	"github.com/LuminoProject/lumino-core/pkg/display/caps"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubConn struct {
	mu       sync.Mutex
	reply    ddc.VCPReply
	readErr  error
	writeErr error
	reads    int
	writes   []uint16
}

func (s *stubConn) ReadVCP(
	_ context.Context, _ transport.Handle, _ ddc.Feature,
) (ddc.VCPReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return ddc.VCPReply{}, s.readErr
	}
	return s.reply, nil
}

func (s *stubConn) WriteVCP(
	_ context.Context, _ transport.Handle, _ ddc.Feature, value uint16,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, value)
	return nil
}

func (s *stubConn) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads + len(s.writes)
}

func (s *stubConn) writtenValues() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.writes))
	copy(out, s.writes)
	return out
}

type stubDetector struct {
	mu     sync.Mutex
	record *caps.Record
	err    error
	calls  int
}

func (s *stubDetector) Detect(context.Context, display.Target) (*caps.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.record, s.err
}

func (s *stubDetector) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubInvalidator struct {
	mu      sync.Mutex
	handles []transport.Handle
}

func (s *stubInvalidator) Invalidate(h transport.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, h)
}

type stubStore struct {
	mu         sync.Mutex
	brightness map[string][]float64
	contrast   map[string][]float64
}

func newStubStore() *stubStore {
	return &stubStore{
		brightness: map[string][]float64{},
		contrast:   map[string][]float64{},
	}
}

func (s *stubStore) SaveBrightness(key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brightness[key] = append(s.brightness[key], value)
	return nil
}

func (s *stubStore) SaveContrast(key string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contrast[key] = append(s.contrast[key], value)
	return nil
}

func (s *stubStore) LoadBrightness(string) (float64, bool) { return 0, false }
func (s *stubStore) LoadContrast(string) (float64, bool)   { return 0, false }

func (s *stubStore) savedBrightness(key string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.brightness[key]))
	copy(out, s.brightness[key])
	return out
}

const coordHandle = transport.Handle("/dev/i2c-7")

func coordTarget() display.Target {
	return display.NewTarget(coordHandle, "DP-2")
}

// testValues returns a config tuned for fast tests: no spacing, no save
// debounce, three-failure disablement.
func testValues() config.Values {
	v := config.Defaults()
	v.Coordinator.MinSpacingMS = 0
	v.Coordinator.DebounceMS = 0
	return v
}

func newTestCoordinator(
	t *testing.T, conn *stubConn, vals config.Values, opts ...CoordinatorOption,
) *Coordinator {
	t.Helper()
	c := NewCoordinator(conn, &stubDetector{}, nil, nil, config.NewInstance(vals), opts...)
	t.Cleanup(c.Stop)
	return c
}

func TestSetBrightnessScalesToDeviceRange(t *testing.T) {
	t.Parallel()

	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 50}}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())

	require.NoError(t, c.SetBrightness(context.Background(), coordHandle, 0.62))

	// No cached maximum yet, so a read precedes the write.
	assert.Equal(t, []uint16{62}, conn.writtenValues())
}

func TestSetBrightnessDefaultScaleOnZeroMax(t *testing.T) {
	t.Parallel()

	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness}}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())

	require.NoError(t, c.SetBrightness(context.Background(), coordHandle, 1.0))

	assert.Equal(t, []uint16{100}, conn.writtenValues())
}

func TestSetBrightnessRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	conn := &stubConn{}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())

	assert.ErrorIs(t, c.SetBrightness(context.Background(), coordHandle, -0.1), ErrValueRange)
	assert.ErrorIs(t, c.SetBrightness(context.Background(), coordHandle, 1.1), ErrValueRange)
	assert.Zero(t, conn.callCount())
}

func TestReadBrightnessClampsUntrustedCurrent(t *testing.T) {
	t.Parallel()

	// A device reporting current > max is broken; clamp instead of
	// returning a ratio above 1.0.
	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 150}}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())

	value, err := c.ReadBrightness(context.Background(), coordHandle)

	require.NoError(t, err)
	assert.InDelta(t, 1.0, value, 1e-9)
}

func TestUnknownDisplayRejected(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, &stubConn{}, testValues())

	_, err := c.ReadBrightness(context.Background(), coordHandle)

	assert.ErrorIs(t, err, ErrUnknownDisplay)
}

func TestConsecutiveFailuresDisableDisplay(t *testing.T) {
	t.Parallel()

	conn := &stubConn{readErr: errors.New("remote i/o error")}
	ns := make(chan Notification, 8)
	c := newTestCoordinator(t, conn, testValues(), WithNotifications(ns))
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.ReadBrightness(ctx, coordHandle)
		require.Error(t, err)
	}
	before := conn.callCount()

	// The fourth command is rejected without touching the transport.
	_, err := c.ReadBrightness(ctx, coordHandle)
	assert.ErrorIs(t, err, ErrDeviceDisabled)
	assert.Equal(t, before, conn.callCount())

	var disabled *Notification
	for len(ns) > 0 {
		n := <-ns
		if n.Type == NotificationDisplayDisabled {
			disabled = &n
			break
		}
	}
	require.NotNil(t, disabled, "no disablement notification published")
	assert.Equal(t, 3, disabled.Failures)
	assert.Equal(t, coordTarget().Key(), disabled.DisplayKey)
}

func TestResetFailuresReenablesDisplay(t *testing.T) {
	t.Parallel()

	conn := &stubConn{readErr: errors.New("remote i/o error")}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = c.ReadBrightness(ctx, coordHandle)
	}
	_, err := c.ReadBrightness(ctx, coordHandle)
	require.ErrorIs(t, err, ErrDeviceDisabled)

	conn.mu.Lock()
	conn.readErr = nil
	conn.reply = ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 40}
	conn.mu.Unlock()

	c.ResetFailures(coordHandle)

	value, err := c.ReadBrightness(ctx, coordHandle)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, value, 1e-9)
}

func TestUnsupportedFeatureNotCountedAsFailure(t *testing.T) {
	t.Parallel()

	conn := &stubConn{readErr: &ddc.UnsupportedFeatureError{Feature: ddc.FeatureContrast}}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := c.ReadContrast(ctx, coordHandle)
		var unsupported *ddc.UnsupportedFeatureError
		require.ErrorAs(t, err, &unsupported)
	}

	// Still enabled: "not supported" is a healthy answer.
	_, err := c.ReadContrast(ctx, coordHandle)
	var unsupported *ddc.UnsupportedFeatureError
	assert.ErrorAs(t, err, &unsupported)
	assert.NotErrorIs(t, err, ErrDeviceDisabled)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	conn := &stubConn{readErr: errors.New("remote i/o error")}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	_, _ = c.ReadBrightness(ctx, coordHandle)
	_, _ = c.ReadBrightness(ctx, coordHandle)

	conn.mu.Lock()
	conn.readErr = nil
	conn.reply = ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 40}
	conn.mu.Unlock()

	_, err := c.ReadBrightness(ctx, coordHandle)
	require.NoError(t, err)

	conn.mu.Lock()
	conn.readErr = errors.New("remote i/o error")
	conn.mu.Unlock()

	// Two more failures do not reach the threshold of three.
	_, _ = c.ReadBrightness(ctx, coordHandle)
	_, err = c.ReadBrightness(ctx, coordHandle)
	assert.NotErrorIs(t, err, ErrDeviceDisabled)
}

func TestInterCommandSpacing(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	vals := testValues()
	vals.Coordinator.MinSpacingMS = 50
	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 40}}
	c := newTestCoordinator(t, conn, vals, WithClock(clock))
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	_, err := c.ReadBrightness(ctx, coordHandle)
	require.NoError(t, err)

	second := make(chan error, 1)
	go func() {
		_, err := c.ReadBrightness(ctx, coordHandle)
		second <- err
	}()

	// The worker parks on the spacing timer before touching the device.
	clock.BlockUntil(1)
	conn.mu.Lock()
	reads := conn.reads
	conn.mu.Unlock()
	assert.Equal(t, 1, reads)

	clock.Advance(50 * time.Millisecond)
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second command never ran after spacing elapsed")
	}
}

func TestDebouncedSaveCollapsesWrites(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	vals := testValues()
	vals.Coordinator.DebounceMS = 500
	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 40}}
	store := newStubStore()
	c := NewCoordinator(conn, &stubDetector{}, nil, store, config.NewInstance(vals), WithClock(clock))
	t.Cleanup(c.Stop)
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	require.NoError(t, c.SetBrightness(ctx, coordHandle, 0.3))
	require.NoError(t, c.SetBrightness(ctx, coordHandle, 0.8))

	// Nothing persists before the debounce window closes.
	assert.Empty(t, store.savedBrightness(coordTarget().Key()))

	clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool {
		return len(store.savedBrightness(coordTarget().Key())) > 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, []float64{0.8}, store.savedBrightness(coordTarget().Key()))
}

func TestStopFlushesPendingSaves(t *testing.T) {
	t.Parallel()

	vals := testValues()
	vals.Coordinator.DebounceMS = 60000
	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 40}}
	store := newStubStore()
	c := NewCoordinator(conn, &stubDetector{}, nil, store, config.NewInstance(vals))
	c.HandleConnect(coordTarget())

	require.NoError(t, c.SetBrightness(context.Background(), coordHandle, 0.25))
	assert.Empty(t, store.savedBrightness(coordTarget().Key()))

	c.Stop()

	assert.Equal(t, []float64{0.25}, store.savedBrightness(coordTarget().Key()))
}

func TestHandleDisconnectInvalidatesTransport(t *testing.T) {
	t.Parallel()

	inv := &stubInvalidator{}
	ns := make(chan Notification, 8)
	c := NewCoordinator(&stubConn{}, &stubDetector{}, inv, nil,
		config.NewInstance(testValues()), WithNotifications(ns))
	t.Cleanup(c.Stop)
	c.HandleConnect(coordTarget())

	c.HandleDisconnect(coordHandle)

	inv.mu.Lock()
	handles := append([]transport.Handle(nil), inv.handles...)
	inv.mu.Unlock()
	assert.Equal(t, []transport.Handle{coordHandle}, handles)

	_, err := c.ReadBrightness(context.Background(), coordHandle)
	assert.ErrorIs(t, err, ErrUnknownDisplay)

	var types []NotificationType
	for len(ns) > 0 {
		types = append(types, (<-ns).Type)
	}
	assert.Contains(t, types, NotificationDisplayDisconnected)
}

func TestDetectCapabilitiesCachesRecord(t *testing.T) {
	t.Parallel()

	det := &stubDetector{record: &caps.Record{DDCSupported: true, BrightnessSupported: true, MaxBrightness: 100}}
	c := NewCoordinator(&stubConn{}, det, nil, nil, config.NewInstance(testValues()))
	t.Cleanup(c.Stop)
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	first := c.DetectCapabilities(ctx, coordHandle)
	second := c.DetectCapabilities(ctx, coordHandle)

	assert.Same(t, first, second)
	assert.Equal(t, 1, det.callCount())
	assert.True(t, first.BrightnessSupported)
}

func TestDetectCapabilitiesNeverFails(t *testing.T) {
	t.Parallel()

	det := &stubDetector{err: caps.ErrDisplayNotFound}
	c := NewCoordinator(&stubConn{}, det, nil, nil, config.NewInstance(testValues()))
	t.Cleanup(c.Stop)
	c.HandleConnect(coordTarget())

	record := c.DetectCapabilities(context.Background(), coordHandle)
	require.NotNil(t, record)
	assert.False(t, record.DDCSupported)

	// Unknown displays get the same all-unsupported answer.
	record = c.DetectCapabilities(context.Background(), transport.Handle("/dev/i2c-99"))
	require.NotNil(t, record)
	assert.False(t, record.DDCSupported)
}

func TestCachedMaxSkipsRangeRead(t *testing.T) {
	t.Parallel()

	det := &stubDetector{record: &caps.Record{
		DDCSupported:        true,
		BrightnessSupported: true,
		MaxBrightness:       255,
	}}
	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 255, Current: 0}}
	c := NewCoordinator(conn, det, nil, nil, config.NewInstance(testValues()))
	t.Cleanup(c.Stop)
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	c.DetectCapabilities(ctx, coordHandle)
	require.NoError(t, c.SetBrightness(ctx, coordHandle, 0.5))

	// The probed maximum was cached, so no read preceded the write.
	conn.mu.Lock()
	reads := conn.reads
	conn.mu.Unlock()
	assert.Zero(t, reads)
	assert.Equal(t, []uint16{128}, conn.writtenValues())
}

func TestDetectCapabilitiesProbeMismatchNotification(t *testing.T) {
	t.Parallel()

	// The capability string declares brightness but the probe failed.
	det := &stubDetector{record: &caps.Record{
		DDCSupported: true,
		Declared:     map[ddc.Feature][]byte{ddc.FeatureBrightness: nil},
	}}
	ns := make(chan Notification, 8)
	c := NewCoordinator(&stubConn{}, det, nil, nil,
		config.NewInstance(testValues()), WithNotifications(ns))
	t.Cleanup(c.Stop)
	c.HandleConnect(coordTarget())

	c.DetectCapabilities(context.Background(), coordHandle)

	var types []NotificationType
	for len(ns) > 0 {
		types = append(types, (<-ns).Type)
	}
	assert.Contains(t, types, NotificationProbeMismatch)
}

func TestResetFailuresDropsCachedCapabilities(t *testing.T) {
	t.Parallel()

	det := &stubDetector{record: &caps.Record{DDCSupported: true}}
	c := NewCoordinator(&stubConn{}, det, nil, nil, config.NewInstance(testValues()))
	t.Cleanup(c.Stop)
	c.HandleConnect(coordTarget())

	ctx := context.Background()
	c.DetectCapabilities(ctx, coordHandle)
	c.ResetFailures(coordHandle)
	c.DetectCapabilities(ctx, coordHandle)

	assert.Equal(t, 2, det.callCount())
}

func TestHandleConnectIdempotent(t *testing.T) {
	t.Parallel()

	conn := &stubConn{reply: ddc.VCPReply{Feature: ddc.FeatureBrightness, Max: 100, Current: 40}}
	c := newTestCoordinator(t, conn, testValues())
	c.HandleConnect(coordTarget())
	c.HandleConnect(coordTarget())

	_, err := c.ReadBrightness(context.Background(), coordHandle)
	assert.NoError(t, err)
}
