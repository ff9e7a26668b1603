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

// Package service owns serialized access to displays: one in-flight DDC
// operation per display, mandatory inter-command spacing, consecutive-
// failure tracking with automatic disablement, and debounced persistence
// of successful writes.
package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/LuminoProject/lumino-core/pkg/config"
	"github.com/LuminoProject/lumino-core/pkg/ddc"
	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/LuminoProject/lumino-core/pkg/display"
	"github.com/LuminoProject/lumino-core/pkg/display/caps"
	"github.com/LuminoProject/lumino-core/pkg/helpers/syncutil"
	"github.com/LuminoProject/lumino-core/pkg/settings"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Caller-facing errors: a closed set so UI layers can render a specific
// message for each kind.
var (
	ErrDeviceDisabled = errors.New("service: display disabled after repeated failures")
	ErrValueRange     = errors.New("service: value out of range [0.0, 1.0]")
	ErrUnknownDisplay = errors.New("service: unknown display")
	ErrShuttingDown   = errors.New("service: coordinator shutting down")
)

// defaultMaxScale is assumed when a display reports a zero maximum.
// Device-reported ranges are untrusted; 100 is the de-facto VCP scale.
const defaultMaxScale = 100

// DDCConn is the slice of the DDC connection the coordinator drives.
type DDCConn interface {
	ReadVCP(ctx context.Context, h transport.Handle, code ddc.Feature) (ddc.VCPReply, error)
	WriteVCP(ctx context.Context, h transport.Handle, code ddc.Feature, value uint16) error
}

// Detector derives a capability record for a display.
type Detector interface {
	Detect(ctx context.Context, target display.Target) (*caps.Record, error)
}

// Invalidator is the transport surface the coordinator uses to drop
// cached per-handle state on disconnect.
type Invalidator interface {
	Invalidate(h transport.Handle)
}

// displayState is everything the coordinator tracks for one connected
// display. It is owned exclusively by the coordinator and only mutated
// under the coordinator's lock.
type displayState struct {
	lastCmd         time.Time
	queue           *opQueue
	caps            *caps.Record
	saveTimer       clockwork.Timer
	pendingBright   *float64
	pendingContrast *float64
	target          display.Target
	failures        int
	disabled        bool
}

// Coordinator serializes DDC access per display. Different displays are
// commanded concurrently; the same display never is.
//
// LOCKING RULES: mu protects the displays map and every displayState.
// Never run a DDC operation, send a notification, or call the settings
// store while holding the lock. Pattern: lock, mutate, copy what is
// needed, unlock, then do I/O.
type Coordinator struct {
	conn     DDCConn
	detector Detector
	tr       Invalidator
	store    settings.Store
	cfg      *config.Instance
	clock    clockwork.Clock
	ns       chan<- Notification

	ctx      context.Context
	cancel   context.CancelFunc
	displays map[transport.Handle]*displayState
	wg       sync.WaitGroup
	mu       syncutil.Mutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock replaces the wall clock, for tests.
func WithClock(clock clockwork.Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clock }
}

// WithNotifications sets the observer channel for warning-level events.
func WithNotifications(ns chan<- Notification) CoordinatorOption {
	return func(c *Coordinator) { c.ns = ns }
}

// NewCoordinator creates a Coordinator. tr may be nil when the transport
// has no per-handle state to invalidate (e.g. in tests).
func NewCoordinator(
	conn DDCConn,
	detector Detector,
	tr Invalidator,
	store settings.Store,
	cfg *config.Instance,
	opts ...CoordinatorOption,
) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		conn:     conn,
		detector: detector,
		tr:       tr,
		store:    store,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		ctx:      ctx,
		cancel:   cancel,
		displays: make(map[transport.Handle]*displayState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleConnect registers a display and starts its command worker.
func (c *Coordinator) HandleConnect(target display.Target) {
	c.mu.Lock()
	if _, ok := c.displays[target.Handle]; ok {
		c.mu.Unlock()
		return
	}
	st := &displayState{
		target: target,
		queue:  newOpQueue(),
	}
	c.displays[target.Handle] = st
	c.mu.Unlock()

	c.wg.Add(1)
	go c.worker(st)

	log.Info().Str("display", target.Name()).Str("handle", string(target.Handle)).
		Msg("display connected")
	notify(c.ns, Notification{
		Type:       NotificationDisplayConnected,
		DisplayKey: target.Key(),
		Display:    target.Name(),
	})
}

// HandleDisconnect tears down a display: its queue is drained with
// ErrShuttingDown, pending persistence is cancelled, and the transport's
// cached state for the handle is invalidated.
func (c *Coordinator) HandleDisconnect(h transport.Handle) {
	c.mu.Lock()
	st, ok := c.displays[h]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.displays, h)
	if st.saveTimer != nil {
		st.saveTimer.Stop()
		st.saveTimer = nil
	}
	target := st.target
	c.mu.Unlock()

	st.queue.close()
	if c.tr != nil {
		c.tr.Invalidate(h)
	}

	log.Info().Str("display", target.Name()).Msg("display disconnected")
	notify(c.ns, Notification{
		Type:       NotificationDisplayDisconnected,
		DisplayKey: target.Key(),
		Display:    target.Name(),
	})
}

// pendingValues is a flushed-on-shutdown persistence record.
type pendingValues struct {
	brightness *float64
	contrast   *float64
	key        string
}

// Stop shuts down every worker and waits for them to exit. Pending
// debounced saves are flushed immediately rather than dropped.
func (c *Coordinator) Stop() {
	c.cancel()

	c.mu.Lock()
	states := make([]*displayState, 0, len(c.displays))
	flush := make([]pendingValues, 0, len(c.displays))
	for _, st := range c.displays {
		states = append(states, st)
		if st.saveTimer != nil {
			st.saveTimer.Stop()
			st.saveTimer = nil
		}
		if st.pendingBright != nil || st.pendingContrast != nil {
			flush = append(flush, pendingValues{
				key:        st.target.Key(),
				brightness: st.pendingBright,
				contrast:   st.pendingContrast,
			})
			st.pendingBright = nil
			st.pendingContrast = nil
		}
	}
	c.displays = make(map[transport.Handle]*displayState)
	c.mu.Unlock()

	for _, st := range states {
		st.queue.close()
	}
	c.wg.Wait()

	if c.store == nil {
		return
	}
	for _, p := range flush {
		if p.brightness != nil {
			if err := c.store.SaveBrightness(p.key, *p.brightness); err != nil {
				log.Warn().Err(err).Str("display", p.key).Msg("failed to persist brightness")
			}
		}
		if p.contrast != nil {
			if err := c.store.SaveContrast(p.key, *p.contrast); err != nil {
				log.Warn().Err(err).Str("display", p.key).Msg("failed to persist contrast")
			}
		}
	}
}

// SetBrightness sets a display's brightness, value in [0.0, 1.0].
func (c *Coordinator) SetBrightness(ctx context.Context, h transport.Handle, value float64) error {
	return c.setScaled(ctx, h, ddc.FeatureBrightness, value)
}

// SetContrast sets a display's contrast, value in [0.0, 1.0].
func (c *Coordinator) SetContrast(ctx context.Context, h transport.Handle, value float64) error {
	return c.setScaled(ctx, h, ddc.FeatureContrast, value)
}

// ReadBrightness reads a display's brightness as a value in [0.0, 1.0].
func (c *Coordinator) ReadBrightness(ctx context.Context, h transport.Handle) (float64, error) {
	return c.readScaled(ctx, h, ddc.FeatureBrightness)
}

// ReadContrast reads a display's contrast as a value in [0.0, 1.0].
func (c *Coordinator) ReadContrast(ctx context.Context, h transport.Handle) (float64, error) {
	return c.readScaled(ctx, h, ddc.FeatureContrast)
}

func (c *Coordinator) setScaled(ctx context.Context, h transport.Handle, feature ddc.Feature, value float64) error {
	if value < 0.0 || value > 1.0 || math.IsNaN(value) {
		return ErrValueRange
	}

	err := c.perform(ctx, h, PriorityHigh, func(opCtx context.Context) error {
		maxRaw := c.cachedMax(h, feature)
		if maxRaw == 0 {
			if reply, err := c.conn.ReadVCP(opCtx, h, feature); err == nil {
				maxRaw = reply.Max
			}
		}
		if maxRaw == 0 {
			maxRaw = defaultMaxScale
		}

		raw := uint16(math.Round(value * float64(maxRaw)))
		if raw > maxRaw {
			raw = maxRaw
		}
		return c.conn.WriteVCP(opCtx, h, feature, raw)
	})
	if err != nil {
		return err
	}

	c.scheduleSave(h, feature, value)
	return nil
}

func (c *Coordinator) readScaled(ctx context.Context, h transport.Handle, feature ddc.Feature) (float64, error) {
	var value float64
	err := c.perform(ctx, h, PriorityHigh, func(opCtx context.Context) error {
		reply, err := c.conn.ReadVCP(opCtx, h, feature)
		if err != nil {
			return err
		}

		maxRaw := reply.Max
		if maxRaw == 0 {
			maxRaw = defaultMaxScale
		}
		cur := reply.Current
		// Device data is untrusted: clamp instead of assuming cur <= max.
		if cur > maxRaw {
			cur = maxRaw
		}
		value = float64(cur) / float64(maxRaw)
		return nil
	})
	return value, err
}

// DetectCapabilities returns the display's capability record, detecting
// and caching it on first call. It never fails: an undetectable display
// yields the all-unsupported record.
func (c *Coordinator) DetectCapabilities(ctx context.Context, h transport.Handle) *caps.Record {
	c.mu.Lock()
	st, ok := c.displays[h]
	var cached *caps.Record
	var target display.Target
	if ok {
		cached = st.caps
		target = st.target
	}
	c.mu.Unlock()

	if !ok {
		return caps.Unsupported()
	}
	if cached != nil {
		return cached
	}

	var record *caps.Record
	// Detection runs on the display's queue at low priority so a
	// background re-probe never delays a slider.
	err := c.perform(ctx, h, PriorityLow, func(opCtx context.Context) error {
		rec, err := c.detector.Detect(opCtx, target)
		if err != nil {
			log.Warn().Err(err).Str("display", target.Name()).
				Msg("capability detection failed")
			return nil
		}
		record = rec
		return nil
	})
	if err != nil || record == nil {
		return caps.Unsupported()
	}

	c.mu.Lock()
	if st, ok := c.displays[h]; ok {
		st.caps = record
	}
	c.mu.Unlock()

	if record.DDCSupported &&
		record.Declares(ddc.FeatureBrightness) != record.BrightnessSupported {
		notify(c.ns, Notification{
			Type:       NotificationProbeMismatch,
			DisplayKey: target.Key(),
			Display:    target.Name(),
		})
	}
	return record
}

// ResetFailures clears a display's failure count and disabled flag, and
// drops the cached capability record so the next query re-probes. This is
// the administrative recovery path after automatic disablement.
func (c *Coordinator) ResetFailures(h transport.Handle) {
	c.mu.Lock()
	st, ok := c.displays[h]
	if !ok {
		c.mu.Unlock()
		return
	}
	st.failures = 0
	st.disabled = false
	st.caps = nil
	target := st.target
	c.mu.Unlock()

	log.Info().Str("display", target.Name()).Msg("display failures reset")
	notify(c.ns, Notification{
		Type:       NotificationDisplayReset,
		DisplayKey: target.Key(),
		Display:    target.Name(),
	})
}

// perform enqueues fn on the display's worker and waits for its result.
// A disabled display rejects immediately, before any queueing.
func (c *Coordinator) perform(ctx context.Context, h transport.Handle, pri Priority, fn func(context.Context) error) error {
	c.mu.Lock()
	st, ok := c.displays[h]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownDisplay
	}
	if st.disabled {
		c.mu.Unlock()
		return ErrDeviceDisabled
	}
	c.mu.Unlock()

	o := &op{
		run:  fn,
		done: make(chan error, 1),
		pri:  pri,
	}
	if !st.queue.push(o) {
		return ErrShuttingDown
	}

	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		// The op still runs to completion on the worker; only the caller
		// stops waiting.
		return ctx.Err()
	}
}

// worker is the per-display command loop: one in-flight operation at a
// time, with mandatory spacing between operations.
func (c *Coordinator) worker(st *displayState) {
	defer c.wg.Done()

	for {
		o := st.queue.pop(c.ctx)
		if o == nil {
			return
		}

		c.mu.Lock()
		disabled := st.disabled
		last := st.lastCmd
		c.mu.Unlock()

		if disabled {
			o.done <- ErrDeviceDisabled
			continue
		}

		if !last.IsZero() {
			if wait := c.cfg.MinSpacing() - c.clock.Since(last); wait > 0 {
				if err := c.sleep(wait); err != nil {
					o.done <- ErrShuttingDown
					return
				}
			}
		}

		err := o.run(c.ctx)
		c.recordResult(st, err)
		o.done <- err
	}
}

// recordResult updates the failure counter after an operation. Success
// resets it; a failing command increments it, and crossing the threshold
// disables the display until an explicit reset.
func (c *Coordinator) recordResult(st *displayState, err error) {
	countable := err != nil && isDeviceFailure(err)

	c.mu.Lock()
	st.lastCmd = c.clock.Now()
	var disabledNow bool
	var failures int
	if err == nil {
		st.failures = 0
	} else if countable {
		st.failures++
		failures = st.failures
		if !st.disabled && st.failures >= c.cfg.FailureThreshold() {
			st.disabled = true
			disabledNow = true
		}
	}
	target := st.target
	c.mu.Unlock()

	if disabledNow {
		log.Warn().Str("display", target.Name()).Int("failures", failures).
			Msg("display disabled after repeated command failures")
		notify(c.ns, Notification{
			Type:       NotificationDisplayDisabled,
			DisplayKey: target.Key(),
			Display:    target.Name(),
			Failures:   failures,
		})
	}
}

// isDeviceFailure reports whether err should count toward disablement.
// A device that answers "feature not supported" is healthy, and caller
// cancellation says nothing about the display.
func isDeviceFailure(err error) bool {
	var unsupported *ddc.UnsupportedFeatureError
	if errors.As(err, &unsupported) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// cachedMax returns the probed maximum for feature, when known.
func (c *Coordinator) cachedMax(h transport.Handle, feature ddc.Feature) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.displays[h]
	if !ok || st.caps == nil {
		return 0
	}
	switch feature {
	case ddc.FeatureBrightness:
		return st.caps.MaxBrightness
	case ddc.FeatureContrast:
		return st.caps.MaxContrast
	default:
		return 0
	}
}

// scheduleSave arms (or re-arms) the debounced persistence of a written
// value. A newer write replaces any pending save atomically with respect
// to the coordinator's own state; cancelling never affects the DDC write
// that preceded it.
func (c *Coordinator) scheduleSave(h transport.Handle, feature ddc.Feature, value float64) {
	c.mu.Lock()
	st, ok := c.displays[h]
	if !ok {
		c.mu.Unlock()
		return
	}
	switch feature {
	case ddc.FeatureBrightness:
		st.pendingBright = &value
	case ddc.FeatureContrast:
		st.pendingContrast = &value
	default:
		c.mu.Unlock()
		return
	}
	if st.saveTimer != nil {
		st.saveTimer.Stop()
	}
	st.saveTimer = c.clock.AfterFunc(c.cfg.SaveDebounce(), func() {
		c.flushSave(h)
	})
	c.mu.Unlock()
}

// flushSave persists the pending values for h. Persistence is fire and
// forget: failures are logged, never surfaced to the command path.
func (c *Coordinator) flushSave(h transport.Handle) {
	c.mu.Lock()
	st, ok := c.displays[h]
	if !ok {
		c.mu.Unlock()
		return
	}
	bright := st.pendingBright
	contrast := st.pendingContrast
	st.pendingBright = nil
	st.pendingContrast = nil
	st.saveTimer = nil
	key := st.target.Key()
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if bright != nil {
		if err := c.store.SaveBrightness(key, *bright); err != nil {
			log.Warn().Err(err).Str("display", key).Msg("failed to persist brightness")
		}
	}
	if contrast != nil {
		if err := c.store.SaveContrast(key, *contrast); err != nil {
			log.Warn().Err(err).Str("display", key).Msg("failed to persist contrast")
		}
	}
}

// sleep waits for d on the coordinator clock, aborting on shutdown.
func (c *Coordinator) sleep(d time.Duration) error {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}
