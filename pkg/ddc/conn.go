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

package ddc

import (
	"context"
	"errors"
	"time"

	"github.com/LuminoProject/lumino-core/pkg/ddc/transport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// RetryPolicy configures the retry behavior of a Conn. The defaults are
// hardware-protocol minimums, not tuning: some displays drop commands that
// are not repeated, and most need tens of milliseconds before a reply is
// ready to be read back.
type RetryPolicy struct {
	// Retries is the number of retry attempts after the immediate first
	// attempt, so an operation makes Retries+1 attempts in total.
	Retries int
	// WriteCycles is how many times each command packet is written per
	// attempt.
	WriteCycles int
	// InterWriteDelay separates repeated writes within one attempt.
	InterWriteDelay time.Duration
	// SettleDelay is waited between the last write and the reply read.
	SettleDelay time.Duration
	// BackoffBase is the first retry delay; attempt k waits
	// BackoffBase * 2^(k-1).
	BackoffBase time.Duration
	// AttemptTimeout bounds each individual transport call. Zero disables
	// the bound.
	AttemptTimeout time.Duration
	// CapsBackoff is the escalating delay schedule for capability-string
	// fragment retries, distinct from the generic backoff because
	// capability queries tolerate slower, larger separation.
	CapsBackoff []time.Duration
}

// DefaultRetryPolicy returns the stock policy: 3 retries, 2 write cycles,
// 10ms between writes, 50ms settle before reads, 40ms base backoff and a
// 200ms per-call bound.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:         3,
		WriteCycles:     2,
		InterWriteDelay: 10 * time.Millisecond,
		SettleDelay:     50 * time.Millisecond,
		BackoffBase:     40 * time.Millisecond,
		AttemptTimeout:  200 * time.Millisecond,
		CapsBackoff: []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
		},
	}
}

// Conn issues VCP get/set operations against a transport, applying the
// retry policy. It holds no per-call state and is safe for concurrent use
// as long as the transport is; serialization per display is the command
// coordinator's job, not Conn's.
type Conn struct {
	tr     transport.Transport
	clock  clockwork.Clock
	policy RetryPolicy
	addr   uint16
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithClock replaces the wall clock, for tests.
func WithClock(clock clockwork.Clock) ConnOption {
	return func(c *Conn) { c.clock = clock }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) ConnOption {
	return func(c *Conn) { c.policy = p }
}

// WithAddr overrides the DDC slave address.
func WithAddr(addr uint16) ConnOption {
	return func(c *Conn) { c.addr = addr }
}

// NewConn creates a Conn over tr with the default policy and real clock.
func NewConn(tr transport.Transport, opts ...ConnOption) *Conn {
	c := &Conn{
		tr:     tr,
		clock:  clockwork.NewRealClock(),
		policy: DefaultRetryPolicy(),
		addr:   transport.DDCAddr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadVCP reads the current and maximum value of a VCP feature.
func (c *Conn) ReadVCP(ctx context.Context, h transport.Handle, code Feature) (VCPReply, error) {
	var reply VCPReply
	err := c.withRetries(ctx, func(ctx context.Context) error {
		r, err := c.attemptRead(ctx, h, code)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	return reply, err
}

// WriteVCP sets a VCP feature to a 16-bit value.
func (c *Conn) WriteVCP(ctx context.Context, h transport.Handle, code Feature, value uint16) error {
	return c.withRetries(ctx, func(ctx context.Context) error {
		return c.writeCycles(ctx, h, BuildWritePacket(setVCPPayload(code, value)))
	})
}

// withRetries runs op with exponential backoff. Attempt 0 is immediate;
// attempt k waits BackoffBase * 2^(k-1). A device-reported unsupported
// feature is a definitive answer and is returned without further attempts.
func (c *Conn) withRetries(ctx context.Context, op func(context.Context) error) error {
	attempts := c.policy.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.policy.BackoffBase<<(attempt-1)); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var unsupported *UnsupportedFeatureError
		if errors.As(err, &unsupported) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt+1).Int("of", attempts).
			Msg("ddc attempt failed")
	}
	return &ExhaustedError{Attempts: attempts, LastErr: lastErr}
}

// attemptRead performs one full get-VCP attempt: repeated writes, settle
// delay, then the reply read and parse.
func (c *Conn) attemptRead(ctx context.Context, h transport.Handle, code Feature) (VCPReply, error) {
	if err := c.writeCycles(ctx, h, BuildWritePacket(getVCPPayload(code))); err != nil {
		return VCPReply{}, err
	}
	if err := c.sleep(ctx, c.policy.SettleDelay); err != nil {
		return VCPReply{}, err
	}
	buf, err := c.read(ctx, h, ReplyLength)
	if err != nil {
		return VCPReply{}, err
	}
	return ParseVCPReply(buf)
}

// writeCycles writes pkt WriteCycles times with InterWriteDelay between
// repetitions. Some displays ignore a command that arrives only once.
func (c *Conn) writeCycles(ctx context.Context, h transport.Handle, pkt []byte) error {
	cycles := c.policy.WriteCycles
	if cycles < 1 {
		cycles = 1
	}
	for i := 0; i < cycles; i++ {
		if i > 0 {
			if err := c.sleep(ctx, c.policy.InterWriteDelay); err != nil {
				return err
			}
		}
		if err := c.write(ctx, h, pkt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) write(ctx context.Context, h transport.Handle, pkt []byte) error {
	return c.bounded(ctx, func(ctx context.Context) error {
		return c.tr.Write(ctx, h, c.addr, pkt)
	})
}

func (c *Conn) read(ctx context.Context, h transport.Handle, n int) ([]byte, error) {
	var buf []byte
	err := c.bounded(ctx, func(ctx context.Context) error {
		b, err := c.tr.Read(ctx, h, c.addr, n)
		if err != nil {
			return err
		}
		buf = b
		return nil
	})
	return buf, err
}

// bounded runs one transport call under the attempt timeout. A call that
// overruns is abandoned and treated as a transport error; the transport's
// own goroutine finishes into a buffered channel and is not leaked.
func (c *Conn) bounded(ctx context.Context, call func(context.Context) error) error {
	if c.policy.AttemptTimeout <= 0 {
		return call(ctx)
	}

	done := make(chan error, 1)
	go func() {
		done <- call(ctx)
	}()

	timer := c.clock.NewTimer(c.policy.AttemptTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.Chan():
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleep waits for d on the injected clock, honoring ctx cancellation.
func (c *Conn) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
