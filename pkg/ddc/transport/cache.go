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

package transport

import (
	"github.com/LuminoProject/lumino-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// HandleCache caches expensive per-handle state (an opened bus device) so
// each handle pays its setup cost once. Concurrent first-time lookups for
// the same handle are collapsed by singleflight so two callers can never
// race to create duplicate entries.
type HandleCache[T any] struct {
	open    func(Handle) (T, error)
	close   func(T) error
	entries map[Handle]T
	group   singleflight.Group
	mu      syncutil.RWMutex
}

// NewHandleCache creates a cache that opens entries with open and releases
// them with closeFn. closeFn may be nil if entries need no cleanup.
func NewHandleCache[T any](open func(Handle) (T, error), closeFn func(T) error) *HandleCache[T] {
	return &HandleCache[T]{
		open:    open,
		close:   closeFn,
		entries: make(map[Handle]T),
	}
}

// Get returns the cached entry for h, opening it on first use.
func (c *HandleCache[T]) Get(h Handle) (T, error) {
	c.mu.RLock()
	entry, ok := c.entries[h]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	v, err, _ := c.group.Do(string(h), func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[h]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}

		opened, err := c.open(h)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[h] = opened
		c.mu.Unlock()
		return opened, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	result, ok := v.(T)
	if !ok {
		var zero T
		return zero, ErrInvalidHandle
	}
	return result, nil
}

// Invalidate releases and forgets the cached entry for h, if any.
func (c *HandleCache[T]) Invalidate(h Handle) {
	c.mu.Lock()
	entry, ok := c.entries[h]
	delete(c.entries, h)
	c.mu.Unlock()

	if ok && c.close != nil {
		if err := c.close(entry); err != nil {
			log.Warn().Err(err).Str("handle", string(h)).
				Msg("failed to release cached handle state")
		}
	}
}

// Close releases every cached entry.
func (c *HandleCache[T]) Close() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[Handle]T)
	c.mu.Unlock()

	var firstErr error
	for h, entry := range entries {
		if c.close == nil {
			continue
		}
		if err := c.close(entry); err != nil {
			log.Warn().Err(err).Str("handle", string(h)).
				Msg("failed to release cached handle state")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
