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
	"container/heap"
	"context"
	"sync"
)

// Priority orders queued commands. Higher runs first; equal priorities
// run in submission order.
type Priority int

const (
	// PriorityLow is for background work like capability re-probes.
	PriorityLow Priority = iota
	// PriorityNormal is the default for reads.
	PriorityNormal
	// PriorityHigh is for UI-critical operations like brightness writes.
	PriorityHigh
)

// op is one deferred unit of DDC work for a display.
type op struct {
	run  func(context.Context) error
	done chan error
	pri  Priority
	seq  uint64
}

// opQueue is a priority queue feeding one display's worker. Ordering is
// strictly by priority, FIFO within a tier.
type opQueue struct {
	wake   chan struct{}
	items  opHeap
	seq    uint64
	mu     sync.Mutex
	closed bool
}

func newOpQueue() *opQueue {
	return &opQueue{wake: make(chan struct{}, 1)}
}

// push enqueues o. It returns false when the queue is already closed.
func (q *opQueue) push(o *op) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.seq++
	o.seq = q.seq
	heap.Push(&q.items, o)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an op is available, the queue closes, or ctx is done.
// It returns nil in the latter two cases.
func (q *opQueue) pop(ctx context.Context) *op {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			o := heap.Pop(&q.items).(*op)
			q.mu.Unlock()
			return o
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

// close rejects all pending ops with ErrShuttingDown and wakes the worker.
func (q *opQueue) close() {
	q.mu.Lock()
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	for _, o := range pending {
		o.done <- ErrShuttingDown
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// opHeap implements heap.Interface: highest priority first, lowest
// sequence number first within a priority.
type opHeap []*op

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	if h[i].pri != h[j].pri {
		return h[i].pri > h[j].pri
	}
	return h[i].seq < h[j].seq
}

func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) { *h = append(*h, x.(*op)) }

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	o := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return o
}
