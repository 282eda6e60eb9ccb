// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package input implements the Input Pipeline: a single
// serialized writer draining Write/Resize/Signal/WaitForDrain events into
// the backend, plus a WriteLock enforcing exclusive non-display writers.
// Grounded on internal/pty/hub.go's Write/WriteAgent/Resize/Signal gating.
package input

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/robmacrae/coop/internal/backend"
	"github.com/robmacrae/coop/internal/screen"
)

// ErrWriterBusy is surfaced to the transport when a non-holder attempts a
// write while the WriteLock is held by someone else.
var ErrWriterBusy = errors.New("input: writer busy")

// WriteLock enforces a single exclusive non-display writer across HTTP and
// WS transports. The zero value is unlocked. Release is always safe
// (idempotent, drop-based).
type WriteLock struct {
	holder atomic.Value // string
}

// TryAcquire claims the lock for owner if unheld or already held by owner.
func (l *WriteLock) TryAcquire(owner string) bool {
	for {
		raw := l.holder.Load()
		cur, _ := raw.(string)
		if cur != "" && cur != owner {
			return false
		}
		if l.holder.CompareAndSwap(raw, owner) {
			return true
		}
	}
}

// Release clears the lock if held by owner; safe to call even if unheld or
// held by someone else (no-op in that case).
func (l *WriteLock) Release(owner string) {
	l.holder.CompareAndSwap(owner, "")
}

// Holder returns the current lock holder, or "" if unheld.
func (l *WriteLock) Holder() string {
	cur, _ := l.holder.Load().(string)
	return cur
}

// event is the internal mpsc payload; exactly one field is set.
type event struct {
	write   []byte
	resize  *resizeEvent
	signal  *backend.Signal
	drainAt chan struct{}
}

type resizeEvent struct {
	cols, rows uint16
}

// Pipeline drains a single channel of input events, forwarding writes to
// the backend and keeping Screen's dimensions in sync on resize.
type Pipeline struct {
	Backend backend.Backend
	Screen  *screen.Screen

	events chan event
}

// New creates a Pipeline with a buffered event channel.
func New(b backend.Backend, s *screen.Screen) *Pipeline {
	return &Pipeline{Backend: b, Screen: s, events: make(chan event, 256)}
}

// Write enqueues bytes to forward to the backend.
func (p *Pipeline) Write(data []byte) {
	p.events <- event{write: data}
}

// Resize enqueues a resize to propagate to both the backend and Screen.
func (p *Pipeline) Resize(cols, rows uint16) {
	p.events <- event{resize: &resizeEvent{cols: cols, rows: rows}}
}

// Signal enqueues a signal delivery to the child.
func (p *Pipeline) Signal(sig backend.Signal) {
	p.events <- event{signal: &sig}
}

// WaitForDrain blocks until Run has handed every write enqueued before this
// call to the backend's input channel. It does not wait for the backend to
// have written those bytes to the child.
func (p *Pipeline) WaitForDrain(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.events <- event{drainAt: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains events until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context, backendIn chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			switch {
			case ev.write != nil:
				select {
				case backendIn <- ev.write:
				case <-ctx.Done():
					return
				}
			case ev.resize != nil:
				if err := p.Backend.Resize(ev.resize.cols, ev.resize.rows); err != nil {
					// Resize errors are non-fatal and dropped here,
					// since the pipeline has no logger of its own.
					_ = err
				}
				if p.Screen != nil {
					p.Screen.Resize(int(ev.resize.cols), int(ev.resize.rows))
				}
			case ev.signal != nil:
				_ = p.Backend.Signal(*ev.signal)
			case ev.drainAt != nil:
				close(ev.drainAt)
			}
		}
	}
}
