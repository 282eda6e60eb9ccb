// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package session

import "sync"

// OutputChunk is one fan-out unit of raw backend bytes, tagged with the
// ring offset immediately after it so a subscriber (WS client) can bridge
// between Replay catch-up and the live stream without a gap or a
// duplicate, per the ReplayGate's offset bookkeeping.
type OutputChunk struct {
	Data   []byte
	Offset uint64 // ring.TotalWritten() after this chunk was appended
}

// OutputBus fans raw PTY output out to every live WS subscriber, the same
// register/unregister/broadcast idiom internal/pty/hub.go uses for its raw
// byte stream, generalized from a single hub-owned map to Store's simpler
// mutex-guarded one (subscribe/unsubscribe here are simple map mutations,
// not channel ops, so no dedicated run-loop goroutine is needed).
type OutputBus struct {
	mu   sync.Mutex
	subs map[chan OutputChunk]struct{}
}

// NewOutputBus returns an empty bus.
func NewOutputBus() *OutputBus {
	return &OutputBus{subs: make(map[chan OutputChunk]struct{})}
}

// Subscribe registers ch to receive every future chunk.
func (b *OutputBus) Subscribe(ch chan OutputChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
}

// Unsubscribe removes ch; safe to call more than once.
func (b *OutputBus) Unsubscribe(ch chan OutputChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, ch)
}

// Broadcast fans chunk out to every subscriber. A subscriber whose buffer
// is full is skipped for this chunk rather than blocking the read pump;
// it can always recover via Replay catch-up from the ring.
func (b *OutputBus) Broadcast(chunk OutputChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- chunk:
		default:
		}
	}
}
