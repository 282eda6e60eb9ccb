// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package eventlog holds the per-session durable-in-memory transition/hook
// log and the ReplayGate that deduplicates interleaved replay and live PTY
// broadcasts for a single subscriber.
package eventlog

// ReplayAction tells the caller how many leading bytes of a replay payload
// are already-seen and should be skipped, and whether this is the
// subscriber's first-ever replay (which should reset the terminal emulator
// before writing).
type ReplayAction struct {
	Skip    int
	IsFirst bool
}

// ReplayGate is ported directly from the reference implementation's
// replay_gate.rs: a nil NextOffset means "pre-replay" (Pty messages are
// dropped entirely until the first Replay arrives). Not safe for concurrent
// use — one gate per subscriber connection, used only by that connection's
// outbound goroutine.
type ReplayGate struct {
	nextOffset    *uint64
}

// NewReplayGate returns a gate in the pre-replay state.
func NewReplayGate() *ReplayGate {
	return &ReplayGate{}
}

// Reset returns the gate to the pre-replay state, used on reconnect or an
// explicit client-side terminal refresh (e.g. Ctrl+L).
func (g *ReplayGate) Reset() {
	g.nextOffset = nil
}

// Offset returns the current high-water mark, or nil if no replay has
// landed yet.
func (g *ReplayGate) Offset() *uint64 {
	return g.nextOffset
}

// OnReplay processes a Replay{data, offset, nextOffset} message. Returns nil
// if the message is entirely behind the current high-water mark and should
// be dropped.
func (g *ReplayGate) OnReplay(dataLen int, nextOffset uint64) *ReplayAction {
	isFirst := g.nextOffset == nil
	var gate uint64
	if g.nextOffset != nil {
		gate = *g.nextOffset
	}

	if !isFirst && nextOffset <= gate {
		return nil
	}

	var skip int
	if nextOffset > gate {
		skip = saturatingSub(gate, nextOffset-uint64(dataLen))
	}

	no := nextOffset
	g.nextOffset = &no
	return &ReplayAction{Skip: skip, IsFirst: isFirst}
}

// OnPty processes a Pty{data, offset} message. Returns (skip, true) or
// (0, false) if the message should be dropped entirely — either because no
// replay has landed yet, or because the message is entirely behind the gate.
func (g *ReplayGate) OnPty(dataLen int, offset uint64) (skip int, ok bool) {
	if g.nextOffset == nil {
		return 0, false
	}
	gate := *g.nextOffset
	msgEnd := offset + uint64(dataLen)
	if msgEnd <= gate {
		return 0, false
	}
	skip = saturatingSub(gate, offset)
	g.nextOffset = &msgEnd
	return skip, true
}

// saturatingSub returns max(0, int(a-b)) without underflowing on uint64
// subtraction, mirroring Rust's saturating_sub used by the reference gate.
func saturatingSub(a, b uint64) int {
	if b >= a {
		return 0
	}
	return int(a - b)
}
