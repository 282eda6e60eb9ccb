// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package screen maintains a virtual-terminal snapshot of a PTY's output,
// wrapping github.com/charmbracelet/x/vt the way
// ehrlich-b-wingthing/internal/egg/vterm.go wraps it for its own
// reconnect-snapshot feature.
package screen

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/vt"
	"github.com/robmacrae/coop/internal/agentstate"
)

// Screen is a thread-safe VT100 virtual terminal. Every toggle of the
// alternate-screen mode encountered while processing a Feed call updates
// altScreen in the order the bytes declare it, rather than collapsing a
// whole chunk to a single before/after check: a chunk that enters and
// leaves the alt screen more than once is tracked faithfully, since the
// emulator's callback fires once per escape sequence as it parses the
// stream.
type Screen struct {
	mu        sync.Mutex
	emu       *vt.Emulator
	cols      int
	rows      int
	altScreen bool
	changed   bool
	sequence  uint64
}

// New creates a Screen with the given dimensions.
func New(cols, rows int) *Screen {
	s := &Screen{emu: vt.NewEmulator(cols, rows), cols: cols, rows: rows}
	s.emu.SetCallbacks(vt.Callbacks{
		AltScreen: func(on bool) {
			// Invoked synchronously from within Write, mu already held.
			s.altScreen = on
			s.changed = true
		},
	})
	return s
}

// Feed processes PTY output bytes through the emulator.
func (s *Screen) Feed(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(data) == 0 {
		return
	}
	_, _ = s.emu.Write(data)
	s.changed = true
	s.sequence++
}

// Resize changes the terminal dimensions.
func (s *Screen) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emu.Resize(cols, rows)
	s.cols, s.rows = cols, rows
	s.changed = true
}

// Lines returns the plain-text (ANSI-stripped) content of each row in the
// current grid, for detectors that pattern-match on rendered text.
func (s *Screen) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linesLocked()
}

func (s *Screen) linesLocked() []string {
	rendered := s.emu.Render()
	rows := strings.Split(rendered, "\r\n")
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, ansi.Strip(row))
	}
	return out
}

// ConsumeChanged reports whether the screen has changed since the last
// call and clears the flag, used by detectors polling on a cadence so they
// skip unchanged frames.
func (s *Screen) ConsumeChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.changed
	s.changed = false
	return changed
}

// SnapshotFn adapts a Screen into the detect.SnapshotFn shape without
// importing the detect package here, keeping the dependency direction
// screen -> (nothing) and detect -> screen.
func (s *Screen) SnapshotFn() (lines []string, changed bool) {
	s.mu.Lock()
	changedNow := s.changed
	s.changed = false
	lines = s.linesLocked()
	s.mu.Unlock()
	return lines, changedNow
}

// Snapshot captures the full point-in-time state for transport fan-out.
func (s *Screen) Snapshot() agentstate.ScreenSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.emu.CursorPosition()
	return agentstate.ScreenSnapshot{
		Lines:     s.linesLocked(),
		Cols:      s.cols,
		Rows:      s.rows,
		AltScreen: s.altScreen,
		CursorRow: pos.Y,
		CursorCol: pos.X,
		Sequence:  s.sequence,
	}
}

// AltScreen reports whether the terminal is currently in alternate-screen
// mode.
func (s *Screen) AltScreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.altScreen
}

// Close releases the underlying emulator.
func (s *Screen) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emu.Close()
}
