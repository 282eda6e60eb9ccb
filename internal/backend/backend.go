// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package backend implements the spawn-and-I/O surface a session drives:
// a native PTY, or an attachment to an existing tmux/screen multiplexer
// session. Grounded on the capability-set idiom of
// internal/pty/pty.go, generalized to an interface so the session loop can
// swap implementations.
package backend

import (
	"context"
)

// ExitStatus reports how a backend's child/session ended.
type ExitStatus struct {
	Code   *int
	Signal *int
}

// Signal is a process signal deliverable to a backend's child.
type Signal int

// Backend is the object-safe capability set a session drives: run the
// child until it exits, resize its window, and look up its PID (for
// liveness probing by the process-monitor detector).
type Backend interface {
	// Run executes until the child/session exits or ctx is canceled,
	// streaming raw output to out and consuming input from in. It
	// returns the terminal exit status.
	Run(ctx context.Context, out chan<- []byte, in <-chan []byte) (ExitStatus, error)

	// Resize propagates a window size change. Errors are logged by the
	// caller and are non-fatal.
	Resize(cols, rows uint16) error

	// ChildPid returns the PID of the child/session leader, if known.
	// Attach backends resolve this via a multiplexer protocol query and
	// may return ok=false before the session is located.
	ChildPid() (pid int, ok bool)

	// Signal delivers a signal to the child/session leader.
	Signal(sig Signal) error

	// Close releases backend resources. The native backend also kills
	// its child if still running; the attach backend only marks itself
	// closed and leaves the multiplexer session running.
	Close() error
}
