// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package session implements the Session Loop: it owns one
// agent run's backend, detectors, fuser, and fan-out, and the switch
// protocol that lets an outer driver respawn a session with a new vendor
// or credentials. Grounded on the lifecycle idiom of
// internal/sessions/session.go and internal/sessions/manager.go.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/backend"
	"github.com/robmacrae/coop/internal/detect"
	"github.com/robmacrae/coop/internal/encode"
	"github.com/robmacrae/coop/internal/eventlog"
	"github.com/robmacrae/coop/internal/fuse"
	"github.com/robmacrae/coop/internal/grace"
	"github.com/robmacrae/coop/internal/input"
	"github.com/robmacrae/coop/internal/ring"
	"github.com/robmacrae/coop/internal/screen"
)

// Store is the shared surface all three transports read from and act
// through for one live session run.
type Store struct {
	ID string

	Ring      *ring.Buffer
	Screen    *screen.Screen
	Fuser     *fuse.Fuser
	Log       *eventlog.Log
	Input     *input.Pipeline
	Output    *OutputBus
	WriteLock input.WriteLock
	Nudge     encode.NudgeEncoder
	Respond   encode.RespondEncoder

	backend backend.Backend

	mu      sync.RWMutex
	usage   agentstate.Usage
	vendor  string

	switchMu      sync.Mutex
	switchPending bool
	switchCh      chan *SwitchRequest
}

// Config describes how to build one session run's components.
type Config struct {
	ID          string
	RingSize    int
	ScreenCols  int
	ScreenRows  int
	GraceWindow time.Duration
	LogDir      string
	Vendor      string
	OptionsOf   detect.OptionsParser
}

// New assembles a Store's mechanism-level components (ring, screen, grace
// timer, fuser, event log). The caller still must assign Backend, Input,
// and the vendor Nudge/Respond encoders before starting the session loop.
func New(cfg Config) (*Store, error) {
	r := ring.New(cfg.RingSize)
	scr := screen.New(cfg.ScreenCols, cfg.ScreenRows)
	log, err := eventlog.New(cfg.LogDir)
	if err != nil {
		return nil, err
	}
	g := grace.New(cfg.GraceWindow)
	f := fuse.New(g, r.TotalWritten)
	f.SnapshotLines = scr.Lines
	f.OptionsOf = cfg.OptionsOf
	f.Log = log

	return &Store{
		ID:       cfg.ID,
		Ring:     r,
		Screen:   scr,
		Fuser:    f,
		Log:      log,
		Output:   NewOutputBus(),
		vendor:   cfg.Vendor,
		switchCh: make(chan *SwitchRequest, 1),
	}, nil
}

// SetBackend attaches the backend this store's input pipeline drives.
func (s *Store) SetBackend(b backend.Backend, in *input.Pipeline) {
	s.backend = b
	s.Input = in
}

// Backend returns the active backend (for ChildPid lookups by detectors).
func (s *Store) Backend() backend.Backend {
	return s.backend
}

// Usage returns the accumulated token/cost counters.
func (s *Store) Usage() agentstate.Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// AddUsage accumulates a usage delta reported by a log-watcher detector.
func (s *Store) AddUsage(delta agentstate.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Add(delta)
}

// Vendor returns the configured agent vendor name ("claude", "gemini",
// "unknown").
func (s *Store) Vendor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vendor
}

// SwitchRequest asks the session loop to tear down the current backend and
// have the outer driver respawn with merged environment/credentials.
type SwitchRequest struct {
	Credentials map[string]string
	Force       bool
	Result      chan SwitchOutcome
}

// SwitchOutcome reports whether a switch was accepted.
type SwitchOutcome struct {
	Accepted bool
	Err      error
}

// RequestSwitch enqueues a switch request; the single-slot channel means a
// second concurrent request is rejected with SwitchInProgress.
func (s *Store) RequestSwitch(ctx context.Context, req *SwitchRequest) bool {
	s.switchMu.Lock()
	if s.switchPending && !req.Force {
		s.switchMu.Unlock()
		return false
	}
	s.switchPending = true
	s.switchMu.Unlock()

	select {
	case s.switchCh <- req:
		return true
	default:
		s.switchMu.Lock()
		s.switchPending = false
		s.switchMu.Unlock()
		return false
	}
}

// SwitchRequests exposes the channel the session loop selects on.
func (s *Store) SwitchRequests() <-chan *SwitchRequest {
	return s.switchCh
}

// clearSwitchPending is called by the session loop once it has drained a
// switch request, whether accepted or not.
func (s *Store) clearSwitchPending() {
	s.switchMu.Lock()
	s.switchPending = false
	s.switchMu.Unlock()
}
