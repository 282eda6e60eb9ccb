// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package fuse implements the State Fuser: it owns the
// authoritative AgentState and a monotonic sequence number, arbitrating
// between the five detector tiers. Its event loop follows the
// register/unregister/select idiom of internal/pty/hub.go, generalized
// from fan-out of raw PTY bytes to fan-out of TransitionEvents.
package fuse

import (
	"context"
	"sync"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/detect"
	"github.com/robmacrae/coop/internal/eventlog"
	"github.com/robmacrae/coop/internal/grace"
)

// DefaultCoalesceWindow is the interval during which a higher-numbered
// (less confident) tier may not downgrade an existing prompt state to
// Working/Idle.
const DefaultCoalesceWindow = 300 * time.Millisecond

// DefaultGraceCheckInterval is how often the fuser re-checks a pending
// grace timer even absent a new proposal, so a Confirmed outcome fires
// promptly once the duration elapses.
const DefaultGraceCheckInterval = 50 * time.Millisecond

// Fuser owns the authoritative AgentState for one session run.
type Fuser struct {
	Grace          *grace.Timer
	LogSize        func() uint64
	SnapshotLines  func() []string
	OptionsOf      detect.OptionsParser
	Log            *eventlog.Log
	CoalesceWindow time.Duration
	GraceInterval  time.Duration

	mu               sync.RWMutex
	state            agentstate.AgentState
	seq              uint64
	lastNonIdleTier  int
	lastTransitionAt time.Time
	pendingCause     string

	subMu sync.Mutex
	subs  map[chan agentstate.TransitionEvent]struct{}
}

// New creates a Fuser starting from the Starting state.
func New(g *grace.Timer, logSize func() uint64) *Fuser {
	return &Fuser{
		Grace:          g,
		LogSize:        logSize,
		CoalesceWindow: DefaultCoalesceWindow,
		GraceInterval:  DefaultGraceCheckInterval,
		state:          agentstate.Starting(),
		subs:           make(map[chan agentstate.TransitionEvent]struct{}),
	}
}

// Current returns the authoritative state and sequence.
func (f *Fuser) Current() (agentstate.AgentState, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state, f.seq
}

// Subscribe registers a channel to receive future transitions. Unsubscribe
// with the same channel when done; the fuser never closes subscriber
// channels itself (mirrors the caller-owns-lifecycle idiom of Hub.Register).
func (f *Fuser) Subscribe(ch chan agentstate.TransitionEvent) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	f.subs[ch] = struct{}{}
}

// Unsubscribe removes a previously registered channel.
func (f *Fuser) Unsubscribe(ch chan agentstate.TransitionEvent) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	delete(f.subs, ch)
}

func (f *Fuser) broadcast(ev agentstate.TransitionEvent) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Run consumes detector proposals until ctx is canceled or in closes.
func (f *Fuser) Run(ctx context.Context, in <-chan detect.Proposal, lastMessage func() string) {
	interval := f.GraceInterval
	if interval == 0 {
		interval = DefaultGraceCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-in:
			if !ok {
				return
			}
			f.handle(p, lastMessage)
		case <-ticker.C:
			f.checkGrace(lastMessage)
		}
	}
}

func (f *Fuser) handle(p detect.Proposal, lastMessage func() string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Exited is terminal: once emitted, the fuser stops reacting to further
	// proposals (a trailing Tier-2 log line or Tier-3 stdout read after the
	// child has already exited must not resurrect a Working/Idle state).
	if f.state.Kind == agentstate.KindExited {
		return
	}

	// Rule 1: startup gate.
	if f.state.Kind == agentstate.KindStarting {
		switch p.State.Kind {
		case agentstate.KindWorking, agentstate.KindAltScreen, agentstate.KindExited:
		default:
			return
		}
	}

	// Rule 5: prompt enrichment for screen-scraped prompts missing options.
	p.State = f.enrich(p)

	// Rule 3: idle proposals are gated by the grace timer rather than
	// emitted directly.
	if p.State.Kind == agentstate.KindIdle || p.State.Kind == agentstate.KindWaitingForInput {
		f.gateIdle(p, lastMessage)
		return
	}

	// Rule 2: tier priority / coalesce window. Error always wins.
	if p.State.Kind != agentstate.KindError && f.state.IsPrompt() {
		withinWindow := time.Since(f.lastTransitionAt) < f.coalesceWindow()
		downgrading := p.State.Kind == agentstate.KindWorking || p.State.Kind == agentstate.KindIdle
		if withinWindow && downgrading && p.Tier > f.lastNonIdleTier {
			return
		}
	}

	f.Grace.Cancel()
	f.emitLocked(p.State, p.Cause, p.Tier, lastMessageOrEmpty(lastMessage))
}

func (f *Fuser) gateIdle(p detect.Proposal, lastMessage func() string) {
	if f.Grace == nil {
		f.emitLocked(p.State, p.Cause, p.Tier, lastMessageOrEmpty(lastMessage))
		return
	}
	if !f.Grace.Pending() {
		f.Grace.Trigger(time.Now(), f.currentLogSize())
		f.pendingCause = p.Cause
	}
	f.resolveGrace(p.State, p.Tier, lastMessage)
}

func (f *Fuser) checkGrace(lastMessage func() string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Grace == nil || !f.Grace.Pending() {
		return
	}
	f.resolveGrace(agentstate.WaitingForInput(), 0, lastMessage)
}

func (f *Fuser) resolveGrace(pending agentstate.AgentState, tier int, lastMessage func() string) {
	outcome := f.Grace.Check(time.Now(), f.currentLogSize())
	switch outcome {
	case grace.Confirmed:
		cause := f.pendingCause
		f.pendingCause = ""
		f.emitLocked(pending, cause, tier, lastMessageOrEmpty(lastMessage))
	case grace.Invalidated:
		f.pendingCause = ""
	case grace.Waiting, grace.NotPending:
	}
}

func (f *Fuser) currentLogSize() uint64 {
	if f.LogSize == nil {
		return 0
	}
	return f.LogSize()
}

func (f *Fuser) coalesceWindow() time.Duration {
	if f.CoalesceWindow == 0 {
		return DefaultCoalesceWindow
	}
	return f.CoalesceWindow
}

// enrich fills in missing options on a screen-scraped prompt via the
// vendor OptionParser, marking the result as a fallback until the
// indicator stabilizes.
func (f *Fuser) enrich(p detect.Proposal) agentstate.AgentState {
	if !p.State.IsPrompt() || p.State.Prompt == nil {
		return p.State
	}
	if len(p.State.Prompt.Options) > 0 || f.OptionsOf == nil || f.SnapshotLines == nil {
		return p.State
	}
	enriched := *p.State.Prompt
	enriched.Options = f.OptionsOf(f.SnapshotLines())
	enriched.OptionsFallback = true
	enriched.Ready = false
	p.State.Prompt = &enriched
	return p.State
}

// emitLocked applies rule 4 (dedup) and, if the transition is novel,
// allocates seq, appends to the event log, and broadcasts. Caller must
// hold f.mu.
func (f *Fuser) emitLocked(next agentstate.AgentState, cause string, tier int, lastMessage string) {
	if f.state.Kind == agentstate.KindExited {
		return
	}
	if f.state.Equal(next) {
		// Still record detection metadata even when suppressing emission.
		f.lastNonIdleTier = tierOrKeep(f.lastNonIdleTier, next, tier)
		return
	}

	f.seq++
	ev := agentstate.TransitionEvent{
		Prev:        f.state,
		Next:        next,
		Seq:         f.seq,
		Cause:       cause,
		LastMessage: lastMessage,
	}
	f.state = next
	f.lastTransitionAt = time.Now()
	f.lastNonIdleTier = tierOrKeep(f.lastNonIdleTier, next, tier)

	if f.Log != nil {
		f.Log.AppendState(ev)
	}
	f.broadcast(ev)
}

func tierOrKeep(current int, state agentstate.AgentState, tier int) int {
	if state.Kind == agentstate.KindIdle || state.Kind == agentstate.KindWaitingForInput {
		return current
	}
	return tier
}

func lastMessageOrEmpty(fn func() string) string {
	if fn == nil {
		return ""
	}
	return fn()
}
