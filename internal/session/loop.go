// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/backend"
	"github.com/robmacrae/coop/internal/detect"
	"github.com/robmacrae/coop/internal/encode"
)

// Vendor bundles the vendor-specific closures and encoders a session needs.
// Exactly one of these is built per agent vendor (Claude, Gemini); unknown
// vendors leave the log and stdout classifiers unset, so those tiers are
// not installed for them.
type Vendor struct {
	Name         string
	MapHookEvent detect.MapEventFn
	ClassifyLine detect.ClassifyLineFn
	ExtractUsage func(line string) (agentstate.Usage, bool)
	ClassifyJSON detect.ClassifyJSONFn
	ExtractMsg   detect.ExtractMessageFn
	OptionsOf    detect.OptionsParser
	SetupPrompts detect.SetupPromptMatcher
	RegexRules   []detect.RegexRule
	Nudge        encode.NudgeEncoder
	Respond      encode.RespondEncoder
}

// Outcome reports how a session's run terminated.
type Outcome int

const (
	// OutcomeExit means the backend process exited (or the context was
	// canceled) and the session should not be respawned.
	OutcomeExit Outcome = iota
	// OutcomeSwitch means a SwitchRequest was accepted and the outer
	// driver should respawn the backend with merged credentials.
	OutcomeSwitch
)

// Result is returned when Loop's Run exits.
type Result struct {
	Outcome  Outcome
	Exit     backend.ExitStatus
	Err      error
	Switch   *SwitchRequest // set iff Outcome == OutcomeSwitch
}

// Loop is the Session Loop: it owns the backend for this run
// and is the only goroutine group that may write to or read from it.
// Sequence: build backend (by the caller, before New) -> install detectors
// -> start fuser, input pump and read pump -> run the backend -> wait on
// first of backend exit, cancellation, or switch request.
type Loop struct {
	Store  *Store
	Vendor Vendor

	hookRecv       *detect.HookReceiver
	hookPipe       string
	stdoutDetector *detect.StdoutDetector
}

// NewLoop wires a Loop around an already-built Store and Backend
// (Store.SetBackend must have been called).
func NewLoop(store *Store, vendor Vendor, hookPipePath string) *Loop {
	return &Loop{Store: store, Vendor: vendor, hookPipe: hookPipePath}
}

// Run executes the session loop until the backend exits, ctx is canceled,
// or a switch request is accepted. It is the only owner of the backend for
// the duration of the call.
func (l *Loop) Run(ctx context.Context) Result {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := l.Store.Backend()

	backendOut := make(chan []byte, 256)
	backendIn := make(chan []byte, 256)

	stdoutTee := make(chan []byte, 256)

	composite := l.buildDetectors(runCtx, stdoutTee)
	proposals := composite.Run(runCtx)

	// The fuser, input pump, and read pump are supervised together: each
	// runs until runCtx is canceled, and Run doesn't return until all three
	// have actually exited, not just until the backend has.
	var g errgroup.Group
	g.Go(func() error {
		l.Store.Fuser.Run(runCtx, proposals, l.lastMessage)
		return nil
	})
	g.Go(func() error {
		l.Store.Input.Run(runCtx, backendIn)
		return nil
	})
	g.Go(func() error {
		l.readPump(runCtx, backendOut, stdoutTee)
		return nil
	})

	runDone := make(chan struct {
		status backend.ExitStatus
		err    error
	}, 1)
	go func() {
		status, err := b.Run(runCtx, backendOut, backendIn)
		runDone <- struct {
			status backend.ExitStatus
			err    error
		}{status, err}
	}()

	select {
	case r := <-runDone:
		cancel()
		g.Wait()
		if l.hookRecv != nil {
			l.hookRecv.Close()
		}
		return Result{Outcome: OutcomeExit, Exit: r.status, Err: r.err}
	case <-ctx.Done():
		cancel()
		r := <-runDone
		g.Wait()
		if l.hookRecv != nil {
			l.hookRecv.Close()
		}
		return Result{Outcome: OutcomeExit, Exit: r.status, Err: ctx.Err()}
	case req := <-l.Store.SwitchRequests():
		cancel()
		<-runDone
		g.Wait()
		l.Store.clearSwitchPending()
		if l.hookRecv != nil {
			l.hookRecv.Close()
		}
		return Result{Outcome: OutcomeSwitch, Switch: req}
	}
}

// readPump drains the backend's raw output into the Ring, Screen, and a tee
// channel feeding the stdout structured detector: a broadcast loop
// generalized from raw-byte fan-out to a typed pipeline.
func (l *Loop) readPump(ctx context.Context, backendOut <-chan []byte, tee chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-backendOut:
			if !ok {
				close(tee)
				return
			}
			l.Store.Ring.Write(chunk)
			l.Store.Screen.Feed(chunk)
			offset := l.Store.Ring.TotalWritten()
			l.Store.Output.Broadcast(OutputChunk{Data: chunk, Offset: offset})
			if l.Store.Log != nil {
				l.Store.Log.AppendRecording(offset, chunk)
			}
			select {
			case tee <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Loop) lastMessage() string {
	if l.stdoutDetector == nil {
		return ""
	}
	return l.stdoutDetector.LastMessage()
}

func (l *Loop) buildDetectors(ctx context.Context, stdoutCh <-chan []byte) *detect.CompositeDetector {
	var tiers []detect.Detector

	if l.hookPipe != "" {
		if recv, err := detect.NewHookReceiver(l.hookPipe); err == nil {
			l.hookRecv = recv
			tiers = append(tiers, &detect.HookDetector{Receiver: recv, MapEvent: l.Vendor.MapHookEvent})
		}
	}

	if l.Vendor.ClassifyLine != nil {
		tiers = append(tiers, &detect.LogWatchDetector{
			Watcher:  &detect.LogWatcher{Path: l.sessionLogPath()},
			Classify: l.Vendor.ClassifyLine,
			UsageFn:  l.Vendor.ExtractUsage,
			OnUsage:  l.Store.AddUsage,
		})
	}

	stdoutDet := &detect.StdoutDetector{
		StdoutCh:       stdoutCh,
		Classify:       l.Vendor.ClassifyJSON,
		ExtractMessage: l.Vendor.ExtractMsg,
	}
	if l.Vendor.ClassifyJSON != nil {
		tiers = append(tiers, stdoutDet)
		l.stdoutDetector = stdoutDet
	}

	tiers = append(tiers, &detect.ProcessMonitor{
		ChildPID:         l.Store.Backend().ChildPid,
		RingTotalWritten: l.Store.Ring.TotalWritten,
	})

	tiers = append(tiers, &detect.ScreenClassifier{
		Snapshot:     l.Store.Screen.SnapshotFn,
		SetupPrompts: l.Vendor.SetupPrompts,
		OptionsOf:    l.Vendor.OptionsOf,
		RegexRules:   l.Vendor.RegexRules,
	})

	return &detect.CompositeDetector{Tiers: tiers}
}

func (l *Loop) sessionLogPath() string {
	return fmt.Sprintf("%s.log.jsonl", l.Store.ID)
}
