// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
)

func TestStdoutDetectorClassifiesAndTracksLastMessage(t *testing.T) {
	stdoutCh := make(chan []byte, 1)
	d := &StdoutDetector{
		StdoutCh: stdoutCh,
		Classify: func(raw json.RawMessage) (agentstate.AgentState, string, bool) {
			return agentstate.Working(), "stdout:entry", true
		},
		ExtractMessage: func(raw json.RawMessage) (string, bool) {
			return "assistant said hi", true
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan Proposal, 4)
	go d.Run(ctx, ch)

	stdoutCh <- []byte(`{"type":"assistant"}` + "\n")

	select {
	case p := <-ch:
		if p.State.Kind != agentstate.KindWorking || p.Cause != "stdout:entry" {
			t.Fatalf("got %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a classified proposal")
	}

	deadline := time.After(time.Second)
	for d.LastMessage() == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for LastMessage to be recorded")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if d.LastMessage() != "assistant said hi" {
		t.Fatalf("LastMessage() = %q", d.LastMessage())
	}
}

func TestStdoutDetectorDropsEntriesClassifierRejects(t *testing.T) {
	stdoutCh := make(chan []byte, 1)
	d := &StdoutDetector{
		StdoutCh: stdoutCh,
		Classify: func(raw json.RawMessage) (agentstate.AgentState, string, bool) {
			return agentstate.AgentState{}, "", false
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan Proposal, 4)
	go d.Run(ctx, ch)

	stdoutCh <- []byte(`{"type":"system"}` + "\n")

	select {
	case p := <-ch:
		t.Fatalf("expected no proposal to be emitted, got %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}
