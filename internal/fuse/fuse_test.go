// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package fuse

import (
	"testing"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/detect"
	"github.com/robmacrae/coop/internal/grace"
)

func TestNewStartsInStartingState(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	state, seq := f.Current()
	if state.Kind != agentstate.KindStarting || seq != 0 {
		t.Fatalf("got state=%v seq=%d, want starting/0", state, seq)
	}
}

func TestHandleIgnoresNonWorkingProposalsDuringStartup(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.handle(detect.Proposal{State: agentstate.Idle(), Tier: 4}, nil)
	state, _ := f.Current()
	if state.Kind != agentstate.KindStarting {
		t.Fatalf("expected idle proposal to be gated during startup, got %v", state)
	}
}

func TestHandleAllowsWorkingProposalDuringStartup(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	state, seq := f.Current()
	if state.Kind != agentstate.KindWorking || seq != 1 {
		t.Fatalf("got state=%v seq=%d, want working/1", state, seq)
	}
}

func TestHandleDedupsIdenticalState(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	_, seqAfterFirst := f.Current()

	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	_, seqAfterSecond := f.Current()

	if seqAfterFirst != seqAfterSecond {
		t.Fatalf("expected a duplicate state to not bump seq: %d vs %d", seqAfterFirst, seqAfterSecond)
	}
}

func TestHandleFreezesAfterExited(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	f.handle(detect.Proposal{State: agentstate.Exited(agentstate.ExitStatus{}), Tier: 4}, nil)
	_, seqAtExit := f.Current()

	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 2}, nil)
	state, seqAfter := f.Current()

	if state.Kind != agentstate.KindExited {
		t.Fatalf("expected state to remain Exited, got %v", state)
	}
	if seqAfter != seqAtExit {
		t.Fatalf("expected seq to stay at %d after a post-exit proposal, got %d", seqAtExit, seqAfter)
	}
}

func TestHandleErrorAlwaysWinsOverPrompt(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	f.handle(detect.Proposal{State: agentstate.PermissionPrompt(agentstate.PromptContext{}), Tier: 1}, nil)

	f.handle(detect.Proposal{State: agentstate.Error("boom", agentstate.CategoryOther), Tier: 5}, nil)
	state, _ := f.Current()
	if state.Kind != agentstate.KindError {
		t.Fatalf("expected an error proposal to override a pending prompt, got %v", state)
	}
}

func TestHandleLowerTierCannotDowngradeWithinCoalesceWindow(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.CoalesceWindow = time.Hour
	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	f.handle(detect.Proposal{State: agentstate.PermissionPrompt(agentstate.PromptContext{}), Tier: 1}, nil)

	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 5}, nil)
	state, _ := f.Current()
	if state.Kind != agentstate.KindPermissionPrompt {
		t.Fatalf("expected a lower-confidence tier to not downgrade a prompt, got %v", state)
	}
}

func TestGateIdleConfirmsAfterGraceElapses(t *testing.T) {
	logSize := uint64(10)
	f := New(grace.New(10*time.Millisecond), func() uint64 { return logSize })
	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)

	f.handle(detect.Proposal{State: agentstate.Idle(), Tier: 4}, nil)
	state, _ := f.Current()
	if state.Kind != agentstate.KindWorking {
		t.Fatalf("expected idle to stay gated immediately after trigger, got %v", state)
	}

	time.Sleep(20 * time.Millisecond)
	f.checkGrace(nil)
	state, _ = f.Current()
	if state.Kind != agentstate.KindWaitingForInput {
		t.Fatalf("expected the grace timer to confirm waiting_for_input, got %v", state)
	}
}

func TestGateIdleInvalidatedByLogGrowth(t *testing.T) {
	logSize := uint64(10)
	f := New(grace.New(10*time.Millisecond), func() uint64 { return logSize })
	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	f.handle(detect.Proposal{State: agentstate.Idle(), Tier: 4}, nil)

	logSize = 20
	time.Sleep(20 * time.Millisecond)
	f.checkGrace(nil)
	state, _ := f.Current()
	if state.Kind != agentstate.KindWorking {
		t.Fatalf("expected continued log growth to invalidate the idle candidate, got %v", state)
	}
}

func TestSubscribeAndUnsubscribeStopsDelivery(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	ch := make(chan agentstate.TransitionEvent, 4)
	f.Subscribe(ch)

	f.handle(detect.Proposal{State: agentstate.Working(), Tier: 3}, nil)
	select {
	case <-ch:
	default:
		t.Fatal("expected a transition to be broadcast to the subscriber")
	}

	f.Unsubscribe(ch)
	f.handle(detect.Proposal{State: agentstate.Exited(agentstate.ExitStatus{}), Tier: 4}, nil)
	select {
	case <-ch:
		t.Fatal("expected no further delivery after unsubscribe")
	default:
	}
}

func TestEnrichFillsMissingOptionsOnScreenScrapedPrompt(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.OptionsOf = func(lines []string) []string { return []string{"Yes", "No"} }
	f.SnapshotLines = func() []string { return []string{"some prompt text"} }

	p := detect.Proposal{State: agentstate.PermissionPrompt(agentstate.PromptContext{}), Tier: 5}
	enriched := f.enrich(p)
	if enriched.Prompt == nil || len(enriched.Prompt.Options) != 2 || !enriched.Prompt.OptionsFallback {
		t.Fatalf("got %+v, want enriched fallback options", enriched.Prompt)
	}
}

func TestEnrichLeavesPromptWithExistingOptionsAlone(t *testing.T) {
	f := New(grace.New(0), func() uint64 { return 0 })
	f.OptionsOf = func(lines []string) []string { return []string{"should", "not", "be", "used"} }
	f.SnapshotLines = func() []string { return nil }

	p := detect.Proposal{State: agentstate.PermissionPrompt(agentstate.PromptContext{Options: []string{"Yes"}})}
	enriched := f.enrich(p)
	if len(enriched.Prompt.Options) != 1 || enriched.Prompt.OptionsFallback {
		t.Fatalf("got %+v, want the existing option left untouched", enriched.Prompt)
	}
}
