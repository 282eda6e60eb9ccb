// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package session

import (
	"context"
	"testing"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		ID:          "s1",
		RingSize:    4096,
		ScreenCols:  80,
		ScreenRows:  24,
		GraceWindow: 50 * time.Millisecond,
		LogDir:      t.TempDir(),
		Vendor:      "claude",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewAssemblesComponents(t *testing.T) {
	s := newTestStore(t)
	if s.Ring == nil || s.Screen == nil || s.Fuser == nil || s.Log == nil || s.Output == nil {
		t.Fatalf("expected all mechanism components to be non-nil, got %+v", s)
	}
	if s.Vendor() != "claude" {
		t.Fatalf("Vendor() = %q, want claude", s.Vendor())
	}
}

func TestUsageAccumulates(t *testing.T) {
	s := newTestStore(t)
	s.AddUsage(agentstate.Usage{InputTokens: 10, OutputTokens: 20})
	s.AddUsage(agentstate.Usage{InputTokens: 5, OutputTokens: 5})
	u := s.Usage()
	if u.InputTokens != 15 || u.OutputTokens != 25 {
		t.Fatalf("Usage() = %+v, want InputTokens=15 OutputTokens=25", u)
	}
}

func TestRequestSwitchRejectsConcurrentWithoutForce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &SwitchRequest{Result: make(chan SwitchOutcome, 1)}
	if !s.RequestSwitch(ctx, first) {
		t.Fatal("expected first switch request to be accepted")
	}

	second := &SwitchRequest{Result: make(chan SwitchOutcome, 1)}
	if s.RequestSwitch(ctx, second) {
		t.Fatal("expected second concurrent switch request to be rejected")
	}

	s.clearSwitchPending()
	third := &SwitchRequest{Result: make(chan SwitchOutcome, 1)}
	if !s.RequestSwitch(ctx, third) {
		t.Fatal("expected switch request to be accepted after pending cleared")
	}
}

func TestSwitchRequestsDeliversEnqueuedRequest(t *testing.T) {
	s := newTestStore(t)
	req := &SwitchRequest{Force: true}
	if !s.RequestSwitch(context.Background(), req) {
		t.Fatal("expected switch request to be accepted")
	}

	select {
	case got := <-s.SwitchRequests():
		if got != req {
			t.Fatal("expected the same request to come out of the channel")
		}
	default:
		t.Fatal("expected a pending switch request on the channel")
	}
}
