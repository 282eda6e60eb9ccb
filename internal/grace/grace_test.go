// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package grace

import (
	"testing"
	"time"
)

func TestNotPendingUntilTriggered(t *testing.T) {
	timer := New(time.Second)
	if got := timer.Check(time.Now(), 0); got != NotPending {
		t.Fatalf("got %v, want NotPending", got)
	}
}

func TestZeroDurationConfirmsImmediately(t *testing.T) {
	timer := New(0)
	now := time.Now()
	timer.Trigger(now, 100)
	if got := timer.Check(now, 100); got != Confirmed {
		t.Fatalf("got %v, want Confirmed", got)
	}
}

func TestWaitingBeforeDurationElapses(t *testing.T) {
	timer := New(time.Minute)
	now := time.Now()
	timer.Trigger(now, 100)
	if got := timer.Check(now.Add(time.Second), 100); got != Waiting {
		t.Fatalf("got %v, want Waiting", got)
	}
}

func TestInvalidatedOnLogGrowth(t *testing.T) {
	timer := New(time.Minute)
	now := time.Now()
	timer.Trigger(now, 100)
	if got := timer.Check(now.Add(time.Second), 150); got != Invalidated {
		t.Fatalf("got %v, want Invalidated", got)
	}
	// Invalidation clears pending state.
	if timer.Pending() {
		t.Fatal("expected pending to be cleared after invalidation")
	}
}

func TestConfirmedAfterDurationElapses(t *testing.T) {
	timer := New(time.Second)
	now := time.Now()
	timer.Trigger(now, 100)
	if got := timer.Check(now.Add(2*time.Second), 100); got != Confirmed {
		t.Fatalf("got %v, want Confirmed", got)
	}
	if timer.Pending() {
		t.Fatal("expected pending to be cleared after confirmation")
	}
}

func TestCancelClearsPending(t *testing.T) {
	timer := New(time.Minute)
	timer.Trigger(time.Now(), 10)
	timer.Cancel()
	if timer.Pending() {
		t.Fatal("expected cancel to clear pending")
	}
}
