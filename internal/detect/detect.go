// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package detect implements the five tiered state-detection sources:
// hook/NATS (T1), log watcher (T2), structured stdout (T3), process
// monitor (T4), and screen classifier (T5). Grounded structurally on
// original_source/crates/cli/src/driver/mod.rs's Detector trait and
// CompositeDetector struct.
package detect

import (
	"context"

	"github.com/robmacrae/coop/internal/agentstate"
)

// Proposal is one (state, cause) pair emitted by a detector, tagged with
// the detector's tier so the fuser can apply tier-priority rules.
type Proposal struct {
	State agentstate.AgentState
	Cause string
	Tier  int
}

// Detector is a state detection source. Run blocks until ctx is cancelled
// or the detector's own input is exhausted; it never closes stateCh (the
// CompositeDetector's runner owns that). Tier reports the detector's
// confidence ranking (1 = highest), a property of the tier assignment, not
// of any individual message.
type Detector interface {
	Run(ctx context.Context, stateCh chan<- Proposal)
	Tier() int
}

// CompositeDetector runs every installed tier concurrently, fanning their
// proposals into a single channel for the fuser to consume.
type CompositeDetector struct {
	Tiers []Detector
}

// Run starts every tier in its own goroutine and returns a channel carrying
// all their proposals. The channel is closed once ctx is cancelled and
// every tier has returned.
func (c *CompositeDetector) Run(ctx context.Context) <-chan Proposal {
	out := make(chan Proposal, 64)
	done := make(chan struct{}, len(c.Tiers))
	for _, d := range c.Tiers {
		go func(d Detector) {
			d.Run(ctx, out)
			done <- struct{}{}
		}(d)
	}
	go func() {
		for range c.Tiers {
			<-done
		}
		close(out)
	}()
	return out
}
