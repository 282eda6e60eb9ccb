// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import (
	"context"
	"syscall"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
)

// IsProcessAlive probes whether a process with the given PID is alive via a
// signal-0 kill, matching original_source/driver/process.rs.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// ProcessMonitor is the Tier 4 detector: polls child liveness and ring
// activity. It never emits Idle directly.
type ProcessMonitor struct {
	ChildPID         func() (int, bool)
	RingTotalWritten func() uint64
	PollInterval     time.Duration
}

func (m *ProcessMonitor) Tier() int { return 4 }

func (m *ProcessMonitor) Run(ctx context.Context, stateCh chan<- Proposal) {
	interval := m.PollInterval
	if interval == 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastWritten := m.RingTotalWritten()
	wasActive := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := m.RingTotalWritten()
		active := current > lastWritten
		lastWritten = current

		if active && !wasActive {
			select {
			case stateCh <- Proposal{State: agentstate.Working(), Cause: "process:activity", Tier: m.Tier()}:
			case <-ctx.Done():
				return
			}
		}
		wasActive = active

		if pid, ok := m.ChildPID(); ok {
			if !IsProcessAlive(pid) {
				select {
				case stateCh <- Proposal{State: agentstate.Exited(agentstate.ExitStatus{}), Cause: "process:exit", Tier: m.Tier()}:
				case <-ctx.Done():
				}
				return
			}
		}
	}
}
