// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package encode

import "github.com/robmacrae/coop/internal/agentstate"

// nudgeLengthThreshold bounds the per-byte delay scaling so extremely long
// nudge messages don't produce an unbounded wait.
const nudgeLengthThreshold = 256

// computeNudgeDelay scales the pre-Enter delay by message length once it
// exceeds the threshold, ported from
// original_source/crates/cli/src/driver/nudge.rs's compute_nudge_delay.
func computeNudgeDelay(base, perByte agentstate.Duration, messageLen int) agentstate.Duration {
	if messageLen <= nudgeLengthThreshold {
		return base
	}
	scaled := messageLen
	if scaled > nudgeLengthThreshold {
		scaled = nudgeLengthThreshold
	}
	return base + perByte*agentstate.Duration(scaled)
}

// SafeNudgeEncoder types a message, waits a length-scaled delay, then
// presses Enter. Shared by all vendor drivers.
type SafeNudgeEncoder struct {
	InputDelay        agentstate.Duration
	InputDelayPerByte agentstate.Duration
}

func (e SafeNudgeEncoder) Encode(message string) []agentstate.NudgeStep {
	delay := computeNudgeDelay(e.InputDelay, e.InputDelayPerByte, len(message))
	return []agentstate.NudgeStep{
		{Bytes: []byte(message), DelayAfter: dur(delay)},
		{Bytes: []byte("\r"), DelayAfter: nil},
	}
}
