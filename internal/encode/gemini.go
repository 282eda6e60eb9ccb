// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package encode

import (
	"fmt"

	"github.com/robmacrae/coop/internal/agentstate"
)

// GeminiRespondEncoder encodes prompt responses for Gemini CLI's terminal
// input, ported from
// original_source/crates/cli/src/driver/gemini/encoding.rs.
type GeminiRespondEncoder struct {
	InputDelay agentstate.Duration
}

// EncodePermission: option 1 accepts ("1\r"); anything else dismisses via
// Escape.
func (e GeminiRespondEncoder) EncodePermission(option uint32) []agentstate.NudgeStep {
	if option == 1 {
		return []agentstate.NudgeStep{{Bytes: []byte("1\r"), DelayAfter: nil}}
	}
	return []agentstate.NudgeStep{{Bytes: []byte{0x1b}, DelayAfter: nil}}
}

// EncodePlan: options 1-3 accept ("y\r"); option 4 rejects ("n\r"),
// optionally followed by typed feedback text + Enter.
func (e GeminiRespondEncoder) EncodePlan(option uint32, feedback *string) []agentstate.NudgeStep {
	if option <= 3 {
		return []agentstate.NudgeStep{{Bytes: []byte("y\r"), DelayAfter: nil}}
	}
	var delay *agentstate.Duration
	if feedback != nil {
		delay = dur(e.InputDelay)
	}
	steps := []agentstate.NudgeStep{{Bytes: []byte("n\r"), DelayAfter: delay}}
	if feedback != nil {
		steps = append(steps, agentstate.NudgeStep{Bytes: []byte(*feedback + "\r"), DelayAfter: nil})
	}
	return steps
}

// EncodeQuestion: Gemini only presents single-question prompts; the first
// answer is used.
func (e GeminiRespondEncoder) EncodeQuestion(answers []QuestionAnswer, totalQuestions int) []agentstate.NudgeStep {
	if len(answers) == 0 {
		return nil
	}
	a := answers[0]
	if a.Option != nil {
		return []agentstate.NudgeStep{{Bytes: []byte(fmt.Sprintf("%d\r", *a.Option)), DelayAfter: nil}}
	}
	if a.Text != nil {
		return []agentstate.NudgeStep{{Bytes: []byte(*a.Text + "\r"), DelayAfter: nil}}
	}
	return nil
}

// EncodeSetup sends the option digit then Enter.
func (e GeminiRespondEncoder) EncodeSetup(option uint32) []agentstate.NudgeStep {
	return []agentstate.NudgeStep{
		{Bytes: []byte(fmt.Sprintf("%d", option)), DelayAfter: dur(e.InputDelay)},
		{Bytes: []byte("\r"), DelayAfter: nil},
	}
}
