// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package encode

import (
	"fmt"

	"github.com/robmacrae/coop/internal/agentstate"
)

// ClaudeRespondEncoder encodes prompt responses for Claude's TUI picker,
// ported from original_source/crates/cli/src/driver/claude/encoding.rs.
type ClaudeRespondEncoder struct {
	InputDelay agentstate.Duration // default 200ms, expressed in nanoseconds
}

// EncodePermission sends the option digit; Claude's TUI auto-confirms on
// the number key, no Enter needed.
func (e ClaudeRespondEncoder) EncodePermission(option uint32) []agentstate.NudgeStep {
	return []agentstate.NudgeStep{{Bytes: []byte(fmt.Sprintf("%d", option)), DelayAfter: nil}}
}

// EncodePlan: options 1-3 and option 4 without feedback auto-confirm via
// digit; option 4 with feedback selects the free-text field, then types
// the feedback text followed by Enter.
func (e ClaudeRespondEncoder) EncodePlan(option uint32, feedback *string) []agentstate.NudgeStep {
	if option <= 3 || feedback == nil {
		return []agentstate.NudgeStep{{Bytes: []byte(fmt.Sprintf("%d", option)), DelayAfter: nil}}
	}
	return []agentstate.NudgeStep{
		{Bytes: []byte(fmt.Sprintf("%d", option)), DelayAfter: dur(e.InputDelay)},
		{Bytes: []byte(*feedback + "\r"), DelayAfter: nil},
	}
}

// EncodeQuestion: a single answer auto-confirms via digit (or free text +
// Enter); multiple answers are each typed with a delay, then a final
// Enter confirms the whole dialog.
func (e ClaudeRespondEncoder) EncodeQuestion(answers []QuestionAnswer, totalQuestions int) []agentstate.NudgeStep {
	if len(answers) == 0 {
		return nil
	}
	if len(answers) > 1 {
		steps := make([]agentstate.NudgeStep, 0, len(answers)+1)
		for _, a := range answers {
			steps = append(steps, agentstate.NudgeStep{
				Bytes:      claudeEncodeSingleAnswer(a),
				DelayAfter: dur(e.InputDelay),
			})
		}
		steps = append(steps, agentstate.NudgeStep{Bytes: []byte("\r"), DelayAfter: nil})
		return steps
	}
	return []agentstate.NudgeStep{{Bytes: claudeEncodeSingleAnswer(answers[0]), DelayAfter: nil}}
}

// EncodeSetup sends the option digit; Claude's TUI auto-confirms.
func (e ClaudeRespondEncoder) EncodeSetup(option uint32) []agentstate.NudgeStep {
	return []agentstate.NudgeStep{{Bytes: []byte(fmt.Sprintf("%d", option)), DelayAfter: nil}}
}

func claudeEncodeSingleAnswer(a QuestionAnswer) []byte {
	if a.Option != nil {
		return []byte(fmt.Sprintf("%d", *a.Option))
	}
	if a.Text != nil {
		return []byte(*a.Text + "\r")
	}
	return nil
}
