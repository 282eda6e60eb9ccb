// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package encode converts high-level nudge/respond intents into ordered
// byte-write steps the input pipeline replays against the backend.
// Grounded on original_source/crates/cli/src/driver/{mod.rs,nudge.rs,
// claude/encoding.rs,gemini/encoding.rs}.
package encode

import "github.com/robmacrae/coop/internal/agentstate"

// NudgeEncoder turns a plain-text nudge message into byte-write steps.
type NudgeEncoder interface {
	Encode(message string) []agentstate.NudgeStep
}

// QuestionAnswer is one answer within a (possibly multi-question) prompt
// response: either a selected option number or free text.
type QuestionAnswer struct {
	Option *uint32
	Text   *string
}

// RespondEncoder turns a structured prompt response into byte-write steps.
// Every implementation must honor the invariant that the final step's
// DelayAfter is nil.
type RespondEncoder interface {
	EncodePermission(option uint32) []agentstate.NudgeStep
	EncodePlan(option uint32, feedback *string) []agentstate.NudgeStep
	EncodeQuestion(answers []QuestionAnswer, totalQuestions int) []agentstate.NudgeStep
	EncodeSetup(option uint32) []agentstate.NudgeStep
}

// SetupDisposition names how a setup/disruption prompt is auto-dismissed.
type SetupDisposition struct {
	Kind    string
	Subtype string
}

// SetupTable maps (PromptKind, subtype) to the option number sent
// unattended. Entries not present require operator action.
var SetupTable = map[SetupDisposition]uint32{
	{Kind: "permission_prompt", Subtype: "workspace_trust"}:      1,
	{Kind: "permission_prompt", Subtype: "permissions_bypass"}:   2,
}

// LookupSetup reports the unattended option number for a setup prompt, if
// one is configured.
func LookupSetup(kind, subtype string) (uint32, bool) {
	opt, ok := SetupTable[SetupDisposition{Kind: kind, Subtype: subtype}]
	return opt, ok
}

func dur(d agentstate.Duration) *agentstate.Duration { return &d }
