// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package encode

import (
	"testing"

	"github.com/robmacrae/coop/internal/agentstate"
)

func u32(v uint32) *uint32 { return &v }
func str(v string) *string { return &v }

func TestSafeNudgeEncoderEndsWithEnter(t *testing.T) {
	e := SafeNudgeEncoder{InputDelay: 200}
	steps := e.Encode("hello")
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if string(steps[0].Bytes) != "hello" || steps[0].DelayAfter == nil {
		t.Fatalf("steps[0] = %+v", steps[0])
	}
	if string(steps[1].Bytes) != "\r" || steps[1].DelayAfter != nil {
		t.Fatalf("steps[1] = %+v, want final step with nil DelayAfter", steps[1])
	}
}

func TestSafeNudgeEncoderScalesDelayForLongMessages(t *testing.T) {
	e := SafeNudgeEncoder{InputDelay: 200, InputDelayPerByte: 1}
	short := e.Encode("short")
	long := e.Encode(string(make([]byte, 500)))
	if *short[0].DelayAfter != 200 {
		t.Fatalf("short delay = %d, want base 200", *short[0].DelayAfter)
	}
	if *long[0].DelayAfter <= 200 {
		t.Fatalf("long delay = %d, want scaled above base 200", *long[0].DelayAfter)
	}
}

func TestClaudeRespondEncoderPermissionIsDigitOnly(t *testing.T) {
	e := ClaudeRespondEncoder{}
	steps := e.EncodePermission(2)
	if len(steps) != 1 || string(steps[0].Bytes) != "2" || steps[0].DelayAfter != nil {
		t.Fatalf("got %+v", steps)
	}
}

func TestClaudeRespondEncoderPlanWithFeedbackTypesText(t *testing.T) {
	e := ClaudeRespondEncoder{InputDelay: 200}
	steps := e.EncodePlan(4, str("do it differently"))
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if string(steps[1].Bytes) != "do it differently\r" {
		t.Fatalf("steps[1].Bytes = %q", steps[1].Bytes)
	}
	if steps[len(steps)-1].DelayAfter != nil {
		t.Fatal("expected the final step to have nil DelayAfter")
	}
}

func TestClaudeRespondEncoderMultiQuestionEndsWithEnter(t *testing.T) {
	e := ClaudeRespondEncoder{InputDelay: 200}
	steps := e.EncodeQuestion([]QuestionAnswer{{Option: u32(1)}, {Text: str("yes")}}, 2)
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3 (2 answers + final enter)", len(steps))
	}
	last := steps[len(steps)-1]
	if string(last.Bytes) != "\r" || last.DelayAfter != nil {
		t.Fatalf("last step = %+v, want a bare Enter with nil delay", last)
	}
}

func TestClaudeRespondEncoderSingleQuestionNoTrailingEnter(t *testing.T) {
	e := ClaudeRespondEncoder{}
	steps := e.EncodeQuestion([]QuestionAnswer{{Option: u32(3)}}, 1)
	if len(steps) != 1 || string(steps[0].Bytes) != "3" {
		t.Fatalf("got %+v", steps)
	}
}

func TestGeminiRespondEncoderPermissionAcceptOrDismiss(t *testing.T) {
	e := GeminiRespondEncoder{}
	accept := e.EncodePermission(1)
	if len(accept) != 1 || string(accept[0].Bytes) != "1\r" {
		t.Fatalf("accept = %+v", accept)
	}
	reject := e.EncodePermission(2)
	if len(reject) != 1 || reject[0].Bytes[0] != 0x1b {
		t.Fatalf("reject = %+v, want an Escape byte", reject)
	}
}

func TestGeminiRespondEncoderPlanRejectWithoutFeedback(t *testing.T) {
	e := GeminiRespondEncoder{}
	steps := e.EncodePlan(4, nil)
	if len(steps) != 1 || string(steps[0].Bytes) != "n\r" || steps[0].DelayAfter != nil {
		t.Fatalf("got %+v", steps)
	}
}

func TestGeminiRespondEncoderPlanRejectWithFeedback(t *testing.T) {
	e := GeminiRespondEncoder{InputDelay: 200}
	steps := e.EncodePlan(4, str("try again"))
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].DelayAfter == nil {
		t.Fatal("expected a delay before typing feedback")
	}
	if string(steps[1].Bytes) != "try again\r" {
		t.Fatalf("steps[1].Bytes = %q", steps[1].Bytes)
	}
}

func TestGeminiRespondEncoderSetupTypesThenEnter(t *testing.T) {
	e := GeminiRespondEncoder{InputDelay: 200}
	steps := e.EncodeSetup(1)
	if len(steps) != 2 || string(steps[0].Bytes) != "1" || string(steps[1].Bytes) != "\r" {
		t.Fatalf("got %+v", steps)
	}
}

func TestLookupSetupKnownAndUnknown(t *testing.T) {
	if opt, ok := LookupSetup("permission_prompt", "workspace_trust"); !ok || opt != 1 {
		t.Fatalf("got opt=%d ok=%v, want 1/true", opt, ok)
	}
	if _, ok := LookupSetup("permission_prompt", "unlisted"); ok {
		t.Fatal("expected an unlisted setup disposition to be absent")
	}
}

func TestDurReturnsPointerToValue(t *testing.T) {
	d := dur(agentstate.Duration(42))
	if d == nil || *d != 42 {
		t.Fatalf("dur(42) = %v, want pointer to 42", d)
	}
}
