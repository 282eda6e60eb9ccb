// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package session

import (
	"regexp"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/detect"
	"github.com/robmacrae/coop/internal/encode"
)

var genericErrorRule = detect.RegexRule{
	Pattern: regexp.MustCompile(`(?i)^\s*(error|traceback|panic):`),
	Kind:    "error",
}

var genericWorkingRule = detect.RegexRule{
	Pattern: regexp.MustCompile(`(?i)(thinking|working|generating)\s*\.{0,3}\s*$`),
	Kind:    "working",
}

// ClaudeVendor builds the Vendor wiring for Claude Code sessions.
func ClaudeVendor(inputDelay agentstate.Duration) Vendor {
	return Vendor{
		Name:         "claude",
		MapHookEvent: detect.ClaudeMapHookEvent,
		ClassifyLine: detect.ClaudeClassifyLogLine,
		ExtractUsage: detect.ClaudeExtractUsage,
		ClassifyJSON: detect.ClaudeClassifyStdout,
		ExtractMsg:   detect.ClaudeExtractMessage,
		OptionsOf:    detect.ClaudeOptionsParser,
		SetupPrompts: detect.ClaudeSetupPrompts,
		RegexRules:   []detect.RegexRule{genericErrorRule, genericWorkingRule},
		Nudge:        encode.SafeNudgeEncoder{InputDelay: inputDelay},
		Respond:      encode.ClaudeRespondEncoder{InputDelay: inputDelay},
	}
}

// GeminiVendor builds the Vendor wiring for Gemini CLI sessions. Gemini has
// no structured stdout stream or screen setup-prompt vocabulary of its own
//, so it reuses Claude's screen-side classifiers, which the
// detector closures themselves already delegate to (detect.GeminiMapHookEvent,
// detect.GeminiClassifyLogLine).
func GeminiVendor(inputDelay agentstate.Duration) Vendor {
	return Vendor{
		Name:         "gemini",
		MapHookEvent: detect.GeminiMapHookEvent,
		ClassifyLine: detect.GeminiClassifyLogLine,
		ExtractUsage: detect.ClaudeExtractUsage,
		OptionsOf:    detect.ClaudeOptionsParser,
		SetupPrompts: detect.ClaudeSetupPrompts,
		RegexRules:   []detect.RegexRule{genericErrorRule, genericWorkingRule},
		Nudge:        encode.SafeNudgeEncoder{InputDelay: inputDelay},
		Respond:      encode.GeminiRespondEncoder{InputDelay: inputDelay},
	}
}

// UnknownVendor builds a minimal Vendor for an unrecognized agent command:
// screen classification and process monitoring only, no hook/log/stdout
// structured sources.
func UnknownVendor(inputDelay agentstate.Duration) Vendor {
	return Vendor{
		Name:       "unknown",
		RegexRules: []detect.RegexRule{genericErrorRule, genericWorkingRule},
		Nudge:      encode.SafeNudgeEncoder{InputDelay: inputDelay},
	}
}
