// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
)

// idleGlyph is the canonical idle indicator scanned for at line start.
const idleGlyph = "❯"

// SetupPromptMatcher recognizes a known startup/disruption prompt from the
// rendered screen lines and returns the corresponding setup prompt kind.
type SetupPromptMatcher func(lines []string) (agentstate.AgentState, string, bool)

// OptionsParser parses a vendor-specific numbered option block from the
// rendered lines, stripping box-drawing borders, selection indicators, and
// status/spinner lines.
type OptionsParser func(lines []string) []string

// RegexRule maps a compiled pattern to a classification outcome. Error
// rules take precedence over prompt rules, which take precedence over
// working rules.
type RegexRule struct {
	Pattern  *regexp.Regexp
	Kind     string // "error" | "prompt" | "working"
	Category agentstate.ErrorCategory
}

// SnapshotFn returns the current screen snapshot lines to classify.
type SnapshotFn func() (lines []string, changed bool)

// ScreenClassifier is the Tier 5 detector. It polls Snapshot on a cadence
// that starts fast during a startup window then backs off.
type ScreenClassifier struct {
	Snapshot     SnapshotFn
	SetupPrompts SetupPromptMatcher
	OptionsOf    OptionsParser
	RegexRules   []RegexRule

	FastInterval   time.Duration // default 100ms
	FastWindow     time.Duration // default 30s
	SteadyInterval time.Duration // default 500ms
}

func (c *ScreenClassifier) Tier() int { return 5 }

func (c *ScreenClassifier) Run(ctx context.Context, stateCh chan<- Proposal) {
	fastInterval := c.FastInterval
	if fastInterval == 0 {
		fastInterval = 100 * time.Millisecond
	}
	fastWindow := c.FastWindow
	if fastWindow == 0 {
		fastWindow = 30 * time.Second
	}
	steadyInterval := c.SteadyInterval
	if steadyInterval == 0 {
		steadyInterval = 500 * time.Millisecond
	}

	start := time.Now()
	ticker := time.NewTicker(fastInterval)
	defer ticker.Stop()
	steady := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !steady && time.Since(start) >= fastWindow {
			steady = true
			ticker.Reset(steadyInterval)
		}

		lines, changed := c.Snapshot()
		if !changed {
			continue
		}

		if state, cause, ok := c.classify(lines); ok {
			select {
			case stateCh <- Proposal{State: state, Cause: cause, Tier: c.Tier()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *ScreenClassifier) classify(lines []string) (agentstate.AgentState, string, bool) {
	// Error patterns take precedence over prompt, which takes precedence
	// over working.
	var promptState agentstate.AgentState
	var promptCause string
	havePrompt := false
	var workingCause string
	haveWorking := false

	for _, line := range lines {
		for _, rule := range c.RegexRules {
			if !rule.Pattern.MatchString(line) {
				continue
			}
			switch rule.Kind {
			case "error":
				return agentstate.Error(line, rule.Category), "screen:regex_error", true
			case "prompt":
				if !havePrompt {
					promptState = agentstate.WaitingForInput()
					promptCause = "screen:regex_prompt"
					havePrompt = true
				}
			case "working":
				if !haveWorking {
					workingCause = "screen:regex_working"
					haveWorking = true
				}
			}
		}
	}

	if c.SetupPrompts != nil {
		if state, cause, ok := c.SetupPrompts(lines); ok {
			return state, cause, true
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " "), idleGlyph) {
			return agentstate.WaitingForInput(), "screen:idle_glyph", true
		}
	}

	if havePrompt {
		return promptState, promptCause, true
	}
	if haveWorking {
		return agentstate.Working(), workingCause, true
	}
	return agentstate.AgentState{}, "", false
}

// stripBoxDrawing removes common box-drawing border characters from a line,
// used by vendor OptionsParser implementations.
func stripBoxDrawing(line string) string {
	var b strings.Builder
	for _, r := range line {
		switch r {
		case '│', '┃', '─', '━', '┌', '┐', '└', '┘', '╭', '╮', '╰', '╯', '├', '┤', '┬', '┴', '┼':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
