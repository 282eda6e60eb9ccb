// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import (
	"encoding/json"
	"strings"

	"github.com/robmacrae/coop/internal/agentstate"
)

// Vendor-specific closures for Tier 1/2/3/5 classification, following the
// same per-vendor-switch structural idiom used elsewhere for dispatching
// on agent type.

// ClaudeMapHookEvent implements the Tier 1 hook-event mapping table.
func ClaudeMapHookEvent(ev agentstate.HookEvent) (agentstate.AgentState, string, bool) {
	switch ev.Kind {
	case agentstate.HookToolBefore:
		if strings.EqualFold(ev.Tool, "AskUserQuestion") {
			question, _ := ev.Input["question"].(string)
			return agentstate.AskUser(agentstate.PromptContext{
				Kind:     "question",
				Question: question,
				Ready:    true,
			}), "hook:ask_user_question", true
		}
		return agentstate.Working(), "hook:tool_before", true
	case agentstate.HookTurnStart:
		return agentstate.Working(), "hook:turn_start", true
	case agentstate.HookToolAfter:
		return agentstate.Working(), "hook:tool_after", true
	case agentstate.HookTurnEnd, agentstate.HookSessionEnd:
		return agentstate.WaitingForInput(), "hook:turn_end", true
	case agentstate.HookNotification:
		switch ev.NotificationType {
		case "idle_prompt", "permission_prompt":
			return agentstate.PermissionPrompt(agentstate.PromptContext{Kind: "permission", Ready: true}), "hook:notification", true
		}
		return agentstate.AgentState{}, "", false
	default:
		return agentstate.AgentState{}, "", false
	}
}

// claudeLogLine is the subset of a Claude session-log JSONL line's shape
// needed for Tier 2 classification.
type claudeLogLine struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message struct {
		Content []struct {
			Type  string `json:"type"`
			Text  string `json:"text"`
			Name  string `json:"name"`
		} `json:"content"`
	} `json:"message"`
	Usage struct {
		InputTokens              uint64  `json:"input_tokens"`
		OutputTokens             uint64  `json:"output_tokens"`
		CacheReadInputTokens     uint64  `json:"cache_read_input_tokens"`
		CacheCreationInputTokens uint64  `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

// ClaudeClassifyLogLine implements the Tier 2 classification rules:
// assistant text-only → candidate idle; AskUserQuestion tool_use → AskUser;
// otherwise → Working; system/user → Working; any error field → Error.
// Malformed lines are skipped by the caller (LogWatcher already filters
// blank lines; JSON errors here yield no proposals).
func ClaudeClassifyLogLine(line string) []StateCause {
	var l claudeLogLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		return nil
	}
	if l.Error != "" {
		cat := agentstate.ClassifyErrorDetail(l.Error)
		return []StateCause{{State: agentstate.Error(l.Error, cat), Cause: "log:error"}}
	}

	switch l.Type {
	case "system", "user":
		return []StateCause{{State: agentstate.Working(), Cause: "log:" + l.Type}}
	case "assistant":
		hasText := false
		for _, c := range l.Message.Content {
			if c.Type == "tool_use" && strings.EqualFold(c.Name, "AskUserQuestion") {
				return []StateCause{{
					State: agentstate.AskUser(agentstate.PromptContext{Kind: "question", Ready: false}),
					Cause: "log:ask_user_question",
				}}
			}
			if c.Type == "tool_use" {
				return []StateCause{{State: agentstate.Working(), Cause: "log:tool_use"}}
			}
			if c.Type == "text" && c.Text != "" {
				hasText = true
			}
		}
		if hasText {
			return []StateCause{{State: agentstate.WaitingForInput(), Cause: "log:assistant_text"}}
		}
		return nil
	default:
		return nil
	}
}

// ClaudeExtractUsage accumulates the usage fields from a Claude log line, if
// present.
func ClaudeExtractUsage(line string) (agentstate.Usage, bool) {
	var l claudeLogLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		return agentstate.Usage{}, false
	}
	if l.Usage.InputTokens == 0 && l.Usage.OutputTokens == 0 &&
		l.Usage.CacheReadInputTokens == 0 && l.Usage.CacheCreationInputTokens == 0 {
		return agentstate.Usage{}, false
	}
	return agentstate.Usage{
		InputTokens:      l.Usage.InputTokens,
		OutputTokens:     l.Usage.OutputTokens,
		CacheReadTokens:  l.Usage.CacheReadInputTokens,
		CacheWriteTokens: l.Usage.CacheCreationInputTokens,
	}, true
}

// ClaudeClassifyStdout implements Tier 3 classification over parsed JSON
// entries from the child's structured stdout stream; it mirrors
// ClaudeClassifyLogLine's rules over the same message shape.
func ClaudeClassifyStdout(raw json.RawMessage) (agentstate.AgentState, string, bool) {
	results := ClaudeClassifyLogLine(string(raw))
	if len(results) == 0 {
		return agentstate.AgentState{}, "", false
	}
	return results[0].State, results[0].Cause, true
}

// ClaudeExtractMessage extracts the last assistant text from a parsed JSON
// entry, for StdoutDetector.ExtractMessage.
func ClaudeExtractMessage(raw json.RawMessage) (string, bool) {
	var l claudeLogLine
	if err := json.Unmarshal(raw, &l); err != nil {
		return "", false
	}
	if l.Type != "assistant" {
		return "", false
	}
	for _, c := range l.Message.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, true
		}
	}
	return "", false
}

// ClaudeOptionsParser strips box-drawing borders, selection indicators
// (">", "❯"), and blank/status lines from a rendered numbered-option block,
// returning the remaining option text lines in order.
func ClaudeOptionsParser(lines []string) []string {
	var out []string
	for _, line := range lines {
		stripped := stripBoxDrawing(line)
		stripped = strings.TrimPrefix(stripped, ">")
		stripped = strings.TrimPrefix(stripped, idleGlyph)
		stripped = strings.TrimSpace(stripped)
		if stripped == "" {
			continue
		}
		if strings.HasPrefix(stripped, "(") || strings.Contains(stripped, "esc to") {
			continue // status/spinner line
		}
		out = append(out, stripped)
	}
	return out
}

// ClaudeSetupPrompts recognizes known Claude startup/disruption prompts
// (workspace-trust, permissions-bypass, login) from rendered screen lines.
func ClaudeSetupPrompts(lines []string) (agentstate.AgentState, string, bool) {
	for _, line := range lines {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "do you trust the files in this folder"):
			return agentstate.PermissionPrompt(agentstate.PromptContext{Kind: "setup", Subtype: "workspace_trust", Ready: true}), "screen:workspace_trust", true
		case strings.Contains(lower, "bypass permissions"):
			return agentstate.PermissionPrompt(agentstate.PromptContext{Kind: "setup", Subtype: "permissions_bypass", Ready: true}), "screen:permissions_bypass", true
		case strings.Contains(lower, "login") && strings.Contains(lower, "browser"):
			return agentstate.PermissionPrompt(agentstate.PromptContext{Kind: "setup", Subtype: "login", Ready: true}), "screen:login", true
		}
	}
	return agentstate.AgentState{}, "", false
}

// GeminiMapHookEvent is Gemini's Tier 1 mapping; Gemini's hook schema is
// structurally identical to Claude's so the mapping reuses the same rules.
func GeminiMapHookEvent(ev agentstate.HookEvent) (agentstate.AgentState, string, bool) {
	return ClaudeMapHookEvent(ev)
}

// GeminiClassifyLogLine is Gemini's Tier 2 classifier; the session log
// shape Gemini emits follows the same {type, message, usage} envelope.
func GeminiClassifyLogLine(line string) []StateCause {
	return ClaudeClassifyLogLine(line)
}
