// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package agentstate holds the tagged state types shared across detectors,
// the fuser, and the transports: AgentState, PromptContext, TransitionEvent
// and related value types.
package agentstate

// Kind tags the variant of an AgentState.
type Kind string

const (
	KindStarting         Kind = "starting"
	KindWorking          Kind = "working"
	KindWaitingForInput  Kind = "waiting_for_input"
	KindIdle             Kind = "idle"
	KindAltScreen        Kind = "alt_screen"
	KindUnknown          Kind = "unknown"
	KindPermissionPrompt Kind = "permission_prompt"
	KindPlanPrompt       Kind = "plan_prompt"
	KindAskUser          Kind = "ask_user"
	KindError            Kind = "error"
	KindExited           Kind = "exited"
)

// PromptContext describes a prompt the agent is presenting to the operator.
type PromptContext struct {
	Kind            string         `json:"kind"`
	Subtype         string         `json:"subtype,omitempty"`
	Tool            string         `json:"tool,omitempty"`
	InputPreview    string         `json:"input_preview,omitempty"`
	Question        string         `json:"question,omitempty"`
	Options         []string       `json:"options"`
	OptionsFallback bool           `json:"options_fallback"`
	Questions       []QuestionItem `json:"questions,omitempty"`
	QuestionCurrent uint32         `json:"question_current"`
	Ready           bool           `json:"ready"`
	ScreenLines     []string       `json:"screen_lines,omitempty"`
	Summary         string         `json:"summary,omitempty"`
}

// QuestionItem is one question/options pair within a multi-answer prompt.
type QuestionItem struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Equal reports whether two prompt contexts match on Kind, Subtype, Tool,
// Question, QuestionCurrent and Options; all other fields are ignored.
func (p *PromptContext) Equal(o *PromptContext) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Kind != o.Kind || p.Subtype != o.Subtype || p.Tool != o.Tool ||
		p.Question != o.Question || p.QuestionCurrent != o.QuestionCurrent {
		return false
	}
	if len(p.Options) != len(o.Options) {
		return false
	}
	for i := range p.Options {
		if p.Options[i] != o.Options[i] {
			return false
		}
	}
	return true
}

// ExitStatus captures at most one of a process exit code or killing signal.
type ExitStatus struct {
	Code   *int `json:"code,omitempty"`
	Signal *int `json:"signal,omitempty"`
}

// AgentState is the tagged union of classified agent states. Exactly one of
// the pointer/value fields is meaningful for a given Kind.
type AgentState struct {
	Kind       Kind           `json:"kind"`
	Prompt     *PromptContext `json:"prompt,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Category   ErrorCategory  `json:"category,omitempty"`
	ExitStatus *ExitStatus    `json:"exit_status,omitempty"`
}

func Starting() AgentState        { return AgentState{Kind: KindStarting} }
func Working() AgentState         { return AgentState{Kind: KindWorking} }
func WaitingForInput() AgentState { return AgentState{Kind: KindWaitingForInput} }
func Idle() AgentState            { return AgentState{Kind: KindIdle} }
func AltScreen() AgentState       { return AgentState{Kind: KindAltScreen} }
func Unknown() AgentState         { return AgentState{Kind: KindUnknown} }

func PermissionPrompt(p PromptContext) AgentState {
	return AgentState{Kind: KindPermissionPrompt, Prompt: &p}
}

func PlanPrompt(p PromptContext) AgentState {
	return AgentState{Kind: KindPlanPrompt, Prompt: &p}
}

func AskUser(p PromptContext) AgentState {
	return AgentState{Kind: KindAskUser, Prompt: &p}
}

func Error(detail string, category ErrorCategory) AgentState {
	return AgentState{Kind: KindError, Detail: detail, Category: category}
}

func Exited(status ExitStatus) AgentState {
	return AgentState{Kind: KindExited, ExitStatus: &status}
}

// IsTerminal reports whether this state is the session-ending Exited state.
func (s AgentState) IsTerminal() bool {
	return s.Kind == KindExited
}

// IsPrompt reports whether this state carries a PromptContext.
func (s AgentState) IsPrompt() bool {
	switch s.Kind {
	case KindPermissionPrompt, KindPlanPrompt, KindAskUser:
		return true
	default:
		return false
	}
}

// Equal reports whether two states represent the same transition target,
// used by the fuser's deduplication rule (same kind, same prompt content).
func (s AgentState) Equal(o AgentState) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Kind == KindError {
		return s.Detail == o.Detail && s.Category == o.Category
	}
	if s.IsPrompt() {
		return s.Prompt.Equal(o.Prompt)
	}
	return true
}

// TransitionEvent records a single fused state change with a strictly
// monotonic sequence number within a session run.
type TransitionEvent struct {
	Prev        AgentState `json:"prev"`
	Next        AgentState `json:"next"`
	Seq         uint64     `json:"seq"`
	Cause       string     `json:"cause"`
	LastMessage string     `json:"last_message,omitempty"`
}

// ScreenSnapshot is a point-in-time capture of the virtual terminal.
type ScreenSnapshot struct {
	Lines     []string `json:"lines"`
	Cols      int      `json:"cols"`
	Rows      int      `json:"rows"`
	AltScreen bool     `json:"alt_screen"`
	CursorRow int      `json:"cursor_row"`
	CursorCol int      `json:"cursor_col"`
	Sequence  uint64   `json:"sequence"`
}

// NudgeStep is one timed byte-write step consumed by the input pipeline.
type NudgeStep struct {
	Bytes      []byte
	DelayAfter *Duration
}

// Duration is a thin alias kept distinct from time.Duration so NudgeStep's
// JSON encoding (used for gRPC's JSON codec) serializes as nanoseconds
// explicitly rather than relying on time.Duration's stringer-free default.
type Duration int64

// HookEventKind tags the variant of a HookEvent.
type HookEventKind string

const (
	HookToolBefore   HookEventKind = "tool_before"
	HookToolAfter    HookEventKind = "tool_after"
	HookTurnStart    HookEventKind = "turn_start"
	HookTurnEnd      HookEventKind = "turn_end"
	HookSessionStart HookEventKind = "session_start"
	HookSessionEnd   HookEventKind = "session_end"
	HookNotification HookEventKind = "notification"
)

// HookEvent is a structured event read from the hook FIFO or NATS subject.
type HookEvent struct {
	Kind             HookEventKind
	Tool             string
	Input            map[string]any
	NotificationType string
}

// Usage accumulates token/cost/duration counters reported by the session
// log's `usage` fields across the life of a session run.
type Usage struct {
	InputTokens     uint64  `json:"input_tokens"`
	OutputTokens    uint64  `json:"output_tokens"`
	CacheReadTokens uint64  `json:"cache_read_tokens"`
	CacheWriteTokens uint64 `json:"cache_write_tokens"`
	CostUSD         float64 `json:"cost_usd"`
	DurationMS      uint64  `json:"duration_ms"`
}

// Add accumulates a usage delta in place.
func (u *Usage) Add(delta Usage) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
	u.CacheReadTokens += delta.CacheReadTokens
	u.CacheWriteTokens += delta.CacheWriteTokens
	u.CostUSD += delta.CostUSD
	u.DurationMS += delta.DurationMS
}
