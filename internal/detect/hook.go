// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/robmacrae/coop/internal/agentstate"
)

// HookReceiver reads newline-delimited JSON hook events from a named FIFO.
// The pipe is created with mode 0600 and opened O_RDWR|O_NONBLOCK so the
// read end survives writer churn.
type HookReceiver struct {
	pipePath string
	file     *os.File
	reader   *bufio.Reader
}

// NewHookReceiver creates the named pipe at pipePath (removing any stale
// file first) and returns a receiver over it.
func NewHookReceiver(pipePath string) (*HookReceiver, error) {
	os.Remove(pipePath)
	if err := syscall.Mkfifo(pipePath, 0o600); err != nil {
		return nil, err
	}
	return &HookReceiver{pipePath: pipePath}, nil
}

// PipePath returns the path to the named pipe.
func (h *HookReceiver) PipePath() string { return h.pipePath }

func (h *HookReceiver) ensureOpen() error {
	if h.file != nil {
		return nil
	}
	f, err := os.OpenFile(h.pipePath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	h.file = f
	h.reader = bufio.NewReader(f)
	return nil
}

// NextEvent reads the next parseable line from the pipe, skipping malformed
// lines, and returns a zero HookEvent and false on EOF or unrecoverable
// error.
func (h *HookReceiver) NextEvent() (agentstate.HookEvent, bool) {
	if err := h.ensureOpen(); err != nil {
		return agentstate.HookEvent{}, false
	}
	for {
		line, err := h.reader.ReadString('\n')
		if line == "" && err != nil {
			return agentstate.HookEvent{}, false
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if err != nil {
				return agentstate.HookEvent{}, false
			}
			continue
		}
		if ev, ok := parseHookLine(trimmed); ok {
			return ev, true
		}
		if err != nil {
			return agentstate.HookEvent{}, false
		}
	}
}

// Close removes the underlying FIFO file.
func (h *HookReceiver) Close() error {
	if h.file != nil {
		h.file.Close()
	}
	return os.Remove(h.pipePath)
}

type rawHookEvent struct {
	Event         string         `json:"event"`
	Tool          string         `json:"tool"`
	Data          map[string]any `json:"data"`
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
}

// parseHookLine parses one JSON line from the FIFO into a HookEvent.
// Supports both the primary {"event":...} schema and the vendor NATS
// extension schema {"hook_event_name":...,"tool_name":...}.
func parseHookLine(line string) (agentstate.HookEvent, bool) {
	var raw rawHookEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return agentstate.HookEvent{}, false
	}

	eventName := raw.Event
	tool := raw.Tool
	input := raw.Data
	if eventName == "" && raw.HookEventName != "" {
		eventName = raw.HookEventName
		tool = raw.ToolName
		input = raw.ToolInput
	}

	switch eventName {
	case "pre_tool_use":
		return agentstate.HookEvent{Kind: agentstate.HookToolBefore, Tool: tool, Input: input}, true
	case "post_tool_use":
		return agentstate.HookEvent{Kind: agentstate.HookToolAfter, Tool: tool}, true
	case "stop":
		return agentstate.HookEvent{Kind: agentstate.HookTurnEnd}, true
	case "session_start":
		return agentstate.HookEvent{Kind: agentstate.HookSessionStart}, true
	case "session_end":
		return agentstate.HookEvent{Kind: agentstate.HookSessionEnd}, true
	case "notification":
		notifType, _ := raw.Data["type"].(string)
		return agentstate.HookEvent{Kind: agentstate.HookNotification, NotificationType: notifType}, true
	default:
		return agentstate.HookEvent{}, false
	}
}

// MapEventFn classifies a HookEvent into an (AgentState, cause) pair,
// vendor-specific. Returning false drops the event silently.
type MapEventFn func(agentstate.HookEvent) (agentstate.AgentState, string, bool)

// HookDetector is the Tier 1 detector: it maps hook events to agent states
// via a vendor-supplied closure. Grounded on driver/hook_detect.rs's generic
// harness.
type HookDetector struct {
	Receiver *HookReceiver
	MapEvent MapEventFn
}

func (d *HookDetector) Tier() int { return 1 }

func (d *HookDetector) Run(ctx context.Context, stateCh chan<- Proposal) {
	events := make(chan agentstate.HookEvent)
	errs := make(chan struct{}, 1)
	go func() {
		defer close(events)
		for {
			ev, ok := d.Receiver.NextEvent()
			if !ok {
				errs <- struct{}{}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			state, cause, keep := d.MapEvent(ev)
			if !keep {
				continue
			}
			select {
			case stateCh <- Proposal{State: state, Cause: cause, Tier: d.Tier()}:
			case <-ctx.Done():
				return
			}
		case <-errs:
			log.Printf("detect: hook receiver closed unexpectedly")
			return
		}
	}
}
