// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package eventlog

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/robmacrae/coop/internal/agentstate"
)

// HookLogEntry pairs a monotonic hook-log sequence with the raw hook JSON,
// so WS/HTTP catch-up can hand back exactly what was received on the FIFO.
type HookLogEntry struct {
	Seq  uint64          `json:"seq"`
	JSON json.RawMessage `json:"json"`
}

// Log is a per-session, append-only, in-memory record of state transitions
// and raw hook events, each partitioned with its own monotonic sequence.
// When a session directory is configured both streams are mirrored to
// events.jsonl for post-mortem inspection.
type Log struct {
	mu         sync.RWMutex
	states     []agentstate.TransitionEvent
	hooks      []HookLogEntry
	nextHookSeq uint64

	eventsFile    *os.File
	recordingFile *os.File
}

// New creates an empty Log. If stateDir is non-empty, events.jsonl and
// recording.jsonl are opened (created if absent) inside it for persistence.
func New(stateDir string) (*Log, error) {
	l := &Log{}
	if stateDir == "" {
		return l, nil
	}
	ef, err := os.OpenFile(stateDir+"/events.jsonl", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(stateDir+"/recording.jsonl", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		ef.Close()
		return nil, err
	}
	l.eventsFile = ef
	l.recordingFile = rf
	return l, nil
}

// Close releases any open persistence files.
func (l *Log) Close() error {
	if l.eventsFile != nil {
		l.eventsFile.Close()
	}
	if l.recordingFile != nil {
		l.recordingFile.Close()
	}
	return nil
}

// AppendState records a transition event. Called only by the fuser task.
func (l *Log) AppendState(ev agentstate.TransitionEvent) {
	l.mu.Lock()
	l.states = append(l.states, ev)
	l.mu.Unlock()

	if l.eventsFile != nil {
		if b, err := json.Marshal(ev); err == nil {
			b = append(b, '\n')
			l.eventsFile.Write(b)
		}
	}
}

// AppendHook records a raw hook event, assigning it the next hook-log
// sequence number.
func (l *Log) AppendHook(raw json.RawMessage) HookLogEntry {
	l.mu.Lock()
	l.nextHookSeq++
	entry := HookLogEntry{Seq: l.nextHookSeq, JSON: raw}
	l.hooks = append(l.hooks, entry)
	l.mu.Unlock()

	if l.eventsFile != nil {
		if b, err := json.Marshal(entry); err == nil {
			b = append(b, '\n')
			l.eventsFile.Write(b)
		}
	}
	return entry
}

// AppendRecording mirrors a raw PTY byte chunk and the given ring offset into
// recording.jsonl for post-mortem inspection.
func (l *Log) AppendRecording(offset uint64, data []byte) {
	if l.recordingFile == nil {
		return
	}
	type rec struct {
		Offset uint64 `json:"offset"`
		Data   []byte `json:"data"`
	}
	if b, err := json.Marshal(rec{Offset: offset, Data: data}); err == nil {
		b = append(b, '\n')
		l.recordingFile.Write(b)
	}
}

// CatchupState returns all transition events with Seq > sinceSeq, in order.
func (l *Log) CatchupState(sinceSeq uint64) []agentstate.TransitionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]agentstate.TransitionEvent, 0)
	for _, ev := range l.states {
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out
}

// CatchupHooks returns all hook entries with Seq > sinceHookSeq, in order.
func (l *Log) CatchupHooks(sinceHookSeq uint64) []HookLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]HookLogEntry, 0)
	for _, h := range l.hooks {
		if h.Seq > sinceHookSeq {
			out = append(out, h)
		}
	}
	return out
}

// LastSeq returns the sequence number of the most recent transition, or 0
// if none has been recorded yet.
func (l *Log) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.states) == 0 {
		return 0
	}
	return l.states[len(l.states)-1].Seq
}
