// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/robmacrae/coop/internal/agentstate"
)

// ClassifyJSONFn classifies one parsed JSON entry into a proposal.
type ClassifyJSONFn func(json.RawMessage) (agentstate.AgentState, string, bool)

// ExtractMessageFn extracts the last assistant message text from a parsed
// JSON entry, if present.
type ExtractMessageFn func(json.RawMessage) (string, bool)

// StdoutDetector is the Tier 3 detector: an incremental line-buffered JSONL
// parser over the child's stdout stream, classified via vendor closures.
// Grounded on original_source/driver/stdout_detect.rs.
type StdoutDetector struct {
	StdoutCh      <-chan []byte
	Classify      ClassifyJSONFn
	ExtractMessage ExtractMessageFn

	mu          sync.RWMutex
	lastMessage string
}

func (d *StdoutDetector) Tier() int { return 3 }

// LastMessage returns the most recently extracted assistant message text,
// if any has been seen. Read by the fuser when it enriches a transition.
func (d *StdoutDetector) LastMessage() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastMessage
}

func (d *StdoutDetector) Run(ctx context.Context, stateCh chan<- Proposal) {
	parser := &JSONLParser{}
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-d.StdoutCh:
			if !ok {
				return
			}
			for _, entry := range parser.Feed(chunk) {
				if d.ExtractMessage != nil {
					if text, ok := d.ExtractMessage(entry); ok {
						d.mu.Lock()
						d.lastMessage = text
						d.mu.Unlock()
					}
				}
				state, cause, keep := d.Classify(entry)
				if !keep {
					continue
				}
				select {
				case stateCh <- Proposal{State: state, Cause: cause, Tier: d.Tier()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
