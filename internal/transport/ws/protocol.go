// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package ws implements the WebSocket transport: one
// connection per session, binary frames carrying raw PTY output/input,
// text frames carrying the JSON control protocol below. Grounded on
// internal/ws/router.go's Upgrader/CheckOrigin dispatch and
// apps/sandbox/internal/ws/client.go's ReadPump/WritePump/ping-pong idiom.
package ws

import "encoding/json"

// ClientMessage is the envelope for every text frame sent by the client.
// Exactly the fields relevant to Type are populated.
type ClientMessage struct {
	Type string `json:"type"`

	// Input / InputRaw
	Text string `json:"text,omitempty"`

	// Keys
	Keys []string `json:"keys,omitempty"`

	// Resize
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`

	// Nudge
	Message string `json:"message,omitempty"`

	// Respond. Which picker this resolves against comes from the store's
	// live prompt kind, not a client-supplied field; Text doubles as the
	// Input/InputRaw payload and the plan picker's optional feedback text,
	// mirroring the HTTP/gRPC surfaces' shared `{accept?, option?, text?,
	// answers?}` body.
	Accept  *bool           `json:"accept,omitempty"`
	Option  *uint32         `json:"option,omitempty"`
	Answers []AnswerPayload `json:"answers,omitempty"`

	// Replay
	SinceOffset uint64 `json:"since_offset,omitempty"`

	// Lock
	Owner string `json:"owner,omitempty"`

	// Auth
	Token string `json:"token,omitempty"`
}

// AnswerPayload mirrors encode.QuestionAnswer over the wire.
type AnswerPayload struct {
	Option *uint32 `json:"option,omitempty"`
	Text   *string `json:"text,omitempty"`
}

// ServerMessage is the envelope for every text frame sent to the client.
type ServerMessage struct {
	Type string `json:"type"`

	// Screen
	Lines []string `json:"lines,omitempty"`

	// StateChange
	State  string `json:"state,omitempty"`
	Cause  string `json:"cause,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`

	// Exit
	ExitCode   *int `json:"exit_code,omitempty"`
	ExitSignal *int `json:"exit_signal,omitempty"`

	// Error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Resize (no server message currently sets these)
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

func marshalServer(msg ServerMessage) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		return []byte(`{"type":"error","code":"INTERNAL","message":"encode failure"}`)
	}
	return b
}
