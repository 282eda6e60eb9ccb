// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/codes"
	"github.com/robmacrae/coop/internal/encode"
	"github.com/robmacrae/coop/internal/eventlog"
	"github.com/robmacrae/coop/internal/session"
	"github.com/robmacrae/coop/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one WebSocket connection bound to a session Store. Grounded on
// apps/sandbox/internal/ws/client.go's ReadPump/WritePump/ping-pong
// structure, generalized from a raw byte Hub to the Store's typed
// OutputBus + Fuser subscriptions and the session JSON control protocol.
type Client struct {
	conn  *websocket.Conn
	store *session.Store
	auth  *transport.Auth
	authed bool
	owner string // writer-lock identity, set once authenticated

	outbound chan []byte // pre-marshaled text/binary frames, tagged below
	binary   chan []byte
	gate     *eventlog.ReplayGate
}

// NewClient wraps conn for store. preauthed should be true if the HTTP
// upgrade request already carried a valid bearer token; otherwise the
// client must send an Auth control message carrying a token auth accepts
// before any other message is honored.
func NewClient(conn *websocket.Conn, store *session.Store, auth *transport.Auth, preauthed bool, owner string) *Client {
	return &Client{
		conn:     conn,
		store:    store,
		auth:     auth,
		authed:   preauthed,
		owner:    owner,
		outbound: make(chan []byte, 256),
		binary:   make(chan []byte, 256),
		gate:     eventlog.NewReplayGate(),
	}
}

// Serve runs the client's read/write pumps and output/state subscriptions
// until the connection closes. Blocks until done.
func (c *Client) Serve() {
	outChunks := make(chan session.OutputChunk, 256)
	c.store.Output.Subscribe(outChunks)
	defer c.store.Output.Unsubscribe(outChunks)

	stateCh := make(chan agentstate.TransitionEvent, 16)
	c.store.Fuser.Subscribe(stateCh)
	defer c.store.Fuser.Unsubscribe(stateCh)

	done := make(chan struct{})
	go c.readPump(done)
	go c.relayOutput(outChunks, done)
	go c.relayState(stateCh, done)
	c.writePump(done)
}

func (c *Client) relayOutput(ch <-chan session.OutputChunk, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			if !c.authed {
				continue
			}
			offset := chunk.Offset - uint64(len(chunk.Data))
			skip, ok := c.gate.OnPty(len(chunk.Data), offset)
			if !ok {
				continue
			}
			data := chunk.Data[skip:]
			if len(data) == 0 {
				continue
			}
			select {
			case c.binary <- data:
			case <-done:
				return
			}
		}
	}
}

func (c *Client) relayState(ch <-chan agentstate.TransitionEvent, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !c.authed {
				continue
			}
			c.sendJSON(ServerMessage{
				Type:  "state_change",
				State: string(ev.Next.Kind),
				Cause: ev.Cause,
				Seq:   ev.Seq,
			})
			if ev.Next.IsTerminal() && ev.Next.ExitStatus != nil {
				c.sendJSON(ServerMessage{Type: "exit", ExitCode: ev.Next.ExitStatus.Code, ExitSignal: ev.Next.ExitStatus.Signal})
			}
		}
	}
}

func (c *Client) readPump(done chan struct{}) {
	defer close(done)
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if !c.authed {
				continue
			}
			if !c.store.WriteLock.TryAcquire(c.owner) {
				c.sendError(string(codes.WriterBusy), "writer lock held by another connection")
				continue
			}
			c.store.Input.Write(data)
		case websocket.TextMessage:
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.sendError(string(codes.BadRequest), "invalid control message")
				continue
			}
			c.handle(msg)
		}
	}
}

func (c *Client) handle(msg ClientMessage) {
	if msg.Type == "auth" {
		if c.authed || c.auth == nil || c.auth.CheckToken(msg.Token) {
			c.authed = true
		} else {
			c.sendError(string(codes.Unauthorized), "invalid token")
		}
		return
	}
	if !c.authed {
		c.sendError(string(codes.Unauthorized), "send auth before any other message")
		return
	}

	switch msg.Type {
	case "input":
		c.store.Input.Write([]byte(msg.Text))
	case "input_raw":
		c.store.Input.Write([]byte(msg.Text))
	case "keys":
		for _, k := range msg.Keys {
			c.store.Input.Write([]byte(k))
		}
	case "resize":
		if msg.Cols > 0 && msg.Rows > 0 {
			c.store.Input.Resize(msg.Cols, msg.Rows)
		}
	case "screen_request":
		c.sendJSON(ServerMessage{Type: "screen", Lines: c.store.Screen.Lines()})
	case "state_request":
		state, seq := c.store.Fuser.Current()
		c.sendJSON(ServerMessage{Type: "state_change", State: string(state.Kind), Seq: seq})
	case "nudge":
		c.handleNudge(msg)
	case "respond":
		c.handleRespond(msg)
	case "replay":
		c.handleReplay(msg)
	case "lock":
		if !c.store.WriteLock.TryAcquire(c.owner) {
			c.sendError(string(codes.WriterBusy), "writer lock held by another connection")
		}
	case "unlock":
		c.store.WriteLock.Release(c.owner)
	case "ping":
		// presence only
	default:
		c.sendError(string(codes.BadRequest), "unknown message type")
	}
}

func (c *Client) handleNudge(msg ClientMessage) {
	if c.store.Nudge == nil {
		c.sendError(string(codes.NoDriver), "no nudge encoder configured for this vendor")
		return
	}
	c.sendSteps(c.store.Nudge.Encode(msg.Message))
}

// handleRespond resolves which picker to drive from the store's live prompt
// kind, never from a client-supplied kind, so a {accept?, option?, text?,
// answers?} body is sufficient on its own, matching the HTTP/gRPC surfaces.
func (c *Client) handleRespond(msg ClientMessage) {
	if c.store.Respond == nil {
		c.sendError(string(codes.NoDriver), "no respond encoder configured for this vendor")
		return
	}
	state, _ := c.store.Fuser.Current()
	if !state.IsPrompt() {
		c.sendError(string(codes.NoPrompt), "no pending prompt")
		return
	}

	var steps []agentstate.NudgeStep
	switch state.Prompt.Kind {
	case "permission":
		steps = c.store.Respond.EncodePermission(transport.ResolvePermissionOption(msg.Accept, msg.Option))
	case "plan":
		var feedback *string
		if msg.Text != "" {
			feedback = &msg.Text
		}
		steps = c.store.Respond.EncodePlan(transport.ResolvePlanOption(msg.Accept, msg.Option), feedback)
	case "question":
		answers := make([]encode.QuestionAnswer, 0, len(msg.Answers))
		for _, a := range msg.Answers {
			answers = append(answers, encode.QuestionAnswer{Option: a.Option, Text: a.Text})
		}
		steps = c.store.Respond.EncodeQuestion(answers, len(state.Prompt.Questions))
	case "setup":
		if msg.Option == nil {
			c.sendError(string(codes.BadRequest), "respond:setup requires option")
			return
		}
		steps = c.store.Respond.EncodeSetup(*msg.Option)
	default:
		c.sendError(string(codes.BadRequest), "unrecognized prompt kind")
		return
	}
	c.sendSteps(steps)
}

// sendSteps writes each encoded step in order, waiting for the input
// pipeline to drain before honoring a step's DelayAfter.
func (c *Client) sendSteps(steps []agentstate.NudgeStep) {
	for _, step := range steps {
		c.store.Input.Write(step.Bytes)
		if step.DelayAfter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.store.Input.WaitForDrain(ctx)
			cancel()
			if err != nil {
				c.sendError(string(codes.Internal), err.Error())
				return
			}
			time.Sleep(time.Duration(*step.DelayAfter))
		}
	}
}

func (c *Client) handleReplay(msg ClientMessage) {
	c.gate.Reset()
	first, second, ok := c.store.Ring.ReadFrom(msg.SinceOffset)
	if !ok {
		c.sendError(string(codes.BadRequest), "replay offset no longer resident")
		return
	}
	data := append(append([]byte{}, first...), second...)
	action := c.gate.OnReplay(len(data), c.store.Ring.TotalWritten())
	if action == nil {
		return
	}
	if len(data) > action.Skip {
		select {
		case c.binary <- data[action.Skip:]:
		default:
		}
	}
}

func (c *Client) sendError(code, message string) {
	c.sendJSON(ServerMessage{Type: "error", Code: code, Message: message})
}

func (c *Client) sendJSON(msg ServerMessage) {
	select {
	case c.outbound <- marshalServer(msg):
	default:
	}
}

func (c *Client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case b := <-c.binary:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				return
			}
		case b := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
