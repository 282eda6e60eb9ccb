// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package httpapi implements the stateless JSON HTTP surface under
// /api/v1: snapshot reads, action POSTs, and catch-up GETs, wired through
// the session.Store/codes error vocabulary.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/codes"
	"github.com/robmacrae/coop/internal/encode"
	"github.com/robmacrae/coop/internal/session"
	"github.com/robmacrae/coop/internal/transport"
)

// Server holds the session registry and wires handlers onto a ServeMux.
type Server struct {
	Manager  *session.Manager
	Auth     *transport.Auth
	StateDir string
}

// NewServer builds an httpapi Server.
func NewServer(mgr *session.Manager, auth *transport.Auth, stateDir string) *Server {
	return &Server{Manager: mgr, Auth: auth, StateDir: stateDir}
}

// Register mounts every handler under /api/v1 plus the unauthenticated
// /health probe at the root.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	wrap := func(h http.HandlerFunc) http.Handler {
		if s.Auth != nil {
			return s.Auth.Require(h)
		}
		return h
	}

	mux.Handle("GET /api/v1/session/{id}/screen", wrap(s.handleScreen))
	mux.Handle("GET /api/v1/session/{id}/agent", wrap(s.handleAgent))
	mux.Handle("GET /api/v1/session/{id}/status", wrap(s.handleStatus))
	mux.Handle("GET /api/v1/session/{id}/usage", wrap(s.handleUsage))
	mux.Handle("POST /api/v1/session/{id}/agent/nudge", wrap(s.handleNudge))
	mux.Handle("POST /api/v1/session/{id}/agent/respond", wrap(s.handleRespond))
	mux.Handle("POST /api/v1/session/{id}/session/switch", wrap(s.handleSwitch))
	mux.Handle("GET /api/v1/session/{id}/events/catchup", wrap(s.handleEventsCatchup))
	mux.Handle("GET /api/v1/session/{id}/transcripts/catchup", wrap(s.handleTranscriptsCatchup))
	mux.Handle("GET /api/v1/session/{id}/recording/catchup", wrap(s.handleRecordingCatchup))
	mux.Handle("POST /api/v1/session/{id}/upload", wrap(s.handleUpload))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	store, ok := s.Manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, codes.New(codes.BadRequest, "unknown session"))
		return nil, false
	}
	return store, true
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.Screen.Snapshot())
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	state, seq := store.Fuser.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": state,
		"seq":   seq,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	state, seq := store.Fuser.Current()
	pid, havePid := store.Backend().ChildPid()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    state.Kind,
		"seq":      seq,
		"vendor":   store.Vendor(),
		"child_pid": pid,
		"have_pid": havePid,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.Usage())
}

type nudgeRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleNudge(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if store.Nudge == nil {
		writeError(w, codes.New(codes.NoDriver, "no nudge encoder configured for this vendor"))
		return
	}
	var req nudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codes.New(codes.BadRequest, "invalid request body"))
		return
	}
	const owner = "http:nudge"
	if !store.WriteLock.TryAcquire(owner) {
		writeError(w, codes.New(codes.WriterBusy, "writer lock held by another connection"))
		return
	}
	defer store.WriteLock.Release(owner)

	for _, step := range store.Nudge.Encode(req.Message) {
		store.Input.Write(step.Bytes)
		if step.DelayAfter != nil {
			if err := store.Input.WaitForDrain(r.Context()); err != nil {
				writeError(w, codes.New(codes.Internal, err.Error()))
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": "sent"})
}

// respondRequest mirrors the wire shape `{accept?, option?, text?, answers?}`
// exactly: which picker (permission/plan/question/setup) it resolves against
// comes from the session's current prompt, never from a client-supplied
// kind, so a client only ever needs to send the fields it actually has.
type respondRequest struct {
	Accept  *bool           `json:"accept,omitempty"`
	Option  *uint32         `json:"option,omitempty"`
	Text    *string         `json:"text,omitempty"`
	Answers []answerPayload `json:"answers,omitempty"`
}

type answerPayload struct {
	Option *uint32 `json:"option,omitempty"`
	Text   *string `json:"text,omitempty"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if store.Respond == nil {
		writeError(w, codes.New(codes.NoDriver, "no respond encoder configured for this vendor"))
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codes.New(codes.BadRequest, "invalid request body"))
		return
	}
	state, _ := store.Fuser.Current()
	if !state.IsPrompt() {
		writeError(w, codes.New(codes.NoPrompt, "no pending prompt"))
		return
	}

	const owner = "http:respond"
	if !store.WriteLock.TryAcquire(owner) {
		writeError(w, codes.New(codes.WriterBusy, "writer lock held by another connection"))
		return
	}
	defer store.WriteLock.Release(owner)

	var steps []agentstate.NudgeStep
	switch state.Prompt.Kind {
	case "permission":
		steps = store.Respond.EncodePermission(transport.ResolvePermissionOption(req.Accept, req.Option))
	case "plan":
		steps = store.Respond.EncodePlan(transport.ResolvePlanOption(req.Accept, req.Option), req.Text)
	case "question":
		answers := make([]encode.QuestionAnswer, 0, len(req.Answers))
		for _, a := range req.Answers {
			answers = append(answers, encode.QuestionAnswer{Option: a.Option, Text: a.Text})
		}
		steps = store.Respond.EncodeQuestion(answers, len(state.Prompt.Questions))
	case "setup":
		if req.Option == nil {
			writeError(w, codes.New(codes.BadRequest, "setup respond requires option"))
			return
		}
		steps = store.Respond.EncodeSetup(*req.Option)
	default:
		writeError(w, codes.New(codes.BadRequest, "unrecognized prompt kind"))
		return
	}

	for _, step := range steps {
		store.Input.Write(step.Bytes)
		if step.DelayAfter != nil {
			if err := store.Input.WaitForDrain(r.Context()); err != nil {
				writeError(w, codes.New(codes.Internal, err.Error()))
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": "sent"})
}

type switchRequest struct {
	Credentials map[string]string `json:"credentials,omitempty"`
	Force       bool              `json:"force,omitempty"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codes.New(codes.BadRequest, "invalid request body"))
		return
	}
	sr := &session.SwitchRequest{Credentials: req.Credentials, Force: req.Force, Result: make(chan session.SwitchOutcome, 1)}
	if !store.RequestSwitch(r.Context(), sr) {
		writeError(w, codes.New(codes.SwitchInProgress, "a switch is already in progress"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"outcome": "accepted"})
}

func (s *Server) handleEventsCatchup(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sinceSeq := parseUint64(r.URL.Query().Get("since_seq"))
	sinceHookSeq := parseUint64(r.URL.Query().Get("since_hook_seq"))
	writeJSON(w, http.StatusOK, map[string]any{
		"state_events": store.Log.CatchupState(sinceSeq),
		"hook_events":  store.Log.CatchupHooks(sinceHookSeq),
	})
}

func (s *Server) handleTranscriptsCatchup(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sinceHookSeq := parseUint64(r.URL.Query().Get("since_hook_seq"))
	writeJSON(w, http.StatusOK, map[string]any{"hook_events": store.Log.CatchupHooks(sinceHookSeq)})
}

func (s *Server) handleRecordingCatchup(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sinceOffset := parseUint64(r.URL.Query().Get("since_offset"))
	first, second, ok := store.Ring.ReadFrom(sinceOffset)
	if !ok {
		writeError(w, codes.New(codes.BadRequest, "offset no longer resident"))
		return
	}
	data := append(append([]byte{}, first...), second...)
	writeJSON(w, http.StatusOK, map[string]any{
		"offset": store.Ring.TotalWritten(),
		"data":   base64.StdEncoding.EncodeToString(data),
	})
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

const maxUploadBytes = 10 << 20

// handleUpload decodes a base64 payload and writes it under
// <state_dir>/<session>/uploads/, sanitizing filename: the
// base name only (rejecting ".", "..", null bytes, path separators),
// truncated to 255 bytes, with "name.N.ext" collision resolution.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	store, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codes.New(codes.BadRequest, "invalid request body"))
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, codes.New(codes.BadRequest, "invalid base64 data"))
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, codes.New(codes.BadRequest, "upload exceeds 10 MiB limit"))
		return
	}

	name := sanitizeFilename(req.Filename)
	if name == "" {
		writeError(w, codes.New(codes.BadRequest, "invalid filename"))
		return
	}

	dir := filepath.Join(s.StateDir, store.ID, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeError(w, codes.New(codes.Internal, "failed to create uploads directory"))
		return
	}

	finalName := resolveCollision(dir, name)
	path := filepath.Join(dir, finalName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		writeError(w, codes.New(codes.Internal, "failed to write upload"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": filepath.Join("uploads", finalName)})
}

// sanitizeFilename keeps only the base name, rejects traversal/null, and
// truncates to 255 bytes.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "" || name == string(filepath.Separator) {
		return ""
	}
	if strings.ContainsRune(name, 0) || strings.ContainsAny(name, "/\\") {
		return ""
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

func resolveCollision(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d%s", base, n, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

func parseUint64(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *codes.Error) {
	writeJSON(w, err.Code.HTTPStatus(), map[string]string{"code": string(err.Code), "message": err.Message})
}
