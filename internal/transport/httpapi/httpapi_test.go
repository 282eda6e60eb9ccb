// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/backend"
	"github.com/robmacrae/coop/internal/detect"
	"github.com/robmacrae/coop/internal/encode"
	"github.com/robmacrae/coop/internal/input"
	"github.com/robmacrae/coop/internal/session"
)

// driveFuserToPrompt pushes a Working proposal (to clear the startup gate)
// then the given prompt proposal through the store's fuser, blocking until
// Current() reports a pending prompt.
func driveFuserToPrompt(t *testing.T, store *session.Store, prompt agentstate.AgentState) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch := make(chan detect.Proposal, 4)
	go store.Fuser.Run(ctx, ch, func() string { return "" })
	ch <- detect.Proposal{State: agentstate.Working(), Cause: "test:working", Tier: 1}
	ch <- detect.Proposal{State: prompt, Cause: "test:prompt", Tier: 1}

	deadline := time.After(time.Second)
	for {
		if state, _ := store.Fuser.Current(); state.IsPrompt() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for fuser to reach a prompt state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

type noopBackend struct{}

func (noopBackend) Run(ctx context.Context, out chan<- []byte, in <-chan []byte) (backend.ExitStatus, error) {
	<-ctx.Done()
	return backend.ExitStatus{}, nil
}
func (noopBackend) Resize(cols, rows uint16) error  { return nil }
func (noopBackend) ChildPid() (int, bool)           { return 0, false }
func (noopBackend) Signal(sig backend.Signal) error { return nil }
func (noopBackend) Close() error                    { return nil }

func newTestServer(t *testing.T) (*Server, *session.Store) {
	t.Helper()
	mgr := session.NewManager(t.TempDir())
	store, err := mgr.Create(session.Config{
		ID:          "s1",
		RingSize:    4096,
		ScreenCols:  80,
		ScreenRows:  24,
		GraceWindow: 50 * time.Millisecond,
		Vendor:      "claude",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var b noopBackend
	store.SetBackend(b, input.New(b, store.Screen))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go store.Input.Run(ctx, make(chan []byte, 256))

	srv := NewServer(mgr, nil, t.TempDir())
	return srv, store
}

func newMux(srv *Server) *http.ServeMux {
	mux := http.NewServeMux()
	srv.Register(mux)
	return mux
}

func TestHandleHealthIsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := newMux(srv)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleScreenReturnsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := newMux(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/s1/screen", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleUnknownSessionReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := newMux(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/missing/screen", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["code"] != "BAD_REQUEST" {
		t.Fatalf("got %+v, want BAD_REQUEST", body)
	}
}

func TestHandleNudgeWithoutEncoderReturnsNoDriver(t *testing.T) {
	srv, store := newTestServer(t)
	store.Nudge = nil
	mux := newMux(srv)

	body, _ := json.Marshal(map[string]string{"message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/agent/nudge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["code"] != "NO_DRIVER" {
		t.Fatalf("got %+v, want NO_DRIVER", resp)
	}
}

func TestHandleNudgeSendsOutcome(t *testing.T) {
	srv, store := newTestServer(t)
	store.Nudge = encode.SafeNudgeEncoder{}
	mux := newMux(srv)

	body, _ := json.Marshal(map[string]string{"message": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/agent/nudge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["outcome"] != "sent" {
		t.Fatalf("got %+v, want outcome=sent", resp)
	}
}

func TestHandleRespondWithoutPendingPromptReturnsNoPrompt(t *testing.T) {
	srv, store := newTestServer(t)
	store.Respond = encode.ClaudeRespondEncoder{}
	mux := newMux(srv)

	body, _ := json.Marshal(map[string]any{"option": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/agent/respond", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["code"] != "NO_PROMPT" {
		t.Fatalf("got %+v, want NO_PROMPT", resp)
	}
}

// TestHandleRespondQuestionDispatchesWithoutKindField exercises the
// AskUser e2e scenario's respond body, which carries only `answers` (no
// `kind`, no top-level `option`): dispatch must come from the fuser's live
// prompt kind, not a client-supplied field.
func TestHandleRespondQuestionDispatchesWithoutKindField(t *testing.T) {
	srv, store := newTestServer(t)
	store.Respond = encode.ClaudeRespondEncoder{}
	driveFuserToPrompt(t, store, agentstate.AskUser(agentstate.PromptContext{
		Kind: "question", Question: "proceed?", Options: []string{"A", "B"},
	}))
	mux := newMux(srv)

	body, _ := json.Marshal(map[string]any{"answers": []map[string]any{{"option": 2}}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/agent/respond", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["outcome"] != "sent" {
		t.Fatalf("got %+v, want outcome=sent", resp)
	}
}

// TestHandleRespondPermissionDefaultsToDeclineWithNeitherAcceptNorOption
// covers the boundary property: option=None, accept=None picks option 3.
func TestHandleRespondPermissionDefaultsToDeclineWithNeitherAcceptNorOption(t *testing.T) {
	srv, store := newTestServer(t)
	store.Respond = encode.ClaudeRespondEncoder{}
	driveFuserToPrompt(t, store, agentstate.PermissionPrompt(agentstate.PromptContext{Kind: "permission", Ready: true}))
	mux := newMux(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/agent/respond", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleSwitchAcceptsFirstRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := newMux(srv)

	body, _ := json.Marshal(map[string]any{"force": false})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/session/switch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleSwitchRejectsConcurrentRequest(t *testing.T) {
	srv, store := newTestServer(t)
	mux := newMux(srv)

	if !store.RequestSwitch(context.Background(), &session.SwitchRequest{Result: make(chan session.SwitchOutcome, 1)}) {
		t.Fatal("expected first switch request to be accepted directly")
	}

	body, _ := json.Marshal(map[string]any{"force": false})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/session/switch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["code"] != "SWITCH_IN_PROGRESS" {
		t.Fatalf("got %+v, want SWITCH_IN_PROGRESS", resp)
	}
}

func TestHandleUploadWritesSanitizedFile(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := newMux(srv)

	payload := base64.StdEncoding.EncodeToString([]byte("hello world"))
	body, _ := json.Marshal(map[string]string{"filename": "../../etc/passwd", "data": payload})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/s1/upload", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["path"] != "uploads/passwd" {
		t.Fatalf("path = %q, want uploads/passwd (traversal stripped to base name)", resp["path"])
	}
}

func TestSanitizeFilenameRejectsDotAndDotDot(t *testing.T) {
	for _, in := range []string{".", "..", "", "/"} {
		if got := sanitizeFilename(in); got != "" {
			t.Errorf("sanitizeFilename(%q) = %q, want empty", in, got)
		}
	}
}

func TestResolveCollisionAppendsCounter(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := resolveCollision(dir, "a.txt")
	if got != "a.1.txt" {
		t.Fatalf("resolveCollision = %q, want a.1.txt", got)
	}
}
