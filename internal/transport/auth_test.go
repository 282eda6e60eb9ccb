// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthCheckAcceptsValidBearerHeader(t *testing.T) {
	a := NewAuth("s3cret")
	if !a.Check("Bearer s3cret") {
		t.Fatal("expected a matching bearer token to be accepted")
	}
}

func TestAuthCheckRejectsWrongOrMalformedHeader(t *testing.T) {
	a := NewAuth("s3cret")
	cases := []string{"", "s3cret", "Basic s3cret", "Bearer wrong"}
	for _, h := range cases {
		if a.Check(h) {
			t.Fatalf("expected header %q to be rejected", h)
		}
	}
}

func TestAuthFailsClosedWithNoTokenConfigured(t *testing.T) {
	a := NewAuth("")
	if a.Enabled() {
		t.Fatal("expected Enabled() to be false with no token configured")
	}
	if a.Check("Bearer anything") {
		t.Fatal("expected every token to be rejected when none is configured")
	}
	if a.CheckToken("anything") {
		t.Fatal("expected CheckToken to reject when no token is configured")
	}
}

func TestAuthCheckTokenAcceptsBareToken(t *testing.T) {
	a := NewAuth("s3cret")
	if !a.CheckToken("s3cret") {
		t.Fatal("expected bare token match to be accepted")
	}
	if a.CheckToken("wrong") {
		t.Fatal("expected mismatched bare token to be rejected")
	}
}

func TestRequireExemptsHealthPath(t *testing.T) {
	a := NewAuth("s3cret")
	called := false
	handler := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected /health to bypass auth")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireRejectsMissingToken(t *testing.T) {
	a := NewAuth("s3cret")
	handler := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without a valid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/x/screen", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAcceptsValidToken(t *testing.T) {
	a := NewAuth("s3cret")
	called := false
	handler := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/x/screen", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to be called with a valid token")
	}
}
