// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package ws

import (
	"net/http/httptest"
	"testing"
)

func TestIsNumeric(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     true,
		"8080":  true,
		"80a0":  false,
		"-80":   false,
	}
	for in, want := range cases {
		if got := isNumeric(in); got != want {
			t.Errorf("isNumeric(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCheckOriginRejectsMissingOrigin(t *testing.T) {
	t.Setenv("COOP_ALLOWED_ORIGINS", "https://example.com")
	req := httptest.NewRequest("GET", "/ws/session/x", nil)
	if checkOrigin(req) {
		t.Fatal("expected a request with no Origin header to be rejected")
	}
}

func TestCheckOriginMatchesExactOrigin(t *testing.T) {
	t.Setenv("COOP_ALLOWED_ORIGINS", "https://example.com,https://other.test")
	req := httptest.NewRequest("GET", "/ws/session/x", nil)
	req.Header.Set("Origin", "https://other.test")
	if !checkOrigin(req) {
		t.Fatal("expected a listed origin to be accepted")
	}
}

func TestCheckOriginRejectsUnlistedOrigin(t *testing.T) {
	t.Setenv("COOP_ALLOWED_ORIGINS", "https://example.com")
	req := httptest.NewRequest("GET", "/ws/session/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	if checkOrigin(req) {
		t.Fatal("expected an unlisted origin to be rejected")
	}
}

func TestCheckOriginMatchesWildcardPort(t *testing.T) {
	t.Setenv("COOP_ALLOWED_ORIGINS", "http://localhost:*")
	req := httptest.NewRequest("GET", "/ws/session/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	if !checkOrigin(req) {
		t.Fatal("expected a wildcard-port origin to be accepted")
	}
}

func TestCheckOriginStarMatchesAnyOrigin(t *testing.T) {
	t.Setenv("COOP_ALLOWED_ORIGINS", "*")
	req := httptest.NewRequest("GET", "/ws/session/x", nil)
	req.Header.Set("Origin", "https://anything.example")
	if !checkOrigin(req) {
		t.Fatal("expected * to match any origin")
	}
}
