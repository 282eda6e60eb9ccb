// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package session

import (
	"testing"
	"time"
)

func testConfig(id string) Config {
	return Config{
		ID:          id,
		RingSize:    4096,
		ScreenCols:  80,
		ScreenRows:  24,
		GraceWindow: 50 * time.Millisecond,
	}
}

func TestManagerCreateAssignsIDWhenEmpty(t *testing.T) {
	m := NewManager(t.TempDir())
	s, err := m.Create(testConfig(""))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected a generated ID")
	}
}

func TestManagerCreateRejectsDuplicateID(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.Create(testConfig("dup")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(testConfig("dup")); err == nil {
		t.Fatal("expected an error creating a session with a duplicate ID")
	}
}

func TestManagerGetAndList(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Create(testConfig("a"))
	m.Create(testConfig("b"))

	if _, ok := m.Get("a"); !ok {
		t.Fatal("expected to find session a")
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected not to find an unregistered session")
	}

	ids := m.List()
	if len(ids) != 2 {
		t.Fatalf("List() returned %d ids, want 2", len(ids))
	}
}

func TestManagerDeleteRemovesSession(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Create(testConfig("gone"))
	m.Delete("gone")
	if _, ok := m.Get("gone"); ok {
		t.Fatal("expected session to be removed after Delete")
	}
	m.Delete("gone") // idempotent
}

func TestManagerShutdownClearsAllSessions(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Create(testConfig("a"))
	m.Create(testConfig("b"))
	m.Shutdown()
	if len(m.List()) != 0 {
		t.Fatal("expected no sessions after Shutdown")
	}
}
