// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package codes

import (
	"net/http"
	"testing"
)

func TestHTTPStatusMapsEveryCode(t *testing.T) {
	cases := map[Code]int{
		NotReady:         http.StatusServiceUnavailable,
		Exited:           http.StatusGone,
		WriterBusy:       http.StatusConflict,
		Unauthorized:     http.StatusUnauthorized,
		BadRequest:       http.StatusBadRequest,
		NoDriver:         http.StatusUnprocessableEntity,
		AgentBusy:        http.StatusConflict,
		NoPrompt:         http.StatusConflict,
		SwitchInProgress: http.StatusConflict,
		Internal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestHTTPStatusUnknownCodeDefaultsToInternal(t *testing.T) {
	if got := Code("SOMETHING_NEW").HTTPStatus(); got != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500 for an unrecognized code", got)
	}
}

func TestGRPCCodeMapsEveryCode(t *testing.T) {
	cases := map[Code]uint32{
		NotReady:         14,
		Exited:           9,
		WriterBusy:       10,
		Unauthorized:     16,
		BadRequest:       3,
		NoDriver:         9,
		AgentBusy:        10,
		NoPrompt:         9,
		SwitchInProgress: 10,
		Internal:         13,
	}
	for code, want := range cases {
		if got := code.GRPCCode(); got != want {
			t.Errorf("%s.GRPCCode() = %d, want %d", code, got, want)
		}
	}
}

func TestNewBuildsErrorWithMessage(t *testing.T) {
	err := New(BadRequest, "bad input")
	if err.Code != BadRequest || err.Error() != "bad input" {
		t.Fatalf("got %+v", err)
	}
}
