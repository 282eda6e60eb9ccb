// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package transport hosts the HTTP/WS/gRPC-facing surface: shared auth
// middleware plus the httpapi, ws, and grpcapi sub-packages.
// Grounded on internal/auth/auth.go's Bearer-token wrapping idiom.
package transport

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// unauthenticatedPaths never require a bearer token: only the liveness
// probe. The WS upgrade route is not wrapped by Require; it authenticates
// on its own (header, token query parameter, or a first auth control
// message), since browsers cannot set Authorization headers on the upgrade
// request.
var unauthenticatedPaths = map[string]bool{
	"/health": true,
}

// Auth is Bearer-token middleware comparing in constant time,
// fail-closed when no token is configured.
type Auth struct {
	token string
}

// NewAuth builds Auth from a configured token. An empty token means every
// request is rejected.
func NewAuth(token string) *Auth {
	return &Auth{token: token}
}

// Enabled reports whether a token is configured.
func (a *Auth) Enabled() bool { return a.token != "" }

// Require wraps a handler, rejecting requests without a valid bearer token.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unauthenticatedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !a.check(r.Header.Get("Authorization")) {
			http.Error(w, `{"code":"UNAUTHORIZED","message":"missing or invalid bearer token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Check validates a raw Authorization header value, used directly by
// transports (gRPC metadata, WS first-message auth) that don't go through
// Require.
func (a *Auth) Check(authorizationHeader string) bool {
	return a.check(authorizationHeader)
}

// CheckToken validates a bare token (no "Bearer " prefix), used by the WS
// protocol's explicit Auth control message.
func (a *Auth) CheckToken(token string) bool {
	return a.compare(token)
}

func (a *Auth) check(header string) bool {
	if header == "" {
		return false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	return a.compare(parts[1])
}

func (a *Auth) compare(token string) bool {
	if a.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}
