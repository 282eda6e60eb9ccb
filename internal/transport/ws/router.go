// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package ws

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/robmacrae/coop/internal/session"
	"github.com/robmacrae/coop/internal/transport"
)

// allowedOrigins returns the configured WS origin allowlist, grounded on
// internal/ws/router.go's ALLOWED_ORIGINS environment convention.
func allowedOrigins() []string {
	origins := os.Getenv("COOP_ALLOWED_ORIGINS")
	if origins == "" {
		return nil
	}
	return strings.Split(origins, ",")
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, a := range allowedOrigins() {
		a = strings.TrimSpace(a)
		if a == "*" || a == origin {
			return true
		}
		if strings.HasSuffix(a, ":*") {
			prefix := strings.TrimSuffix(a, "*")
			if strings.HasPrefix(origin, prefix) && isNumeric(strings.TrimPrefix(origin, prefix)) {
				return true
			}
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// Router dispatches WS upgrade requests to the right session Store.
type Router struct {
	Manager *session.Manager
	Auth    *transport.Auth
}

// NewRouter builds a Router over mgr, authenticating upgrades with auth.
func NewRouter(mgr *session.Manager, auth *transport.Auth) *Router {
	return &Router{Manager: mgr, Auth: auth}
}

// HandleSession upgrades the connection and serves one Client bound to the
// session named by the "id" path value. Since browsers cannot set
// Authorization headers on a WS upgrade request, a request bearing a valid
// Authorization header or a valid token query parameter is
// pre-authenticated, as is every request when no Auth is configured;
// otherwise the connection starts
// unauthenticated and must send an explicit Auth control message carrying
// the bearer token before any other message is honored.
func (r *Router) HandleSession(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	store, ok := r.Manager.Get(id)
	if !ok {
		http.Error(w, `{"code":"BAD_REQUEST","message":"unknown session"}`, http.StatusNotFound)
		return
	}

	preauthed := r.Auth == nil || r.Auth.Check(req.Header.Get("Authorization")) || r.Auth.CheckToken(req.URL.Query().Get("token"))

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	owner := req.RemoteAddr
	client := NewClient(conn, store, r.Auth, preauthed, owner)
	client.Serve()
}
