// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Command coopd is the session runtime daemon: it spawns one agent CLI
// child, fuses its PTY/hook/log signals into a single state machine, and
// serves that state over HTTP, WebSocket, and gRPC. Grounded on
// cmd/server/main.go's signal-handling/graceful-shutdown/SIGQUIT-dump
// structure, trimmed to this module's scope (no egress proxy, MCP bridge,
// browser/drive/mirror handlers — all out-of-scope external collaborators).
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/robmacrae/coop/internal/agentstate"
	"github.com/robmacrae/coop/internal/backend"
	"github.com/robmacrae/coop/internal/config"
	"github.com/robmacrae/coop/internal/debug"
	"github.com/robmacrae/coop/internal/input"
	"github.com/robmacrae/coop/internal/session"
	"github.com/robmacrae/coop/internal/transport"
	"github.com/robmacrae/coop/internal/transport/grpcapi"
	"github.com/robmacrae/coop/internal/transport/httpapi"
	"github.com/robmacrae/coop/internal/transport/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		log.Printf("usage: coopd <agent-command> [args...]")
		return 2
	}

	cfg := config.Load()
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		log.Printf("coopd: failed to create state dir: %v", err)
		return 1
	}

	memMonitor := debug.NewMemoryMonitor(debug.DefaultConfig())
	memMonitor.Start()
	defer memMonitor.Stop()

	mgr := session.NewManager(cfg.StateDir)
	auth := transport.NewAuth(cfg.BearerToken)
	if !auth.Enabled() {
		log.Printf("coopd: WARNING COOP_BEARER_TOKEN is empty — all authenticated requests will be rejected (fail-closed)")
	}

	vendorName := strings.ToLower(os.Getenv("COOP_AGENT_VENDOR"))
	vendor := selectVendor(vendorName, cfg.InputDelay)

	store, err := mgr.Create(session.Config{
		RingSize:    4 << 20,
		ScreenCols:  120,
		ScreenRows:  40,
		GraceWindow: cfg.GraceWindow,
		Vendor:      vendor.Name,
	})
	if err != nil {
		log.Printf("coopd: failed to create session: %v", err)
		return 1
	}

	mux := http.NewServeMux()
	httpapi.NewServer(mgr, auth, cfg.StateDir).Register(mux)
	wsRouter := ws.NewRouter(mgr, auth)
	mux.HandleFunc("/ws/session/{id}", wsRouter.HandleSession)

	httpServer := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: mux}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&grpcapi.ServiceDesc, grpcapi.NewServer(mgr, auth))
	grpcLis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
	if err != nil {
		log.Printf("coopd: failed to listen for gRPC: %v", err)
		return 1
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	debugDump := make(chan os.Signal, 1)
	signal.Notify(debugDump, syscall.SIGQUIT)
	go func() {
		for range debugDump {
			memMonitor.DumpGoroutineStacks()
		}
	}()

	go func() {
		log.Printf("coopd: HTTP/WS listening on :%d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("coopd: http server error: %v", err)
		}
	}()
	go func() {
		log.Printf("coopd: gRPC listening on :%d", cfg.GRPCPort)
		if err := grpcServer.Serve(grpcLis); err != nil && err != grpc.ErrServerStopped {
			log.Fatalf("coopd: grpc server error: %v", err)
		}
	}()

	runCtx, cancelRun := context.WithCancel(context.Background())
	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		driveSessionLoop(runCtx, store, vendor, os.Args[1:], filepath.Join(cfg.StateDir, store.ID))
	}()

	sig := <-shutdown
	log.Printf("coopd: received signal %v, shutting down...", sig)
	memMonitor.DumpGoroutineStacks()

	cancelRun()
	<-driverDone

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("coopd: http server shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
	mgr.Shutdown()
	return 0
}

// driveSessionLoop owns respawning the backend across switch requests: it
// builds a fresh Native backend, runs the session Loop to completion, and
// either exits or rebuilds the backend with merged credentials and loops
// again.
func driveSessionLoop(ctx context.Context, store *session.Store, vendor session.Vendor, argv []string, sessionDir string) {
	env := map[string]string{}
	for {
		if err := os.MkdirAll(sessionDir, 0o755); err != nil {
			log.Printf("coopd: failed to create session dir: %v", err)
			return
		}
		hookPipe := filepath.Join(sessionDir, "hook.pipe")

		b, err := backend.NewNative(strings.Join(argv, " "), 120, 40, sessionDir, env)
		if err != nil {
			log.Printf("coopd: failed to spawn backend: %v", err)
			return
		}

		pipeline := input.New(b, store.Screen)
		store.SetBackend(b, pipeline)

		loop := session.NewLoop(store, vendor, hookPipe)
		result := loop.Run(ctx)

		switch result.Outcome {
		case session.OutcomeExit:
			log.Printf("coopd: session %s backend exited: %+v (err=%v)", store.ID, result.Exit, result.Err)
			return
		case session.OutcomeSwitch:
			log.Printf("coopd: session %s switching backend", store.ID)
			for k, v := range result.Switch.Credentials {
				env[k] = v
			}
			if result.Switch.Result != nil {
				result.Switch.Result <- session.SwitchOutcome{Accepted: true}
			}
		}
	}
}

// selectVendor maps COOP_AGENT_VENDOR to the matching detector/encoder
// wiring. Unrecognized or unset values fall back to screen
// classification and process monitoring only.
func selectVendor(name string, inputDelay time.Duration) session.Vendor {
	d := agentstate.Duration(inputDelay)
	switch name {
	case "claude":
		return session.ClaudeVendor(d)
	case "gemini":
		return session.GeminiVendor(d)
	default:
		return session.UnknownVendor(d)
	}
}
