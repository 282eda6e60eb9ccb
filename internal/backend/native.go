// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package backend

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/robmacrae/coop/internal/id"
)

// sensitiveEnvVars are stripped from the child's environment so an agent
// process never inherits the daemon's own credentials.
var sensitiveEnvVars = map[string]bool{
	"COOP_BEARER_TOKEN":      true,
	"COOP_STATE_ENCRYPTION_KEY": true,
	"ANTHROPIC_API_KEY":      true,
	"GOOGLE_API_KEY":         true,
	"GITHUB_TOKEN":           true,
}

func filterSensitiveEnv(environ []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, env := range environ {
		key := env
		if idx := strings.Index(env, "="); idx != -1 {
			key = env[:idx]
		}
		if !sensitiveEnvVars[key] {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// Native spawns a command under a freshly allocated PTY. Grounded on
// internal/pty/pty.go, generalized behind the Backend interface.
type Native struct {
	ID string

	mu     sync.Mutex
	file   *os.File
	cmd    *exec.Cmd
	closed bool
}

// NewNative starts a command (or the default shell, if command is empty)
// in a new PTY of the given size. SECURITY: sensitive tokens are filtered
// out of the child's environment.
func NewNative(command string, cols, rows uint16, dir string, extraEnv map[string]string) (*Native, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		parts = []string{DefaultShell()}
	}
	cmd := exec.Command(parts[0], parts[1:]...)

	env := append(filterSensitiveEnv(os.Environ()), "TERM=xterm-256color")
	for key, value := range extraEnv {
		env = append(env, key+"="+value)
	}
	cmd.Env = env
	if dir != "" {
		cmd.Dir = dir
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}
	backendID, err := id.New()
	if err != nil {
		ptmx.Close()
		return nil, err
	}
	return &Native{ID: backendID, file: ptmx, cmd: cmd}, nil
}

// Run streams PTY output to out and writes from in until the child exits,
// ctx is canceled, or in is closed. A read or write error on the PTY also
// ends the pump. A child still running when the pump ends is killed; Run
// then waits for it and returns its exit status with a nil error.
func (n *Native) Run(ctx context.Context, out chan<- []byte, in <-chan []byte) (ExitStatus, error) {
	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			nr, err := n.file.Read(buf)
			if nr > 0 {
				chunk := make([]byte, nr)
				copy(chunk, buf[:nr])
				select {
				case out <- chunk:
				case <-ctx.Done():
					readDone <- nil
					return
				}
			}
			if err != nil {
				readDone <- err
				return
			}
		}
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case data, ok := <-in:
				if !ok {
					return
				}
				if _, err := n.write(data); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	waitDone := make(chan struct{})
	go func() {
		n.cmd.Wait()
		close(waitDone)
	}()

	select {
	case <-readDone:
	case <-writeDone:
	case <-ctx.Done():
	}
	select {
	case <-waitDone:
	default:
		n.cmd.Process.Kill()
	}
	<-waitDone

	return n.exitStatus(), nil
}

// write performs a raw write to the PTY.
func (n *Native) write(data []byte) (int, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return 0, os.ErrClosed
	}
	file := n.file
	n.mu.Unlock()
	return file.Write(data)
}

// WriteSilent writes with local echo disabled for the duration of the
// write, used for credential prompts the input pipeline relays verbatim.
func (n *Native) WriteSilent(data []byte) (int, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return 0, os.ErrClosed
	}
	file := n.file
	n.mu.Unlock()
	return writeSilentPlatform(file, data)
}

func (n *Native) Resize(cols, rows uint16) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return os.ErrClosed
	}
	return pty.Setsize(n.file, &pty.Winsize{Cols: cols, Rows: rows})
}

func (n *Native) ChildPid() (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cmd.Process == nil {
		return 0, false
	}
	return n.cmd.Process.Pid, true
}

func (n *Native) Signal(sig Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return os.ErrClosed
	}
	if n.cmd.Process == nil {
		return os.ErrProcessDone
	}
	return n.cmd.Process.Signal(syscall.Signal(sig))
}

func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if n.cmd.Process != nil {
		n.cmd.Process.Kill()
	}
	return n.file.Close()
}

func (n *Native) exitStatus() ExitStatus {
	state := n.cmd.ProcessState
	if state == nil {
		return ExitStatus{}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			sig := int(ws.Signal())
			return ExitStatus{Signal: &sig}
		}
	}
	code := state.ExitCode()
	return ExitStatus{Code: &code}
}
