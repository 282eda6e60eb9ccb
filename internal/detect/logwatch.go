// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robmacrae/coop/internal/agentstate"
)

// LogWatcher watches a session log file for new JSONL lines appended after
// a tracked byte offset, using fsnotify with a 5-second polling fallback.
// Grounded on original_source/driver/log_watch.rs.
type LogWatcher struct {
	Path   string
	offset int64
}

// Offset returns the current byte offset into the log file.
func (w *LogWatcher) Offset() int64 { return w.offset }

// ReadNewLines reads complete newline-terminated lines appended since the
// last read, advancing the tracked offset. A missing file yields no lines,
// not an error (the log may not exist yet at session start).
func (w *LogWatcher) ReadNewLines() ([]string, error) {
	f, err := os.Open(w.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)

	var lines []string
	for {
		line, err := r.ReadString('\n')
		if line == "" && err != nil {
			break
		}
		if strings.HasSuffix(line, "\n") {
			w.offset += int64(len(line))
			trimmed := strings.TrimRight(line, "\n")
			if trimmed != "" {
				lines = append(lines, trimmed)
			}
			if err != nil {
				break
			}
			continue
		}
		// Partial trailing line: don't advance offset, wait for more data.
		break
	}
	return lines, nil
}

// StateCause is an (AgentState, cause) pair proposed by a line classifier,
// prior to tier tagging (added by the detector that owns the channel).
type StateCause struct {
	State agentstate.AgentState
	Cause string
}

// ClassifyLineFn classifies a single JSONL log line into zero or more
// (AgentState, cause) proposals, vendor-specific.
type ClassifyLineFn func(line string) []StateCause

// LogWatchDetector is the Tier 2 detector.
type LogWatchDetector struct {
	Watcher   *LogWatcher
	Classify  ClassifyLineFn
	UsageFn   func(line string) (agentstate.Usage, bool)
	OnUsage   func(agentstate.Usage)
}

func (d *LogWatchDetector) Tier() int { return 2 }

func (d *LogWatchDetector) Run(ctx context.Context, stateCh chan<- Proposal) {
	wakeCh := make(chan struct{}, 1)

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		defer fsw.Close()
		dir := dirOf(d.Watcher.Path)
		if dir != "" {
			_ = fsw.Add(dir)
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-fsw.Events:
					if !ok {
						return
					}
					select {
					case wakeCh <- struct{}{}:
					default:
					}
				case err, ok := <-fsw.Errors:
					if !ok {
						return
					}
					log.Printf("detect: log watcher fsnotify error: %v", err)
				}
			}
		}()
	} else {
		log.Printf("detect: fsnotify unavailable, falling back to polling only: %v", err)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wakeCh:
		case <-ticker.C:
		}

		lines, err := d.Watcher.ReadNewLines()
		if err != nil {
			log.Printf("detect: log watcher read error: %v", err)
			continue
		}
		for _, line := range lines {
			if d.UsageFn != nil && d.OnUsage != nil {
				if u, ok := d.UsageFn(line); ok {
					d.OnUsage(u)
				}
			}
			for _, sc := range d.Classify(line) {
				select {
				case stateCh <- Proposal{State: sc.State, Cause: sc.Cause, Tier: d.Tier()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return path[:idx]
}
