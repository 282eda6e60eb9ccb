// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package detect

import "encoding/json"

// JSONLParser incrementally buffers raw bytes from a PTY output stream and
// extracts complete newline-delimited JSON values. Non-JSON lines are
// silently dropped, matching original_source/driver/jsonl_stdout.rs.
type JSONLParser struct {
	lineBuf []byte
}

// Feed appends raw bytes and returns any complete JSON values found. Partial
// trailing lines are buffered internally until the next newline.
func (p *JSONLParser) Feed(data []byte) []json.RawMessage {
	var entries []json.RawMessage
	for _, b := range data {
		if b == '\n' {
			if len(p.lineBuf) > 0 {
				var v any
				if json.Unmarshal(p.lineBuf, &v) == nil {
					raw := make(json.RawMessage, len(p.lineBuf))
					copy(raw, p.lineBuf)
					entries = append(entries, raw)
				}
			}
			p.lineBuf = p.lineBuf[:0]
		} else {
			p.lineBuf = append(p.lineBuf, b)
		}
	}
	return entries
}
