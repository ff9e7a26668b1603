// Lumino Core
// Copyright (c) 2026 The Lumino Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Lumino Core.
//
// Lumino Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Lumino Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Lumino Core.  If not, see <http://www.gnu.org/licenses/>.

package caps

import (
	"strconv"
	"strings"

	"github.com/LuminoProject/lumino-core/pkg/ddc"
)

// parseCapabilityString extracts the named groups of a capability string
// by structural scanning. Top-level group order is not guaranteed by
// devices, so each group is located independently; malformed or
// unrecognized content is skipped, never an error.
func parseCapabilityString(s string) *Record {
	r := &Record{
		Raw:      s,
		Model:    scanGroup(s, "model"),
		Protocol: scanGroup(s, "prot"),
		Type:     scanGroup(s, "type"),
		Declared: map[ddc.Feature][]byte{},
	}
	parseVCPGroup(scanGroup(s, "vcp"), r.Declared)
	r.PresetSupported = r.Declares(ddc.FeatureColorPreset)
	return r
}

// scanGroup finds "name(" at a token boundary and returns the content of
// its balanced parentheses, or "" when absent or unbalanced.
func scanGroup(s, name string) string {
	for start := 0; ; {
		idx := strings.Index(s[start:], name+"(")
		if idx < 0 {
			return ""
		}
		idx += start
		start = idx + 1

		// Reject matches inside a longer word, e.g. "mccs_ver" vs "ver".
		if idx > 0 && isWordByte(s[idx-1]) {
			continue
		}

		open := idx + len(name)
		depth := 0
		for i := open; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return s[open+1 : i]
				}
			}
		}
		return ""
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// parseVCPGroup parses the vcp(...) body: space-separated hex feature
// codes, each optionally followed by a parenthesized list of supported
// sub-values. Unparseable tokens are ignored.
func parseVCPGroup(body string, out map[ddc.Feature][]byte) {
	i := 0
	for i < len(body) {
		if body[i] == ' ' || body[i] == '\t' || body[i] == '\n' || body[i] == '\r' {
			i++
			continue
		}

		start := i
		for i < len(body) && isHexByte(body[i]) {
			i++
		}
		token := body[start:i]

		// Sub-value list attaches to the preceding code.
		var sub string
		if i < len(body) && body[i] == '(' {
			depth := 0
			open := i
			for ; i < len(body); i++ {
				if body[i] == '(' {
					depth++
				} else if body[i] == ')' {
					depth--
					if depth == 0 {
						sub = body[open+1 : i]
						i++
						break
					}
				}
			}
		}

		if token == "" {
			// Not a hex token; skip one byte and keep scanning.
			if sub == "" {
				i++
			}
			continue
		}

		code, err := strconv.ParseUint(token, 16, 8)
		if err != nil {
			continue
		}
		out[ddc.Feature(code)] = parseSubValues(sub)
	}
}

// parseSubValues parses a space-separated hex value list; nil when empty.
func parseSubValues(s string) []byte {
	var values []byte
	for _, tok := range strings.Fields(s) {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			continue
		}
		values = append(values, byte(v))
	}
	return values
}

func isHexByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
