// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*$`)

// separators for recursive splitting, in descending structural order:
// blank line, newline, sentence boundary, space.
var separators = []string{"\n\n", "\n", ". ", " "}

// section is a run of markdown under one heading path.
type section struct {
	text    string
	headers map[string]string
}

// splitLines splits s into lines, each keeping its trailing newline.
// The concatenation of the result equals s.
func splitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

// isFenceLine reports whether line opens or closes a fenced code block and
// returns the fence marker.
func isFenceLine(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if strings.HasPrefix(trimmed, "```") {
		return "```", true
	}
	if strings.HasPrefix(trimmed, "~~~") {
		return "~~~", true
	}
	return "", false
}

func isTableLine(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " "), "|")
}

// splitSections pre-splits markdown by heading hierarchy. Every section
// carries a snapshot of the heading path enclosing it. Headings inside
// fenced code blocks are ignored. Concatenating the section texts
// reproduces the input.
func splitSections(markdown string) []section {
	lines := splitLines(markdown)

	var sections []section
	var cur strings.Builder
	path := map[string]string{}
	curHeaders := map[string]string{}
	inFence := false
	fence := ""

	snapshot := func() map[string]string {
		if len(path) == 0 {
			return nil
		}
		out := make(map[string]string, len(path))
		for k, v := range path {
			out[k] = v
		}
		return out
	}

	flush := func() {
		if cur.Len() > 0 {
			sections = append(sections, section{text: cur.String(), headers: curHeaders})
			cur.Reset()
		}
	}

	for _, line := range lines {
		if marker, ok := isFenceLine(line); ok {
			if !inFence {
				inFence = true
				fence = marker
			} else if marker == fence {
				inFence = false
			}
			cur.WriteString(line)
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil && !inFence {
			flush()
			level := len(m[1])
			path["h"+strconv.Itoa(level)] = m[2]
			for l := level + 1; l <= 6; l++ {
				delete(path, "h"+strconv.Itoa(l))
			}
			curHeaders = snapshot()
		}
		cur.WriteString(line)
	}
	flush()
	return sections
}

// fragments breaks the section into split-ready units: fenced code blocks
// and tables stay whole, everything else is recursively split down toward
// the target size.
func (s section) fragments(target int) []string {
	var frags []string
	var text strings.Builder
	var atomic strings.Builder
	inFence := false
	fence := ""
	inTable := false

	flushText := func() {
		if text.Len() > 0 {
			frags = append(frags, splitRecursive(text.String(), target, separators)...)
			text.Reset()
		}
	}
	flushAtomic := func() {
		if atomic.Len() > 0 {
			frags = append(frags, atomic.String())
			atomic.Reset()
		}
	}

	for _, line := range splitLines(s.text) {
		marker, isFence := isFenceLine(line)

		switch {
		case inFence:
			atomic.WriteString(line)
			if isFence && marker == fence {
				inFence = false
				flushAtomic()
			}
		case isFence:
			if inTable {
				inTable = false
				flushAtomic()
			}
			flushText()
			inFence = true
			fence = marker
			atomic.WriteString(line)
		case isTableLine(line):
			if !inTable {
				flushText()
				inTable = true
			}
			atomic.WriteString(line)
		default:
			if inTable {
				inTable = false
				flushAtomic()
			}
			text.WriteString(line)
		}
	}
	flushAtomic()
	flushText()
	return frags
}

// splitRecursive splits s into fragments no longer than target where the
// separators allow it, keeping each separator attached to the fragment it
// ends. Concatenating the result reproduces s.
func splitRecursive(s string, target int, seps []string) []string {
	if len(s) <= target {
		return []string{s}
	}
	if len(seps) == 0 {
		return hardSplit(s, target)
	}

	parts := splitKeep(s, seps[0])
	if len(parts) == 1 {
		return splitRecursive(s, target, seps[1:])
	}

	var out []string
	for _, p := range parts {
		if len(p) > target {
			out = append(out, splitRecursive(p, target, seps[1:])...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// splitKeep splits s on sep, keeping sep at the end of each fragment.
func splitKeep(s, sep string) []string {
	var parts []string
	for {
		i := strings.Index(s, sep)
		if i < 0 {
			if len(s) > 0 || len(parts) == 0 {
				parts = append(parts, s)
			}
			return parts
		}
		parts = append(parts, s[:i+len(sep)])
		s = s[i+len(sep):]
	}
}

// hardSplit cuts s into target-sized fragments at rune boundaries.
func hardSplit(s string, target int) []string {
	var out []string
	for len(s) > target {
		cut := target
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = target
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
