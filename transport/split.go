// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// markerReserve is headroom kept in each part for the part marker
// line, e.g. "--- (Part 12/34) ---\n".
const markerReserve = 24

// SplitMessage splits text into parts no longer than max bytes each,
// labelling every part with a "--- (Part i/n) ---" marker line. Text
// within the limit is returned unchanged as a single unlabelled part.
//
// Cut points prefer paragraph breaks, then sentence ends, then word
// boundaries; only text with no usable boundary is cut mid-word, and
// never mid-rune.
func SplitMessage(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	limit := max - markerReserve
	if limit < 1 {
		limit = max
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		cut := cutPoint(remaining, limit)
		chunks = append(chunks, strings.TrimRight(remaining[:cut], " \n"))
		remaining = strings.TrimLeft(remaining[cut:], " \n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}

	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		parts[i] = fmt.Sprintf("--- (Part %d/%d) ---\n%s", i+1, len(chunks), chunk)
	}
	return parts
}

// cutPoint returns the byte offset to cut text at, no greater than
// limit.
func cutPoint(text string, limit int) int {
	window := text[:limit]

	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return i + 2
	}
	for _, boundary := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(window, boundary); i > 0 {
			return i + len(boundary)
		}
	}
	if i := strings.LastIndexAny(window, " \n"); i > 0 {
		return i + 1
	}

	// No boundary at all: hard cut, backed off to a rune start.
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	return cut
}
