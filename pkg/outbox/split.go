// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package outbox

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the chunk size used by EnqueueText
const MaxMessageLength = 4000

// Split breaks text into chunks of at most limit characters. Whole lines are
// packed into a chunk while they fit; a single line longer than limit is cut
// into limit-sized pieces.
func Split(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	started := false

	// an empty chunk would be rejected by the chat API
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
		}
		current.Reset()
		currentLen = 0
		started = false
	}

	for _, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line)

		// joining newline counts towards the chunk
		if started && currentLen+1+lineLen > limit {
			flush()
		}

		if lineLen > limit {
			flush()
			runes := []rune(line)
			for len(runes) > limit {
				chunks = append(chunks, string(runes[:limit]))
				runes = runes[limit:]
			}
			line = string(runes)
			lineLen = len(runes)
		}

		if started {
			current.WriteByte('\n')
			currentLen++
		}
		current.WriteString(line)
		currentLen += lineLen
		started = true
	}
	flush()

	return chunks
}
